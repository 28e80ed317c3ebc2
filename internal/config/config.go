package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Catalog    CatalogConfig    `yaml:"catalog" mapstructure:"catalog"`
	Scoring    ScoringConfig    `yaml:"scoring" mapstructure:"scoring"`
	Scheduling SchedulingConfig `yaml:"scheduling" mapstructure:"scheduling"`
	Buffer     BufferConfig     `yaml:"buffer" mapstructure:"buffer"`
	Alerts     AlertsConfig     `yaml:"alerts" mapstructure:"alerts"`
	Ledger     LedgerConfig     `yaml:"ledger" mapstructure:"ledger"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Notion     NotionConfig     `yaml:"notion" mapstructure:"notion"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the routing store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // postgres, sqlite or memory
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// CatalogConfig configures where publications, rules, rubrics, thresholds
// and slots are read from.
type CatalogConfig struct {
	Source       string `yaml:"source" mapstructure:"source"` // yaml or postgres
	Path         string `yaml:"path" mapstructure:"path"`
	CacheTTLSecs int    `yaml:"cache_ttl_secs" mapstructure:"cache_ttl_secs"`
	Watch        bool   `yaml:"watch" mapstructure:"watch"`
}

// CacheTTL returns the catalog cache lifetime.
func (c CatalogConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSecs) * time.Second
}

// ScoringConfig is the fallback score scale used when a publication's
// rubrics define no criteria levels.
type ScoringConfig struct {
	MinScore float64 `yaml:"min_score" mapstructure:"min_score"`
	MaxScore float64 `yaml:"max_score" mapstructure:"max_score"`
}

// SchedulingConfig bounds slot recommendation.
type SchedulingConfig struct {
	HorizonWeeks int `yaml:"horizon_weeks" mapstructure:"horizon_weeks"`
}

// BufferConfig holds the weeks-of-buffer health thresholds.
type BufferConfig struct {
	RedWeeks    float64 `yaml:"red_weeks" mapstructure:"red_weeks"`
	YellowWeeks float64 `yaml:"yellow_weeks" mapstructure:"yellow_weeks"`
}

// AlertsConfig configures time-sensitive alerts and webhook delivery.
type AlertsConfig struct {
	NewsWindowDays    int     `yaml:"news_window_days" mapstructure:"news_window_days"`
	NewsWindowRedDays int     `yaml:"news_window_red_days" mapstructure:"news_window_red_days"`
	WebhookURL        string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	RatePerSec        float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// LedgerConfig configures best-effort status log appends.
type LedgerConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMS int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// NotionConfig holds Notion API credentials and the idea intake database.
type NotionConfig struct {
	Token    string `yaml:"token" mapstructure:"token"`
	IntakeDB string `yaml:"intake_db" mapstructure:"intake_db"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CONTENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Keys without a meaningful default are still registered so
	// AutomaticEnv can populate them.
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("catalog.source", "yaml")
	v.SetDefault("catalog.path", "catalog.yaml")
	v.SetDefault("catalog.cache_ttl_secs", 300)
	v.SetDefault("catalog.watch", false)
	v.SetDefault("scoring.min_score", 0)
	v.SetDefault("scoring.max_score", 10)
	v.SetDefault("scheduling.horizon_weeks", 12)
	v.SetDefault("buffer.red_weeks", 2)
	v.SetDefault("buffer.yellow_weeks", 4)
	v.SetDefault("alerts.news_window_days", 7)
	v.SetDefault("alerts.news_window_red_days", 2)
	v.SetDefault("alerts.webhook_url", "")
	v.SetDefault("alerts.rate_per_sec", 3)
	v.SetDefault("ledger.max_attempts", 3)
	v.SetDefault("ledger.initial_backoff_ms", 100)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("notion.token", "")
	v.SetDefault("notion.intake_db", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks cross-field constraints for the given run mode: "engine"
// for CLI operations, "serve" for the HTTP API, "notion" for Notion intake.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "engine", "serve", "notion":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Store.Driver {
	case "postgres", "sqlite", "memory":
	default:
		errs = append(errs, "store.driver must be postgres, sqlite or memory")
	}
	if c.Store.Driver != "memory" && c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required for "+c.Store.Driver)
	}
	switch c.Catalog.Source {
	case "yaml":
		if c.Catalog.Path == "" {
			errs = append(errs, "catalog.path is required for the yaml source")
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "catalog.source postgres requires store.database_url")
		}
	default:
		errs = append(errs, "catalog.source must be yaml or postgres")
	}
	if c.Catalog.CacheTTLSecs < 0 {
		errs = append(errs, "catalog.cache_ttl_secs must be >= 0")
	}
	if c.Scoring.MinScore >= c.Scoring.MaxScore {
		errs = append(errs, "scoring.min_score must be below scoring.max_score")
	}
	if c.Scheduling.HorizonWeeks <= 0 {
		errs = append(errs, "scheduling.horizon_weeks must be > 0")
	}
	if c.Buffer.RedWeeks < 0 || c.Buffer.RedWeeks >= c.Buffer.YellowWeeks {
		errs = append(errs, "buffer.red_weeks must be >= 0 and below buffer.yellow_weeks")
	}
	if c.Alerts.NewsWindowRedDays < 0 || c.Alerts.NewsWindowRedDays > c.Alerts.NewsWindowDays {
		errs = append(errs, "alerts.news_window_red_days must be between 0 and alerts.news_window_days")
	}
	if c.Ledger.MaxAttempts < 1 {
		errs = append(errs, "ledger.max_attempts must be >= 1")
	}

	switch mode {
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	case "notion":
		if c.Notion.Token == "" {
			errs = append(errs, "notion.token is required")
		}
		if c.Notion.IntakeDB == "" {
			errs = append(errs, "notion.intake_db is required")
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
