package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/content-router/internal/catalog"
	"github.com/sells-group/content-router/internal/db"
	"github.com/sells-group/content-router/internal/engine"
	"github.com/sells-group/content-router/internal/store"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Inspect and publish the routing catalog",
}

// -- catalog validate --

var catalogValidateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Report catalog misconfigurations",
	Long:  "Loads the catalog (a YAML file when given, else the configured source) and reports dangling references, rubric and threshold problems and bad slots. Exits non-zero on errors.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		opts := engine.OptionsFromConfig(cfg)

		var snap *catalog.Snapshot
		if len(args) == 1 {
			s, err := catalog.NewYAMLLoader(args[0]).Load(ctx)
			if err != nil {
				return err
			}
			snap = s
		} else {
			e, err := initEnv(ctx, "engine")
			if err != nil {
				return err
			}
			defer e.Close()
			if snap, err = e.Catalog.Snapshot(ctx); err != nil {
				return err
			}
		}

		issues := catalog.Validate(snap, opts.Scale)
		out := cmd.OutOrStdout()
		if jsonOutput {
			if err := printJSON(out, issues); err != nil {
				return err
			}
		} else if len(issues) == 0 {
			fmt.Fprintln(out, "Catalog OK.")
		} else {
			for _, i := range issues {
				fmt.Fprintln(out, i.String())
			}
		}
		return issues.Err()
	},
}

// -- catalog push --

var catalogPushCmd = &cobra.Command{
	Use:   "push <file>",
	Short: "Upsert a YAML catalog into the Postgres catalog tables",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		opts := engine.OptionsFromConfig(cfg)
		force, _ := cmd.Flags().GetBool("force")

		snap, err := catalog.NewYAMLLoader(args[0]).Load(ctx)
		if err != nil {
			return err
		}
		if err := catalog.Validate(snap, opts.Scale).Err(); err != nil && !force {
			return eris.Wrap(err, "refusing to push an invalid catalog (use --force)")
		}

		if cfg.Store.DatabaseURL == "" {
			return eris.New("catalog push requires store.database_url")
		}
		pg, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, &db.PoolConfig{MaxConns: 2, MinConns: 1})
		if err != nil {
			return err
		}
		defer pg.Close() //nolint:errcheck
		if err := pg.Migrate(ctx); err != nil {
			return err
		}

		res, err := catalog.Push(ctx, pg.Pool(), snap)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), res)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Pushed %d publications, %d rules, %d rubrics, %d thresholds, %d slots.\n",
			res.Publications, res.Rules, res.Rubrics, res.Thresholds, res.Slots)
		return nil
	},
}

func init() {
	catalogPushCmd.Flags().Bool("force", false, "push even when validation reports errors")

	catalogCmd.AddCommand(catalogValidateCmd, catalogPushCmd)
	rootCmd.AddCommand(catalogCmd)
}
