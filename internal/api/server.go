// Package api exposes the engine over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/content-router/internal/model"
	"github.com/sells-group/content-router/internal/store"
)

// ActorHeader carries the caller's identity for the status log. The engine
// trusts it; authentication happens upstream.
const ActorHeader = "X-Actor-ID"

// Engine is the set of operations the transport exposes.
type Engine interface {
	Intake(ctx context.Context, ideaID string, f model.Facts, actor string) (*model.IdeaRouting, error)
	PreviewRoute(ctx context.Context, f model.Facts) (*model.RoutingResult, error)
	CommitRoute(ctx context.Context, ideaID string, f model.Facts, actor string) (*model.IdeaRouting, *model.RoutingResult, error)
	ManualRoute(ctx context.Context, routingID, publicationSlug, audience, actor, reason string) (*model.IdeaRouting, error)
	PreviewScore(ctx context.Context, publicationSlug string, scores map[string]int) (*model.ScoreBreakdown, error)
	CommitScore(ctx context.Context, routingID string, scores map[string]int, actor string) (*model.IdeaRouting, *model.ScoreBreakdown, error)
	Override(ctx context.Context, routingID string, score float64, reason, actor string) (*model.IdeaRouting, error)
	Recommend(ctx context.Context, routingID string) (*model.SlotRecommendation, error)
	Schedule(ctx context.Context, routingID, date, slotID, actor string) (*model.IdeaRouting, error)
	AssignSlot(ctx context.Context, routingID, slotID, actor string) (*model.IdeaRouting, error)
	EnqueueEvergreen(ctx context.Context, routingID, publicationSlug, actor string) (*model.EvergreenEntry, bool, error)
	Evergreen(ctx context.Context, publicationSlug string) ([]model.EvergreenEntry, error)
	Routing(ctx context.Context, routingID string) (*model.IdeaRouting, error)
	Routings(ctx context.Context, filter store.RoutingFilter) ([]model.IdeaRouting, error)
	History(ctx context.Context, routingID string) ([]model.StatusChange, error)
	Kill(ctx context.Context, routingID, reason, actor string) (*model.IdeaRouting, error)
	Publish(ctx context.Context, routingID, actor string) (*model.IdeaRouting, error)
	BufferStatus(ctx context.Context) ([]model.BufferStatus, error)
	Alerts(ctx context.Context) ([]model.RoutingAlert, error)
	Dashboard(ctx context.Context) (*model.Dashboard, error)
}

// Server holds the HTTP handlers.
type Server struct {
	engine Engine
	log    *zap.Logger
}

// New creates a Server.
func New(e Engine) *Server {
	return &Server{
		engine: e,
		log:    zap.L().With(zap.String("component", "api")),
	}
}

// Handler builds the routed handler. corsOrigins empty disables CORS.
func (s *Server) Handler(corsOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLog)
	r.Use(middleware.Recoverer)
	if len(corsOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   corsOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Content-Type", ActorHeader},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/route/preview", s.previewRoute)
		r.Post("/score/preview", s.previewScore)
		r.Get("/dashboard", s.dashboard)
		r.Get("/buffers", s.buffers)
		r.Get("/alerts", s.alerts)
		r.Get("/evergreen/{publication}", s.evergreen)

		r.Get("/routings", s.listRoutings)
		r.Route("/routings/{id}", func(r chi.Router) {
			r.Get("/", s.getRouting)
			r.Get("/history", s.history)
			r.Get("/recommendation", s.recommend)

			r.Group(func(r chi.Router) {
				r.Use(requireActor)
				r.Post("/manual-route", s.manualRoute)
				r.Post("/score", s.commitScore)
				r.Post("/override", s.override)
				r.Post("/schedule", s.schedule)
				r.Post("/slot", s.assignSlot)
				r.Post("/evergreen", s.enqueueEvergreen)
				r.Post("/kill", s.kill)
				r.Post("/publish", s.publish)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(requireActor)
			r.Post("/ideas/{ideaID}/intake", s.intake)
			r.Post("/ideas/{ideaID}/route", s.commitRoute)
		})
	})
	return r
}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

type actorKey struct{}

// requireActor rejects mutating requests without an actor id.
func requireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := r.Header.Get(ActorHeader)
		if actor == "" {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: ActorHeader + " header is required", Kind: "validation"})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorKey{}, actor)))
	})
}

func actorFrom(ctx context.Context) string {
	actor, _ := ctx.Value(actorKey{}).(string)
	return actor
}

// ListenAndServe runs the server until ctx is done, then shuts it down.
func ListenAndServe(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
