// Package intake reads candidate ideas from external sources and feeds them
// to the engine.
package intake

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/content-router/internal/apperr"
	"github.com/sells-group/content-router/internal/model"
)

// Idea is one candidate read from a source.
type Idea struct {
	ID    string      `json:"id"`
	Title string      `json:"title,omitempty"`
	Facts model.Facts `json:"facts"`
	Ref   string      `json:"ref,omitempty"` // source location: page id or sheet row
}

// Mode selects what Process does with each idea.
type Mode string

const (
	// ModeRoute routes each idea immediately.
	ModeRoute Mode = "route"
	// ModeIntake only records each idea in intake.
	ModeIntake Mode = "intake"
)

// Engine is the subset of the engine intake drives.
type Engine interface {
	Intake(ctx context.Context, ideaID string, f model.Facts, actor string) (*model.IdeaRouting, error)
	CommitRoute(ctx context.Context, ideaID string, f model.Facts, actor string) (*model.IdeaRouting, *model.RoutingResult, error)
}

// Outcome is the result of processing one idea.
type Outcome struct {
	Idea    Idea
	Routing *model.IdeaRouting
	Result  *model.RoutingResult
	Err     error
}

// Summary counts outcomes.
type Summary struct {
	Total       int `json:"total"`
	Routed      int `json:"routed"`
	NeedsReview int `json:"needs_review"`
	Killed      int `json:"killed"`
	Failed      int `json:"failed"`
}

// Summarize tallies outcomes by resulting status.
func Summarize(outcomes []Outcome) Summary {
	s := Summary{Total: len(outcomes)}
	for _, o := range outcomes {
		switch {
		case o.Err != nil:
			s.Failed++
		case o.Routing.Status == model.StatusKilled:
			s.Killed++
		case o.Routing.Status == model.StatusIntake:
			s.NeedsReview++
		default:
			s.Routed++
		}
	}
	return s
}

// DefaultConcurrency bounds in-flight engine calls.
const DefaultConcurrency = 4

// Process sends every idea to the engine with at most concurrency calls in
// flight. Per-idea failures are reported in the outcome, not returned. A
// repeated idea id within one batch fails as a validation error.
func Process(ctx context.Context, e Engine, ideas []Idea, mode Mode, actor string, concurrency int) []Outcome {
	log := zap.L().With(zap.String("component", "intake"))
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	outcomes := make([]Outcome, len(ideas))
	seen := make(map[string]int, len(ideas))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, idea := range ideas {
		outcomes[i].Idea = idea
		key := strings.TrimSpace(idea.ID)
		if first, dup := seen[key]; dup {
			outcomes[i].Err = apperr.Validation("intake.process", "idea %q repeats row %d", key, first+1)
			continue
		}
		seen[key] = i

		g.Go(func() error {
			o := &outcomes[i]
			switch mode {
			case ModeIntake:
				o.Routing, o.Err = e.Intake(gctx, key, idea.Facts, actor)
			default:
				o.Routing, o.Result, o.Err = e.CommitRoute(gctx, key, idea.Facts, actor)
			}
			if o.Err != nil {
				log.Warn("idea not processed",
					zap.String("idea_id", key),
					zap.String("ref", idea.Ref),
					zap.Error(o.Err),
				)
			}
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}
