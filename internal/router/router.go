// Package router decides which publication and audience an idea belongs to
// by evaluating the catalog's ordered routing rules against its facts.
package router

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/content-router/internal/apperr"
	"github.com/sells-group/content-router/internal/catalog"
	"github.com/sells-group/content-router/internal/condition"
	"github.com/sells-group/content-router/internal/ledger"
	"github.com/sells-group/content-router/internal/model"
	"github.com/sells-group/content-router/internal/store"
)

// Evaluate returns the result of the first rule whose condition holds for f.
// rules must already be in priority order. When nothing matches the result
// asks for manual routing.
func Evaluate(rules []model.RoutingRule, f model.Facts) model.RoutingResult {
	for _, rule := range rules {
		if !condition.Evaluate(rule.Condition.Condition, f) {
			continue
		}
		name := rule.Name
		if name == "" {
			name = rule.ID
		}
		return model.RoutingResult{
			Matched:         true,
			RuleID:          rule.ID,
			RuleName:        rule.Name,
			PublicationSlug: rule.PublicationSlug,
			Audience:        rule.Audience,
			Action:          rule.Action,
			Reason:          fmt.Sprintf("matched rule %s: %s", name, condition.Describe(rule.Condition.Condition)),
		}
	}
	return model.RoutingResult{
		Action: model.ActionManualReview,
		Reason: "no routing rule matched; needs manual routing",
	}
}

// Router applies routing decisions to idea routings.
type Router struct {
	catalog catalog.Provider
	store   store.Store
	ledger  *ledger.Ledger
	log     *zap.Logger
}

// New creates a Router.
func New(p catalog.Provider, s store.Store, l *ledger.Ledger) *Router {
	return &Router{
		catalog: p,
		store:   s,
		ledger:  l,
		log:     zap.L().With(zap.String("component", "router")),
	}
}

// rules returns the active rules that route somewhere usable. A rule
// pointing at an unknown or inactive publication is skipped and logged.
func (rt *Router) rules(snap *catalog.Snapshot) []model.RoutingRule {
	active := snap.ActiveRules()
	out := make([]model.RoutingRule, 0, len(active))
	for _, rule := range active {
		if rule.PublicationSlug != "" {
			if _, ok := snap.Publication(rule.PublicationSlug); !ok {
				rt.log.Error("routing rule targets unknown or inactive publication; rule skipped",
					zap.String("rule_id", rule.ID),
					zap.String("publication", rule.PublicationSlug),
				)
				continue
			}
		}
		out = append(out, rule)
	}
	return out
}

// Preview evaluates f without touching any routing.
func (rt *Router) Preview(ctx context.Context, f model.Facts) (*model.RoutingResult, error) {
	f, err := normalize(f)
	if err != nil {
		return nil, err
	}
	snap, err := rt.catalog.Snapshot(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "router: catalog")
	}
	res := Evaluate(rt.rules(snap), f)
	return &res, nil
}

// Intake opens a new routing attempt for ideaID in status intake. An idea
// may have only one open routing at a time.
func (rt *Router) Intake(ctx context.Context, ideaID string, f model.Facts, actor string) (*model.IdeaRouting, error) {
	if ideaID == "" {
		return nil, apperr.Validation("router.intake", "idea id is required")
	}
	f, err := normalize(f)
	if err != nil {
		return nil, err
	}
	open, err := rt.store.FindOpenRouting(ctx, ideaID)
	if err != nil {
		return nil, eris.Wrap(err, "router: find open routing")
	}
	if open != nil {
		return nil, apperr.Conflict("router.intake", "idea %s already has open routing %s in status %s", ideaID, open.ID, open.Status)
	}
	return rt.create(ctx, ideaID, f, actor)
}

func (rt *Router) create(ctx context.Context, ideaID string, f model.Facts, actor string) (*model.IdeaRouting, error) {
	r := &model.IdeaRouting{IdeaID: ideaID, Status: model.StatusIntake}
	if err := applyFacts(r, f); err != nil {
		return nil, err
	}
	if err := rt.ledger.Create(ctx, r, ledger.Change{Kind: model.ChangeAuto, Actor: actor, Reason: "intake"}); err != nil {
		return nil, err
	}
	rt.log.Info("idea taken in", zap.String("idea_id", ideaID), zap.String("routing_id", r.ID))
	return r, nil
}

// Commit routes the idea's current routing. A routing is created when the
// idea has none. The routing must be in intake; a killed, published or
// already routed idea is a precondition error.
func (rt *Router) Commit(ctx context.Context, ideaID string, f model.Facts, actor string) (*model.IdeaRouting, *model.RoutingResult, error) {
	if ideaID == "" {
		return nil, nil, apperr.Validation("router.commit", "idea id is required")
	}
	f, err := normalize(f)
	if err != nil {
		return nil, nil, err
	}
	snap, err := rt.catalog.Snapshot(ctx)
	if err != nil {
		return nil, nil, eris.Wrap(err, "router: catalog")
	}

	r, err := rt.current(ctx, ideaID)
	if err != nil {
		return nil, nil, err
	}
	if r == nil {
		if r, err = rt.create(ctx, ideaID, f, actor); err != nil {
			return nil, nil, err
		}
	}
	if r.Status != model.StatusIntake {
		return nil, nil, apperr.Precondition("router.commit", "routing %s of idea %s is %s, not intake", r.ID, ideaID, r.Status)
	}

	res := Evaluate(rt.rules(snap), f)
	expected := r.Version
	if err := applyFacts(r, f); err != nil {
		return nil, nil, err
	}
	r.RuleID = res.RuleID
	r.RecommendedAction = res.Action
	r.Audience = res.Audience
	r.RoutedTo = res.PublicationSlug

	change := ledger.Change{
		From:     model.StatusIntake,
		Kind:     model.ChangeAuto,
		Actor:    actor,
		Reason:   res.Reason,
		Metadata: map[string]any{"rule_id": res.RuleID, "action": string(res.Action)},
	}

	switch {
	case res.Action == model.ActionKill:
		r.Tier = model.TierKill
		r.Enter(model.StatusKilled, rt.ledger.Now())
		err = rt.ledger.Commit(ctx, r, expected, change)
	case res.PublicationSlug == "":
		// Stays in intake awaiting ManualRoute; nothing transitions.
		err = rt.ledger.Update(ctx, r, expected)
	default:
		r.Enter(model.StatusRouted, rt.ledger.Now())
		err = rt.ledger.Commit(ctx, r, expected, change)
	}
	if err != nil {
		return nil, nil, err
	}

	rt.log.Info("idea routed",
		zap.String("routing_id", r.ID),
		zap.String("rule_id", res.RuleID),
		zap.String("publication", res.PublicationSlug),
		zap.String("action", string(res.Action)),
		zap.String("status", string(r.Status)),
	)
	return r, &res, nil
}

// current returns the idea's open routing, else its latest closed one, else nil.
func (rt *Router) current(ctx context.Context, ideaID string) (*model.IdeaRouting, error) {
	open, err := rt.store.FindOpenRouting(ctx, ideaID)
	if err != nil {
		return nil, eris.Wrap(err, "router: find open routing")
	}
	if open != nil {
		return open, nil
	}
	latest, err := rt.store.ListRoutings(ctx, store.RoutingFilter{IdeaID: ideaID, Limit: 1})
	if err != nil {
		return nil, eris.Wrap(err, "router: list routings")
	}
	if len(latest) == 0 {
		return nil, nil
	}
	return &latest[0], nil
}

// ManualRoute sends an intake routing to publicationSlug by hand.
func (rt *Router) ManualRoute(ctx context.Context, routingID, publicationSlug, audience, actor, reason string) (*model.IdeaRouting, error) {
	snap, err := rt.catalog.Snapshot(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "router: catalog")
	}
	if _, ok := snap.Publication(publicationSlug); !ok {
		return nil, apperr.NotFound("router.manual_route", "publication %q not found", publicationSlug)
	}

	r, err := rt.store.GetRouting(ctx, routingID)
	if err != nil {
		return nil, err
	}
	if r.Status != model.StatusIntake {
		return nil, apperr.Precondition("router.manual_route", "routing %s is %s, not intake", r.ID, r.Status)
	}

	expected := r.Version
	r.RoutedTo = publicationSlug
	r.Audience = audience
	r.RuleID = ""
	r.RecommendedAction = model.ActionScore
	r.Enter(model.StatusRouted, rt.ledger.Now())

	if reason == "" {
		reason = "manually routed"
	}
	err = rt.ledger.Commit(ctx, r, expected, ledger.Change{
		From:     model.StatusIntake,
		Kind:     model.ChangeManual,
		Actor:    actor,
		Reason:   reason,
		Metadata: map[string]any{"publication": publicationSlug},
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

func normalize(f model.Facts) (model.Facts, error) {
	f = f.Normalize()
	if !f.TimeSensitivity.Valid() {
		return f, apperr.Validation("router.facts", "unknown time_sensitivity %q", f.TimeSensitivity)
	}
	if f.NewsWindow != "" {
		if _, err := model.ParseDate(f.NewsWindow); err != nil {
			return f, apperr.Validation("router.facts", "news_window %q is not YYYY-MM-DD", f.NewsWindow)
		}
	}
	return f, nil
}

// applyFacts snapshots f onto r.
func applyFacts(r *model.IdeaRouting, f model.Facts) error {
	r.Facts = f
	r.TimeSensitivity = f.TimeSensitivity
	r.NewsWindow = nil
	if f.NewsWindow != "" {
		d, err := model.ParseDate(f.NewsWindow)
		if err != nil {
			return apperr.Validation("router.facts", "news_window %q is not YYYY-MM-DD", f.NewsWindow)
		}
		r.NewsWindow = &d
	}
	return nil
}
