// Package ledger writes routing state changes together with their audit
// rows in the status change log.
package ledger

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/content-router/internal/model"
	"github.com/sells-group/content-router/internal/resilience"
	"github.com/sells-group/content-router/internal/store"
)

// Ledger applies routing mutations and appends one status change row per
// transition. When the store is store.Transactional both writes share a
// transaction; otherwise the routing write is authoritative and the append
// is retried, then logged on failure without undoing the mutation.
type Ledger struct {
	store store.Store
	retry resilience.RetryConfig
	now   func() time.Time
	log   *zap.Logger
}

// New creates a Ledger over s. retry governs best-effort appends.
func New(s store.Store, retry resilience.RetryConfig) *Ledger {
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger("ledger", "append status change")
	}
	return &Ledger{
		store: s,
		retry: retry,
		now:   time.Now,
		log:   zap.L().With(zap.String("component", "ledger")),
	}
}

// SetClock replaces the clock used for stage timestamps and log rows.
func (l *Ledger) SetClock(now func() time.Time) {
	l.now = now
}

// Now returns the ledger clock in UTC.
func (l *Ledger) Now() time.Time {
	return l.now().UTC()
}

// Change describes who moved a routing and why.
type Change struct {
	From     model.Status
	Kind     model.ChangeKind
	Actor    string
	Reason   string
	Metadata map[string]any
}

func (l *Ledger) row(r *model.IdeaRouting, c Change) *model.StatusChange {
	kind := c.Kind
	if kind == "" {
		kind = model.ChangeAuto
	}
	return &model.StatusChange{
		IdeaRoutingID: r.ID,
		FromStatus:    c.From,
		ToStatus:      r.Status,
		Kind:          kind,
		ChangedBy:     c.Actor,
		Reason:        c.Reason,
		Metadata:      c.Metadata,
		CreatedAt:     l.Now(),
	}
}

// Create persists a new routing and its creation row. c.From is ignored.
func (l *Ledger) Create(ctx context.Context, r *model.IdeaRouting, c Change) error {
	if err := r.CheckInvariants(); err != nil {
		return err
	}
	c.From = ""
	if r.CreatedAt.IsZero() {
		r.CreatedAt = l.Now()
	}

	if tx, ok := l.store.(store.Transactional); ok {
		row := l.row(r, c)
		if err := tx.CreateWithChange(ctx, r, row); err != nil {
			return eris.Wrap(err, "ledger: create routing")
		}
		return nil
	}

	if err := l.store.CreateRouting(ctx, r); err != nil {
		return eris.Wrap(err, "ledger: create routing")
	}
	l.appendBestEffort(ctx, l.row(r, c))
	return nil
}

// Commit writes r if its stored version still equals expectedVersion and
// records the transition from c.From to r.Status. A version mismatch
// surfaces as a precondition error from the store.
func (l *Ledger) Commit(ctx context.Context, r *model.IdeaRouting, expectedVersion int, c Change) error {
	if err := r.CheckInvariants(); err != nil {
		return err
	}

	if tx, ok := l.store.(store.Transactional); ok {
		row := l.row(r, c)
		if err := tx.UpdateWithChange(ctx, r, expectedVersion, row); err != nil {
			return eris.Wrap(err, "ledger: commit routing")
		}
		return nil
	}

	if err := l.store.UpdateRouting(ctx, r, expectedVersion); err != nil {
		return eris.Wrap(err, "ledger: commit routing")
	}
	l.appendBestEffort(ctx, l.row(r, c))
	return nil
}

// Update writes r without a status transition, for changes to mutable
// fields such as the slot reference.
func (l *Ledger) Update(ctx context.Context, r *model.IdeaRouting, expectedVersion int) error {
	if err := r.CheckInvariants(); err != nil {
		return err
	}
	if err := l.store.UpdateRouting(ctx, r, expectedVersion); err != nil {
		return eris.Wrap(err, "ledger: update routing")
	}
	return nil
}

func (l *Ledger) appendBestEffort(ctx context.Context, row *model.StatusChange) {
	err := resilience.Do(ctx, l.retry, func(ctx context.Context) error {
		return l.store.AppendStatusChange(ctx, row)
	})
	if err != nil {
		l.log.Error("status change append failed; routing state kept",
			zap.String("routing_id", row.IdeaRoutingID),
			zap.String("from", string(row.FromStatus)),
			zap.String("to", string(row.ToStatus)),
			zap.String("kind", string(row.Kind)),
			zap.Error(err),
		)
	}
}

// History returns the routing's status changes, oldest first.
func (l *Ledger) History(ctx context.Context, routingID string) ([]model.StatusChange, error) {
	if _, err := l.store.GetRouting(ctx, routingID); err != nil {
		return nil, err
	}
	changes, err := l.store.ListStatusChanges(ctx, routingID)
	if err != nil {
		return nil, eris.Wrap(err, "ledger: list status changes")
	}
	return changes, nil
}
