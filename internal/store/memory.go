package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sells-group/content-router/internal/model"
)

// MemoryStore implements Store in process memory. It is used for tests and
// the memory driver; contents are lost on exit.
type MemoryStore struct {
	mu        sync.RWMutex
	routings  map[string]*model.IdeaRouting
	changes   []model.StatusChange
	evergreen []model.EvergreenEntry
}

// NewMemory creates an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{routings: make(map[string]*model.IdeaRouting)}
}

func (s *MemoryStore) Migrate(context.Context) error { return nil }
func (s *MemoryStore) Close() error                  { return nil }

func (s *MemoryStore) CreateRouting(_ context.Context, r *model.IdeaRouting) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prepareCreate(r)
	s.routings[r.ID] = cloneRouting(r)
	return nil
}

func (s *MemoryStore) GetRouting(_ context.Context, id string) (*model.IdeaRouting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.routings[id]
	if !ok {
		return nil, notFound("store.get_routing", id)
	}
	return cloneRouting(r), nil
}

func (s *MemoryStore) UpdateRouting(_ context.Context, r *model.IdeaRouting, expectedVersion int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	const op = "store.update_routing"
	cur, ok := s.routings[r.ID]
	if !ok {
		return notFound(op, r.ID)
	}
	if cur.Version != expectedVersion {
		return versionMismatch(op, r.ID, expectedVersion)
	}
	if occupies(r.Status) && r.CalendarDate != nil {
		key := dateKey(*r.CalendarDate)
		for id, other := range s.routings {
			if id != r.ID && other.RoutedTo == r.RoutedTo && occupies(other.Status) &&
				other.CalendarDate != nil && dateKey(*other.CalendarDate) == key {
				return dateTaken(op, r)
			}
		}
	}

	r.Version = expectedVersion + 1
	r.UpdatedAt = time.Now().UTC()
	s.routings[r.ID] = cloneRouting(r)
	return nil
}

func (s *MemoryStore) FindOpenRouting(_ context.Context, ideaID string) (*model.IdeaRouting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *model.IdeaRouting
	for _, r := range s.routings {
		if r.IdeaID != ideaID || r.Status.IsTerminal() {
			continue
		}
		if found == nil || r.CreatedAt.After(found.CreatedAt) {
			found = r
		}
	}
	return cloneRouting(found), nil
}

func (s *MemoryStore) ListRoutings(_ context.Context, filter RoutingFilter) ([]model.IdeaRouting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.IdeaRouting
	for _, r := range s.routings {
		if matchesFilter(r, filter) {
			out = append(out, *cloneRouting(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func matchesFilter(r *model.IdeaRouting, f RoutingFilter) bool {
	if len(f.Statuses) > 0 {
		ok := false
		for _, st := range f.Statuses {
			if r.Status == st {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if f.PublicationSlug != "" && r.RoutedTo != f.PublicationSlug {
		return false
	}
	if f.IdeaID != "" && r.IdeaID != f.IdeaID {
		return false
	}
	if f.Tier != "" && r.Tier != f.Tier {
		return false
	}
	if f.TimeSensitivity != "" && r.TimeSensitivity != f.TimeSensitivity {
		return false
	}
	if f.DateFrom != nil || f.DateTo != nil {
		if r.CalendarDate == nil {
			return false
		}
		if f.DateFrom != nil && r.CalendarDate.Before(*f.DateFrom) {
			return false
		}
		if f.DateTo != nil && !r.CalendarDate.Before(*f.DateTo) {
			return false
		}
	}
	return true
}

func (s *MemoryStore) OccupiedDates(_ context.Context, publicationSlug string, from, to time.Time) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]string)
	for _, r := range s.routings {
		if r.RoutedTo != publicationSlug || !occupies(r.Status) || r.CalendarDate == nil {
			continue
		}
		d := *r.CalendarDate
		if d.Before(from) || !d.Before(to) {
			continue
		}
		out[dateKey(d)] = r.ID
	}
	return out, nil
}

func (s *MemoryStore) StatusCounts(context.Context) (map[model.Status]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[model.Status]int)
	for _, r := range s.routings {
		out[r.Status]++
	}
	return out, nil
}

func (s *MemoryStore) TierCounts(context.Context) (map[model.Tier]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[model.Tier]int)
	for _, r := range s.routings {
		if r.Tier != "" {
			out[r.Tier]++
		}
	}
	return out, nil
}

func (s *MemoryStore) QueueCounts(context.Context) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]int)
	for _, r := range s.routings {
		if r.RoutedTo != "" && r.IsOpen() {
			out[r.RoutedTo]++
		}
	}
	return out, nil
}

func (s *MemoryStore) AppendStatusChange(_ context.Context, c *model.StatusChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prepareChange(c)
	s.changes = append(s.changes, *c)
	return nil
}

func (s *MemoryStore) ListStatusChanges(_ context.Context, routingID string) ([]model.StatusChange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.StatusChange
	for _, c := range s.changes {
		if c.IdeaRoutingID == routingID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *MemoryStore) EnqueueEvergreen(_ context.Context, e *model.EvergreenEntry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.evergreen {
		if existing.PublicationSlug == e.PublicationSlug && existing.IdeaRoutingID == e.IdeaRoutingID {
			*e = existing
			return false, nil
		}
	}
	prepareEntry(e)
	s.evergreen = append(s.evergreen, *e)
	return true, nil
}

func (s *MemoryStore) ListEvergreen(_ context.Context, publicationSlug string) ([]model.EvergreenEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.EvergreenEntry
	for _, e := range s.evergreen {
		if publicationSlug == "" || e.PublicationSlug == publicationSlug {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].EnqueuedAt.Before(out[j].EnqueuedAt)
	})
	return out, nil
}

func (s *MemoryStore) RemoveEvergreen(_ context.Context, routingID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.evergreen[:0]
	removed := 0
	for _, e := range s.evergreen {
		if e.IdeaRoutingID == routingID {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	s.evergreen = kept
	return removed, nil
}

func (s *MemoryStore) EvergreenCounts(context.Context) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]int)
	for _, e := range s.evergreen {
		out[e.PublicationSlug]++
	}
	return out, nil
}
