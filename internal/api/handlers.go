package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sells-group/content-router/internal/apperr"
	"github.com/sells-group/content-router/internal/model"
	"github.com/sells-group/content-router/internal/store"
)

type routeResponse struct {
	Routing *model.IdeaRouting   `json:"routing"`
	Result  *model.RoutingResult `json:"result"`
}

type scoreRequest struct {
	Publication string         `json:"publication,omitempty"`
	Scores      map[string]int `json:"scores"`
}

type scoreResponse struct {
	Routing   *model.IdeaRouting    `json:"routing"`
	Breakdown *model.ScoreBreakdown `json:"breakdown"`
	Tier      model.Tier            `json:"tier"`
}

type overrideRequest struct {
	Score  *float64 `json:"score"`
	Reason string   `json:"reason"`
}

type manualRouteRequest struct {
	Publication string `json:"publication"`
	Audience    string `json:"audience"`
	Reason      string `json:"reason"`
}

type scheduleRequest struct {
	Date   string `json:"date"`
	SlotID string `json:"slot_id,omitempty"`
}

type slotRequest struct {
	SlotID string `json:"slot_id"`
}

type evergreenRequest struct {
	Publication string `json:"publication,omitempty"`
}

type evergreenResponse struct {
	Entry   *model.EvergreenEntry `json:"entry"`
	Created bool                  `json:"created"`
}

type reasonRequest struct {
	Reason string `json:"reason,omitempty"`
}

func (s *Server) previewRoute(w http.ResponseWriter, r *http.Request) {
	var f model.Facts
	if err := decode(r, &f); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.engine.PreviewRoute(r.Context(), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) intake(w http.ResponseWriter, r *http.Request) {
	var f model.Facts
	if err := decode(r, &f); err != nil {
		s.writeError(w, r, err)
		return
	}
	routing, err := s.engine.Intake(r.Context(), chi.URLParam(r, "ideaID"), f, actorFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, routing)
}

func (s *Server) commitRoute(w http.ResponseWriter, r *http.Request) {
	var f model.Facts
	if err := decode(r, &f); err != nil {
		s.writeError(w, r, err)
		return
	}
	routing, res, err := s.engine.CommitRoute(r.Context(), chi.URLParam(r, "ideaID"), f, actorFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, routeResponse{Routing: routing, Result: res})
}

func (s *Server) manualRoute(w http.ResponseWriter, r *http.Request) {
	var req manualRouteRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	routing, err := s.engine.ManualRoute(r.Context(), chi.URLParam(r, "id"), req.Publication, req.Audience, actorFrom(r.Context()), req.Reason)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, routing)
}

func (s *Server) previewScore(w http.ResponseWriter, r *http.Request) {
	var req scoreRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	b, err := s.engine.PreviewScore(r.Context(), req.Publication, req.Scores)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) commitScore(w http.ResponseWriter, r *http.Request) {
	var req scoreRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	routing, b, err := s.engine.CommitScore(r.Context(), chi.URLParam(r, "id"), req.Scores, actorFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, scoreResponse{Routing: routing, Breakdown: b, Tier: b.Tier})
}

func (s *Server) override(w http.ResponseWriter, r *http.Request) {
	var req overrideRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Score == nil {
		s.writeError(w, r, apperr.Validation("api.override", "score is required"))
		return
	}
	routing, err := s.engine.Override(r.Context(), chi.URLParam(r, "id"), *req.Score, req.Reason, actorFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, routing)
}

func (s *Server) recommend(w http.ResponseWriter, r *http.Request) {
	rec, err := s.engine.Recommend(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if rec == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) schedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	routing, err := s.engine.Schedule(r.Context(), chi.URLParam(r, "id"), req.Date, req.SlotID, actorFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, routing)
}

func (s *Server) assignSlot(w http.ResponseWriter, r *http.Request) {
	var req slotRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	routing, err := s.engine.AssignSlot(r.Context(), chi.URLParam(r, "id"), req.SlotID, actorFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, routing)
}

func (s *Server) enqueueEvergreen(w http.ResponseWriter, r *http.Request) {
	var req evergreenRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	entry, created, err := s.engine.EnqueueEvergreen(r.Context(), chi.URLParam(r, "id"), req.Publication, actorFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, evergreenResponse{Entry: entry, Created: created})
}

func (s *Server) evergreen(w http.ResponseWriter, r *http.Request) {
	entries, err := s.engine.Evergreen(r.Context(), chi.URLParam(r, "publication"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []model.EvergreenEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) kill(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	routing, err := s.engine.Kill(r.Context(), chi.URLParam(r, "id"), req.Reason, actorFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, routing)
}

func (s *Server) publish(w http.ResponseWriter, r *http.Request) {
	routing, err := s.engine.Publish(r.Context(), chi.URLParam(r, "id"), actorFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, routing)
}

func (s *Server) getRouting(w http.ResponseWriter, r *http.Request) {
	routing, err := s.engine.Routing(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, routing)
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	changes, err := s.engine.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if changes == nil {
		changes = []model.StatusChange{}
	}
	writeJSON(w, http.StatusOK, changes)
}

func (s *Server) listRoutings(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	routings, err := s.engine.Routings(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if routings == nil {
		routings = []model.IdeaRouting{}
	}
	writeJSON(w, http.StatusOK, routings)
}

// parseFilter reads list filters from the query string. status may repeat.
func parseFilter(r *http.Request) (store.RoutingFilter, error) {
	const op = "api.list_routings"
	q := r.URL.Query()
	f := store.RoutingFilter{
		PublicationSlug: q.Get("publication"),
		IdeaID:          q.Get("idea_id"),
		Tier:            model.Tier(q.Get("tier")),
		TimeSensitivity: model.TimeSensitivity(q.Get("time_sensitivity")),
	}
	for _, raw := range q["status"] {
		st := model.Status(raw)
		if !st.Valid() {
			return f, apperr.Validation(op, "unknown status %q", raw)
		}
		f.Statuses = append(f.Statuses, st)
	}
	if f.Tier != "" && !f.Tier.Valid() {
		return f, apperr.Validation(op, "unknown tier %q", f.Tier)
	}
	if v := q.Get("from"); v != "" {
		d, err := model.ParseDate(v)
		if err != nil {
			return f, apperr.Validation(op, "from %q is not YYYY-MM-DD", v)
		}
		f.DateFrom = &d
	}
	if v := q.Get("to"); v != "" {
		d, err := model.ParseDate(v)
		if err != nil {
			return f, apperr.Validation(op, "to %q is not YYYY-MM-DD", v)
		}
		f.DateTo = &d
	}
	for name, dst := range map[string]*int{"limit": &f.Limit, "offset": &f.Offset} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, apperr.Validation(op, "%s %q is not a non-negative integer", name, v)
		}
		*dst = n
	}
	return f, nil
}

func (s *Server) dashboard(w http.ResponseWriter, r *http.Request) {
	d, err := s.engine.Dashboard(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) buffers(w http.ResponseWriter, r *http.Request) {
	b, err := s.engine.BufferStatus(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) alerts(w http.ResponseWriter, r *http.Request) {
	a, err := s.engine.Alerts(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if a == nil {
		a = []model.RoutingAlert{}
	}
	writeJSON(w, http.StatusOK, a)
}
