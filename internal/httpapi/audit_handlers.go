package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"hrops.org/internal/access"
	"hrops.org/internal/audit"
)

type auditEntryResponse struct {
	ID         string         `json:"id"`
	Sequence   uint64         `json:"sequence"`
	ActorID    string         `json:"actor_id"`
	ActorRole  string         `json:"actor_role"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	BeforeData map[string]any `json:"before_data,omitempty"`
	AfterData  map[string]any `json:"after_data,omitempty"`
	IPAddress  string         `json:"ip_address,omitempty"`
	UserAgent  string         `json:"user_agent,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// handleAuditLogs pages through the trail. Reading it needs View on the
// audit_logs resource, which the seed matrix grants to Admin only.
func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, "GET")
		return
	}
	session, ok := sessionOrFail(w, r)
	if !ok {
		return
	}
	allowed, err := a.engine.HasPermission(r.Context(), session, access.ActionView, access.ResourceAuditLogs)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if !allowed {
		writeDomainError(w, access.ErrForbidden)
		return
	}

	filter, err := parseAuditFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	entries, last, err := a.auditLog.List(r.Context(), filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]auditEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, auditEntryResponse{
			ID:         e.ID,
			Sequence:   e.Sequence,
			ActorID:    e.ActorID,
			ActorRole:  string(e.ActorRole),
			Action:     e.Action,
			EntityType: e.EntityType,
			EntityID:   e.EntityID,
			BeforeData: e.BeforeData,
			AfterData:  e.AfterData,
			IPAddress:  e.IPAddress,
			UserAgent:  e.UserAgent,
			CreatedAt:  e.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items":    out,
		"last_seq": last,
	})
}

func parseAuditFilter(r *http.Request) (audit.Filter, error) {
	q := r.URL.Query()
	filter := audit.Filter{
		ActorID:    q.Get("actor_id"),
		Action:     q.Get("action"),
		EntityType: q.Get("entity_type"),
		EntityID:   q.Get("entity_id"),
	}
	if v := q.Get("after_seq"); v != "" {
		seq, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return audit.Filter{}, err
		}
		filter.AfterSeq = seq
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			return audit.Filter{}, err
		}
		filter.Limit = limit
	}
	if v := q.Get("from"); v != "" {
		from, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return audit.Filter{}, err
		}
		filter.From = from
	}
	if v := q.Get("to"); v != "" {
		to, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return audit.Filter{}, err
		}
		filter.To = to
	}
	return filter, nil
}
