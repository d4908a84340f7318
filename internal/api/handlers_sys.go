package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/org/docvault/internal/storage"
)

// HealthHandler handles GET /v1/sys/health and refreshes the item and
// share-link gauges as a side effect.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if n, err := s.store.CountItems(r.Context()); err == nil {
		itemsTotal.Set(float64(n))
	}
	if n, err := s.store.CountShareLinks(r.Context()); err == nil {
		shareLinksTotal.Set(float64(n))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC(),
	})
}

// RegisterHandler handles POST /v1/auth/register
func (s *Server) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID          string `json:"id"`
		DisplayName string `json:"displayName"`
		Email       string `json:"email"`
	}
	if err := decodeJSON(r, &req); err != nil || req.DisplayName == "" {
		writeError(w, http.StatusBadRequest, "displayName required")
		return
	}

	p, token, err := s.tokens.Register(r.Context(), req.ID, req.DisplayName, req.Email)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"data": map[string]any{
			"principal": p,
			"token":     token,
		},
	})
}

// TokenMintHandler handles POST /v1/auth/token: mints a fresh token for
// the authenticated principal.
func (s *Server) TokenMintHandler(w http.ResponseWriter, r *http.Request) {
	principal := principalFromCtx(r.Context())

	token, err := s.tokens.MintToken(r.Context(), principal)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"data": map[string]any{"token": token},
	})
}

// AuditLogHandler handles GET /v1/sys/audit-log. Queries are scoped to
// the caller's own actions.
func (s *Server) AuditLogHandler(w http.ResponseWriter, r *http.Request) {
	principal := principalFromCtx(r.Context())
	q := r.URL.Query()

	filter := auditFilterFromQuery(q.Get("action"), q.Get("since"), q.Get("until"), q.Get("limit"), q.Get("offset"))
	filter.ActorID = principal

	entries, err := s.auditor.Query(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": entries})
}

func auditFilterFromQuery(action, since, until, limit, offset string) (f storage.AuditFilter) {
	f.Action = action
	if t, err := time.Parse(time.RFC3339, since); err == nil {
		f.Since = &t
	}
	if t, err := time.Parse(time.RFC3339, until); err == nil {
		f.Until = &t
	}
	if n, err := strconv.Atoi(limit); err == nil && n > 0 {
		f.Limit = n
	}
	if n, err := strconv.Atoi(offset); err == nil && n > 0 {
		f.Offset = n
	}
	return f
}
