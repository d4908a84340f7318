package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/org/docvault/internal/access"
	"github.com/org/docvault/internal/share"
	"github.com/org/docvault/internal/storage"
	"github.com/org/docvault/pkg/models"
)

// ShareHandler handles POST /v1/items/{id}/share
func (s *Server) ShareHandler(w http.ResponseWriter, r *http.Request) {
	principal := principalFromCtx(r.Context())

	var req struct {
		Principals  []string   `json:"principals"`
		Level       string     `json:"level"`
		ShareExpiry *time.Time `json:"shareExpiry"`
	}
	if err := decodeJSON(r, &req); err != nil || len(req.Principals) == 0 {
		writeError(w, http.StatusBadRequest, "principals required")
		return
	}
	level := models.AccessLevel(req.Level)
	if level != models.AccessRead && level != models.AccessWrite {
		writeError(w, http.StatusBadRequest, "level must be read or write")
		return
	}

	it, err := s.shares.ShareWithUsers(r.Context(), principal, chi.URLParam(r, "id"), share.Grant{
		Principals:  req.Principals,
		Level:       level,
		ShareExpiry: req.ShareExpiry,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": it})
}

// UnshareHandler handles DELETE /v1/items/{id}/share
func (s *Server) UnshareHandler(w http.ResponseWriter, r *http.Request) {
	principal := principalFromCtx(r.Context())

	var req struct {
		Principals []string `json:"principals"`
	}
	if err := decodeJSON(r, &req); err != nil || len(req.Principals) == 0 {
		writeError(w, http.StatusBadRequest, "principals required")
		return
	}

	it, err := s.shares.Unshare(r.Context(), principal, chi.URLParam(r, "id"), req.Principals)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": it})
}

// PermissionsHandler handles GET /v1/items/{id}/permissions. ACLs are
// visible to the owner only.
func (s *Server) PermissionsHandler(w http.ResponseWriter, r *http.Request) {
	principal := principalFromCtx(r.Context())

	dec, err := s.engine.Authorize(r.Context(), chi.URLParam(r, "id"), principal, access.LevelRead)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if !dec.Allowed {
		writeServiceError(w, r, storage.ErrNotFound)
		return
	}
	if dec.Level != models.AccessOwner {
		writeServiceError(w, r, access.ErrPermissionDenied)
		return
	}

	it := dec.Item
	writeJSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"sharedWith":  it.SharedWith,
			"canRead":     it.CanRead,
			"canWrite":    it.CanWrite,
			"shareExpiry": it.ShareExpiry,
		},
	})
}

// LinkCreateHandler handles POST /v1/items/{id}/links
func (s *Server) LinkCreateHandler(w http.ResponseWriter, r *http.Request) {
	principal := principalFromCtx(r.Context())

	var req struct {
		Password       string     `json:"password"`
		ExpiresAt      *time.Time `json:"expiresAt"`
		MaxAccessCount *int64     `json:"maxAccessCount"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	link, err := s.shares.CreateLink(r.Context(), principal, chi.URLParam(r, "id"), share.LinkSpec{
		Password:       req.Password,
		ExpiresAt:      req.ExpiresAt,
		MaxAccessCount: req.MaxAccessCount,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	shareLinksTotal.Inc()
	writeJSON(w, http.StatusCreated, map[string]any{"data": link})
}

// LinkListHandler handles GET /v1/items/{id}/links
func (s *Server) LinkListHandler(w http.ResponseWriter, r *http.Request) {
	principal := principalFromCtx(r.Context())

	links, err := s.shares.ListLinks(r.Context(), principal, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": links})
}

// LinkInfoHandler handles GET /v1/links/{linkID} (public). Exposes only
// what an anonymous holder needs to decide whether to redeem.
func (s *Server) LinkInfoHandler(w http.ResponseWriter, r *http.Request) {
	link, it, err := s.shares.LinkInfo(r.Context(), chi.URLParam(r, "linkID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"id":          link.ID,
			"hasPassword": link.HasPassword(),
			"expiresAt":   link.ExpiresAt,
			"item": map[string]any{
				"name":     it.Name,
				"kind":     it.Kind,
				"size":     it.Size,
				"mimeType": it.MimeType,
			},
		},
	})
}

// LinkAccessHandler handles POST /v1/links/{linkID}/access (public)
func (s *Server) LinkAccessHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	decodeJSON(r, &req) //nolint:errcheck

	it, url, err := s.shares.AccessLink(r.Context(), chi.URLParam(r, "linkID"), req.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"fileName":    it.Name,
			"mimeType":    it.MimeType,
			"size":        it.Size,
			"downloadUrl": url,
		},
	})
}

// ShareAnalyticsHandler handles GET /v1/share/analytics?days=. The report
// covers the caller's own items only.
func (s *Server) ShareAnalyticsHandler(w http.ResponseWriter, r *http.Request) {
	principal := principalFromCtx(r.Context())

	days := 30
	if d := r.URL.Query().Get("days"); d != "" {
		n, err := strconv.Atoi(d)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid days")
			return
		}
		days = n
	}

	analytics, err := s.shares.Analytics(r.Context(), principal, days)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": analytics})
}
