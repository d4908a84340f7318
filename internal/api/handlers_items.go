package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/org/docvault/pkg/models"
)

// ItemCreateHandler handles POST /v1/items
func (s *Server) ItemCreateHandler(w http.ResponseWriter, r *http.Request) {
	principal := principalFromCtx(r.Context())

	var req struct {
		Name        string   `json:"name"`
		Kind        string   `json:"kind"`
		ParentID    *string  `json:"parentId"`
		Description *string  `json:"description"`
		Tags        []string `json:"tags"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	it, err := s.items.Create(r.Context(), principal, req.Name, models.ItemKind(req.Kind), req.ParentID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if req.Description != nil || len(req.Tags) > 0 {
		it, err = s.items.UpdateMeta(r.Context(), principal, it.ID, nil, req.Description, req.Tags)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
	}

	writeJSON(w, http.StatusCreated, map[string]any{"data": it})
}

// ItemListHandler handles GET /v1/items?parentId=
func (s *Server) ItemListHandler(w http.ResponseWriter, r *http.Request) {
	principal := principalFromCtx(r.Context())

	var parentID *string
	if p := r.URL.Query().Get("parentId"); p != "" {
		parentID = &p
	}

	views, err := s.items.List(r.Context(), principal, parentID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": views})
}

// ItemGetHandler handles GET /v1/items/{id}
func (s *Server) ItemGetHandler(w http.ResponseWriter, r *http.Request) {
	principal := principalFromCtx(r.Context())

	view, err := s.items.Get(r.Context(), principal, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": view})
}

// ItemUpdateHandler handles PATCH /v1/items/{id}
func (s *Server) ItemUpdateHandler(w http.ResponseWriter, r *http.Request) {
	principal := principalFromCtx(r.Context())

	var req struct {
		Name        *string  `json:"name"`
		Description *string  `json:"description"`
		Tags        []string `json:"tags"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	it, err := s.items.UpdateMeta(r.Context(), principal, chi.URLParam(r, "id"), req.Name, req.Description, req.Tags)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": it})
}

// ItemMoveHandler handles POST /v1/items/{id}/move. A null or absent
// parentId moves the item to the root.
func (s *Server) ItemMoveHandler(w http.ResponseWriter, r *http.Request) {
	principal := principalFromCtx(r.Context())

	var req struct {
		ParentID *string `json:"parentId"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	it, err := s.items.Move(r.Context(), principal, chi.URLParam(r, "id"), req.ParentID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": it})
}

// ItemDeleteHandler handles DELETE /v1/items/{id}?permanent=
func (s *Server) ItemDeleteHandler(w http.ResponseWriter, r *http.Request) {
	principal := principalFromCtx(r.Context())
	permanent := r.URL.Query().Get("permanent") == "true"

	if err := s.items.Delete(r.Context(), principal, chi.URLParam(r, "id"), permanent); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ItemRestoreHandler handles POST /v1/items/{id}/restore
func (s *Server) ItemRestoreHandler(w http.ResponseWriter, r *http.Request) {
	principal := principalFromCtx(r.Context())

	it, err := s.items.Restore(r.Context(), principal, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": it})
}
