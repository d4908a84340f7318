package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/org/docvault/internal/access"
	"github.com/org/docvault/internal/upload"
	"github.com/org/docvault/pkg/models"
)

// UploadRegisterHandler handles POST /v1/uploads
func (s *Server) UploadRegisterHandler(w http.ResponseWriter, r *http.Request) {
	principal := principalFromCtx(r.Context())

	var req struct {
		FileName  string  `json:"fileName"`
		MimeType  string  `json:"mimeType"`
		FileSize  int64   `json:"fileSize"`
		ParentID  *string `json:"parentId"`
		Encrypted bool    `json:"encrypted"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ticket, err := s.uploads.Register(r.Context(), principal, upload.Request{
		FileName:  req.FileName,
		MimeType:  req.MimeType,
		FileSize:  req.FileSize,
		ParentID:  req.ParentID,
		Encrypted: req.Encrypted,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	uploadsRegistered.Inc()
	writeJSON(w, http.StatusCreated, map[string]any{"data": ticket})
}

// ScanResultHandler handles POST /v1/uploads/{id}/scan-result. The caller
// is the scanning service, authenticated by shared secret.
func (s *Server) ScanResultHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id := chi.URLParam(r, "id")
	if err := s.uploads.SetScanResult(r.Context(), id, models.ScanStatus(req.Status)); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PromoteHandler handles POST /v1/uploads/{id}/promote. Requires write
// access on the item; promotion is idempotent.
func (s *Server) PromoteHandler(w http.ResponseWriter, r *http.Request) {
	principal := principalFromCtx(r.Context())
	id := chi.URLParam(r, "id")

	dec, err := s.engine.Authorize(r.Context(), id, principal, access.LevelWrite)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if !dec.Allowed {
		writeServiceError(w, r, access.ErrPermissionDenied)
		return
	}

	it, err := s.uploads.Promote(r.Context(), principal, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": it})
}
