package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// DownloadURLHandler handles GET /v1/items/{id}/download-url
func (s *Server) DownloadURLHandler(w http.ResponseWriter, r *http.Request) {
	principal := principalFromCtx(r.Context())

	url, err := s.downloads.GetURL(r.Context(), principal, chi.URLParam(r, "id"), "")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	downloadURLsIssued.Inc()
	writeJSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{"downloadUrl": url},
	})
}

// LegacyDownloadURLHandler handles GET /v1/download-url?storagePath=,
// the pre-ID addressing scheme. Paths resolve only inside the caller's
// own tree.
func (s *Server) LegacyDownloadURLHandler(w http.ResponseWriter, r *http.Request) {
	principal := principalFromCtx(r.Context())

	storagePath := r.URL.Query().Get("storagePath")
	if storagePath == "" {
		writeError(w, http.StatusBadRequest, "storagePath required")
		return
	}

	url, err := s.downloads.GetURL(r.Context(), principal, "", storagePath)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	downloadURLsIssued.Inc()
	writeJSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{"downloadUrl": url},
	})
}
