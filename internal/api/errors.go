package api

import (
	"errors"
	"net/http"

	"github.com/org/docvault/internal/access"
	"github.com/org/docvault/internal/download"
	"github.com/org/docvault/internal/item"
	"github.com/org/docvault/internal/share"
	"github.com/org/docvault/internal/storage"
	"github.com/org/docvault/internal/upload"
	"github.com/rs/zerolog/log"
)

// writeServiceError maps service-layer sentinels to HTTP responses in one
// place so every handler reports the same error the same way. Unknown
// errors are logged and surfaced as an opaque 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var quotaErr *upload.QuotaError
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, storage.ErrAlreadyExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, access.ErrPermissionDenied),
		errors.Is(err, share.ErrNotOwner):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.As(err, &quotaErr):
		writeError(w, http.StatusRequestEntityTooLarge, quotaErr.Error())
	case errors.Is(err, item.ErrFolderNotEmpty):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, upload.ErrNotClean),
		errors.Is(err, download.ErrNotClean):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, share.ErrLinkExpired),
		errors.Is(err, share.ErrLinkExhausted):
		writeError(w, http.StatusGone, err.Error())
	case errors.Is(err, share.ErrPasswordRequired):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, item.ErrInvalidName),
		errors.Is(err, item.ErrInvalidKind),
		errors.Is(err, item.ErrInvalidMove),
		errors.Is(err, item.ErrNotDeleted),
		errors.Is(err, share.ErrSelfShare),
		errors.Is(err, share.ErrUnknownPrincipals),
		errors.Is(err, upload.ErrNotFile),
		errors.Is(err, download.ErrNotFile),
		errors.Is(err, upload.ErrInvalidScanStatus):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		log.Error().Err(err).
			Str("request_id", requestIDFromCtx(r.Context())).
			Str("path", r.URL.Path).
			Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
