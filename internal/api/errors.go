package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vthuan-dev/bufforder-sub001/internal/chat"
	"github.com/vthuan-dev/bufforder-sub001/internal/httperr"
	"github.com/vthuan-dev/bufforder-sub001/internal/storage"
	"github.com/vthuan-dev/bufforder-sub001/internal/store"
)

// writeError maps domain errors onto the structured error body. Unknown
// errors are logged and reported as internal.
func (h *ChatHandler) writeError(c *gin.Context, err error, notFound string) {
	_ = c.Error(err)

	switch {
	case errors.Is(err, store.ErrNotFound):
		if notFound == "" {
			notFound = "not found"
		}
		httperr.WriteNotFound(c, notFound)
	case errors.Is(err, chat.ErrEmptyMessage),
		errors.Is(err, chat.ErrThreadRequired),
		errors.Is(err, storage.ErrUnsupportedImage):
		httperr.WriteValidationError(c, err.Error())
	case errors.Is(err, chat.ErrThreadClosed):
		httperr.WriteConflict(c, err.Error())
	case errors.Is(err, store.ErrConflict):
		httperr.WriteConflict(c, "conflicting thread state")
	case errors.Is(err, storage.ErrUploadDisabled):
		httperr.WriteUploadDisabled(c)
	default:
		h.log.Error().Err(err).
			Str("path", c.FullPath()).
			Str("request_id", c.GetString("request_id")).
			Msg("request failed")
		httperr.Write(c, http.StatusInternalServerError, httperr.TypeInternal, "internal error")
	}
}
