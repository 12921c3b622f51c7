package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vthuan-dev/bufforder-sub001/internal/chat"
	"github.com/vthuan-dev/bufforder-sub001/internal/httperr"
	"github.com/vthuan-dev/bufforder-sub001/internal/middleware"
	"github.com/vthuan-dev/bufforder-sub001/internal/storage"
)

// multipartOverhead leaves room for the form fields around the image part.
const multipartOverhead = 64 * 1024

// UploadImage handles the multipart "image" upload (plus optional "text")
// for both end-users and staff, then posts it as a message.
func (h *ChatHandler) UploadImage(c *gin.Context) {
	if !h.images.Enabled() {
		httperr.WriteUploadDisabled(c)
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload+multipartOverhead)
	file, header, err := c.Request.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httperr.WriteValidationError(c, fmt.Sprintf("image exceeds %d bytes", h.maxUpload))
			return
		}
		httperr.WriteValidationError(c, "no image provided")
		return
	}
	defer file.Close()

	if header.Size > h.maxUpload {
		httperr.WriteValidationError(c, fmt.Sprintf("image exceeds %d bytes", h.maxUpload))
		return
	}
	data, err := io.ReadAll(io.LimitReader(file, h.maxUpload+1))
	if err != nil {
		httperr.WriteValidationError(c, "failed to read image")
		return
	}
	if int64(len(data)) > h.maxUpload {
		httperr.WriteValidationError(c, fmt.Sprintf("image exceeds %d bytes", h.maxUpload))
		return
	}

	contentType, ext, err := storage.DetectImage(data)
	if err != nil {
		h.writeError(c, err, "")
		return
	}

	ctx := c.Request.Context()
	id, _ := middleware.GetIdentity(c)
	if _, err := h.chat.AuthorizeThread(ctx, id, c.Param("id")); err != nil {
		h.writeError(c, err, "thread not found")
		return
	}

	url, err := h.images.Save(ctx, data, contentType, ext)
	if err != nil {
		h.writeError(c, err, "")
		return
	}

	msg, _, err := h.chat.Send(ctx, id, chat.SendInput{
		ThreadID:  c.Param("id"),
		Text:      c.PostForm("text"),
		ImageURL:  &url,
		Transport: chat.TransportREST,
	})
	if err != nil {
		h.discardImage(url)
		h.writeError(c, err, "thread not found")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

// discardImage removes an image whose message could not be stored.
func (h *ChatHandler) discardImage(url string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := h.images.Delete(ctx, url); err != nil {
		h.log.Warn().Err(err).Str("url", url).Msg("failed to discard orphaned image")
	}
}
