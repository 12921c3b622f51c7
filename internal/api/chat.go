package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vthuan-dev/bufforder-sub001/internal/chat"
	"github.com/vthuan-dev/bufforder-sub001/internal/httperr"
	"github.com/vthuan-dev/bufforder-sub001/internal/middleware"
	"github.com/vthuan-dev/bufforder-sub001/internal/storage"
)

// ChatHandler serves both the end-user and the staff chat endpoints. The
// caller's role comes from whichever auth middleware guards the route.
type ChatHandler struct {
	chat      *chat.Service
	images    storage.ImageStore
	maxUpload int64
	log       zerolog.Logger
}

func NewChatHandler(svc *chat.Service, images storage.ImageStore, maxUpload int64, log zerolog.Logger) *ChatHandler {
	return &ChatHandler{
		chat:      svc,
		images:    images,
		maxUpload: maxUpload,
		log:       log.With().Str("component", "chat-api").Logger(),
	}
}

// pageFromQuery reads ?page and ?limit; missing or malformed values fall
// back to the defaults.
func (h *ChatHandler) pageFromQuery(c *gin.Context) (pageNum, limit int, ok bool) {
	pageNum, limit = 1, 0
	if v := c.Query("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			httperr.WriteValidationError(c, "page must be a positive integer")
			return 0, 0, false
		}
		pageNum = n
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			httperr.WriteValidationError(c, "limit must be a positive integer")
			return 0, 0, false
		}
		limit = n
	}
	return pageNum, limit, true
}

// OpenThread handles POST /chat/thread.
func (h *ChatHandler) OpenThread(c *gin.Context) {
	id, _ := middleware.GetIdentity(c)

	thread, err := h.chat.OpenThread(c.Request.Context(), id.ID, c.ClientIP())
	if err != nil {
		h.writeError(c, err, "thread not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"thread": thread, "threadId": thread.ID})
}

// ListMessages returns a page of history as the caller's audience sees it.
func (h *ChatHandler) ListMessages(c *gin.Context) {
	id, _ := middleware.GetIdentity(c)
	pageNum, limit, ok := h.pageFromQuery(c)
	if !ok {
		return
	}

	page, err := h.chat.ListMessages(c.Request.Context(), id, c.Param("id"), h.chat.Page(pageNum, limit))
	if err != nil {
		h.writeError(c, err, "thread not found")
		return
	}
	c.JSON(http.StatusOK, page)
}

// SendMessage is the non-realtime fallback for posting a text message.
func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req struct {
		Text string `json:"text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		httperr.WriteValidationError(c, "invalid request body")
		return
	}

	id, _ := middleware.GetIdentity(c)
	msg, _, err := h.chat.Send(c.Request.Context(), id, chat.SendInput{
		ThreadID:  c.Param("id"),
		Text:      req.Text,
		Transport: chat.TransportREST,
	})
	if err != nil {
		h.writeError(c, err, "thread not found")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

// ListThreads is the staff inbox.
func (h *ChatHandler) ListThreads(c *gin.Context) {
	pageNum, limit, ok := h.pageFromQuery(c)
	if !ok {
		return
	}

	list, err := h.chat.ListThreads(c.Request.Context(), strings.TrimSpace(c.Query("search")), h.chat.Page(pageNum, limit))
	if err != nil {
		h.writeError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *ChatHandler) MarkRead(c *gin.Context) {
	thread, err := h.chat.MarkReadByStaff(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err, "thread not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"thread": thread})
}

func (h *ChatHandler) CloseThread(c *gin.Context) {
	thread, err := h.chat.CloseThread(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err, "thread not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"thread": thread})
}

func (h *ChatHandler) HideHistory(c *gin.Context) {
	hidden, err := h.chat.HideHistoryForStaff(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err, "thread not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"hidden": hidden})
}

func (h *ChatHandler) DeleteThread(c *gin.Context) {
	if err := h.chat.DeleteThread(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, err, "thread not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true, "threadId": c.Param("id")})
}

func (h *ChatHandler) LookupUserByPhone(c *gin.Context) {
	user, err := h.chat.LookupUserByPhone(c.Request.Context(), c.Param("phone"))
	if err != nil {
		h.writeError(c, err, "user not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}
