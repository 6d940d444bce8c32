package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"persona-gateway/internal/application"
	"persona-gateway/internal/domain"
	"persona-gateway/internal/logger"

	"github.com/gin-gonic/gin"
)

type Info struct {
	Name    string
	Version string
}

type Handler struct {
	chat *application.ChatService
	info Info
}

func NewHandler(chat *application.ChatService, info Info) *Handler {
	return &Handler{chat: chat, info: info}
}

// statusFor maps the error taxonomy onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrArchiveDisabled):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrUpstreamTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "path", c.FullPath(), "status", status, "error", err)
	} else {
		logger.Warn("request rejected", "path", c.FullPath(), "status", status, "error", err)
	}
	c.AbortWithStatusJSON(status, errorResponse{Detail: err.Error()})
}

func (h *Handler) bindChat(c *gin.Context) (application.ChatRequest, bool) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, fmt.Errorf("%w: %v", domain.ErrValidation, err))
		return application.ChatRequest{}, false
	}
	return application.ChatRequest{
		Message:      req.Message,
		SystemPrompt: req.SystemPrompt,
		CharacterID:  req.CharacterID,
		Memory:       req.Memory,
		History:      toMessages(req.ConversationHistory),
		Temperature:  req.Temperature,
		MaxTokens:    req.MaxTokens,
		Model:        req.Model,
	}, true
}

func (h *Handler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":    h.info.Name,
		"version": h.info.Version,
		"status":  "online",
		"engine":  h.chat.EngineName(),
	})
}

func (h *Handler) Health(c *gin.Context) {
	report := h.chat.Health(c.Request.Context())
	models := report.AvailableModels
	if models == nil {
		models = []string{}
	}
	c.JSON(http.StatusOK, healthResponse{
		Status:            report.Status,
		Engine:            report.Engine,
		Model:             report.Model,
		UpstreamConnected: report.Connected,
		AvailableModels:   models,
		Error:             report.Error,
	})
}

func (h *Handler) Chat(c *gin.Context) {
	req, ok := h.bindChat(c)
	if !ok {
		return
	}
	res, err := h.chat.Chat(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, chatResponse{
		Response:    res.Response,
		CharacterID: res.CharacterID,
		ModelUsed:   res.Model,
		Timestamp:   res.Timestamp,
	})
}

// ChatStream answers with server-sent events. Invalid requests get a plain
// 400; once the stream is open every failure is a terminal error event.
func (h *Handler) ChatStream(c *gin.Context) {
	req, ok := h.bindChat(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	deltas, err := h.chat.ChatStream(ctx, req)
	if errors.Is(err, domain.ErrValidation) {
		writeError(c, err)
		return
	}

	startEventStream(c)
	if err != nil {
		logger.Error("stream failed to start", "error", err)
		_ = writeEvent(c, domain.StreamDelta{Error: err.Error()})
		return
	}

	for d := range deltas {
		if err := writeEvent(c, d); err != nil {
			logger.Debug("client went away mid-stream", "error", err)
			return
		}
	}
}

func (h *Handler) GetContext(c *gin.Context) {
	id := c.Param("id")
	rec, err := h.chat.GetContext(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	conversations := rec.Exchanges
	if conversations == nil {
		conversations = []domain.Exchange{}
	}
	c.JSON(http.StatusOK, contextResponse{
		CharacterID:       id,
		ConversationCount: len(conversations),
		Conversations:     conversations,
		Context:           rec.Context,
	})
}

func (h *Handler) DeleteContext(c *gin.Context) {
	id := c.Param("id")
	deleted, err := h.chat.DeleteContext(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	msg := "No context found"
	if deleted {
		msg = "Context cleared for " + id
	}
	c.JSON(http.StatusOK, gin.H{"message": msg, "character_id": id, "deleted": deleted})
}

func (h *Handler) SaveContext(c *gin.Context) {
	var req saveContextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, fmt.Errorf("%w: %v", domain.ErrValidation, err))
		return
	}
	saved := domain.SavedContext{
		SystemPrompt: req.SystemPrompt,
		Memory:       req.Memory,
		History:      toMessages(req.ConversationHistory),
	}
	if err := h.chat.SaveContext(c.Request.Context(), req.CharacterID, saved); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Context saved successfully", "character_id": req.CharacterID})
}

func (h *Handler) Models(c *gin.Context) {
	models, err := h.chat.Models(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, errorResponse{Detail: "Cannot fetch models: " + err.Error()})
		return
	}
	if models == nil {
		models = []domain.ModelInfo{}
	}
	c.JSON(http.StatusOK, gin.H{"models": models})
}

func (h *Handler) Archive(c *gin.Context) {
	id := c.Param("id")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	limit, offset = application.ArchiveWindow(limit, offset)

	exchanges, err := h.chat.Archive(c.Request.Context(), id, limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}
	if exchanges == nil {
		exchanges = []*domain.ArchivedExchange{}
	}
	c.JSON(http.StatusOK, archiveResponse{CharacterID: id, Limit: limit, Offset: offset, Exchanges: exchanges})
}
