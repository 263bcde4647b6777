package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"aichat-backend/internal/ai"
	"aichat-backend/internal/app"
	"aichat-backend/internal/transport/http/middleware"
	"aichat-backend/internal/transport/http/response"
)

type ChatHandler struct {
	chatService *app.ChatService
}

type StreamChatRequest struct {
	ID                string                `json:"id" binding:"required,max=36"`
	Messages          []app.IncomingMessage `json:"messages" binding:"required"`
	SelectedChatModel string                `json:"selected_chat_model"`
}

func NewChatHandler(chatService *app.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

// StreamChat submits a message and streams the assistant reply as SSE.
// Fragments are forwarded in generation order; any failure after streaming
// has begun surfaces as a single generic error event.
func (h *ChatHandler) StreamChat(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req StreamChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "stream not supported")
		return
	}

	streamed := false
	startStream := func() {
		if streamed {
			return
		}
		streamed = true
		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")
	}

	err := h.chatService.StreamChat(c.Request.Context(), app.StreamChatInput{
		UserID:       userID,
		ChatID:       req.ID,
		Messages:     req.Messages,
		ModelVariant: req.SelectedChatModel,
	}, func(event ai.StreamEvent) error {
		startStream()
		var payload string
		switch event.Type {
		case "text":
			payload = "data: " + sanitizeSSE(event.Text) + "\n\n"
		default:
			payload = "event: " + event.Type + "\ndata: " + sanitizeSSE(event.Text) + "\n\n"
		}
		if _, writeErr := c.Writer.WriteString(payload); writeErr != nil {
			return writeErr
		}
		flusher.Flush()
		return nil
	})
	if err != nil {
		if !streamed {
			switch {
			case errors.Is(err, app.ErrInvalidInput), errors.Is(err, app.ErrNoUserMessage):
				response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
			case errors.Is(err, app.ErrNotChatOwner):
				response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "unauthorized")
			default:
				response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "chat request failed")
			}
			return
		}
		// The stream is already open; never forward internal details.
		if _, writeErr := c.Writer.WriteString("event: error\ndata: Oops, an error occurred!\n\n"); writeErr == nil {
			flusher.Flush()
		}
		return
	}

	startStream()
	if _, writeErr := c.Writer.WriteString("event: done\ndata: [DONE]\n\n"); writeErr == nil {
		flusher.Flush()
	}
}

// DeleteChat deletes a chat by the id query parameter.
func (h *ChatHandler) DeleteChat(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	chatID := strings.TrimSpace(c.Query("id"))
	if chatID == "" {
		response.Error(c, http.StatusNotFound, response.CodeChatNotFound, "chat id is required")
		return
	}

	if err := h.chatService.DeleteChat(userID, chatID); err != nil {
		switch {
		case errors.Is(err, app.ErrChatNotFound):
			response.Error(c, http.StatusNotFound, response.CodeChatNotFound, err.Error())
		case errors.Is(err, app.ErrNotChatOwner):
			response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "unauthorized")
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "delete chat failed")
		}
		return
	}

	response.OK(c, gin.H{"deleted_chat_id": chatID})
}

// ListChats returns the authenticated user's chats.
func (h *ChatHandler) ListChats(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	chats, err := h.chatService.ListChats(userID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list chats failed")
		return
	}
	response.OK(c, chats)
}

// GetHistory returns persisted messages for one chat.
func (h *ChatHandler) GetHistory(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	chatID := strings.TrimSpace(c.Query("chat_id"))
	if chatID == "" {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid chat_id")
		return
	}

	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if parsed, parseErr := strconv.Atoi(raw); parseErr == nil {
			limit = parsed
		}
	}

	history, err := h.chatService.GetHistory(c.Request.Context(), userID, chatID, limit)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		case errors.Is(err, app.ErrChatNotFound):
			response.Error(c, http.StatusNotFound, response.CodeChatNotFound, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "get history failed")
		}
		return
	}

	response.OK(c, history)
}

func getUserIDFromContext(c *gin.Context) (uint, bool) {
	userIDAny, exists := c.Get(middleware.ContextUserIDKey)
	if !exists {
		return 0, false
	}
	userID, ok := userIDAny.(uint)
	return userID, ok
}

func sanitizeSSE(input string) string {
	replaced := strings.ReplaceAll(input, "\r\n", "\\n")
	replaced = strings.ReplaceAll(replaced, "\n", "\\n")
	return replaced
}
