package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"aichat-backend/internal/app"
	"aichat-backend/internal/transport/http/response"
)

type SuggestionHandler struct {
	suggestionService *app.SuggestionService
}

func NewSuggestionHandler(suggestionService *app.SuggestionService) *SuggestionHandler {
	return &SuggestionHandler{suggestionService: suggestionService}
}

// ListByDocument returns suggestions for a document the user owns.
func (h *SuggestionHandler) ListByDocument(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	documentID := strings.TrimSpace(c.Query("document_id"))
	if documentID == "" {
		response.Error(c, http.StatusNotFound, response.CodeDocumentNotFound, "document id is required")
		return
	}

	suggestions, err := h.suggestionService.ListByDocumentID(userID, documentID)
	if err != nil {
		writeDocumentError(c, err, "list suggestions failed")
		return
	}

	response.OK(c, suggestions)
}

// GetDocument returns one document the user owns.
func (h *SuggestionHandler) GetDocument(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	documentID := strings.TrimSpace(c.Param("id"))
	if documentID == "" {
		response.Error(c, http.StatusNotFound, response.CodeDocumentNotFound, "document id is required")
		return
	}

	doc, err := h.suggestionService.GetDocument(userID, documentID)
	if err != nil {
		writeDocumentError(c, err, "get document failed")
		return
	}

	response.OK(c, doc)
}

// ListDocuments returns the user's documents.
func (h *SuggestionHandler) ListDocuments(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	docs, err := h.suggestionService.ListDocuments(userID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list documents failed")
		return
	}
	response.OK(c, docs)
}

func writeDocumentError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, app.ErrInvalidInput):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	case errors.Is(err, app.ErrDocumentNotFound):
		response.Error(c, http.StatusNotFound, response.CodeDocumentNotFound, err.Error())
	case errors.Is(err, app.ErrNotDocumentOwner):
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "unauthorized")
	default:
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, fallback)
	}
}
