package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"aichat-backend/internal/ai"
	"aichat-backend/internal/model"
	"aichat-backend/internal/repository"
)

const suggestionsPrompt = `You are a helpful writing assistant. Given a document, propose improvements as a JSON array. Each element must have the fields "original_text", "suggested_text" and "description". Return only the JSON array, nothing else.

Document:
%s`

// RequestSuggestionsTool asks the model for edit suggestions on a document
// and persists them for later review.
type RequestSuggestionsTool struct {
	docRepo        *repository.DocumentRepository
	suggestionRepo *repository.SuggestionRepository
	llmClient      *ai.OpenAICompatibleClient
	llmConfig      ai.ChatConfig
}

func NewRequestSuggestionsTool(
	docRepo *repository.DocumentRepository,
	suggestionRepo *repository.SuggestionRepository,
	llmClient *ai.OpenAICompatibleClient,
	llmConfig ai.ChatConfig,
) *RequestSuggestionsTool {
	return &RequestSuggestionsTool{
		docRepo:        docRepo,
		suggestionRepo: suggestionRepo,
		llmClient:      llmClient,
		llmConfig:      llmConfig,
	}
}

func (t *RequestSuggestionsTool) Name() string { return "request_suggestions" }

func (t *RequestSuggestionsTool) Description() string {
	return "Request writing suggestions for an existing document."
}

func (t *RequestSuggestionsTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"document_id": {"type": "string", "description": "Id of the document to request suggestions for"}
		},
		"required": ["document_id"]
	}`)
}

func (t *RequestSuggestionsTool) Execute(ctx context.Context, userID uint, args json.RawMessage) (string, error) {
	var input struct {
		DocumentID string `json:"document_id"`
	}
	if err := json.Unmarshal(args, &input); err != nil {
		return "", fmt.Errorf("parse request_suggestions arguments failed: %w", err)
	}

	doc, err := t.docRepo.GetByID(strings.TrimSpace(input.DocumentID))
	if err != nil {
		return "", err
	}
	if doc == nil {
		return "", ErrDocumentNotFound
	}
	if doc.UserID != userID {
		return "", ErrNotDocumentOwner
	}

	raw, err := t.llmClient.Complete(ctx, t.llmConfig, []ai.ChatMessage{
		{Role: "user", Content: fmt.Sprintf(suggestionsPrompt, doc.Content)},
	})
	if err != nil {
		return "", fmt.Errorf("generate suggestions failed: %w", err)
	}

	parsed, err := parseSuggestions(raw)
	if err != nil {
		return "", err
	}

	suggestions := make([]model.Suggestion, 0, len(parsed))
	for _, item := range parsed {
		if strings.TrimSpace(item.SuggestedText) == "" {
			continue
		}
		suggestions = append(suggestions, model.Suggestion{
			ID:            uuid.NewString(),
			DocumentID:    doc.ID,
			UserID:        userID,
			OriginalText:  item.OriginalText,
			SuggestedText: item.SuggestedText,
			Description:   item.Description,
		})
	}
	if err := t.suggestionRepo.CreateBatch(suggestions); err != nil {
		return "", err
	}

	result, _ := json.Marshal(map[string]interface{}{
		"document_id": doc.ID,
		"count":       len(suggestions),
	})
	return string(result), nil
}

type rawSuggestion struct {
	OriginalText  string `json:"original_text"`
	SuggestedText string `json:"suggested_text"`
	Description   string `json:"description"`
}

// parseSuggestions tolerates models that wrap the array in a code fence.
func parseSuggestions(raw string) ([]rawSuggestion, error) {
	trimmed := strings.TrimSpace(raw)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	var parsed []rawSuggestion
	if err := json.Unmarshal([]byte(trimmed), &parsed); err != nil {
		return nil, fmt.Errorf("parse suggestions json failed: %w", err)
	}
	return parsed, nil
}
