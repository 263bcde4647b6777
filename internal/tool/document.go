package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"aichat-backend/internal/ai"
	"aichat-backend/internal/model"
	"aichat-backend/internal/repository"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrNotDocumentOwner = errors.New("document belongs to another user")
)

const createDocumentPrompt = "Write about the given topic. Markdown is supported. Use headings wherever appropriate."

// CreateDocumentTool generates a document with the model and persists it
// under the requesting user.
type CreateDocumentTool struct {
	docRepo   *repository.DocumentRepository
	llmClient *ai.OpenAICompatibleClient
	llmConfig ai.ChatConfig
}

func NewCreateDocumentTool(docRepo *repository.DocumentRepository, llmClient *ai.OpenAICompatibleClient, llmConfig ai.ChatConfig) *CreateDocumentTool {
	return &CreateDocumentTool{docRepo: docRepo, llmClient: llmClient, llmConfig: llmConfig}
}

func (t *CreateDocumentTool) Name() string { return "create_document" }

func (t *CreateDocumentTool) Description() string {
	return "Create a document for writing or content creation activities."
}

func (t *CreateDocumentTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"title": {"type": "string", "description": "Title of the document"},
			"kind": {"type": "string", "enum": ["text", "code"], "description": "Kind of document"}
		},
		"required": ["title"]
	}`)
}

func (t *CreateDocumentTool) Execute(ctx context.Context, userID uint, args json.RawMessage) (string, error) {
	var input struct {
		Title string `json:"title"`
		Kind  string `json:"kind"`
	}
	if err := json.Unmarshal(args, &input); err != nil {
		return "", fmt.Errorf("parse create_document arguments failed: %w", err)
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return "", fmt.Errorf("document title is required")
	}
	kind := input.Kind
	if kind == "" {
		kind = "text"
	}

	content, err := t.llmClient.Complete(ctx, t.llmConfig, []ai.ChatMessage{
		{Role: "system", Content: createDocumentPrompt},
		{Role: "user", Content: title},
	})
	if err != nil {
		return "", fmt.Errorf("generate document content failed: %w", err)
	}

	doc := &model.Document{
		ID:      uuid.NewString(),
		UserID:  userID,
		Title:   title,
		Content: content,
		Kind:    kind,
	}
	if err := t.docRepo.Create(doc); err != nil {
		return "", err
	}

	result, _ := json.Marshal(map[string]string{
		"id":    doc.ID,
		"title": doc.Title,
		"kind":  doc.Kind,
	})
	return string(result), nil
}

const updateDocumentPrompt = `Update the following document based on the given description. Keep everything that the description does not ask to change.

%s`

// UpdateDocumentTool rewrites an existing document per the model's output.
type UpdateDocumentTool struct {
	docRepo   *repository.DocumentRepository
	llmClient *ai.OpenAICompatibleClient
	llmConfig ai.ChatConfig
}

func NewUpdateDocumentTool(docRepo *repository.DocumentRepository, llmClient *ai.OpenAICompatibleClient, llmConfig ai.ChatConfig) *UpdateDocumentTool {
	return &UpdateDocumentTool{docRepo: docRepo, llmClient: llmClient, llmConfig: llmConfig}
}

func (t *UpdateDocumentTool) Name() string { return "update_document" }

func (t *UpdateDocumentTool) Description() string {
	return "Update an existing document with the given description of changes."
}

func (t *UpdateDocumentTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"id": {"type": "string", "description": "Id of the document to update"},
			"description": {"type": "string", "description": "Description of the changes to make"}
		},
		"required": ["id", "description"]
	}`)
}

func (t *UpdateDocumentTool) Execute(ctx context.Context, userID uint, args json.RawMessage) (string, error) {
	var input struct {
		ID          string `json:"id"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal(args, &input); err != nil {
		return "", fmt.Errorf("parse update_document arguments failed: %w", err)
	}

	doc, err := t.docRepo.GetByID(strings.TrimSpace(input.ID))
	if err != nil {
		return "", err
	}
	if doc == nil {
		return "", ErrDocumentNotFound
	}
	if doc.UserID != userID {
		return "", ErrNotDocumentOwner
	}

	content, err := t.llmClient.Complete(ctx, t.llmConfig, []ai.ChatMessage{
		{Role: "system", Content: fmt.Sprintf(updateDocumentPrompt, doc.Content)},
		{Role: "user", Content: input.Description},
	})
	if err != nil {
		return "", fmt.Errorf("generate updated content failed: %w", err)
	}

	if err := t.docRepo.UpdateContent(doc.ID, content); err != nil {
		return "", err
	}

	result, _ := json.Marshal(map[string]string{
		"id":    doc.ID,
		"title": doc.Title,
	})
	return string(result), nil
}
