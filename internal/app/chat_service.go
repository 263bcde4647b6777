package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"aichat-backend/internal/ai"
	"aichat-backend/internal/model"
	"aichat-backend/internal/repository"
	"aichat-backend/internal/tool"
)

var (
	ErrChatNotFound  = errors.New("chat not found")
	ErrNotChatOwner  = errors.New("chat belongs to another user")
	ErrNoUserMessage = errors.New("no user message found")
	ErrLLMConfig     = errors.New("llm config is invalid")
)

const maxTitleLength = 80

// ModelStreamer is the streamed generation capability the orchestrator
// drives. The concrete client lives in internal/ai.
type ModelStreamer interface {
	StreamComplete(
		ctx context.Context,
		cfg ai.ChatConfig,
		messages []ai.ChatMessage,
		tools []ai.ToolDefinition,
		onEvent func(ai.StreamEvent) error,
	) (*ai.StreamResult, error)
}

// AsyncMessagePublisher hands one generation turn's finalized messages to
// the persist queue.
type AsyncMessagePublisher interface {
	Publish(ctx context.Context, msgs []model.Message) error
}

type HistoryCache interface {
	GetHistory(ctx context.Context, chatID string) ([]model.Message, bool, error)
	SetHistory(ctx context.Context, chatID string, messages []model.Message) error
	DeleteHistory(ctx context.Context, chatID string) error
	MarkDirty(ctx context.Context, chatID string) error
	IsDirty(ctx context.Context, chatID string) (bool, error)
}

// AttachmentRewriter substitutes inline file references with extracted
// content. It never fails; the boolean reports whether anything changed.
type AttachmentRewriter interface {
	Rewrite(content string) (string, bool)
}

// LLMSettings carries the provider endpoint and the model names for the two
// supported variants.
type LLMSettings struct {
	BaseURL        string
	APIKey         string
	ChatModel      string
	ReasoningModel string
}

type ChatService struct {
	chatRepo     *repository.ChatRepository
	messageRepo  *repository.MessageRepository
	publisher    AsyncMessagePublisher
	historyCache HistoryCache
	streamer     ModelStreamer
	tools        *tool.Registry
	rewriter     AttachmentRewriter
	llm          LLMSettings

	maxToolSteps   int
	requestTimeout time.Duration

	// chatLocks serializes ensure-chat/persist-inbound per chat id so two
	// concurrent first messages cannot both create the chat record.
	chatLocks sync.Map
}

type IncomingMessage struct {
	ID      string `json:"id"`
	Role    string `json:"role"`
	Content string `json:"content"`
}

type StreamChatInput struct {
	UserID       uint
	ChatID       string
	Messages     []IncomingMessage
	ModelVariant string
}

func NewChatService(
	chatRepo *repository.ChatRepository,
	messageRepo *repository.MessageRepository,
	publisher AsyncMessagePublisher,
	historyCache HistoryCache,
	streamer ModelStreamer,
	tools *tool.Registry,
	rewriter AttachmentRewriter,
	llm LLMSettings,
	maxToolSteps int,
	requestTimeout time.Duration,
) *ChatService {
	if maxToolSteps <= 0 {
		maxToolSteps = 5
	}
	if requestTimeout <= 0 {
		requestTimeout = 60 * time.Second
	}
	return &ChatService{
		chatRepo:       chatRepo,
		messageRepo:    messageRepo,
		publisher:      publisher,
		historyCache:   historyCache,
		streamer:       streamer,
		tools:          tools,
		rewriter:       rewriter,
		llm:            llm,
		maxToolSteps:   maxToolSteps,
		requestTimeout: requestTimeout,
	}
}

// StreamChat drives one chat request end to end: validate the submitted
// history, ingest attachments on the most recent user message, ensure the
// chat record exists, persist the inbound message, then run the agentic
// generation loop and forward every fragment to onEvent in arrival order.
// Assistant messages are handed to the persist queue once generation
// completes; a failure there is logged and swallowed so the already
// delivered stream stays intact.
func (s *ChatService) StreamChat(
	ctx context.Context,
	input StreamChatInput,
	onEvent func(ai.StreamEvent) error,
) error {
	if input.UserID == 0 || strings.TrimSpace(input.ChatID) == "" {
		return ErrInvalidInput
	}

	userMessage, userIndex := mostRecentUserMessage(input.Messages)
	if userMessage == nil {
		return ErrNoUserMessage
	}

	modelCfg, err := s.resolveModel(input.ModelVariant)
	if err != nil {
		return err
	}

	// Only the most recent user message is eligible for substitution. The
	// persisted message keeps the text the user actually typed; the
	// substituted content is what the model sees.
	forwarded := userMessage.Content
	if s.rewriter != nil {
		forwarded, _ = s.rewriter.Rewrite(userMessage.Content)
	}

	if err := s.ensureChatAndPersistInbound(input, userMessage); err != nil {
		return err
	}

	if s.historyCache != nil {
		_ = s.historyCache.MarkDirty(ctx, input.ChatID)
		_ = s.historyCache.DeleteHistory(ctx, input.ChatID)
	}

	promptMessages := s.buildPromptMessages(input.Messages, userIndex, forwarded, input.ModelVariant)

	var toolDefs []ai.ToolDefinition
	if input.ModelVariant != ai.VariantReasoning && s.tools != nil {
		toolDefs = s.tools.Definitions()
	}

	genCtx, cancel := context.WithTimeout(ctx, s.requestTimeout)
	defer cancel()

	finalContents, err := s.runGeneration(genCtx, modelCfg, promptMessages, toolDefs, input.UserID, onEvent)
	if err != nil {
		return err
	}

	s.persistAssistantMessages(ctx, input, finalContents)
	return nil
}

// runGeneration executes up to maxToolSteps streamed completions, resolving
// tool calls between steps. It returns one content string per step that
// produced assistant text, in generation order.
func (s *ChatService) runGeneration(
	ctx context.Context,
	cfg ai.ChatConfig,
	messages []ai.ChatMessage,
	toolDefs []ai.ToolDefinition,
	userID uint,
	onEvent func(ai.StreamEvent) error,
) ([]string, error) {
	var finalContents []string

	for step := 0; step < s.maxToolSteps; step++ {
		result, err := s.streamer.StreamComplete(ctx, cfg, messages, toolDefs, onEvent)
		if err != nil {
			return nil, err
		}

		if strings.TrimSpace(result.Content) != "" {
			finalContents = append(finalContents, strings.TrimSpace(result.Content))
		}
		if len(result.ToolCalls) == 0 {
			break
		}

		messages = append(messages, ai.ChatMessage{
			Role:      "assistant",
			Content:   result.Content,
			ToolCalls: result.ToolCalls,
		})
		for _, call := range result.ToolCalls {
			output := s.executeToolCall(ctx, userID, call)
			if onEvent != nil {
				payload, _ := json.Marshal(map[string]string{
					"name":   call.Function.Name,
					"result": output,
				})
				if err := onEvent(ai.StreamEvent{Type: "tool", Text: string(payload)}); err != nil {
					return nil, err
				}
			}
			messages = append(messages, ai.ChatMessage{
				Role:       "tool",
				ToolCallID: call.ID,
				Content:    output,
			})
		}
	}

	return finalContents, nil
}

// executeToolCall never propagates a tool failure into the stream; the
// model gets the error text and decides how to respond.
func (s *ChatService) executeToolCall(ctx context.Context, userID uint, call ai.ToolCall) string {
	var registered tool.Tool
	ok := false
	if s.tools != nil {
		registered, ok = s.tools.Get(call.Function.Name)
	}
	if !ok {
		log.Printf("chat: model requested unknown tool %q", call.Function.Name)
		return fmt.Sprintf("unknown tool: %s", call.Function.Name)
	}

	output, err := registered.Execute(ctx, userID, json.RawMessage(call.Function.Arguments))
	if err != nil {
		log.Printf("chat: tool %s failed: %v", call.Function.Name, err)
		return fmt.Sprintf("tool %s failed: %v", call.Function.Name, err)
	}
	return output
}

func (s *ChatService) ensureChatAndPersistInbound(input StreamChatInput, userMessage *IncomingMessage) error {
	unlock := s.lockChat(input.ChatID)
	defer unlock()

	chat, err := s.chatRepo.GetByID(input.ChatID)
	if err != nil {
		return err
	}
	if chat == nil {
		chat = &model.Chat{
			ID:     input.ChatID,
			UserID: input.UserID,
			Title:  deriveTitle(userMessage.Content),
		}
		if err := s.chatRepo.Create(chat); err != nil {
			return err
		}
	} else if chat.UserID != input.UserID {
		return ErrNotChatOwner
	}

	messageID := strings.TrimSpace(userMessage.ID)
	if messageID == "" {
		messageID = uuid.NewString()
	}
	inbound := &model.Message{
		ID:        messageID,
		ChatID:    input.ChatID,
		UserID:    input.UserID,
		Role:      "user",
		Content:   userMessage.Content,
		CreatedAt: time.Now(),
	}
	return s.messageRepo.Create(inbound)
}

func (s *ChatService) persistAssistantMessages(ctx context.Context, input StreamChatInput, contents []string) {
	if s.publisher == nil || len(contents) == 0 {
		return
	}
	batch := make([]model.Message, 0, len(contents))
	for _, content := range contents {
		batch = append(batch, model.Message{
			ID:        uuid.NewString(),
			ChatID:    input.ChatID,
			UserID:    input.UserID,
			Role:      "assistant",
			Content:   content,
			CreatedAt: time.Now(),
		})
	}
	if err := s.publisher.Publish(ctx, batch); err != nil {
		log.Printf("chat: enqueue %d assistant messages for chat %s failed: %v", len(batch), input.ChatID, err)
	}
}

// DeleteChat removes a chat and its messages.
func (s *ChatService) DeleteChat(userID uint, chatID string) error {
	if userID == 0 || strings.TrimSpace(chatID) == "" {
		return ErrInvalidInput
	}

	chat, err := s.chatRepo.GetByID(chatID)
	if err != nil {
		return err
	}
	if chat == nil {
		return ErrChatNotFound
	}
	if chat.UserID != userID {
		return ErrNotChatOwner
	}

	if err := s.messageRepo.DeleteByChatID(chatID); err != nil {
		return err
	}
	if err := s.chatRepo.DeleteByIDAndUserID(chatID, userID); err != nil {
		return err
	}
	if s.historyCache != nil {
		_ = s.historyCache.DeleteHistory(context.Background(), chatID)
	}
	return nil
}

// ListChats returns the user's chats, newest first.
func (s *ChatService) ListChats(userID uint) ([]model.Chat, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	return s.chatRepo.ListByUserID(userID)
}

// GetHistory returns persisted messages for one chat, cache first.
func (s *ChatService) GetHistory(ctx context.Context, userID uint, chatID string, limit int) ([]model.Message, error) {
	if userID == 0 || strings.TrimSpace(chatID) == "" {
		return nil, ErrInvalidInput
	}

	chat, err := s.chatRepo.GetByIDAndUserID(chatID, userID)
	if err != nil {
		return nil, err
	}
	if chat == nil {
		return nil, ErrChatNotFound
	}

	if s.historyCache != nil {
		dirty, err := s.historyCache.IsDirty(ctx, chatID)
		if err == nil && !dirty {
			if cached, hit, cacheErr := s.historyCache.GetHistory(ctx, chatID); cacheErr == nil && hit {
				return trimMessages(cached, limit), nil
			}
		}
	}

	messages, err := s.messageRepo.ListByChatID(chatID, limit)
	if err != nil {
		return nil, err
	}
	if s.historyCache != nil {
		if dirty, dirtyErr := s.historyCache.IsDirty(ctx, chatID); dirtyErr == nil && !dirty {
			_ = s.historyCache.SetHistory(ctx, chatID, messages)
		}
	}
	return messages, nil
}

func (s *ChatService) resolveModel(variant string) (ai.ChatConfig, error) {
	cfg := ai.ChatConfig{
		BaseURL: s.llm.BaseURL,
		APIKey:  s.llm.APIKey,
		Model:   s.llm.ChatModel,
	}
	if variant == ai.VariantReasoning {
		cfg.Model = s.llm.ReasoningModel
	}
	if cfg.BaseURL == "" || cfg.APIKey == "" || cfg.Model == "" {
		return ai.ChatConfig{}, ErrLLMConfig
	}
	return cfg, nil
}

func (s *ChatService) buildPromptMessages(
	history []IncomingMessage,
	userIndex int,
	forwardedContent string,
	variant string,
) []ai.ChatMessage {
	messages := make([]ai.ChatMessage, 0, len(history)+1)
	messages = append(messages, ai.ChatMessage{
		Role:    "system",
		Content: ai.SystemPrompt(variant),
	})
	for i, item := range history {
		role := item.Role
		if role == "" {
			role = "user"
		}
		content := item.Content
		if i == userIndex {
			content = forwardedContent
		}
		messages = append(messages, ai.ChatMessage{Role: role, Content: content})
	}
	return messages
}

func (s *ChatService) lockChat(chatID string) func() {
	value, _ := s.chatLocks.LoadOrStore(chatID, &sync.Mutex{})
	mu := value.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func mostRecentUserMessage(messages []IncomingMessage) (*IncomingMessage, int) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return &messages[i], i
		}
	}
	return nil, -1
}

func deriveTitle(content string) string {
	title := strings.TrimSpace(content)
	if idx := strings.IndexAny(title, "\r\n"); idx >= 0 {
		title = strings.TrimSpace(title[:idx])
	}
	if title == "" {
		return "New Chat"
	}
	runes := []rune(title)
	if len(runes) > maxTitleLength {
		title = string(runes[:maxTitleLength])
	}
	return title
}

func trimMessages(messages []model.Message, limit int) []model.Message {
	if limit <= 0 || limit >= len(messages) {
		return messages
	}
	return messages[len(messages)-limit:]
}
