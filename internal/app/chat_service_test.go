package app

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"aichat-backend/internal/ai"
	"aichat-backend/internal/model"
	"aichat-backend/internal/repository"
	"aichat-backend/internal/tool"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&model.Chat{}, &model.Message{}, &model.Document{}, &model.Suggestion{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

type streamerFunc func(ctx context.Context, cfg ai.ChatConfig, messages []ai.ChatMessage, tools []ai.ToolDefinition, onEvent func(ai.StreamEvent) error) (*ai.StreamResult, error)

func (f streamerFunc) StreamComplete(ctx context.Context, cfg ai.ChatConfig, messages []ai.ChatMessage, tools []ai.ToolDefinition, onEvent func(ai.StreamEvent) error) (*ai.StreamResult, error) {
	return f(ctx, cfg, messages, tools, onEvent)
}

type capturePublisher struct {
	published []model.Message
	err       error
}

func (p *capturePublisher) Publish(_ context.Context, msgs []model.Message) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, msgs...)
	return nil
}

type rewriterFunc func(string) (string, bool)

func (f rewriterFunc) Rewrite(content string) (string, bool) { return f(content) }

func testSettings() LLMSettings {
	return LLMSettings{
		BaseURL:        "http://llm.local",
		APIKey:         "test-key",
		ChatModel:      "chat-m",
		ReasoningModel: "reason-m",
	}
}

func newTestService(db *gorm.DB, streamer ModelStreamer, publisher AsyncMessagePublisher, tools *tool.Registry, rewriter AttachmentRewriter) *ChatService {
	return NewChatService(
		repository.NewChatRepository(db),
		repository.NewMessageRepository(db),
		publisher,
		nil,
		streamer,
		tools,
		rewriter,
		testSettings(),
		5,
		0,
	)
}

func TestStreamChatFirstMessageCreatesChat(t *testing.T) {
	db := newTestDB(t)
	publisher := &capturePublisher{}

	streamer := streamerFunc(func(_ context.Context, cfg ai.ChatConfig, messages []ai.ChatMessage, _ []ai.ToolDefinition, onEvent func(ai.StreamEvent) error) (*ai.StreamResult, error) {
		// Inbound message must be persisted before the model is invoked.
		var count int64
		db.Model(&model.Message{}).Where("chat_id = ?", "c1").Count(&count)
		if count != 1 {
			t.Errorf("inbound message not persisted before model call: count=%d", count)
		}
		if cfg.Model != "chat-m" {
			t.Errorf("wrong model: %q", cfg.Model)
		}
		if messages[0].Role != "system" {
			t.Errorf("first prompt message should be system, got %q", messages[0].Role)
		}
		for _, text := range []string{"Hi", " there"} {
			if err := onEvent(ai.StreamEvent{Type: "text", Text: text}); err != nil {
				return nil, err
			}
		}
		return &ai.StreamResult{Content: "Hi there", FinishReason: "stop"}, nil
	})

	svc := newTestService(db, streamer, publisher, nil, nil)

	var events []ai.StreamEvent
	err := svc.StreamChat(context.Background(), StreamChatInput{
		UserID:       1,
		ChatID:       "c1",
		Messages:     []IncomingMessage{{ID: "m1", Role: "user", Content: "Hello"}},
		ModelVariant: ai.VariantChat,
	}, func(e ai.StreamEvent) error {
		events = append(events, e)
		return nil
	})
	if err != nil {
		t.Fatalf("StreamChat: %v", err)
	}

	var chat model.Chat
	if err := db.First(&chat, "id = ?", "c1").Error; err != nil {
		t.Fatalf("chat not created: %v", err)
	}
	if chat.Title != "Hello" || chat.UserID != 1 {
		t.Errorf("unexpected chat: %+v", chat)
	}

	if len(events) != 2 || events[0].Text != "Hi" || events[1].Text != " there" {
		t.Errorf("fragments out of order or missing: %+v", events)
	}

	if len(publisher.published) != 1 {
		t.Fatalf("got %d published assistant messages, want 1", len(publisher.published))
	}
	assistant := publisher.published[0]
	if assistant.Role != "assistant" || assistant.Content != "Hi there" || assistant.ChatID != "c1" {
		t.Errorf("unexpected assistant message: %+v", assistant)
	}
}

func TestStreamChatExistingChatNotRecreated(t *testing.T) {
	db := newTestDB(t)
	if err := db.Create(&model.Chat{ID: "c1", UserID: 1, Title: "existing"}).Error; err != nil {
		t.Fatalf("seed chat: %v", err)
	}

	streamer := streamerFunc(func(_ context.Context, _ ai.ChatConfig, _ []ai.ChatMessage, _ []ai.ToolDefinition, _ func(ai.StreamEvent) error) (*ai.StreamResult, error) {
		return &ai.StreamResult{Content: "ok"}, nil
	})
	svc := newTestService(db, streamer, &capturePublisher{}, nil, nil)

	err := svc.StreamChat(context.Background(), StreamChatInput{
		UserID:   1,
		ChatID:   "c1",
		Messages: []IncomingMessage{{Role: "user", Content: "again"}},
	}, func(ai.StreamEvent) error { return nil })
	if err != nil {
		t.Fatalf("StreamChat: %v", err)
	}

	var count int64
	db.Model(&model.Chat{}).Count(&count)
	if count != 1 {
		t.Errorf("chat count = %d, want 1", count)
	}
	var chat model.Chat
	db.First(&chat, "id = ?", "c1")
	if chat.Title != "existing" {
		t.Errorf("title changed to %q", chat.Title)
	}
}

func TestStreamChatNoUserMessage(t *testing.T) {
	db := newTestDB(t)
	streamer := streamerFunc(func(_ context.Context, _ ai.ChatConfig, _ []ai.ChatMessage, _ []ai.ToolDefinition, _ func(ai.StreamEvent) error) (*ai.StreamResult, error) {
		t.Fatal("model should not be invoked")
		return nil, nil
	})
	svc := newTestService(db, streamer, &capturePublisher{}, nil, nil)

	err := svc.StreamChat(context.Background(), StreamChatInput{
		UserID:   1,
		ChatID:   "c1",
		Messages: []IncomingMessage{{Role: "assistant", Content: "hello?"}},
	}, func(ai.StreamEvent) error { return nil })
	if !errors.Is(err, ErrNoUserMessage) {
		t.Fatalf("got %v, want ErrNoUserMessage", err)
	}

	var count int64
	db.Model(&model.Chat{}).Count(&count)
	if count != 0 {
		t.Errorf("chat created despite validation failure")
	}
}

func TestStreamChatWrongOwner(t *testing.T) {
	db := newTestDB(t)
	if err := db.Create(&model.Chat{ID: "c1", UserID: 2, Title: "theirs"}).Error; err != nil {
		t.Fatalf("seed chat: %v", err)
	}
	streamer := streamerFunc(func(_ context.Context, _ ai.ChatConfig, _ []ai.ChatMessage, _ []ai.ToolDefinition, _ func(ai.StreamEvent) error) (*ai.StreamResult, error) {
		t.Fatal("model should not be invoked")
		return nil, nil
	})
	svc := newTestService(db, streamer, &capturePublisher{}, nil, nil)

	err := svc.StreamChat(context.Background(), StreamChatInput{
		UserID:   1,
		ChatID:   "c1",
		Messages: []IncomingMessage{{Role: "user", Content: "mine now"}},
	}, func(ai.StreamEvent) error { return nil })
	if !errors.Is(err, ErrNotChatOwner) {
		t.Fatalf("got %v, want ErrNotChatOwner", err)
	}
}

func TestStreamChatPublishFailureIsSwallowed(t *testing.T) {
	db := newTestDB(t)
	publisher := &capturePublisher{err: errors.New("broker down")}
	streamer := streamerFunc(func(_ context.Context, _ ai.ChatConfig, _ []ai.ChatMessage, _ []ai.ToolDefinition, onEvent func(ai.StreamEvent) error) (*ai.StreamResult, error) {
		_ = onEvent(ai.StreamEvent{Type: "text", Text: "answer"})
		return &ai.StreamResult{Content: "answer"}, nil
	})
	svc := newTestService(db, streamer, publisher, nil, nil)

	err := svc.StreamChat(context.Background(), StreamChatInput{
		UserID:   1,
		ChatID:   "c1",
		Messages: []IncomingMessage{{Role: "user", Content: "Hello"}},
	}, func(ai.StreamEvent) error { return nil })
	if err != nil {
		t.Fatalf("publish failure must not fail the request: %v", err)
	}

	// The inbound user message is still persisted.
	var count int64
	db.Model(&model.Message{}).Where("role = ?", "user").Count(&count)
	if count != 1 {
		t.Errorf("user message count = %d, want 1", count)
	}
}

type echoTool struct {
	gotArgs []string
}

func (e *echoTool) Name() string                 { return "echo_tool" }
func (e *echoTool) Description() string          { return "echoes its arguments" }
func (e *echoTool) Parameters() json.RawMessage  { return json.RawMessage(`{"type":"object"}`) }
func (e *echoTool) Execute(_ context.Context, _ uint, args json.RawMessage) (string, error) {
	e.gotArgs = append(e.gotArgs, string(args))
	return "echo:" + string(args), nil
}

func TestStreamChatToolLoop(t *testing.T) {
	db := newTestDB(t)
	publisher := &capturePublisher{}
	echo := &echoTool{}
	registry := tool.NewRegistry(echo)

	step := 0
	streamer := streamerFunc(func(_ context.Context, _ ai.ChatConfig, messages []ai.ChatMessage, tools []ai.ToolDefinition, _ func(ai.StreamEvent) error) (*ai.StreamResult, error) {
		step++
		switch step {
		case 1:
			if len(tools) != 1 || tools[0].Function.Name != "echo_tool" {
				t.Errorf("tool definitions not forwarded: %+v", tools)
			}
			return &ai.StreamResult{
				ToolCalls: []ai.ToolCall{{
					ID:       "call_1",
					Type:     "function",
					Function: ai.FunctionCall{Name: "echo_tool", Arguments: `{"v":"x"}`},
				}},
				FinishReason: "tool_calls",
			}, nil
		case 2:
			last := messages[len(messages)-1]
			if last.Role != "tool" || last.ToolCallID != "call_1" {
				t.Errorf("tool result not appended to prompt: %+v", last)
			}
			if last.Content != `echo:{"v":"x"}` {
				t.Errorf("tool output not forwarded: %q", last.Content)
			}
			return &ai.StreamResult{Content: "done", FinishReason: "stop"}, nil
		default:
			t.Fatalf("unexpected extra step %d", step)
			return nil, nil
		}
	})

	svc := newTestService(db, streamer, publisher, registry, nil)

	var toolEvents []ai.StreamEvent
	err := svc.StreamChat(context.Background(), StreamChatInput{
		UserID:       1,
		ChatID:       "c1",
		Messages:     []IncomingMessage{{Role: "user", Content: "use the tool"}},
		ModelVariant: ai.VariantChat,
	}, func(e ai.StreamEvent) error {
		if e.Type == "tool" {
			toolEvents = append(toolEvents, e)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("StreamChat: %v", err)
	}

	if len(echo.gotArgs) != 1 || echo.gotArgs[0] != `{"v":"x"}` {
		t.Errorf("tool not executed with model arguments: %v", echo.gotArgs)
	}
	if len(toolEvents) != 1 {
		t.Errorf("got %d tool events, want 1", len(toolEvents))
	}
	if len(publisher.published) != 1 || publisher.published[0].Content != "done" {
		t.Errorf("unexpected published messages: %+v", publisher.published)
	}
}

func TestStreamChatReasoningVariantHasNoTools(t *testing.T) {
	db := newTestDB(t)
	registry := tool.NewRegistry(&echoTool{})

	streamer := streamerFunc(func(_ context.Context, cfg ai.ChatConfig, _ []ai.ChatMessage, tools []ai.ToolDefinition, _ func(ai.StreamEvent) error) (*ai.StreamResult, error) {
		if len(tools) != 0 {
			t.Errorf("reasoning variant must get an empty tool set, got %d", len(tools))
		}
		if cfg.Model != "reason-m" {
			t.Errorf("wrong model for reasoning variant: %q", cfg.Model)
		}
		return &ai.StreamResult{Content: "thought about it"}, nil
	})

	svc := newTestService(db, streamer, &capturePublisher{}, registry, nil)

	err := svc.StreamChat(context.Background(), StreamChatInput{
		UserID:       1,
		ChatID:       "c1",
		Messages:     []IncomingMessage{{Role: "user", Content: "think"}},
		ModelVariant: ai.VariantReasoning,
	}, func(ai.StreamEvent) error { return nil })
	if err != nil {
		t.Fatalf("StreamChat: %v", err)
	}
}

func TestStreamChatPersistsOriginalNotSubstituted(t *testing.T) {
	db := newTestDB(t)
	original := "check [FILE: /uploads/x.pdf]"
	substituted := "analyze this invoice: TOTAL $5"

	rewriter := rewriterFunc(func(content string) (string, bool) {
		if content != original {
			t.Errorf("rewriter got %q", content)
		}
		return substituted, true
	})

	streamer := streamerFunc(func(_ context.Context, _ ai.ChatConfig, messages []ai.ChatMessage, _ []ai.ToolDefinition, _ func(ai.StreamEvent) error) (*ai.StreamResult, error) {
		last := messages[len(messages)-1]
		if last.Content != substituted {
			t.Errorf("model should see the substituted message, got %q", last.Content)
		}
		return &ai.StreamResult{Content: "$5"}, nil
	})

	svc := newTestService(db, streamer, &capturePublisher{}, nil, rewriter)

	err := svc.StreamChat(context.Background(), StreamChatInput{
		UserID:   1,
		ChatID:   "c1",
		Messages: []IncomingMessage{{Role: "user", Content: original}},
	}, func(ai.StreamEvent) error { return nil })
	if err != nil {
		t.Fatalf("StreamChat: %v", err)
	}

	var persisted model.Message
	if err := db.First(&persisted, "role = ?", "user").Error; err != nil {
		t.Fatalf("user message not persisted: %v", err)
	}
	if persisted.Content != original {
		t.Errorf("persisted %q, want the original user text %q", persisted.Content, original)
	}
}

func TestDeleteChat(t *testing.T) {
	db := newTestDB(t)
	seed := func() {
		db.Create(&model.Chat{ID: "c1", UserID: 1, Title: "t"})
		db.Create(&model.Message{ID: "m1", ChatID: "c1", UserID: 1, Role: "user", Content: "hi"})
	}
	seed()
	svc := newTestService(db, nil, nil, nil, nil)

	if err := svc.DeleteChat(1, "missing"); !errors.Is(err, ErrChatNotFound) {
		t.Errorf("missing chat: got %v, want ErrChatNotFound", err)
	}
	if err := svc.DeleteChat(2, "c1"); !errors.Is(err, ErrNotChatOwner) {
		t.Errorf("wrong owner: got %v, want ErrNotChatOwner", err)
	}

	if err := svc.DeleteChat(1, "c1"); err != nil {
		t.Fatalf("DeleteChat: %v", err)
	}
	var chats, messages int64
	db.Model(&model.Chat{}).Count(&chats)
	db.Model(&model.Message{}).Count(&messages)
	if chats != 0 || messages != 0 {
		t.Errorf("chat/messages not deleted: %d/%d", chats, messages)
	}
}

func TestDeriveTitle(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"simple", "Hello", "Hello"},
		{"first line only", "Hello\nand more", "Hello"},
		{"trimmed", "  spaced  ", "spaced"},
		{"empty", "   ", "New Chat"},
		{"truncated", strings.Repeat("a", 100), strings.Repeat("a", 80)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := deriveTitle(tt.content); got != tt.want {
				t.Errorf("deriveTitle(%q) = %q, want %q", tt.content, got, tt.want)
			}
		})
	}
}
