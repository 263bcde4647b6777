package ai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func sseServer(t *testing.T, lines []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, line := range lines {
			_, _ = w.Write([]byte(line + "\n"))
		}
	}))
}

func TestStreamCompleteTextFragments(t *testing.T) {
	server := sseServer(t, []string{
		`data: {"choices":[{"delta":{"content":"Hel"}}]}`,
		``,
		`data: {"choices":[{"delta":{"content":"lo"}}]}`,
		`data: {"choices":[{"delta":{},"finish_reason":"stop"}]}`,
		`data: [DONE]`,
	})
	defer server.Close()

	client := NewOpenAICompatibleClient()
	cfg := ChatConfig{BaseURL: server.URL, APIKey: "k", Model: "m"}

	var events []StreamEvent
	result, err := client.StreamComplete(context.Background(), cfg, []ChatMessage{{Role: "user", Content: "hi"}}, nil, func(e StreamEvent) error {
		events = append(events, e)
		return nil
	})
	if err != nil {
		t.Fatalf("StreamComplete: %v", err)
	}

	if result.Content != "Hello" {
		t.Errorf("content: got %q, want %q", result.Content, "Hello")
	}
	if result.FinishReason != "stop" {
		t.Errorf("finish reason: got %q", result.FinishReason)
	}
	want := []StreamEvent{{Type: "text", Text: "Hel"}, {Type: "text", Text: "lo"}}
	if len(events) != len(want) {
		t.Fatalf("got %d events, want %d", len(events), len(want))
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("event %d: got %+v, want %+v", i, events[i], want[i])
		}
	}
}

func TestStreamCompleteReasoningFragments(t *testing.T) {
	server := sseServer(t, []string{
		`data: {"choices":[{"delta":{"reasoning_content":"thinking..."}}]}`,
		`data: {"choices":[{"delta":{"content":"answer"}}]}`,
		`data: [DONE]`,
	})
	defer server.Close()

	client := NewOpenAICompatibleClient()
	cfg := ChatConfig{BaseURL: server.URL, APIKey: "k", Model: "m"}

	var events []StreamEvent
	result, err := client.StreamComplete(context.Background(), cfg, nil, nil, func(e StreamEvent) error {
		events = append(events, e)
		return nil
	})
	if err != nil {
		t.Fatalf("StreamComplete: %v", err)
	}

	if result.Reasoning != "thinking..." {
		t.Errorf("reasoning: got %q", result.Reasoning)
	}
	if result.Content != "answer" {
		t.Errorf("content: got %q", result.Content)
	}
	if len(events) != 2 || events[0].Type != "reasoning" || events[1].Type != "text" {
		t.Errorf("unexpected events: %+v", events)
	}
}

func TestStreamCompleteAccumulatesToolCalls(t *testing.T) {
	server := sseServer(t, []string{
		`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"get_weather","arguments":"{\"latit"}}]}}]}`,
		`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"ude\":1.5}"}}]}}]}`,
		`data: {"choices":[{"delta":{},"finish_reason":"tool_calls"}]}`,
		`data: [DONE]`,
	})
	defer server.Close()

	client := NewOpenAICompatibleClient()
	cfg := ChatConfig{BaseURL: server.URL, APIKey: "k", Model: "m"}

	result, err := client.StreamComplete(context.Background(), cfg, nil, nil, func(StreamEvent) error { return nil })
	if err != nil {
		t.Fatalf("StreamComplete: %v", err)
	}

	if len(result.ToolCalls) != 1 {
		t.Fatalf("got %d tool calls, want 1", len(result.ToolCalls))
	}
	call := result.ToolCalls[0]
	if call.ID != "call_1" || call.Function.Name != "get_weather" {
		t.Errorf("unexpected tool call: %+v", call)
	}
	if call.Function.Arguments != `{"latitude":1.5}` {
		t.Errorf("arguments not accumulated: %q", call.Function.Arguments)
	}
	if result.FinishReason != "tool_calls" {
		t.Errorf("finish reason: got %q", result.FinishReason)
	}
}

func TestStreamCompleteUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewOpenAICompatibleClient()
	cfg := ChatConfig{BaseURL: server.URL, APIKey: "k", Model: "m"}

	if _, err := client.StreamComplete(context.Background(), cfg, nil, nil, func(StreamEvent) error { return nil }); err == nil {
		t.Fatal("expected error for 500 response")
	}
}

func TestComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"full answer"}}]}`))
	}))
	defer server.Close()

	client := NewOpenAICompatibleClient()
	cfg := ChatConfig{BaseURL: server.URL, APIKey: "k", Model: "m"}

	got, err := client.Complete(context.Background(), cfg, []ChatMessage{{Role: "user", Content: "q"}})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "full answer" {
		t.Errorf("got %q", got)
	}
}

func TestSystemPromptByVariant(t *testing.T) {
	if got := SystemPrompt(VariantReasoning); got != regularPrompt {
		t.Errorf("reasoning variant should get the plain prompt, got %q", got)
	}
	if got := SystemPrompt(VariantChat); got == regularPrompt {
		t.Error("chat variant should get the tools prompt")
	}
}
