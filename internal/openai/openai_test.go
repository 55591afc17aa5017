package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ctxpkg "github.com/stupiduntilnot/investbot/internal/context"
	modelpkg "github.com/stupiduntilnot/investbot/internal/model"
)

func completionBody(choices []map[string]any, usage map[string]any) map[string]any {
	resp := map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   "test-model",
		"choices": choices,
	}
	if usage != nil {
		resp["usage"] = usage
	}
	return resp
}

func choice(content string) map[string]any {
	return map[string]any{
		"index":         0,
		"finish_reason": "stop",
		"message":       map[string]any{"role": "assistant", "content": content},
	}
}

func newTestClient(url string) *Client {
	return NewClient("test-key", url, "test-model", 5*time.Second, 0)
}

func TestChatCompletion_WithUsage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := completionBody(
			[]map[string]any{choice("Hello!")},
			map[string]any{"prompt_tokens": 42, "completion_tokens": 7, "total_tokens": 49},
		)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	result, err := client.ChatCompletion(context.Background(), []ctxpkg.Message{{Role: ctxpkg.RoleUser, Content: "hi"}})
	if err != nil {
		t.Fatal(err)
	}

	if result.Content != "Hello!" {
		t.Errorf("expected content 'Hello!', got %q", result.Content)
	}
	if result.InputTokens != 42 {
		t.Errorf("expected 42 input tokens, got %d", result.InputTokens)
	}
	if result.OutputTokens != 7 {
		t.Errorf("expected 7 output tokens, got %d", result.OutputTokens)
	}
}

func TestChatCompletion_SendsRolesAndAuth(t *testing.T) {
	var gotBody map[string]any
	var gotAuth, gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(completionBody([]map[string]any{choice("ok")}, nil))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.ChatCompletion(context.Background(), []ctxpkg.Message{
		{Role: ctxpkg.RoleSystem, Content: "be brief"},
		{Role: ctxpkg.RoleUser, Content: "q"},
		{Role: ctxpkg.RoleAssistant, Content: "a"},
		{Role: ctxpkg.RoleUser, Content: "q2"},
	})
	if err != nil {
		t.Fatal(err)
	}

	if gotAuth != "Bearer test-key" {
		t.Errorf("unexpected auth header: %q", gotAuth)
	}
	if !strings.HasSuffix(gotPath, "/chat/completions") {
		t.Errorf("unexpected path: %q", gotPath)
	}
	if gotBody["model"] != "test-model" {
		t.Errorf("unexpected model: %v", gotBody["model"])
	}
	msgs, _ := gotBody["messages"].([]any)
	if len(msgs) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(msgs))
	}
	wantRoles := []string{"system", "user", "assistant", "user"}
	for i, raw := range msgs {
		m, _ := raw.(map[string]any)
		if m["role"] != wantRoles[i] {
			t.Errorf("message %d: expected role %s, got %v", i, wantRoles[i], m["role"])
		}
	}
}

func TestChatCompletion_NoUsage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(completionBody([]map[string]any{choice("World")}, nil))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	result, err := client.ChatCompletion(context.Background(), []ctxpkg.Message{{Role: ctxpkg.RoleUser, Content: "hi"}})
	if err != nil {
		t.Fatal(err)
	}

	if result.Content != "World" {
		t.Errorf("expected 'World', got %q", result.Content)
	}
	if result.InputTokens != 0 || result.OutputTokens != 0 {
		t.Errorf("expected zero usage, got %+v", result)
	}
}

func TestChatCompletion_EmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := completionBody(
			[]map[string]any{},
			map[string]any{"prompt_tokens": 10, "completion_tokens": 0, "total_tokens": 10},
		)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	result, err := client.ChatCompletion(context.Background(), []ctxpkg.Message{{Role: ctxpkg.RoleUser, Content: "hi"}})
	if err != nil {
		t.Fatal(err)
	}

	if result.Content != modelpkg.EmptyResponse {
		t.Errorf("expected empty model response fallback, got %q", result.Content)
	}
	if result.InputTokens != 10 {
		t.Errorf("expected 10 input tokens, got %d", result.InputTokens)
	}
}

func TestChatCompletion_BlankContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(completionBody([]map[string]any{choice("   \n")}, nil))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	result, err := client.ChatCompletion(context.Background(), []ctxpkg.Message{{Role: ctxpkg.RoleUser, Content: "hi"}})
	if err != nil {
		t.Fatal(err)
	}
	if result.Content != modelpkg.EmptyResponse {
		t.Errorf("expected empty model response fallback, got %q", result.Content)
	}
}

func TestChatCompletion_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limited","type":"rate_limit_error"}}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.ChatCompletion(context.Background(), []ctxpkg.Message{{Role: ctxpkg.RoleUser, Content: "hi"}})
	if err == nil {
		t.Fatal("expected error for 429 response")
	}
	if !strings.Contains(err.Error(), "openai") {
		t.Fatalf("expected openai-prefixed error, got %v", err)
	}
}

func TestChatCompletion_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	client := newTestClient(server.URL)
	_, err := client.ChatCompletion(ctx, []ctxpkg.Message{{Role: ctxpkg.RoleUser, Content: "hi"}})
	if err == nil {
		t.Fatal("expected error when context deadline passes")
	}
}
