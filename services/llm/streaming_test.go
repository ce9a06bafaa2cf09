package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// collect drains a chunk channel into content and a terminal error.
func collect(ch <-chan Chunk) (string, error) {
	var sb strings.Builder
	for chunk := range ch {
		if chunk.Err != nil {
			return sb.String(), chunk.Err
		}
		sb.WriteString(chunk.Content)
	}
	return sb.String(), nil
}

// =============================================================================
// OpenAI-compatible adapter
// =============================================================================

func newTestOpenAIClient(baseURL string) *OpenAIClient {
	return NewOpenAIClient(OpenAIConfig{
		ProviderLabel: "openai",
		APIKey:        "test-key",
		BaseURL:       baseURL,
		Model:         "test-model",
		MaxTokens:     128,
	})
}

func TestOpenAIStreamChat_BasicSuccess(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("Expected chat completions path, got %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Expected bearer auth header, got %q", got)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hello\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\" there\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[],\"usage\":{\"prompt_tokens\":7,\"completion_tokens\":2,\"total_tokens\":9}}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	client := newTestOpenAIClient(server.URL + "/v1")
	if client.Stats() != nil {
		t.Fatal("Stats should be nil before the first completed stream")
	}

	ch, err := client.StreamChat(context.Background(), []Message{{Role: RoleUser, Content: "Hi"}}, StreamOptions{})
	if err != nil {
		t.Fatalf("StreamChat returned error: %v", err)
	}

	got, err := collect(ch)
	if err != nil {
		t.Fatalf("stream returned error: %v", err)
	}
	if got != "Hello there" {
		t.Errorf("Expected 'Hello there', got %q", got)
	}

	stats := client.Stats()
	if stats == nil {
		t.Fatal("Stats should be recorded after a completed stream")
	}
	if stats.PromptTokens != 7 || stats.CompletionTokens != 2 || stats.TotalTokens != 9 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
	if stats.Model != "test-model" {
		t.Errorf("Expected model in stats, got %q", stats.Model)
	}
}

func TestOpenAIStreamChat_ChannelCapacity(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"x\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	client := newTestOpenAIClient(server.URL + "/v1")
	ch, err := client.StreamChat(context.Background(), []Message{{Role: RoleUser, Content: "Hi"}}, StreamOptions{})
	if err != nil {
		t.Fatalf("StreamChat returned error: %v", err)
	}
	if cap(ch) != 1 {
		t.Errorf("Stream channel capacity must be 1, got %d", cap(ch))
	}
	collect(ch)
}

func TestOpenAIStreamChat_AuthFailureBeforeStreaming(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`)
	}))
	defer server.Close()

	client := newTestOpenAIClient(server.URL + "/v1")
	_, err := client.StreamChat(context.Background(), []Message{{Role: RoleUser, Content: "Hi"}}, StreamOptions{})
	if err == nil {
		t.Fatal("StreamChat should fail on 401 before returning a channel")
	}
	if KindOfError(err) != KindAuthentication {
		t.Errorf("Expected KindAuthentication, got %v", KindOfError(err))
	}
	if client.Stats() != nil {
		t.Error("Stats must stay nil after a failed handshake")
	}
}

func TestOpenAIStreamChat_SystemPromptPrepended(t *testing.T) {
	t.Parallel()

	var gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	client := newTestOpenAIClient(server.URL + "/v1")
	ch, err := client.StreamChat(context.Background(),
		[]Message{{Role: RoleUser, Content: "Hi"}},
		StreamOptions{SystemPrompt: "You are terse."})
	if err != nil {
		t.Fatalf("StreamChat returned error: %v", err)
	}
	collect(ch)

	if !strings.Contains(gotBody, `"role":"system"`) || !strings.Contains(gotBody, "You are terse.") {
		t.Errorf("Request body should carry the system prompt, got: %s", gotBody)
	}
	sysIdx := strings.Index(gotBody, `"role":"system"`)
	userIdx := strings.Index(gotBody, `"role":"user"`)
	if sysIdx > userIdx {
		t.Error("System message must precede user messages")
	}
}

// =============================================================================
// Claude adapter
// =============================================================================

func newTestClaudeClient(baseURL string) *ClaudeClient {
	return NewClaudeClient(ClaudeConfig{
		APIKey:    "test-key",
		BaseURL:   baseURL,
		Model:     "claude-test",
		MaxTokens: 128,
	})
}

func TestClaudeStreamChat_BasicSuccess(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("x-api-key"); got != "test-key" {
			t.Errorf("Expected x-api-key header, got %q", got)
		}
		if got := r.Header.Get("anthropic-version"); got != anthropicAPIVersion {
			t.Errorf("Expected anthropic-version header, got %q", got)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: message_start\n")
		fmt.Fprint(w, "data: {\"type\":\"message_start\",\"message\":{\"usage\":{\"input_tokens\":11}}}\n\n")
		fmt.Fprint(w, "event: content_block_delta\n")
		fmt.Fprint(w, "data: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"Hel\"}}\n\n")
		fmt.Fprint(w, "event: content_block_delta\n")
		fmt.Fprint(w, "data: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"lo\"}}\n\n")
		fmt.Fprint(w, "event: message_delta\n")
		fmt.Fprint(w, "data: {\"type\":\"message_delta\",\"usage\":{\"output_tokens\":4}}\n\n")
		fmt.Fprint(w, "event: message_stop\n")
		fmt.Fprint(w, "data: {\"type\":\"message_stop\"}\n\n")
	}))
	defer server.Close()

	client := newTestClaudeClient(server.URL)
	ch, err := client.StreamChat(context.Background(), []Message{{Role: RoleUser, Content: "Hi"}}, StreamOptions{})
	if err != nil {
		t.Fatalf("StreamChat returned error: %v", err)
	}

	got, err := collect(ch)
	if err != nil {
		t.Fatalf("stream returned error: %v", err)
	}
	if got != "Hello" {
		t.Errorf("Expected 'Hello', got %q", got)
	}

	stats := client.Stats()
	if stats == nil {
		t.Fatal("Stats should be recorded after message_stop")
	}
	if stats.PromptTokens != 11 || stats.CompletionTokens != 4 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
}

func TestClaudeStreamChat_InStreamError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"Part\"}}\n\n")
		fmt.Fprint(w, "data: {\"type\":\"error\",\"error\":{\"type\":\"overloaded_error\",\"message\":\"Overloaded\"}}\n\n")
	}))
	defer server.Close()

	client := newTestClaudeClient(server.URL)
	ch, err := client.StreamChat(context.Background(), []Message{{Role: RoleUser, Content: "Hi"}}, StreamOptions{})
	if err != nil {
		t.Fatalf("StreamChat returned error: %v", err)
	}

	got, err := collect(ch)
	if got != "Part" {
		t.Errorf("Expected partial content 'Part', got %q", got)
	}
	if err == nil {
		t.Fatal("Terminal frame should carry the stream error")
	}
	if KindOfError(err) != KindStreaming {
		t.Errorf("Expected KindStreaming, got %v", KindOfError(err))
	}
}

func TestClaudeStreamChat_RateLimitBeforeStreaming(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"type":"rate_limit_error","message":"Rate limited"}}`)
	}))
	defer server.Close()

	client := newTestClaudeClient(server.URL)
	_, err := client.StreamChat(context.Background(), []Message{{Role: RoleUser, Content: "Hi"}}, StreamOptions{})
	if err == nil {
		t.Fatal("StreamChat should fail on 429 before returning a channel")
	}
	if KindOfError(err) != KindRateLimit {
		t.Errorf("Expected KindRateLimit, got %v", KindOfError(err))
	}
}

func TestClaudeStreamChat_SystemTurnsFolded(t *testing.T) {
	t.Parallel()

	var gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"type\":\"message_stop\"}\n\n")
	}))
	defer server.Close()

	client := newTestClaudeClient(server.URL)
	ch, err := client.StreamChat(context.Background(),
		[]Message{
			{Role: RoleSystem, Content: "legacy system turn"},
			{Role: RoleUser, Content: "Hi"},
		},
		StreamOptions{SystemPrompt: "You are terse."})
	if err != nil {
		t.Fatalf("StreamChat returned error: %v", err)
	}
	collect(ch)

	if !strings.Contains(gotBody, "You are terse.") || !strings.Contains(gotBody, "legacy system turn") {
		t.Errorf("System content missing from request: %s", gotBody)
	}
	if strings.Contains(gotBody, `"role":"system"`) {
		t.Error("Messages array must not contain system-role turns")
	}
}

// =============================================================================
// Ollama adapter
// =============================================================================

func newTestOllamaAdapter(t *testing.T, baseURL string) *OllamaClient {
	t.Helper()
	client, err := NewOllamaClient(OllamaConfig{BaseURL: baseURL, Model: "test-model"})
	if err != nil {
		t.Fatalf("NewOllamaClient returned error: %v", err)
	}
	return client
}

func TestOllamaStreamChat_BasicSuccess(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("Expected path /api/chat, got %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":"Hello"},"done":false}`)
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":" world"},"done":false}`)
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":""},"done":true,"done_reason":"stop","prompt_eval_count":9,"eval_count":3,"total_duration":1500000000}`)
	}))
	defer server.Close()

	client := newTestOllamaAdapter(t, server.URL)
	ch, err := client.StreamChat(context.Background(), []Message{{Role: RoleUser, Content: "Hi"}}, StreamOptions{})
	if err != nil {
		t.Fatalf("StreamChat returned error: %v", err)
	}

	got, err := collect(ch)
	if err != nil {
		t.Fatalf("stream returned error: %v", err)
	}
	if got != "Hello world" {
		t.Errorf("Expected 'Hello world', got %q", got)
	}

	stats := client.Stats()
	if stats == nil {
		t.Fatal("Stats should be recorded after a completed stream")
	}
	if stats.PromptTokens != 9 || stats.CompletionTokens != 3 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
}

func TestOllamaStreamChat_ModelNotFound(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprintln(w, `{"error":"model 'test-model' not found"}`)
	}))
	defer server.Close()

	client := newTestOllamaAdapter(t, server.URL)
	ch, err := client.StreamChat(context.Background(), []Message{{Role: RoleUser, Content: "Hi"}}, StreamOptions{})
	if err != nil {
		t.Fatalf("StreamChat defers backend errors to the stream, got: %v", err)
	}
	_, err = collect(ch)
	if err == nil {
		t.Fatal("Terminal frame should carry the error")
	}
	if KindOfError(err) != KindModelNotFound {
		t.Errorf("Expected KindModelNotFound, got %v", KindOfError(err))
	}
}

func TestOllamaStreamChat_ContextCancellation(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-ndjson")
		fmt.Fprintln(w, `{"message":{"content":"First"},"done":false}`)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		time.Sleep(500 * time.Millisecond)
		fmt.Fprintln(w, `{"message":{"content":"Second"},"done":false}`)
		fmt.Fprintln(w, `{"done":true}`)
	}))
	defer server.Close()

	client := newTestOllamaAdapter(t, server.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	ch, err := client.StreamChat(ctx, []Message{{Role: RoleUser, Content: "Hi"}}, StreamOptions{})
	if err != nil {
		t.Fatalf("StreamChat returned error: %v", err)
	}
	_, err = collect(ch)
	if err == nil {
		t.Fatal("Cancelled stream should end with an error frame")
	}
	if KindOfError(err) != KindTimeout && !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected a timeout classification, got: %v", err)
	}
}

func TestOllamaListModels(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("Expected path /api/tags, got %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintln(w, `{"models":[{"name":"llama3:latest","size":123},{"name":"qwen:7b","size":456}]}`)
	}))
	defer server.Close()

	client := newTestOllamaAdapter(t, server.URL)
	models, err := client.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels returned error: %v", err)
	}
	if len(models) != 2 {
		t.Fatalf("Expected 2 models, got %d", len(models))
	}
	if models[0].Name != "llama3:latest" {
		t.Errorf("Unexpected first model: %+v", models[0])
	}
}

func TestOllamaPullModel_VerifiesRegistry(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/pull":
			w.Header().Set("Content-Type", "application/x-ndjson")
			fmt.Fprintln(w, `{"status":"pulling manifest"}`)
			fmt.Fprintln(w, `{"status":"success"}`)
		case "/api/tags":
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintln(w, `{"models":[{"name":"other:latest"}]}`)
		default:
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	client := newTestOllamaAdapter(t, server.URL)
	err := client.PullModel(context.Background(), "llama3")
	if err == nil {
		t.Fatal("PullModel should fail when the model never appears in the registry")
	}
	if KindOfError(err) != KindModelNotFound {
		t.Errorf("Expected KindModelNotFound, got %v", KindOfError(err))
	}
}

// =============================================================================
// Error classification
// =============================================================================

func TestClassifyStatus(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		status int
		body   string
		want   ErrorKind
	}{
		{"unauthorized", http.StatusUnauthorized, "", KindAuthentication},
		{"forbidden", http.StatusForbidden, "", KindAuthentication},
		{"not found", http.StatusNotFound, "no such model", KindModelNotFound},
		{"rate limited", http.StatusTooManyRequests, "", KindRateLimit},
		{"bad request", http.StatusBadRequest, "malformed input", KindInvalidRequest},
		{"context overflow", http.StatusBadRequest, "this model's maximum context length is 8192 tokens", KindContextLength},
		{"prompt too long", http.StatusBadRequest, "prompt is too long: 210000 tokens", KindContextLength},
		{"request timeout", http.StatusRequestTimeout, "", KindTimeout},
		{"server error", http.StatusInternalServerError, "", KindStreaming},
		{"bad gateway", http.StatusBadGateway, "", KindStreaming},
		{"gateway timeout", http.StatusGatewayTimeout, "", KindStreaming},
		{"service unavailable", http.StatusServiceUnavailable, "", KindStreaming},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := classifyStatus("test", tc.status, tc.body)
			if got.Kind != tc.want {
				t.Errorf("classifyStatus(%d, %q) = %v, want %v", tc.status, tc.body, got.Kind, tc.want)
			}
		})
	}
}

func TestClassifyTransport(t *testing.T) {
	t.Parallel()

	if got := classifyTransport("test", context.DeadlineExceeded); got.Kind != KindTimeout {
		t.Errorf("DeadlineExceeded should map to KindTimeout, got %v", got.Kind)
	}
	if got := classifyTransport("test", context.Canceled); got.Kind != KindStreaming {
		t.Errorf("Canceled should map to KindStreaming, got %v", got.Kind)
	}
	if got := classifyTransport("test", errors.New("dial tcp: refused")); got.Kind != KindConnection {
		t.Errorf("Dial errors should map to KindConnection, got %v", got.Kind)
	}
}
