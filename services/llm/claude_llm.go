package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var claudeTracer = otel.Tracer("anchorage.llm.claude")

const (
	anthropicAPIVersion = "2023-06-01"
	anthropicBaseURL    = "https://api.anthropic.com/v1/messages"
)

type claudeRequest struct {
	Model     string          `json:"model"`
	Messages  []claudeMessage `json:"messages"`
	System    []systemBlock   `json:"system,omitempty"` // Top-level system prompt
	MaxTokens int             `json:"max_tokens"`

	Temperature *float32 `json:"temperature,omitempty"`
	StopSeqs    []string `json:"stop_sequences,omitempty"`
	Stream      bool     `json:"stream,omitempty"`
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type systemBlock struct {
	Type         string        `json:"type"`
	Text         string        `json:"text"`
	CacheControl *cacheControl `json:"cache_control,omitempty"`
}

type cacheControl struct {
	Type string `json:"type"` // Must be "ephemeral"
}

// claudeStreamEvent covers the subset of the Messages streaming events the
// adapter needs: text deltas, usage accounting, and in-stream errors.
type claudeStreamEvent struct {
	Type    string `json:"type"`
	Message *struct {
		Usage *claudeUsage `json:"usage"`
	} `json:"message,omitempty"`
	Delta *struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta,omitempty"`
	Usage *claudeUsage `json:"usage,omitempty"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type claudeUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// ClaudeConfig configures the Anthropic Messages adapter.
type ClaudeConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

// ClaudeClient streams responses from the Anthropic Messages API.
type ClaudeClient struct {
	statsRecorder
	httpClient *http.Client
	cfg        ClaudeConfig
	baseURL    string
}

func NewClaudeClient(cfg ClaudeConfig) *ClaudeClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = anthropicBaseURL
	}
	slog.Info("Initializing Claude client", "model", cfg.Model)
	return &ClaudeClient{
		// Timeout is enforced per-request via context so that long
		// streams are bounded by total duration, not idle time.
		httpClient: &http.Client{},
		cfg:        cfg,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
	}
}

func (c *ClaudeClient) ModelName() string    { return c.cfg.Model }
func (c *ClaudeClient) ProviderName() string { return "claude" }

func (c *ClaudeClient) ValidateConfig() error {
	if c.cfg.APIKey == "" {
		return newError("claude", KindAuthentication, "API key is not configured")
	}
	if c.cfg.Model == "" {
		return newError("claude", KindInvalidRequest, "model is not configured")
	}
	return nil
}

// Connect only checks configuration. The Messages API has no cheap
// credential probe, so bad keys surface on the first stream.
func (c *ClaudeClient) Connect(ctx context.Context) error {
	return c.ValidateConfig()
}

func (c *ClaudeClient) Disconnect() error { return nil }

// StreamChat opens a Messages stream. The system prompt travels in the
// top-level system field with an ephemeral cache marker, matching how the
// API wants long stable prefixes sent.
func (c *ClaudeClient) StreamChat(ctx context.Context, messages []Message, opts StreamOptions) (<-chan Chunk, error) {
	ctx, span := claudeTracer.Start(ctx, "ClaudeClient.StreamChat")
	span.SetAttributes(
		attribute.String("llm.model", c.cfg.Model),
		attribute.Int("llm.num_messages", len(messages)),
	)

	maxTokens := c.cfg.MaxTokens
	if opts.MaxTokens != nil {
		maxTokens = *opts.MaxTokens
	}
	payload := claudeRequest{
		Model:     c.cfg.Model,
		MaxTokens: maxTokens,
		Stream:    true,
	}
	temp := c.cfg.Temperature
	if opts.Temperature != nil {
		temp = *opts.Temperature
	}
	payload.Temperature = &temp
	if len(opts.Stop) > 0 {
		payload.StopSeqs = opts.Stop
	}
	if opts.SystemPrompt != "" {
		payload.System = []systemBlock{{
			Type:         "text",
			Text:         opts.SystemPrompt,
			CacheControl: &cacheControl{Type: "ephemeral"},
		}}
	}
	for _, m := range messages {
		if m.Role == RoleSystem {
			// The Messages API rejects system-role turns; fold them
			// into the top-level system blocks instead.
			payload.System = append(payload.System, systemBlock{Type: "text", Text: m.Content})
			continue
		}
		payload.Messages = append(payload.Messages, claudeMessage{Role: m.Role, Content: m.Content})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		span.End()
		return nil, wrapError("claude", KindInvalidRequest, "failed to marshal request", err)
	}

	cancel := context.CancelFunc(func() {})
	if c.cfg.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		cancel()
		span.End()
		return nil, wrapError("claude", KindInvalidRequest, "failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.cfg.APIKey)
	req.Header.Set("anthropic-version", anthropicAPIVersion)
	req.Header.Set("Accept", "text/event-stream")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		cancel()
		cerr := classifyTransport("claude", err)
		span.RecordError(cerr)
		span.SetStatus(codes.Error, cerr.Error())
		span.End()
		return nil, cerr
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		cancel()
		cerr := classifyStatus("claude", resp.StatusCode, string(respBody))
		span.RecordError(cerr)
		span.SetStatus(codes.Error, cerr.Error())
		span.End()
		return nil, cerr
	}

	out := make(chan Chunk, streamChanCap)
	go func() {
		defer span.End()
		defer cancel()
		defer close(out)
		defer resp.Body.Close()

		var inputTokens, outputTokens int
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "" {
				continue
			}

			var ev claudeStreamEvent
			if err := json.Unmarshal([]byte(data), &ev); err != nil {
				slog.Warn("Skipping unparseable Claude stream event", "error", err)
				continue
			}
			switch ev.Type {
			case "message_start":
				if ev.Message != nil && ev.Message.Usage != nil {
					inputTokens = ev.Message.Usage.InputTokens
				}
			case "content_block_delta":
				if ev.Delta != nil && ev.Delta.Text != "" {
					select {
					case out <- Chunk{Content: ev.Delta.Text}:
					case <-ctx.Done():
						return
					}
				}
			case "message_delta":
				if ev.Usage != nil {
					outputTokens = ev.Usage.OutputTokens
				}
			case "error":
				msg := "stream error"
				if ev.Error != nil {
					msg = ev.Error.Message
				}
				cerr := newError("claude", KindStreaming, msg)
				span.RecordError(cerr)
				span.SetStatus(codes.Error, cerr.Error())
				select {
				case out <- Chunk{Err: cerr}:
				case <-ctx.Done():
				}
				return
			case "message_stop":
				c.record(c.cfg.Model, inputTokens, outputTokens, time.Since(start))
				span.SetAttributes(attribute.Int("llm.completion_tokens", outputTokens))
				return
			}
		}
		if err := scanner.Err(); err != nil {
			cerr := classifyTransport("claude", err)
			if ctx.Err() != nil {
				cerr = classifyTransport("claude", ctx.Err())
			}
			span.RecordError(cerr)
			span.SetStatus(codes.Error, cerr.Error())
			select {
			case out <- Chunk{Err: cerr}:
			case <-ctx.Done():
			}
			return
		}
		// Upstream closed without message_stop. Treat as complete but
		// record what we have.
		c.record(c.cfg.Model, inputTokens, outputTokens, time.Since(start))
	}()
	return out, nil
}

var _ Provider = (*ClaudeClient)(nil)
