package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var openaiTracer = otel.Tracer("anchorage.llm.openai")

// OpenAIConfig configures an OpenAI-compatible backend. Databricks and
// OpenRouter expose the same chat completions surface, so one adapter
// serves all three; only the base URL and provider label differ.
type OpenAIConfig struct {
	// ProviderLabel names the backend in logs and errors ("openai",
	// "databricks", "openrouter").
	ProviderLabel string
	APIKey        string
	BaseURL       string
	Model         string
	Temperature   float32
	MaxTokens     int
	Timeout       time.Duration
}

// OpenAIClient streams chat completions from any OpenAI-compatible API.
type OpenAIClient struct {
	statsRecorder
	client *openai.Client
	cfg    OpenAIConfig
}

// NewOpenAIClient builds the adapter. ValidateConfig reports missing
// credentials; construction itself never fails on config.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	if cfg.ProviderLabel == "" {
		cfg.ProviderLabel = "openai"
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}
	slog.Info("Initializing OpenAI-compatible client",
		"provider", cfg.ProviderLabel, "model", cfg.Model, "base_url", clientCfg.BaseURL)
	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientCfg),
		cfg:    cfg,
	}
}

func (c *OpenAIClient) ModelName() string    { return c.cfg.Model }
func (c *OpenAIClient) ProviderName() string { return c.cfg.ProviderLabel }

func (c *OpenAIClient) ValidateConfig() error {
	if c.cfg.APIKey == "" {
		return newError(c.cfg.ProviderLabel, KindAuthentication, "API key is not configured")
	}
	if c.cfg.Model == "" {
		return newError(c.cfg.ProviderLabel, KindInvalidRequest, "model is not configured")
	}
	return nil
}

// Connect verifies credentials with a cheap models call.
func (c *OpenAIClient) Connect(ctx context.Context) error {
	if err := c.ValidateConfig(); err != nil {
		return err
	}
	if _, err := c.client.ListModels(ctx); err != nil {
		return c.classify(err)
	}
	return nil
}

func (c *OpenAIClient) Disconnect() error { return nil }

// StreamChat starts a streaming completion. Request construction and the
// upstream handshake happen before any channel is returned, so handshake
// failures surface as plain errors rather than stream frames.
func (c *OpenAIClient) StreamChat(ctx context.Context, messages []Message, opts StreamOptions) (<-chan Chunk, error) {
	ctx, span := openaiTracer.Start(ctx, "OpenAIClient.StreamChat")
	span.SetAttributes(
		attribute.String("llm.provider", c.cfg.ProviderLabel),
		attribute.String("llm.model", c.cfg.Model),
		attribute.Int("llm.num_messages", len(messages)),
	)

	req := openai.ChatCompletionRequest{
		Model:         c.cfg.Model,
		Messages:      c.buildMessages(messages, opts),
		Stream:        true,
		StreamOptions: &openai.StreamOptions{IncludeUsage: true},
		Temperature:   c.cfg.Temperature,
		MaxTokens:     c.cfg.MaxTokens,
	}
	if opts.Temperature != nil {
		req.Temperature = *opts.Temperature
	}
	if opts.MaxTokens != nil {
		req.MaxTokens = *opts.MaxTokens
	}
	if len(opts.Stop) > 0 {
		req.Stop = opts.Stop
	}

	cancel := context.CancelFunc(func() {})
	if c.cfg.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
	}

	start := time.Now()
	stream, err := c.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		cancel()
		cerr := c.classify(err)
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
		defer stream.Close()

		var promptTokens, completionTokens int
		usageSeen := false
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				cerr := c.classify(err)
				span.RecordError(cerr)
				span.SetStatus(codes.Error, cerr.Error())
				c.deliver(ctx, out, Chunk{Err: cerr})
				return
			}
			if resp.Usage != nil {
				promptTokens = resp.Usage.PromptTokens
				completionTokens = resp.Usage.CompletionTokens
				usageSeen = true
			}
			if len(resp.Choices) == 0 {
				continue
			}
			delta := resp.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			if !c.deliver(ctx, out, Chunk{Content: delta}) {
				return
			}
		}

		elapsed := time.Since(start)
		if !usageSeen {
			slog.Debug("Stream finished without usage frame", "provider", c.cfg.ProviderLabel)
		}
		c.record(c.cfg.Model, promptTokens, completionTokens, elapsed)
		span.SetAttributes(attribute.Int("llm.completion_tokens", completionTokens))
	}()
	return out, nil
}

// deliver pushes a chunk unless the consumer is gone.
func (c *OpenAIClient) deliver(ctx context.Context, out chan<- Chunk, chunk Chunk) bool {
	select {
	case out <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *OpenAIClient) buildMessages(messages []Message, opts StreamOptions) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if opts.SystemPrompt != "" {
		out = append(out, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: opts.SystemPrompt,
		})
	}
	for _, m := range messages {
		out = append(out, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

func (c *OpenAIClient) classify(err error) *Error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus(c.cfg.ProviderLabel, apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return classifyStatus(c.cfg.ProviderLabel, reqErr.HTTPStatusCode, fmt.Sprint(reqErr.Err))
	}
	return classifyTransport(c.cfg.ProviderLabel, err)
}
