package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var ollamaTracer = otel.Tracer("anchorage.llm.ollama")

// OllamaConfig configures the local inference adapter.
type OllamaConfig struct {
	// BaseURL of the Ollama server, e.g. http://localhost:11434.
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
	// KeepAlive controls how long the model stays loaded after a request.
	KeepAlive time.Duration
}

// ModelInfo describes one locally available model.
type ModelInfo struct {
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
}

// OllamaClient streams chat responses from a local Ollama server.
type OllamaClient struct {
	statsRecorder
	client *api.Client
	cfg    OllamaConfig
}

func NewOllamaClient(cfg OllamaConfig) (*OllamaClient, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, wrapError("ollama", KindInvalidRequest, "invalid base URL", err)
	}
	slog.Info("Initializing Ollama client", "base_url", u.String(), "model", cfg.Model)
	return &OllamaClient{
		client: api.NewClient(u, http.DefaultClient),
		cfg:    cfg,
	}, nil
}

func (o *OllamaClient) ModelName() string    { return o.cfg.Model }
func (o *OllamaClient) ProviderName() string { return "ollama" }

func (o *OllamaClient) ValidateConfig() error {
	if o.cfg.Model == "" {
		return newError("ollama", KindInvalidRequest, "model is not configured")
	}
	return nil
}

// Connect pings the server. A local server that is down should fail fast
// at startup, not on the first chat.
func (o *OllamaClient) Connect(ctx context.Context) error {
	if err := o.ValidateConfig(); err != nil {
		return err
	}
	if err := o.client.Heartbeat(ctx); err != nil {
		return o.classify(err)
	}
	return nil
}

func (o *OllamaClient) Disconnect() error { return nil }

// StreamChat streams a chat completion. Ollama pushes NDJSON frames; the
// api client turns them into callback invocations.
func (o *OllamaClient) StreamChat(ctx context.Context, messages []Message, opts StreamOptions) (<-chan Chunk, error) {
	ctx, span := ollamaTracer.Start(ctx, "OllamaClient.StreamChat")
	span.SetAttributes(
		attribute.String("llm.model", o.cfg.Model),
		attribute.Int("llm.num_messages", len(messages)),
	)

	apiMessages := make([]api.Message, 0, len(messages)+1)
	if opts.SystemPrompt != "" {
		apiMessages = append(apiMessages, api.Message{Role: RoleSystem, Content: opts.SystemPrompt})
	}
	for _, m := range messages {
		apiMessages = append(apiMessages, api.Message{Role: m.Role, Content: m.Content})
	}

	options := o.buildOptions(opts)
	stream := true
	req := &api.ChatRequest{
		Model:    o.cfg.Model,
		Messages: apiMessages,
		Stream:   &stream,
		Options:  options,
	}
	if o.cfg.KeepAlive > 0 {
		req.KeepAlive = &api.Duration{Duration: o.cfg.KeepAlive}
	}

	cancel := context.CancelFunc(func() {})
	if o.cfg.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, o.cfg.Timeout)
	}

	out := make(chan Chunk, streamChanCap)
	start := time.Now()
	go func() {
		defer span.End()
		defer cancel()
		defer close(out)

		var final *api.ChatResponse
		err := o.client.Chat(ctx, req, func(resp api.ChatResponse) error {
			if resp.Done {
				r := resp
				final = &r
			}
			if resp.Message.Content == "" {
				return nil
			}
			select {
			case out <- Chunk{Content: resp.Message.Content}:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		if err != nil {
			cerr := o.classify(err)
			span.RecordError(cerr)
			span.SetStatus(codes.Error, cerr.Error())
			select {
			case out <- Chunk{Err: cerr}:
			case <-ctx.Done():
			}
			return
		}
		if final != nil {
			o.record(o.cfg.Model, final.PromptEvalCount, final.EvalCount, time.Since(start))
			span.SetAttributes(attribute.Int("llm.completion_tokens", final.EvalCount))
		}
	}()
	return out, nil
}

// ListModels returns the models present in the local registry.
func (o *OllamaClient) ListModels(ctx context.Context) ([]ModelInfo, error) {
	resp, err := o.client.List(ctx)
	if err != nil {
		return nil, o.classify(err)
	}
	out := make([]ModelInfo, 0, len(resp.Models))
	for _, m := range resp.Models {
		out = append(out, ModelInfo{
			Name:       m.Name,
			Size:       m.Size,
			ModifiedAt: m.ModifiedAt,
		})
	}
	return out, nil
}

// PullModel downloads a model and then verifies it actually landed in the
// registry. Ollama reports pull success per-layer; the list check catches
// pulls that completed without registering the model.
func (o *OllamaClient) PullModel(ctx context.Context, name string) error {
	ctx, span := ollamaTracer.Start(ctx, "OllamaClient.PullModel")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", name))

	var lastStatus string
	err := o.client.Pull(ctx, &api.PullRequest{Model: name}, func(p api.ProgressResponse) error {
		if p.Status != lastStatus {
			lastStatus = p.Status
			slog.Info("Pulling model", "model", name, "status", p.Status)
		}
		return nil
	})
	if err != nil {
		cerr := o.classify(err)
		span.RecordError(cerr)
		span.SetStatus(codes.Error, cerr.Error())
		return cerr
	}

	models, err := o.ListModels(ctx)
	if err != nil {
		return err
	}
	for _, m := range models {
		if m.Name == name || strings.TrimSuffix(m.Name, ":latest") == name {
			return nil
		}
	}
	return newError("ollama", KindModelNotFound,
		fmt.Sprintf("model %q did not appear in the registry after pull", name))
}

func (o *OllamaClient) buildOptions(opts StreamOptions) map[string]any {
	options := make(map[string]any)
	if opts.Temperature != nil {
		options["temperature"] = *opts.Temperature
	} else {
		options["temperature"] = o.cfg.Temperature
	}
	if opts.MaxTokens != nil {
		options["num_predict"] = *opts.MaxTokens
	} else if o.cfg.MaxTokens > 0 {
		options["num_predict"] = o.cfg.MaxTokens
	}
	if len(opts.Stop) > 0 {
		options["stop"] = opts.Stop
	}
	return options
}

func (o *OllamaClient) classify(err error) *Error {
	var se api.StatusError
	if errors.As(err, &se) {
		msg := se.ErrorMessage
		if msg == "" {
			msg = se.Status
		}
		if se.StatusCode == http.StatusNotFound {
			return newError("ollama", KindModelNotFound,
				fmt.Sprintf("model %q not found; pull it first", o.cfg.Model))
		}
		return classifyStatus("ollama", se.StatusCode, msg)
	}
	return classifyTransport("ollama", err)
}

var _ Provider = (*OllamaClient)(nil)
