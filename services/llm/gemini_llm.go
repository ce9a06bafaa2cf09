package llm

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"google.golang.org/genai"
)

var geminiTracer = otel.Tracer("anchorage.llm.gemini")

// GeminiConfig configures the Google Gemini adapter.
type GeminiConfig struct {
	APIKey      string
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

// GeminiClient streams responses from the Gemini API via the official
// genai SDK.
type GeminiClient struct {
	statsRecorder
	cfg GeminiConfig

	mu     sync.Mutex
	client *genai.Client
}

func NewGeminiClient(cfg GeminiConfig) *GeminiClient {
	slog.Info("Initializing Gemini client", "model", cfg.Model)
	return &GeminiClient{cfg: cfg}
}

func (g *GeminiClient) ModelName() string    { return g.cfg.Model }
func (g *GeminiClient) ProviderName() string { return "gemini" }

func (g *GeminiClient) ValidateConfig() error {
	if g.cfg.APIKey == "" {
		return newError("gemini", KindAuthentication, "API key is not configured")
	}
	if g.cfg.Model == "" {
		return newError("gemini", KindInvalidRequest, "model is not configured")
	}
	return nil
}

// Connect builds the underlying SDK client.
func (g *GeminiClient) Connect(ctx context.Context) error {
	if err := g.ValidateConfig(); err != nil {
		return err
	}
	_, err := g.ensureClient(ctx)
	return err
}

func (g *GeminiClient) Disconnect() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.client = nil
	return nil
}

func (g *GeminiClient) ensureClient(ctx context.Context) (*genai.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.client != nil {
		return g.client, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  g.cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, wrapError("gemini", KindConnection, "failed to create client", err)
	}
	g.client = client
	return client, nil
}

// StreamChat streams a generation. The SDK exposes the stream as an
// iterator, so the goroutine ranges it and forwards text parts.
func (g *GeminiClient) StreamChat(ctx context.Context, messages []Message, opts StreamOptions) (<-chan Chunk, error) {
	client, err := g.ensureClient(ctx)
	if err != nil {
		return nil, err
	}

	ctx, span := geminiTracer.Start(ctx, "GeminiClient.StreamChat")
	span.SetAttributes(
		attribute.String("llm.model", g.cfg.Model),
		attribute.Int("llm.num_messages", len(messages)),
	)

	contents, systemInstruction := g.convertMessages(messages, opts.SystemPrompt)

	temp := g.cfg.Temperature
	if opts.Temperature != nil {
		temp = *opts.Temperature
	}
	maxTokens := g.cfg.MaxTokens
	if opts.MaxTokens != nil {
		maxTokens = *opts.MaxTokens
	}
	genCfg := &genai.GenerateContentConfig{
		SystemInstruction: systemInstruction,
		Temperature:       genai.Ptr(temp),
	}
	if maxTokens > 0 {
		genCfg.MaxOutputTokens = int32(maxTokens)
	}
	if len(opts.Stop) > 0 {
		genCfg.StopSequences = opts.Stop
	}

	cancel := context.CancelFunc(func() {})
	if g.cfg.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
	}

	out := make(chan Chunk, streamChanCap)
	// The iterator only reports handshake failures on its first step, so
	// the first result decides whether StreamChat errors or streams.
	startCh := make(chan error, 1)

	start := time.Now()
	go func() {
		defer span.End()
		defer cancel()
		defer close(out)

		started := false
		var promptTokens, completionTokens int

		for resp, err := range client.Models.GenerateContentStream(ctx, g.cfg.Model, contents, genCfg) {
			if err != nil {
				cerr := g.classify(err)
				span.RecordError(cerr)
				span.SetStatus(codes.Error, cerr.Error())
				if !started {
					started = true
					startCh <- cerr
					return
				}
				select {
				case out <- Chunk{Err: cerr}:
				case <-ctx.Done():
				}
				return
			}
			if !started {
				started = true
				startCh <- nil
			}
			if resp == nil {
				continue
			}
			if resp.UsageMetadata != nil {
				promptTokens = int(resp.UsageMetadata.PromptTokenCount)
				completionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
			}
			for _, cand := range resp.Candidates {
				if cand.Content == nil {
					continue
				}
				for _, part := range cand.Content.Parts {
					if part.Text == "" || part.Thought {
						continue
					}
					select {
					case out <- Chunk{Content: part.Text}:
					case <-ctx.Done():
						return
					}
				}
			}
		}
		if !started {
			// Empty stream without error: report success, deliver nothing.
			startCh <- nil
		}
		g.record(g.cfg.Model, promptTokens, completionTokens, time.Since(start))
		span.SetAttributes(attribute.Int("llm.completion_tokens", completionTokens))
	}()

	select {
	case err := <-startCh:
		if err != nil {
			return nil, err
		}
		return out, nil
	case <-ctx.Done():
		return nil, classifyTransport("gemini", ctx.Err())
	}
}

func (g *GeminiClient) convertMessages(messages []Message, systemPrompt string) ([]*genai.Content, *genai.Content) {
	var contents []*genai.Content
	var systemParts []*genai.Part
	if systemPrompt != "" {
		systemParts = append(systemParts, &genai.Part{Text: systemPrompt})
	}
	for _, m := range messages {
		if m.Content == "" {
			continue
		}
		switch m.Role {
		case RoleSystem:
			systemParts = append(systemParts, &genai.Part{Text: m.Content})
		case RoleAssistant:
			contents = append(contents, &genai.Content{
				Role:  genai.RoleModel,
				Parts: []*genai.Part{{Text: m.Content}},
			})
		default:
			contents = append(contents, &genai.Content{
				Role:  genai.RoleUser,
				Parts: []*genai.Part{{Text: m.Content}},
			})
		}
	}
	var system *genai.Content
	if len(systemParts) > 0 {
		system = &genai.Content{Parts: systemParts}
	}
	return contents, system
}

func (g *GeminiClient) classify(err error) *Error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus("gemini", apiErr.Code, apiErr.Message)
	}
	return classifyTransport("gemini", err)
}

var _ Provider = (*GeminiClient)(nil)
