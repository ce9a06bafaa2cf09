package llm

import (
	"context"
	"time"
)

// Role constants for chat messages.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a chat transcript.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// StreamOptions carries the per-request knobs adapters understand.
// Nil pointers mean "use the adapter's configured default".
type StreamOptions struct {
	SystemPrompt string
	Temperature  *float32
	MaxTokens    *int
	Stop         []string
}

// Chunk is one frame of a streamed response. The channel closes cleanly
// after the last content chunk, or the final frame carries Err and then
// the channel closes.
type Chunk struct {
	Content string
	Err     error
}

// Stats describes the last completed generation of a provider instance.
type Stats struct {
	Model            string        `json:"model"`
	PromptTokens     int           `json:"prompt_tokens"`
	CompletionTokens int           `json:"completion_tokens"`
	TotalTokens      int           `json:"total_tokens"`
	Duration         time.Duration `json:"duration"`
	TokensPerSecond  float64       `json:"tokens_per_second"`
}

// Provider is the standard interface for any LLM backend.
//
// StreamChat returns a channel with capacity one, so the producer blocks
// until the consumer drains the previous chunk: at most one chunk is ever
// buffered between the backend and the HTTP response. Cancelling the
// context tears the stream down; the final frame then carries the
// cancellation error.
//
// Stats reports the most recent completed generation and is nil before
// the first one finishes.
type Provider interface {
	Connect(ctx context.Context) error
	Disconnect() error
	StreamChat(ctx context.Context, messages []Message, opts StreamOptions) (<-chan Chunk, error)
	ModelName() string
	ProviderName() string
	ValidateConfig() error
	Stats() *Stats
}

// streamChanCap is the hard backpressure bound for StreamChat channels.
const streamChanCap = 1

// statsRecorder is the shared Stats bookkeeping embedded by adapters.
type statsRecorder struct {
	stats atomicStats
}

func (r *statsRecorder) Stats() *Stats { return r.stats.load() }

// record finalizes stats for one generation. elapsed is wall time from
// first request byte to stream completion.
func (r *statsRecorder) record(model string, promptTokens, completionTokens int, elapsed time.Duration) {
	s := &Stats{
		Model:            model,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
		Duration:         elapsed,
	}
	if elapsed > 0 && completionTokens > 0 {
		s.TokensPerSecond = float64(completionTokens) / elapsed.Seconds()
	}
	r.stats.store(s)
}
