package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
)

// ErrorKind classifies provider failures so the gateway can decide what to
// tell the caller and what status to use.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindAuthentication
	KindModelNotFound
	KindRateLimit
	KindContextLength
	KindInvalidRequest
	KindTimeout
	KindStreaming
	KindConnection
)

func (k ErrorKind) String() string {
	switch k {
	case KindAuthentication:
		return "authentication"
	case KindModelNotFound:
		return "model_not_found"
	case KindRateLimit:
		return "rate_limit"
	case KindContextLength:
		return "context_length"
	case KindInvalidRequest:
		return "invalid_request"
	case KindTimeout:
		return "timeout"
	case KindStreaming:
		return "streaming"
	case KindConnection:
		return "connection"
	default:
		return "unknown"
	}
}

// Error is a classified provider failure.
type Error struct {
	Kind     ErrorKind
	Provider string
	Msg      string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Provider, e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(provider string, kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Provider: provider, Msg: msg}
}

func wrapError(provider string, kind ErrorKind, msg string, err error) *Error {
	return &Error{Kind: kind, Provider: provider, Msg: msg, Err: err}
}

// KindOfError extracts the ErrorKind from an error chain.
func KindOfError(err error) ErrorKind {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	return KindUnknown
}

// classifyStatus maps an upstream HTTP status plus body text onto the
// error taxonomy. Providers share this because their REST surfaces agree
// on the meaning of these codes.
func classifyStatus(provider string, status int, body string) *Error {
	msg := strings.TrimSpace(body)
	if len(msg) > 512 {
		msg = msg[:512]
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return newError(provider, KindAuthentication, "invalid or missing API credentials")
	case status == http.StatusNotFound:
		return newError(provider, KindModelNotFound, msg)
	case status == http.StatusTooManyRequests:
		return newError(provider, KindRateLimit, "rate limit exceeded")
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		if looksLikeContextOverflow(msg) {
			return newError(provider, KindContextLength, "prompt exceeds the model context window")
		}
		return newError(provider, KindInvalidRequest, msg)
	case status == http.StatusRequestTimeout:
		return newError(provider, KindTimeout, "upstream timed out")
	case status >= 500:
		// Connection is reserved for transport failures; a 5xx means the
		// provider answered and the generation itself broke.
		return newError(provider, KindStreaming, fmt.Sprintf("upstream failed with status %d", status))
	default:
		return newError(provider, KindUnknown, fmt.Sprintf("unexpected status %d: %s", status, msg))
	}
}

func looksLikeContextOverflow(msg string) bool {
	m := strings.ToLower(msg)
	return strings.Contains(m, "context length") ||
		strings.Contains(m, "context window") ||
		strings.Contains(m, "maximum context") ||
		strings.Contains(m, "too many tokens") ||
		strings.Contains(m, "prompt is too long")
}

// classifyTransport maps request-level failures (dial errors, deadline
// expiry, caller cancellation) onto the taxonomy.
func classifyTransport(provider string, err error) *Error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return wrapError(provider, KindTimeout, "request deadline exceeded", err)
	case errors.Is(err, context.Canceled):
		return wrapError(provider, KindStreaming, "stream cancelled", err)
	default:
		return wrapError(provider, KindConnection, "request failed", err)
	}
}

// atomicStats is a lock-free holder for the last completed Stats.
type atomicStats struct {
	v atomic.Pointer[Stats]
}

func (a *atomicStats) load() *Stats   { return a.v.Load() }
func (a *atomicStats) store(s *Stats) { a.v.Store(s) }
