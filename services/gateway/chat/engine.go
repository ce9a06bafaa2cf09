// Copyright (C) 2025 Anchorage Systems (eng@anchorage.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package chat orchestrates one generation turn: permission preflight,
// prompt assembly, transcript persistence, and the token stream back to
// the caller.
package chat

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/anchorage-ai/anchorage/pkg/apperrors"
	"github.com/anchorage-ai/anchorage/services/gateway/authz"
	"github.com/anchorage-ai/anchorage/services/gateway/datatypes"
	"github.com/anchorage-ai/anchorage/services/gateway/settings"
	"github.com/anchorage-ai/anchorage/services/gateway/store"
	"github.com/anchorage-ai/anchorage/services/llm"
)

var tracer = otel.Tracer("anchorage.gateway.chat")

// Event is one unit of the response stream. A non-nil Err is terminal;
// channel close without an Err means the generation completed.
type Event struct {
	Content string
	Err     error
}

// Request is one chat turn. PromptCustomization, when non-nil, overrides
// the user's stored preference for this turn only; an explicit empty
// string disables customization.
type Request struct {
	ConversationID      string
	Message             string
	PromptCustomization *string
}

// Engine runs chat turns against the configured provider.
type Engine struct {
	convs    *store.Conversations
	msgs     *store.Messages
	settings *settings.Service
	provider llm.Provider
	logger   *slog.Logger
}

func NewEngine(convs *store.Conversations, msgs *store.Messages, st *settings.Service, provider llm.Provider, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{convs: convs, msgs: msgs, settings: st, provider: provider, logger: logger}
}

// Stream runs one chat turn.
//
// Everything that can be checked before any token is generated happens
// before the channel is returned, so those failures surface as plain
// errors the transport can map to status codes. Once streaming starts,
// failures arrive as a terminal Event; a failed or abandoned turn leaves
// no assistant message and does not touch the conversation record.
func (e *Engine) Stream(ctx context.Context, principal datatypes.Principal, req Request) (<-chan Event, error) {
	ctx, span := tracer.Start(ctx, "Engine.Stream")
	span.SetAttributes(attribute.String("conversation.id", req.ConversationID))

	if strings.TrimSpace(req.Message) == "" {
		return nil, e.fail(span, apperrors.New(apperrors.KindBadRequest, "message is empty"))
	}

	conv, err := e.convs.MustGet(ctx, req.ConversationID)
	if err != nil {
		return nil, e.fail(span, err)
	}
	// Anyone who can read the transcript can continue it: the owner,
	// a member of a shared-with group, or an elevated role.
	if err := authz.CanReadConversation(principal, conv); err != nil {
		return nil, e.fail(span, err)
	}

	customization, err := e.resolveCustomization(ctx, principal.ID, req.PromptCustomization)
	if err != nil {
		return nil, e.fail(span, err)
	}
	systemPrompt := buildSystemPrompt(customization)

	history, err := e.msgs.Tail(ctx, conv.ID, historyWindow)
	if err != nil {
		return nil, e.fail(span, err)
	}

	// The same context record is stored on both sides of the turn, so it
	// is always possible to audit exactly what the model saw.
	fullPrompt := &datatypes.LLMFullPrompt{
		System:         systemPrompt,
		Context:        contextTurns(history),
		CurrentMessage: req.Message,
	}

	userMsg, err := e.msgs.Append(ctx, &datatypes.Message{
		ConversationID: conv.ID,
		Role:           datatypes.MessageRoleUser,
		Content:        req.Message,
		LLMFullPrompt:  fullPrompt,
		CreatedAt:      time.Now().UTC(),
	})
	if err != nil {
		return nil, e.fail(span, err)
	}

	chunks, err := e.provider.StreamChat(ctx, llmMessages(history, req.Message), llm.StreamOptions{
		SystemPrompt: systemPrompt,
	})
	if err != nil {
		// The user message stays: the turn was asked, the model never
		// answered. A retry creates a fresh turn.
		return nil, e.fail(span, err)
	}

	out := make(chan Event, 1)
	go func() {
		defer span.End()
		defer close(out)

		var acc strings.Builder
		for chunk := range chunks {
			if chunk.Err != nil {
				span.RecordError(chunk.Err)
				span.SetStatus(codes.Error, chunk.Err.Error())
				e.logger.Warn("Generation failed mid-stream",
					"conversation_id", conv.ID, "error", chunk.Err)
				select {
				case out <- Event{Err: chunk.Err}:
				case <-ctx.Done():
				}
				return
			}
			acc.WriteString(chunk.Content)
			select {
			case out <- Event{Content: chunk.Content}:
			case <-ctx.Done():
				// Client went away; the accumulated text is discarded.
				e.logger.Info("Client disconnected mid-generation",
					"conversation_id", conv.ID)
				return
			}
		}
		if ctx.Err() != nil {
			return
		}
		e.finishTurn(conv.ID, userMsg, fullPrompt, acc.String(), span)
	}()
	return out, nil
}

// finishTurn persists the assistant message and refreshes the
// conversation record. Runs with a fresh context: a client that
// disconnects right after the final token must not lose the completed
// answer.
func (e *Engine) finishTurn(conversationID string, userMsg *datatypes.Message, fullPrompt *datatypes.LLMFullPrompt, answer string, span trace.Span) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var stats *datatypes.LLMStats
	if s := e.provider.Stats(); s != nil {
		stats = &datatypes.LLMStats{
			Model:            s.Model,
			PromptTokens:     s.PromptTokens,
			CompletionTokens: s.CompletionTokens,
			TotalTokens:      s.TotalTokens,
			TotalDurationS:   s.Duration.Seconds(),
			TokensPerSecond:  s.TokensPerSecond,
		}
		span.SetAttributes(attribute.Int("llm.total_tokens", s.TotalTokens))
	}

	assistantAt := time.Now().UTC()
	if !assistantAt.After(userMsg.CreatedAt) {
		// Keep the transcript order total even on coarse clocks.
		assistantAt = userMsg.CreatedAt.Add(time.Millisecond)
	}
	_, err := e.msgs.Append(ctx, &datatypes.Message{
		ConversationID: conversationID,
		Role:           datatypes.MessageRoleAssistant,
		Content:        answer,
		LLMFullPrompt:  fullPrompt,
		LLMRawResponse: answer,
		LLMStats:       stats,
		CreatedAt:      assistantAt,
	})
	if err != nil {
		span.RecordError(err)
		e.logger.Error("Failed to persist assistant message",
			"conversation_id", conversationID, "error", err)
		return
	}
	if _, err := e.convs.Touch(ctx, conversationID, e.msgs); err != nil {
		e.logger.Error("Failed to update conversation after turn",
			"conversation_id", conversationID, "error", err)
	}
}

// resolveCustomization picks the effective preference: the inline
// override when present, the stored setting otherwise.
func (e *Engine) resolveCustomization(ctx context.Context, userID string, inline *string) (string, error) {
	if inline != nil {
		return *inline, nil
	}
	return e.settings.PromptCustomization(ctx, userID)
}

func (e *Engine) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.End()
	return err
}
