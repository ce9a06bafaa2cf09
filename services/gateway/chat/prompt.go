// Copyright (C) 2025 Anchorage Systems (eng@anchorage.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package chat

import (
	"strings"

	"github.com/anchorage-ai/anchorage/services/gateway/datatypes"
	"github.com/anchorage-ai/anchorage/services/llm"
)

// systemPreamble is the fixed first section of every system prompt.
const systemPreamble = "You are a helpful assistant. Answer the user's " +
	"questions accurately and clearly. If you are unsure about something, " +
	"say so instead of guessing."

// historyWindow is how many prior messages accompany each generation.
const historyWindow = 20

// buildSystemPrompt appends the user's stored preferences to the fixed
// preamble. An empty customization yields the preamble alone.
func buildSystemPrompt(customization string) string {
	customization = strings.TrimSpace(customization)
	if customization == "" {
		return systemPreamble
	}
	return systemPreamble + "\n\nUser preferences: " + customization
}

// contextTurns converts transcript history into the auditable context
// record persisted with each message.
func contextTurns(history []datatypes.Message) []datatypes.PromptTurn {
	turns := make([]datatypes.PromptTurn, 0, len(history))
	for _, m := range history {
		turns = append(turns, datatypes.PromptTurn{Role: m.Role, Content: m.Content})
	}
	return turns
}

// llmMessages builds the provider request: history turns followed by the
// new user message. The system prompt travels separately in the stream
// options.
func llmMessages(history []datatypes.Message, userMessage string) []llm.Message {
	msgs := make([]llm.Message, 0, len(history)+1)
	for _, m := range history {
		msgs = append(msgs, llm.Message{Role: m.Role, Content: m.Content})
	}
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: userMessage})
	return msgs
}
