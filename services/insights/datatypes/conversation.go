// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

// Conversation roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn in the reasoning conversation.
//
// The first message of a conversation is always the initial prompt and the
// last message is always a user turn when the model is about to be called.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ToolInvocation records one tool dispatch made during the reasoning loop.
type ToolInvocation struct {
	// Name is the catalog name of the tool.
	Name string `json:"name"`

	// Parameters are the arguments the model supplied.
	Parameters map[string]any `json:"parameters"`

	// Iteration is the loop iteration the call was made in (1-based).
	Iteration int `json:"iteration"`

	// DurationMs is the wall-clock execution time.
	DurationMs int64 `json:"duration_ms"`

	// Error holds the tool error message, empty on success.
	Error string `json:"error,omitempty"`
}

// Mode selects how much work the engine does up front.
type Mode string

const (
	// ModeSync is for interactive calls: a lean context is assembled and
	// the model fetches the rest through tools.
	ModeSync Mode = "sync"

	// ModeBackground is for scheduled runs: the context is fully preloaded.
	ModeBackground Mode = "background"
)
