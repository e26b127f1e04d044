// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package llm defines the model client boundary for the insights engine.
//
// The runner speaks one protocol regardless of provider: it sends a
// conversation and receives assistant text. Providers with native
// function calling normalize tool-call responses into the same JSON
// shape the text protocol uses, so the runner parses one format.
package llm

import (
	"context"

	"github.com/AleutianAI/gridsage/services/insights/datatypes"
)

// Params are per-request generation knobs. Nil fields use provider
// defaults.
type Params struct {
	Temperature *float32 `json:"temperature,omitempty"`
	TopP        *float32 `json:"top_p,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

// ToolDef describes one tool for providers with native function calling.
type ToolDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Client is the LLM boundary the runner depends on.
type Client interface {
	// Chat sends the conversation and returns the assistant's text.
	// The first message carries the full prompt; later messages are
	// alternating tool responses and assistant turns.
	Chat(ctx context.Context, messages []datatypes.Message, params Params) (string, error)

	// Model returns the model identifier, for logging.
	Model() string

	// NativeTools reports whether tool requests arrive through the
	// provider's function-calling API rather than instructed JSON.
	NativeTools() bool
}

// float32p, intp build optional params inline.
func float32p(v float32) *float32 { return &v }
func intp(v int) *int             { return &v }

// DefaultParams are the engine's standard generation settings. Low
// temperature: the output is an operational report, not prose.
func DefaultParams() Params {
	return Params{
		Temperature: float32p(0.2),
		TopP:        float32p(0.9),
		MaxTokens:   intp(4096),
	}
}
