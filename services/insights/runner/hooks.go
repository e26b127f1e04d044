// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package runner

import (
	"github.com/AleutianAI/gridsage/pkg/logging"
	"github.com/AleutianAI/gridsage/services/insights/datatypes"
)

// previewLen bounds the preview strings handed to hooks.
const previewLen = 240

// IterationInfo accompanies OnIterationStart.
type IterationInfo struct {
	Iteration     int
	MaxIterations int
}

// PromptInfo accompanies OnPromptSent.
type PromptInfo struct {
	Iteration int
	Preview   string
	Full      string
}

// ResponseInfo accompanies OnResponseReceived.
type ResponseInfo struct {
	Iteration int
	Preview   string
	Full      string
}

// ToolCallInfo accompanies OnToolCall.
type ToolCallInfo struct {
	Iteration  int
	Tool       string
	Parameters map[string]any
}

// ToolResultInfo accompanies OnToolResult.
type ToolResultInfo struct {
	Iteration  int
	Tool       string
	DurationMs int64
	Error      string
}

// PartialInfo accompanies OnPartialUpdate.
type PartialInfo struct {
	Iteration int
	Text      string
	Final     bool
}

// FinalInfo accompanies OnFinalAnswer.
type FinalInfo struct {
	Iteration int
	Text      string
}

// Hooks are the best-effort observation points of the loop. Every field
// is optional. A hook panic is swallowed with a warning; hooks can never
// affect loop behavior.
type Hooks struct {
	OnContextBuilt     func(summary *datatypes.ContextSummary)
	OnIterationStart   func(IterationInfo)
	OnPromptSent       func(PromptInfo)
	OnResponseReceived func(ResponseInfo)
	OnToolCall         func(ToolCallInfo)
	OnToolResult       func(ToolResultInfo)
	OnPartialUpdate    func(PartialInfo)
	OnFinalAnswer      func(FinalInfo)
	OnError            func(error)
}

// emit runs one hook behind a panic guard.
func emit(log *logging.Logger, name string, fn func()) {
	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Warn("hook panicked, ignoring", "hook", name, "panic", r)
		}
	}()
	fn()
}

func preview(s string) string {
	if len(s) <= previewLen {
		return s
	}
	return s[:previewLen] + "..."
}
