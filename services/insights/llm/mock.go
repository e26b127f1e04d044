// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"sync"

	"github.com/AleutianAI/gridsage/services/insights/datatypes"
)

// ScriptStep is one scripted exchange for the mock client.
type ScriptStep struct {
	// Response is returned verbatim.
	Response string

	// Err, when set, is returned instead of Response.
	Err error

	// Delay blocks before responding, bounded by the context. For
	// deadline tests.
	Delay func(ctx context.Context) error
}

// Mock replays a fixed script of responses. Calls beyond the script
// repeat the last step.
//
// Thread Safety: safe for concurrent use, though runner invocations are
// sequential by design.
type Mock struct {
	Script []ScriptStep

	mu sync.Mutex
	// Transcripts records the messages of every call, for assertions.
	Transcripts [][]datatypes.Message
	calls       int
}

var _ Client = (*Mock)(nil)

func (m *Mock) Model() string     { return "mock" }
func (m *Mock) NativeTools() bool { return false }

// Calls returns how many times Chat has been invoked.
func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *Mock) Chat(ctx context.Context, messages []datatypes.Message, _ Params) (string, error) {
	m.mu.Lock()
	snapshot := make([]datatypes.Message, len(messages))
	copy(snapshot, messages)
	m.Transcripts = append(m.Transcripts, snapshot)

	idx := m.calls
	if idx >= len(m.Script) {
		idx = len(m.Script) - 1
	}
	m.calls++
	m.mu.Unlock()

	if idx < 0 {
		return "", nil
	}
	step := m.Script[idx]
	if step.Delay != nil {
		if err := step.Delay(ctx); err != nil {
			return "", err
		}
	}
	if step.Err != nil {
		return "", step.Err
	}
	return step.Response, nil
}
