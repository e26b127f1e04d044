// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package runner

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/AleutianAI/gridsage/pkg/logging"
	"github.com/AleutianAI/gridsage/services/insights/datatypes"
)

func testLog() *logging.Logger {
	return logging.Default()
}

func makeHistory(n, msgLen int) []datatypes.Message {
	h := make([]datatypes.Message, n)
	for i := range h {
		role := datatypes.RoleUser
		if i%2 == 1 {
			role = datatypes.RoleAssistant
		}
		h[i] = datatypes.Message{
			Role:    role,
			Content: fmt.Sprintf("msg-%03d ", i) + strings.Repeat("x", msgLen),
		}
	}
	return h
}

func TestPruneHistory_UnderLimitPassesThrough(t *testing.T) {
	h := makeHistory(10, 50)
	pruned := PruneHistory(h, 60_000, 0.25, testLog())
	if len(pruned) != len(h) {
		t.Fatalf("pruned = %d messages, want untouched %d", len(pruned), len(h))
	}
}

func TestPruneHistory_KeepsFirstAndLastFour(t *testing.T) {
	h := makeHistory(40, 2000)
	limit := 5000
	pruned := PruneHistory(h, limit, 0.25, testLog())

	if got := EstimateTokens(pruned, 0.25); got > limit {
		t.Errorf("tokens after pruning = %d, want <= %d", got, limit)
	}
	if pruned[0].Content != h[0].Content {
		t.Error("first message must survive verbatim")
	}
	for i := 0; i < 4; i++ {
		want := h[len(h)-4+i].Content
		got := pruned[len(pruned)-4+i].Content
		if got != want {
			t.Errorf("tail[%d] = %.12q, want %.12q", i, got, want)
		}
	}
}

func TestPruneHistory_RandomizedBudgetProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 50; trial++ {
		n := 6 + rng.Intn(60)
		h := makeHistory(n, 100+rng.Intn(4000))
		limit := 1000 + rng.Intn(20000)

		pruned := PruneHistory(h, limit, 0.25, testLog())

		fixed := EstimateTokens([]datatypes.Message{h[0]}, 0.25) +
			EstimateTokens(h[len(h)-4:], 0.25)
		if fixed <= limit {
			if got := EstimateTokens(pruned, 0.25); got > limit {
				t.Fatalf("trial %d: %d tokens after pruning, limit %d", trial, got, limit)
			}
		}
		if pruned[0].Content != h[0].Content {
			t.Fatalf("trial %d: first message dropped", trial)
		}
		if len(pruned) < 5 {
			t.Fatalf("trial %d: pruned below first+tail floor", trial)
		}
	}
}

func TestPruneHistory_MiddleKeptInOrder(t *testing.T) {
	h := makeHistory(30, 1000)
	pruned := PruneHistory(h, 3000, 0.25, testLog())
	last := -1
	for _, m := range pruned {
		var idx int
		if _, err := fmt.Sscanf(m.Content, "msg-%d", &idx); err != nil {
			t.Fatalf("unexpected content %.12q", m.Content)
		}
		if idx <= last {
			t.Fatalf("message order violated: %d after %d", idx, last)
		}
		last = idx
	}
}

func TestCompactToolResult_LargeArray(t *testing.T) {
	points := make([]map[string]any, 850)
	for i := range points {
		points[i] = map[string]any{"i": i}
	}
	result := map[string]any{"data": points, "count": 850}

	compacted := CompactToolResult(result).(map[string]any)
	out := compacted["data"].([]map[string]any)
	if len(out) < 70 || len(out) > 82 {
		t.Fatalf("compacted to %d entries, want [70, 82]", len(out))
	}
	if out[len(out)-1]["i"] != 849 {
		t.Error("last element must be preserved")
	}
	note, _ := compacted["compaction_note"].(string)
	if !strings.Contains(note, "850") {
		t.Errorf("note = %q", note)
	}
}

func TestCompactToolResult_MidArray(t *testing.T) {
	points := make([]any, 180)
	for i := range points {
		points[i] = i
	}
	compacted := CompactToolResult(map[string]any{"data": points}).(map[string]any)
	out := compacted["data"].([]any)
	if len(out) > 101 {
		t.Fatalf("compacted to %d entries, want <= 101", len(out))
	}
	if out[len(out)-1] != 179 {
		t.Error("last element must be preserved")
	}
}

func TestCompactToolResult_SmallPassesThrough(t *testing.T) {
	points := make([]map[string]any, 150)
	for i := range points {
		points[i] = map[string]any{"i": i}
	}
	result := map[string]any{"data": points}
	compacted := CompactToolResult(result).(map[string]any)
	if len(compacted["data"].([]map[string]any)) != 150 {
		t.Error("arrays at or under 150 must pass through")
	}
	if _, noted := compacted["compaction_note"]; noted {
		t.Error("no note for untouched results")
	}
}

func TestCompactToolResult_NonMapPassesThrough(t *testing.T) {
	if got := CompactToolResult("plain string"); got != "plain string" {
		t.Errorf("got %v", got)
	}
	m := map[string]any{"value": 42}
	if got := CompactToolResult(m).(map[string]any)["value"]; got != 42 {
		t.Errorf("got %v", got)
	}
}
