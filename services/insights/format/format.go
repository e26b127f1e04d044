// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package format wraps a final answer with the standard frame and scores
// its confidence. The score is a UX signal, never a gate.
package format

import (
	"fmt"
	"strings"
	"time"

	"github.com/AleutianAI/gridsage/services/insights/datatypes"
)

// headerMarker opens every framed answer. Text that already carries it
// passes through unchanged.
const headerMarker = "⚡ GridSage Battery Insights"

// Section headings that indicate the model followed the output rules;
// such answers are presented as-is.
var framedSections = []string{"## KEY FINDINGS", "## OPERATIONAL STATUS"}

var uncertaintyPhrases = []string{
	"insufficient data",
	"cannot determine",
	"unable to determine",
	"not enough data",
	"no historical data",
}

var qualityPhrases = []string{
	"high confidence",
	"strong correlation",
	"clear pattern",
	"consistent trend",
}

// toolBoostFragments mark tools whose use indicates a deeper analysis.
var toolBoostFragments = []string{"predict", "pattern", "budget"}

// Input is everything the formatter needs about one finished run.
type Input struct {
	RawText        string
	ToolCalls      []datatypes.ToolInvocation
	GenerationTime time.Duration
	ContextSummary *datatypes.ContextSummary
}

// Render packages a raw final answer into the Insights payload.
func Render(in Input) *datatypes.Insights {
	score := Confidence(in.RawText, in.ToolCalls)
	return &datatypes.Insights{
		RawText:        in.RawText,
		FormattedText:  frame(in.RawText, score, len(in.ToolCalls), in.GenerationTime),
		HealthStatus:   healthStatus(in.RawText),
		Performance:    score,
		ContextSummary: in.ContextSummary,
	}
}

// Confidence scores an answer from heuristics over the text and the tool
// trace.
//
// Description:
//
//	Starts at 100. No tool use costs 15. Any uncertainty phrase costs
//	20, applied once. Any quality phrase earns 5, applied once. Use of
//	a prediction, pattern, or budget tool earns 10, applied once. The
//	result is clamped to [0, 100] and is deterministic for a given
//	(text, trace) pair.
func Confidence(text string, toolCalls []datatypes.ToolInvocation) int {
	score := 100
	lower := strings.ToLower(text)

	if len(toolCalls) == 0 {
		score -= 15
	}
	if containsAny(lower, uncertaintyPhrases) {
		score -= 20
	}
	if containsAny(lower, qualityPhrases) {
		score += 5
	}
	if toolBoost(toolCalls) {
		score += 10
	}

	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func containsAny(lower string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

func toolBoost(toolCalls []datatypes.ToolInvocation) bool {
	for _, tc := range toolCalls {
		name := strings.ToLower(tc.Name)
		for _, fragment := range toolBoostFragments {
			if strings.Contains(name, fragment) {
				return true
			}
		}
	}
	return false
}

// frame wraps the body unless it already carries the marker or the
// required sections.
func frame(raw string, score, toolCount int, genTime time.Duration) string {
	if strings.Contains(raw, headerMarker) {
		return raw
	}
	for _, section := range framedSections {
		if strings.Contains(raw, section) {
			return raw
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\nConfidence: %s %d/100 · %s\n\n---\n\n",
		headerMarker, confidenceBadge(score), score, toolCountLine(toolCount))
	b.WriteString(strings.TrimSpace(raw))
	fmt.Fprintf(&b, "\n\n---\nGenerated in %.1f s\n", genTime.Seconds())
	return b.String()
}

func confidenceBadge(score int) string {
	switch {
	case score >= 80:
		return "🟢"
	case score >= 50:
		return "🟡"
	default:
		return "🔴"
	}
}

func toolCountLine(n int) string {
	switch n {
	case 0:
		return "no data lookups"
	case 1:
		return "1 data lookup"
	default:
		return fmt.Sprintf("%d data lookups", n)
	}
}

// healthStatus derives the coarse health tag from the answer's urgency
// markers, falling back to keyword scanning for unframed text.
func healthStatus(text string) string {
	if strings.TrimSpace(text) == "" {
		return "unknown"
	}
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(text, "🔴") || strings.Contains(lower, "critical"):
		return "critical"
	case strings.Contains(text, "🟡") || strings.Contains(lower, "warning"):
		return "warning"
	default:
		return "good"
	}
}
