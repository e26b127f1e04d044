// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package runner

import (
	"fmt"

	"github.com/AleutianAI/gridsage/pkg/logging"
	"github.com/AleutianAI/gridsage/pkg/sampling"
	"github.com/AleutianAI/gridsage/services/insights/datatypes"
)

// tailKeep is how many trailing messages survive pruning unconditionally.
const tailKeep = 4

// EstimateTokens approximates the token cost of a history.
func EstimateTokens(history []datatypes.Message, tokensPerChar float64) int {
	var chars int
	for _, m := range history {
		chars += len(m.Content)
	}
	return int(float64(chars) * tokensPerChar)
}

// PruneHistory fits a conversation under the token limit.
//
// Description:
//
//	The first message (initial prompt) and the last four messages are
//	kept verbatim. The middle is stride-sampled at increasing strides
//	until the whole transcript fits; when even a single middle message
//	is too much, the middle is dropped entirely. Histories already
//	under the limit pass through unchanged.
func PruneHistory(history []datatypes.Message, limit int, tokensPerChar float64, log *logging.Logger) []datatypes.Message {
	before := EstimateTokens(history, tokensPerChar)
	if before <= limit || len(history) <= tailKeep+1 {
		return history
	}

	first := history[0]
	tail := history[len(history)-tailKeep:]
	middle := history[1 : len(history)-tailKeep]

	fixed := EstimateTokens([]datatypes.Message{first}, tokensPerChar) +
		EstimateTokens(tail, tokensPerChar)
	budget := limit - fixed

	kept := sampleMiddle(middle, budget, tokensPerChar)

	pruned := make([]datatypes.Message, 0, 1+len(kept)+tailKeep)
	pruned = append(pruned, first)
	pruned = append(pruned, kept...)
	pruned = append(pruned, tail...)

	log.Info("conversation pruned",
		"messages_before", len(history),
		"messages_after", len(pruned),
		"tokens_before", before,
		"tokens_after", EstimateTokens(pruned, tokensPerChar))
	return pruned
}

// sampleMiddle picks the largest stride-sampled subset of middle that
// fits the budget, preferring recent messages by anchoring the stride at
// the end.
func sampleMiddle(middle []datatypes.Message, budget int, tokensPerChar float64) []datatypes.Message {
	if budget <= 0 || len(middle) == 0 {
		return nil
	}
	for stride := 1; stride <= len(middle); stride++ {
		var kept []datatypes.Message
		for i := len(middle) - 1; i >= 0; i -= stride {
			kept = append(kept, middle[i])
		}
		// reverse into chronological order
		for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
			kept[i], kept[j] = kept[j], kept[i]
		}
		if EstimateTokens(kept, tokensPerChar) <= budget {
			return kept
		}
	}
	return nil
}

// Compaction thresholds for tool-result data arrays.
const (
	compactHardLimit   = 200
	compactHardTarget  = 80
	compactSoftLimit   = 150
	compactSoftTarget  = 100
)

// CompactToolResult shrinks oversized data arrays inside a tool result.
//
// Description:
//
//	Results exposing a "data" array longer than 200 entries are
//	stride-sampled to about 80 keeping the last entry; 151-200 entries
//	sample to 100. A note invites a narrower query. Anything smaller
//	passes through unchanged. The input map is modified in place.
func CompactToolResult(data any) any {
	m, ok := data.(map[string]any)
	if !ok {
		return data
	}
	length, sample := arraySampler(m["data"])
	if sample == nil {
		return data
	}

	var target int
	switch {
	case length > compactHardLimit:
		target = compactHardTarget
	case length > compactSoftLimit:
		target = compactSoftTarget
	default:
		return data
	}

	m["data"] = sample(target)
	m["compaction_note"] = fmt.Sprintf(
		"data resampled from %d to about %d entries (newest preserved); issue a narrower query for full resolution",
		length, target)
	return m
}

// arraySampler adapts the concrete slice types tool handlers produce to
// one stride-sampling closure.
func arraySampler(v any) (int, func(target int) any) {
	switch arr := v.(type) {
	case []map[string]any:
		return len(arr), func(target int) any { return sampling.Stride(arr, target) }
	case []any:
		return len(arr), func(target int) any { return sampling.Stride(arr, target) }
	}
	return 0, nil
}
