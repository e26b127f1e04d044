// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package runner

import (
	"encoding/json"
	"strings"
)

// Kind classifies a model response.
type Kind int

const (
	// KindEmpty is a blank or whitespace-only response.
	KindEmpty Kind = iota

	// KindToolCall carries a tool name and parameters.
	KindToolCall

	// KindFinalAnswer carries the final markdown answer.
	KindFinalAnswer

	// KindOther is non-empty text that is not valid protocol JSON.
	KindOther
)

// Parsed is the tagged result of parsing one model response.
type Parsed struct {
	Kind       Kind
	Tool       string
	Parameters map[string]any
	Answer     string

	// Raw is the original response text, preserved for history and for
	// the long-text fallback.
	Raw string
}

// Parse classifies a model response.
//
// Description:
//
//	Three extraction attempts in order: strict JSON over the whole
//	text, the first fenced json code block, the first balanced brace
//	substring. Whatever extracts is interpreted against the protocol;
//	anything else is KindOther. Parse never fails; recovery is the
//	caller's ladder.
func Parse(text string) Parsed {
	p := Parsed{Raw: text}
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return p
	}
	p.Kind = KindOther

	for _, candidate := range []string{trimmed, fencedJSON(trimmed), balancedBraces(trimmed)} {
		if candidate == "" {
			continue
		}
		var obj map[string]json.RawMessage
		if err := json.Unmarshal([]byte(candidate), &obj); err != nil {
			continue
		}
		if interpret(&p, obj) {
			return p
		}
	}
	return p
}

// interpret maps a decoded object onto the protocol variants.
func interpret(p *Parsed, obj map[string]json.RawMessage) bool {
	if raw, ok := obj["final_answer"]; ok {
		var answer string
		if err := json.Unmarshal(raw, &answer); err == nil && strings.TrimSpace(answer) != "" {
			p.Kind = KindFinalAnswer
			p.Answer = answer
			return true
		}
	}

	raw, ok := obj["tool_call"]
	if !ok {
		return false
	}

	// Canonical shape: "tool_call" is the name with a sibling
	// "parameters" object.
	var name string
	if err := json.Unmarshal(raw, &name); err == nil && name != "" {
		p.Kind = KindToolCall
		p.Tool = name
		p.Parameters = decodeParams(obj["parameters"])
		return true
	}

	// Some models nest the call: {"tool_call": {"name": ..., "parameters": {...}}}.
	var nested struct {
		Name       string         `json:"name"`
		Parameters map[string]any `json:"parameters"`
	}
	if err := json.Unmarshal(raw, &nested); err == nil && nested.Name != "" {
		p.Kind = KindToolCall
		p.Tool = nested.Name
		p.Parameters = nested.Parameters
		return true
	}
	return false
}

func decodeParams(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return map[string]any{}
	}
	var params map[string]any
	if err := json.Unmarshal(raw, &params); err != nil || params == nil {
		return map[string]any{}
	}
	return params
}

// fencedJSON extracts the body of the first ```json fence.
func fencedJSON(text string) string {
	for _, opener := range []string{"```json", "```JSON", "```"} {
		start := strings.Index(text, opener)
		if start < 0 {
			continue
		}
		body := text[start+len(opener):]
		end := strings.Index(body, "```")
		if end < 0 {
			continue
		}
		return strings.TrimSpace(body[:end])
	}
	return ""
}

// balancedBraces extracts the first balanced {...} substring, honoring
// strings and escapes.
func balancedBraces(text string) string {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}
