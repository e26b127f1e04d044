// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package prompt

import (
	"strings"
	"unicode"
)

// maxMissionLen caps a user-supplied mission. Long prompts burn the
// token budget the reasoning loop needs.
const maxMissionLen = 2000

// SanitizeMission prepares a user-supplied mission statement for
// embedding in the prompt: control characters are stripped (newline and
// tab survive), whitespace is trimmed, and the result is capped at
// maxMissionLen runes. Returns "" when nothing usable remains.
func SanitizeMission(raw string) string {
	if raw == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		switch {
		case r == '\n' || r == '\t':
			b.WriteRune(r)
		case unicode.IsControl(r) || r == unicode.ReplacementChar:
			// dropped
		default:
			b.WriteRune(r)
		}
	}

	out := strings.TrimSpace(b.String())
	if runes := []rune(out); len(runes) > maxMissionLen {
		out = strings.TrimSpace(string(runes[:maxMissionLen]))
	}
	return out
}
