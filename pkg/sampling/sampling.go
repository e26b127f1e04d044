// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package sampling holds the stride downsampling shared by the tool
// layer and the conversation runner.
package sampling

// Stride reduces points to roughly target entries, always keeping the
// last one. Slices already at or under the target pass through
// unchanged, as does any target below 2.
func Stride[T any](points []T, target int) []T {
	if len(points) <= target || target < 2 {
		return points
	}
	stride := float64(len(points)) / float64(target)
	out := make([]T, 0, target+1)
	for i := 0.0; int(i) < len(points)-1; i += stride {
		out = append(out, points[int(i)])
	}
	return append(out, points[len(points)-1])
}
