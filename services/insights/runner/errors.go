// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package runner

import (
	"errors"
	"fmt"
	"time"
)

// ErrCancelled is returned when the caller cancels the run. In-flight
// tool calls finish under their own timeouts but their results are
// discarded.
var ErrCancelled = errors.New("insights run cancelled")

// DeadlineError is terminal: the per-iteration or total budget expired.
type DeadlineError struct {
	Iteration     int
	MaxIterations int
	Elapsed       time.Duration

	// Phase names the suspension point that timed out.
	Phase string
}

func (e *DeadlineError) Error() string {
	return fmt.Sprintf("AI processing took too long at iteration %d/%d (%.0f s elapsed). Try simplifying your question.",
		e.Iteration, e.MaxIterations, e.Elapsed.Seconds())
}

// ModelUnresponsiveError is terminal: the model returned empty responses
// despite repeated reminders.
type ModelUnresponsiveError struct {
	Iteration  int
	EmptyCount int
}

func (e *ModelUnresponsiveError) Error() string {
	return fmt.Sprintf("model returned %d consecutive empty responses (iteration %d); giving up",
		e.EmptyCount, e.Iteration)
}
