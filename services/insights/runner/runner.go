// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package runner drives the reasoning loop: prompt in, tool calls out,
// final answer back.
//
// The loop is single-threaded and cooperative. There is exactly one
// in-flight LLM request and at most one in-flight tool call at any
// time; every wait races a deadline and accepts cancellation.
package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/gridsage/pkg/logging"
	"github.com/AleutianAI/gridsage/services/insights/datatypes"
	"github.com/AleutianAI/gridsage/services/insights/llm"
	"github.com/AleutianAI/gridsage/services/insights/tools"
)

// Config bounds one reasoning run.
type Config struct {
	MaxIterations    int
	IterationTimeout time.Duration
	TotalTimeout     time.Duration

	// TokenLimit caps the estimated conversation size before pruning.
	TokenLimit int

	// TokensPerChar converts characters to estimated tokens.
	TokensPerChar float64
}

// DefaultConfig returns the production budgets.
func DefaultConfig() Config {
	return Config{
		MaxIterations:    10,
		IterationTimeout: 25 * time.Second,
		TotalTimeout:     58 * time.Second,
		TokenLimit:       60_000,
		TokensPerChar:    0.25,
	}
}

// fallbackAnswer is returned when the iteration budget runs out before a
// final answer.
const fallbackAnswer = `## KEY FINDINGS
- 🟡 Analysis could not be completed within the iteration budget. The observations below are partial.

## RECOMMENDATIONS
- 🟡 Re-run the analysis, or ask a narrower question so fewer data lookups are needed.`

// fallbackWarning annotates the degraded outcome.
const fallbackWarning = "iteration budget exhausted before a final answer"

// Outcome is the terminal state of one run.
type Outcome struct {
	// FinalText is the model's final answer, or the fallback text when
	// the Warning is set.
	FinalText string

	ToolCalls  []datatypes.ToolInvocation
	Iterations int

	// Warning is non-empty on degraded completions.
	Warning string
}

// Runner executes reasoning runs against one LLM client and tool
// executor.
//
// Thread Safety: safe for concurrent use; all run state is local.
type Runner struct {
	llm    llm.Client
	exec   *tools.Executor
	cfg    Config
	hooks  Hooks
	log    *logging.Logger
	tracer trace.Tracer
}

// New builds a runner. Zero-valued config fields fall back to defaults.
func New(client llm.Client, exec *tools.Executor, cfg Config, hooks Hooks, log *logging.Logger) *Runner {
	if log == nil {
		log = logging.Default()
	}
	def := DefaultConfig()
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = def.MaxIterations
	}
	if cfg.IterationTimeout <= 0 {
		cfg.IterationTimeout = def.IterationTimeout
	}
	if cfg.TotalTimeout <= 0 {
		cfg.TotalTimeout = def.TotalTimeout
	}
	if cfg.TokenLimit <= 0 {
		cfg.TokenLimit = def.TokenLimit
	}
	if cfg.TokensPerChar <= 0 {
		cfg.TokensPerChar = def.TokensPerChar
	}
	return &Runner{
		llm:    client,
		exec:   exec,
		cfg:    cfg,
		hooks:  hooks,
		log:    log,
		tracer: otel.Tracer("gridsage/runner"),
	}
}

// Run drives the loop from an initial prompt to a terminal state.
//
// Description:
//
//	Each iteration prunes history, sends the transcript, parses the
//	response, and either dispatches a tool call, accepts a final
//	answer, or applies a recovery path. Terminal states: final answer,
//	deadline, model-unresponsive, cancellation, or the fallback result
//	when iterations run out.
//
// Outputs:
//
//	*Outcome - The terminal result; nil only when err is set.
//	error - DeadlineError, ModelUnresponsiveError, ErrCancelled, or a
//	transport failure from the LLM client.
func (r *Runner) Run(ctx context.Context, initialPrompt string) (*Outcome, error) {
	start := time.Now()
	history := []datatypes.Message{{Role: datatypes.RoleUser, Content: initialPrompt}}
	var toolCalls []datatypes.ToolInvocation
	emptyStrikes := 0

	for iter := 1; iter <= r.cfg.MaxIterations; iter++ {
		if err := r.checkCancelled(ctx); err != nil {
			return nil, err
		}
		if elapsed := time.Since(start); elapsed > r.cfg.TotalTimeout {
			err := r.deadline(iter, elapsed, "loop")
			emit(r.log, "OnError", func() {
				if r.hooks.OnError != nil {
					r.hooks.OnError(err)
				}
			})
			return nil, err
		}

		emit(r.log, "OnIterationStart", func() {
			if r.hooks.OnIterationStart != nil {
				r.hooks.OnIterationStart(IterationInfo{Iteration: iter, MaxIterations: r.cfg.MaxIterations})
			}
		})

		pruned := PruneHistory(history, r.cfg.TokenLimit, r.cfg.TokensPerChar, r.log)
		transcript := flatten(pruned)
		emit(r.log, "OnPromptSent", func() {
			if r.hooks.OnPromptSent != nil {
				r.hooks.OnPromptSent(PromptInfo{Iteration: iter, Preview: preview(transcript), Full: transcript})
			}
		})

		response, err := r.generate(ctx, pruned, iter, start)
		if err != nil {
			emit(r.log, "OnError", func() {
				if r.hooks.OnError != nil {
					r.hooks.OnError(err)
				}
			})
			return nil, err
		}
		emit(r.log, "OnResponseReceived", func() {
			if r.hooks.OnResponseReceived != nil {
				r.hooks.OnResponseReceived(ResponseInfo{Iteration: iter, Preview: preview(response), Full: response})
			}
		})

		parsed := Parse(response)
		switch parsed.Kind {
		case KindToolCall:
			emptyStrikes = 0
			invocation := r.dispatch(ctx, &parsed, iter, &history)
			toolCalls = append(toolCalls, invocation)

		case KindFinalAnswer:
			emit(r.log, "OnPartialUpdate", func() {
				if r.hooks.OnPartialUpdate != nil {
					r.hooks.OnPartialUpdate(PartialInfo{Iteration: iter, Text: parsed.Answer, Final: true})
				}
			})
			emit(r.log, "OnFinalAnswer", func() {
				if r.hooks.OnFinalAnswer != nil {
					r.hooks.OnFinalAnswer(FinalInfo{Iteration: iter, Text: parsed.Answer})
				}
			})
			r.log.Info("final answer received", "iteration", iter, "tool_calls", len(toolCalls))
			return &Outcome{FinalText: parsed.Answer, ToolCalls: toolCalls, Iterations: iter}, nil

		case KindOther:
			emptyStrikes = 0
			if outcome := r.recoverUnparseable(&parsed, iter, toolCalls, &history); outcome != nil {
				return outcome, nil
			}

		case KindEmpty:
			emptyStrikes++
			if emptyStrikes >= 2 {
				err := &ModelUnresponsiveError{Iteration: iter, EmptyCount: emptyStrikes}
				emit(r.log, "OnError", func() {
					if r.hooks.OnError != nil {
						r.hooks.OnError(err)
					}
				})
				return nil, err
			}
			r.log.Warn("empty model response, demanding JSON", "iteration", iter, "strikes", emptyStrikes)
			history = append(history, datatypes.Message{
				Role: datatypes.RoleUser,
				Content: fmt.Sprintf(
					"Your last response was empty. This is iteration %d of %d. Respond now with exactly one JSON value: either {\"tool_call\": \"<tool name>\", \"parameters\": {...}} or {\"final_answer\": \"<markdown string>\"}.",
					iter, r.cfg.MaxIterations),
			})
		}
	}

	r.log.Warn("iteration budget exhausted", "iterations", r.cfg.MaxIterations, "tool_calls", len(toolCalls))
	return &Outcome{
		FinalText:  fallbackAnswer,
		ToolCalls:  toolCalls,
		Iterations: r.cfg.MaxIterations,
		Warning:    fallbackWarning,
	}, nil
}

// generate races the LLM call against the per-iteration deadline and the
// remaining total budget.
func (r *Runner) generate(ctx context.Context, history []datatypes.Message, iter int, start time.Time) (string, error) {
	timeout := r.cfg.IterationTimeout
	if remaining := r.cfg.TotalTimeout - time.Since(start); remaining < timeout {
		timeout = remaining
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	callCtx, span := r.tracer.Start(callCtx, "llm.chat",
		trace.WithAttributes(
			attribute.String("llm.model", r.llm.Model()),
			attribute.Int("iteration", iter),
		))
	defer span.End()

	response, err := r.llm.Chat(callCtx, history, llm.DefaultParams())
	switch {
	case err == nil:
		return response, nil
	case ctx.Err() != nil:
		// Caller cancellation wins over the iteration deadline.
		return "", fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
	case errors.Is(err, context.DeadlineExceeded) || callCtx.Err() != nil:
		return "", r.deadline(iter, time.Since(start), "llm")
	default:
		return "", fmt.Errorf("llm generation failed at iteration %d: %w", iter, err)
	}
}

// dispatch executes a parsed tool call and appends the exchange to
// history.
func (r *Runner) dispatch(ctx context.Context, parsed *Parsed, iter int, history *[]datatypes.Message) datatypes.ToolInvocation {
	emit(r.log, "OnToolCall", func() {
		if r.hooks.OnToolCall != nil {
			r.hooks.OnToolCall(ToolCallInfo{Iteration: iter, Tool: parsed.Tool, Parameters: parsed.Parameters})
		}
	})

	execCtx, span := r.tracer.Start(ctx, "tool.execute",
		trace.WithAttributes(
			attribute.String("tool.name", parsed.Tool),
			attribute.Int("iteration", iter),
		))
	result := r.exec.Execute(execCtx, parsed.Tool, parsed.Parameters)
	span.End()

	invocation := datatypes.ToolInvocation{
		Name:       result.Tool,
		Parameters: parsed.Parameters,
		Iteration:  iter,
		DurationMs: result.DurationMs,
	}
	if result.Err != nil {
		invocation.Error = result.Err.Message
	}
	emit(r.log, "OnToolResult", func() {
		if r.hooks.OnToolResult != nil {
			r.hooks.OnToolResult(ToolResultInfo{
				Iteration:  iter,
				Tool:       result.Tool,
				DurationMs: result.DurationMs,
				Error:      invocation.Error,
			})
		}
	})

	// The model's request goes into history verbatim, then the outcome
	// as a user turn.
	*history = append(*history, datatypes.Message{Role: datatypes.RoleAssistant, Content: parsed.Raw})
	if result.Err != nil {
		*history = append(*history, datatypes.Message{
			Role: datatypes.RoleUser,
			Content: fmt.Sprintf("Tool %s failed: %s. Adjust the parameters or choose a different tool.%s",
				result.Tool, result.Err.Message, r.budgetReminder(iter)),
		})
		return invocation
	}

	compacted := CompactToolResult(result.Data)
	payload, err := json.Marshal(compacted)
	if err != nil {
		payload = []byte(fmt.Sprintf("%v", compacted))
	}
	*history = append(*history, datatypes.Message{
		Role:    datatypes.RoleUser,
		Content: fmt.Sprintf("Tool %s returned:\n%s%s", result.Tool, payload, r.budgetReminder(iter)),
	})
	return invocation
}

// budgetReminder nudges the model toward finalizing as iterations run
// low.
func (r *Runner) budgetReminder(iter int) string {
	remaining := r.cfg.MaxIterations - iter
	return fmt.Sprintf("\n\n[%d of %d iterations used, %d remain. If you have enough data, respond with the final_answer now.]",
		iter, r.cfg.MaxIterations, remaining)
}

// dataNeedPhrases suggest the model wanted a tool but forgot the
// protocol.
var dataNeedPhrases = []string{"need more data", "insufficient", "let me request"}

// recoverUnparseable applies the non-JSON recovery ladder. A non-nil
// return is a terminal outcome (long text treated as the final answer).
func (r *Runner) recoverUnparseable(parsed *Parsed, iter int, toolCalls []datatypes.ToolInvocation, history *[]datatypes.Message) *Outcome {
	lower := strings.ToLower(parsed.Raw)
	for _, phrase := range dataNeedPhrases {
		if strings.Contains(lower, phrase) {
			r.log.Warn("model narrated a data need instead of calling a tool", "iteration", iter)
			*history = append(*history,
				datatypes.Message{Role: datatypes.RoleAssistant, Content: parsed.Raw},
				datatypes.Message{
					Role: datatypes.RoleUser,
					Content: "To request data you must emit exactly one JSON value: {\"tool_call\": \"<tool name>\", \"parameters\": {...}}. Re-emit your request in that shape now.",
				})
			return nil
		}
	}

	if len(strings.TrimSpace(parsed.Raw)) >= 100 {
		r.log.Warn("long non-JSON response treated as final answer", "iteration", iter)
		emit(r.log, "OnFinalAnswer", func() {
			if r.hooks.OnFinalAnswer != nil {
				r.hooks.OnFinalAnswer(FinalInfo{Iteration: iter, Text: parsed.Raw})
			}
		})
		return &Outcome{FinalText: parsed.Raw, ToolCalls: toolCalls, Iterations: iter}
	}

	*history = append(*history,
		datatypes.Message{Role: datatypes.RoleAssistant, Content: parsed.Raw},
		datatypes.Message{
			Role: datatypes.RoleUser,
			Content: "Respond with exactly one JSON value: either {\"tool_call\": \"<tool name>\", \"parameters\": {...}} or {\"final_answer\": \"<markdown string>\"}.",
		})
	return nil
}

func (r *Runner) deadline(iter int, elapsed time.Duration, phase string) error {
	err := &DeadlineError{
		Iteration:     iter,
		MaxIterations: r.cfg.MaxIterations,
		Elapsed:       elapsed,
		Phase:         phase,
	}
	r.log.Error("run deadline exceeded", "iteration", iter, "phase", phase, "elapsed", elapsed)
	return err
}

func (r *Runner) checkCancelled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCancelled, err)
	}
	return nil
}

// flatten renders history into one alternating transcript for preview
// purposes.
func flatten(history []datatypes.Message) string {
	var b strings.Builder
	for i, m := range history {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(strings.ToUpper(m.Role))
		b.WriteString(": ")
		b.WriteString(m.Content)
	}
	return b.String()
}
