// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tools is the fixed catalog of operations the model may invoke
// during an insights run, plus the executor that dispatches them.
//
// The executor is a hard boundary: whatever a handler does, the runner
// receives either a success payload or an error payload. Panics are
// recovered, durations are recorded, and parameters are validated
// against the declared schema before the handler runs.
package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/AleutianAI/gridsage/pkg/logging"
	"github.com/AleutianAI/gridsage/services/insights/llm"
)

// Param declares one parameter of a tool.
type Param struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"` // string, number, integer, boolean
	Description string   `json:"description"`
	Required    bool     `json:"required"`
	Enum        []string `json:"enum,omitempty"`
}

// Handler executes a tool with validated arguments.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Tool is one catalog entry.
type Tool struct {
	Name        string
	Description string
	Params      []Param
	Handler     Handler

	// ReplacedBy marks a deprecated alias. Invocations log a warning
	// and are rewritten to the replacement before dispatch.
	ReplacedBy string
}

// ToolError is the typed failure the executor returns. It is data, not
// a control-flow exception: the runner feeds it back to the model.
type ToolError struct {
	Tool    string `json:"tool"`
	Message string `json:"message"`
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %s: %s", e.Tool, e.Message)
}

// Result is the executor's envelope for one invocation.
type Result struct {
	Tool       string `json:"tool"`
	Data       any    `json:"data,omitempty"`
	Err        *ToolError `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// OK reports whether the invocation succeeded.
func (r *Result) OK() bool { return r.Err == nil }

// Catalog holds the registered tools in registration order.
type Catalog struct {
	tools map[string]*Tool
	order []string
}

// NewCatalog creates an empty catalog. See Registry for the standard
// tool set.
func NewCatalog() *Catalog {
	return &Catalog{tools: map[string]*Tool{}}
}

// Register adds a tool. Duplicate names replace the earlier entry but
// keep its position.
func (c *Catalog) Register(t *Tool) {
	if _, exists := c.tools[t.Name]; !exists {
		c.order = append(c.order, t.Name)
	}
	c.tools[t.Name] = t
}

// Get returns a tool by name.
func (c *Catalog) Get(name string) (*Tool, bool) {
	t, ok := c.tools[name]
	return t, ok
}

// List returns the tools in registration order.
func (c *Catalog) List() []*Tool {
	out := make([]*Tool, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.tools[name])
	}
	return out
}

// Defs exports the catalog for providers with native function calling.
// Deprecated aliases are not exported; the model should learn the
// replacement.
func (c *Catalog) Defs() []llm.ToolDef {
	var defs []llm.ToolDef
	for _, t := range c.List() {
		if t.ReplacedBy != "" {
			continue
		}
		props := map[string]any{}
		var required []string
		for _, p := range t.Params {
			prop := map[string]any{
				"type":        p.Type,
				"description": p.Description,
			}
			if len(p.Enum) > 0 {
				prop["enum"] = p.Enum
			}
			props[p.Name] = prop
			if p.Required {
				required = append(required, p.Name)
			}
		}
		defs = append(defs, llm.ToolDef{
			Name:        t.Name,
			Description: t.Description,
			Parameters: map[string]any{
				"type":       "object",
				"properties": props,
				"required":   required,
			},
		})
	}
	return defs
}

// Executor dispatches tool invocations with validation, timing, and
// panic containment.
type Executor struct {
	catalog *Catalog
	log     *logging.Logger
}

// NewExecutor builds an executor over a catalog.
func NewExecutor(catalog *Catalog, log *logging.Logger) *Executor {
	if log == nil {
		log = logging.Default()
	}
	return &Executor{catalog: catalog, log: log}
}

// Execute runs one tool invocation.
//
// Description:
//
//	Resolves deprecated aliases, validates arguments against the
//	declared schema, runs the handler, and wraps the outcome. Never
//	panics into the caller; a handler panic becomes a ToolError.
//
// Outputs:
//
//	Result - Always populated, with either Data or Err set.
func (e *Executor) Execute(ctx context.Context, name string, args map[string]any) (result Result) {
	start := time.Now()
	result.Tool = name
	defer func() {
		result.DurationMs = time.Since(start).Milliseconds()
		if r := recover(); r != nil {
			e.log.Error("tool handler panicked", "tool", name, "panic", r)
			result.Data = nil
			result.Err = &ToolError{Tool: name, Message: fmt.Sprintf("internal tool failure: %v", r)}
		}
	}()

	tool, ok := e.catalog.Get(name)
	if !ok {
		result.Err = &ToolError{Tool: name, Message: fmt.Sprintf("unknown tool %q; available: %s", name, e.toolNames())}
		return result
	}

	if tool.ReplacedBy != "" {
		e.log.Warn("deprecated tool invoked, rewriting",
			"tool", name, "replacement", tool.ReplacedBy)
		replacement, ok := e.catalog.Get(tool.ReplacedBy)
		if !ok {
			result.Err = &ToolError{Tool: name, Message: fmt.Sprintf("deprecated tool %q has no registered replacement", name)}
			return result
		}
		tool = replacement
		result.Tool = tool.Name
	}

	if err := validateArgs(tool, args); err != nil {
		result.Err = &ToolError{Tool: tool.Name, Message: err.Error()}
		return result
	}

	data, err := tool.Handler(ctx, args)
	if err != nil {
		e.log.Warn("tool failed", "tool", tool.Name, "error", err)
		result.Err = &ToolError{Tool: tool.Name, Message: err.Error()}
		return result
	}

	result.Data = data
	e.log.Debug("tool executed", "tool", tool.Name, "duration_ms", time.Since(start).Milliseconds())
	return result
}

func (e *Executor) toolNames() string {
	var names []string
	for _, t := range e.catalog.List() {
		if t.ReplacedBy == "" {
			names = append(names, t.Name)
		}
	}
	return strings.Join(names, ", ")
}

// validateArgs checks required fields, types, and enum membership.
func validateArgs(tool *Tool, args map[string]any) error {
	for _, p := range tool.Params {
		v, present := args[p.Name]
		if !present || v == nil {
			if p.Required {
				return fmt.Errorf("missing required parameter %q", p.Name)
			}
			continue
		}
		if err := checkType(p, v); err != nil {
			return err
		}
	}
	return nil
}

func checkType(p Param, v any) error {
	switch p.Type {
	case "string":
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("parameter %q must be a string", p.Name)
		}
		if len(p.Enum) > 0 && !contains(p.Enum, s) {
			return fmt.Errorf("parameter %q must be one of %v", p.Name, p.Enum)
		}
	case "number", "integer":
		// JSON numbers decode as float64.
		switch v.(type) {
		case float64, int, int64:
		default:
			return fmt.Errorf("parameter %q must be a number", p.Name)
		}
	case "boolean":
		if _, ok := v.(bool); !ok {
			return fmt.Errorf("parameter %q must be a boolean", p.Name)
		}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

// Argument accessors shared by the handlers. JSON decoding gives
// map[string]any with float64 numbers.

func stringArg(args map[string]any, name, fallback string) string {
	if v, ok := args[name].(string); ok && v != "" {
		return v
	}
	return fallback
}

func floatArg(args map[string]any, name string, fallback float64) float64 {
	switch v := args[name].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return fallback
}

func intArg(args map[string]any, name string, fallback int) int {
	switch v := args[name].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	}
	return fallback
}

func boolArg(args map[string]any, name string, fallback bool) bool {
	if v, ok := args[name].(bool); ok {
		return v
	}
	return fallback
}
