// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/AleutianAI/gridsage/pkg/logging"
	"github.com/AleutianAI/gridsage/services/insights/datatypes"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAIClient speaks to the OpenAI chat completions API. When built
// with tool definitions it uses native function calling and normalizes
// tool-call responses into the runner's JSON protocol.
type OpenAIClient struct {
	client *openai.Client
	model  string
	tools  []openai.Tool
	log    *logging.Logger
}

var _ Client = (*OpenAIClient)(nil)

// NewOpenAIClient builds a client from OPENAI_API_KEY and OPENAI_MODEL.
//
// The key falls back to the container secret path when the env var is
// unset. Tool definitions are optional; without them the client relies
// on instructed JSON.
func NewOpenAIClient(tools []ToolDef, log *logging.Logger) (*OpenAIClient, error) {
	if log == nil {
		log = logging.Default()
	}

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		secretPath := "/run/secrets/openai_api_key"
		raw, err := os.ReadFile(secretPath)
		if err != nil {
			return nil, fmt.Errorf("OPENAI_API_KEY not set and secret not found at %s", secretPath)
		}
		apiKey = strings.TrimSpace(string(raw))
		log.Info("read OpenAI API key from container secret")
	}

	model := os.Getenv("OPENAI_MODEL")
	if model == "" {
		model = defaultOpenAIModel
		log.Warn("OPENAI_MODEL not set, using default", "model", model)
	}

	c := &OpenAIClient{
		client: openai.NewClient(apiKey),
		model:  model,
		log:    log,
	}
	for _, t := range tools {
		c.tools = append(c.tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	log.Info("initialized OpenAI client", "model", model, "native_tools", len(c.tools) > 0)
	return c, nil
}

func (c *OpenAIClient) Model() string     { return c.model }
func (c *OpenAIClient) NativeTools() bool { return len(c.tools) > 0 }

// Chat sends the conversation. A native tool call in the response is
// rewritten into the text protocol's tool_call JSON so the runner's
// parser handles both paths identically.
func (c *OpenAIClient) Chat(ctx context.Context, messages []datatypes.Message, params Params) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Tools: c.tools,
	}
	for _, m := range messages {
		role := openai.ChatMessageRoleUser
		if m.Role == datatypes.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    role,
			Content: m.Content,
		})
	}
	if params.Temperature != nil {
		req.Temperature = *params.Temperature
	}
	if params.TopP != nil {
		req.TopP = *params.TopP
	}
	if params.MaxTokens != nil {
		req.MaxCompletionTokens = *params.MaxTokens
	}
	if len(params.Stop) > 0 {
		req.Stop = params.Stop
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices")
	}

	choice := resp.Choices[0]
	if len(choice.Message.ToolCalls) > 0 {
		return normalizeToolCall(choice.Message.ToolCalls[0])
	}
	c.log.Debug("openai response", "finish_reason", choice.FinishReason)
	return choice.Message.Content, nil
}

// normalizeToolCall converts a native tool call into the runner's JSON
// shape: {"tool_call": "<name>", "parameters": {...}}.
func normalizeToolCall(tc openai.ToolCall) (string, error) {
	var params map[string]any
	if tc.Function.Arguments != "" {
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &params); err != nil {
			return "", fmt.Errorf("decode tool call arguments for %s: %w", tc.Function.Name, err)
		}
	}
	out, err := json.Marshal(map[string]any{
		"tool_call":  tc.Function.Name,
		"parameters": params,
	})
	if err != nil {
		return "", fmt.Errorf("encode normalized tool call: %w", err)
	}
	return string(out), nil
}
