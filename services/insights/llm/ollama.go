// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/AleutianAI/gridsage/pkg/logging"
	"github.com/AleutianAI/gridsage/services/insights/datatypes"
)

const defaultOllamaModel = "llama3.1"

// OllamaClient runs local inference through an Ollama server. Tool
// requests always arrive as instructed JSON; local models are not
// trusted with native function calling.
type OllamaClient struct {
	llm   *ollama.LLM
	model string
	log   *logging.Logger
}

var _ Client = (*OllamaClient)(nil)

// NewOllamaClient builds a client from OLLAMA_BASE_URL and OLLAMA_MODEL.
func NewOllamaClient(log *logging.Logger) (*OllamaClient, error) {
	if log == nil {
		log = logging.Default()
	}

	baseURL := os.Getenv("OLLAMA_BASE_URL")
	if baseURL == "" {
		return nil, fmt.Errorf("OLLAMA_BASE_URL environment variable not set")
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	model := os.Getenv("OLLAMA_MODEL")
	if model == "" {
		model = defaultOllamaModel
		log.Warn("OLLAMA_MODEL not set, using default", "model", model)
	}

	client, err := ollama.New(
		ollama.WithServerURL(baseURL),
		ollama.WithModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("create ollama client: %w", err)
	}

	log.Info("initialized Ollama client", "base_url", baseURL, "model", model)
	return &OllamaClient{llm: client, model: model, log: log}, nil
}

func (c *OllamaClient) Model() string     { return c.model }
func (c *OllamaClient) NativeTools() bool { return false }

func (c *OllamaClient) Chat(ctx context.Context, messages []datatypes.Message, params Params) (string, error) {
	content := make([]llms.MessageContent, 0, len(messages))
	for _, m := range messages {
		role := llms.ChatMessageTypeHuman
		if m.Role == datatypes.RoleAssistant {
			role = llms.ChatMessageTypeAI
		}
		content = append(content, llms.TextParts(role, m.Content))
	}

	var opts []llms.CallOption
	if params.Temperature != nil {
		opts = append(opts, llms.WithTemperature(float64(*params.Temperature)))
	}
	if params.TopP != nil {
		opts = append(opts, llms.WithTopP(float64(*params.TopP)))
	}
	if params.MaxTokens != nil {
		opts = append(opts, llms.WithMaxTokens(*params.MaxTokens))
	}
	if len(params.Stop) > 0 {
		opts = append(opts, llms.WithStopWords(params.Stop))
	}

	resp, err := c.llm.GenerateContent(ctx, content, opts...)
	if err != nil {
		return "", fmt.Errorf("ollama generate: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("ollama returned no choices")
	}
	c.log.Debug("ollama response", "model", c.model)
	return resp.Choices[0].Content, nil
}
