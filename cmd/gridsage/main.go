// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command gridsage starts the battery insights API server.
//
// The server reads BMS telemetry from InfluxDB, system profiles and
// cached degradation models from BadgerDB, and reasons over them with
// an LLM.
//
// Usage:
//
//	go run ./cmd/gridsage serve
//	go run ./cmd/gridsage serve --port 9090 --debug
//
// With Ollama:
//
//	OLLAMA_BASE_URL=http://localhost:11434 OLLAMA_MODEL=qwen3:14b \
//	  go run ./cmd/gridsage serve --llm ollama
//
// With OpenAI:
//
//	OPENAI_API_KEY=sk-... go run ./cmd/gridsage serve --llm openai
//
// Store configuration (environment):
//
//	INFLUX_URL, INFLUX_TOKEN, INFLUX_ORG, INFLUX_BUCKET - telemetry
//	BADGER_PATH - profile/model database directory (default ./data/gridsage)
//
// Example requests:
//
//	# Health check
//	curl http://localhost:8080/healthz
//
//	# Synchronous insight
//	curl -X POST http://localhost:8080/api/v1/insights \
//	  -H "Content-Type: application/json" \
//	  -d '{"system_id": "cabin-1", "snapshot": {"overall_voltage": 52.1, "current": -12.0, "soc": 48}}'
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/gridsage/pkg/logging"
)

func main() {
	root := &cobra.Command{
		Use:           "gridsage",
		Short:         "Battery telemetry insights engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd())

	if err := root.Execute(); err != nil {
		logging.Default().Error("command failed", "error", err)
		os.Exit(1)
	}
}
