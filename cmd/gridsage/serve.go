// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/gridsage/pkg/logging"
	"github.com/AleutianAI/gridsage/services/insights"
	"github.com/AleutianAI/gridsage/services/insights/llm"
	"github.com/AleutianAI/gridsage/services/insights/store"
	"github.com/AleutianAI/gridsage/services/insights/tools"
	"github.com/AleutianAI/gridsage/services/insights/weather"
)

const shutdownGrace = 10 * time.Second

type serveOptions struct {
	port       int
	debug      bool
	llmKind    string
	noWeather  bool
	badgerPath string
}

func newServeCmd() *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the insights API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
	cmd.Flags().IntVar(&opts.port, "port", 8080, "port to listen on")
	cmd.Flags().BoolVar(&opts.debug, "debug", false, "enable debug logging and gin debug mode")
	cmd.Flags().StringVar(&opts.llmKind, "llm", "ollama", "LLM provider: ollama or openai")
	cmd.Flags().BoolVar(&opts.noWeather, "no-weather", false, "disable the weather provider")
	cmd.Flags().StringVar(&opts.badgerPath, "badger-path", envOr("BADGER_PATH", "./data/gridsage"), "profile/model database directory")
	return cmd
}

func runServe(ctx context.Context, opts *serveOptions) error {
	level := logging.LevelInfo
	if opts.debug {
		level = logging.LevelDebug
	}
	log := logging.New(logging.Config{Level: level, Service: "gridsage"})

	st, cleanup, err := buildStore(ctx, opts, log)
	if err != nil {
		return err
	}
	defer cleanup()

	var wp weather.Provider
	if !opts.noWeather {
		wp = weather.NewOpenMeteo(log)
	}

	client, err := buildLLM(st, wp, opts.llmKind, log)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	engine := insights.New(st, wp, client,
		insights.WithLogger(log),
		insights.WithMetrics(insights.NewMetrics(registry)))

	if opts.debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	if opts.debug {
		router.Use(gin.Logger())
	}
	insights.RegisterRoutes(router, insights.NewHandlers(engine, registry, log))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	errCh := make(chan error, 1)

	go func() {
		log.Info("gridsage server listening", "addr", srv.Addr, "llm", client.Model())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		log.Info("shutting down", "signal", sig.String())
	case <-ctx.Done():
		log.Info("shutting down", "reason", "context cancelled")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// buildStore assembles the composite store: InfluxDB for telemetry,
// BadgerDB for profiles and cached models. Without Influx configuration
// the telemetry side degrades to an empty in-memory reader so the
// server can still serve snapshot-only requests.
func buildStore(ctx context.Context, opts *serveOptions, log *logging.Logger) (store.Store, func(), error) {
	badgerStore, err := store.NewBadgerStore(store.BadgerConfig{
		Path:   opts.badgerPath,
		Logger: log,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("open badger store: %w", err)
	}

	composite := &store.Composite{
		Profiles: badgerStore,
		Models:   badgerStore,
	}
	cleanup := func() { _ = badgerStore.Close() }

	influxURL := os.Getenv("INFLUX_URL")
	if influxURL == "" {
		log.Warn("INFLUX_URL not set, telemetry history disabled")
		composite.Telemetry = store.NewMemoryStore()
		return composite, cleanup, nil
	}

	influx, err := store.NewInfluxStore(ctx, store.InfluxConfig{
		URL:    influxURL,
		Token:  os.Getenv("INFLUX_TOKEN"),
		Org:    os.Getenv("INFLUX_ORG"),
		Bucket: envOr("INFLUX_BUCKET", "telemetry"),
		Logger: log,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("connect to influx: %w", err)
	}
	composite.Telemetry = influx
	return composite, func() { influx.Close(); _ = badgerStore.Close() }, nil
}

func buildLLM(st store.Store, wp weather.Provider, kind string, log *logging.Logger) (llm.Client, error) {
	switch kind {
	case "openai":
		defs := tools.NewRegistry(st, wp, log).Catalog.Defs()
		return llm.NewOpenAIClient(defs, log)
	case "ollama":
		return llm.NewOllamaClient(log)
	default:
		return nil, fmt.Errorf("unknown llm provider %q (want ollama or openai)", kind)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
