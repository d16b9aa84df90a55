// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command soltrace analyzes smart-contract repositories: it ingests a seed
// file's import closure and expands a bounded call tree from a chosen
// start function.
//
// Usage:
//
//	# One-shot analysis printed as JSON
//	soltrace analyze --owner acme --repo vault \
//	    --seed contracts/Token.sol --function transfer
//
//	# HTTP service
//	soltrace serve
//
// Example requests against the service:
//
//	curl http://localhost:8085/v1/soltrace/health
//
//	curl -X POST http://localhost:8085/v1/soltrace/analyze \
//	  -H "Content-Type: application/json" \
//	  -d '{"owner": "acme", "repo": "vault", "seed_path": "contracts/Token.sol", "start_function": "transfer"}'
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/AleutianAI/soltrace/services/soltrace"
	"github.com/AleutianAI/soltrace/services/soltrace/config"
	"github.com/AleutianAI/soltrace/services/soltrace/fetch"
)

// Flag values for the analyze command.
var (
	flagOwner       string
	flagRepo        string
	flagBranch      string
	flagSeed        string
	flagFunction    string
	flagImportDepth int
	flagCallDepth   int
	flagConfigPath  string
	flagDebug       bool
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))

	root := &cobra.Command{
		Use:   "soltrace",
		Short: "Bounded call-graph analysis for smart-contract repositories",
	}
	root.PersistentFlags().StringVar(&flagConfigPath, "config", "", "Path to a YAML config file (defaults are embedded)")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging and Gin debug mode")

	analyzeCmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run one analysis and print the report as JSON",
		RunE:  runAnalyzeCommand,
	}
	analyzeCmd.Flags().StringVar(&flagOwner, "owner", "", "Repository owner (required)")
	analyzeCmd.Flags().StringVar(&flagRepo, "repo", "", "Repository name (required)")
	analyzeCmd.Flags().StringVar(&flagBranch, "branch", "main", "Branch or ref")
	analyzeCmd.Flags().StringVar(&flagSeed, "seed", "", "Repository-relative seed file path (required)")
	analyzeCmd.Flags().StringVar(&flagFunction, "function", "", "Start function name (required)")
	analyzeCmd.Flags().IntVar(&flagImportDepth, "import-depth", 0, "Import recursion bound (0 uses the config default)")
	analyzeCmd.Flags().IntVar(&flagCallDepth, "call-depth", 0, "Call tree depth bound (0 uses the config default)")
	for _, name := range []string{"owner", "repo", "seed", "function"} {
		_ = analyzeCmd.MarkFlagRequired(name)
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP analysis service",
		RunE:  runServeCommand,
	}

	root.AddCommand(analyzeCmd, serveCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if flagConfigPath != "" {
		return config.LoadFile(flagConfigPath)
	}
	return config.LoadDefault()
}

// newAnalyzer builds the fetcher stack (HTTP, rate limit, optional Badger
// content cache) and the analyzer on top of it.
func newAnalyzer(cfg *config.Config) (*soltrace.Analyzer, func()) {
	cleanup := func() {}

	fetchOpts := []fetch.GitHubFetcherOption{
		fetch.WithBaseURL(cfg.Fetch.BaseURL),
		fetch.WithRequestsPerSecond(cfg.Fetch.RequestsPerSecond),
		fetch.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Fetch.TimeoutSeconds) * time.Second}),
	}
	if cfg.Fetch.CacheDir != "" {
		cache, err := fetch.OpenBadgerCache(cfg.Fetch.CacheDir, slog.Default())
		if err != nil {
			slog.Warn("content cache unavailable, fetching without it",
				slog.String("dir", cfg.Fetch.CacheDir),
				slog.String("error", err.Error()),
			)
		} else {
			fetchOpts = append(fetchOpts, fetch.WithCache(cache))
			cleanup = func() {
				if err := cache.Close(); err != nil {
					slog.Warn("failed to close content cache", slog.String("error", err.Error()))
				}
			}
		}
	}

	analyzer := soltrace.NewAnalyzer(fetch.NewGitHubFetcher(fetchOpts...),
		soltrace.WithMaxImportDepth(cfg.Analysis.MaxImportDepth),
		soltrace.WithMaxCallDepth(cfg.Analysis.MaxCallDepth),
		soltrace.WithIngestConcurrency(cfg.Analysis.IngestConcurrency),
	)
	return analyzer, cleanup
}

func runAnalyzeCommand(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	analyzer, cleanup := newAnalyzer(cfg)
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rep, err := analyzer.Run(ctx, soltrace.Request{
		Coords: fetch.Coords{
			Owner:  flagOwner,
			Repo:   flagRepo,
			Branch: flagBranch,
		},
		SeedPath:       flagSeed,
		StartFunction:  flagFunction,
		MaxImportDepth: flagImportDepth,
		MaxCallDepth:   flagCallDepth,
	})
	if err != nil {
		return err
	}

	out, err := rep.JSON()
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runServeCommand(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if flagDebug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// W3C TraceContext propagation so trace context flows from incoming
	// headers through every handler.
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	// Export the service meters through the Prometheus registry served at
	// /metrics.
	exporter, err := otelprom.New()
	if err != nil {
		return fmt.Errorf("creating prometheus exporter: %w", err)
	}
	otel.SetMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter)))

	analyzer, cleanup := newAnalyzer(cfg)
	defer cleanup()

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("soltrace"))
	if flagDebug {
		router.Use(gin.Logger())
	}

	handlers := soltrace.NewHandlers(analyzer, slog.Default())
	soltrace.RegisterRoutes(router.Group("/v1"), handlers)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting soltrace server", slog.String("address", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-quit:
		slog.Info("shutting down soltrace server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
