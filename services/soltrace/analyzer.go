// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package soltrace analyzes smart-contract source trees fetched from remote
// repositories: it ingests a seed file and its import closure, then expands
// a bounded call tree from a chosen start function, augmenting it with
// heuristically detected interface calls and their implementations.
package soltrace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/soltrace/services/soltrace/ast"
	"github.com/AleutianAI/soltrace/services/soltrace/calltree"
	"github.com/AleutianAI/soltrace/services/soltrace/detect"
	"github.com/AleutianAI/soltrace/services/soltrace/fetch"
	"github.com/AleutianAI/soltrace/services/soltrace/impl"
	"github.com/AleutianAI/soltrace/services/soltrace/ingest"
	"github.com/AleutianAI/soltrace/services/soltrace/report"
	"github.com/AleutianAI/soltrace/services/soltrace/resolve"
	"github.com/AleutianAI/soltrace/services/soltrace/session"
)

// Fatal run errors. Everything else degrades the result instead of
// aborting.
var (
	// ErrSeedFetch means the seed file could not be fetched.
	ErrSeedFetch = errors.New("seed file fetch failed")

	// ErrSeedParse means the seed file fetched but did not parse.
	ErrSeedParse = errors.New("seed file parse failed")

	// ErrStartFunctionNotFound means the requested start function is not in
	// the ingested entity set.
	ErrStartFunctionNotFound = errors.New("start function not found")
)

// Default depth bounds for a run.
const (
	DefaultMaxImportDepth = ingest.DefaultMaxDepth
	DefaultMaxCallDepth   = calltree.DefaultMaxDepth
)

// Request describes one analysis run.
type Request struct {
	// Coords locate the repository to analyze.
	Coords fetch.Coords

	// SeedPath is the repository-relative path of the file to start from.
	SeedPath string

	// StartFunction is the function the call tree is built from. It must be
	// declared in the ingested entity set, preferably in the seed file.
	StartFunction string

	// MaxImportDepth overrides the import recursion bound when positive.
	MaxImportDepth int

	// MaxCallDepth overrides the call tree depth bound when positive.
	MaxCallDepth int
}

// AnalyzerOption is a functional option for configuring Analyzer.
type AnalyzerOption func(*Analyzer)

// WithParser replaces the default Solidity parser.
func WithParser(p ast.Parser) AnalyzerOption {
	return func(a *Analyzer) { a.parser = p }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) AnalyzerOption {
	return func(a *Analyzer) { a.logger = l }
}

// WithMaxImportDepth sets the default import recursion bound.
func WithMaxImportDepth(d int) AnalyzerOption {
	return func(a *Analyzer) { a.maxImportDepth = d }
}

// WithMaxCallDepth sets the default call tree depth bound.
func WithMaxCallDepth(d int) AnalyzerOption {
	return func(a *Analyzer) { a.maxCallDepth = d }
}

// WithIngestConcurrency sets the per-depth ingestion parallelism.
func WithIngestConcurrency(n int) AnalyzerOption {
	return func(a *Analyzer) { a.concurrency = n }
}

// Analyzer runs analyses. It holds only immutable configuration; all
// per-run state lives in the session each Run creates.
//
// Thread Safety: Safe for concurrent use; every Run is independent.
type Analyzer struct {
	fetcher        fetch.Fetcher
	parser         ast.Parser
	logger         *slog.Logger
	maxImportDepth int
	maxCallDepth   int
	concurrency    int
}

// NewAnalyzer creates an analyzer over the given fetcher.
func NewAnalyzer(fetcher fetch.Fetcher, opts ...AnalyzerOption) *Analyzer {
	a := &Analyzer{
		fetcher:        fetcher,
		parser:         ast.NewSolidityParser(),
		maxImportDepth: DefaultMaxImportDepth,
		maxCallDepth:   DefaultMaxCallDepth,
		concurrency:    ingest.DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	return a
}

// Run executes one analysis end to end.
//
// Description:
//
//	Fetches and parses the seed file, ingests its import closure to the
//	import depth bound, locates the start function, and expands its call
//	tree to the call depth bound. Fetch and parse failures below the seed
//	degrade coverage; only a seed failure or a missing start function is
//	fatal.
//
// Outputs:
//
//	*report.Report - the run's structured result.
//	error          - wraps ErrSeedFetch, ErrSeedParse, or
//	                 ErrStartFunctionNotFound, or a context error.
func (a *Analyzer) Run(ctx context.Context, req Request) (*report.Report, error) {
	start := time.Now()
	ctx, span := startAnalyzeSpan(ctx, req)
	defer span.End()

	sess := session.New(req.Coords)
	logger := a.logger.With(slog.String("run_id", sess.ID))
	logger.Info("analysis started",
		slog.String("repository", req.Coords.String()),
		slog.String("seed", req.SeedPath),
		slog.String("start_function", req.StartFunction),
	)

	seedResult, err := a.ingestSeed(ctx, sess, req.SeedPath)
	if err != nil {
		span.RecordError(err)
		recordAnalyzeMetrics(ctx, time.Since(start), false)
		return nil, err
	}

	depResolver := resolve.NewResolver(a.fetcher, sess, resolve.WithResolverLogger(logger))
	ingestor := ingest.NewIngestor(depResolver, a.parser, sess,
		ingest.WithMaxDepth(a.importDepth(req)),
		ingest.WithConcurrency(a.concurrency),
		ingest.WithIngestLogger(logger),
	)
	coverage, err := ingestor.Run(ctx, seedResult.Imports)
	if err != nil {
		span.RecordError(err)
		recordAnalyzeMetrics(ctx, time.Since(start), false)
		return nil, err
	}

	startFn, err := a.findStartFunction(sess, req)
	if err != nil {
		span.RecordError(err)
		recordAnalyzeMetrics(ctx, time.Since(start), false)
		return nil, err
	}

	builder := calltree.NewBuilder(
		sess.Index,
		detect.NewDetector(sess.Index),
		impl.NewResolver(sess.Index, depResolver, a.parser, impl.WithLogger(logger)),
		calltree.WithMaxDepth(a.callDepth(req)),
		calltree.WithLogger(logger),
	)
	tree := builder.Build(ctx, startFn)

	rep := report.Build(sess, req.StartFunction, tree, coverage)
	span.SetAttributes(
		attribute.Int("analyze.entities", len(rep.Entities)),
		attribute.Int("analyze.tree_depth", rep.CallTreeDepth),
		attribute.Float64("analyze.success_rate", rep.Resolution.SuccessRate),
	)
	recordAnalyzeMetrics(ctx, time.Since(start), true)
	logger.Info("analysis complete",
		slog.Int("entities", len(rep.Entities)),
		slog.Int("tree_depth", rep.CallTreeDepth),
		slog.Duration("duration", time.Since(start)),
	)
	return rep, nil
}

// ingestSeed fetches and parses the seed file. Both failures are fatal: the
// run has nothing to analyze without it.
func (a *Analyzer) ingestSeed(ctx context.Context, sess *session.Session, seedPath string) (*ast.ParseResult, error) {
	loc := fetch.Location{Coords: sess.Coords, Path: seedPath}
	content, err := a.fetcher.Fetch(ctx, loc)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSeedFetch, loc, err)
	}

	result, err := a.parser.Parse(ctx, content, seedPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSeedParse, loc, err)
	}

	sess.MarkProcessed(seedPath, loc)
	sess.Index.AddParseResult(result)
	return result, nil
}

// findStartFunction locates the requested function, preferring a
// declaration in the seed file and falling back to the lowest entity ID.
func (a *Analyzer) findStartFunction(sess *session.Session, req Request) (*ast.Entity, error) {
	candidates := sess.Index.FunctionsByName(req.StartFunction)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: %q in %s", ErrStartFunctionNotFound, req.StartFunction, req.Coords)
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].ID() < candidates[j].ID() })
	for _, e := range candidates {
		if e.File == req.SeedPath {
			return e, nil
		}
	}
	return candidates[0], nil
}

func (a *Analyzer) importDepth(req Request) int {
	if req.MaxImportDepth > 0 {
		return req.MaxImportDepth
	}
	return a.maxImportDepth
}

func (a *Analyzer) callDepth(req Request) int {
	if req.MaxCallDepth > 0 {
		return req.MaxCallDepth
	}
	return a.maxCallDepth
}

func startAnalyzeSpan(ctx context.Context, req Request) (context.Context, trace.Span) {
	return analyzerTracer.Start(ctx, "Analyzer.Run",
		trace.WithAttributes(
			attribute.String("analyze.repository", req.Coords.String()),
			attribute.String("analyze.seed", req.SeedPath),
			attribute.String("analyze.start_function", req.StartFunction),
		))
}
