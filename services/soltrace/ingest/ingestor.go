// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ingest drives the fixed-point ingestion loop: fetch, parse,
// extract, discover new imports, repeat, bounded by a maximum depth.
package ingest

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/soltrace/services/soltrace/ast"
	"github.com/AleutianAI/soltrace/services/soltrace/fetch"
	"github.com/AleutianAI/soltrace/services/soltrace/resolve"
	"github.com/AleutianAI/soltrace/services/soltrace/session"
)

var ingestTracer = otel.Tracer("soltrace.ingest")

// Default ingestion configuration values.
const (
	// DefaultMaxDepth bounds the import recursion. Each depth level is one
	// round of "resolve everything newly discovered".
	DefaultMaxDepth = 3

	// DefaultConcurrency is how many imports at one depth are resolved in
	// parallel. Resolution across distinct imports at the same depth has
	// no ordering dependency, so this is purely a latency optimization.
	DefaultConcurrency = 4
)

// Coverage reports what the ingestion loop achieved.
type Coverage struct {
	// Found is the number of distinct import paths discovered.
	Found int `json:"found"`

	// Resolved is the number of imports successfully fetched and ingested.
	Resolved int `json:"resolved"`

	// FailedExternal is the number of imports classified as external
	// dependencies (expected, not an error).
	FailedExternal int `json:"failed_external"`

	// FailedUnreachable is the number of repository-local imports whose
	// every candidate failed.
	FailedUnreachable int `json:"failed_unreachable"`

	// ParseFailures counts files that fetched but failed to parse. Those
	// imports still count as resolved; they just contribute no entities.
	ParseFailures int `json:"parse_failures"`

	// DepthReached is the deepest level the loop actually processed.
	DepthReached int `json:"depth_reached"`

	// SuccessRate is resolved / (resolved + failed).
	SuccessRate float64 `json:"success_rate"`
}

// IngestorOptions configures Ingestor behavior.
type IngestorOptions struct {
	// MaxDepth bounds the recursion. Default: DefaultMaxDepth.
	MaxDepth int

	// Concurrency bounds parallel resolution at one depth.
	// Default: DefaultConcurrency.
	Concurrency int

	// Logger is the structured logger. Default: slog.Default().
	Logger *slog.Logger
}

// IngestorOption is a functional option for configuring Ingestor.
type IngestorOption func(*IngestorOptions)

// WithMaxDepth sets the import recursion bound.
func WithMaxDepth(d int) IngestorOption {
	return func(o *IngestorOptions) { o.MaxDepth = d }
}

// WithConcurrency sets the per-depth resolution parallelism.
func WithConcurrency(n int) IngestorOption {
	return func(o *IngestorOptions) { o.Concurrency = n }
}

// WithIngestLogger sets the structured logger.
func WithIngestLogger(l *slog.Logger) IngestorOption {
	return func(o *IngestorOptions) { o.Logger = l }
}

// Ingestor runs the recursive ingestion loop for one session.
//
// Description:
//
//	At each depth the ingestor collects the discovered import paths not yet
//	in the session's processed or failed sets, resolves them through the
//	dependency resolver, parses what was fetched, and feeds entities and
//	newly discovered imports into the session. The loop stops at the depth
//	bound or at a fixed point (no unknown imports remain), whichever comes
//	first; the explicit bound is what guarantees termination over cyclic
//	import graphs.
//
// Thread Safety: An Ingestor is bound to one session; Run must not be
// called concurrently on the same Ingestor.
type Ingestor struct {
	resolver *resolve.Resolver
	parser   ast.Parser
	sess     *session.Session
	options  IngestorOptions
}

// NewIngestor creates an Ingestor bound to one run's session.
func NewIngestor(resolver *resolve.Resolver, parser ast.Parser, sess *session.Session, opts ...IngestorOption) *Ingestor {
	options := IngestorOptions{
		MaxDepth:    DefaultMaxDepth,
		Concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	if options.Concurrency < 1 {
		options.Concurrency = 1
	}

	return &Ingestor{
		resolver: resolver,
		parser:   parser,
		sess:     sess,
		options:  options,
	}
}

// Run ingests from the given seed imports until the depth bound or a fixed
// point.
//
// Outputs:
//
//	*Coverage - counts of found/resolved/failed imports. Never nil unless
//	            the context was cancelled.
//	error     - only context errors; individual fetch and parse failures
//	            degrade coverage instead of aborting.
func (ing *Ingestor) Run(ctx context.Context, seeds []ast.ImportReference) (*Coverage, error) {
	start := time.Now()
	ctx, span := ingestTracer.Start(ctx, "Ingestor.Run",
		trace.WithAttributes(
			attribute.Int("ingest.seed_count", len(seeds)),
			attribute.Int("ingest.max_depth", ing.options.MaxDepth),
		))
	defer span.End()

	cov := &Coverage{}
	seen := make(map[string]bool)

	pending := ing.filterUnknown(seeds, seen, cov)

	for depth := 0; depth < ing.options.MaxDepth && len(pending) > 0; depth++ {
		cov.DepthReached = depth

		sources, err := ing.resolveAll(ctx, pending, cov)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}

		var discovered []ast.ImportReference
		for _, src := range sources {
			imports := ing.parseAndStore(ctx, src, cov)
			discovered = append(discovered, imports...)
		}

		pending = ing.filterUnknown(discovered, seen, cov)
		ing.options.Logger.Debug("ingestion depth complete",
			slog.Int("depth", depth),
			slog.Int("fetched", len(sources)),
			slog.Int("newly_discovered", len(pending)),
		)
	}

	stats := ing.sess.Stats()
	cov.Resolved = stats.Processed
	cov.FailedExternal = stats.FailedExternal
	cov.FailedUnreachable = stats.FailedUnreachable
	cov.SuccessRate = stats.SuccessRate

	span.SetAttributes(
		attribute.Int("ingest.found", cov.Found),
		attribute.Int("ingest.resolved", cov.Resolved),
		attribute.Int("ingest.failed", cov.FailedExternal+cov.FailedUnreachable),
		attribute.Int("ingest.depth_reached", cov.DepthReached),
	)
	ing.options.Logger.Info("ingestion complete",
		slog.Int("found", cov.Found),
		slog.Int("resolved", cov.Resolved),
		slog.Int("failed_external", cov.FailedExternal),
		slog.Int("failed_unreachable", cov.FailedUnreachable),
		slog.Duration("duration", time.Since(start)),
	)
	return cov, nil
}

// resolveAll resolves one depth's pending imports. Distinct imports carry no
// ordering dependency, so they are fetched concurrently; the session's
// append-only sets make the concurrent updates idempotent.
func (ing *Ingestor) resolveAll(ctx context.Context, pending []ast.ImportReference, cov *Coverage) ([]*fetch.FetchedSource, error) {
	var (
		mu      sync.Mutex
		sources []*fetch.FetchedSource
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ing.options.Concurrency)

	for _, imp := range pending {
		g.Go(func() error {
			src, _, err := ing.resolver.Resolve(gctx, imp)
			if err != nil {
				return err
			}
			if src != nil {
				mu.Lock()
				sources = append(sources, src)
				mu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return sources, nil
}

// parseAndStore parses one fetched source and merges it into the session's
// entity repository. A parse failure is non-fatal: the fetch succeeded, so
// the import stays resolved; the file just contributes nothing.
func (ing *Ingestor) parseAndStore(ctx context.Context, src *fetch.FetchedSource, cov *Coverage) []ast.ImportReference {
	result, err := ing.parser.Parse(ctx, src.Content, src.Location.Path)
	if err != nil {
		var parseErr *ast.ParseError
		if errors.As(err, &parseErr) {
			cov.ParseFailures++
			ing.options.Logger.Warn("fetched file failed to parse, contributes no entities",
				slog.String("location", src.Location.String()),
				slog.String("error", err.Error()),
			)
			return nil
		}
		// Context cancellation surfaces as an empty contribution; the
		// caller's next resolveAll will observe the cancelled context.
		return nil
	}

	ing.sess.Index.AddParseResult(result)
	return result.Imports
}

// filterUnknown deduplicates import references by raw path and drops the
// ones the session already processed or failed.
func (ing *Ingestor) filterUnknown(imports []ast.ImportReference, seen map[string]bool, cov *Coverage) []ast.ImportReference {
	var out []ast.ImportReference
	for _, imp := range imports {
		if imp.RawPath == "" || seen[imp.RawPath] {
			continue
		}
		seen[imp.RawPath] = true
		cov.Found++
		if ing.sess.IsKnown(imp.RawPath) {
			continue
		}
		out = append(out, imp)
	}
	return out
}
