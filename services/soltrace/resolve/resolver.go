// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package resolve

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/soltrace/services/soltrace/ast"
	"github.com/AleutianAI/soltrace/services/soltrace/fetch"
	"github.com/AleutianAI/soltrace/services/soltrace/session"
)

// Outcome is the result category of one import resolution.
type Outcome int

const (
	// OutcomeResolved means a candidate fetch succeeded.
	OutcomeResolved Outcome = iota

	// OutcomeAlreadyProcessed means the import was resolved earlier in the
	// run; no fetch was attempted.
	OutcomeAlreadyProcessed

	// OutcomeExternal means the import classified as an external
	// dependency; no fetch was attempted.
	OutcomeExternal

	// OutcomeFailed means every candidate location failed to fetch, or the
	// import already failed earlier in the run.
	OutcomeFailed
)

// String returns the string representation of the Outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeResolved:
		return "resolved"
	case OutcomeAlreadyProcessed:
		return "already_processed"
	case OutcomeExternal:
		return "external"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ResolverOptions configures Resolver behavior.
type ResolverOptions struct {
	// Logger is the structured logger. Default: slog.Default().
	Logger *slog.Logger
}

// ResolverOption is a functional option for configuring Resolver.
type ResolverOption func(*ResolverOptions)

// WithResolverLogger sets the structured logger.
func WithResolverLogger(l *slog.Logger) ResolverOption {
	return func(o *ResolverOptions) { o.Logger = l }
}

// Resolver resolves import references to fetched sources.
//
// Description:
//
//	For each import the resolver classifies, generates ordered candidates,
//	and fetches them strictly in order. The first success short-circuits
//	the rest. Success and failure are memoized on the session per import
//	string, so resolving the same import twice in one run performs at most
//	one fetch attempt sequence.
//
// Thread Safety: Safe for concurrent use; all mutable state lives on the
// session, which serializes its own updates.
type Resolver struct {
	fetcher fetch.Fetcher
	sess    *session.Session
	logger  *slog.Logger
}

// NewResolver creates a Resolver bound to one run's session.
func NewResolver(fetcher fetch.Fetcher, sess *session.Session, opts ...ResolverOption) *Resolver {
	options := ResolverOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	return &Resolver{fetcher: fetcher, sess: sess, logger: options.Logger}
}

// Resolve resolves a single import reference.
//
// Outputs:
//
//	*fetch.FetchedSource - the fetched content on OutcomeResolved; nil for
//	                       every other outcome (including
//	                       OutcomeAlreadyProcessed when the content was
//	                       ingested when first resolved).
//	Outcome              - the resolution category.
//	error                - only a context error; fetch failures are folded
//	                       into the outcome.
func (r *Resolver) Resolve(ctx context.Context, imp ast.ImportReference) (*fetch.FetchedSource, Outcome, error) {
	start := time.Now()
	ctx, span := startResolveSpan(ctx, imp.RawPath)
	defer span.End()

	if _, ok := r.sess.Resolved(imp.RawPath); ok {
		span.SetAttributes(attribute.String("resolve.outcome", OutcomeAlreadyProcessed.String()))
		return nil, OutcomeAlreadyProcessed, nil
	}
	if r.sess.IsKnown(imp.RawPath) {
		span.SetAttributes(attribute.String("resolve.outcome", OutcomeFailed.String()))
		return nil, OutcomeFailed, nil
	}

	if Classify(imp.RawPath) == ClassExternal {
		// Expected outcome, reported separately from genuine failure.
		// No network attempt is made for external dependencies.
		r.sess.MarkFailed(imp.RawPath, session.FailureExternal)
		span.SetAttributes(attribute.String("resolve.outcome", OutcomeExternal.String()))
		recordResolveMetrics(ctx, time.Since(start), OutcomeExternal, 0)
		return nil, OutcomeExternal, nil
	}

	candidates := Candidates(imp, r.sess.Coords)
	span.SetAttributes(attribute.Int("resolve.candidates", len(candidates)))

	src, attempts, err := r.fetchFirst(ctx, candidates)
	if err != nil {
		span.RecordError(err)
		return nil, OutcomeFailed, err
	}

	if src == nil {
		r.sess.MarkFailed(imp.RawPath, session.FailureUnreachable)
		r.logger.Debug("import unresolvable, all candidates failed",
			slog.String("import", imp.RawPath),
			slog.String("origin", imp.OriginFile),
			slog.Int("candidates", len(candidates)),
		)
		span.SetAttributes(attribute.String("resolve.outcome", OutcomeFailed.String()))
		recordResolveMetrics(ctx, time.Since(start), OutcomeFailed, attempts)
		return nil, OutcomeFailed, nil
	}

	r.sess.MarkProcessed(imp.RawPath, src.Location)
	r.logger.Debug("import resolved",
		slog.String("import", imp.RawPath),
		slog.String("location", src.Location.String()),
		slog.Int("attempts", attempts),
	)
	span.SetAttributes(
		attribute.String("resolve.outcome", OutcomeResolved.String()),
		attribute.String("resolve.location", src.Location.String()),
	)
	recordResolveMetrics(ctx, time.Since(start), OutcomeResolved, attempts)
	return src, OutcomeResolved, nil
}

// FetchFirst tries repository-relative paths in order against the session's
// coordinates and returns the first fetch that succeeds.
//
// Used by the implementation resolver for speculative candidate files. The
// fetched path is recorded on the session's speculative set, apart from the
// import ledger, so it never counts toward the resolution statistics.
func (r *Resolver) FetchFirst(ctx context.Context, paths []string) (*fetch.FetchedSource, bool, error) {
	locs := make([]fetch.Location, 0, len(paths))
	for _, p := range paths {
		normalized := normalizeCandidatePath(p)
		if normalized == "" {
			continue
		}
		locs = append(locs, fetch.Location{Coords: r.sess.Coords, Path: normalized})
	}
	locs = dedupLocations(locs)

	src, _, err := r.fetchFirst(ctx, locs)
	if err != nil {
		return nil, false, err
	}
	if src == nil {
		return nil, false, nil
	}
	r.sess.MarkSpeculative(src.Location.Path, src.Location)
	return src, true, nil
}

// fetchFirst tries candidates strictly in order; the first success
// short-circuits. NotFound and network errors on one candidate are
// swallowed; resolution just advances to the next. Returns nil when all
// candidates fail, plus the number of attempts made.
func (r *Resolver) fetchFirst(ctx context.Context, candidates []fetch.Location) (*fetch.FetchedSource, int, error) {
	attempts := 0
	for _, loc := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, attempts, err
		}
		attempts++

		content, err := r.fetcher.Fetch(ctx, loc)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, attempts, err
			}
			// Candidate abandoned; no retry.
			r.logger.Debug("candidate fetch failed",
				slog.String("location", loc.String()),
				slog.Bool("not_found", fetch.IsNotFound(err)),
			)
			continue
		}
		return &fetch.FetchedSource{Location: loc, Content: content}, attempts, nil
	}
	return nil, attempts, nil
}
