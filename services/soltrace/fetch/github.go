// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"
)

var githubTracer = otel.Tracer("soltrace.fetch")

// Default GitHubFetcher configuration values.
const (
	// DefaultBaseURL is the raw-content host used when none is configured.
	DefaultBaseURL = "https://raw.githubusercontent.com"

	// DefaultTimeout bounds a single fetch round trip.
	DefaultTimeout = 15 * time.Second

	// DefaultRequestsPerSecond is the outbound rate limit. Raw content
	// hosts throttle aggressively; stay well under their ceiling.
	DefaultRequestsPerSecond = 8

	// maxResponseBytes caps a single file read. Contract sources are
	// small; anything larger is not a source file.
	maxResponseBytes = 4 << 20
)

// GitHubFetcherOptions configures GitHubFetcher behavior.
type GitHubFetcherOptions struct {
	// BaseURL is the raw-content host. Default: DefaultBaseURL.
	BaseURL string

	// HTTPClient is the client used for requests. Default: a client with
	// DefaultTimeout.
	HTTPClient *http.Client

	// RequestsPerSecond is the outbound rate limit.
	// Default: DefaultRequestsPerSecond.
	RequestsPerSecond float64

	// Cache is an optional content cache consulted before the network and
	// populated after a successful fetch. May be nil.
	Cache ContentCache

	// Logger is the structured logger. Default: slog.Default().
	Logger *slog.Logger
}

// GitHubFetcherOption is a functional option for configuring GitHubFetcher.
type GitHubFetcherOption func(*GitHubFetcherOptions)

// WithBaseURL overrides the raw-content host (used by tests).
func WithBaseURL(url string) GitHubFetcherOption {
	return func(o *GitHubFetcherOptions) { o.BaseURL = url }
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) GitHubFetcherOption {
	return func(o *GitHubFetcherOptions) { o.HTTPClient = c }
}

// WithRequestsPerSecond sets the outbound rate limit.
func WithRequestsPerSecond(rps float64) GitHubFetcherOption {
	return func(o *GitHubFetcherOptions) { o.RequestsPerSecond = rps }
}

// WithCache attaches a content cache.
func WithCache(cache ContentCache) GitHubFetcherOption {
	return func(o *GitHubFetcherOptions) { o.Cache = cache }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) GitHubFetcherOption {
	return func(o *GitHubFetcherOptions) { o.Logger = l }
}

// GitHubFetcher retrieves file content from a raw-content host
// (raw.githubusercontent.com or a compatible mirror).
//
// Description:
//
//	Builds the URL {base}/{owner}/{repo}/{branch}/{path}, applies the
//	outbound rate limit, and maps the response: 200 to content, 404 to
//	ErrNotFound, everything else to *NetworkError. When a content cache is
//	attached, hits skip the network entirely and successful fetches are
//	written back. Cache failures degrade to network fetches.
//
// Thread Safety: Safe for concurrent use.
type GitHubFetcher struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	cache   ContentCache
	logger  *slog.Logger
}

// NewGitHubFetcher creates a GitHubFetcher.
func NewGitHubFetcher(opts ...GitHubFetcherOption) *GitHubFetcher {
	options := GitHubFetcherOptions{
		BaseURL:           DefaultBaseURL,
		RequestsPerSecond: DefaultRequestsPerSecond,
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.HTTPClient == nil {
		options.HTTPClient = &http.Client{Timeout: DefaultTimeout}
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}

	return &GitHubFetcher{
		baseURL: options.BaseURL,
		client:  options.HTTPClient,
		limiter: rate.NewLimiter(rate.Limit(options.RequestsPerSecond), 1),
		cache:   options.Cache,
		logger:  options.Logger,
	}
}

// Fetch implements Fetcher.
func (f *GitHubFetcher) Fetch(ctx context.Context, loc Location) (string, error) {
	ctx, span := githubTracer.Start(ctx, "GitHubFetcher.Fetch")
	defer span.End()
	span.SetAttributes(
		attribute.String("fetch.location", loc.String()),
	)

	if f.cache != nil {
		if content, ok := f.cache.Get(loc.String()); ok {
			span.SetAttributes(attribute.Bool("fetch.cache_hit", true))
			return content, nil
		}
	}

	if err := f.limiter.Wait(ctx); err != nil {
		span.RecordError(err)
		return "", &NetworkError{Location: loc, Err: err}
	}

	url := fmt.Sprintf("%s/%s/%s/%s/%s", f.baseURL, loc.Owner, loc.Repo, loc.Branch, loc.Path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		span.RecordError(err)
		return "", &NetworkError{Location: loc, Err: err}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport failure")
		return "", &NetworkError{Location: loc, Err: err}
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to read
	case resp.StatusCode == http.StatusNotFound:
		return "", ErrNotFound
	default:
		span.SetStatus(codes.Error, "unexpected status")
		return "", &NetworkError{Location: loc, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		span.RecordError(err)
		return "", &NetworkError{Location: loc, Err: err}
	}
	content := string(body)

	if f.cache != nil {
		if err := f.cache.Put(loc.String(), content); err != nil {
			f.logger.Debug("fetch cache write failed",
				slog.String("location", loc.String()),
				slog.String("error", err.Error()),
			)
		}
	}

	return content, nil
}
