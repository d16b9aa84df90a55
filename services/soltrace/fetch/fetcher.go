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
	"sync"
)

// Fetcher retrieves the content of a source location.
//
// Implementations return ErrNotFound when the location does not exist and
// a *NetworkError for transport failures. Both are non-fatal to resolution
// and callers are expected to move on to the next candidate.
type Fetcher interface {
	Fetch(ctx context.Context, loc Location) (string, error)
}

// MapFetcher serves content from an in-memory map keyed by Location.String().
// Locations not in the map return ErrNotFound.
//
// MapFetcher records every fetched key in order, which lets tests assert
// candidate ordering and idempotence (at most one fetch attempt sequence
// per import).
//
// Thread Safety: Safe for concurrent use.
type MapFetcher struct {
	mu      sync.Mutex
	sources map[string]string
	fetched []string
}

// NewMapFetcher creates a MapFetcher over the given sources.
func NewMapFetcher(sources map[string]string) *MapFetcher {
	if sources == nil {
		sources = make(map[string]string)
	}
	return &MapFetcher{sources: sources}
}

// Fetch implements Fetcher.
func (f *MapFetcher) Fetch(ctx context.Context, loc Location) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	key := loc.String()
	f.fetched = append(f.fetched, key)

	content, ok := f.sources[key]
	if !ok {
		return "", ErrNotFound
	}
	return content, nil
}

// Add registers content for a location.
func (f *MapFetcher) Add(loc Location, content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sources[loc.String()] = content
}

// Fetched returns the location keys fetched so far, in order.
func (f *MapFetcher) Fetched() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.fetched))
	copy(out, f.fetched)
	return out
}

// FetchCount returns the number of fetch attempts for a location key.
func (f *MapFetcher) FetchCount(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, k := range f.fetched {
		if k == key {
			n++
		}
	}
	return n
}
