// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package session holds everything that is mutable for the duration of one
// analysis run: the entity repository and the processed/failed import sets.
// A Session is created at run start, passed by reference to every component,
// and discarded at run end. Nothing here persists across runs and there are
// no package-level singletons.
package session

import (
	"sync"

	"github.com/google/uuid"

	"github.com/AleutianAI/soltrace/services/soltrace/fetch"
	"github.com/AleutianAI/soltrace/services/soltrace/index"
)

// FailureReason distinguishes why an import could not be resolved.
type FailureReason string

const (
	// FailureExternal marks an import classified as an external-ecosystem
	// dependency. Expected and reported separately, not an error.
	FailureExternal FailureReason = "external"

	// FailureUnreachable marks a repository-local import whose every
	// candidate location failed to fetch.
	FailureUnreachable FailureReason = "unreachable"
)

// Session is the per-run analysis state.
//
// Description:
//
//	Owns the entity repository and the processed/failed import sets. All
//	three grow monotonically: an import, once processed or failed, never
//	changes state for the remainder of the run. That monotonicity is what
//	makes re-resolution a no-op and concurrent same-depth ingestion safe.
//
// Thread Safety: Safe for concurrent use.
type Session struct {
	// ID identifies this run in logs and reports.
	ID string

	// Coords are the repository coordinates the run analyzes.
	Coords fetch.Coords

	// Index is the run's entity repository.
	Index *index.EntityIndex

	mu          sync.Mutex
	processed   map[string]fetch.Location // import raw path → resolved location
	failed      map[string]FailureReason  // import raw path → why
	speculative map[string]fetch.Location // repo path → location, fetches outside import resolution
}

// New creates a fresh session for one analysis run.
func New(coords fetch.Coords) *Session {
	return &Session{
		ID:          uuid.NewString(),
		Coords:      coords,
		Index:       index.NewEntityIndex(),
		processed:   make(map[string]fetch.Location),
		failed:      make(map[string]FailureReason),
		speculative: make(map[string]fetch.Location),
	}
}

// MarkProcessed records that rawPath resolved to loc. The first resolution
// wins; later marks are ignored.
func (s *Session) MarkProcessed(rawPath string, loc fetch.Location) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.processed[rawPath]; !ok {
		s.processed[rawPath] = loc
	}
}

// MarkFailed records that rawPath could not be resolved. A path already
// processed is never downgraded to failed.
func (s *Session) MarkFailed(rawPath string, reason FailureReason) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.processed[rawPath]; ok {
		return
	}
	if _, ok := s.failed[rawPath]; !ok {
		s.failed[rawPath] = reason
	}
}

// MarkSpeculative records a file fetched outside import resolution, such as
// an implementation candidate. Speculative fetches live apart from the
// import ledger and never count toward Stats.
func (s *Session) MarkSpeculative(repoPath string, loc fetch.Location) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.speculative[repoPath]; !ok {
		s.speculative[repoPath] = loc
	}
}

// SpeculativeFetches returns a copy of the speculative fetch set, keyed by
// repository path.
func (s *Session) SpeculativeFetches() map[string]fetch.Location {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]fetch.Location, len(s.speculative))
	for k, v := range s.speculative {
		out[k] = v
	}
	return out
}

// Resolved returns the location rawPath resolved to, if it was processed.
func (s *Session) Resolved(rawPath string) (fetch.Location, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	loc, ok := s.processed[rawPath]
	return loc, ok
}

// IsKnown reports whether rawPath has already been processed or failed.
func (s *Session) IsKnown(rawPath string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, p := s.processed[rawPath]
	_, f := s.failed[rawPath]
	return p || f
}

// FailedImports returns a copy of the failed set.
func (s *Session) FailedImports() map[string]FailureReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]FailureReason, len(s.failed))
	for k, v := range s.failed {
		out[k] = v
	}
	return out
}

// ResolutionStats summarizes import resolution for the run so far.
type ResolutionStats struct {
	// Processed is the number of imports successfully resolved.
	Processed int `json:"processed"`

	// FailedExternal counts imports classified as external dependencies.
	FailedExternal int `json:"failed_external"`

	// FailedUnreachable counts local imports whose candidates all failed.
	FailedUnreachable int `json:"failed_unreachable"`

	// SuccessRate is processed / (processed + failed), 0 when nothing was
	// attempted.
	SuccessRate float64 `json:"success_rate"`
}

// Stats returns the current resolution statistics.
func (s *Session) Stats() ResolutionStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := ResolutionStats{Processed: len(s.processed)}
	for _, reason := range s.failed {
		if reason == FailureExternal {
			st.FailedExternal++
		} else {
			st.FailedUnreachable++
		}
	}
	attempted := st.Processed + st.FailedExternal + st.FailedUnreachable
	if attempted > 0 {
		st.SuccessRate = float64(st.Processed) / float64(attempted)
	}
	return st
}
