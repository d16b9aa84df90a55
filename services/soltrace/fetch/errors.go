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
	"errors"
	"fmt"
)

// ErrNotFound indicates the location does not exist on the remote.
// A not-found candidate is an expected outcome during resolution, not a
// transport failure.
var ErrNotFound = errors.New("source not found")

// NetworkError reports a transport-level failure (connection, timeout,
// non-404 HTTP status). Resolution treats it the same way as ErrNotFound,
// the candidate is abandoned and the next one is tried, but the two are
// kept distinct for logging and metrics.
type NetworkError struct {
	// Location is the location whose fetch failed.
	Location Location

	// Err is the underlying transport error, if any.
	Err error

	// StatusCode is the HTTP status when the failure was an unexpected
	// status rather than a transport error. Zero otherwise.
	StatusCode int
}

// Error implements the error interface.
func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.Location, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.Location, e.Err)
}

// Unwrap returns the underlying error.
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is a not-found outcome.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
