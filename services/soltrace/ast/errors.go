// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ast

import (
	"errors"
	"fmt"
)

// ErrParse is the sentinel all parse failures wrap. Callers can test for
// it with errors.Is regardless of the concrete ParseError details.
var ErrParse = errors.New("parse error")

// ParseError reports a failure to extract declarations from a source file.
//
// A ParseError on a fetched file is non-fatal to an analysis run: the fetch
// itself succeeded, so the import stays resolved; the file simply contributes
// no entities.
type ParseError struct {
	// FilePath is the file that failed to parse.
	FilePath string

	// Reason describes why parsing failed.
	Reason string
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %s", e.FilePath, e.Reason)
}

// Unwrap returns ErrParse so errors.Is(err, ErrParse) works.
func (e *ParseError) Unwrap() error {
	return ErrParse
}
