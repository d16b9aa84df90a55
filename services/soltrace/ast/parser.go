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

import "context"

// Parser defines the contract for language-specific declaration extraction.
//
// Description:
//
//	Parser implementations turn raw source text into the common ParseResult
//	format: entities (functions, modifiers, events, state variables) and
//	import references. The analysis core treats the parser as an
//	already-correct collaborator and performs no independent lexical
//	analysis of its own.
//
// Inputs:
//
//	ctx      - Context for cancellation. Implementations should check
//	           ctx.Done() on long inputs.
//	content  - Raw source text. Must be valid UTF-8.
//	filePath - Repository-relative path of the file (used for entity
//	           identity and error reporting).
//
// Outputs:
//
//	*ParseResult - Extracted entities and imports. Never nil on success.
//	error        - A *ParseError when extraction failed completely. Partial
//	               extraction is not an error.
//
// Thread Safety: Implementations must be safe for concurrent use.
type Parser interface {
	// Parse extracts entities and import references from source text.
	Parse(ctx context.Context, content string, filePath string) (*ParseResult, error)

	// Language returns the canonical lowercase language name ("solidity").
	Language() string

	// Extensions returns the file extensions this parser handles,
	// including the leading dot (e.g., [".sol"]).
	Extensions() []string
}
