// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package resolve turns raw import strings into fetchable source locations.
// It owns import classification (external vs. resolvable), the ordered
// candidate search strategies, and the first-success fetch loop with
// per-run memoization.
package resolve

import "strings"

// Class is the resolution classification of an import path.
type Class int

const (
	// ClassResolvable means candidate locations can be generated for the
	// import within the repository under analysis.
	ClassResolvable Class = iota

	// ClassExternal means the import belongs to an external package
	// ecosystem and is never fetched. External classification is
	// final: it wins even when a known-library shortcut could
	// theoretically map the path.
	ClassExternal
)

// String returns the string representation of the Class.
func (c Class) String() string {
	if c == ClassExternal {
		return "external"
	}
	return "resolvable"
}

// externalPrefixes identify package-manager-style paths, bare URLs, and
// IPFS references. Matching any of these makes an import external, full
// stop; classification is pattern-first and deterministic.
var externalPrefixes = []string{
	"@",        // npm scoped packages (@openzeppelin/..., @chainlink/...)
	"http://",  // bare URLs
	"https://", //
	"ipfs://",  // IPFS references
	"hardhat/", // toolchain-provided packages
	"forge-std/",
}

// Classify determines whether an import path is external or resolvable.
func Classify(importPath string) Class {
	trimmed := strings.TrimSpace(importPath)
	for _, prefix := range externalPrefixes {
		if strings.HasPrefix(trimmed, prefix) {
			return ClassExternal
		}
	}
	return ClassResolvable
}
