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
	"path"
	"strings"

	"github.com/AleutianAI/soltrace/services/soltrace/ast"
	"github.com/AleutianAI/soltrace/services/soltrace/fetch"
)

// DefaultSourceExtension is appended to extension-less candidates.
const DefaultSourceExtension = ".sol"

// commonSourceDirs are the conventional contract source roots tried when a
// repository-relative guess is needed.
var commonSourceDirs = []string{"contracts", "src", "lib"}

// Candidates generates the ordered candidate location list for an import.
//
// Description:
//
//	A known common-library prefix maps directly to its public location and
//	ends the search. Failing that, an external classification yields an
//	empty list, since external imports are never fetched. Everything else runs the search
//	strategies in fixed priority order:
//	  0. well-known filename table (direct public locations, by basename)
//	  1. path relative to the importing file's directory
//	  2. path relative to the repository root
//	  3. path under contracts/, src/, lib/
//	  4. path with a leading "./" stripped
//	  5. ".."-relative path resolved against the importing directory
//	  6. path forced under contracts/ when not already there
//	  7. basename guesses under contracts/interfaces/ and contracts/utils/
//
//	Every candidate gets the default extension when missing, is normalized
//	(separators collapsed, dot segments resolved), and the final list is
//	deduplicated preserving order.
//
// Outputs:
//
//	[]fetch.Location - ordered, deduplicated candidates. Empty for external
//	imports with no well-known or common-library mapping.
func Candidates(imp ast.ImportReference, coords fetch.Coords) []fetch.Location {
	raw := strings.TrimSpace(imp.RawPath)
	if raw == "" {
		return nil
	}

	if mapped := knownLibraryLocations(raw); mapped != nil {
		return dedupLocations(mapped)
	}

	// External classification is final: no strategy below may rescue it,
	// not even a well-known basename.
	if Classify(raw) == ClassExternal {
		return nil
	}

	// Priority zero: well-known filenames map straight to public library
	// locations regardless of how the path spells them.
	out := wellKnownLocations(raw)

	originDir := path.Dir(imp.OriginFile)
	if originDir == "." {
		originDir = ""
	}

	var paths []string

	// Relative to the importing file's directory.
	paths = append(paths, path.Join(originDir, raw))

	// Relative to the repository root.
	paths = append(paths, raw)

	// Under the conventional source roots.
	trimmed := strings.TrimPrefix(raw, "./")
	for _, dir := range commonSourceDirs {
		paths = append(paths, path.Join(dir, trimmed))
	}

	// Leading "./" stripped, taken as a root-relative path.
	paths = append(paths, trimmed)

	// ".."-relative resolved against the importing directory.
	if strings.HasPrefix(raw, "../") {
		paths = append(paths, path.Join(originDir, raw))
	}

	// Forced under contracts/ when not already there.
	if !strings.HasPrefix(trimmed, "contracts/") {
		paths = append(paths, path.Join("contracts", trimmed))
	}

	// Last-ditch basename guesses under the conventional subdirectories.
	base := path.Base(trimmed)
	paths = append(paths,
		path.Join("contracts", "interfaces", base),
		path.Join("contracts", "utils", base),
	)

	for _, p := range paths {
		normalized := normalizeCandidatePath(p)
		if normalized == "" {
			continue
		}
		out = append(out, fetch.Location{Coords: coords, Path: normalized})
	}

	return dedupLocations(out)
}

// normalizeCandidatePath cleans a candidate path and appends the default
// extension when none is present. Returns "" for paths that escape the
// repository root.
func normalizeCandidatePath(p string) string {
	cleaned := path.Clean(strings.ReplaceAll(p, "//", "/"))
	if cleaned == "." || cleaned == "/" || strings.HasPrefix(cleaned, "../") {
		return ""
	}
	cleaned = strings.TrimPrefix(cleaned, "/")
	if path.Ext(cleaned) == "" {
		cleaned += DefaultSourceExtension
	}
	return cleaned
}

// dedupLocations removes duplicates preserving first occurrence order.
func dedupLocations(locs []fetch.Location) []fetch.Location {
	seen := make(map[string]bool, len(locs))
	out := locs[:0]
	for _, loc := range locs {
		key := loc.String()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, loc)
	}
	return out
}
