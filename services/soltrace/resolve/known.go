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

	"github.com/AleutianAI/soltrace/services/soltrace/fetch"
)

// Coordinates of well-known public library repositories.
var (
	openZeppelinCoords = fetch.Coords{
		Owner:  "OpenZeppelin",
		Repo:   "openzeppelin-contracts",
		Branch: "master",
	}

	solmateCoords = fetch.Coords{
		Owner:  "transmissions11",
		Repo:   "solmate",
		Branch: "main",
	}
)

// knownLibraryPrefix maps a common-library import prefix to the repository
// that hosts it. When an import matches, its direct mapped location is the
// only candidate and no further search strategies run.
//
// Note the spellings here are the non-scoped, vendored forms; the scoped
// forms ("@openzeppelin/...") classify as external before this table is
// ever consulted.
type knownLibraryPrefix struct {
	Prefix string
	Coords fetch.Coords
	// RootDir replaces the prefix in the mapped path (the on-repo layout
	// rarely matches the vendored import layout exactly).
	RootDir string
}

var knownLibraryPrefixes = []knownLibraryPrefix{
	{Prefix: "openzeppelin-solidity/contracts/", Coords: openZeppelinCoords, RootDir: "contracts/"},
	{Prefix: "openzeppelin-contracts/contracts/", Coords: openZeppelinCoords, RootDir: "contracts/"},
	{Prefix: "solmate/src/", Coords: solmateCoords, RootDir: "src/"},
}

// wellKnownFiles maps the basenames of ubiquitous library files (ownership,
// fungible tokens, reentrancy guards, safe-transfer helpers) directly to
// their public locations. Matching by basename is the priority-zero
// strategy: these candidates go ahead of every path-derived guess.
var wellKnownFiles = map[string][]fetch.Location{
	"Ownable.sol": {
		{Coords: openZeppelinCoords, Path: "contracts/access/Ownable.sol"},
	},
	"ERC20.sol": {
		{Coords: openZeppelinCoords, Path: "contracts/token/ERC20/ERC20.sol"},
	},
	"IERC20.sol": {
		{Coords: openZeppelinCoords, Path: "contracts/token/ERC20/IERC20.sol"},
	},
	"ERC721.sol": {
		{Coords: openZeppelinCoords, Path: "contracts/token/ERC721/ERC721.sol"},
	},
	"ReentrancyGuard.sol": {
		{Coords: openZeppelinCoords, Path: "contracts/utils/ReentrancyGuard.sol"},
		{Coords: openZeppelinCoords, Path: "contracts/security/ReentrancyGuard.sol"},
	},
	"SafeERC20.sol": {
		{Coords: openZeppelinCoords, Path: "contracts/token/ERC20/utils/SafeERC20.sol"},
	},
	"SafeTransferLib.sol": {
		{Coords: solmateCoords, Path: "src/utils/SafeTransferLib.sol"},
	},
}

// knownLibraryLocations returns the direct mapped location(s) for an import
// matching a known common-library prefix, or nil.
func knownLibraryLocations(importPath string) []fetch.Location {
	for _, lib := range knownLibraryPrefixes {
		if strings.HasPrefix(importPath, lib.Prefix) {
			rest := strings.TrimPrefix(importPath, lib.Prefix)
			return []fetch.Location{{
				Coords: lib.Coords,
				Path:   lib.RootDir + rest,
			}}
		}
	}
	return nil
}

// wellKnownLocations returns the priority-zero locations for an import
// whose basename is a well-known library filename, or nil.
func wellKnownLocations(importPath string) []fetch.Location {
	base := path.Base(importPath)
	locs, ok := wellKnownFiles[base]
	if !ok {
		return nil
	}
	out := make([]fetch.Location, len(locs))
	copy(out, locs)
	return out
}
