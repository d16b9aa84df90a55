// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package fetch provides the remote source retrieval boundary: repository
// locations, fetch errors, and Fetcher implementations. The analysis core
// never talks to a transport directly; it goes through a Fetcher.
package fetch

import "fmt"

// Coords identifies a repository: owner, name, and branch.
type Coords struct {
	// Owner is the repository owner or organization.
	Owner string `json:"owner"`

	// Repo is the repository name.
	Repo string `json:"repo"`

	// Branch is the branch or ref to read from.
	Branch string `json:"branch"`
}

// String returns "owner/repo@branch".
func (c Coords) String() string {
	return fmt.Sprintf("%s/%s@%s", c.Owner, c.Repo, c.Branch)
}

// Location is a fetchable source location: repository coordinates plus a
// repository-relative file path.
type Location struct {
	Coords

	// Path is the repository-relative file path (forward slashes).
	Path string `json:"path"`
}

// String returns "owner/repo@branch:path". Used as cache and memoization key.
func (l Location) String() string {
	return fmt.Sprintf("%s:%s", l.Coords.String(), l.Path)
}

// FetchedSource is a successfully retrieved source file. Ownership of the
// content transfers to the entity repository once the file parses.
type FetchedSource struct {
	// Location is where the content was fetched from.
	Location Location

	// Content is the raw file content.
	Content string
}
