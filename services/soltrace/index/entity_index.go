// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package index implements the entity repository: an append-only store of
// parsed declarations keyed by file and name. It grows monotonically during
// an analysis run and is discarded with the run's session.
package index

import (
	"path"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/AleutianAI/soltrace/services/soltrace/ast"
)

// EntityIndex is the append-only entity repository.
//
// Description:
//
//	Stores every entity extracted during a run, indexed by declared name and
//	by declaring file. Entities are never removed or mutated; re-adding a
//	file's parse result is rejected so the same declaration cannot appear
//	twice. That append-only discipline is what makes concurrent same-depth
//	ingestion safe.
//
// Thread Safety: Safe for concurrent use.
type EntityIndex struct {
	mu     sync.RWMutex
	byName map[string][]*ast.Entity
	byFile map[string][]*ast.Entity
	files  []string // insertion order, for deterministic scans
}

// NewEntityIndex creates an empty index.
func NewEntityIndex() *EntityIndex {
	return &EntityIndex{
		byName: make(map[string][]*ast.Entity),
		byFile: make(map[string][]*ast.Entity),
	}
}

// AddParseResult merges a file's parse result into the index.
//
// Adding the same file twice is a no-op returning false; the first parse
// wins. Returns true when the file's entities were added.
func (idx *EntityIndex) AddParseResult(result *ast.ParseResult) bool {
	if result == nil {
		return false
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, exists := idx.byFile[result.FilePath]; exists {
		return false
	}

	idx.byFile[result.FilePath] = result.Entities
	idx.files = append(idx.files, result.FilePath)
	for _, e := range result.Entities {
		idx.byName[e.Name] = append(idx.byName[e.Name], e)
	}
	return true
}

// ByName returns all entities declared with the given name, in insertion
// order. The returned slice is a copy.
func (idx *EntityIndex) ByName(name string) []*ast.Entity {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return copyEntities(idx.byName[name])
}

// FunctionsByName returns function entities with the given name.
func (idx *EntityIndex) FunctionsByName(name string) []*ast.Entity {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var out []*ast.Entity
	for _, e := range idx.byName[name] {
		if e.Kind == ast.EntityKindFunction {
			out = append(out, e)
		}
	}
	return out
}

// ByFile returns all entities declared in the given file.
func (idx *EntityIndex) ByFile(file string) []*ast.Entity {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return copyEntities(idx.byFile[file])
}

// FunctionsInFile returns the function entities declared in the given file.
func (idx *EntityIndex) FunctionsInFile(file string) []*ast.Entity {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var out []*ast.Entity
	for _, e := range idx.byFile[file] {
		if e.Kind == ast.EntityKindFunction {
			out = append(out, e)
		}
	}
	return out
}

// HasFile reports whether the file has been ingested.
func (idx *EntityIndex) HasFile(file string) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	_, ok := idx.byFile[file]
	return ok
}

// Files returns every ingested file path in insertion order.
func (idx *EntityIndex) Files() []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]string, len(idx.files))
	copy(out, idx.files)
	return out
}

// FilesContaining returns ingested file paths whose basename (extension
// stripped) contains the given substring, in insertion order.
func (idx *EntityIndex) FilesContaining(sub string) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var out []string
	for _, f := range idx.files {
		if strings.Contains(baseName(f), sub) {
			out = append(out, f)
		}
	}
	return out
}

// Stats summarizes the index contents.
type Stats struct {
	Files    int `json:"files"`
	Entities int `json:"entities"`
}

// Stat returns the current index statistics.
func (idx *EntityIndex) Stat() Stats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	entities := 0
	for _, es := range idx.byFile {
		entities += len(es)
	}
	return Stats{Files: len(idx.byFile), Entities: entities}
}

// SortedEntities returns every entity sorted by identity. Used for
// deterministic report output.
func (idx *EntityIndex) SortedEntities() []*ast.Entity {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var out []*ast.Entity
	for _, es := range idx.byFile {
		out = append(out, es...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// IsInterfaceFile reports whether a file path looks like it declares an
// interface: the basename follows the I-prefix naming convention, or any
// path segment contains the word "interface".
//
// This is a heuristic over names, not semantics: a concrete contract in a
// file named like an interface will be misclassified, and that is accepted.
func IsInterfaceFile(filePath string) bool {
	base := baseName(filePath)
	if len(base) >= 2 && base[0] == 'I' && unicode.IsUpper(rune(base[1])) {
		return true
	}
	return strings.Contains(strings.ToLower(filePath), "interface")
}

// InterfaceNameForFile derives the interface name from a file path:
// the basename with the extension stripped ("contracts/IOracle.sol" →
// "IOracle").
func InterfaceNameForFile(filePath string) string {
	return baseName(filePath)
}

func baseName(filePath string) string {
	base := path.Base(filePath)
	if ext := path.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	return base
}

func copyEntities(src []*ast.Entity) []*ast.Entity {
	if len(src) == 0 {
		return nil
	}
	out := make([]*ast.Entity, len(src))
	copy(out, src)
	return out
}
