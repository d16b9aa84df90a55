// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package report assembles the structured output of one analysis run: the
// call tree, the slice of the entity repository the tree touches, and the
// resolution statistics.
package report

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/AleutianAI/soltrace/services/soltrace/calltree"
	"github.com/AleutianAI/soltrace/services/soltrace/index"
	"github.com/AleutianAI/soltrace/services/soltrace/ingest"
	"github.com/AleutianAI/soltrace/services/soltrace/session"
)

// SchemaVersion identifies the report layout for consumers.
const SchemaVersion = "1"

// EntitySummary is the report's view of one declared entity.
type EntitySummary struct {
	ID         string `json:"id"`
	Kind       string `json:"kind"`
	Name       string `json:"name"`
	Signature  string `json:"signature"`
	File       string `json:"file"`
	Visibility string `json:"visibility,omitempty"`
	StartLine  int    `json:"start_line,omitempty"`
	EndLine    int    `json:"end_line,omitempty"`
}

// Report is the structured result of one analysis run.
type Report struct {
	SchemaVersion string `json:"schema_version"`

	// RunID is the session identifier.
	RunID string `json:"run_id"`

	// Repository is "owner/repo@branch".
	Repository string `json:"repository"`

	// StartFunction is the function the call tree was built from.
	StartFunction string `json:"start_function"`

	// GeneratedAtMilli is the report creation time in Unix milliseconds.
	GeneratedAtMilli int64 `json:"generated_at_milli"`

	// Entities are the declared entities the call tree touches, sorted by
	// entity ID for deterministic output.
	Entities []EntitySummary `json:"entities"`

	// CallTree is the bounded expansion from the start function.
	CallTree *calltree.Node `json:"call_tree"`

	// CallTreeDepth is the deepest level observed in the tree.
	CallTreeDepth int `json:"call_tree_depth"`

	// Coverage summarizes the ingestion loop.
	Coverage *ingest.Coverage `json:"coverage"`

	// Resolution summarizes import resolution.
	Resolution session.ResolutionStats `json:"resolution"`

	// FailedImports maps each unresolved import path to the reason it
	// failed, keyed by the raw path as written in source.
	FailedImports map[string]session.FailureReason `json:"failed_imports,omitempty"`
}

// Build assembles a report from the run's final state.
func Build(sess *session.Session, startFunction string, tree *calltree.Node, coverage *ingest.Coverage) *Report {
	return &Report{
		SchemaVersion:    SchemaVersion,
		RunID:            sess.ID,
		Repository:       sess.Coords.String(),
		StartFunction:    startFunction,
		GeneratedAtMilli: time.Now().UnixMilli(),
		Entities:         relevantEntities(sess.Index, tree),
		CallTree:         tree,
		CallTreeDepth:    calltree.MaxDepth(tree),
		Coverage:         coverage,
		Resolution:       sess.Stats(),
		FailedImports:    failedImports(sess),
	}
}

// JSON serializes the report with stable field order and indentation.
func (r *Report) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// relevantEntities returns summaries for the entities that appear in the
// tree, sorted by ID. Entities ingested but never reached are omitted.
func relevantEntities(idx *index.EntityIndex, tree *calltree.Node) []EntitySummary {
	reached := make(map[string]bool)
	collectReached(tree, reached)

	var out []EntitySummary
	for _, e := range idx.SortedEntities() {
		if !reached[nodeKey(e.File, e.Name)] {
			continue
		}
		out = append(out, EntitySummary{
			ID:         e.ID(),
			Kind:       e.Kind.String(),
			Name:       e.Name,
			Signature:  e.Signature,
			File:       e.File,
			Visibility: e.Visibility,
			StartLine:  e.StartLine,
			EndLine:    e.EndLine,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func collectReached(node *calltree.Node, reached map[string]bool) {
	if node == nil {
		return
	}
	if node.File != "" {
		reached[nodeKey(node.File, node.Name)] = true
	}
	for _, child := range node.Children {
		collectReached(child, reached)
	}
}

func nodeKey(file, name string) string {
	return file + "#" + name
}

// failedImports returns nil when every import resolved so the field is
// omitted from the JSON document.
func failedImports(sess *session.Session) map[string]session.FailureReason {
	failed := sess.FailedImports()
	if len(failed) == 0 {
		return nil
	}
	return failed
}
