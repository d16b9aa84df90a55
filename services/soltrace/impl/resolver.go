// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package impl binds interface names to the concrete contract that
// implements them, using name heuristics first and member-signature
// matching to score each candidate file.
package impl

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/soltrace/services/soltrace/ast"
	"github.com/AleutianAI/soltrace/services/soltrace/index"
	"github.com/AleutianAI/soltrace/services/soltrace/resolve"
)

var implTracer = otel.Tracer("soltrace.impl")

// globalScanThreshold is the minimum match ratio for the full-index
// fallback scan. Name-heuristic candidates accept any strictly positive
// ratio; the global scan is noisier and needs a majority of members.
const globalScanThreshold = 0.5

// commonContractDirs are the repository directories tried when a candidate
// implementation is not known locally and must be fetched speculatively.
var commonContractDirs = []string{
	"contracts",
	"src",
	"contracts/core",
	"contracts/impl",
}

// MatchedMember pairs an interface member with the implementation function
// that satisfied it. Both sides are signatures as declared in source.
type MatchedMember struct {
	InterfaceMember string `json:"interface_member"`
	ImplMember      string `json:"impl_member"`
}

// Binding records which file was chosen to implement an interface.
type Binding struct {
	// Interface is the interface name that was resolved.
	Interface string `json:"interface"`

	// File is the repository path of the chosen implementation.
	File string `json:"file"`

	// Candidate is the name heuristic that led to the file. Empty when the
	// binding came from the global scan.
	Candidate string `json:"candidate,omitempty"`

	// MatchRatio is matched members / interface member count, in [0, 1].
	MatchRatio float64 `json:"match_ratio"`

	// MatchedMembers are the member pairs that produced MatchRatio, ordered
	// by interface member signature.
	MatchedMembers []MatchedMember `json:"matched_members,omitempty"`

	// Remote is true when the implementation file had to be fetched during
	// resolution rather than being already ingested.
	Remote bool `json:"remote,omitempty"`
}

// ResolverOption is a functional option for configuring Resolver.
type ResolverOption func(*Resolver)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) ResolverOption {
	return func(r *Resolver) { r.logger = l }
}

// Resolver finds the implementation contract for an interface.
//
// Description:
//
//	Candidate implementation names are derived from the interface name
//	deterministically and tried strictly in order: the first candidate with
//	a strictly positive match ratio wins and the rest are never scored
//	(greedy, not globally optimal). If no candidate is known locally, the
//	resolver fetches speculative files through the dependency resolver and
//	merges whatever parses into the entity index before re-scoring. Only
//	when every name candidate scores zero does the resolver fall back to a
//	global scan over all non-interface-like files, accepting the single
//	best score above 0.5.
//
//	Each interface resolves at most once per run; the outcome, positive or
//	negative, is memoized.
//
// Thread Safety: Not safe for concurrent use; a Resolver belongs to one
// run.
type Resolver struct {
	idx    *index.EntityIndex
	dep    *resolve.Resolver
	parser ast.Parser
	logger *slog.Logger

	memo map[string]*Binding
}

// NewResolver creates an implementation resolver over one run's index.
// The dependency resolver may be nil, in which case remote resolution is
// skipped and only locally known files are considered.
func NewResolver(idx *index.EntityIndex, dep *resolve.Resolver, parser ast.Parser, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		idx:    idx,
		dep:    dep,
		parser: parser,
		memo:   make(map[string]*Binding),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// ResolveImplementation finds the implementation binding for ifaceName.
// Returns nil when no binding could be established; that outcome is also
// memoized, so the search never repeats within a run.
func (r *Resolver) ResolveImplementation(ctx context.Context, ifaceName string) *Binding {
	if binding, done := r.memo[ifaceName]; done {
		return binding
	}

	ctx, span := implTracer.Start(ctx, "ImplResolver.Resolve",
		trace.WithAttributes(attribute.String("impl.interface", ifaceName)))
	defer span.End()

	binding := r.resolveUncached(ctx, ifaceName)
	r.memo[ifaceName] = binding

	if binding != nil {
		span.SetAttributes(
			attribute.String("impl.file", binding.File),
			attribute.Float64("impl.match_ratio", binding.MatchRatio),
		)
		r.logger.Debug("implementation bound",
			slog.String("interface", ifaceName),
			slog.String("file", binding.File),
			slog.Float64("match_ratio", binding.MatchRatio),
		)
	} else {
		r.logger.Debug("no implementation found", slog.String("interface", ifaceName))
	}
	return binding
}

func (r *Resolver) resolveUncached(ctx context.Context, ifaceName string) *Binding {
	members := r.interfaceMembers(ifaceName)
	ifaceFiles := r.interfaceFiles(ifaceName)

	// Name heuristics, greedy: the first candidate that scores at all wins.
	for _, candidate := range CandidateNames(ifaceName) {
		if binding := r.scoreCandidate(candidate, ifaceName, members, ifaceFiles, false); binding != nil {
			return binding
		}
	}

	// Remote round: fetch speculative files per candidate, merge whatever
	// parses, then re-score the same candidate.
	if r.dep != nil {
		for _, candidate := range CandidateNames(ifaceName) {
			if err := ctx.Err(); err != nil {
				return nil
			}
			if !r.fetchCandidate(ctx, candidate) {
				continue
			}
			if binding := r.scoreCandidate(candidate, ifaceName, members, ifaceFiles, true); binding != nil {
				return binding
			}
		}
	}

	return r.globalScan(ifaceName, members, ifaceFiles)
}

// scoreCandidate computes the match ratio of every known file whose name
// contains the candidate string and returns a binding for the best one if
// its ratio is strictly positive.
func (r *Resolver) scoreCandidate(candidate, ifaceName string, members []*ast.Entity, ifaceFiles map[string]bool, remote bool) *Binding {
	var (
		bestFile  string
		bestRatio float64
		bestPairs []MatchedMember
	)
	for _, file := range r.idx.FilesContaining(candidate) {
		if ifaceFiles[file] || index.IsInterfaceFile(file) {
			continue
		}
		if ratio, pairs := r.matchScore(file, members); ratio > bestRatio {
			bestFile, bestRatio, bestPairs = file, ratio, pairs
		}
	}
	if bestRatio <= 0 {
		return nil
	}
	return &Binding{
		Interface:      ifaceName,
		File:           bestFile,
		Candidate:      candidate,
		MatchRatio:     bestRatio,
		MatchedMembers: bestPairs,
		Remote:         remote,
	}
}

// fetchCandidate speculatively fetches candidate files from the common
// contract directories and merges the first success into the index.
// Reports whether anything new was ingested.
func (r *Resolver) fetchCandidate(ctx context.Context, candidate string) bool {
	paths := make([]string, 0, len(commonContractDirs))
	for _, dir := range commonContractDirs {
		paths = append(paths, dir+"/"+candidate+".sol")
	}

	src, ok, err := r.dep.FetchFirst(ctx, paths)
	if err != nil || !ok {
		return false
	}
	if r.idx.HasFile(src.Location.Path) {
		return false
	}

	result, err := r.parser.Parse(ctx, src.Content, src.Location.Path)
	if err != nil {
		r.logger.Warn("speculative implementation file failed to parse",
			slog.String("location", src.Location.String()),
			slog.String("error", err.Error()),
		)
		return false
	}
	return r.idx.AddParseResult(result)
}

// globalScan scores every non-interface-like file in the index and accepts
// the single best one above the threshold. Runs only when every name
// candidate scored zero.
func (r *Resolver) globalScan(ifaceName string, members []*ast.Entity, ifaceFiles map[string]bool) *Binding {
	var (
		bestFile  string
		bestRatio float64
		bestPairs []MatchedMember
	)
	files := r.idx.Files()
	sort.Strings(files)
	for _, file := range files {
		if ifaceFiles[file] || index.IsInterfaceFile(file) {
			continue
		}
		if ratio, pairs := r.matchScore(file, members); ratio > bestRatio {
			bestFile, bestRatio, bestPairs = file, ratio, pairs
		}
	}
	if bestRatio <= globalScanThreshold {
		return nil
	}
	return &Binding{
		Interface:      ifaceName,
		File:           bestFile,
		MatchRatio:     bestRatio,
		MatchedMembers: bestPairs,
	}
}

// matchScore scores how much of the interface the file implements and
// returns the member pairs that matched. A member matches when the file
// declares a function with the same name, the same parameter count, and
// element-wise equal parameter type strings. Return type, visibility, and
// mutability are not compared. Pairs follow the members' signature order.
func (r *Resolver) matchScore(file string, members []*ast.Entity) (float64, []MatchedMember) {
	if len(members) == 0 {
		return 0, nil
	}
	fns := r.idx.FunctionsInFile(file)

	var pairs []MatchedMember
	for _, m := range members {
		if fn := implementingMember(fns, m); fn != nil {
			pairs = append(pairs, MatchedMember{
				InterfaceMember: m.Signature,
				ImplMember:      fn.Signature,
			})
		}
	}
	return float64(len(pairs)) / float64(max(len(members), 1)), pairs
}

// implementingMember returns the first function in fns that satisfies the
// interface member, or nil.
func implementingMember(fns []*ast.Entity, member *ast.Entity) *ast.Entity {
	want := member.ParameterTypes()
	for _, fn := range fns {
		if fn.Name != member.Name {
			continue
		}
		got := fn.ParameterTypes()
		if len(got) != len(want) {
			continue
		}
		equal := true
		for i := range want {
			if got[i] != want[i] {
				equal = false
				break
			}
		}
		if equal {
			return fn
		}
	}
	return nil
}

// interfaceMembers returns the function members declared in the files that
// define ifaceName, deduplicated by signature.
func (r *Resolver) interfaceMembers(ifaceName string) []*ast.Entity {
	seen := make(map[string]bool)
	var members []*ast.Entity
	for file := range r.interfaceFiles(ifaceName) {
		for _, e := range r.idx.FunctionsInFile(file) {
			if seen[e.Signature] {
				continue
			}
			seen[e.Signature] = true
			members = append(members, e)
		}
	}
	sort.Slice(members, func(i, j int) bool { return members[i].Signature < members[j].Signature })
	return members
}

// interfaceFiles returns the ingested files whose basename is exactly the
// interface name. Those files are excluded from implementation candidates.
func (r *Resolver) interfaceFiles(ifaceName string) map[string]bool {
	out := make(map[string]bool)
	for _, file := range r.idx.FilesContaining(ifaceName) {
		if index.InterfaceNameForFile(file) == ifaceName {
			out[file] = true
		}
	}
	return out
}

// CandidateNames derives implementation contract names from an interface
// name, most specific first. The list is deterministic and deduplicated.
func CandidateNames(ifaceName string) []string {
	stripped := StripInterfaceMarker(ifaceName)

	raw := []string{
		stripped,
		stripped + "Impl",
		stripped + "Contract",
		stripped + "Implementation",
		"Concrete" + stripped,
		ifaceName + "Impl",
		strings.ToLower(stripped),
		lowerCamel(stripped),
	}

	seen := make(map[string]bool)
	var out []string
	for _, name := range raw {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

// StripInterfaceMarker removes a leading "I" when it prefixes an
// upper-camel name, per the conventional interface naming scheme.
func StripInterfaceMarker(name string) string {
	if len(name) >= 2 && name[0] == 'I' && name[1] >= 'A' && name[1] <= 'Z' {
		return name[1:]
	}
	return name
}

func lowerCamel(name string) string {
	if name == "" {
		return name
	}
	return strings.ToLower(name[:1]) + name[1:]
}
