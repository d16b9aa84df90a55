// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package detect finds calls routed through interface-typed handles in raw
// Solidity source text. Interface-typed dynamic dispatch is not uniformly
// distinguishable in the parsed form, so the detector works on text with
// four ordered heuristics of decreasing precision and increasing recall.
package detect

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"

	"github.com/AleutianAI/soltrace/services/soltrace/ast"
	"github.com/AleutianAI/soltrace/services/soltrace/index"
)

// Pattern identifies which heuristic produced an interface call edge.
// Lower values are more precise; an edge found by an earlier pattern is
// never overridden by a later one.
type Pattern int

const (
	// PatternDirectCast matches Name(expr).method(args).
	PatternDirectCast Pattern = iota + 1

	// PatternDeclaredHandle matches handle.method(args) where handle was
	// declared as Type handle = Type(expr) anywhere in the same text.
	PatternDeclaredHandle

	// PatternMemberCall matches x.method(args) where method is a known
	// interface member and x is not a reserved context identifier.
	PatternMemberCall

	// PatternNameOnly matches a bare call to a known interface member name
	// regardless of receiver syntax.
	PatternNameOnly
)

// String returns a stable label for serialization.
func (p Pattern) String() string {
	switch p {
	case PatternDirectCast:
		return "direct_cast"
	case PatternDeclaredHandle:
		return "declared_handle"
	case PatternMemberCall:
		return "member_call"
	case PatternNameOnly:
		return "name_only"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the pattern as its stable label rather than its
// ordinal.
func (p Pattern) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON accepts the label form produced by MarshalJSON.
func (p *Pattern) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "direct_cast":
		*p = PatternDirectCast
	case "declared_handle":
		*p = PatternDeclaredHandle
	case "member_call":
		*p = PatternMemberCall
	case "name_only":
		*p = PatternNameOnly
	default:
		*p = 0
	}
	return nil
}

// InterfaceCall is one detected call through an interface-typed handle.
type InterfaceCall struct {
	// Interface is the interface name the call was attributed to.
	Interface string `json:"interface"`

	// Method is the member being invoked.
	Method string `json:"method"`

	// Pattern is the heuristic that found the edge.
	Pattern Pattern `json:"pattern"`

	// ArgCount is the number of top-level arguments at the call site.
	ArgCount int `json:"arg_count"`
}

// CompositeName returns "Interface.Method", the deduplication key.
func (c InterfaceCall) CompositeName() string {
	return c.Interface + "." + c.Method
}

// reservedReceivers are context identifiers that member-call syntax hangs
// off without any interface being involved.
var reservedReceivers = map[string]bool{
	"msg":   true,
	"block": true,
	"tx":    true,
	"this":  true,
	"super": true,
	"abi":   true,
}

var (
	directCastRe = regexp.MustCompile(`\b([A-Z]\w*)\s*\(([^()]*)\)\s*\.\s*([a-zA-Z_]\w*)\s*\(`)

	// Type handle = Type(expr). The declared type and the cast type must be
	// the same identifier for the handle mapping to be trustworthy.
	handleDeclRe = regexp.MustCompile(`\b([A-Z]\w*)\s+([a-zA-Z_]\w*)\s*=\s*([A-Z]\w*)\s*\(`)

	memberCallRe = regexp.MustCompile(`(^|[^\w.])([a-zA-Z_]\w*)\s*\.\s*([a-zA-Z_]\w*)\s*\(`)
)

// Detector scans source text for interface-routed calls against the set of
// entities currently known to the index.
//
// Description:
//
//	The four heuristics run strictly in order and merge into one edge list
//	deduplicated by composite name ("Interface.method"). Each heuristic is
//	a pure function of the source text and the index, so identical inputs
//	always produce identical output.
//
// Thread Safety: Safe for concurrent use as long as the index is not being
// mutated concurrently.
type Detector struct {
	idx *index.EntityIndex
}

// NewDetector creates a detector over the given entity index.
func NewDetector(idx *index.EntityIndex) *Detector {
	return &Detector{idx: idx}
}

// ExtractCalls runs all four heuristics over sourceText and merges the
// results in pattern order.
func (d *Detector) ExtractCalls(sourceText string) []InterfaceCall {
	var merged []InterfaceCall
	seen := make(map[string]bool)

	add := func(calls []InterfaceCall) {
		for _, c := range calls {
			key := c.CompositeName()
			if seen[key] {
				continue
			}
			seen[key] = true
			merged = append(merged, c)
		}
	}

	add(d.directCastCalls(sourceText))
	add(d.declaredHandleCalls(sourceText))
	add(d.memberCalls(sourceText))
	add(d.nameOnlyCalls(sourceText))

	return merged
}

// directCastCalls finds Name(expr).method(args) sites. The cast target must
// be backed by a known file whose name contains the interface name and that
// declares the member.
func (d *Detector) directCastCalls(text string) []InterfaceCall {
	var calls []InterfaceCall
	for _, m := range directCastRe.FindAllStringSubmatchIndex(text, -1) {
		ifaceName := text[m[2]:m[3]]
		method := text[m[6]:m[7]]
		if !d.declaresMember(ifaceName, method) {
			continue
		}
		calls = append(calls, InterfaceCall{
			Interface: ifaceName,
			Method:    method,
			Pattern:   PatternDirectCast,
			ArgCount:  ast.CountCallArguments(text, m[1]-1),
		})
	}
	return calls
}

// declaredHandleCalls records every "Type handle = Type(...)" mapping in the
// text, then independently scans for handle.method(args). Declaration order
// is irrelevant: the handle map is built over the whole text before the call
// scan runs.
func (d *Detector) declaredHandleCalls(text string) []InterfaceCall {
	handles := make(map[string]string)
	for _, m := range handleDeclRe.FindAllStringSubmatch(text, -1) {
		declared, handle, cast := m[1], m[2], m[3]
		if declared != cast {
			continue
		}
		handles[handle] = declared
	}
	if len(handles) == 0 {
		return nil
	}

	var calls []InterfaceCall
	for _, m := range memberCallRe.FindAllStringSubmatchIndex(text, -1) {
		receiver := text[m[4]:m[5]]
		method := text[m[6]:m[7]]
		ifaceName, ok := handles[receiver]
		if !ok || !d.declaresMember(ifaceName, method) {
			continue
		}
		calls = append(calls, InterfaceCall{
			Interface: ifaceName,
			Method:    method,
			Pattern:   PatternDeclaredHandle,
			ArgCount:  ast.CountCallArguments(text, m[7]),
		})
	}
	return calls
}

// memberCalls finds x.method(args) where method is declared in a file that
// looks like an interface, or is externally visible, and x is not a reserved
// context identifier.
func (d *Detector) memberCalls(text string) []InterfaceCall {
	var calls []InterfaceCall
	for _, m := range memberCallRe.FindAllStringSubmatchIndex(text, -1) {
		receiver := text[m[4]:m[5]]
		method := text[m[6]:m[7]]
		if reservedReceivers[receiver] {
			continue
		}
		entity := d.interfaceMember(method)
		if entity == nil {
			continue
		}
		calls = append(calls, InterfaceCall{
			Interface: index.InterfaceNameForFile(entity.File),
			Method:    method,
			Pattern:   PatternMemberCall,
			ArgCount:  ast.CountCallArguments(text, m[7]),
		})
	}
	return calls
}

// nameOnlyCalls finds any known interface-file member whose name occurs in
// the text as a call, regardless of receiver syntax. Lowest precision of the
// four; it only contributes edges the earlier heuristics missed.
func (d *Detector) nameOnlyCalls(text string) []InterfaceCall {
	var calls []InterfaceCall
	for _, name := range d.interfaceMemberNames() {
		re := regexp.MustCompile(`\b` + regexp.QuoteMeta(name) + `\s*\(`)
		for _, loc := range re.FindAllStringIndex(text, -1) {
			if isDeclarationSite(text, loc[0]) {
				continue
			}
			entity := d.interfaceMember(name)
			if entity == nil {
				break
			}
			calls = append(calls, InterfaceCall{
				Interface: index.InterfaceNameForFile(entity.File),
				Method:    name,
				Pattern:   PatternNameOnly,
				ArgCount:  ast.CountCallArguments(text, loc[0]),
			})
			break
		}
	}
	return calls
}

// isDeclarationSite reports whether the name at the given offset is being
// declared rather than called.
func isDeclarationSite(text string, nameStart int) bool {
	head := strings.TrimRight(text[:nameStart], " \t")
	return strings.HasSuffix(head, "function") ||
		strings.HasSuffix(head, "modifier") ||
		strings.HasSuffix(head, "event")
}

// declaresMember reports whether any known file whose name contains
// ifaceName declares a function member with the given name.
func (d *Detector) declaresMember(ifaceName, method string) bool {
	for _, file := range d.idx.FilesContaining(ifaceName) {
		for _, e := range d.idx.FunctionsInFile(file) {
			if e.Name == method {
				return true
			}
		}
	}
	return false
}

// interfaceMember returns the first (by file order) function entity with the
// given name that is declared in an interface-like file or is externally
// visible. Returns nil when no such member is known.
func (d *Detector) interfaceMember(name string) *ast.Entity {
	candidates := d.idx.FunctionsByName(name)
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].ID() < candidates[j].ID()
	})
	for _, e := range candidates {
		if index.IsInterfaceFile(e.File) || e.IsExternallyVisible() {
			return e
		}
	}
	return nil
}

// interfaceMemberNames returns the sorted names of all function members
// declared in interface-like files.
func (d *Detector) interfaceMemberNames() []string {
	seen := make(map[string]bool)
	var names []string
	for _, file := range d.idx.Files() {
		if !index.IsInterfaceFile(file) {
			continue
		}
		for _, e := range d.idx.FunctionsInFile(file) {
			if e.Kind != ast.EntityKindFunction || seen[e.Name] {
				continue
			}
			seen[e.Name] = true
			names = append(names, e.Name)
		}
	}
	sort.Strings(names)
	return names
}
