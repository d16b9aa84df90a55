// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ast defines the data model shared by every soltrace component:
// parsed contract entities, import references, call sites, and the Parser
// contract that language front-ends implement.
package ast

import (
	"fmt"
	"strings"
)

// EntityKind identifies the kind of declared contract element.
type EntityKind int

const (
	// EntityKindFunction is a contract function declaration.
	EntityKindFunction EntityKind = iota

	// EntityKindModifier is a function modifier declaration.
	EntityKindModifier

	// EntityKindEvent is an event declaration.
	EntityKindEvent

	// EntityKindStateVariable is a contract-level state variable.
	EntityKindStateVariable
)

// String returns the string representation of the EntityKind.
func (k EntityKind) String() string {
	switch k {
	case EntityKindFunction:
		return "function"
	case EntityKindModifier:
		return "modifier"
	case EntityKindEvent:
		return "event"
	case EntityKindStateVariable:
		return "stateVariable"
	default:
		return "unknown"
	}
}

// Parameter is a single declared parameter of a function, modifier, or event.
type Parameter struct {
	// Name is the parameter name. May be empty for unnamed parameters
	// (common in interface declarations).
	Name string `json:"name"`

	// Type is the declared type string (e.g., "uint256", "address[]").
	Type string `json:"type"`

	// Indexed is true for indexed event parameters.
	Indexed bool `json:"indexed,omitempty"`
}

// Call is a statically extracted call site inside an entity body.
//
// Only bare calls (`foo(a, b)`) are recorded here; member calls through a
// receiver (`x.foo(a)`) are left for the interface call detector, which
// works over raw source text.
type Call struct {
	// Name is the callee name as written at the call site.
	Name string `json:"name"`

	// ArgCount is the number of top-level arguments at the call site.
	ArgCount int `json:"arg_count"`

	// Line is the 1-based line of the call site within the entity's file.
	Line int `json:"line,omitempty"`
}

// Entity is a named declared element extracted from a source file.
//
// Description:
//
//	An Entity is uniquely identified by (File, Name, Signature); Name alone
//	is not unique because of overloads and same-named members in different
//	files. Entities are created once when a file is parsed and are immutable
//	afterwards. Cross-references (implementation bindings, call edges) live
//	on the structures that reference entities, never on the entity itself.
//
// Thread Safety: Immutable after construction; safe for concurrent reads.
type Entity struct {
	// Kind is the kind of declaration.
	Kind EntityKind `json:"kind"`

	// Name is the declared name.
	Name string `json:"name"`

	// Signature is the canonical signature: "name(type1,type2)".
	Signature string `json:"signature"`

	// File is the repository-relative path of the declaring file.
	File string `json:"file"`

	// Visibility is the declared visibility (public, external, internal,
	// private). Empty when not declared.
	Visibility string `json:"visibility,omitempty"`

	// StateMutability is the declared mutability (view, pure, payable).
	// Empty when not declared.
	StateMutability string `json:"state_mutability,omitempty"`

	// Parameters are the declared parameters in order.
	Parameters []Parameter `json:"parameters,omitempty"`

	// StartLine and EndLine bound the declaration in the source file.
	StartLine int `json:"start_line"`
	EndLine   int `json:"end_line"`

	// RawSource is the declaration's source text including the body.
	// Empty for entities without bodies (events, state variables,
	// interface members).
	RawSource string `json:"-"`

	// Calls are the statically extracted call sites in the body.
	Calls []Call `json:"-"`
}

// ID returns the unique identity string "file:name:signature".
func (e *Entity) ID() string {
	return e.File + ":" + e.Name + ":" + e.Signature
}

// IsExternallyVisible reports whether the entity is callable from outside
// its declaring contract.
func (e *Entity) IsExternallyVisible() bool {
	return e.Visibility == "public" || e.Visibility == "external"
}

// ParameterTypes returns the declared parameter type strings in order.
func (e *Entity) ParameterTypes() []string {
	types := make([]string, len(e.Parameters))
	for i, p := range e.Parameters {
		types[i] = p.Type
	}
	return types
}

// MakeSignature builds the canonical signature string for a name and
// parameter list: "transfer(address,uint256)".
func MakeSignature(name string, params []Parameter) string {
	types := make([]string, len(params))
	for i, p := range params {
		types[i] = p.Type
	}
	return fmt.Sprintf("%s(%s)", name, strings.Join(types, ","))
}

// ImportReference is an import statement harvested during parsing.
//
// RawPath is the path exactly as written in the source; OriginFile is the
// repository-relative path of the file that contains the import. The
// dependency resolver consumes both.
type ImportReference struct {
	// RawPath is the import path as written (e.g., "./IERC20.sol").
	RawPath string `json:"raw_path"`

	// OriginFile is the repository-relative path of the importing file.
	OriginFile string `json:"origin_file"`
}

// ParseResult contains everything extracted from a single source file.
//
// Thread Safety: Immutable after the parser returns it.
type ParseResult struct {
	// FilePath is the repository-relative path of the parsed file.
	FilePath string

	// Entities are the declarations found in the file.
	Entities []*Entity

	// Imports are the import references found in the file.
	Imports []ImportReference
}
