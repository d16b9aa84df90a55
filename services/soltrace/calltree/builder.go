// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package calltree expands a starting function into a depth- and
// cycle-bounded call tree, combining statically extracted call sites with
// heuristically detected interface calls.
package calltree

import (
	"context"
	"log/slog"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/soltrace/services/soltrace/ast"
	"github.com/AleutianAI/soltrace/services/soltrace/detect"
	"github.com/AleutianAI/soltrace/services/soltrace/impl"
	"github.com/AleutianAI/soltrace/services/soltrace/index"
)

var treeTracer = otel.Tracer("soltrace.calltree")

// DefaultMaxDepth bounds call tree expansion when no depth is configured.
const DefaultMaxDepth = 5

// InterfaceMeta annotates a node that was reached through an interface call
// rather than a statically resolved one.
type InterfaceMeta struct {
	// Interface is the interface name the call was attributed to.
	Interface string `json:"interface"`

	// Pattern is the detection heuristic that surfaced the call.
	Pattern detect.Pattern `json:"pattern"`

	// Binding is the implementation binding, when one was established.
	Binding *impl.Binding `json:"binding,omitempty"`
}

// Node is one entry in the call tree.
type Node struct {
	// Name is the called function's name.
	Name string `json:"name"`

	// File is the declaring file. Empty for external leaves.
	File string `json:"file,omitempty"`

	// Signature is the declared signature. Empty for external leaves.
	Signature string `json:"signature,omitempty"`

	// Depth is the node's distance from the root.
	Depth int `json:"depth"`

	// External marks a call whose definition could not be resolved.
	External bool `json:"external,omitempty"`

	// ArgCount is the argument count observed at the call site.
	ArgCount int `json:"arg_count"`

	// Interface is set when the node was reached through an interface call.
	Interface *InterfaceMeta `json:"interface,omitempty"`

	// Children are the calls made by this node. Nil for leaves.
	Children []*Node `json:"children,omitempty"`
}

// MaxDepth returns the deepest depth observed anywhere in the tree.
// Diagnostic only.
func MaxDepth(root *Node) int {
	if root == nil {
		return 0
	}
	deepest := root.Depth
	for _, child := range root.Children {
		if d := MaxDepth(child); d > deepest {
			deepest = d
		}
	}
	return deepest
}

// BuilderOption is a functional option for configuring Builder.
type BuilderOption func(*Builder)

// WithMaxDepth sets the expansion depth bound.
func WithMaxDepth(d int) BuilderOption {
	return func(b *Builder) { b.maxDepth = d }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) BuilderOption {
	return func(b *Builder) { b.logger = l }
}

// Builder expands call trees against one run's entity index.
//
// Description:
//
//	Expansion is keyed by the entity's identity, its depth, and the set of
//	identities already on the current path. The depth bound and the
//	path-visited set are what guarantee termination over recursive and
//	mutually recursive call graphs; hitting either emits a leaf, not an
//	error. Interface augmentation runs only while there is room for the
//	implementation's own calls below it.
//
// Thread Safety: Not safe for concurrent use; the implementation resolver
// it carries is per-run state.
type Builder struct {
	idx      *index.EntityIndex
	detector *detect.Detector
	impls    *impl.Resolver
	maxDepth int
	logger   *slog.Logger
}

// NewBuilder creates a call tree builder. The implementation resolver may be
// nil, in which case interface calls resolve against declarations only.
func NewBuilder(idx *index.EntityIndex, detector *detect.Detector, impls *impl.Resolver, opts ...BuilderOption) *Builder {
	b := &Builder{
		idx:      idx,
		detector: detector,
		impls:    impls,
		maxDepth: DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	return b
}

// Build expands the call tree rooted at start.
func (b *Builder) Build(ctx context.Context, start *ast.Entity) *Node {
	ctx, span := treeTracer.Start(ctx, "Builder.Build",
		trace.WithAttributes(
			attribute.String("calltree.start", start.ID()),
			attribute.Int("calltree.max_depth", b.maxDepth),
		))
	defer span.End()

	root := b.expand(ctx, start, 0, map[string]bool{}, nil)
	span.SetAttributes(attribute.Int("calltree.depth_observed", MaxDepth(root)))
	return root
}

// expand builds the node for entity at the given depth. visited holds the
// identities already on the path from the root; it is copied, never shared
// across siblings.
func (b *Builder) expand(ctx context.Context, entity *ast.Entity, depth int, visited map[string]bool, meta *InterfaceMeta) *Node {
	node := &Node{
		Name:      entity.Name,
		File:      entity.File,
		Signature: entity.Signature,
		Depth:     depth,
		ArgCount:  len(entity.Parameters),
		Interface: meta,
	}

	// Depth or cycle cutoff: a leaf, not an error.
	if depth >= b.maxDepth || visited[entity.ID()] {
		return node
	}

	childVisited := copyVisited(visited)
	childVisited[entity.ID()] = true

	staticNames := make(map[string]bool)
	for _, call := range entity.Calls {
		child := b.expandCall(ctx, entity, call, depth+1, childVisited)
		staticNames[child.Name] = true
		node.Children = append(node.Children, child)
	}

	// Interface augmentation needs room for the implementation's own calls
	// below the appended node.
	if depth < b.maxDepth-1 && entity.RawSource != "" {
		node.Children = append(node.Children,
			b.augment(ctx, entity.RawSource, depth+1, childVisited, staticNames)...)
	}

	return node
}

// expandCall resolves one statically extracted call site. A known function
// expands recursively; an unknown one becomes an external leaf carrying the
// observed argument count.
func (b *Builder) expandCall(ctx context.Context, caller *ast.Entity, call ast.Call, depth int, visited map[string]bool) *Node {
	target := b.lookupFunction(call.Name, caller.File)
	if target == nil {
		return &Node{
			Name:     call.Name,
			Depth:    depth,
			External: true,
			ArgCount: call.ArgCount,
		}
	}
	child := b.expand(ctx, target, depth, visited, nil)
	child.ArgCount = call.ArgCount
	return child
}

// augment appends a child for every detected interface call that is not
// already represented among the statically resolved children.
func (b *Builder) augment(ctx context.Context, source string, depth int, visited map[string]bool, staticNames map[string]bool) []*Node {
	var nodes []*Node
	for _, call := range b.detector.ExtractCalls(source) {
		if staticNames[call.Method] || staticNames[call.CompositeName()] {
			continue
		}

		meta := &InterfaceMeta{Interface: call.Interface, Pattern: call.Pattern}
		target := b.resolveInterfaceTarget(ctx, call, meta)
		if target == nil {
			// No definition anywhere: terminal external node.
			nodes = append(nodes, &Node{
				Name:      call.Method,
				Depth:     depth,
				External:  true,
				ArgCount:  call.ArgCount,
				Interface: meta,
			})
			continue
		}

		child := b.expand(ctx, target, depth, visited, meta)
		child.ArgCount = call.ArgCount
		nodes = append(nodes, child)
	}
	return nodes
}

// resolveInterfaceTarget finds the best definition for an interface call:
// the bound implementation's member when a binding exists, otherwise the
// declared interface member.
func (b *Builder) resolveInterfaceTarget(ctx context.Context, call detect.InterfaceCall, meta *InterfaceMeta) *ast.Entity {
	if b.impls != nil {
		if binding := b.impls.ResolveImplementation(ctx, call.Interface); binding != nil {
			meta.Binding = binding
			for _, fn := range b.idx.FunctionsInFile(binding.File) {
				if fn.Name == call.Method {
					return fn
				}
			}
		}
	}

	// Fall back to the declaration itself; it has no body, so it expands
	// to a leaf.
	for _, file := range b.idx.FilesContaining(call.Interface) {
		if index.InterfaceNameForFile(file) != call.Interface {
			continue
		}
		for _, fn := range b.idx.FunctionsInFile(file) {
			if fn.Name == call.Method {
				return fn
			}
		}
	}
	return nil
}

// lookupFunction resolves a static call name to a function entity, favoring
// a declaration in the caller's own file, then the lowest entity ID for a
// deterministic pick across files.
func (b *Builder) lookupFunction(name, callerFile string) *ast.Entity {
	candidates := b.idx.FunctionsByName(name)
	if len(candidates) == 0 {
		return nil
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].ID() < candidates[j].ID() })
	for _, e := range candidates {
		if e.File == callerFile {
			return e
		}
	}
	return candidates[0]
}

func copyVisited(visited map[string]bool) map[string]bool {
	out := make(map[string]bool, len(visited)+1)
	for k := range visited {
		out[k] = true
	}
	return out
}
