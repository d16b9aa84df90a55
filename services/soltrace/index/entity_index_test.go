// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package index

import (
	"testing"

	"github.com/AleutianAI/soltrace/services/soltrace/ast"
)

func fnEntity(file, name string, paramTypes ...string) *ast.Entity {
	params := make([]ast.Parameter, len(paramTypes))
	for i, t := range paramTypes {
		params[i] = ast.Parameter{Type: t}
	}
	return &ast.Entity{
		Kind:       ast.EntityKindFunction,
		Name:       name,
		Signature:  ast.MakeSignature(name, params),
		File:       file,
		Parameters: params,
	}
}

func TestAddParseResultIsAppendOnly(t *testing.T) {
	idx := NewEntityIndex()

	first := &ast.ParseResult{
		FilePath: "contracts/Token.sol",
		Entities: []*ast.Entity{fnEntity("contracts/Token.sol", "transfer", "address", "uint256")},
	}
	if !idx.AddParseResult(first) {
		t.Fatal("first add rejected")
	}

	// Re-adding the same file must not duplicate entities.
	again := &ast.ParseResult{
		FilePath: "contracts/Token.sol",
		Entities: []*ast.Entity{fnEntity("contracts/Token.sol", "transfer", "address", "uint256")},
	}
	if idx.AddParseResult(again) {
		t.Error("second add of same file accepted")
	}
	if got := len(idx.ByName("transfer")); got != 1 {
		t.Errorf("transfer entities = %d, want 1", got)
	}
	if st := idx.Stat(); st.Files != 1 || st.Entities != 1 {
		t.Errorf("stats = %+v, want 1 file / 1 entity", st)
	}
}

func TestNameIsNotUniqueAcrossFiles(t *testing.T) {
	idx := NewEntityIndex()
	idx.AddParseResult(&ast.ParseResult{
		FilePath: "contracts/A.sol",
		Entities: []*ast.Entity{fnEntity("contracts/A.sol", "initialize")},
	})
	idx.AddParseResult(&ast.ParseResult{
		FilePath: "contracts/B.sol",
		Entities: []*ast.Entity{fnEntity("contracts/B.sol", "initialize", "address")},
	})

	hits := idx.ByName("initialize")
	if len(hits) != 2 {
		t.Fatalf("hits = %d, want 2", len(hits))
	}
	if hits[0].ID() == hits[1].ID() {
		t.Error("entities in different files share identity")
	}
}

func TestFilesContaining(t *testing.T) {
	idx := NewEntityIndex()
	for _, f := range []string{
		"contracts/Oracle.sol",
		"contracts/interfaces/IOracle.sol",
		"contracts/utils/Math.sol",
	} {
		idx.AddParseResult(&ast.ParseResult{FilePath: f})
	}

	got := idx.FilesContaining("Oracle")
	if len(got) != 2 {
		t.Fatalf("FilesContaining(Oracle) = %v, want 2 entries", got)
	}
	if got[0] != "contracts/Oracle.sol" {
		t.Errorf("insertion order not preserved: %v", got)
	}
}

func TestIsInterfaceFile(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"contracts/IERC20.sol", true},
		{"contracts/interfaces/Oracle.sol", true},
		{"contracts/Interfaces/Vault.sol", true},
		{"contracts/Token.sol", false},
		{"contracts/Identity.sol", false}, // 'Id' is not the I-prefix convention
		{"contracts/IOU.sol", true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := IsInterfaceFile(tt.path); got != tt.want {
				t.Errorf("IsInterfaceFile(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}
