// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package report

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/soltrace/services/soltrace/ast"
	"github.com/AleutianAI/soltrace/services/soltrace/calltree"
	"github.com/AleutianAI/soltrace/services/soltrace/fetch"
	"github.com/AleutianAI/soltrace/services/soltrace/ingest"
	"github.com/AleutianAI/soltrace/services/soltrace/session"
)

func TestBuildFiltersToReachedEntities(t *testing.T) {
	sess := session.New(fetch.Coords{Owner: "acme", Repo: "vault", Branch: "main"})

	result, err := ast.NewSolidityParser().Parse(context.Background(), `contract Token {
    function transfer(address to) public {}
    function unreached(uint256 x) public {}
}`, "contracts/Token.sol")
	require.NoError(t, err)
	require.True(t, sess.Index.AddParseResult(result))

	tree := &calltree.Node{Name: "transfer", File: "contracts/Token.sol", Depth: 0}
	rep := Build(sess, "transfer", tree, &ingest.Coverage{})

	require.Len(t, rep.Entities, 1)
	assert.Equal(t, "transfer", rep.Entities[0].Name)
	assert.Equal(t, SchemaVersion, rep.SchemaVersion)
	assert.Equal(t, "acme/vault@main", rep.Repository)
	assert.NotZero(t, rep.GeneratedAtMilli)
}

func TestJSONIsStable(t *testing.T) {
	sess := session.New(fetch.Coords{Owner: "acme", Repo: "vault", Branch: "main"})
	tree := &calltree.Node{Name: "transfer", Depth: 0}

	rep := Build(sess, "transfer", tree, &ingest.Coverage{})
	first, err := rep.JSON()
	require.NoError(t, err)
	second, err := rep.JSON()
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
