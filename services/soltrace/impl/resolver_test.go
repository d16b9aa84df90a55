// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package impl

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/soltrace/services/soltrace/ast"
	"github.com/AleutianAI/soltrace/services/soltrace/fetch"
	"github.com/AleutianAI/soltrace/services/soltrace/index"
	"github.com/AleutianAI/soltrace/services/soltrace/resolve"
	"github.com/AleutianAI/soltrace/services/soltrace/session"
)

var testCoords = fetch.Coords{Owner: "acme", Repo: "vault", Branch: "main"}

const oracleInterface = `pragma solidity ^0.8.0;
interface IOracle {
    function latestPrice(bytes32 feed) external view returns (uint256);
    function updatePrice(bytes32 feed, uint256 price) external;
}`

const oracleImpl = `pragma solidity ^0.8.0;
contract Oracle {
    function latestPrice(bytes32 feed) public view returns (uint256) { return prices[feed]; }
    function updatePrice(bytes32 feed, uint256 price) public { prices[feed] = price; }
}`

func mustIngest(t *testing.T, idx *index.EntityIndex, file, content string) {
	t.Helper()
	result, err := ast.NewSolidityParser().Parse(context.Background(), content, file)
	require.NoError(t, err)
	require.True(t, idx.AddParseResult(result))
}

func TestCandidateNamesOrder(t *testing.T) {
	names := CandidateNames("IOracle")
	require.NotEmpty(t, names)
	assert.Equal(t, "Oracle", names[0])
	assert.Contains(t, names, "OracleImpl")
	assert.Contains(t, names, "OracleContract")
	assert.Contains(t, names, "ConcreteOracle")
	assert.Contains(t, names, "IOracleImpl")
	assert.Contains(t, names, "oracle")
}

func TestStripInterfaceMarker(t *testing.T) {
	assert.Equal(t, "Oracle", StripInterfaceMarker("IOracle"))
	assert.Equal(t, "Identity", StripInterfaceMarker("Identity"), "lowercase second rune is not a marker")
	assert.Equal(t, "OU", StripInterfaceMarker("IOU"))
}

func TestResolveLocalByStrippedName(t *testing.T) {
	idx := index.NewEntityIndex()
	mustIngest(t, idx, "contracts/interfaces/IOracle.sol", oracleInterface)
	mustIngest(t, idx, "contracts/Oracle.sol", oracleImpl)

	r := NewResolver(idx, nil, ast.NewSolidityParser())
	binding := r.ResolveImplementation(context.Background(), "IOracle")
	require.NotNil(t, binding)
	assert.Equal(t, "contracts/Oracle.sol", binding.File)
	assert.Equal(t, "Oracle", binding.Candidate)
	assert.Equal(t, 1.0, binding.MatchRatio)
	assert.False(t, binding.Remote)
	assert.Equal(t, []MatchedMember{
		{InterfaceMember: "latestPrice(bytes32)", ImplMember: "latestPrice(bytes32)"},
		{InterfaceMember: "updatePrice(bytes32,uint256)", ImplMember: "updatePrice(bytes32,uint256)"},
	}, binding.MatchedMembers)
}

func TestGreedyStopsAtFirstPositiveCandidate(t *testing.T) {
	idx := index.NewEntityIndex()
	mustIngest(t, idx, "contracts/interfaces/IOracle.sol", oracleInterface)
	// Partial implementation whose name matches the first candidate.
	mustIngest(t, idx, "contracts/Oracle.sol", `contract Oracle {
    function latestPrice(bytes32 feed) public view returns (uint256) {}
}`)
	// Full implementation under an unrelated name; only the global scan
	// would find it, and the global scan must not run once a name
	// candidate scored.
	mustIngest(t, idx, "contracts/PriceFeed.sol", oracleImpl)

	r := NewResolver(idx, nil, ast.NewSolidityParser())
	binding := r.ResolveImplementation(context.Background(), "IOracle")
	require.NotNil(t, binding)
	assert.Equal(t, "contracts/Oracle.sol", binding.File)
	assert.Equal(t, 0.5, binding.MatchRatio)
}

func TestMemberMatchIgnoresReturnsAndMutability(t *testing.T) {
	idx := index.NewEntityIndex()
	mustIngest(t, idx, "contracts/interfaces/IOracle.sol", oracleInterface)
	// Different mutability and return types, same names and parameter
	// types: a full match.
	mustIngest(t, idx, "contracts/Oracle.sol", `contract Oracle {
    function latestPrice(bytes32 feed) external payable returns (int256) {}
    function updatePrice(bytes32 feed, uint256 price) internal {}
}`)

	r := NewResolver(idx, nil, ast.NewSolidityParser())
	binding := r.ResolveImplementation(context.Background(), "IOracle")
	require.NotNil(t, binding)
	assert.Equal(t, 1.0, binding.MatchRatio)
}

func TestParameterTypeMismatchDoesNotMatch(t *testing.T) {
	idx := index.NewEntityIndex()
	mustIngest(t, idx, "contracts/interfaces/IOracle.sol", oracleInterface)
	mustIngest(t, idx, "contracts/Oracle.sol", `contract Oracle {
    function latestPrice(uint256 feed) public view returns (uint256) {}
    function updatePrice(bytes32 feed, uint256 price) public {}
}`)

	r := NewResolver(idx, nil, ast.NewSolidityParser())
	binding := r.ResolveImplementation(context.Background(), "IOracle")
	require.NotNil(t, binding)
	assert.Equal(t, 0.5, binding.MatchRatio, "latestPrice(uint256) does not satisfy latestPrice(bytes32)")
	assert.Equal(t, []MatchedMember{
		{InterfaceMember: "updatePrice(bytes32,uint256)", ImplMember: "updatePrice(bytes32,uint256)"},
	}, binding.MatchedMembers)
}

func TestGlobalScanAcceptsBestAboveThreshold(t *testing.T) {
	idx := index.NewEntityIndex()
	mustIngest(t, idx, "contracts/interfaces/IOracle.sol", oracleInterface)
	// No file name matches any candidate; the full implementation hides
	// behind an unrelated name.
	mustIngest(t, idx, "contracts/Treasury.sol", oracleImpl)

	r := NewResolver(idx, nil, ast.NewSolidityParser())
	binding := r.ResolveImplementation(context.Background(), "IOracle")
	require.NotNil(t, binding)
	assert.Equal(t, "contracts/Treasury.sol", binding.File)
	assert.Empty(t, binding.Candidate)
	assert.Equal(t, 1.0, binding.MatchRatio)
}

func TestGlobalScanRejectsAtThreshold(t *testing.T) {
	idx := index.NewEntityIndex()
	mustIngest(t, idx, "contracts/interfaces/IOracle.sol", oracleInterface)
	mustIngest(t, idx, "contracts/Treasury.sol", `contract Treasury {
    function latestPrice(bytes32 feed) public view returns (uint256) {}
}`)

	r := NewResolver(idx, nil, ast.NewSolidityParser())
	binding := r.ResolveImplementation(context.Background(), "IOracle")
	assert.Nil(t, binding, "0.5 is not strictly above the threshold")
}

func TestRemoteResolutionMergesFetchedFile(t *testing.T) {
	idx := index.NewEntityIndex()
	mustIngest(t, idx, "contracts/interfaces/IOracle.sol", oracleInterface)

	implKey := fetch.Location{Coords: testCoords, Path: "contracts/Oracle.sol"}.String()
	fetcher := fetch.NewMapFetcher(map[string]string{implKey: oracleImpl})
	sess := session.New(testCoords)
	dep := resolve.NewResolver(fetcher, sess)

	r := NewResolver(idx, dep, ast.NewSolidityParser())
	binding := r.ResolveImplementation(context.Background(), "IOracle")
	require.NotNil(t, binding)
	assert.Equal(t, "contracts/Oracle.sol", binding.File)
	assert.Equal(t, 1.0, binding.MatchRatio)
	assert.True(t, binding.Remote)
	assert.True(t, idx.HasFile("contracts/Oracle.sol"))
}

func TestOutcomeIsMemoizedPerRun(t *testing.T) {
	idx := index.NewEntityIndex()
	mustIngest(t, idx, "contracts/interfaces/IWidget.sol", `interface IWidget {
    function spin(uint256 speed) external;
}`)

	fetcher := fetch.NewMapFetcher(nil)
	sess := session.New(testCoords)
	dep := resolve.NewResolver(fetcher, sess)

	r := NewResolver(idx, dep, ast.NewSolidityParser())
	require.Nil(t, r.ResolveImplementation(context.Background(), "IWidget"))
	attempts := len(fetcher.Fetched())
	assert.Greater(t, attempts, 0, "remote round attempted candidate paths")

	require.Nil(t, r.ResolveImplementation(context.Background(), "IWidget"))
	assert.Equal(t, attempts, len(fetcher.Fetched()), "negative outcome is memoized")
}
