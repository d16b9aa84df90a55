// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package resolve

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/soltrace/services/soltrace/ast"
	"github.com/AleutianAI/soltrace/services/soltrace/fetch"
	"github.com/AleutianAI/soltrace/services/soltrace/session"
)

var testCoords = fetch.Coords{Owner: "acme", Repo: "vault", Branch: "main"}

func locKey(p string) string {
	return fetch.Location{Coords: testCoords, Path: p}.String()
}

func TestClassify(t *testing.T) {
	tests := []struct {
		path string
		want Class
	}{
		{"@openzeppelin/contracts/token/ERC20/ERC20.sol", ClassExternal},
		{"@chainlink/contracts/src/v0.8/AggregatorV3Interface.sol", ClassExternal},
		{"https://example.com/Token.sol", ClassExternal},
		{"ipfs://QmHash/Token.sol", ClassExternal},
		{"hardhat/console.sol", ClassExternal},
		{"./Library.sol", ClassResolvable},
		{"../utils/Math.sol", ClassResolvable},
		{"contracts/Token.sol", ClassResolvable},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.path))
		})
	}
}

func TestCandidatesExternalIsEmpty(t *testing.T) {
	// Scenario: scoped package imports are never resolvable, so no
	// candidates, no network attempt.
	imp := ast.ImportReference{
		RawPath:    "@openzeppelin/contracts/token/ERC20/ERC20.sol",
		OriginFile: "contracts/Token.sol",
	}
	assert.Empty(t, Candidates(imp, testCoords))
}

func TestCandidatesOrderAndDedup(t *testing.T) {
	imp := ast.ImportReference{
		RawPath:    "./Library.sol",
		OriginFile: "contracts/Token.sol",
	}
	cands := Candidates(imp, testCoords)
	require.NotEmpty(t, cands)

	// First strategy: relative to the importing file's directory.
	assert.Equal(t, "contracts/Library.sol", cands[0].Path)
	// Second: relative to the repository root ("./" is cleaned away).
	assert.Equal(t, "Library.sol", cands[1].Path)

	seen := make(map[string]int)
	for _, c := range cands {
		seen[c.Path]++
	}
	for p, n := range seen {
		assert.Equalf(t, 1, n, "candidate %s duplicated", p)
	}
}

func TestCandidatesAppendExtensionAndNormalize(t *testing.T) {
	imp := ast.ImportReference{
		RawPath:    "./utils//Math",
		OriginFile: "contracts/Token.sol",
	}
	cands := Candidates(imp, testCoords)
	require.NotEmpty(t, cands)
	assert.Equal(t, "contracts/utils/Math.sol", cands[0].Path)
}

func TestCandidatesKnownLibraryShortCircuits(t *testing.T) {
	imp := ast.ImportReference{
		RawPath:    "openzeppelin-solidity/contracts/access/Ownable.sol",
		OriginFile: "contracts/Token.sol",
	}
	cands := Candidates(imp, testCoords)
	require.NotEmpty(t, cands)
	for _, c := range cands {
		assert.Equal(t, "OpenZeppelin", c.Owner, "known-library import must not fall back to repo-local strategies")
	}
}

func TestCandidatesParentRelative(t *testing.T) {
	imp := ast.ImportReference{
		RawPath:    "../libs/SafeMath.sol",
		OriginFile: "contracts/token/Token.sol",
	}
	cands := Candidates(imp, testCoords)
	require.NotEmpty(t, cands)
	assert.Equal(t, "contracts/libs/SafeMath.sol", cands[0].Path)
}

func TestResolveExternalNoNetworkAttempt(t *testing.T) {
	// Scenario B: external import reported under failed/external without
	// any fetch.
	fetcher := fetch.NewMapFetcher(nil)
	sess := session.New(testCoords)
	r := NewResolver(fetcher, sess)

	src, outcome, err := r.Resolve(context.Background(), ast.ImportReference{
		RawPath:    "@openzeppelin/contracts/token/ERC20/ERC20.sol",
		OriginFile: "contracts/Token.sol",
	})
	require.NoError(t, err)
	assert.Nil(t, src)
	assert.Equal(t, OutcomeExternal, outcome)
	assert.Empty(t, fetcher.Fetched(), "external imports must not hit the network")

	stats := sess.Stats()
	assert.Equal(t, 1, stats.FailedExternal)
	assert.Equal(t, 0, stats.FailedUnreachable)
}

func TestResolveFallsBackToRootCandidate(t *testing.T) {
	// Scenario C: contracts/Library.sol is absent; the repo-root candidate
	// Library.sol succeeds and the import records as resolved through it.
	fetcher := fetch.NewMapFetcher(map[string]string{
		locKey("Library.sol"): "library Library {}",
	})
	sess := session.New(testCoords)
	r := NewResolver(fetcher, sess)

	src, outcome, err := r.Resolve(context.Background(), ast.ImportReference{
		RawPath:    "./Library.sol",
		OriginFile: "contracts/Token.sol",
	})
	require.NoError(t, err)
	require.Equal(t, OutcomeResolved, outcome)
	assert.Equal(t, "Library.sol", src.Location.Path)

	resolved, ok := sess.Resolved("./Library.sol")
	require.True(t, ok)
	assert.Equal(t, "Library.sol", resolved.Path)

	// The failing candidate was attempted exactly once, in order.
	fetched := fetcher.Fetched()
	require.GreaterOrEqual(t, len(fetched), 2)
	assert.Equal(t, locKey("contracts/Library.sol"), fetched[0])
	assert.Equal(t, locKey("Library.sol"), fetched[1])
}

func TestResolveIdempotent(t *testing.T) {
	fetcher := fetch.NewMapFetcher(map[string]string{
		locKey("contracts/Library.sol"): "library Library {}",
	})
	sess := session.New(testCoords)
	r := NewResolver(fetcher, sess)
	imp := ast.ImportReference{RawPath: "./Library.sol", OriginFile: "contracts/Token.sol"}

	_, outcome, err := r.Resolve(context.Background(), imp)
	require.NoError(t, err)
	require.Equal(t, OutcomeResolved, outcome)

	src, outcome, err := r.Resolve(context.Background(), imp)
	require.NoError(t, err)
	assert.Nil(t, src)
	assert.Equal(t, OutcomeAlreadyProcessed, outcome)
	assert.Equal(t, 1, fetcher.FetchCount(locKey("contracts/Library.sol")),
		"resolving the same import twice must fetch at most once")
}

func TestResolveExhaustedMarksFailed(t *testing.T) {
	fetcher := fetch.NewMapFetcher(nil)
	sess := session.New(testCoords)
	r := NewResolver(fetcher, sess)
	imp := ast.ImportReference{RawPath: "./Ghost.sol", OriginFile: "contracts/Token.sol"}

	src, outcome, err := r.Resolve(context.Background(), imp)
	require.NoError(t, err)
	assert.Nil(t, src)
	assert.Equal(t, OutcomeFailed, outcome)

	stats := sess.Stats()
	assert.Equal(t, 1, stats.FailedUnreachable)
	assert.Equal(t, 0.0, stats.SuccessRate)

	// A failed import is never re-attempted.
	attempts := len(fetcher.Fetched())
	_, outcome, err = r.Resolve(context.Background(), imp)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, outcome)
	assert.Equal(t, attempts, len(fetcher.Fetched()))
}

func TestFetchFirstStaysOffTheImportLedger(t *testing.T) {
	// Speculative candidate fetches are not imports; they must not inflate
	// Processed or the success rate.
	fetcher := fetch.NewMapFetcher(map[string]string{
		locKey("contracts/Oracle.sol"): "contract Oracle {}",
	})
	sess := session.New(testCoords)
	r := NewResolver(fetcher, sess)

	src, ok, err := r.FetchFirst(context.Background(), []string{"contracts/Oracle.sol"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "contracts/Oracle.sol", src.Location.Path)

	stats := sess.Stats()
	assert.Equal(t, 0, stats.Processed)
	assert.Equal(t, 0.0, stats.SuccessRate)

	spec := sess.SpeculativeFetches()
	require.Contains(t, spec, "contracts/Oracle.sol")
	assert.Equal(t, "contracts/Oracle.sol", spec["contracts/Oracle.sol"].Path)
}

func TestWellKnownFilenamePriorityZero(t *testing.T) {
	imp := ast.ImportReference{
		RawPath:    "./token/Ownable.sol",
		OriginFile: "contracts/Token.sol",
	}
	cands := Candidates(imp, testCoords)
	require.NotEmpty(t, cands)
	assert.Equal(t, "OpenZeppelin", cands[0].Owner)
	assert.Equal(t, "contracts/access/Ownable.sol", cands[0].Path)
	// Path-derived strategies still follow.
	assert.Equal(t, "acme", cands[1].Owner)
}
