// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/soltrace/services/soltrace/fetch"
)

var testCoords = fetch.Coords{Owner: "acme", Repo: "vault", Branch: "main"}

func TestNewSessionIsEmpty(t *testing.T) {
	s := New(testCoords)
	assert.NotEmpty(t, s.ID)
	assert.NotNil(t, s.Index)
	assert.False(t, s.IsKnown("./Token.sol"))
	assert.Equal(t, ResolutionStats{}, s.Stats())
}

func TestFirstResolutionWins(t *testing.T) {
	s := New(testCoords)
	first := fetch.Location{Coords: testCoords, Path: "contracts/Token.sol"}
	second := fetch.Location{Coords: testCoords, Path: "Token.sol"}

	s.MarkProcessed("./Token.sol", first)
	s.MarkProcessed("./Token.sol", second)

	loc, ok := s.Resolved("./Token.sol")
	require.True(t, ok)
	assert.Equal(t, first, loc)
	assert.Equal(t, 1, s.Stats().Processed)
}

func TestProcessedIsNeverDowngraded(t *testing.T) {
	s := New(testCoords)
	loc := fetch.Location{Coords: testCoords, Path: "contracts/Token.sol"}

	s.MarkProcessed("./Token.sol", loc)
	s.MarkFailed("./Token.sol", FailureUnreachable)

	assert.True(t, s.IsKnown("./Token.sol"))
	_, ok := s.Resolved("./Token.sol")
	assert.True(t, ok)
	assert.Empty(t, s.FailedImports())
}

func TestStatsSplitFailures(t *testing.T) {
	s := New(testCoords)
	s.MarkProcessed("./A.sol", fetch.Location{Coords: testCoords, Path: "contracts/A.sol"})
	s.MarkFailed("@openzeppelin/contracts/token/ERC20/ERC20.sol", FailureExternal)
	s.MarkFailed("./Missing.sol", FailureUnreachable)

	st := s.Stats()
	assert.Equal(t, 1, st.Processed)
	assert.Equal(t, 1, st.FailedExternal)
	assert.Equal(t, 1, st.FailedUnreachable)
	assert.InDelta(t, 1.0/3.0, st.SuccessRate, 1e-9)
}

func TestFirstFailureReasonSticks(t *testing.T) {
	s := New(testCoords)
	s.MarkFailed("./Missing.sol", FailureUnreachable)
	s.MarkFailed("./Missing.sol", FailureExternal)

	assert.Equal(t, FailureUnreachable, s.FailedImports()["./Missing.sol"])
}
