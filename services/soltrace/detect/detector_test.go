// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package detect

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/soltrace/services/soltrace/ast"
	"github.com/AleutianAI/soltrace/services/soltrace/index"
)

const oracleInterface = `pragma solidity ^0.8.0;
interface IPriceOracle {
    function latestPrice(bytes32 feed) external view returns (uint256);
    function decimals() external view returns (uint8);
}`

func newTestDetector(t *testing.T) *Detector {
	t.Helper()
	idx := index.NewEntityIndex()
	result, err := ast.NewSolidityParser().Parse(context.Background(), oracleInterface, "contracts/interfaces/IPriceOracle.sol")
	require.NoError(t, err)
	require.True(t, idx.AddParseResult(result))
	return NewDetector(idx)
}

func TestDirectCastPattern(t *testing.T) {
	d := newTestDetector(t)

	calls := d.ExtractCalls(`uint256 p = IPriceOracle(oracleAddr).latestPrice(feedId);`)
	require.Len(t, calls, 1)
	assert.Equal(t, "IPriceOracle", calls[0].Interface)
	assert.Equal(t, "latestPrice", calls[0].Method)
	assert.Equal(t, PatternDirectCast, calls[0].Pattern)
	assert.Equal(t, 1, calls[0].ArgCount)
}

func TestDeclaredHandleSeesWholeText(t *testing.T) {
	d := newTestDetector(t)

	// The call appears before the handle declaration; the handle scan runs
	// over the whole text, so declaration order must not matter.
	text := `function peek() internal view returns (uint8) {
    return oracle.decimals();
}
IPriceOracle oracle = IPriceOracle(registry);`
	calls := d.ExtractCalls(text)
	require.Len(t, calls, 1)
	assert.Equal(t, "IPriceOracle", calls[0].Interface)
	assert.Equal(t, "decimals", calls[0].Method)
	assert.Equal(t, PatternDeclaredHandle, calls[0].Pattern)
	assert.Equal(t, 0, calls[0].ArgCount)
}

func TestMemberCallThroughUnknownHandle(t *testing.T) {
	d := newTestDetector(t)

	calls := d.ExtractCalls(`feedSource.latestPrice(feedId);`)
	require.Len(t, calls, 1)
	assert.Equal(t, PatternMemberCall, calls[0].Pattern)
	assert.Equal(t, "IPriceOracle", calls[0].Interface)
}

func TestReservedReceiverFallsThroughToNameOnly(t *testing.T) {
	d := newTestDetector(t)

	// "this" is a reserved receiver, so the member-call heuristic must skip
	// it; the name-only fallback still surfaces the member.
	calls := d.ExtractCalls(`this.decimals();`)
	require.Len(t, calls, 1)
	assert.Equal(t, PatternNameOnly, calls[0].Pattern)
	assert.Equal(t, "decimals", calls[0].Method)
}

func TestEarlierPatternWinsDedup(t *testing.T) {
	d := newTestDetector(t)

	text := `IPriceOracle(addr).latestPrice(feedId);
source.latestPrice(feedId);`
	calls := d.ExtractCalls(text)
	require.Len(t, calls, 1)
	assert.Equal(t, PatternDirectCast, calls[0].Pattern, "precise pattern keeps the edge")
}

func TestUnknownMethodProducesNothing(t *testing.T) {
	d := newTestDetector(t)

	calls := d.ExtractCalls(`widget.frobnicate(1, 2);`)
	assert.Empty(t, calls)
}

func TestExtractCallsDeterministic(t *testing.T) {
	d := newTestDetector(t)

	text := `IPriceOracle oracle = IPriceOracle(registry);
oracle.decimals();
IPriceOracle(addr).latestPrice(feedId);`
	first := d.ExtractCalls(text)
	second := d.ExtractCalls(text)
	assert.Equal(t, first, second)
}
