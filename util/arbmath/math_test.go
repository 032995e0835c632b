// Copyright 2021-2026, Offchain Labs, Inc.
// For license information, see https://github.com/offchainlabs/chunkposter/blob/master/LICENSE.md

package arbmath

import (
	"math"
	"math/big"
	"testing"

	"github.com/offchainlabs/chunkposter/util/testhelpers"
)

func TestFloatToBips(t *testing.T) {
	for _, tc := range []struct {
		input    float64
		expected Bips
	}{
		{1.2, 12000},
		{1, OneInBips},
		{0.0001, 1},
		{0, 0},
		{-3, 0},
		{math.NaN(), 0},
	} {
		if got := FloatToBips(tc.input); got != tc.expected {
			testhelpers.FailImpl(t, "FloatToBips", tc.input, "got", got, "expected", tc.expected)
		}
	}
}

func TestUintMulByBips(t *testing.T) {
	if got := UintMulByBips(100_000, FloatToBips(1.2)); got != 120_000 {
		testhelpers.FailImpl(t, "wrong margin applied", got)
	}
	if got := UintMulByBips(math.MaxUint64, OneInBips*2); got != math.MaxUint64/uint64(OneInBips) {
		testhelpers.FailImpl(t, "expected saturation", got)
	}
}

func TestGweiToWei(t *testing.T) {
	if got := GweiToWei(1); got.Cmp(big.NewInt(1_000_000_000)) != 0 {
		testhelpers.FailImpl(t, "1 gwei", got)
	}
	if got := GweiToWei(0.5); got.Cmp(big.NewInt(500_000_000)) != 0 {
		testhelpers.FailImpl(t, "0.5 gwei", got)
	}
}

func TestWeiToGwei(t *testing.T) {
	got, _ := WeiToGwei(big.NewInt(2_500_000_000)).Float64()
	if got != 2.5 {
		testhelpers.FailImpl(t, "2.5 gwei", got)
	}
}

func TestDivCeil(t *testing.T) {
	for _, tc := range []struct{ value, divisor, expected uint64 }{
		{5000, 2048, 3},
		{4096, 2048, 2},
		{0, 7, 0},
		{1, 1, 1},
	} {
		if got := DivCeil(tc.value, tc.divisor); got != tc.expected {
			testhelpers.FailImpl(t, "DivCeil", tc.value, tc.divisor, "got", got)
		}
	}
}
