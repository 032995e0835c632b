// Copyright 2021-2026, Offchain Labs, Inc.
// For license information, see https://github.com/offchainlabs/chunkposter/blob/master/LICENSE.md

package arbmath

import (
	"math"
)

// Bips are hundredths of a percent: 10000 bips is a factor of one.
type Bips uint64

const OneInBips Bips = 10000

// FloatToBips converts a multiplier such as 1.2 into bips, rounding to the nearest bip.
// Negative and NaN inputs become zero.
func FloatToBips(natural float64) Bips {
	if math.IsNaN(natural) || natural <= 0 {
		return 0
	}
	scaled := math.Round(natural * float64(OneInBips))
	if scaled >= math.MaxUint64 {
		return Bips(math.MaxUint64)
	}
	return Bips(scaled)
}

// UintMulByBips multiplies without overflowing, saturating at the maximum uint64.
func UintMulByBips(value uint64, bips Bips) uint64 {
	return SaturatingUMul(value, uint64(bips)) / uint64(OneInBips)
}
