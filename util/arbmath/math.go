// Copyright 2021-2026, Offchain Labs, Inc.
// For license information, see https://github.com/offchainlabs/chunkposter/blob/master/LICENSE.md

package arbmath

import (
	"math/big"

	"github.com/ethereum/go-ethereum/params"
)

type Unsigned interface {
	~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr
}

// GweiToWei converts a float amount of gwei into wei, truncating sub-wei precision.
func GweiToWei(gwei float64) *big.Int {
	wei, _ := new(big.Float).Mul(big.NewFloat(gwei), big.NewFloat(params.GWei)).Int(nil)
	return wei
}

// WeiToGwei converts wei into a float amount of gwei
func WeiToGwei(wei *big.Int) *big.Float {
	return new(big.Float).Quo(new(big.Float).SetInt(wei), big.NewFloat(params.GWei))
}

// BigGreaterThan checks if a huge is greater than another
func BigGreaterThan(first, second *big.Int) bool {
	return first.Cmp(second) > 0
}

// SaturatingUMul multiply two integers without over/underflow
func SaturatingUMul[T Unsigned](a, b T) T {
	product := a * b
	if b != 0 && product/b != a {
		product = ^T(0)
	}
	return product
}

// DivCeil divides, rounding the result up
func DivCeil[T Unsigned](value, divisor T) T {
	if value%divisor == 0 {
		return value / divisor
	}
	return value/divisor + 1
}
