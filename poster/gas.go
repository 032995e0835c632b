// Copyright 2026, Offchain Labs, Inc.
// For license information, see https://github.com/offchainlabs/chunkposter/blob/master/LICENSE.md

package poster

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"

	"github.com/offchainlabs/chunkposter/ledger"
	"github.com/offchainlabs/chunkposter/util/arbmath"
)

type GasEstimate struct {
	EstimatedUnits uint64
	Limit          uint64
}

// GasEstimator simulates a write against current state and pads the result by a margin.
// There is no fallback limit: a write that cannot be simulated is not sent.
type GasEstimator struct {
	client ledger.Client
	margin arbmath.Bips
}

func NewGasEstimator(client ledger.Client, config *Config) *GasEstimator {
	return &GasEstimator{client: client, margin: config.gasMarginBips()}
}

// Estimate ignores req.GasLimit.
func (e *GasEstimator) Estimate(ctx context.Context, req *WriteRequest) (*GasEstimate, error) {
	to := req.To
	msg := ethereum.CallMsg{
		From:  req.From,
		To:    &to,
		Value: new(big.Int),
		Data:  req.Calldata,
	}
	if req.Fee != nil {
		msg.GasFeeCap = req.Fee.MaxFee
		msg.GasTipCap = req.Fee.PriorityFee
	}
	estimated, err := e.client.EstimateGas(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEstimationFailed, err)
	}
	if estimated == 0 {
		return nil, fmt.Errorf("%w: node estimated zero gas", ErrEstimationFailed)
	}
	limit := arbmath.DivCeil(arbmath.SaturatingUMul(estimated, uint64(e.margin)), uint64(arbmath.OneInBips))
	return &GasEstimate{EstimatedUnits: estimated, Limit: limit}, nil
}
