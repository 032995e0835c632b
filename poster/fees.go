// Copyright 2026, Offchain Labs, Inc.
// For license information, see https://github.com/offchainlabs/chunkposter/blob/master/LICENSE.md

package poster

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"

	"github.com/offchainlabs/chunkposter/ledger"
	"github.com/offchainlabs/chunkposter/util/arbmath"
)

// FeeBid is the price offered for one write. MaxFee is BaseFee plus PriorityFee.
type FeeBid struct {
	BaseFee     *big.Int
	PriorityFee *big.Int
	MaxFee      *big.Int
}

// FeeOracle prices writes from the pending block's base fee.
type FeeOracle struct {
	client      ledger.Client
	priorityFee *big.Int
	maxFeeCap   *big.Int // nil when uncapped
}

func NewFeeOracle(client ledger.Client, config *Config) *FeeOracle {
	oracle := &FeeOracle{
		client:      client,
		priorityFee: arbmath.GweiToWei(config.PriorityFeeGwei),
	}
	if config.MaxFeeCapGwei > 0 {
		oracle.maxFeeCap = arbmath.GweiToWei(config.MaxFeeCapGwei)
	}
	return oracle
}

// Quote must be called right before the write it prices; bids go stale as blocks pass.
func (o *FeeOracle) Quote(ctx context.Context) (*FeeBid, error) {
	header, err := o.client.HeaderByNumber(ctx, ledger.PendingBlock())
	if err != nil {
		return nil, fmt.Errorf("%w: reading pending header: %w", ErrFeeUnavailable, err)
	}
	if header.BaseFee == nil {
		return nil, fmt.Errorf("%w: pending block %v has no base fee", ErrFeeUnavailable, header.Number)
	}
	baseFee, overflow := uint256.FromBig(header.BaseFee)
	if overflow {
		return nil, fmt.Errorf("%w: base fee %v overflows 256 bits", ErrFeeUnavailable, header.BaseFee)
	}
	tip, overflow := uint256.FromBig(o.priorityFee)
	if overflow {
		return nil, fmt.Errorf("%w: priority fee %v overflows 256 bits", ErrFeeUnavailable, o.priorityFee)
	}
	maxFee, overflow := new(uint256.Int).AddOverflow(baseFee, tip)
	if overflow {
		return nil, fmt.Errorf("%w: base fee %v plus priority fee %v overflows 256 bits", ErrFeeUnavailable, baseFee, tip)
	}
	bid := &FeeBid{
		BaseFee:     baseFee.ToBig(),
		PriorityFee: tip.ToBig(),
		MaxFee:      maxFee.ToBig(),
	}
	if o.maxFeeCap != nil && arbmath.BigGreaterThan(bid.MaxFee, o.maxFeeCap) {
		log.Warn("fee bid exceeds the configured cap", "maxFee", bid.MaxFee, "maxFeeCap", o.maxFeeCap, "baseFee", bid.BaseFee)
		return nil, fmt.Errorf("%w: fee %v exceeds cap %v", ErrFeeUnavailable, bid.MaxFee, o.maxFeeCap)
	}
	return bid, nil
}
