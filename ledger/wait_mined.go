// Copyright 2024-2026, Offchain Labs, Inc.
// For license information, see https://github.com/offchainlabs/chunkposter/blob/master/LICENSE.md

package ledger

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
)

// WaitForReceipt waits for a transaction to be included and returns its receipt.
// If the client can subscribe to new heads it checks once per head, otherwise it
// polls at the given interval. It gives up when ctx is done.
func WaitForReceipt(ctx context.Context, client Client, txHash common.Hash, pollInterval time.Duration) (*types.Receipt, error) {
	subscriber, ok := client.(HeadSubscriber)
	if !ok {
		return pollForReceipt(ctx, client, txHash, pollInterval)
	}
	heads := make(chan *types.Header, 1)
	sub, subErr := subscriber.SubscribeNewHead(ctx, heads)
	if subErr != nil {
		return pollForReceipt(ctx, client, txHash, pollInterval)
	}
	defer sub.Unsubscribe()

	for {
		receipt, err := fetchReceipt(ctx, client, txHash)
		if receipt != nil || err != nil {
			return receipt, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case err := <-sub.Err():
			if err != nil {
				return nil, errors.Wrap(err, "head subscription error while waiting for tx")
			}
			return nil, errors.New("head subscription closed unexpectedly")
		case <-heads:
		}
	}
}

func pollForReceipt(ctx context.Context, client Client, txHash common.Hash, pollInterval time.Duration) (*types.Receipt, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		receipt, err := fetchReceipt(ctx, client, txHash)
		if receipt != nil || err != nil {
			return receipt, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// fetchReceipt returns (nil, nil) while the receipt isn't available yet.
// Transient RPC errors are logged and treated the same way.
func fetchReceipt(ctx context.Context, client Client, txHash common.Hash) (*types.Receipt, error) {
	receipt, err := client.TransactionReceipt(ctx, txHash)
	if err == nil {
		return receipt, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if !errors.Is(err, ethereum.NotFound) {
		log.Debug("error fetching receipt, will retry", "hash", txHash, "err", err)
	}
	return nil, nil
}
