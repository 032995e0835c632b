// Copyright 2026, Offchain Labs, Inc.
// For license information, see https://github.com/offchainlabs/chunkposter/blob/master/LICENSE.md

package poster

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/offchainlabs/chunkposter/ledger"
)

// Sequencer hands out the sender's nonces. It is owned by a single pipeline run.
type Sequencer struct {
	account common.Address

	// these fields are protected by the mutex
	mutex sync.Mutex
	next  uint64
	gaps  []uint64
}

// NewSequencer reads the account's pending nonce once.
func NewSequencer(ctx context.Context, client ledger.Client, account common.Address) (*Sequencer, error) {
	nonce, err := client.PendingNonceAt(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("%w: reading pending nonce of %v: %w", ErrLedgerUnavailable, account, err)
	}
	return &Sequencer{account: account, next: nonce}, nil
}

// ClaimNext consumes and returns the next nonce. A claimed nonce is never handed out again.
func (s *Sequencer) ClaimNext() uint64 {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	nonce := s.next
	s.next++
	return nonce
}

// Peek returns the nonce the next claim will return.
func (s *Sequencer) Peek() uint64 {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.next
}

// Release records a claimed nonce that never reached the ledger. The nonce stays consumed;
// whether later writes can fill the gap is up to the ledger.
func (s *Sequencer) Release(nonce uint64, reason error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if nonce >= s.next {
		log.Error("released a nonce that was never claimed", "account", s.account, "nonce", nonce, "next", s.next)
		return
	}
	if slices.Contains(s.gaps, nonce) {
		return
	}
	s.gaps = append(s.gaps, nonce)
	nonceGapsCounter.Inc(1)
	log.Warn("nonce claimed without a write, leaving a gap", "account", s.account, "nonce", nonce, "reason", reason)
}

// Gaps returns the released nonces in ascending order.
func (s *Sequencer) Gaps() []uint64 {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	gaps := slices.Clone(s.gaps)
	slices.Sort(gaps)
	return gaps
}
