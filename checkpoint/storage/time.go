// Copyright 2021-2026, Offchain Labs, Inc.
// For license information, see https://github.com/offchainlabs/chunkposter/blob/master/LICENSE.md

package storage

import (
	"io"
	"time"

	"github.com/ethereum/go-ethereum/rlp"
)

// time.Time doesn't encode as anything in RLP. This fixes that.
type RlpTime time.Time

type rlpTimeEncoding struct {
	Seconds uint64
	Nanos   uint64
}

func (b *RlpTime) DecodeRLP(s *rlp.Stream) error {
	var enc rlpTimeEncoding
	if err := s.Decode(&enc); err != nil {
		return err
	}
	*b = RlpTime(time.Unix(int64(enc.Seconds), int64(enc.Nanos)))
	return nil
}

func (b RlpTime) EncodeRLP(w io.Writer) error {
	return rlp.Encode(w, rlpTimeEncoding{
		Seconds: uint64(time.Time(b).Unix()),
		Nanos:   uint64(time.Time(b).Nanosecond()),
	})
}

func (b RlpTime) String() string {
	return time.Time(b).String()
}
