// Copyright 2026, Offchain Labs, Inc.
// For license information, see https://github.com/offchainlabs/chunkposter/blob/master/LICENSE.md

// Package chunker splits a payload into the fixed-size units posted to the chunk store.
package chunker

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/offchainlabs/chunkposter/util/arbmath"
)

var ErrInvalidUnitSize = errors.New("unit size must be at least one byte")

// Unit is one ordered slice of a payload. Data aliases the payload and must not be modified.
type Unit struct {
	ImageID *big.Int
	Index   uint64
	Data    []byte
	Start   int
	End     int
}

func (u Unit) Len() int {
	return u.End - u.Start
}

// Count returns how many units a payload of payloadLen bytes splits into.
func Count(payloadLen int, unitSize int) (int, error) {
	if unitSize < 1 {
		return 0, fmt.Errorf("%w: got %d", ErrInvalidUnitSize, unitSize)
	}
	if payloadLen <= 0 {
		return 0, nil
	}
	return int(arbmath.DivCeil(uint64(payloadLen), uint64(unitSize))), nil
}

// Split cuts payload into ceil(len(payload)/unitSize) units; every unit but the last is unitSize bytes.
func Split(imageID *big.Int, payload []byte, unitSize int) ([]Unit, error) {
	count, err := Count(len(payload), unitSize)
	if err != nil {
		return nil, err
	}
	units := make([]Unit, 0, count)
	for i := 0; i < count; i++ {
		start := i * unitSize
		end := min(start+unitSize, len(payload))
		units = append(units, Unit{
			ImageID: imageID,
			Index:   uint64(i),
			Data:    payload[start:end:end],
			Start:   start,
			End:     end,
		})
	}
	return units, nil
}

// Join concatenates units in index order. Units must be dense and start at index zero.
func Join(units []Unit) ([]byte, error) {
	total := 0
	for i, unit := range units {
		if unit.Index != uint64(i) {
			return nil, fmt.Errorf("unit at position %d has index %d", i, unit.Index)
		}
		total += len(unit.Data)
	}
	payload := make([]byte, 0, total)
	for _, unit := range units {
		payload = append(payload, unit.Data...)
	}
	return payload, nil
}
