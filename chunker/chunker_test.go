// Copyright 2026, Offchain Labs, Inc.
// For license information, see https://github.com/offchainlabs/chunkposter/blob/master/LICENSE.md

package chunker

import (
	"bytes"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/offchainlabs/chunkposter/util/testhelpers"
)

func TestSplitSizes(t *testing.T) {
	payload := testhelpers.RandomSlice(5000)
	units, err := Split(big.NewInt(50), payload, 2048)
	require.NoError(t, err)
	require.Len(t, units, 3)
	for i, expected := range []int{2048, 2048, 904} {
		require.Equal(t, uint64(i), units[i].Index)
		require.Equal(t, expected, len(units[i].Data))
		require.Equal(t, expected, units[i].Len())
		require.Equal(t, int64(50), units[i].ImageID.Int64())
	}
	require.Equal(t, 4096, units[2].Start)
	require.Equal(t, 5000, units[2].End)
}

func TestSplitRoundTrip(t *testing.T) {
	for _, payloadLen := range []uint64{0, 1, 7, 2047, 2048, 2049, 10_000} {
		payload := testhelpers.RandomSlice(payloadLen)
		for _, unitSize := range []int{1, 3, 64, 2048, 1 << 20} {
			units, err := Split(big.NewInt(1), payload, unitSize)
			require.NoError(t, err)
			expectedCount, err := Count(len(payload), unitSize)
			require.NoError(t, err)
			require.Len(t, units, expectedCount)
			joined, err := Join(units)
			require.NoError(t, err)
			if !bytes.Equal(joined, payload) {
				testhelpers.FailImpl(t, "round trip mismatch", "len", payloadLen, "unitSize", unitSize)
			}
		}
	}
}

func TestSplitInvalidUnitSize(t *testing.T) {
	for _, unitSize := range []int{0, -1} {
		_, err := Split(big.NewInt(1), []byte{1, 2, 3}, unitSize)
		if !errors.Is(err, ErrInvalidUnitSize) {
			testhelpers.FailImpl(t, "expected invalid unit size error, got", err)
		}
	}
}

func TestUnitsDoNotShareCapacity(t *testing.T) {
	payload := []byte{1, 2, 3, 4, 5}
	units, err := Split(big.NewInt(1), payload, 2)
	require.NoError(t, err)
	grown := append(units[0].Data, 0xff)
	require.Equal(t, byte(3), payload[2])
	require.Len(t, grown, 3)
}

func TestJoinRejectsGaps(t *testing.T) {
	units, err := Split(big.NewInt(1), []byte{1, 2, 3, 4}, 1)
	require.NoError(t, err)
	_, err = Join(append(units[:1], units[2:]...))
	require.Error(t, err)
}
