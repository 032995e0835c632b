// Copyright 2026, Offchain Labs, Inc.
// For license information, see https://github.com/offchainlabs/chunkposter/blob/master/LICENSE.md

package poster

import (
	"errors"
	"fmt"
)

var (
	ErrFeeUnavailable       = errors.New("fee unavailable")
	ErrEstimationFailed     = errors.New("gas estimation failed")
	ErrAuthorizationFailed  = errors.New("authorization failed")
	ErrDispatchFailed       = errors.New("dispatch failed")
	ErrSettlementFailed     = errors.New("settlement failed")
	ErrConfigurationInvalid = errors.New("configuration invalid")
	ErrLedgerUnavailable    = errors.New("ledger unavailable")
	ErrUnresolvedWrite      = errors.New("unresolved write")
	ErrOutOfOrder           = errors.New("units stored out of order")
)

// UnitError ties a failure to the unit and sequence number it happened on.
// errors.Is matches both Kind and the underlying cause.
type UnitError struct {
	Index uint64
	Nonce uint64
	Kind  error
	Err   error
}

func newUnitError(index, nonce uint64, kind error, err error) *UnitError {
	if kind == nil {
		kind = kindOf(err)
	}
	return &UnitError{Index: index, Nonce: nonce, Kind: kind, Err: err}
}

func (e *UnitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("unit %d (nonce %d): %v", e.Index, e.Nonce, e.Kind)
	}
	if errors.Is(e.Err, e.Kind) {
		return fmt.Sprintf("unit %d (nonce %d): %v", e.Index, e.Nonce, e.Err)
	}
	return fmt.Sprintf("unit %d (nonce %d): %v: %v", e.Index, e.Nonce, e.Kind, e.Err)
}

func (e *UnitError) Unwrap() []error {
	var errs []error
	for _, err := range []error{e.Kind, e.Err} {
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// kindOf returns the taxonomy error err belongs to, or nil.
func kindOf(err error) error {
	for _, kind := range []error{
		ErrFeeUnavailable,
		ErrEstimationFailed,
		ErrAuthorizationFailed,
		ErrDispatchFailed,
		ErrSettlementFailed,
		ErrConfigurationInvalid,
		ErrLedgerUnavailable,
		ErrUnresolvedWrite,
		ErrOutOfOrder,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
