// Copyright 2026, Offchain Labs, Inc.
// For license information, see https://github.com/offchainlabs/chunkposter/blob/master/LICENSE.md

package poster

import (
	"fmt"
	"math"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/offchainlabs/chunkposter/util/arbmath"
)

type Config struct {
	UnitSize            int           `koanf:"unit-size"`
	BatchSize           int           `koanf:"batch-size"`
	GasMargin           float64       `koanf:"gas-margin"`
	PriorityFeeGwei     float64       `koanf:"priority-fee-gwei"`
	MaxFeeCapGwei       float64       `koanf:"max-fee-cap-gwei"`
	ReceiptTimeout      time.Duration `koanf:"receipt-timeout"`
	ReceiptPollInterval time.Duration `koanf:"receipt-poll-interval"`
	Resume              bool          `koanf:"resume"`
}

func ConfigAddOptions(prefix string, f *flag.FlagSet) {
	f.Int(prefix+".unit-size", DefaultConfig.UnitSize, "maximum number of payload bytes written per transaction")
	f.Int(prefix+".batch-size", DefaultConfig.BatchSize, "maximum number of unit writes in flight at once")
	f.Float64(prefix+".gas-margin", DefaultConfig.GasMargin, "multiplier applied to the estimated gas to get the gas limit")
	f.Float64(prefix+".priority-fee-gwei", DefaultConfig.PriorityFeeGwei, "priority fee (tip) offered per gas, in gwei")
	f.Float64(prefix+".max-fee-cap-gwei", DefaultConfig.MaxFeeCapGwei, "refuse to write when base fee plus tip exceeds this many gwei (0 to disable)")
	f.Duration(prefix+".receipt-timeout", DefaultConfig.ReceiptTimeout, "how long to wait for a dispatched write to settle")
	f.Duration(prefix+".receipt-poll-interval", DefaultConfig.ReceiptPollInterval, "how often to poll for a receipt when the node cannot push new heads")
	f.Bool(prefix+".resume", DefaultConfig.Resume, "skip units the checkpoint storage records as already written")
}

var DefaultConfig = Config{
	UnitSize:            2048,
	BatchSize:           10,
	GasMargin:           1.2,
	PriorityFeeGwei:     1,
	MaxFeeCapGwei:       0,
	ReceiptTimeout:      5 * time.Minute,
	ReceiptPollInterval: time.Second,
	Resume:              false,
}

var TestConfig = Config{
	UnitSize:            2048,
	BatchSize:           10,
	GasMargin:           1.2,
	PriorityFeeGwei:     1,
	MaxFeeCapGwei:       0,
	ReceiptTimeout:      5 * time.Second,
	ReceiptPollInterval: 10 * time.Millisecond,
	Resume:              false,
}

func (c *Config) Validate() error {
	switch {
	case c.UnitSize < 1:
		return fmt.Errorf("%w: unit-size must be positive, got %d", ErrConfigurationInvalid, c.UnitSize)
	case c.BatchSize < 1:
		return fmt.Errorf("%w: batch-size must be positive, got %d", ErrConfigurationInvalid, c.BatchSize)
	case math.IsNaN(c.GasMargin) || c.GasMargin < 1:
		return fmt.Errorf("%w: gas-margin must be at least 1, got %v", ErrConfigurationInvalid, c.GasMargin)
	case math.IsNaN(c.PriorityFeeGwei) || c.PriorityFeeGwei < 0:
		return fmt.Errorf("%w: priority-fee-gwei must not be negative, got %v", ErrConfigurationInvalid, c.PriorityFeeGwei)
	case math.IsNaN(c.MaxFeeCapGwei) || c.MaxFeeCapGwei < 0:
		return fmt.Errorf("%w: max-fee-cap-gwei must not be negative, got %v", ErrConfigurationInvalid, c.MaxFeeCapGwei)
	case c.ReceiptTimeout <= 0:
		return fmt.Errorf("%w: receipt-timeout must be positive, got %v", ErrConfigurationInvalid, c.ReceiptTimeout)
	case c.ReceiptPollInterval <= 0:
		return fmt.Errorf("%w: receipt-poll-interval must be positive, got %v", ErrConfigurationInvalid, c.ReceiptPollInterval)
	}
	return nil
}

// gasMarginBips is the gas margin in basis points, never below one.
func (c *Config) gasMarginBips() arbmath.Bips {
	bips := arbmath.FloatToBips(c.GasMargin)
	if bips < arbmath.OneInBips {
		return arbmath.OneInBips
	}
	return bips
}
