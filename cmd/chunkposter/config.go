// Copyright 2026, Offchain Labs, Inc.
// For license information, see https://github.com/offchainlabs/chunkposter/blob/master/LICENSE.md

package main

import (
	"errors"
	"fmt"

	flag "github.com/spf13/pflag"

	"github.com/ethereum/go-ethereum/common"

	"github.com/offchainlabs/chunkposter/checkpoint"
	"github.com/offchainlabs/chunkposter/cmd/genericconf"
	"github.com/offchainlabs/chunkposter/cmd/util"
	"github.com/offchainlabs/chunkposter/cmd/util/confighelpers"
	"github.com/offchainlabs/chunkposter/payload"
	"github.com/offchainlabs/chunkposter/poster"
)

type LedgerConfig struct {
	URL      string                   `koanf:"url"`
	ChainID  uint64                   `koanf:"chain-id"`
	Contract string                   `koanf:"contract"`
	Wallet   genericconf.WalletConfig `koanf:"wallet"`
}

var LedgerConfigDefault = LedgerConfig{
	URL:      "",
	ChainID:  0,
	Contract: "",
	Wallet:   genericconf.WalletConfigDefault,
}

func LedgerConfigAddOptions(prefix string, f *flag.FlagSet) {
	f.String(prefix+".url", LedgerConfigDefault.URL, "ledger node RPC URL")
	f.Uint64(prefix+".chain-id", LedgerConfigDefault.ChainID, "if set other than 0, the node's chain id must match it")
	f.String(prefix+".contract", LedgerConfigDefault.Contract, "address of the chunk store contract")
	genericconf.WalletConfigAddOptions(prefix+".wallet", f, "")
}

func (c *LedgerConfig) Validate() error {
	if c.URL == "" {
		return errors.New("--ledger.url is required")
	}
	if !common.IsHexAddress(c.Contract) || common.HexToAddress(c.Contract) == (common.Address{}) {
		return fmt.Errorf("invalid chunk store contract address %q", c.Contract)
	}
	return c.Wallet.Validate()
}

type ChunkPosterConfig struct {
	Conf          genericconf.ConfConfig          `koanf:"conf"`
	LogLevel      string                          `koanf:"log-level"`
	LogType       string                          `koanf:"log-type"`
	FileLogging   genericconf.FileLoggingConfig   `koanf:"file-logging"`
	Metrics       bool                            `koanf:"metrics"`
	MetricsServer genericconf.MetricsServerConfig `koanf:"metrics-server"`
	Ledger        LedgerConfig                    `koanf:"ledger"`
	Payload       payload.Config                  `koanf:"payload"`
	Poster        poster.Config                   `koanf:"poster"`
	Checkpoint    checkpoint.Config               `koanf:"checkpoint"`
}

var ChunkPosterConfigDefault = ChunkPosterConfig{
	Conf:          genericconf.ConfConfigDefault,
	LogLevel:      "INFO",
	LogType:       "plaintext",
	FileLogging:   genericconf.DefaultFileLoggingConfig,
	Metrics:       false,
	MetricsServer: genericconf.MetricsServerConfigDefault,
	Ledger:        LedgerConfigDefault,
	Payload:       payload.DefaultConfig,
	Poster:        poster.DefaultConfig,
	Checkpoint:    checkpoint.DefaultConfig,
}

func ChunkPosterConfigAddOptions(f *flag.FlagSet) {
	genericconf.ConfConfigAddOptions("conf", f)
	f.String("log-level", ChunkPosterConfigDefault.LogLevel, "log level, valid values are CRIT, ERROR, WARN, INFO, DEBUG, TRACE")
	f.String("log-type", ChunkPosterConfigDefault.LogType, "log type (plaintext or json)")
	genericconf.FileLoggingConfigAddOptions("file-logging", f)
	f.Bool("metrics", ChunkPosterConfigDefault.Metrics, "enable metrics")
	genericconf.MetricsServerAddOptions("metrics-server", f)
	LedgerConfigAddOptions("ledger", f)
	payload.ConfigAddOptions("payload", f)
	poster.ConfigAddOptions("poster", f)
	checkpoint.ConfigAddOptions("checkpoint", f)
}

func (c *ChunkPosterConfig) Validate() error {
	if err := c.Ledger.Validate(); err != nil {
		return err
	}
	if err := c.Payload.Validate(); err != nil {
		return err
	}
	if err := c.Poster.Validate(); err != nil {
		return err
	}
	return c.Checkpoint.Validate()
}

func (c *ChunkPosterConfig) MetricsOpts() *util.MetricsOpts {
	return &util.MetricsOpts{
		Metrics:       c.Metrics,
		MetricsServer: c.MetricsServer,
	}
}

func ParseChunkPoster(args []string) (*ChunkPosterConfig, error) {
	f := flag.NewFlagSet("chunkposter", flag.ContinueOnError)
	ChunkPosterConfigAddOptions(f)

	k, err := confighelpers.BeginCommonParse(f, args)
	if err != nil {
		return nil, err
	}

	var config ChunkPosterConfig
	if err := confighelpers.EndCommonParse(k, &config); err != nil {
		return nil, err
	}

	// Don't print wallet secrets
	if config.Conf.Dump {
		err = confighelpers.DumpConfig(k, map[string]interface{}{
			"ledger.wallet.password":    "",
			"ledger.wallet.private-key": "",
			"payload.s3.secret-key":     "",
		})
		if err != nil {
			return nil, err
		}
		return &config, nil
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}
