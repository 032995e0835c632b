// Copyright 2026, Offchain Labs, Inc.
// For license information, see https://github.com/offchainlabs/chunkposter/blob/master/LICENSE.md

package main

import (
	"context"
	"fmt"
	"io"
	"math/big"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/offchainlabs/chunkposter/checkpoint"
	"github.com/offchainlabs/chunkposter/cmd/genericconf"
	"github.com/offchainlabs/chunkposter/cmd/util"
	"github.com/offchainlabs/chunkposter/cmd/util/confighelpers"
	"github.com/offchainlabs/chunkposter/ledger"
	"github.com/offchainlabs/chunkposter/payload"
	"github.com/offchainlabs/chunkposter/poster"
	walletutil "github.com/offchainlabs/chunkposter/util"
	"github.com/offchainlabs/chunkposter/util/arbmath"
	"github.com/offchainlabs/chunkposter/util/colors"
)

func printSampleUsage(name string) {
	fmt.Printf("Sample usage: %s --ledger.url ws://localhost:8546 --ledger.contract 0x... --ledger.wallet.private-key 0x... --payload.file image.bin --payload.image-id 1\n", name)
}

func main() {
	os.Exit(mainImpl())
}

// Returns the exit code
func mainImpl() int {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	config, err := ParseChunkPoster(os.Args[1:])
	if err != nil {
		confighelpers.PrintErrorAndExit(err, printSampleUsage)
	}
	if config.Conf.Dump {
		return 0
	}

	err = genericconf.InitLog(config.LogType, config.LogLevel, &config.FileLogging, genericconf.DefaultPathResolver(""))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logging: %v\n", err)
		return 1
	}
	defer func() {
		if err := genericconf.CloseFileLogger(); err != nil {
			fmt.Fprintf(os.Stderr, "Error closing file logger: %v\n", err)
		}
	}()

	if err := util.StartMetrics(config.MetricsOpts()); err != nil {
		log.Error("error starting metrics", "err", err)
		return 1
	}

	summary, err := upload(ctx, config)
	if err != nil {
		log.Error("chunk upload could not start", "err", err)
		return 1
	}
	printSummary(os.Stdout, summary)
	if summary.Err != nil {
		return 1
	}
	return 0
}

func upload(ctx context.Context, config *ChunkPosterConfig) (*poster.Summary, error) {
	imageID, err := payload.ParseImageID(config.Payload.ImageID)
	if err != nil {
		return nil, err
	}
	client, err := ledger.Dial(ctx, config.Ledger.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", poster.ErrLedgerUnavailable, err)
	}
	defer client.Close()

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: reading chain id: %w", poster.ErrLedgerUnavailable, err)
	}
	if config.Ledger.ChainID != 0 && chainID.Cmp(new(big.Int).SetUint64(config.Ledger.ChainID)) != 0 {
		return nil, fmt.Errorf("%w: node reports chain id %v, expected %v", poster.ErrConfigurationInvalid, chainID, config.Ledger.ChainID)
	}
	auth, err := walletutil.OpenWallet(&config.Ledger.Wallet, chainID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", poster.ErrAuthorizationFailed, err)
	}
	store, err := ledger.NewChunkStore(common.HexToAddress(config.Ledger.Contract))
	if err != nil {
		return nil, err
	}

	log.Info("connected to ledger", "chainID", chainID, "sender", auth.From, "contract", store.Address)

	data, err := payload.Load(ctx, &config.Payload)
	if err != nil {
		return nil, err
	}

	checkpoints, closeCheckpoints, err := openCheckpoints(ctx, config, imageID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := closeCheckpoints(); err != nil {
			log.Warn("error closing checkpoint storage", "err", err)
		}
	}()

	pipeline := poster.NewPipeline(&config.Poster, client, auth, store, checkpoints)
	return pipeline.Run(ctx, imageID, data), nil
}

func openCheckpoints(ctx context.Context, config *ChunkPosterConfig, imageID *big.Int) (checkpoint.Storage, func() error, error) {
	checkpoints, closeFn, err := checkpoint.Open(ctx, &config.Checkpoint, imageID)
	if err != nil {
		return nil, nil, err
	}
	if config.Poster.Resume && !checkpoints.IsPersistent() {
		log.Warn("resume requested but checkpoint storage does not outlive the process, every unit will be written", "storage", config.Checkpoint.Storage)
	}
	return checkpoints, closeFn, nil
}

func printSummary(w io.Writer, summary *poster.Summary) {
	color := colors.Mint
	status := "completed"
	if !summary.Completed() {
		color = colors.Red
		status = "aborted"
	}
	colors.Fprintln(w, color, fmt.Sprintf("upload of image %v %s", summary.ImageID, status))
	fmt.Fprintf(w, "  units:      %d total, %d written, %d resumed, %d attempted\n",
		summary.UnitsTotal, summary.UnitsSucceeded, summary.UnitsResumed, summary.UnitsAttempted)
	fee := "0"
	if summary.TotalFeeWei != nil {
		fee = fmt.Sprintf("%v", arbmath.WeiToGwei(summary.TotalFeeWei))
	}
	fmt.Fprintf(w, "  gas used:   %d\n", summary.TotalCost)
	fmt.Fprintf(w, "  fee paid:   %s gwei\n", fee)
	fmt.Fprintf(w, "  duration:   %v\n", summary.Duration)
	if summary.LastCompletedIndex >= 0 {
		fmt.Fprintf(w, "  last unit:  %d\n", summary.LastCompletedIndex)
	}
	if len(summary.SequenceGaps) > 0 {
		colors.Fprintln(w, colors.Yellow, fmt.Sprintf("  nonce gaps: %v", summary.SequenceGaps))
	}
	if summary.Aborted {
		colors.Fprintln(w, colors.Red, fmt.Sprintf("  aborted at unit %d: %v", summary.AbortedAt, summary.Err))
	} else if summary.Err != nil {
		colors.Fprintln(w, colors.Red, fmt.Sprintf("  error: %v", summary.Err))
	}
}
