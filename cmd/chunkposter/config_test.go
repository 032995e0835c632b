// Copyright 2026, Offchain Labs, Inc.
// For license information, see https://github.com/offchainlabs/chunkposter/blob/master/LICENSE.md

package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ethereum/go-ethereum/params"

	"github.com/offchainlabs/chunkposter/checkpoint"
	"github.com/offchainlabs/chunkposter/poster"
	"github.com/offchainlabs/chunkposter/util/colors"
	"github.com/offchainlabs/chunkposter/util/testhelpers"
)

const baseArgs = "--ledger.url ws://127.0.0.1:8546 --ledger.contract 0x00000000000000000000000000000000000000c5 --ledger.wallet.private-key 0x01 --payload.file image.bin --payload.image-id 7"

func Require(t *testing.T, err error, printables ...interface{}) {
	t.Helper()
	testhelpers.RequireImpl(t, err, printables...)
}

func Fail(t *testing.T, printables ...interface{}) {
	t.Helper()
	testhelpers.FailImpl(t, printables...)
}

func TestDefaultConfig(t *testing.T) {
	config, err := ParseChunkPoster(strings.Split(baseArgs, " "))
	Require(t, err)
	if diff := cmp.Diff(poster.DefaultConfig, config.Poster); diff != "" {
		Fail(t, "unexpected poster defaults", diff)
	}
	if diff := cmp.Diff(checkpoint.DefaultConfig, config.Checkpoint); diff != "" {
		Fail(t, "unexpected checkpoint defaults", diff)
	}
	if config.Ledger.Wallet.PrivateKey != "0x01" || config.Payload.ImageID != "7" {
		Fail(t, "flags not applied", config.Ledger, config.Payload)
	}
}

func TestConfigSources(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "config.json")
	Require(t, os.WriteFile(configFile, []byte(`{"poster":{"unit-size":1024,"batch-size":4,"receipt-timeout":"30s"},"checkpoint":{"storage":"leveldb","directory":"/tmp/cp"}}`), 0o600))

	t.Setenv("CHUNKPOSTER_POSTER_GAS__MARGIN", "1.5")
	args := strings.Split(baseArgs, " ")
	args = append(args,
		"--conf.file", configFile,
		"--conf.env-prefix", "CHUNKPOSTER",
		"--conf.string", `{"poster":{"priority-fee-gwei":2}}`,
		"--poster.batch-size", "6",
	)
	config, err := ParseChunkPoster(args)
	Require(t, err)

	expected := poster.DefaultConfig
	expected.UnitSize = 1024
	expected.BatchSize = 6 // command line beats the file
	expected.ReceiptTimeout = 30 * time.Second
	expected.GasMargin = 1.5
	expected.PriorityFeeGwei = 2
	if diff := cmp.Diff(expected, config.Poster); diff != "" {
		Fail(t, "unexpected poster config", diff)
	}
	if config.Checkpoint.Storage != checkpoint.StorageLevelDB || config.Checkpoint.Directory != "/tmp/cp" {
		Fail(t, "checkpoint config not loaded from file", config.Checkpoint)
	}
}

func TestConfigRejected(t *testing.T) {
	for _, tc := range []struct {
		name  string
		extra string
		err   string
	}{
		{"unknown flag", "--poster.bogus 1", "unknown flag"},
		{"positional argument", "extra", "unexpected argument"},
		{"zero unit size", "--poster.unit-size 0", "unit-size"},
		{"gas margin below one", "--poster.gas-margin 0.5", "gas-margin"},
		{"two payload sources", "--payload.s3.bucket b --payload.s3.object-key k --payload.s3.region r", "exactly one"},
		{"bad contract", "--ledger.contract 0x1234", "contract address"},
		{"unknown storage", "--checkpoint.storage etcd", "unknown checkpoint storage"},
		{"bad image id", "--payload.image-id nope", "invalid image id"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			args := append(strings.Split(baseArgs, " "), strings.Split(tc.extra, " ")...)
			_, err := ParseChunkPoster(args)
			if err == nil || !strings.Contains(err.Error(), tc.err) {
				Fail(t, "expected error containing", tc.err, "got", err)
			}
		})
	}

	_, err := ParseChunkPoster([]string{"--payload.file", "image.bin"})
	if err == nil || !strings.Contains(err.Error(), "--ledger.url") {
		Fail(t, "missing ledger url accepted", err)
	}
}

func TestConfigWalletValidation(t *testing.T) {
	args := strings.Split(strings.Replace(baseArgs, "--ledger.wallet.private-key 0x01", "--ledger.wallet.pathname /keystore", 1), " ")
	_, err := ParseChunkPoster(args)
	if err == nil || !strings.Contains(err.Error(), "password") {
		Fail(t, "keystore without password accepted", err)
	}
	_, err = ParseChunkPoster(append(args, "--ledger.wallet.password", "secret"))
	Require(t, err)
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	printSummary(&buf, &poster.Summary{
		ImageID:            big.NewInt(7),
		UnitsTotal:         3,
		UnitsAttempted:     3,
		UnitsSucceeded:     3,
		TotalCost:          120_000,
		TotalFeeWei:        new(big.Int).Mul(big.NewInt(3), big.NewInt(params.GWei)),
		AbortedAt:          -1,
		LastCompletedIndex: 2,
		Duration:           time.Second,
	})
	out := colors.Uncolor(buf.String())
	for _, want := range []string{"upload of image 7 completed", "3 total, 3 written, 0 resumed", "gas used:   120000", "fee paid:   3 gwei", "last unit:  2"} {
		if !strings.Contains(out, want) {
			Fail(t, "summary missing", want, out)
		}
	}

	buf.Reset()
	printSummary(&buf, &poster.Summary{
		ImageID:            big.NewInt(7),
		UnitsTotal:         25,
		UnitsAttempted:     10,
		UnitsSucceeded:     9,
		TotalFeeWei:        new(big.Int),
		Aborted:            true,
		AbortedAt:          7,
		LastCompletedIndex: 9,
		SequenceGaps:       []uint64{12},
		Err:                errors.New("unit 7 reverted"),
	})
	out = colors.Uncolor(buf.String())
	for _, want := range []string{"upload of image 7 aborted", "nonce gaps: [12]", "aborted at unit 7: unit 7 reverted"} {
		if !strings.Contains(out, want) {
			Fail(t, "summary missing", want, out)
		}
	}
}

func TestOpenCheckpointsWarnsWithoutPersistence(t *testing.T) {
	ctx := context.Background()
	config, err := ParseChunkPoster(append(strings.Split(baseArgs, " "), "--poster.resume"))
	Require(t, err)

	logs := testhelpers.InitTestLog(t, slog.LevelWarn)
	checkpoints, closeFn, err := openCheckpoints(ctx, config, big.NewInt(7))
	Require(t, err)
	if checkpoints.IsPersistent() {
		Fail(t, "memory checkpoints reported as persistent")
	}
	Require(t, closeFn())
	if !logs.WasLogged("checkpoint storage does not outlive the process") {
		Fail(t, "resume with memory checkpoints was not warned about")
	}

	logs = testhelpers.InitTestLog(t, slog.LevelWarn)
	config.Checkpoint.Storage = checkpoint.StorageLevelDB
	config.Checkpoint.Directory = t.TempDir()
	checkpoints, closeFn, err = openCheckpoints(ctx, config, big.NewInt(7))
	Require(t, err)
	if !checkpoints.IsPersistent() {
		Fail(t, "leveldb checkpoints reported as not persistent")
	}
	Require(t, closeFn())
	if logs.WasLogged("checkpoint storage does not outlive the process") {
		Fail(t, "resume with leveldb checkpoints was warned about")
	}
}
