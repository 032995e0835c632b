// Copyright 2026, Offchain Labs, Inc.
// For license information, see https://github.com/offchainlabs/chunkposter/blob/master/LICENSE.md

// Package payload loads the bytes to be uploaded from a local file or an S3 object.
package payload

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	pkgerrors "github.com/pkg/errors"
	flag "github.com/spf13/pflag"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/log"

	"github.com/offchainlabs/chunkposter/cmd/genericconf"
)

var ErrNoSource = errors.New("exactly one of payload.file or payload.s3 must be set")

type Config struct {
	File    string               `koanf:"file"`
	S3      genericconf.S3Config `koanf:"s3"`
	ImageID string               `koanf:"image-id"`
}

var DefaultConfig = Config{
	File:    "",
	S3:      genericconf.DefaultS3Config,
	ImageID: "",
}

func ConfigAddOptions(prefix string, f *flag.FlagSet) {
	f.String(prefix+".file", DefaultConfig.File, "path of the payload to upload")
	genericconf.S3ConfigAddOptions(prefix+".s3", f)
	f.String(prefix+".image-id", DefaultConfig.ImageID, "image id the chunks are stored under (decimal or 0x-prefixed hex)")
}

func (c *Config) Validate() error {
	hasFile := c.File != ""
	hasS3 := c.S3.Enabled()
	if hasFile == hasS3 {
		return ErrNoSource
	}
	if hasS3 {
		if err := c.S3.Validate(); err != nil {
			return err
		}
	}
	if _, err := ParseImageID(c.ImageID); err != nil {
		return err
	}
	return nil
}

// ParseImageID parses a decimal or 0x-prefixed hex image id that fits in 256 bits.
func ParseImageID(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New("image id is required")
	}
	id, ok := math.ParseBig256(s)
	if !ok || id.Sign() < 0 {
		return nil, fmt.Errorf("invalid image id %q: must be a 256-bit unsigned integer", s)
	}
	return id, nil
}

// Load reads the configured payload.
func Load(ctx context.Context, config *Config) ([]byte, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.File != "" {
		return LoadFile(config.File)
	}
	client, err := NewS3Client(ctx, &config.S3)
	if err != nil {
		return nil, err
	}
	return LoadS3(ctx, &config.S3, client)
}

func LoadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to read payload file %s", path)
	}
	log.Info("loaded payload", "file", path, "size", len(data))
	return data, nil
}

// NewS3Client builds a client from static credentials when given, otherwise from the default
// credential chain.
func NewS3Client(ctx context.Context, config *genericconf.S3Config) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(config.Region)}
	if config.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(config.AccessKey, config.SecretKey, ""),
		))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return s3.NewFromConfig(cfg), nil
}

func LoadS3(ctx context.Context, config *genericconf.S3Config, client manager.DownloadAPIClient) ([]byte, error) {
	downloader := manager.NewDownloader(client)
	buf := manager.NewWriteAtBuffer(nil)
	n, err := downloader.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(config.Bucket),
		Key:    aws.String(config.ObjectKey),
	})
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to download s3://%s/%s", config.Bucket, config.ObjectKey)
	}
	data := buf.Bytes()[:n]
	log.Info("loaded payload", "bucket", config.Bucket, "key", config.ObjectKey, "size", len(data))
	return data, nil
}
