// Copyright 2026, Offchain Labs, Inc.
// For license information, see https://github.com/offchainlabs/chunkposter/blob/master/LICENSE.md

package payload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/require"

	"github.com/offchainlabs/chunkposter/cmd/genericconf"
	"github.com/offchainlabs/chunkposter/util/testhelpers"
)

type mockS3Client struct {
	mutex   sync.Mutex
	objects map[string][]byte
	calls   int
}

func (m *mockS3Client) GetObject(_ context.Context, input *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.calls++
	data, ok := m.objects[aws.ToString(input.Bucket)+"/"+aws.ToString(input.Key)]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	start, end := int64(0), int64(len(data))-1
	if rng := aws.ToString(input.Range); rng != "" {
		if _, err := fmt.Sscanf(rng, "bytes=%d-%d", &start, &end); err != nil {
			return nil, err
		}
	}
	if end >= int64(len(data)) {
		end = int64(len(data)) - 1
	}
	body := data[start : end+1]
	return &s3.GetObjectOutput{
		Body:         io.NopCloser(bytes.NewReader(body)),
		ContentRange: aws.String(fmt.Sprintf("bytes %d-%d/%d", start, end, len(data))),
	}, nil
}

func TestLoadS3(t *testing.T) {
	data := testhelpers.RandomSlice(12 * 1024 * 1024)
	client := &mockS3Client{objects: map[string][]byte{"bucket/images/boot.img": data}}
	config := &genericconf.S3Config{Bucket: "bucket", ObjectKey: "images/boot.img", Region: "us-east-1"}

	loaded, err := LoadS3(context.Background(), config, client)
	require.NoError(t, err)
	require.True(t, bytes.Equal(data, loaded))
	require.Greater(t, client.calls, 1, "large object should be fetched in parts")

	config.ObjectKey = "missing"
	_, err = LoadS3(context.Background(), config, client)
	require.ErrorContains(t, err, "s3://bucket/missing")
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "payload.bin")
	data := testhelpers.RandomSlice(5000)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	config := &Config{File: path, ImageID: "7"}
	loaded, err := Load(context.Background(), config)
	require.NoError(t, err)
	require.True(t, bytes.Equal(data, loaded))

	config.File = filepath.Join(dir, "missing.bin")
	_, err = Load(context.Background(), config)
	require.ErrorIs(t, err, os.ErrNotExist)
	require.ErrorContains(t, err, "missing.bin")
}

func TestConfigValidate(t *testing.T) {
	s3 := genericconf.S3Config{Bucket: "b", ObjectKey: "k", Region: "r"}
	cases := []struct {
		name   string
		config Config
		err    string
	}{
		{"file", Config{File: "a.bin", ImageID: "1"}, ""},
		{"s3", Config{S3: s3, ImageID: "0x10"}, ""},
		{"no source", Config{ImageID: "1"}, ErrNoSource.Error()},
		{"both sources", Config{File: "a.bin", S3: s3, ImageID: "1"}, ErrNoSource.Error()},
		{"s3 without region", Config{S3: genericconf.S3Config{Bucket: "b", ObjectKey: "k"}, ImageID: "1"}, "region"},
		{"s3 half credentials", Config{S3: genericconf.S3Config{Bucket: "b", ObjectKey: "k", Region: "r", AccessKey: "a"}, ImageID: "1"}, "set together"},
		{"missing image id", Config{File: "a.bin"}, "image id is required"},
		{"bad image id", Config{File: "a.bin", ImageID: "abc"}, "invalid image id"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.config.Validate()
			if tc.err == "" {
				require.NoError(t, err)
			} else {
				require.ErrorContains(t, err, tc.err)
			}
		})
	}
}

func TestParseImageID(t *testing.T) {
	id, err := ParseImageID("42")
	require.NoError(t, err)
	require.Equal(t, 0, id.Cmp(big.NewInt(42)))

	id, err = ParseImageID(" 0xff ")
	require.NoError(t, err)
	require.Equal(t, 0, id.Cmp(big.NewInt(255)))

	largest := "0x" + strings.Repeat("f", 64)
	_, err = ParseImageID(largest)
	require.NoError(t, err)

	_, err = ParseImageID(largest + "f")
	require.Error(t, err)
	_, err = ParseImageID("-1")
	require.Error(t, err)
}
