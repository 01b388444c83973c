// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package codec turns compressed shard bytes into paper batches. It holds
// no state beyond pooled decoders and is safe for concurrent use.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	gojson "github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/pdiddy/paper-explorer/pkg/types"
)

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// ErrUnknownContainer is returned for input that is neither gzip nor zstd.
var ErrUnknownContainer = errors.New("unrecognized compression container")

// DecodeError reports a shard whose bytes could not be turned into a
// batch: a corrupt container, invalid JSON, or the wrong envelope shape.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decoding shard: %s: %v", e.Reason, e.Err)
	}
	return "decoding shard: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }

var zstdDecoderPool sync.Pool

func getZstdDecoder() (*zstd.Decoder, error) {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder), nil
	}
	return zstd.NewReader(nil)
}

// Decompress inflates a gzip or zstd container.
func Decompress(data []byte) ([]byte, error) {
	switch {
	case bytes.HasPrefix(data, gzipMagic):
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("opening gzip stream: %w", err)
		}
		defer zr.Close()
		out, err := io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("reading gzip stream: %w", err)
		}
		return out, nil

	case bytes.HasPrefix(data, zstdMagic):
		dec, err := getZstdDecoder()
		if err != nil {
			return nil, fmt.Errorf("creating zstd decoder: %w", err)
		}
		defer zstdDecoderPool.Put(dec)
		out, err := dec.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("reading zstd stream: %w", err)
		}
		return out, nil

	default:
		return nil, ErrUnknownContainer
	}
}

// envelope keeps papers raw so a missing or non-array field can be told
// apart from an empty list.
type envelope struct {
	Papers gojson.RawMessage `json:"papers"`
}

// DecodeBatch decompresses data and parses the {"papers": [...]} envelope.
// A successful batch always has at least one paper.
func DecodeBatch(data []byte) (*types.Batch, error) {
	if len(data) == 0 {
		return nil, &DecodeError{Reason: "no data received"}
	}

	raw, err := Decompress(data)
	if err != nil {
		return nil, &DecodeError{Reason: "decompression failed", Err: err}
	}

	var env envelope
	if err := gojson.Unmarshal(raw, &env); err != nil {
		return nil, &DecodeError{Reason: "invalid JSON", Err: err}
	}

	trimmed := bytes.TrimSpace(env.Papers)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, &DecodeError{Reason: `invalid data structure, expected {"papers": [...]}`}
	}

	var batch types.Batch
	if err := gojson.Unmarshal(trimmed, &batch.Papers); err != nil {
		return nil, &DecodeError{Reason: "invalid paper records", Err: err}
	}
	if len(batch.Papers) == 0 {
		return nil, &DecodeError{Reason: "batch has no papers"}
	}
	return &batch, nil
}
