// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package logstream

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression identifies how a whole stream is compressed.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionGzip
	CompressionZstd
	CompressionLZ4
)

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
	lz4Magic  = []byte{0x04, 0x22, 0x4d, 0x18}
)

// String returns the configuration name of the compression.
func (compression Compression) String() string {
	switch compression {
	case CompressionNone:
		return "none"
	case CompressionGzip:
		return "gzip"
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(compression))
	}
}

// ParseCompression parses a compression name as produced by String.
// The empty string means none.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "", "none":
		return CompressionNone, nil
	case "gzip":
		return CompressionGzip, nil
	case "zstd":
		return CompressionZstd, nil
	case "lz4":
		return CompressionLZ4, nil
	default:
		return CompressionNone, fmt.Errorf("unknown compression %q", name)
	}
}

// detectCompression peeks at the leading bytes without consuming them.
// A raw stream starts with a small little-endian version number, which
// never collides with any of the magic numbers.
func detectCompression(buffered *bufio.Reader) Compression {
	// A short peek is fine: the header read reports the truncation.
	leading, _ := buffered.Peek(4)
	switch {
	case bytes.HasPrefix(leading, zstdMagic):
		return CompressionZstd
	case bytes.HasPrefix(leading, lz4Magic):
		return CompressionLZ4
	case bytes.HasPrefix(leading, gzipMagic):
		return CompressionGzip
	default:
		return CompressionNone
	}
}

// newDecompressor wraps r according to compression. The returned
// closer releases decoder resources; it never closes r.
func newDecompressor(compression Compression, r io.Reader) (io.Reader, io.Closer, error) {
	switch compression {
	case CompressionNone:
		return r, noopCloser{}, nil
	case CompressionGzip:
		reader, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("opening gzip stream: %w", err)
		}
		return reader, reader, nil
	case CompressionZstd:
		decoder, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, nil, fmt.Errorf("opening zstd stream: %w", err)
		}
		readCloser := decoder.IOReadCloser()
		return readCloser, readCloser, nil
	case CompressionLZ4:
		return lz4.NewReader(r), noopCloser{}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported compression %s", compression)
	}
}

// newCompressor wraps w according to compression. Closing the
// returned writer finishes the compressed frame but does not close w.
func newCompressor(compression Compression, w io.Writer) (io.WriteCloser, error) {
	switch compression {
	case CompressionNone:
		return nopWriteCloser{w}, nil
	case CompressionGzip:
		return gzip.NewWriter(w), nil
	case CompressionZstd:
		encoder, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, fmt.Errorf("creating zstd encoder: %w", err)
		}
		return encoder, nil
	case CompressionLZ4:
		return lz4.NewWriter(w), nil
	default:
		return nil, fmt.Errorf("unsupported compression %s", compression)
	}
}

// flusher is implemented by every compressor used here.
type flusher interface {
	Flush() error
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

type noopCloser struct{}

func (noopCloser) Close() error { return nil }
