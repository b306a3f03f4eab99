// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package logstream

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/bureau-foundation/ckmon/lib/logentry"
)

// HeaderLength is the size of the format version header.
const HeaderLength = 4

// ReadHeader reads the 4-byte little-endian format version and checks
// that it is decodable. A short header is reported as
// logentry.ErrTruncated, an out-of-range version as
// logentry.ErrUnsupportedVersion.
func ReadHeader(r io.Reader) (int, error) {
	var header [HeaderLength]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return 0, fmt.Errorf("%w: reading format version header", logentry.ErrTruncated)
		}
		return 0, fmt.Errorf("reading format version header: %w", err)
	}
	version := int(int32(binary.LittleEndian.Uint32(header[:])))
	if _, err := logentry.Policy(version); err != nil {
		return 0, err
	}
	return version, nil
}

// WriteHeader writes the format version header.
func WriteHeader(w io.Writer, version int) error {
	if _, err := logentry.Policy(version); err != nil {
		return err
	}
	var header [HeaderLength]byte
	binary.LittleEndian.PutUint32(header[:], uint32(version))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("writing format version header: %w", err)
	}
	return nil
}

// Reader decodes a stream one entry at a time. It is not safe for
// concurrent use.
type Reader struct {
	source      *countingReader
	closer      io.Closer
	version     int
	compression Compression

	entry       *logentry.Entry
	entryOffset int64
	finished    bool
	badEnd      bool
	err         error
}

// Open recognizes the compression of r, reads the version header and
// returns a Reader positioned on the first entry. Close the Reader to
// release decompression resources; r itself is not closed.
func Open(r io.Reader) (*Reader, error) {
	buffered := bufio.NewReader(r)
	compression := detectCompression(buffered)
	decompressed, closer, err := newDecompressor(compression, buffered)
	if err != nil {
		return nil, err
	}
	source := newCountingReader(decompressed, 0)
	version, err := ReadHeader(source)
	if err != nil {
		closer.Close()
		return nil, err
	}
	return &Reader{
		source:      source,
		closer:      closer,
		version:     version,
		compression: compression,
	}, nil
}

// NewReader returns a Reader over an uncompressed stream whose header
// has already been consumed, positioned at offset. Use it to resume
// decoding at an offset recorded by an earlier pass.
func NewReader(r io.Reader, version int, offset int64) (*Reader, error) {
	if _, err := logentry.Policy(version); err != nil {
		return nil, err
	}
	return &Reader{
		source:  newCountingReader(r, offset),
		closer:  noopCloser{},
		version: version,
	}, nil
}

// Next decodes the next entry. It returns false at the terminator, at
// the end of the stream, and on the first decoding error; after that it
// keeps returning false.
func (reader *Reader) Next() bool {
	if reader.finished {
		return false
	}
	offset := reader.source.offset
	entry, err := logentry.Read(reader.source, reader.version)
	if err != nil {
		reader.finish(err)
		return false
	}
	if entry == nil {
		reader.finish(nil)
		return false
	}
	reader.entry = entry
	reader.entryOffset = offset
	return true
}

func (reader *Reader) finish(err error) {
	reader.finished = true
	reader.entry = nil
	reader.err = err
	reader.badEnd = err != nil
}

// SkipTo discards bytes until the stream position reaches offset. It
// fails when offset is behind the current position.
func (reader *Reader) SkipTo(offset int64) error {
	if offset < reader.source.offset {
		return fmt.Errorf("cannot skip backwards from offset %d to %d", reader.source.offset, offset)
	}
	skipped, err := io.CopyN(io.Discard, reader.source, offset-reader.source.offset)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: skipping to offset %d stopped after %d bytes",
				logentry.ErrTruncated, offset, skipped)
		}
		return fmt.Errorf("skipping to offset %d: %w", offset, err)
	}
	return nil
}

// Entry returns the entry decoded by the last successful Next.
func (reader *Reader) Entry() *logentry.Entry { return reader.entry }

// Offset returns the stream position where the current entry starts.
func (reader *Reader) Offset() int64 { return reader.entryOffset }

// Position returns the number of stream bytes consumed so far,
// including the header.
func (reader *Reader) Position() int64 { return reader.source.offset }

// Version returns the format version from the header.
func (reader *Reader) Version() int { return reader.version }

// Compression returns the compression recognized by Open.
func (reader *Reader) Compression() Compression { return reader.compression }

// BadEndOfStream reports whether decoding stopped for any reason other
// than the terminator. Meaningful once Next has returned false.
func (reader *Reader) BadEndOfStream() bool { return reader.badEnd }

// Err returns the error that stopped decoding, or nil after a clean
// terminator. errors.Is distinguishes logentry.ErrMissingTerminator,
// logentry.ErrTruncated and logentry.ErrMalformed from transport
// errors.
func (reader *Reader) Err() error { return reader.err }

// Close releases decompression resources. It does not close the
// underlying reader.
func (reader *Reader) Close() error {
	return reader.closer.Close()
}

// countingReader tracks the stream position for entry offsets.
type countingReader struct {
	reader interface {
		io.Reader
		io.ByteReader
	}
	offset int64
}

func newCountingReader(r io.Reader, offset int64) *countingReader {
	if source, ok := r.(interface {
		io.Reader
		io.ByteReader
	}); ok {
		return &countingReader{reader: source, offset: offset}
	}
	return &countingReader{reader: bufio.NewReader(r), offset: offset}
}

func (counter *countingReader) Read(p []byte) (int, error) {
	n, err := counter.reader.Read(p)
	counter.offset += int64(n)
	return n, err
}

func (counter *countingReader) ReadByte() (byte, error) {
	value, err := counter.reader.ReadByte()
	if err == nil {
		counter.offset++
	}
	return value, err
}
