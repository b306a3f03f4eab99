// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package logstream reads and writes versioned streams of log entries.
//
// A stream is a 4-byte little-endian format version, a sequence of
// entries encoded by package logentry, and the terminator byte 0x00 on
// a cleanly closed stream. The same layout is used for files and for
// the pipe relay. Files may be compressed as a whole (gzip, zstd or
// LZ4 frames); [Open] recognizes the compression from the leading
// magic bytes, so callers never need to know how a file was written.
//
// [Reader] is a pull decoder with no look-ahead and no rewind:
//
//	reader, err := logstream.Open(file)
//	if err != nil {
//	    return err
//	}
//	defer reader.Close()
//	for reader.Next() {
//	    use(reader.Offset(), reader.Entry())
//	}
//	if reader.BadEndOfStream() {
//	    // truncated or corrupted; reader.Err() says which
//	}
//
// Offsets reported by the Reader are positions in the decompressed
// stream, counting the 4-byte header, so the first entry is at offset
// 4. They are stable across reads of the same file and can be used to
// re-read one entry later.
package logstream
