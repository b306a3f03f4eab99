// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package logfile

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/ckmon/lib/codec"
	"github.com/bureau-foundation/ckmon/lib/logentry"
	"github.com/bureau-foundation/ckmon/lib/logstream"
)

// indexFormat changes whenever Index changes incompatibly; indexes of
// another format are rebuilt.
const indexFormat = 1

// fingerprintWindow is how much of the head and of the tail of a file
// the fingerprint covers.
const fingerprintWindow = 4096

// Index is the cached form of a RawLogFile.
type Index struct {
	Format      int       `cbor:"format"`
	Path        string    `cbor:"path"`
	Size        int64     `cbor:"size"`
	ModTime     time.Time `cbor:"mod_time"`
	Fingerprint []byte    `cbor:"fingerprint"`

	Version     int     `cbor:"version"`
	Compression string  `cbor:"compression"`
	Offsets     []int64 `cbor:"offsets"`

	LineCount       int `cbor:"lines"`
	OpenGroupCount  int `cbor:"open_groups"`
	CloseGroupCount int `cbor:"close_groups"`

	FirstTime       time.Time `cbor:"first_time"`
	FirstUniquifier uint8     `cbor:"first_uniquifier"`
	LastTime        time.Time `cbor:"last_time"`
	LastUniquifier  uint8     `cbor:"last_uniquifier"`

	Multicast  bool     `cbor:"multicast"`
	MonitorIDs []string `cbor:"monitor_ids"`

	// ErrorKind names the sentinel behind Error so that errors.Is keeps
	// working on a file restored from the cache.
	ErrorKind string `cbor:"error_kind,omitempty"`
	Error     string `cbor:"error,omitempty"`
}

var errorKinds = map[string]error{
	"malformed":           logentry.ErrMalformed,
	"truncated":           logentry.ErrTruncated,
	"missing_terminator":  logentry.ErrMissingTerminator,
	"unsupported_version": logentry.ErrUnsupportedVersion,
}

// NewIndex captures file. The fingerprint is computed from the file on
// disk.
func NewIndex(file *RawLogFile) (*Index, error) {
	fingerprint, err := Fingerprint(file.Path, file.Size, file.ModTime)
	if err != nil {
		return nil, err
	}
	index := &Index{
		Format:          indexFormat,
		Path:            file.Path,
		Size:            file.Size,
		ModTime:         file.ModTime.UTC(),
		Fingerprint:     fingerprint,
		Version:         file.Version,
		Compression:     file.Compression.String(),
		Offsets:         file.Offsets,
		LineCount:       file.LineCount,
		OpenGroupCount:  file.OpenGroupCount,
		CloseGroupCount: file.CloseGroupCount,
		FirstTime:       file.FirstTime.Time,
		FirstUniquifier: file.FirstTime.Uniquifier,
		LastTime:        file.LastTime.Time,
		LastUniquifier:  file.LastTime.Uniquifier,
		Multicast:       file.Multicast,
		MonitorIDs:      file.MonitorIDs,
	}
	if file.Err != nil {
		index.Error = file.Err.Error()
		for kind, sentinel := range errorKinds {
			if errors.Is(file.Err, sentinel) {
				index.ErrorKind = kind
				break
			}
		}
	}
	return index, nil
}

// RawLogFile restores the file summary.
func (index *Index) RawLogFile() (*RawLogFile, error) {
	compression, err := logstream.ParseCompression(index.Compression)
	if err != nil {
		return nil, err
	}
	file := &RawLogFile{
		Path:            index.Path,
		Size:            index.Size,
		ModTime:         index.ModTime,
		Version:         index.Version,
		Compression:     compression,
		Offsets:         index.Offsets,
		LineCount:       index.LineCount,
		OpenGroupCount:  index.OpenGroupCount,
		CloseGroupCount: index.CloseGroupCount,
		FirstTime:       logentry.Timestamp{Time: index.FirstTime, Uniquifier: index.FirstUniquifier},
		LastTime:        logentry.Timestamp{Time: index.LastTime, Uniquifier: index.LastUniquifier},
		Multicast:       index.Multicast,
		MonitorIDs:      index.MonitorIDs,
	}
	if index.Error != "" {
		if sentinel, ok := errorKinds[index.ErrorKind]; ok {
			file.Err = fmt.Errorf("%w (cached: %s)", sentinel, index.Error)
		} else {
			file.Err = errors.New(index.Error)
		}
	}
	return file, nil
}

// Fingerprint hashes the size, modification time, first and last
// 4 KiB of the file at path.
func Fingerprint(path string, size int64, modTime time.Time) ([]byte, error) {
	handle, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer handle.Close()

	hasher := blake3.New()
	var header [16]byte
	binary.LittleEndian.PutUint64(header[:8], uint64(size))
	binary.LittleEndian.PutUint64(header[8:], uint64(modTime.UnixNano()))
	hasher.Write(header[:])

	if _, err := io.Copy(hasher, io.LimitReader(handle, fingerprintWindow)); err != nil {
		return nil, fmt.Errorf("fingerprinting %s: %w", path, err)
	}
	if size > fingerprintWindow {
		tail := max(size-fingerprintWindow, fingerprintWindow)
		if _, err := io.Copy(hasher, io.NewSectionReader(handle, tail, size-tail)); err != nil {
			return nil, fmt.Errorf("fingerprinting %s: %w", path, err)
		}
	}
	return hasher.Sum(nil), nil
}

// IndexPath returns where the index of the file at path is cached in
// directory. path should be absolute.
func IndexPath(directory, path string) string {
	digest := blake3.Sum256([]byte(path))
	return filepath.Join(directory, hex.EncodeToString(digest[:12])+".idx")
}

// SaveIndex writes index into directory.
func SaveIndex(directory string, index *Index) error {
	data, err := codec.Marshal(index)
	if err != nil {
		return fmt.Errorf("encoding index of %s: %w", index.Path, err)
	}
	target := IndexPath(directory, index.Path)
	temporary := target + ".tmp"
	if err := os.WriteFile(temporary, data, 0644); err != nil {
		return fmt.Errorf("writing index of %s: %w", index.Path, err)
	}
	if err := os.Rename(temporary, target); err != nil {
		os.Remove(temporary)
		return fmt.Errorf("writing index of %s: %w", index.Path, err)
	}
	return nil
}

// LoadIndex reads the cached index of path from directory. A missing
// index returns an error satisfying errors.Is(err, os.ErrNotExist).
func LoadIndex(directory, path string) (*Index, error) {
	data, err := os.ReadFile(IndexPath(directory, path))
	if err != nil {
		return nil, err
	}
	var index Index
	if err := codec.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("decoding index of %s: %w", path, err)
	}
	return &index, nil
}

// DiagnoseIndex returns the cached index of path in CBOR diagnostic
// notation, for inspecting a cache entry by hand.
func DiagnoseIndex(directory, path string) (string, error) {
	data, err := os.ReadFile(IndexPath(directory, path))
	if err != nil {
		return "", err
	}
	diagnostic, err := codec.Diagnose(data)
	if err != nil {
		return "", fmt.Errorf("diagnosing index of %s: %w", path, err)
	}
	return diagnostic, nil
}

// matches reports whether index still describes the file on disk.
func (index *Index) matches(path string, info os.FileInfo) bool {
	if index.Format != indexFormat || index.Path != path {
		return false
	}
	if index.Size != info.Size() || !index.ModTime.Equal(info.ModTime()) {
		return false
	}
	fingerprint, err := Fingerprint(path, info.Size(), info.ModTime())
	if err != nil {
		return false
	}
	return string(fingerprint) == string(index.Fingerprint)
}

// OpenCached returns the summary of the file at path, from the index
// cached in directory when it still matches the file, otherwise by
// validating the file and refreshing the cache. hit reports whether the
// cache was used. err reports a cache write failure only; the returned
// file is always usable. An empty directory disables the cache.
func OpenCached(path, directory string) (file *RawLogFile, hit bool, err error) {
	if absolute, err := filepath.Abs(path); err == nil {
		path = absolute
	}
	if directory == "" {
		return Open(path), false, nil
	}
	if info, statErr := os.Stat(path); statErr == nil {
		if index, loadErr := LoadIndex(directory, path); loadErr == nil && index.matches(path, info) {
			if cached, restoreErr := index.RawLogFile(); restoreErr == nil {
				return cached, true, nil
			}
		}
	}

	file = Open(path)
	if file.Size == 0 && file.ModTime.IsZero() {
		// Nothing on disk to fingerprint.
		return file, false, nil
	}
	index, err := NewIndex(file)
	if err != nil {
		return file, false, err
	}
	if err := os.MkdirAll(directory, 0755); err != nil {
		return file, false, fmt.Errorf("creating index directory: %w", err)
	}
	return file, false, SaveIndex(directory, index)
}
