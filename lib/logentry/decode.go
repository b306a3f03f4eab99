// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package logentry

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"
)

var (
	// ErrMalformed reports bytes that violate the entry grammar.
	ErrMalformed = errors.New("malformed log entry")

	// ErrTruncated reports a stream that ended inside an entry.
	ErrTruncated = errors.New("log stream truncated inside an entry")

	// ErrMissingTerminator reports a stream that ended between two
	// entries without the terminator byte.
	ErrMissingTerminator = errors.New("log stream ended without terminator")
)

// maxStringLength bounds every length-prefixed string. A larger prefix
// can only come from corrupted bytes.
const maxStringLength = 16 * 1024 * 1024

// maxAggregatedCount bounds the aggregated list of one exception node.
const maxAggregatedCount = 1 << 16

// maxConclusionCount bounds the conclusions of one close entry.
const maxConclusionCount = 1 << 16

// Source is what Read consumes. *bufio.Reader and *bytes.Reader
// satisfy it.
type Source interface {
	io.Reader
	io.ByteReader
}

// Read decodes one entry encoded in the given format version.
//
// It returns (nil, nil) when it consumes the terminator byte. At end of
// stream before any byte of an entry it returns ErrMissingTerminator;
// inside an entry, ErrTruncated; on grammar violations, ErrMalformed.
// Other read errors are returned wrapped as they are.
func Read(source Source, version int) (*Entry, error) {
	policy, err := Policy(version)
	if err != nil {
		return nil, err
	}
	discriminant, err := source.ReadByte()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrMissingTerminator
		}
		return nil, fmt.Errorf("reading entry discriminant: %w", err)
	}
	if discriminant == Terminator {
		return nil, nil
	}
	decoder := entryDecoder{source: source, policy: policy}
	entry, err := decoder.entry(discriminant)
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Unmarshal decodes exactly one entry from data. Trailing bytes are
// reported as malformed.
func Unmarshal(data []byte, version int) (*Entry, error) {
	reader := &byteSource{data: data}
	entry, err := Read(reader, version)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, fmt.Errorf("%w: terminator where an entry was expected", ErrMalformed)
	}
	if reader.position != len(data) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformed, len(data)-reader.position)
	}
	return entry, nil
}

type entryDecoder struct {
	source    Source
	policy    VersionPolicy
	sourceErr error
}

func (decoder *entryDecoder) entry(discriminant byte) (*Entry, error) {
	kind := Kind(discriminant & kindMask)
	if kind == KindNone || discriminant&flagReserved != 0 {
		return nil, fmt.Errorf("%w: invalid discriminant 0x%02x", ErrMalformed, discriminant)
	}
	if kind == KindCloseGroup && discriminant&lineOnlyFlags != 0 {
		return nil, fmt.Errorf("%w: discriminant 0x%02x flags line fields on a close entry", ErrMalformed, discriminant)
	}
	if kind != KindCloseGroup && discriminant&closeOnlyFlags != 0 {
		return nil, fmt.Errorf("%w: discriminant 0x%02x flags conclusions on a %s entry", ErrMalformed, discriminant, kind)
	}

	entry := &Entry{Kind: kind}
	var err error
	if discriminant&flagIsMulticast != 0 {
		if entry.Multicast, err = decoder.multicast(); err != nil {
			return nil, err
		}
	}
	if entry.Time, err = decoder.timestamp(); err != nil {
		return nil, err
	}

	if kind == KindCloseGroup {
		if discriminant&flagHasConclusions != 0 {
			count, err := decoder.uvarint()
			if err != nil {
				return nil, err
			}
			if count == 0 || count > maxConclusionCount {
				return nil, fmt.Errorf("%w: conclusion count %d", ErrMalformed, count)
			}
			entry.Conclusions = make([]string, 0, count)
			for range count {
				conclusion, err := decoder.string()
				if err != nil {
					return nil, err
				}
				entry.Conclusions = append(entry.Conclusions, conclusion)
			}
		}
		return entry, nil
	}

	levelByte, err := decoder.byte()
	if err != nil {
		return nil, err
	}
	if entry.Level, err = decoder.policy.decodeLevel(levelByte); err != nil {
		return nil, err
	}
	if entry.Text, err = decoder.string(); err != nil {
		return nil, err
	}
	if discriminant&flagHasTags != 0 {
		tags, err := decoder.string()
		if err != nil {
			return nil, err
		}
		entry.Tags = NewTags(tags)
	}
	if discriminant&flagHasLocation != 0 {
		if entry.FileName, err = decoder.string(); err != nil {
			return nil, err
		}
		line, err := decoder.uvarint()
		if err != nil {
			return nil, err
		}
		entry.LineNumber = int(line)
	}
	if discriminant&flagHasException != 0 {
		if entry.Exception, err = decoder.exception(0); err != nil {
			return nil, err
		}
	}
	return entry, nil
}

func (decoder *entryDecoder) multicast() (*Multicast, error) {
	zigzag, err := decoder.uvarint()
	if err != nil {
		return nil, err
	}
	processID := int64(zigzag >> 1)
	if zigzag&1 != 0 {
		processID = ^processID
	}
	monitorID, err := decoder.string()
	if err != nil {
		return nil, err
	}
	depth, err := decoder.uvarint()
	if err != nil {
		return nil, err
	}
	previousKind, err := decoder.byte()
	if err != nil {
		return nil, err
	}
	if Kind(previousKind) > KindCloseGroup {
		return nil, fmt.Errorf("%w: previous entry kind %d", ErrMalformed, previousKind)
	}
	previousTime, err := decoder.timestamp()
	if err != nil {
		return nil, err
	}
	return &Multicast{
		ProcessID:    int(processID),
		MonitorID:    monitorID,
		Depth:        int(depth),
		PreviousKind: Kind(previousKind),
		PreviousTime: previousTime,
	}, nil
}

func (decoder *entryDecoder) timestamp() (Timestamp, error) {
	var raw [8]byte
	if _, err := io.ReadFull(decoder.source, raw[:]); err != nil {
		return Timestamp{}, decoder.wrap(err, "timestamp")
	}
	var stamp Timestamp
	if nanoseconds := int64(binary.LittleEndian.Uint64(raw[:])); nanoseconds != unknownTime {
		stamp.Time = time.Unix(0, nanoseconds).UTC()
	}
	if decoder.policy.HasUniquifier {
		uniquifier, err := decoder.byte()
		if err != nil {
			return Timestamp{}, err
		}
		stamp.Uniquifier = uniquifier
	}
	return stamp, nil
}

func (decoder *entryDecoder) exception(depth int) (*ExceptionData, error) {
	if depth >= maxExceptionDepth {
		return nil, fmt.Errorf("%w: exception chain deeper than %d", ErrMalformed, maxExceptionDepth)
	}
	flags, err := decoder.byte()
	if err != nil {
		return nil, err
	}
	if flags&^exceptionKnownFlags != 0 {
		return nil, fmt.Errorf("%w: exception flags 0x%02x", ErrMalformed, flags)
	}
	data := &ExceptionData{}
	for _, field := range []*string{&data.Message, &data.TypeName, &data.QualifiedTypeName} {
		if *field, err = decoder.string(); err != nil {
			return nil, err
		}
	}
	optional := []struct {
		flag  byte
		field *string
	}{
		{exceptionHasStack, &data.StackTrace},
		{exceptionHasFile, &data.FileName},
		{exceptionHasFusion, &data.FusionLog},
	}
	for _, candidate := range optional {
		if flags&candidate.flag == 0 {
			continue
		}
		if *candidate.field, err = decoder.string(); err != nil {
			return nil, err
		}
	}
	if flags&exceptionHasAggr != 0 {
		count, err := decoder.uvarint()
		if err != nil {
			return nil, err
		}
		if count == 0 || count > maxAggregatedCount {
			return nil, fmt.Errorf("%w: aggregated exception count %d", ErrMalformed, count)
		}
		data.Aggregated = make([]*ExceptionData, 0, min(count, 64))
		for range count {
			aggregated, err := decoder.exception(depth + 1)
			if err != nil {
				return nil, err
			}
			data.Aggregated = append(data.Aggregated, aggregated)
		}
	}
	if flags&exceptionHasInner != 0 {
		if data.Inner, err = decoder.exception(depth + 1); err != nil {
			return nil, err
		}
	}
	return data, nil
}

func (decoder *entryDecoder) byte() (byte, error) {
	value, err := decoder.source.ReadByte()
	if err != nil {
		return 0, decoder.wrap(err, "byte field")
	}
	return value, nil
}

// ReadByte lets binary.ReadUvarint consume the source while the
// decoder remembers whether the source itself failed.
func (decoder *entryDecoder) ReadByte() (byte, error) {
	value, err := decoder.source.ReadByte()
	if err != nil {
		decoder.sourceErr = err
	}
	return value, err
}

func (decoder *entryDecoder) uvarint() (uint64, error) {
	value, err := binary.ReadUvarint(decoder)
	if err != nil {
		if decoder.sourceErr != nil {
			return 0, decoder.wrap(err, "varint field")
		}
		return 0, fmt.Errorf("%w: varint overflows 64 bits", ErrMalformed)
	}
	return value, nil
}

func (decoder *entryDecoder) string() (string, error) {
	length, err := decoder.uvarint()
	if err != nil {
		return "", err
	}
	if length > maxStringLength {
		return "", fmt.Errorf("%w: string length %d exceeds %d", ErrMalformed, length, maxStringLength)
	}
	if length == 0 {
		return "", nil
	}
	data := make([]byte, length)
	if _, err := io.ReadFull(decoder.source, data); err != nil {
		return "", decoder.wrap(err, "string field")
	}
	return string(data), nil
}

// wrap classifies a read error met inside an entry: end of stream
// becomes ErrTruncated, anything else is a transport error.
func (decoder *entryDecoder) wrap(err error, field string) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: reading %s", ErrTruncated, field)
	}
	return fmt.Errorf("reading %s: %w", field, err)
}

// byteSource adapts a byte slice to Source while tracking how much was
// consumed.
type byteSource struct {
	data     []byte
	position int
}

func (source *byteSource) Read(p []byte) (int, error) {
	if source.position >= len(source.data) {
		return 0, io.EOF
	}
	n := copy(p, source.data[source.position:])
	source.position += n
	return n, nil
}

func (source *byteSource) ReadByte() (byte, error) {
	if source.position >= len(source.data) {
		return 0, io.EOF
	}
	value := source.data[source.position]
	source.position++
	return value, nil
}
