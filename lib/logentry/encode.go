// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package logentry

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Discriminant layout. The low two bits hold the Kind; the remaining
// bits flag which optional blocks follow. These values are protocol
// constants.
const (
	kindMask            byte = 0x03
	flagHasTags         byte = 0x04
	flagHasException    byte = 0x08
	flagHasLocation     byte = 0x10
	flagHasConclusions  byte = 0x20
	flagIsMulticast     byte = 0x40
	flagReserved        byte = 0x80
	lineOnlyFlags            = flagHasTags | flagHasException | flagHasLocation
	closeOnlyFlags           = flagHasConclusions
	exceptionHasInner   byte = 0x01
	exceptionHasAggr    byte = 0x02
	exceptionHasStack   byte = 0x04
	exceptionHasFile    byte = 0x08
	exceptionHasFusion  byte = 0x10
	exceptionKnownFlags      = exceptionHasInner | exceptionHasAggr | exceptionHasStack | exceptionHasFile | exceptionHasFusion
)

// Terminator is the reserved byte ending a stream cleanly. On the pipe
// relay it doubles as the goodbye marker.
const Terminator byte = 0x00

// unknownTime is the wire value of the zero Timestamp instant.
const unknownTime = math.MinInt64

// Marshal encodes entry in the given format version.
func Marshal(entry *Entry, version int) ([]byte, error) {
	policy, err := Policy(version)
	if err != nil {
		return nil, err
	}
	return policy.appendEntry(make([]byte, 0, 64+len(entry.Text)), entry)
}

// Write encodes entry in the given format version and writes it to w
// with a single Write call.
func Write(w io.Writer, entry *Entry, version int) error {
	data, err := Marshal(entry, version)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("writing %s entry: %w", entry.Kind, err)
	}
	return nil
}

func (policy VersionPolicy) appendEntry(buffer []byte, entry *Entry) ([]byte, error) {
	if entry.Kind < KindLine || entry.Kind > KindCloseGroup {
		return nil, fmt.Errorf("cannot encode entry of kind %s", entry.Kind)
	}
	if entry.Kind != KindCloseGroup && !entry.Level.Valid() {
		return nil, fmt.Errorf("cannot encode %s entry with level %s", entry.Kind, entry.Level)
	}
	discriminant := byte(entry.Kind)
	if entry.Multicast != nil {
		discriminant |= flagIsMulticast
	}
	if entry.Kind == KindCloseGroup {
		if len(entry.Conclusions) > 0 {
			discriminant |= flagHasConclusions
		}
	} else {
		if !entry.Tags.IsEmpty() {
			discriminant |= flagHasTags
		}
		if entry.HasSourceLocation() {
			discriminant |= flagHasLocation
		}
		if entry.Exception != nil {
			discriminant |= flagHasException
		}
	}
	buffer = append(buffer, discriminant)

	if envelope := entry.Multicast; envelope != nil {
		buffer = binary.AppendVarint(buffer, int64(envelope.ProcessID))
		buffer = appendString(buffer, envelope.MonitorID)
		buffer = binary.AppendUvarint(buffer, uint64(max(envelope.Depth, 0)))
		buffer = append(buffer, byte(envelope.PreviousKind))
		buffer = policy.appendTimestamp(buffer, envelope.PreviousTime)
	}
	buffer = policy.appendTimestamp(buffer, entry.Time)

	if entry.Kind == KindCloseGroup {
		if discriminant&flagHasConclusions != 0 {
			buffer = binary.AppendUvarint(buffer, uint64(len(entry.Conclusions)))
			for _, conclusion := range entry.Conclusions {
				buffer = appendString(buffer, conclusion)
			}
		}
		return buffer, nil
	}

	buffer = append(buffer, policy.encodeLevel(entry.Level))
	buffer = appendString(buffer, entry.Text)
	if discriminant&flagHasTags != 0 {
		buffer = appendString(buffer, string(entry.Tags))
	}
	if discriminant&flagHasLocation != 0 {
		buffer = appendString(buffer, entry.FileName)
		buffer = binary.AppendUvarint(buffer, uint64(max(entry.LineNumber, 0)))
	}
	if discriminant&flagHasException != 0 {
		buffer = appendException(buffer, entry.Exception)
	}
	return buffer, nil
}

func (policy VersionPolicy) appendTimestamp(buffer []byte, stamp Timestamp) []byte {
	nanoseconds := int64(unknownTime)
	if !stamp.Time.IsZero() {
		nanoseconds = stamp.Time.UnixNano()
	}
	buffer = binary.LittleEndian.AppendUint64(buffer, uint64(nanoseconds))
	if policy.HasUniquifier {
		buffer = append(buffer, stamp.Uniquifier)
	}
	return buffer
}

func appendString(buffer []byte, value string) []byte {
	buffer = binary.AppendUvarint(buffer, uint64(len(value)))
	return append(buffer, value...)
}

func appendException(buffer []byte, data *ExceptionData) []byte {
	if data == nil {
		data = &ExceptionData{}
	}
	var flags byte
	if data.Inner != nil {
		flags |= exceptionHasInner
	}
	if len(data.Aggregated) > 0 {
		flags |= exceptionHasAggr
	}
	if data.StackTrace != "" {
		flags |= exceptionHasStack
	}
	if data.FileName != "" {
		flags |= exceptionHasFile
	}
	if data.FusionLog != "" {
		flags |= exceptionHasFusion
	}
	buffer = append(buffer, flags)
	buffer = appendString(buffer, data.Message)
	buffer = appendString(buffer, data.TypeName)
	buffer = appendString(buffer, data.QualifiedTypeName)
	if flags&exceptionHasStack != 0 {
		buffer = appendString(buffer, data.StackTrace)
	}
	if flags&exceptionHasFile != 0 {
		buffer = appendString(buffer, data.FileName)
	}
	if flags&exceptionHasFusion != 0 {
		buffer = appendString(buffer, data.FusionLog)
	}
	if flags&exceptionHasAggr != 0 {
		buffer = binary.AppendUvarint(buffer, uint64(len(data.Aggregated)))
		for _, aggregated := range data.Aggregated {
			buffer = appendException(buffer, aggregated)
		}
	}
	if flags&exceptionHasInner != 0 {
		buffer = appendException(buffer, data.Inner)
	}
	return buffer
}
