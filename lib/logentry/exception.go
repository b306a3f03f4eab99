// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package logentry

import (
	"fmt"
	"reflect"
	"slices"
)

// ExceptionData describes a failure attached to a line or an opened
// group. Nodes form an owned tree: every node owns at most one inner
// node and an ordered list of aggregated nodes, and no node is shared.
type ExceptionData struct {
	Message           string
	TypeName          string
	QualifiedTypeName string
	StackTrace        string
	FileName          string
	FusionLog         string

	// Inner is the single cause of this failure, if any.
	Inner *ExceptionData

	// Aggregated lists the failures this one fans in, in order. Empty
	// unless the source error joined several errors.
	Aggregated []*ExceptionData
}

// maxExceptionDepth bounds the nesting of decoded exception chains so
// that hostile input cannot exhaust the stack.
const maxExceptionDepth = 64

// NewExceptionData builds an exception chain from a Go error. An error
// with an Unwrap() error method gets that error as its inner node; an
// error with an Unwrap() []error method (errors.Join, multi-%w
// fmt.Errorf) gets the joined errors as aggregated nodes. Returns nil
// for a nil error. Chains deeper than the decodable limit are cut.
func NewExceptionData(err error) *ExceptionData {
	return newExceptionData(err, 0)
}

func newExceptionData(err error, depth int) *ExceptionData {
	if err == nil {
		return nil
	}
	errorType := reflect.TypeOf(err)
	data := &ExceptionData{
		Message:           err.Error(),
		TypeName:          typeName(errorType),
		QualifiedTypeName: qualifiedTypeName(errorType),
	}
	if depth+1 >= maxExceptionDepth {
		return data
	}
	switch unwrapper := err.(type) {
	case interface{ Unwrap() error }:
		data.Inner = newExceptionData(unwrapper.Unwrap(), depth+1)
	case interface{ Unwrap() []error }:
		for _, joined := range unwrapper.Unwrap() {
			if joined != nil {
				data.Aggregated = append(data.Aggregated, newExceptionData(joined, depth+1))
			}
		}
	}
	return data
}

func typeName(errorType reflect.Type) string {
	for errorType.Kind() == reflect.Pointer {
		errorType = errorType.Elem()
	}
	if errorType.Name() == "" {
		return errorType.String()
	}
	return errorType.Name()
}

func qualifiedTypeName(errorType reflect.Type) string {
	pointer := ""
	for errorType.Kind() == reflect.Pointer {
		pointer += "*"
		errorType = errorType.Elem()
	}
	if errorType.PkgPath() == "" {
		return pointer + errorType.String()
	}
	return fmt.Sprintf("%s%s.%s", pointer, errorType.PkgPath(), errorType.Name())
}

// Equal reports whether both chains are structurally identical. A nil
// and an empty aggregated list are equal.
func (data *ExceptionData) Equal(other *ExceptionData) bool {
	if data == nil || other == nil {
		return data == nil && other == nil
	}
	if data.Message != other.Message ||
		data.TypeName != other.TypeName ||
		data.QualifiedTypeName != other.QualifiedTypeName ||
		data.StackTrace != other.StackTrace ||
		data.FileName != other.FileName ||
		data.FusionLog != other.FusionLog {
		return false
	}
	if !data.Inner.Equal(other.Inner) {
		return false
	}
	return slices.EqualFunc(data.Aggregated, other.Aggregated, (*ExceptionData).Equal)
}

// Depth returns the number of nodes on the longest path from data to a
// leaf, counting data itself. Returns 0 for nil.
func (data *ExceptionData) Depth() int {
	if data == nil {
		return 0
	}
	deepest := data.Inner.Depth()
	for _, aggregated := range data.Aggregated {
		deepest = max(deepest, aggregated.Depth())
	}
	return deepest + 1
}
