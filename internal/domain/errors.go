package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures so callers can react without string matching.
type ErrorKind string

const (
	// KindConfig marks invalid caller configuration: unknown scaling method,
	// missing timestamp mapping, bad window sizes.
	KindConfig ErrorKind = "CONFIG"
	// KindData marks input that cannot be coerced: non-numeric cells,
	// unparsable timestamps, irregular sampling.
	KindData ErrorKind = "DATA"
)

var (
	ErrConfig            = errors.New("configuration error")
	ErrData              = errors.New("data error")
	ErrIrregularSampling = errors.New("irregular sampling interval")
	ErrOffGrid           = errors.New("timestamp not aligned to sampling grid")
	ErrGridTooLarge      = errors.New("sampling grid too large")
	ErrUnknownUnit       = errors.New("unknown unit")
	ErrUnknownMethod     = errors.New("unknown scaling method")
	ErrUnknownMetric     = errors.New("unknown derived metric")
	ErrLengthMismatch    = errors.New("column length does not match index")
)

// Error is the typed error returned by every core operation.
type Error struct {
	Kind   ErrorKind
	Op     string
	Column string
	Err    error
}

func (e *Error) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("%s: [%s] column %q: %v", e.Op, e.Kind, e.Column, e.Err)
	}
	return fmt.Sprintf("%s: [%s] %v", e.Op, e.Kind, e.Err)
}

// Unwrap exposes the underlying cause for errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports kind-level matches, so errors.Is(err, ErrConfig) holds for every
// configuration failure regardless of its specific cause.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrConfig:
		return e.Kind == KindConfig
	case ErrData:
		return e.Kind == KindData
	}
	return false
}

// ConfigError builds a KindConfig error.
func ConfigError(op string, err error) *Error {
	return &Error{Kind: KindConfig, Op: op, Err: err}
}

// DataError builds a KindData error scoped to a column. Column may be empty.
func DataError(op, column string, err error) *Error {
	return &Error{Kind: KindData, Op: op, Column: column, Err: err}
}
