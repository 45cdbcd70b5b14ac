package domain

import (
	"fmt"
	"math"
	"slices"
	"time"
)

// Frame is a time-indexed table of numeric and boolean columns.
//
// Numeric accessors return the column's backing slice; callers must treat it
// as read-only and publish changes through SetFloat or SetFlag, which take
// ownership of the slice they are given.
type Frame struct {
	index  []time.Time
	floats map[string][]float64
	flags  map[string][]bool
	order  []string
}

// NewFrame creates an empty frame over a copy of index.
func NewFrame(index []time.Time) *Frame {
	return &Frame{
		index:  slices.Clone(index),
		floats: make(map[string][]float64),
		flags:  make(map[string][]bool),
	}
}

// Len returns the number of rows.
func (f *Frame) Len() int { return len(f.index) }

// Index returns a copy of the timestamp index.
func (f *Frame) Index() []time.Time { return slices.Clone(f.index) }

// Time returns the timestamp of row i.
func (f *Frame) Time(i int) time.Time { return f.index[i] }

// Columns returns all column names in insertion order.
func (f *Frame) Columns() []string { return slices.Clone(f.order) }

// FloatColumns returns numeric column names in insertion order.
func (f *Frame) FloatColumns() []string {
	out := make([]string, 0, len(f.floats))
	for _, name := range f.order {
		if _, ok := f.floats[name]; ok {
			out = append(out, name)
		}
	}
	return out
}

// FlagColumns returns boolean column names in insertion order.
func (f *Frame) FlagColumns() []string {
	out := make([]string, 0, len(f.flags))
	for _, name := range f.order {
		if _, ok := f.flags[name]; ok {
			out = append(out, name)
		}
	}
	return out
}

// Has reports whether a column of either kind exists.
func (f *Frame) Has(name string) bool {
	_, okF := f.floats[name]
	_, okB := f.flags[name]
	return okF || okB
}

// HasAll reports whether every named numeric column exists.
func (f *Frame) HasAll(names ...string) bool {
	for _, n := range names {
		if _, ok := f.floats[n]; !ok {
			return false
		}
	}
	return true
}

// Float returns a numeric column.
func (f *Frame) Float(name string) ([]float64, bool) {
	v, ok := f.floats[name]
	return v, ok
}

// Flag returns a boolean column.
func (f *Frame) Flag(name string) ([]bool, bool) {
	v, ok := f.flags[name]
	return v, ok
}

// SetFloat stores a numeric column, replacing any column of the same name.
func (f *Frame) SetFloat(name string, values []float64) error {
	if len(values) != len(f.index) {
		return DataError("set column", name, fmt.Errorf("%w: %d values for %d rows", ErrLengthMismatch, len(values), len(f.index)))
	}
	if _, ok := f.flags[name]; ok {
		delete(f.flags, name)
	} else if _, ok := f.floats[name]; !ok {
		f.order = append(f.order, name)
	}
	f.floats[name] = values
	return nil
}

// SetFlag stores a boolean column, replacing any column of the same name.
func (f *Frame) SetFlag(name string, values []bool) error {
	if len(values) != len(f.index) {
		return DataError("set column", name, fmt.Errorf("%w: %d values for %d rows", ErrLengthMismatch, len(values), len(f.index)))
	}
	if _, ok := f.floats[name]; ok {
		delete(f.floats, name)
	} else if _, ok := f.flags[name]; !ok {
		f.order = append(f.order, name)
	}
	f.flags[name] = values
	return nil
}

// Clone returns a deep copy sharing no memory with f.
func (f *Frame) Clone() *Frame {
	out := NewFrame(f.index)
	out.order = slices.Clone(f.order)
	for name, v := range f.floats {
		out.floats[name] = slices.Clone(v)
	}
	for name, v := range f.flags {
		out.flags[name] = slices.Clone(v)
	}
	return out
}

// Take builds a new frame whose row i copies row rows[i] of f. A negative
// position yields a missing row: NaN numerics and false flags.
func (f *Frame) Take(index []time.Time, rows []int) *Frame {
	out := NewFrame(index)
	out.order = slices.Clone(f.order)
	for name, src := range f.floats {
		dst := make([]float64, len(rows))
		for i, r := range rows {
			if r < 0 {
				dst[i] = math.NaN()
				continue
			}
			dst[i] = src[r]
		}
		out.floats[name] = dst
	}
	for name, src := range f.flags {
		dst := make([]bool, len(rows))
		for i, r := range rows {
			if r >= 0 {
				dst[i] = src[r]
			}
		}
		out.flags[name] = dst
	}
	return out
}

// Rows returns a new frame holding the selected rows in the given order.
func (f *Frame) Rows(rows []int) *Frame {
	index := make([]time.Time, len(rows))
	for i, r := range rows {
		index[i] = f.index[r]
	}
	return f.Take(index, rows)
}

// Filter returns a new frame with the rows for which keep returns true.
func (f *Frame) Filter(keep func(i int) bool) *Frame {
	rows := make([]int, 0, len(f.index))
	for i := range f.index {
		if keep(i) {
			rows = append(rows, i)
		}
	}
	return f.Rows(rows)
}

// NaNs returns a numeric column of n missing values.
func NaNs(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
