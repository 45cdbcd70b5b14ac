// Package normalize turns raw station tables into the canonical time series:
// mapping ingest, UTC coercion, unit normalization, gap insertion,
// accumulated-rain correction, resampling and calendar features.
//
// Each stage is idempotent on data it has already normalized.
package normalize

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/metdata-etl/internal/domain"
)

// Layouts tried in order for timestamps that carry a zone offset.
var zonedLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05 -0700",
	"2006-01-02T15:04Z07:00",
}

// Layouts for naive timestamps, interpreted in the mapping's zone.
var naiveLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006/01/02 15:04:05",
	"2006/01/02 15:04",
	"2006-01-02",
}

var missingTokens = map[string]struct{}{
	"": {}, "na": {}, "n/a": {}, "nan": {}, "null": {}, "none": {}, "-": {},
}

// ParseTimestamp parses one timestamp cell. Values without an offset are
// localized to loc.
func ParseTimestamp(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// ParseValue parses a numeric cell. Empty and NA-like cells are missing, as
// are infinities ("inf", "-Infinity"), which loggers write for failed sensors.
func ParseValue(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if _, ok := missingTokens[strings.ToLower(s)]; ok {
		return math.NaN(), nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsInf(v, 0) {
		return math.NaN(), nil
	}
	return v, nil
}

// FromMapping selects and relabels the mapped source columns into canonical
// names. Mapped fields that are not canonical variables, or whose source
// column is absent, are skipped and reported as warnings. Row order is
// preserved; ToUTC sorts.
func FromMapping(raw domain.RawTable, m domain.Mapping, reg *domain.Registry) (*domain.Frame, []string, error) {
	const op = "from mapping"
	if m.TS.Col == "" {
		return nil, nil, domain.ConfigError(op, errors.New("timestamp mapping is missing"))
	}
	tsCells, ok := raw.Column(m.TS.Col)
	if !ok {
		return nil, nil, domain.ConfigError(op, fmt.Errorf("timestamp column %q not found in data", m.TS.Col))
	}
	loc := time.UTC
	if m.TS.TZ != "" {
		var err error
		if loc, err = time.LoadLocation(m.TS.TZ); err != nil {
			return nil, nil, domain.ConfigError(op, fmt.Errorf("timestamp zone %q: %w", m.TS.TZ, err))
		}
	}

	index := make([]time.Time, len(tsCells))
	for i, cell := range tsCells {
		t, err := ParseTimestamp(cell, loc)
		if err != nil {
			return nil, nil, domain.DataError(op, m.TS.Col, fmt.Errorf("row %d: %w", i+1, err))
		}
		index[i] = t
	}

	f := domain.NewFrame(index)
	var warnings []string
	for _, name := range reg.Canonical() {
		fm, ok := m.Fields[name]
		if !ok {
			continue
		}
		cells, ok := raw.Column(fm.Col)
		if !ok {
			warnings = append(warnings, fmt.Sprintf("%s: source column %q not found", name, fm.Col))
			continue
		}
		values := make([]float64, len(cells))
		for i, cell := range cells {
			v, err := ParseValue(cell)
			if err != nil {
				return nil, nil, domain.DataError(op, fm.Col, fmt.Errorf("row %d: non-numeric value %q", i+1, cell))
			}
			values[i] = v
		}
		if err := f.SetFloat(name, values); err != nil {
			return nil, nil, err
		}
	}
	for _, name := range slices.Sorted(maps.Keys(m.Fields)) {
		if !reg.IsCanonical(name) {
			warnings = append(warnings, fmt.Sprintf("%s: not a canonical variable, ignored", name))
		}
	}
	return f, warnings, nil
}
