package domain

import "slices"

// RawTable is an untyped source table as read from a file: a header and rows
// of string cells. It is consumed at ingestion only.
type RawTable struct {
	Header []string
	Rows   [][]string
}

// Column returns the cells of the named column. Short rows yield empty cells.
func (t RawTable) Column(name string) ([]string, bool) {
	j := slices.Index(t.Header, name)
	if j < 0 {
		return nil, false
	}
	out := make([]string, len(t.Rows))
	for i, row := range t.Rows {
		if j < len(row) {
			out[i] = row[j]
		}
	}
	return out, true
}

// Mapping associates canonical fields with source columns.
type Mapping struct {
	Version int                     `yaml:"version,omitempty" json:"version,omitempty"`
	TS      TimestampMapping        `yaml:"ts" json:"ts"`
	Fields  map[string]FieldMapping `yaml:"fields" json:"fields" validate:"dive"`
}

// TimestampMapping names the timestamp column. TZ is an optional IANA zone
// used to localize naive timestamps; when empty they are taken as UTC.
type TimestampMapping struct {
	Col string `yaml:"col" json:"col" validate:"required"`
	TZ  string `yaml:"tz,omitempty" json:"tz,omitempty"`
}

// FieldMapping describes one canonical field's source column and unit hint.
type FieldMapping struct {
	Col        string  `yaml:"col" json:"col" validate:"required"`
	Unit       string  `yaml:"unit,omitempty" json:"unit,omitempty"`
	Confidence float64 `yaml:"confidence,omitempty" json:"confidence,omitempty" validate:"gte=0,lte=1"`
}
