package qc

import (
	"github.com/couchcryptid/metdata-etl/internal/domain"
)

// Report counts raised flags per QC column.
type Report struct {
	Rows  int            `json:"rows"`
	Gaps  int            `json:"gaps"`
	Flags map[string]int `json:"flags"`
}

// Summarize counts true values in every qc_* column and the gap marker.
func Summarize(f *domain.Frame) Report {
	r := Report{Rows: f.Len(), Flags: make(map[string]int)}
	for _, name := range f.FlagColumns() {
		col, _ := f.Flag(name)
		count := 0
		for _, b := range col {
			if b {
				count++
			}
		}
		switch {
		case name == domain.ColGap:
			r.Gaps = count
		case domain.IsQCFlag(name):
			r.Flags[name] = count
		}
	}
	return r
}

// Flagged returns the number of rows with qc_any set.
func (r Report) Flagged() int {
	return r.Flags[domain.FlagAny]
}
