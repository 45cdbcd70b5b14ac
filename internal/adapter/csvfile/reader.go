// Package csvfile reads source tables from CSV and writes processed frames
// back to CSV.
package csvfile

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/couchcryptid/metdata-etl/internal/domain"
)

const bom = "\uFEFF"

// Reader loads a CSV file as a raw table. It implements pipeline.Extractor.
type Reader struct {
	path  string
	comma rune
}

// NewReader returns a Reader for path. A zero comma means ','.
func NewReader(path string, comma rune) *Reader {
	if comma == 0 {
		comma = ','
	}
	return &Reader{path: path, comma: comma}
}

func (r *Reader) Extract(ctx context.Context) (domain.RawTable, error) {
	f, err := os.Open(r.path)
	if err != nil {
		return domain.RawTable{}, fmt.Errorf("open %s: %w", r.path, err)
	}
	defer f.Close()
	return ReadTable(ctx, f, r.comma)
}

// ReadTable parses CSV from rd. The first record is the header; a leading
// byte order mark is stripped and short rows are allowed.
func ReadTable(ctx context.Context, rd io.Reader, comma rune) (domain.RawTable, error) {
	cr := csv.NewReader(rd)
	cr.Comma = comma
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = false

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return domain.RawTable{}, domain.DataError("read csv", "", errors.New("empty file"))
	}
	if err != nil {
		return domain.RawTable{}, domain.DataError("read csv", "", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], bom)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	table := domain.RawTable{Header: header}
	for {
		if err := ctx.Err(); err != nil {
			return domain.RawTable{}, err
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return domain.RawTable{}, domain.DataError("read csv", "", err)
		}
		table.Rows = append(table.Rows, rec)
	}
	return table, nil
}
