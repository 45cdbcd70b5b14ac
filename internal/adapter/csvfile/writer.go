package csvfile

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/metdata-etl/internal/domain"
	"github.com/couchcryptid/metdata-etl/internal/mlprep"
	"github.com/couchcryptid/metdata-etl/internal/pipeline"
)

// Writer writes a processed dataset to CSV. It implements pipeline.Loader.
//
// The processed frame goes to path. When the dataset carries a supervised
// table it is written next to it with a _supervised suffix, and splits get
// _train, _val and _test suffixes. A fitted scaler is written as JSON to
// scalerPath when that is set.
type Writer struct {
	path       string
	scalerPath string
}

func NewWriter(path, scalerPath string) *Writer {
	return &Writer{path: path, scalerPath: scalerPath}
}

func (w *Writer) Name() string { return "csv" }

func (w *Writer) Load(_ context.Context, ds *pipeline.Dataset) error {
	if err := writeFile(w.path, ds.Frame); err != nil {
		return err
	}
	if ds.Supervised != nil {
		if err := writeFile(suffixed(w.path, "supervised"), ds.Supervised); err != nil {
			return err
		}
	}
	if s := ds.Splits; s != nil {
		for _, part := range []struct {
			name  string
			frame *domain.Frame
		}{{"train", s.Train}, {"val", s.Val}, {"test", s.Test}} {
			if err := writeFile(suffixed(w.path, part.name), part.frame); err != nil {
				return err
			}
		}
	}
	if ds.Scaler != nil && w.scalerPath != "" {
		data, err := mlprep.MarshalScaler(ds.Scaler)
		if err != nil {
			return err
		}
		if err := os.WriteFile(w.scalerPath, data, 0o644); err != nil {
			return fmt.Errorf("write scaler: %w", err)
		}
	}
	return nil
}

// suffixed turns out.csv into out_<suffix>.csv.
func suffixed(path, suffix string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "_" + suffix + ext
}

func writeFile(path string, f *domain.Frame) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := WriteFrame(out, f); err != nil {
		out.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return out.Close()
}

// WriteFrame writes f as CSV with the UTC index first. Missing values are
// empty cells; flags are true or false.
func WriteFrame(w io.Writer, f *domain.Frame) error {
	cw := csv.NewWriter(w)
	cols := f.Columns()
	if err := cw.Write(append([]string{domain.IndexName}, cols...)); err != nil {
		return err
	}

	floats := make(map[string][]float64)
	flags := make(map[string][]bool)
	for _, c := range cols {
		if x, ok := f.Float(c); ok {
			floats[c] = x
		} else if b, ok := f.Flag(c); ok {
			flags[c] = b
		}
	}

	rec := make([]string, len(cols)+1)
	for i := range f.Len() {
		rec[0] = f.Time(i).UTC().Format(time.RFC3339)
		for j, c := range cols {
			if x, ok := floats[c]; ok {
				rec[j+1] = formatFloat(x[i])
			} else {
				rec[j+1] = strconv.FormatBool(flags[c][i])
			}
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
