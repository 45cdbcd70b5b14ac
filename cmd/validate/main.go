// Command validate checks the integrity of metprep output files: index
// order, flag columns, gap rows, range flags against the configured bounds
// and, when given, the train/val/test split files and scaler parameters.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -frame out.csv \
//	  -qc-profile qc.yml \
//	  -splits \
//	  -scaler scaler.json
package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/metdata-etl/internal/adapter/csvfile"
	"github.com/couchcryptid/metdata-etl/internal/config"
	"github.com/couchcryptid/metdata-etl/internal/domain"
	"github.com/couchcryptid/metdata-etl/internal/mlprep"
	"github.com/couchcryptid/metdata-etl/internal/normalize"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

var splitNames = []string{"train", "val", "test"}

// maxReported caps the errors printed per phase.
const maxReported = 10

func main() {
	framePath := flag.String("frame", "", "processed frame CSV")
	profile := flag.String("qc-profile", "", "QC profile used for the run (defaults apply when empty)")
	checkRange := flag.Bool("range", true, "check range flags against bounds (disable for resampled output)")
	splits := flag.Bool("splits", false, "also check the _train, _val and _test files next to -frame")
	scalerPath := flag.String("scaler", "", "scaler parameters JSON")
	flag.Parse()

	if *framePath == "" {
		flag.Usage()
		os.Exit(1)
	}
	if code := run(*framePath, *profile, *checkRange, *splits, *scalerPath); code != 0 {
		os.Exit(code)
	}
}

func run(framePath, profile string, checkRange, splits bool, scalerPath string) int {
	fmt.Println("=== Output Integrity Validation ===")
	fmt.Println()

	reg, err := config.LoadQCProfile(profile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load qc profile: %v\n", err)
		return 1
	}
	f, err := loadFrame(framePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load frame: %v\n", err)
		return 1
	}
	fmt.Printf("loaded %d rows, %d columns from %s\n", f.Len(), len(f.Columns()), framePath)

	phases := []*phase{
		validateIndex(f),
		validateFlags(f),
		validateGaps(f, reg),
	}
	if checkRange {
		phases = append(phases, validateRange(f, reg))
	}
	if splits {
		phases = append(phases, validateSplits(framePath))
	}
	if scalerPath != "" {
		phases = append(phases, validateScaler(scalerPath))
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "PASS"
		if !p.passed() {
			status = "FAIL"
			allPassed = false
		}
		fmt.Printf("[%s] %s\n", status, p.name)
		for i, e := range p.errors {
			if i == maxReported {
				fmt.Printf("       ... and %d more\n", len(p.errors)-maxReported)
				break
			}
			fmt.Printf("       %s\n", e)
		}
	}
	fmt.Println()
	if !allPassed {
		fmt.Println("RESULT: FAILED")
		return 1
	}
	fmt.Println("RESULT: ALL CHECKS PASSED")
	return 0
}

// loadFrame reads a CSV written by the csv sink back into a Frame.
func loadFrame(path string) (*domain.Frame, error) {
	table, err := csvfile.NewReader(path, ',').Extract(context.Background())
	if err != nil {
		return nil, err
	}
	if len(table.Header) == 0 || table.Header[0] != domain.IndexName {
		return nil, fmt.Errorf("first column must be %s", domain.IndexName)
	}

	index := make([]time.Time, len(table.Rows))
	stamps, _ := table.Column(domain.IndexName)
	for i, s := range stamps {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		index[i] = t
	}

	f := domain.NewFrame(index)
	for _, name := range table.Header[1:] {
		cells, _ := table.Column(name)
		if isFlagColumn(name) {
			flags := make([]bool, len(cells))
			for i, c := range cells {
				b, err := strconv.ParseBool(c)
				if err != nil {
					return nil, fmt.Errorf("column %s row %d: %w", name, i+1, err)
				}
				flags[i] = b
			}
			if err := f.SetFlag(name, flags); err != nil {
				return nil, err
			}
			continue
		}
		values := make([]float64, len(cells))
		for i, c := range cells {
			v, err := normalize.ParseValue(c)
			if err != nil {
				return nil, fmt.Errorf("column %s row %d: %w", name, i+1, err)
			}
			values[i] = v
		}
		if err := f.SetFloat(name, values); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func isFlagColumn(name string) bool {
	return name == domain.ColGap || domain.IsQCFlag(name)
}

// splitPath mirrors the csv sink's naming: out.csv becomes out_train.csv.
func splitPath(framePath, split string) string {
	ext := filepath.Ext(framePath)
	return strings.TrimSuffix(framePath, ext) + "_" + split + ext
}

func validateIndex(f *domain.Frame) *phase {
	p := &phase{name: "Index: strictly increasing UTC timestamps"}
	for i := 1; i < f.Len(); i++ {
		if !f.Time(i).After(f.Time(i - 1)) {
			p.errorf("row %d: %s does not follow %s", i+1, f.Time(i).Format(time.RFC3339), f.Time(i-1).Format(time.RFC3339))
		}
	}
	if f.Has(domain.ColGap) && f.Len() > 2 {
		if _, err := normalize.InferFrequency(f.Index()); err != nil {
			p.errorf("gap-filled frame is not on a regular grid: %v", err)
		}
	}
	return p
}

func validateFlags(f *domain.Frame) *phase {
	p := &phase{name: "Flags: qc_any is the OR of every qc_* column"}
	var qcCols []string
	for _, name := range f.FlagColumns() {
		if domain.IsQCFlag(name) && name != domain.FlagAny {
			qcCols = append(qcCols, name)
		}
	}
	anyFlag, ok := f.Flag(domain.FlagAny)
	if !ok {
		if len(qcCols) > 0 {
			p.errorf("qc flag columns present but %s is missing", domain.FlagAny)
		}
		return p
	}
	for i := range f.Len() {
		want := false
		for _, name := range qcCols {
			b, _ := f.Flag(name)
			want = want || b[i]
		}
		if anyFlag[i] != want {
			p.errorf("row %d: %s=%t but the other flags give %t", i+1, domain.FlagAny, anyFlag[i], want)
		}
	}
	return p
}

func validateGaps(f *domain.Frame, reg *domain.Registry) *phase {
	p := &phase{name: "Gaps: synthesized rows carry no observations"}
	gap, ok := f.Flag(domain.ColGap)
	if !ok {
		return p
	}
	for i, g := range gap {
		if !g {
			continue
		}
		for _, name := range reg.Canonical() {
			x, ok := f.Float(name)
			if ok && !math.IsNaN(x[i]) {
				p.errorf("row %d: gap row has %s=%g", i+1, name, x[i])
			}
		}
	}
	return p
}

func validateRange(f *domain.Frame, reg *domain.Registry) *phase {
	p := &phase{name: "Range: flags match configured bounds"}
	for _, v := range reg.Variables {
		if v.Bounds == nil {
			continue
		}
		x, ok := f.Float(v.Name)
		flags, hasFlag := f.Flag(domain.RangeFlag(v.Name))
		if !ok || !hasFlag {
			continue
		}
		for i, val := range x {
			want := val < v.Bounds.Lo || val > v.Bounds.Hi
			if flags[i] != want {
				p.errorf("row %d: %s=%g flagged %t, bounds [%g, %g]", i+1, v.Name, val, flags[i], v.Bounds.Lo, v.Bounds.Hi)
			}
		}
	}
	return p
}

func validateSplits(framePath string) *phase {
	p := &phase{name: "Splits: disjoint, time-ordered partitions"}
	var parts []*domain.Frame
	for _, name := range splitNames {
		f, err := loadFrame(splitPath(framePath, name))
		if err != nil {
			p.errorf("load %s split: %v", name, err)
			return p
		}
		parts = append(parts, f)
	}
	var last time.Time
	seen := make(map[time.Time]string)
	for i, part := range parts {
		name := splitNames[i]
		for r := range part.Len() {
			t := part.Time(r)
			if prev, dup := seen[t]; dup {
				p.errorf("%s appears in both %s and %s", t.Format(time.RFC3339), prev, name)
			}
			seen[t] = name
			if !last.IsZero() && !t.After(last) {
				p.errorf("%s row %d: %s is not after %s", name, r+1, t.Format(time.RFC3339), last.Format(time.RFC3339))
			}
			last = t
		}
	}
	return p
}

func validateScaler(path string) *phase {
	p := &phase{name: "Scaler: parameters load and every scale is usable"}
	data, err := os.ReadFile(path)
	if err != nil {
		p.errorf("read: %v", err)
		return p
	}
	params, err := mlprep.UnmarshalScaler(data)
	if err != nil {
		p.errorf("decode: %v", err)
		return p
	}
	for _, col := range params.Columns {
		cp := params.Parameters[col]
		if cp.Scale == 0 || math.IsNaN(cp.Scale) || math.IsNaN(cp.Center) {
			p.errorf("%s: center %g scale %g", col, cp.Center, cp.Scale)
		}
	}
	return p
}
