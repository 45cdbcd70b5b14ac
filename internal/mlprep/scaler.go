package mlprep

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/couchcryptid/metdata-etl/internal/domain"
	"github.com/couchcryptid/metdata-etl/internal/stats"
)

// Scaling methods.
const (
	MethodStandard = "standard"
	MethodMinMax   = "minmax"
	MethodRobust   = "robust"
)

// Methods lists the supported scaling methods.
func Methods() []string { return []string{MethodStandard, MethodMinMax, MethodRobust} }

// ColumnParams is the fitted (x - Center) / Scale transform for one column.
type ColumnParams struct {
	Center float64 `json:"center"`
	Scale  float64 `json:"scale"`
}

// ScalerParams are fitted once and never modified afterwards. Columns lists
// the fitted columns in frame order; Skipped lists requested columns that
// had no finite values on the reference frame.
type ScalerParams struct {
	Method     string                  `json:"method"`
	Columns    []string                `json:"columns"`
	Parameters map[string]ColumnParams `json:"parameters"`
	Skipped    []string                `json:"skipped,omitempty"`
}

func checkMethod(op, method string) error {
	if !slices.Contains(Methods(), method) {
		return domain.ConfigError(op, fmt.Errorf("%w: %q", domain.ErrUnknownMethod, method))
	}
	return nil
}

// FitScaler estimates per-column parameters on ref.
//
// Leakage contract: ref must be the training partition only. Fitting on a
// frame that includes validation or test rows leaks future information into
// the parameters, and nothing here can detect it.
//
// standard uses the mean and population standard deviation, minmax the
// minimum and range, robust the median and interquartile range (linear
// interpolation). Missing values are ignored and a zero scale is replaced
// by 1. A nil columns slice fits every numeric column.
func FitScaler(ref *domain.Frame, method string, columns []string) (*ScalerParams, error) {
	const op = "fit scaler"
	if err := checkMethod(op, method); err != nil {
		return nil, err
	}
	if columns == nil {
		columns = ref.FloatColumns()
	}

	p := &ScalerParams{Method: method, Parameters: make(map[string]ColumnParams, len(columns))}
	for _, col := range columns {
		x, ok := ref.Float(col)
		if !ok {
			return nil, domain.ConfigError(op, fmt.Errorf("column %q is not a numeric column", col))
		}
		cp, ok := fitColumn(method, x)
		if !ok {
			p.Skipped = append(p.Skipped, col)
			continue
		}
		p.Columns = append(p.Columns, col)
		p.Parameters[col] = cp
	}
	return p, nil
}

func fitColumn(method string, x []float64) (ColumnParams, bool) {
	var cp ColumnParams
	switch method {
	case MethodStandard:
		mean, std, n := stats.MeanStd(x)
		if n == 0 {
			return cp, false
		}
		cp = ColumnParams{Center: mean, Scale: std}
	case MethodMinMax:
		lo, hi, n := stats.MinMax(x)
		if n == 0 {
			return cp, false
		}
		cp = ColumnParams{Center: lo, Scale: hi - lo}
	case MethodRobust:
		vals := stats.Finite(x)
		if len(vals) == 0 {
			return cp, false
		}
		slices.Sort(vals)
		q1 := stats.Quantile(vals, 0.25)
		q3 := stats.Quantile(vals, 0.75)
		cp = ColumnParams{Center: stats.Quantile(vals, 0.5), Scale: q3 - q1}
	}
	if cp.Scale == 0 {
		cp.Scale = 1
	}
	return cp, true
}

// ApplyScaler returns a copy of f with every fitted column present in f
// transformed. It never re-estimates parameters and is safe on any
// partition.
func ApplyScaler(f *domain.Frame, p *ScalerParams) (*domain.Frame, error) {
	if err := checkMethod("apply scaler", p.Method); err != nil {
		return nil, err
	}
	out := f.Clone()
	for _, col := range p.Columns {
		cp, ok := p.Parameters[col]
		if !ok {
			continue
		}
		x, ok := out.Float(col)
		if !ok {
			continue
		}
		scaled := make([]float64, len(x))
		for i, v := range x {
			scaled[i] = (v - cp.Center) / cp.Scale
		}
		if err := out.SetFloat(col, scaled); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// MarshalScaler encodes p as indented JSON. encoding/json writes the
// shortest representation that parses back to the same float64, so a
// round trip is exact.
func MarshalScaler(p *ScalerParams) ([]byte, error) {
	return json.MarshalIndent(p, "", "  ")
}

// UnmarshalScaler decodes and validates persisted parameters.
func UnmarshalScaler(data []byte) (*ScalerParams, error) {
	var p ScalerParams
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, domain.ConfigError("load scaler", fmt.Errorf("decode: %w", err))
	}
	if err := checkMethod("load scaler", p.Method); err != nil {
		return nil, err
	}
	for _, col := range p.Columns {
		cp, ok := p.Parameters[col]
		if !ok {
			return nil, domain.ConfigError("load scaler", fmt.Errorf("column %q has no parameters", col))
		}
		if cp.Scale == 0 {
			return nil, domain.ConfigError("load scaler", fmt.Errorf("column %q has zero scale", col))
		}
	}
	return &p, nil
}
