package domain

import (
	"fmt"
	"slices"
	"strings"
)

// Canonical observed variables.
const (
	VarTemp  = "temp_c"
	VarRH    = "rh_pct"
	VarPres  = "pres_hpa"
	VarWspd  = "wspd_ms"
	VarWdir  = "wdir_deg"
	VarGust  = "gust_ms"
	VarRain  = "rain_mm"
	VarSolar = "solar_wm2"
	VarUV    = "uv_index"
)

// Derived variables.
const (
	VarDewPoint  = "dew_point_c"
	VarVPD       = "vpd_kpa"
	VarHeatIndex = "heat_index_c"
	VarWindChill = "wind_chill_c"
)

// Flag and marker columns.
const (
	FlagConsistency = "qc_consistency"
	FlagAny         = "qc_any"
	ColGap          = "gap"
	IndexName       = "ts_utc"
)

const qcPrefix = "qc_"

// RangeFlag names the range-check column for a variable.
func RangeFlag(v string) string { return qcPrefix + v + "_range" }

// SpikeFlag names the spike-check column for a variable.
func SpikeFlag(v string) string { return qcPrefix + v + "_spike" }

// FlatlineFlag names the flatline-check column for a variable.
func FlatlineFlag(v string) string { return qcPrefix + v + "_flatline" }

// IsQCFlag reports whether a column name is a QC flag.
func IsQCFlag(name string) bool { return strings.HasPrefix(name, qcPrefix) }

// Agg is a resampling aggregation policy.
type Agg string

const (
	AggMean         Agg = "mean"
	AggSum          Agg = "sum"
	AggMin          Agg = "min"
	AggMax          Agg = "max"
	AggMedian       Agg = "median"
	AggFirst        Agg = "first"
	AggLast         Agg = "last"
	AggCircularMean Agg = "circmean"
	AggAny          Agg = "any"
)

// Valid reports whether a is a known policy.
func (a Agg) Valid() bool {
	switch a {
	case AggMean, AggSum, AggMin, AggMax, AggMedian, AggFirst, AggLast, AggCircularMean, AggAny:
		return true
	}
	return false
}

// Bounds is an inclusive plausible range; values strictly outside are flagged.
type Bounds struct {
	Lo float64 `yaml:"lo" json:"lo"`
	Hi float64 `yaml:"hi" json:"hi"`
}

// Variable describes one canonical or derived column.
type Variable struct {
	Name         string
	Units        string
	StandardName string
	LongName     string
	Bounds       *Bounds
	Agg          Agg
	Spike        bool
	Flatline     bool
	Derived      bool
}

// SpikeConfig parameterizes the rolling median/MAD spike check.
type SpikeConfig struct {
	Window     int
	MinPeriods int
	Threshold  float64
	Epsilon    float64
}

// FlatlineConfig parameterizes the rolling variance flatline check.
type FlatlineConfig struct {
	Window     int
	MinPeriods int
	Tolerance  float64
}

// ConsistencyConfig parameterizes cross-variable checks. Tolerance is added
// to the right-hand side of every inequality.
type ConsistencyConfig struct {
	CalmThreshold float64
	Tolerance     float64
}

// UnitPolicy decides what happens to a declared unit with no converter.
type UnitPolicy string

const (
	// UnitPolicyWarn leaves the column unconverted and reports a warning.
	UnitPolicyWarn UnitPolicy = "warn"
	// UnitPolicyStrict fails normalization with ErrUnknownUnit.
	UnitPolicyStrict UnitPolicy = "strict"
)

// Registry is the explicit configuration object for the QC, derivation and
// normalization stages.
type Registry struct {
	Variables   []Variable
	Spike       SpikeConfig
	Flatline    FlatlineConfig
	Consistency ConsistencyConfig
	UnitPolicy  UnitPolicy
}

// DefaultRegistry returns the stock configuration. Each call returns an
// independent value.
func DefaultRegistry() *Registry {
	return &Registry{
		Variables: []Variable{
			{Name: VarTemp, Units: "degC", StandardName: "air_temperature", LongName: "Air temperature", Bounds: &Bounds{-40, 50}, Agg: AggMean, Spike: true, Flatline: true},
			{Name: VarRH, Units: "%", StandardName: "relative_humidity", LongName: "Relative humidity", Bounds: &Bounds{0, 100}, Agg: AggMean, Spike: true, Flatline: true},
			{Name: VarPres, Units: "hPa", StandardName: "air_pressure", LongName: "Station pressure", Bounds: &Bounds{870, 1085}, Agg: AggMean, Spike: true, Flatline: true},
			{Name: VarWspd, Units: "m s-1", StandardName: "wind_speed", LongName: "Wind speed", Bounds: &Bounds{0, 75}, Agg: AggMean, Spike: true, Flatline: true},
			{Name: VarWdir, Units: "degree", StandardName: "wind_from_direction", LongName: "Wind direction", Bounds: &Bounds{0, 360}, Agg: AggCircularMean},
			{Name: VarGust, Units: "m s-1", StandardName: "wind_speed_of_gust", LongName: "Wind gust", Bounds: &Bounds{0, 100}, Agg: AggMax, Spike: true},
			{Name: VarRain, Units: "mm", StandardName: "thickness_of_rainfall_amount", LongName: "Rainfall per interval", Bounds: &Bounds{0, 500}, Agg: AggSum},
			{Name: VarSolar, Units: "W m-2", StandardName: "surface_downwelling_shortwave_flux_in_air", LongName: "Solar irradiance", Bounds: &Bounds{0, 1400}, Agg: AggMean},
			{Name: VarUV, Units: "1", StandardName: "ultraviolet_index", LongName: "UV index", Bounds: &Bounds{0, 20}, Agg: AggMean},
			{Name: VarDewPoint, Units: "degC", StandardName: "dew_point_temperature", LongName: "Dew point", Agg: AggMean, Derived: true},
			{Name: VarVPD, Units: "kPa", StandardName: "water_vapor_saturation_deficit_in_air", LongName: "Vapour pressure deficit", Agg: AggMean, Derived: true},
			{Name: VarHeatIndex, Units: "degC", StandardName: "heat_index_of_air_temperature", LongName: "Heat index", Agg: AggMean, Derived: true},
			{Name: VarWindChill, Units: "degC", StandardName: "wind_chill_of_air_temperature", LongName: "Wind chill", Agg: AggMean, Derived: true},
		},
		Spike:       SpikeConfig{Window: 9, MinPeriods: 3, Threshold: 6.0, Epsilon: 1e-9},
		Flatline:    FlatlineConfig{Window: 5, MinPeriods: 3, Tolerance: 0.0},
		Consistency: ConsistencyConfig{CalmThreshold: 0.2},
		UnitPolicy:  UnitPolicyWarn,
	}
}

// Clone returns a deep copy.
func (r *Registry) Clone() *Registry {
	out := *r
	out.Variables = make([]Variable, len(r.Variables))
	for i, v := range r.Variables {
		if v.Bounds != nil {
			b := *v.Bounds
			v.Bounds = &b
		}
		out.Variables[i] = v
	}
	return &out
}

// Lookup finds a variable by column name.
func (r *Registry) Lookup(name string) (Variable, bool) {
	i := slices.IndexFunc(r.Variables, func(v Variable) bool { return v.Name == name })
	if i < 0 {
		return Variable{}, false
	}
	return r.Variables[i], true
}

// IsCanonical reports whether name is an observed (non-derived) variable.
func (r *Registry) IsCanonical(name string) bool {
	v, ok := r.Lookup(name)
	return ok && !v.Derived
}

// Canonical returns the observed variable names in registry order.
func (r *Registry) Canonical() []string {
	var out []string
	for _, v := range r.Variables {
		if !v.Derived {
			out = append(out, v.Name)
		}
	}
	return out
}

// AggFor returns the aggregation policy for a column: flags and the gap
// marker use AggAny, unknown numeric columns fall back to AggMean.
func (r *Registry) AggFor(name string) Agg {
	if IsQCFlag(name) || name == ColGap {
		return AggAny
	}
	if v, ok := r.Lookup(name); ok && v.Agg != "" {
		return v.Agg
	}
	return AggMean
}

// SetBounds overrides the plausible range for a registered variable.
func (r *Registry) SetBounds(name string, lo, hi float64) error {
	if lo > hi {
		return ConfigError("set bounds", fmt.Errorf("%s: lower bound %g above upper bound %g", name, lo, hi))
	}
	i := slices.IndexFunc(r.Variables, func(v Variable) bool { return v.Name == name })
	if i < 0 {
		return ConfigError("set bounds", fmt.Errorf("unknown variable %q", name))
	}
	r.Variables[i].Bounds = &Bounds{Lo: lo, Hi: hi}
	return nil
}

// SetAgg overrides the aggregation policy for a registered variable.
func (r *Registry) SetAgg(name string, agg Agg) error {
	if !agg.Valid() {
		return ConfigError("set aggregation", fmt.Errorf("%s: unknown policy %q", name, agg))
	}
	i := slices.IndexFunc(r.Variables, func(v Variable) bool { return v.Name == name })
	if i < 0 {
		return ConfigError("set aggregation", fmt.Errorf("unknown variable %q", name))
	}
	r.Variables[i].Agg = agg
	return nil
}

// Validate checks window parameters and policies.
func (r *Registry) Validate() error {
	if r.Spike.Window < 1 || r.Spike.MinPeriods < 1 || r.Spike.MinPeriods > r.Spike.Window {
		return ConfigError("validate registry", fmt.Errorf("spike window %d / min periods %d", r.Spike.Window, r.Spike.MinPeriods))
	}
	if r.Flatline.Window < 2 || r.Flatline.MinPeriods < 2 || r.Flatline.MinPeriods > r.Flatline.Window {
		return ConfigError("validate registry", fmt.Errorf("flatline window %d / min periods %d", r.Flatline.Window, r.Flatline.MinPeriods))
	}
	if r.Spike.Threshold <= 0 {
		return ConfigError("validate registry", fmt.Errorf("spike threshold %g must be positive", r.Spike.Threshold))
	}
	switch r.UnitPolicy {
	case UnitPolicyWarn, UnitPolicyStrict:
	default:
		return ConfigError("validate registry", fmt.Errorf("unit policy %q", r.UnitPolicy))
	}
	for _, v := range r.Variables {
		if v.Agg != "" && !v.Agg.Valid() {
			return ConfigError("validate registry", fmt.Errorf("%s: unknown aggregation %q", v.Name, v.Agg))
		}
	}
	return nil
}
