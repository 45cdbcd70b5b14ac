// Package derive computes secondary meteorological quantities from canonical
// variables. Every formula is element-wise and NaN in any input yields NaN
// in the output.
package derive

import (
	"fmt"
	"math"

	"github.com/couchcryptid/metdata-etl/internal/domain"
)

// Magnus coefficients for dew point over water.
const (
	magnusA = 17.62
	magnusB = 243.12
)

// Metric names accepted by Apply.
const (
	MetricDewPoint  = "dew_point"
	MetricVPD       = "vpd"
	MetricHeatIndex = "heat_index"
	MetricWindChill = "wind_chill"
)

// DewPointC returns the Magnus dew point in °C. RH is clamped to
// [1e-6, 100] before taking the logarithm.
func DewPointC(tempC, rhPct float64) float64 {
	rh := clamp(rhPct, 1e-6, 100)
	gamma := math.Log(rh/100) + magnusA*tempC/(magnusB+tempC)
	return magnusB * gamma / (magnusA - gamma)
}

// SaturationVaporPressureKPa returns saturation vapour pressure over water.
func SaturationVaporPressureKPa(tempC float64) float64 {
	return 0.6108 * math.Exp(17.27*tempC/(tempC+237.3))
}

// VPDKPa returns the vapour pressure deficit with RH clamped to [0, 100].
func VPDKPa(tempC, rhPct float64) float64 {
	es := SaturationVaporPressureKPa(tempC)
	return es - es*clamp(rhPct, 0, 100)/100
}

// HeatIndexC uses the Rothfusz regression when T >= 80°F and RH >= 40%,
// and the Steadman approximation elsewhere.
func HeatIndexC(tempC, rhPct float64) float64 {
	t := tempC*9/5 + 32
	r := rhPct
	var hi float64
	if t >= 80 && r >= 40 {
		hi = -42.379 +
			2.04901523*t +
			10.14333127*r -
			0.22475541*t*r -
			0.00683783*t*t -
			0.05481717*r*r +
			0.00122874*t*t*r +
			0.00085282*t*r*r -
			0.00000199*t*t*r*r
	} else {
		hi = 0.5 * (t + 61 + (t-68)*1.2 + r*0.094)
	}
	return (hi - 32) * 5 / 9
}

// WindChillC is the Environment Canada wind chill index. Wind speed is
// converted to km/h and negative speeds are treated as calm.
func WindChillC(tempC, wspdMs float64) float64 {
	v := math.Max(wspdMs*3.6, 0)
	p := math.Pow(v, 0.16)
	return 13.12 + 0.6215*tempC - 11.37*p + 0.3965*tempC*p
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}

// Map2 applies fn element-wise over two equal-length columns.
func Map2(a, b []float64, fn func(x, y float64) float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		out[i] = fn(a[i], b[i])
	}
	return out
}

type metric struct {
	column string
	inputs [2]string
	fn     func(x, y float64) float64
}

var metrics = map[string]metric{
	MetricDewPoint:  {domain.VarDewPoint, [2]string{domain.VarTemp, domain.VarRH}, DewPointC},
	MetricVPD:       {domain.VarVPD, [2]string{domain.VarTemp, domain.VarRH}, VPDKPa},
	MetricHeatIndex: {domain.VarHeatIndex, [2]string{domain.VarTemp, domain.VarRH}, HeatIndexC},
	MetricWindChill: {domain.VarWindChill, [2]string{domain.VarTemp, domain.VarWspd}, WindChillC},
}

// All lists every supported metric name.
func All() []string {
	return []string{MetricDewPoint, MetricVPD, MetricHeatIndex, MetricWindChill}
}

// Apply adds the requested derived columns to f. A metric whose inputs are
// absent is skipped and reported in skipped. Unknown names are rejected
// before anything is written.
func Apply(f *domain.Frame, names []string) (added, skipped []string, err error) {
	for _, name := range names {
		if _, ok := metrics[name]; !ok {
			return nil, nil, domain.ConfigError("derive", fmt.Errorf("%w: %q", domain.ErrUnknownMetric, name))
		}
	}
	for _, name := range names {
		m := metrics[name]
		if !f.HasAll(m.inputs[0], m.inputs[1]) {
			skipped = append(skipped, name)
			continue
		}
		a, _ := f.Float(m.inputs[0])
		b, _ := f.Float(m.inputs[1])
		if err := f.SetFloat(m.column, Map2(a, b, m.fn)); err != nil {
			return added, skipped, err
		}
		added = append(added, m.column)
	}
	return added, skipped, nil
}
