// Package units converts raw physical units into the canonical unit of each
// variable family. All conversions are pure; canonical units resolve to the
// identity so applying a conversion twice is harmless.
package units

import (
	"math"
	"strings"

	"github.com/couchcryptid/metdata-etl/internal/domain"
)

// Family groups variables that share a canonical unit.
type Family string

const (
	Temperature   Family = "temperature"   // degC
	Speed         Family = "speed"         // m/s
	Pressure      Family = "pressure"      // hPa
	Precipitation Family = "precipitation" // mm
)

// Converter maps one raw value to its canonical unit.
type Converter func(float64) float64

func FahrenheitToC(f float64) float64 { return (f - 32) * 5 / 9 }
func KelvinToC(k float64) float64     { return k - 273.15 }
func KmhToMs(v float64) float64       { return v / 3.6 }
func MphToMs(v float64) float64       { return v * 0.44704 }
func KnotsToMs(v float64) float64     { return v * 0.514444 }
func PaToHPa(p float64) float64       { return p / 100 }
func KPaToHPa(p float64) float64      { return p * 10 }
func InHgToHPa(p float64) float64     { return p * 33.8638866667 }
func InchesToMm(r float64) float64    { return r * 25.4 }
func CmToMm(r float64) float64        { return r * 10 }

func identity(v float64) float64 { return v }

var families = map[string]Family{
	domain.VarTemp: Temperature,
	domain.VarWspd: Speed,
	domain.VarGust: Speed,
	domain.VarPres: Pressure,
	domain.VarRain: Precipitation,
}

var converters = map[Family]map[string]Converter{
	Temperature: {
		"c": identity, "°c": identity, "degc": identity, "celsius": identity,
		"f": FahrenheitToC, "°f": FahrenheitToC, "degf": FahrenheitToC, "fahrenheit": FahrenheitToC,
		"k": KelvinToC, "kelvin": KelvinToC,
	},
	Speed: {
		"m/s": identity, "ms": identity, "mps": identity, "m s-1": identity,
		"km/h": KmhToMs, "kmh": KmhToMs, "kph": KmhToMs,
		"mph": MphToMs,
		"kn":  KnotsToMs, "kt": KnotsToMs, "knots": KnotsToMs,
	},
	Pressure: {
		"hpa": identity, "mbar": identity, "mb": identity,
		"pa":   PaToHPa,
		"kpa":  KPaToHPa,
		"inhg": InHgToHPa,
	},
	Precipitation: {
		"mm": identity,
		"in": InchesToMm, "inch": InchesToMm, "inches": InchesToMm,
		"cm": CmToMm,
	},
}

// FamilyOf returns the unit family of a canonical variable. Variables without
// a family (direction, humidity, irradiance) are never converted.
func FamilyOf(variable string) (Family, bool) {
	f, ok := families[variable]
	return f, ok
}

// Lookup resolves a unit string within a family. Matching ignores case and
// surrounding whitespace.
func Lookup(family Family, unit string) (Converter, bool) {
	conv, ok := converters[family][strings.ToLower(strings.TrimSpace(unit))]
	return conv, ok
}

// Resolution is the outcome of resolving a declared unit for a variable.
type Resolution int

const (
	// NoConversion: the variable has no unit family or no unit was declared.
	NoConversion Resolution = iota
	// Converted: a converter was found.
	Converted
	// Unknown: the family exists but the unit string is not recognized.
	Unknown
)

// ForVariable resolves the converter for a variable and declared unit.
func ForVariable(variable, unit string) (Converter, Resolution) {
	fam, ok := FamilyOf(variable)
	if !ok || strings.TrimSpace(unit) == "" {
		return nil, NoConversion
	}
	conv, ok := Lookup(fam, unit)
	if !ok {
		return nil, Unknown
	}
	return conv, Converted
}

// Apply converts every element into a new slice. NaN stays NaN.
func Apply(values []float64, conv Converter) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		if math.IsNaN(v) {
			out[i] = v
			continue
		}
		out[i] = conv(v)
	}
	return out
}
