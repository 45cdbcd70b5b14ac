package units

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/couchcryptid/metdata-etl/internal/domain"
)

func TestConversions(t *testing.T) {
	tests := []struct {
		name string
		conv Converter
		in   float64
		want float64
	}{
		{"freezing", FahrenheitToC, 32, 0},
		{"boiling", FahrenheitToC, 212, 100},
		{"kelvin", KelvinToC, 273.15, 0},
		{"kmh", KmhToMs, 36, 10},
		{"mph", MphToMs, 10, 4.4704},
		{"knots", KnotsToMs, 1, 0.514444},
		{"pascal", PaToHPa, 101325, 1013.25},
		{"kilopascal", KPaToHPa, 101.325, 1013.25},
		{"inches of mercury", InHgToHPa, 29.92, 1013.207},
		{"inches", InchesToMm, 1, 25.4},
		{"centimetres", CmToMm, 2.5, 25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tt.conv(tt.in), 1e-3)
		})
	}

	assert.Equal(t, 0.0, FahrenheitToC(32.0))
	assert.Equal(t, 100.0, FahrenheitToC(212.0))
	assert.Equal(t, 10.0, KmhToMs(36.0))
}

func TestForVariable(t *testing.T) {
	tests := []struct {
		variable string
		unit     string
		want     Resolution
	}{
		{domain.VarTemp, "°F", Converted},
		{domain.VarTemp, " DegF ", Converted},
		{domain.VarTemp, "C", Converted},
		{domain.VarWspd, "kph", Converted},
		{domain.VarGust, "knots", Converted},
		{domain.VarPres, "mb", Converted},
		{domain.VarRain, "in", Converted},
		{domain.VarTemp, "rankine", Unknown},
		{domain.VarTemp, "", NoConversion},
		{domain.VarRH, "%", NoConversion},
		{domain.VarWdir, "deg", NoConversion},
	}
	for _, tt := range tests {
		t.Run(tt.variable+"/"+tt.unit, func(t *testing.T) {
			_, got := ForVariable(tt.variable, tt.unit)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCanonicalUnitsAreIdentity(t *testing.T) {
	in := []float64{-12.5, 0, 3.25, math.NaN(), 1013.25}
	for variable, unit := range map[string]string{
		domain.VarTemp: "degC",
		domain.VarWspd: "m/s",
		domain.VarPres: "hPa",
		domain.VarRain: "mm",
	} {
		conv, res := ForVariable(variable, unit)
		assert.Equal(t, Converted, res)
		out := Apply(in, conv)
		again := Apply(out, conv)
		for i := range in {
			if math.IsNaN(in[i]) {
				assert.True(t, math.IsNaN(again[i]))
				continue
			}
			assert.Equal(t, in[i], again[i], variable)
		}
	}
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	in := []float64{32, 212}
	out := Apply(in, FahrenheitToC)
	assert.Equal(t, []float64{32, 212}, in)
	assert.Equal(t, []float64{0, 100}, out)
}
