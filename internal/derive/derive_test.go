package derive

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/metdata-etl/internal/domain"
)

func TestFormulas(t *testing.T) {
	assert.InDelta(t, 9.26, DewPointC(20, 50), 0.05)
	assert.InDelta(t, 0.6108, SaturationVaporPressureKPa(0), 1e-9)
	assert.InDelta(t, 2.338, VPDKPa(20, 0), 1e-3)
	assert.InDelta(t, 0, VPDKPa(20, 100), 1e-12)
	assert.InDelta(t, 0, VPDKPa(20, 140), 1e-12, "rh above 100 is clamped")

	t.Run("heat index below the regression domain", func(t *testing.T) {
		assert.InDelta(t, 19.361, HeatIndexC(20, 50), 1e-3)
	})
	t.Run("heat index inside the regression domain", func(t *testing.T) {
		assert.InDelta(t, 40.41, HeatIndexC(32, 70), 0.05)
	})
	t.Run("wind chill", func(t *testing.T) {
		assert.InDelta(t, -17.45, WindChillC(-10, 5), 0.05)
		assert.InDelta(t, 13.12+0.6215*-5, WindChillC(-5, -3), 1e-12, "negative speed is calm")
	})
}

func TestDewPointNeverExceedsTemperature(t *testing.T) {
	for temp := -30.0; temp <= 45; temp += 2.5 {
		for rh := 1.0; rh <= 100; rh += 3 {
			assert.LessOrEqual(t, DewPointC(temp, rh), temp+1e-9, "T=%g RH=%g", temp, rh)
		}
		assert.InDelta(t, temp, DewPointC(temp, 100), 1e-9)
	}
}

func TestNaNPropagates(t *testing.T) {
	nan := math.NaN()
	for name, fn := range map[string]func(float64, float64) float64{
		"dew point":  DewPointC,
		"vpd":        VPDKPa,
		"heat index": HeatIndexC,
		"wind chill": WindChillC,
	} {
		t.Run(name, func(t *testing.T) {
			assert.True(t, math.IsNaN(fn(nan, 50)))
			assert.True(t, math.IsNaN(fn(20, nan)))
		})
	}
}

func testFrame(t *testing.T, cols map[string][]float64) *domain.Frame {
	t.Helper()
	n := 0
	for _, v := range cols {
		n = len(v)
	}
	idx := make([]time.Time, n)
	for i := range idx {
		idx[i] = time.Date(2024, 7, 1, i, 0, 0, 0, time.UTC)
	}
	f := domain.NewFrame(idx)
	for _, name := range []string{domain.VarTemp, domain.VarRH, domain.VarWspd} {
		if v, ok := cols[name]; ok {
			require.NoError(t, f.SetFloat(name, v))
		}
	}
	return f
}

func TestApply(t *testing.T) {
	t.Run("adds requested metrics", func(t *testing.T) {
		f := testFrame(t, map[string][]float64{
			domain.VarTemp: {20, 25, math.NaN()},
			domain.VarRH:   {50, 60, 70},
			domain.VarWspd: {1, 2, 3},
		})
		added, skipped, err := Apply(f, All())
		require.NoError(t, err)
		assert.Empty(t, skipped)
		assert.Equal(t, []string{domain.VarDewPoint, domain.VarVPD, domain.VarHeatIndex, domain.VarWindChill}, added)

		td, _ := f.Float(domain.VarDewPoint)
		assert.InDelta(t, DewPointC(25, 60), td[1], 1e-12)
		assert.True(t, math.IsNaN(td[2]))
	})

	t.Run("skips metrics with absent inputs", func(t *testing.T) {
		f := testFrame(t, map[string][]float64{domain.VarTemp: {20, 25}})
		added, skipped, err := Apply(f, []string{MetricDewPoint, MetricWindChill})
		require.NoError(t, err)
		assert.Empty(t, added)
		assert.Equal(t, []string{MetricDewPoint, MetricWindChill}, skipped)
		assert.False(t, f.Has(domain.VarDewPoint))
	})

	t.Run("unknown metric is a configuration error", func(t *testing.T) {
		f := testFrame(t, map[string][]float64{domain.VarTemp: {20}, domain.VarRH: {50}})
		_, _, err := Apply(f, []string{MetricDewPoint, "humidex"})
		require.ErrorIs(t, err, domain.ErrConfig)
		require.ErrorIs(t, err, domain.ErrUnknownMetric)
		assert.False(t, f.Has(domain.VarDewPoint), "nothing written on error")
	})
}
