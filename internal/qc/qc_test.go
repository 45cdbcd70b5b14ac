package qc

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/metdata-etl/internal/derive"
	"github.com/couchcryptid/metdata-etl/internal/domain"
)

var nan = math.NaN()

func frameOf(t *testing.T, cols map[string][]float64) *domain.Frame {
	t.Helper()
	n := -1
	for name, v := range cols {
		if n >= 0 && len(v) != n {
			t.Fatalf("column %s has %d rows, want %d", name, len(v), n)
		}
		n = len(v)
	}
	idx := make([]time.Time, n)
	for i := range idx {
		idx[i] = time.Date(2024, 3, 1, 0, 10*i, 0, 0, time.UTC)
	}
	f := domain.NewFrame(idx)
	for _, v := range domain.DefaultRegistry().Variables {
		if col, ok := cols[v.Name]; ok {
			require.NoError(t, f.SetFloat(v.Name, col))
		}
	}
	return f
}

func flag(t *testing.T, f *domain.Frame, name string) []bool {
	t.Helper()
	col, ok := f.Flag(name)
	require.True(t, ok, "missing flag column %s", name)
	return col
}

func TestRange(t *testing.T) {
	f := frameOf(t, map[string][]float64{
		domain.VarTemp: {-50, 20, 60},
		domain.VarRH:   {10, 200, -1},
	})
	written, err := Range(f, domain.DefaultRegistry())
	require.NoError(t, err)

	assert.Equal(t, []string{"qc_temp_c_range", "qc_rh_pct_range"}, written)
	assert.Equal(t, []bool{true, false, true}, flag(t, f, "qc_temp_c_range"))
	assert.Equal(t, []bool{false, true, true}, flag(t, f, "qc_rh_pct_range"))
	assert.False(t, f.Has(domain.RangeFlag(domain.VarPres)), "absent variables are skipped")

	t.Run("boundaries and missing values pass", func(t *testing.T) {
		f := frameOf(t, map[string][]float64{domain.VarTemp: {-40, 50, nan, -40.0001, 50.0001}})
		_, err := Range(f, domain.DefaultRegistry())
		require.NoError(t, err)
		assert.Equal(t, []bool{false, false, false, true, true}, flag(t, f, "qc_temp_c_range"))
	})

	t.Run("custom bounds", func(t *testing.T) {
		reg := domain.DefaultRegistry()
		require.NoError(t, reg.SetBounds(domain.VarTemp, 0, 10))
		f := frameOf(t, map[string][]float64{domain.VarTemp: {-1, 5, 11}})
		_, err := Range(f, reg)
		require.NoError(t, err)
		assert.Equal(t, []bool{true, false, true}, flag(t, f, "qc_temp_c_range"))
	})
}

func TestSpike(t *testing.T) {
	x := make([]float64, 21)
	for i := range x {
		x[i] = 20 + 0.1*float64(i%3)
	}
	x[10] = 35

	f := frameOf(t, map[string][]float64{domain.VarTemp: x})
	written, err := Spike(context.Background(), f, domain.DefaultRegistry())
	require.NoError(t, err)
	assert.Equal(t, []string{"qc_temp_c_spike"}, written)

	got := flag(t, f, "qc_temp_c_spike")
	assert.True(t, got[10])
	count := 0
	for _, b := range got {
		if b {
			count++
		}
	}
	assert.Equal(t, 1, count)

	t.Run("insufficient support is not flagged", func(t *testing.T) {
		got := SpikeFlags([]float64{20, 90}, domain.DefaultRegistry().Spike)
		assert.Equal(t, []bool{false, false}, got)
	})

	t.Run("missing values are not flagged", func(t *testing.T) {
		y := append([]float64(nil), x...)
		y[10] = nan
		got := SpikeFlags(y, domain.DefaultRegistry().Spike)
		assert.NotContains(t, got, true)
	})

	t.Run("perfectly flat window", func(t *testing.T) {
		got := SpikeFlags([]float64{5, 5, 5, 5, 5, 5, 5}, domain.DefaultRegistry().Spike)
		assert.NotContains(t, got, true)
	})
}

func TestFlatline(t *testing.T) {
	cfg := domain.DefaultRegistry().Flatline

	t.Run("exact repetition", func(t *testing.T) {
		got := FlatlineFlags([]float64{1, 2, 5, 5, 5, 5, 5, 5, 5, 8, 9}, cfg)
		assert.Equal(t, []bool{false, false, false, false, true, true, true, false, false, false, false}, got)
	})

	t.Run("short series is not flat", func(t *testing.T) {
		assert.Equal(t, []bool{false, false}, FlatlineFlags([]float64{7, 7}, cfg))
	})

	t.Run("missing row is not flagged", func(t *testing.T) {
		got := FlatlineFlags([]float64{1, 2, 5, 5, 5, nan, 5, 5, 5, 8, 9}, cfg)
		assert.False(t, got[5])
		assert.True(t, got[4])
	})

	t.Run("tolerance", func(t *testing.T) {
		tol := cfg
		tol.Tolerance = 0.01
		got := FlatlineFlags([]float64{5, 5.01, 5, 5.01, 5}, tol)
		assert.Equal(t, []bool{true, true, true, true, true}, got)
	})

	t.Run("registered variables only", func(t *testing.T) {
		f := frameOf(t, map[string][]float64{
			domain.VarPres: {1000, 1000, 1000, 1000, 1000},
			domain.VarRain: {0, 0, 0, 0, 0},
		})
		written, err := Flatline(context.Background(), f, domain.DefaultRegistry())
		require.NoError(t, err)
		assert.Equal(t, []string{"qc_pres_hpa_flatline"}, written)
		assert.Equal(t, []bool{true, true, true, true, true}, flag(t, f, "qc_pres_hpa_flatline"))
	})
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := frameOf(t, map[string][]float64{domain.VarTemp: {1, 2, 3}})
	_, err := Spike(ctx, f, domain.DefaultRegistry())
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, f.Has(domain.SpikeFlag(domain.VarTemp)))
}

func TestConsistency(t *testing.T) {
	f := frameOf(t, map[string][]float64{
		domain.VarTemp:      {20, 20, nan, 20, 20, 20},
		domain.VarDewPoint:  {10, 21, 30, 10, 10, 10},
		domain.VarHeatIndex: {20, 20, 20, 19, 20, 20},
		domain.VarWspd:      {3, 3, 3, 3, 0.1, 0.1},
		domain.VarWdir:      {90, 90, 90, 90, 180, nan},
	})
	applied, err := Consistency(f, domain.DefaultRegistry())
	require.NoError(t, err)
	require.True(t, applied)
	assert.Equal(t, []bool{false, true, false, true, true, false}, flag(t, f, domain.FlagConsistency))

	t.Run("tolerance", func(t *testing.T) {
		reg := domain.DefaultRegistry()
		reg.Consistency.Tolerance = 2
		f := frameOf(t, map[string][]float64{
			domain.VarTemp:     {20, 20},
			domain.VarDewPoint: {21, 23},
		})
		_, err := Consistency(f, reg)
		require.NoError(t, err)
		assert.Equal(t, []bool{false, true}, flag(t, f, domain.FlagConsistency))
	})

	t.Run("mild readings under the Steadman heat index", func(t *testing.T) {
		hi := derive.HeatIndexC(20, 50)
		require.InDelta(t, 19.36, hi, 0.01)
		f := frameOf(t, map[string][]float64{
			domain.VarTemp:      {20},
			domain.VarHeatIndex: {hi},
		})
		_, err := Consistency(f, domain.DefaultRegistry())
		require.NoError(t, err)
		assert.Equal(t, []bool{true}, flag(t, f, domain.FlagConsistency), "heat index below temperature is flagged at zero tolerance")

		reg := domain.DefaultRegistry()
		reg.Consistency.Tolerance = 1
		_, err = Consistency(f, reg)
		require.NoError(t, err)
		assert.Equal(t, []bool{false}, flag(t, f, domain.FlagConsistency))
	})

	t.Run("no applicable rule", func(t *testing.T) {
		f := frameOf(t, map[string][]float64{domain.VarTemp: {20}})
		applied, err := Consistency(f, domain.DefaultRegistry())
		require.NoError(t, err)
		assert.False(t, applied)
		assert.False(t, f.Has(domain.FlagConsistency))
	})
}

func TestAnyAndSummarize(t *testing.T) {
	f := frameOf(t, map[string][]float64{
		domain.VarTemp: {-50, 20, 20},
		domain.VarRH:   {50, 200, 50},
	})
	require.NoError(t, f.SetFlag(domain.ColGap, []bool{false, false, true}))
	_, err := Range(f, domain.DefaultRegistry())
	require.NoError(t, err)
	require.NoError(t, Any(f))

	assert.Equal(t, []bool{true, true, false}, flag(t, f, domain.FlagAny), "gap marker is not a qc flag")

	require.NoError(t, Any(f))
	assert.Equal(t, []bool{true, true, false}, flag(t, f, domain.FlagAny), "recomputing ignores the previous aggregate")

	r := Summarize(f)
	assert.Equal(t, 3, r.Rows)
	assert.Equal(t, 1, r.Gaps)
	assert.Equal(t, map[string]int{"qc_temp_c_range": 1, "qc_rh_pct_range": 1, "qc_any": 2}, r.Flags)
	assert.Equal(t, 2, r.Flagged())
}
