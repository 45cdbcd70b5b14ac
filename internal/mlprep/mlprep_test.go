package mlprep

import (
	"math"
	"slices"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/metdata-etl/internal/domain"
)

var nan = math.NaN()

func hourly(n int) []time.Time {
	out := make([]time.Time, n)
	for i := range out {
		out[i] = time.Date(2024, 5, 1, i, 0, 0, 0, time.UTC)
	}
	return out
}

func newFrame(t *testing.T, n int, cols map[string][]float64, order ...string) *domain.Frame {
	t.Helper()
	f := domain.NewFrame(hourly(n))
	for _, name := range order {
		require.NoError(t, f.SetFloat(name, cols[name]))
	}
	return f
}

func col(t *testing.T, f *domain.Frame, name string) []float64 {
	t.Helper()
	v, ok := f.Float(name)
	require.True(t, ok, "missing column %s", name)
	return v
}

func TestMakeSupervised(t *testing.T) {
	f := newFrame(t, 5, map[string][]float64{
		domain.VarTemp: {1, 2, 3, 4, 5},
		domain.VarRH:   {10, 20, 30, 40, 50},
	}, domain.VarTemp, domain.VarRH)
	require.NoError(t, f.SetFlag(domain.ColGap, make([]bool, 5)))

	out, err := MakeSupervised(f, []string{domain.VarTemp, "absent"}, []int{1, 2}, []int{1}, true)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"temp_c", "rh_pct", "gap",
		"temp_c_lag1", "rh_pct_lag1",
		"temp_c_lag2", "rh_pct_lag2",
		"temp_c_t+1",
	}, out.Columns())
	assert.Equal(t, hourly(5)[2:4], out.Index())
	assert.Equal(t, []float64{3, 4}, col(t, out, "temp_c"))
	assert.Equal(t, []float64{2, 3}, col(t, out, "temp_c_lag1"))
	assert.Equal(t, []float64{1, 2}, col(t, out, "temp_c_lag2"))
	assert.Equal(t, []float64{20, 30}, col(t, out, "rh_pct_lag1"))
	assert.Equal(t, []float64{4, 5}, col(t, out, "temp_c_t+1"))

	t.Run("result is independent of the source", func(t *testing.T) {
		col(t, out, "temp_c")[0] = 99
		assert.Equal(t, 3.0, col(t, f, "temp_c")[2])
		assert.False(t, f.Has("temp_c_lag1"))
	})

	t.Run("keep incomplete rows", func(t *testing.T) {
		out, err := MakeSupervised(f, []string{domain.VarTemp}, []int{1}, []int{2}, false)
		require.NoError(t, err)
		assert.Equal(t, 5, out.Len())
		lag := col(t, out, "temp_c_lag1")
		assert.True(t, math.IsNaN(lag[0]))
		target := col(t, out, "temp_c_t+2")
		assert.True(t, math.IsNaN(target[3]))
		assert.True(t, math.IsNaN(target[4]))
	})

	t.Run("missing observations are dropped in strict mode", func(t *testing.T) {
		g := newFrame(t, 5, map[string][]float64{domain.VarTemp: {1, 2, nan, 4, 5}}, domain.VarTemp)
		out, err := MakeSupervised(g, nil, []int{1}, nil, true)
		require.NoError(t, err)
		assert.Equal(t, []float64{2, 5}, col(t, out, "temp_c"))
	})

	t.Run("invalid lag or horizon", func(t *testing.T) {
		_, err := MakeSupervised(f, nil, []int{0}, nil, true)
		require.ErrorIs(t, err, domain.ErrConfig)
		_, err = MakeSupervised(f, []string{domain.VarTemp}, nil, []int{-1}, true)
		require.ErrorIs(t, err, domain.ErrConfig)
	})
}

func TestTimeSplit(t *testing.T) {
	f := newFrame(t, 10, map[string][]float64{domain.VarTemp: {0, 1, 2, 3, 4, 5, 6, 7, 8, 9}}, domain.VarTemp)
	idx := hourly(10)

	t.Run("three way", func(t *testing.T) {
		valEnd := idx[7]
		s, err := TimeSplit(f, idx[5], &valEnd)
		require.NoError(t, err)
		assert.Equal(t, 6, s.Train.Len())
		assert.Equal(t, 2, s.Val.Len())
		assert.Equal(t, 2, s.Test.Len())

		all := slices.Concat(s.Train.Index(), s.Val.Index(), s.Test.Index())
		slices.SortFunc(all, func(a, b time.Time) int { return a.Compare(b) })
		if diff := cmp.Diff(idx, all); diff != "" {
			t.Errorf("partitions do not cover the frame exactly (-want +got):\n%s", diff)
		}
		assert.Equal(t, []float64{6, 7}, col(t, s.Val, domain.VarTemp))
	})

	t.Run("two way", func(t *testing.T) {
		s, err := TimeSplit(f, idx[5], nil)
		require.NoError(t, err)
		assert.Equal(t, 6, s.Train.Len())
		assert.Zero(t, s.Val.Len())
		assert.Equal(t, []float64{6, 7, 8, 9}, col(t, s.Test, domain.VarTemp))
	})

	t.Run("boundaries between rows", func(t *testing.T) {
		s, err := TimeSplit(f, idx[2].Add(30*time.Minute), nil)
		require.NoError(t, err)
		assert.Equal(t, 3, s.Train.Len())
		assert.Equal(t, 7, s.Test.Len())
	})

	t.Run("validation end before train end", func(t *testing.T) {
		valEnd := idx[1]
		_, err := TimeSplit(f, idx[5], &valEnd)
		require.ErrorIs(t, err, domain.ErrConfig)
	})
}

func TestFitScaler(t *testing.T) {
	f := newFrame(t, 4, map[string][]float64{
		"a":     {1, 2, 3, 4},
		"b":     {2, 4, 6, nan},
		"const": {7, 7, 7, 7},
		"empty": {nan, nan, nan, nan},
	}, "a", "b", "const", "empty")

	tests := []struct {
		method string
		a, b   ColumnParams
	}{
		{MethodStandard, ColumnParams{2.5, math.Sqrt(1.25)}, ColumnParams{4, math.Sqrt(8.0 / 3)}},
		{MethodMinMax, ColumnParams{1, 3}, ColumnParams{2, 4}},
		{MethodRobust, ColumnParams{2.5, 1.5}, ColumnParams{4, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			p, err := FitScaler(f, tt.method, nil)
			require.NoError(t, err)
			assert.Equal(t, []string{"a", "b", "const"}, p.Columns)
			assert.Equal(t, []string{"empty"}, p.Skipped)
			assert.InDelta(t, tt.a.Center, p.Parameters["a"].Center, 1e-12)
			assert.InDelta(t, tt.a.Scale, p.Parameters["a"].Scale, 1e-12)
			assert.InDelta(t, tt.b.Center, p.Parameters["b"].Center, 1e-12)
			assert.InDelta(t, tt.b.Scale, p.Parameters["b"].Scale, 1e-12)
			assert.Equal(t, 1.0, p.Parameters["const"].Scale, "zero scale guard")
		})
	}

	t.Run("unknown method", func(t *testing.T) {
		_, err := FitScaler(f, "zscore", nil)
		require.ErrorIs(t, err, domain.ErrConfig)
		require.ErrorIs(t, err, domain.ErrUnknownMethod)
	})

	t.Run("unknown column", func(t *testing.T) {
		_, err := FitScaler(f, MethodStandard, []string{"nope"})
		require.ErrorIs(t, err, domain.ErrConfig)
	})
}

func TestApplyScalerStandardMatchesDirectComputation(t *testing.T) {
	x := []float64{3.2, -1.5, 7.75, 0.1, 12.0, 5.5}
	f := newFrame(t, len(x), map[string][]float64{domain.VarTemp: x}, domain.VarTemp)

	p, err := FitScaler(f, MethodStandard, nil)
	require.NoError(t, err)
	out, err := ApplyScaler(f, p)
	require.NoError(t, err)

	var mean float64
	for _, v := range x {
		mean += v
	}
	mean /= float64(len(x))
	var ss float64
	for _, v := range x {
		ss += (v - mean) * (v - mean)
	}
	std := math.Sqrt(ss / float64(len(x)))

	got := col(t, out, domain.VarTemp)
	for i, v := range x {
		assert.InDelta(t, (v-mean)/std, got[i], 1e-12)
	}
	assert.Equal(t, 3.2, col(t, f, domain.VarTemp)[0], "source frame untouched")
}

func TestApplyScalerUsesTrainParameters(t *testing.T) {
	f := newFrame(t, 5, map[string][]float64{domain.VarTemp: {1, 2, 3, 10, nan}}, domain.VarTemp)
	s, err := TimeSplit(f, hourly(5)[2], nil)
	require.NoError(t, err)

	p, err := FitScaler(s.Train, MethodMinMax, nil)
	require.NoError(t, err)
	test, err := ApplyScaler(s.Test, p)
	require.NoError(t, err)

	got := col(t, test, domain.VarTemp)
	assert.Equal(t, 4.5, got[0])
	assert.True(t, math.IsNaN(got[1]))

	_, err = ApplyScaler(f, &ScalerParams{Method: "bogus"})
	require.ErrorIs(t, err, domain.ErrUnknownMethod)
}

func TestScalerJSONRoundTrip(t *testing.T) {
	f := newFrame(t, 5, map[string][]float64{
		"x": {0.1, 0.7, 1e-7, 123456.789, 2.0 / 3},
		"y": {math.Pi, math.E, -math.Sqrt2, 1.0 / 7, 42},
	}, "x", "y")

	for _, method := range Methods() {
		t.Run(method, func(t *testing.T) {
			p, err := FitScaler(f, method, nil)
			require.NoError(t, err)
			data, err := MarshalScaler(p)
			require.NoError(t, err)

			loaded, err := UnmarshalScaler(data)
			require.NoError(t, err)
			if diff := cmp.Diff(p, loaded); diff != "" {
				t.Errorf("params changed in round trip (-want +got):\n%s", diff)
			}

			direct, err := ApplyScaler(f, p)
			require.NoError(t, err)
			viaJSON, err := ApplyScaler(f, loaded)
			require.NoError(t, err)
			for _, c := range []string{"x", "y"} {
				assert.Equal(t, col(t, direct, c), col(t, viaJSON, c))
			}
		})
	}

	t.Run("invalid documents", func(t *testing.T) {
		_, err := UnmarshalScaler([]byte(`{"method":"zscore","columns":[],"parameters":{}}`))
		require.ErrorIs(t, err, domain.ErrUnknownMethod)
		_, err = UnmarshalScaler([]byte(`{"method":"standard","columns":["x"],"parameters":{}}`))
		require.ErrorIs(t, err, domain.ErrConfig)
		_, err = UnmarshalScaler([]byte(`not json`))
		require.ErrorIs(t, err, domain.ErrConfig)
	})
}
