package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

var nan = math.NaN()

func TestQuantile(t *testing.T) {
	sorted := []float64{1, 2, 3, 4}
	assert.Equal(t, 1.0, Quantile(sorted, 0))
	assert.Equal(t, 1.75, Quantile(sorted, 0.25))
	assert.Equal(t, 2.5, Quantile(sorted, 0.5))
	assert.Equal(t, 3.25, Quantile(sorted, 0.75))
	assert.Equal(t, 4.0, Quantile(sorted, 1))
	assert.True(t, math.IsNaN(Quantile(nil, 0.5)))
}

func TestMedianSkipsNaN(t *testing.T) {
	assert.Equal(t, 2.0, Median([]float64{3, nan, 1, 2}))
	assert.Equal(t, 2.5, Median([]float64{4, 1, 3, 2}))
	assert.True(t, math.IsNaN(Median([]float64{nan})))
}

func TestMeanStdAndMinMax(t *testing.T) {
	m, s, n := MeanStd([]float64{2, 4, 4, 4, 5, 5, 7, 9, nan})
	assert.Equal(t, 5.0, m)
	assert.Equal(t, 2.0, s)
	assert.Equal(t, 8, n)

	lo, hi, n := MinMax([]float64{nan, 3, -1, 8})
	assert.Equal(t, -1.0, lo)
	assert.Equal(t, 8.0, hi)
	assert.Equal(t, 3, n)

	_, _, n = MeanStd([]float64{nan, nan})
	assert.Zero(t, n)
}

func TestRollingMedian(t *testing.T) {
	w := Window{Width: 3, MinPeriods: 2}
	got := w.RollingMedian([]float64{1, 5, 2, nan, 4})
	assert.Equal(t, 3.0, got[0]) // {1,5}
	assert.Equal(t, 2.0, got[1]) // {1,5,2}
	assert.Equal(t, 3.5, got[2]) // {5,2}
	assert.Equal(t, 3.0, got[3]) // {2,4}
	assert.True(t, math.IsNaN(got[4]), "only one finite value")
}

func TestRollingVariance(t *testing.T) {
	w := Window{Width: 5, MinPeriods: 3}

	t.Run("identical values are exactly flat", func(t *testing.T) {
		got := w.RollingVariance([]float64{1013.3, 1013.3, 1013.3, 1013.3, 1013.3})
		for _, v := range got {
			assert.Equal(t, 0.0, v)
		}
	})

	t.Run("edges need min periods", func(t *testing.T) {
		got := Window{Width: 5, MinPeriods: 4}.RollingVariance([]float64{1, 2, 3, 4, 5})
		assert.True(t, math.IsNaN(got[0]))
		assert.InDelta(t, 1.6667, got[1], 1e-4) // {1,2,3,4}
		assert.InDelta(t, 2.5, got[2], 1e-12)
	})
}

func TestWindowBoundsEvenWidth(t *testing.T) {
	w := Window{Width: 4, MinPeriods: 1}
	lo, hi := w.bounds(5, 10)
	assert.Equal(t, 4, lo)
	assert.Equal(t, 8, hi)
}
