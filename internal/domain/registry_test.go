package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry()
	require.NoError(t, r.Validate())

	v, ok := r.Lookup(VarTemp)
	require.True(t, ok)
	assert.Equal(t, Bounds{Lo: -40, Hi: 50}, *v.Bounds)
	assert.Equal(t, "air_temperature", v.StandardName)

	assert.Equal(t, []string{VarTemp, VarRH, VarPres, VarWspd, VarWdir, VarGust, VarRain, VarSolar, VarUV}, r.Canonical())
	assert.True(t, r.IsCanonical(VarRain))
	assert.False(t, r.IsCanonical(VarDewPoint))
}

func TestRegistryAggFor(t *testing.T) {
	r := DefaultRegistry()
	tests := []struct {
		column string
		want   Agg
	}{
		{VarTemp, AggMean},
		{VarRain, AggSum},
		{VarGust, AggMax},
		{VarWdir, AggCircularMean},
		{RangeFlag(VarTemp), AggAny},
		{ColGap, AggAny},
		{"hour_sin", AggMean},
	}
	for _, tt := range tests {
		t.Run(tt.column, func(t *testing.T) {
			assert.Equal(t, tt.want, r.AggFor(tt.column))
		})
	}
}

func TestRegistryOverridesAreIsolated(t *testing.T) {
	a := DefaultRegistry()
	b := a.Clone()

	require.NoError(t, b.SetBounds(VarTemp, -60, 60))
	require.NoError(t, b.SetAgg(VarTemp, AggMax))

	va, _ := a.Lookup(VarTemp)
	vb, _ := b.Lookup(VarTemp)
	assert.Equal(t, -40.0, va.Bounds.Lo)
	assert.Equal(t, -60.0, vb.Bounds.Lo)
	assert.Equal(t, AggMean, va.Agg)
	assert.Equal(t, AggMax, vb.Agg)

	assert.ErrorIs(t, b.SetBounds("nope", 0, 1), ErrConfig)
	assert.ErrorIs(t, b.SetBounds(VarTemp, 2, 1), ErrConfig)
	assert.ErrorIs(t, b.SetAgg(VarTemp, "mode"), ErrConfig)
}

func TestRegistryValidate(t *testing.T) {
	r := DefaultRegistry()
	r.Spike.MinPeriods = 20
	assert.ErrorIs(t, r.Validate(), ErrConfig)

	r = DefaultRegistry()
	r.UnitPolicy = "loose"
	assert.ErrorIs(t, r.Validate(), ErrConfig)
}

func TestFlagNames(t *testing.T) {
	assert.Equal(t, "qc_temp_c_range", RangeFlag(VarTemp))
	assert.Equal(t, "qc_rh_pct_spike", SpikeFlag(VarRH))
	assert.Equal(t, "qc_pres_hpa_flatline", FlatlineFlag(VarPres))
	assert.True(t, IsQCFlag(FlagAny))
	assert.False(t, IsQCFlag(ColGap))
}

func TestErrorKinds(t *testing.T) {
	err := DataError("parse", VarTemp, errors.New("bad cell"))
	assert.ErrorIs(t, err, ErrData)
	assert.NotErrorIs(t, err, ErrConfig)
	assert.Equal(t, `parse: [DATA] column "temp_c": bad cell`, err.Error())

	cfg := ConfigError("fit scaler", ErrUnknownMethod)
	assert.ErrorIs(t, cfg, ErrConfig)
	assert.ErrorIs(t, cfg, ErrUnknownMethod)

	var typed *Error
	require.ErrorAs(t, error(cfg), &typed)
	assert.Equal(t, KindConfig, typed.Kind)
}

func TestNowUsesClock(t *testing.T) {
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.FixedZone("X", 3600))
	SetClock(clockwork.NewFakeClockAt(fixed))
	t.Cleanup(func() { SetClock(nil) })

	assert.Equal(t, fixed.UTC(), Now())
	assert.Equal(t, time.UTC, Now().Location())
}
