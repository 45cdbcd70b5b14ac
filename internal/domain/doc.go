// Package domain models canonical meteorological station time series.
//
// # Canonical Schema
//
// Every processed table is a [Frame]: a UTC timestamp index plus named
// columns. Numeric columns hold float64 values where NaN means "missing".
// Boolean columns hold QC flags and the gap marker; a missing flag is false.
//
// Canonical observed variables and their units:
//
//	temp_c     air temperature, degrees Celsius
//	rh_pct     relative humidity, percent
//	pres_hpa   station pressure, hectopascals
//	wspd_ms    mean wind speed, metres per second
//	wdir_deg   wind direction (from), degrees clockwise from north
//	gust_ms    wind gust, metres per second
//	rain_mm    precipitation per interval, millimetres
//	solar_wm2  global solar irradiance, watts per square metre
//	uv_index   UV index, dimensionless
//
// Derived variables: dew_point_c, vpd_kpa, heat_index_c, wind_chill_c.
//
// # Flag Columns
//
//	qc_<var>_range     value outside the configured plausible bounds
//	qc_<var>_spike     robust rolling z-score above threshold
//	qc_<var>_flatline  rolling variance at or below tolerance
//	qc_consistency     any cross-variable physical violation
//	qc_any             OR of every qc_* column
//	gap                row synthesized by gap insertion
//
// Flags annotate rows, they never remove them.
//
// # Mapping Descriptor
//
// Source files are described by a [Mapping]:
//
//	version: 1
//	ts:
//	  col: DateTime
//	  tz: Australia/Melbourne   # optional; naive timestamps default to UTC
//	fields:
//	  temp_c:
//	    col: "Temperature (°F)"
//	    unit: F
//	    confidence: 0.9
//
// # Configuration
//
// Bounds, rolling-window parameters, aggregation policies and CF metadata live
// in a [Registry] value rather than in package state, so stations with
// different bound sets can be processed side by side. [DefaultRegistry]
// returns a fresh copy on every call.
package domain
