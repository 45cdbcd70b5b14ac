package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/couchcryptid/metdata-etl/internal/domain"
	"github.com/couchcryptid/metdata-etl/internal/mlprep"
	"github.com/couchcryptid/metdata-etl/internal/observability"
	"github.com/couchcryptid/metdata-etl/internal/qc"
)

// Options selects the stages a Processor runs. Zero values skip optional
// stages; ingest, UTC coercion, unit normalization and QC always run.
type Options struct {
	Station  string
	Mapping  domain.Mapping
	Registry *domain.Registry // nil uses domain.DefaultRegistry

	InsertGaps bool
	Frequency  time.Duration // grid for InsertGaps; zero infers it
	AccumRain  bool

	Derive []string

	Resample     time.Duration
	Aggregations map[string]domain.Agg

	Calendar bool
	Cyclical bool

	ML *MLOptions
}

// MLOptions configures supervised-table preparation.
type MLOptions struct {
	Targets  []string
	Lags     []int
	Horizons []int
	DropNA   bool

	// TrainEnd enables the time split. ValEnd is optional.
	TrainEnd *time.Time
	ValEnd   *time.Time

	// ScalerMethod fits on the train split and applies to all three.
	// ScalerColumns nil scales every numeric column.
	ScalerMethod  string
	ScalerColumns []string

	// Scaler applies previously fitted parameters instead of fitting. It
	// scales the splits, or the supervised table when there is no split.
	Scaler *mlprep.ScalerParams
}

// Processor runs the WeatherSet chain configured by Options. It implements
// Transformer.
type Processor struct {
	opts    Options
	reg     *domain.Registry
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewProcessor validates opts and returns a Processor.
func NewProcessor(opts Options, logger *slog.Logger, metrics *observability.Metrics) (*Processor, error) {
	reg := opts.Registry
	if reg == nil {
		reg = domain.DefaultRegistry()
	}
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	if ml := opts.ML; ml != nil {
		if ml.ScalerMethod != "" && ml.Scaler != nil {
			return nil, domain.ConfigError("new processor", errors.New("choose either a scaler method or fitted scaler parameters"))
		}
		if ml.ScalerMethod != "" && ml.TrainEnd == nil {
			return nil, domain.ConfigError("new processor",
				errors.New("a scaler needs a train end so it is fitted on the training split only"))
		}
	}
	return &Processor{opts: opts, reg: reg, logger: logger, metrics: metrics}, nil
}

// Transform runs the configured chain over raw. The QC report counts flags
// at the source resolution, before any resampling.
func (p *Processor) Transform(ctx context.Context, raw domain.RawTable) (*Dataset, error) {
	o := p.opts
	w := FromMapping(raw, o.Mapping, p.reg)

	p.stage("normalize", func() {
		w.ToUTC().NormalizeUnits()
		if o.InsertGaps {
			w.InsertMissing(o.Frequency)
		}
		if o.AccumRain {
			w.FixAccumRain()
		}
	})
	if o.InsertGaps && w.Err() == nil {
		gaps := qc.Summarize(w.frame).Gaps
		p.metrics.GapsInserted.Add(float64(gaps))
	}

	p.stage("qc", func() {
		w.QCRange().QCSpike(ctx).QCFlatline(ctx)
		if len(o.Derive) > 0 {
			w.Derive(o.Derive...)
		}
		w.QCConsistency().QCAny()
	})
	if err := w.Err(); err != nil {
		return nil, err
	}
	report := qc.Summarize(w.frame)

	if o.Resample > 0 {
		p.stage("resample", func() { w.Resample(o.Resample, o.Aggregations) })
	}
	if o.Calendar {
		p.stage("calendar", func() { w.CalendarFeatures(o.Cyclical) })
	}
	frame, err := w.Frame()
	if err != nil {
		return nil, err
	}

	ds := &Dataset{
		Station:     o.Station,
		ProcessedAt: domain.Now(),
		Frequency:   w.Frequency(),
		Frame:       frame,
		Report:      report,
		History:     w.History(),
		Warnings:    w.Warnings(),
	}
	for _, msg := range ds.Warnings {
		p.logger.Warn("processing warning", "station", o.Station, "warning", msg)
	}

	if o.ML != nil {
		var err error
		p.stage("mlprep", func() { err = p.prepare(ds, o.ML) })
		if err != nil {
			return nil, err
		}
	}

	p.logger.Info("dataset processed",
		"station", o.Station,
		"rows", frame.Len(),
		"gaps", report.Gaps,
		"flagged", report.Flagged(),
		"frequency", ds.Frequency,
	)
	return ds, nil
}

func (p *Processor) prepare(ds *Dataset, ml *MLOptions) error {
	sup, err := mlprep.MakeSupervised(ds.Frame, ml.Targets, ml.Lags, ml.Horizons, ml.DropNA)
	if err != nil {
		return err
	}
	ds.Supervised = sup
	ds.History = append(ds.History, HistoryEntry{At: domain.Now(), Stage: "make_supervised"})

	if ml.TrainEnd == nil {
		if ml.Scaler == nil {
			return nil
		}
		if ds.Supervised, err = mlprep.ApplyScaler(sup, ml.Scaler); err != nil {
			return err
		}
		ds.Scaler = ml.Scaler
		ds.History = append(ds.History, HistoryEntry{At: domain.Now(), Stage: "apply_scaler", Detail: ml.Scaler.Method})
		return nil
	}

	splits, err := mlprep.TimeSplit(sup, *ml.TrainEnd, ml.ValEnd)
	if err != nil {
		return err
	}
	ds.History = append(ds.History, HistoryEntry{At: domain.Now(), Stage: "time_split"})

	params, stage := ml.Scaler, "apply_scaler"
	if params == nil {
		if ml.ScalerMethod == "" {
			ds.Splits = &splits
			return nil
		}
		if params, err = mlprep.FitScaler(splits.Train, ml.ScalerMethod, ml.ScalerColumns); err != nil {
			return err
		}
		stage = "scale"
	}

	scaled := mlprep.Splits{}
	for _, part := range []struct {
		src *domain.Frame
		dst **domain.Frame
	}{
		{splits.Train, &scaled.Train},
		{splits.Val, &scaled.Val},
		{splits.Test, &scaled.Test},
	} {
		out, err := mlprep.ApplyScaler(part.src, params)
		if err != nil {
			return err
		}
		*part.dst = out
	}
	ds.Splits = &scaled
	ds.Scaler = params
	ds.History = append(ds.History, HistoryEntry{At: domain.Now(), Stage: stage, Detail: params.Method})
	return nil
}

func (p *Processor) stage(name string, fn func()) {
	start := time.Now()
	fn()
	p.metrics.StageDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	p.logger.Debug("pipeline stage complete", "stage", name, "duration", time.Since(start))
}
