package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/couchcryptid/metdata-etl/internal/domain"
	"github.com/couchcryptid/metdata-etl/internal/mlprep"
	"github.com/couchcryptid/metdata-etl/internal/observability"
	"github.com/couchcryptid/metdata-etl/internal/qc"
)

// Extractor reads the raw source table.
type Extractor interface {
	Extract(ctx context.Context) (domain.RawTable, error)
}

// Transformer turns a raw table into a processed dataset.
type Transformer interface {
	Transform(ctx context.Context, raw domain.RawTable) (*Dataset, error)
}

// Loader writes a processed dataset to one destination.
type Loader interface {
	Name() string
	Load(ctx context.Context, ds *Dataset) error
}

// Dataset is the output of one processing run.
type Dataset struct {
	Station     string
	ProcessedAt time.Time
	Frequency   time.Duration
	Frame       *domain.Frame
	Report      qc.Report
	History     []HistoryEntry
	Warnings    []string

	// Populated only when ML preparation is configured. Splits are scaled
	// when Scaler is set; Supervised is scaled only when fitted parameters
	// were supplied and there is no split.
	Supervised *domain.Frame
	Splits     *mlprep.Splits
	Scaler     *mlprep.ScalerParams
}

// Pipeline runs a single extract-transform-load pass.
type Pipeline struct {
	extractor   Extractor
	transformer Transformer
	loaders     []Loader
	logger      *slog.Logger
	metrics     *observability.Metrics
	retryFor    time.Duration
}

// New creates a Pipeline. Each loader is retried with exponential backoff
// for up to retryFor; zero disables retries.
func New(e Extractor, t Transformer, loaders []Loader, logger *slog.Logger, metrics *observability.Metrics, retryFor time.Duration) *Pipeline {
	return &Pipeline{
		extractor:   e,
		transformer: t,
		loaders:     loaders,
		logger:      logger,
		metrics:     metrics,
		retryFor:    retryFor,
	}
}

// Run extracts, transforms and loads once. Every loader is attempted even
// when an earlier one fails; their errors are joined.
func (p *Pipeline) Run(ctx context.Context) (*Dataset, error) {
	start := time.Now()
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	raw, err := p.extractor.Extract(ctx)
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}
	p.metrics.RowsIngested.Add(float64(len(raw.Rows)))
	p.logger.Info("extracted source table", "rows", len(raw.Rows), "columns", len(raw.Header))

	ds, err := p.transformer.Transform(ctx, raw)
	if err != nil {
		p.metrics.TransformErrors.Inc()
		return nil, fmt.Errorf("transform: %w", err)
	}
	p.metrics.RowsProduced.Add(float64(ds.Frame.Len()))
	for flag, n := range ds.Report.Flags {
		p.metrics.QCFlagsRaised.WithLabelValues(flag).Add(float64(n))
	}

	var errs []error
	for _, l := range p.loaders {
		if err := p.load(ctx, l, ds); err != nil {
			errs = append(errs, fmt.Errorf("load %s: %w", l.Name(), err))
		}
	}
	p.metrics.RunDuration.Observe(time.Since(start).Seconds())
	if err := errors.Join(errs...); err != nil {
		return ds, err
	}
	p.metrics.LastSuccess.SetToCurrentTime()
	p.logger.Info("run complete",
		"station", ds.Station,
		"rows", ds.Frame.Len(),
		"flagged", ds.Report.Flagged(),
		"sinks", len(p.loaders),
		"duration", time.Since(start),
	)
	return ds, nil
}

// load retries transient sink failures. Configuration and data errors are
// permanent.
func (p *Pipeline) load(ctx context.Context, l Loader, ds *Dataset) error {
	op := func() error {
		err := l.Load(ctx, ds)
		if err == nil {
			return nil
		}
		if errors.Is(err, domain.ErrConfig) || errors.Is(err, domain.ErrData) || ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}

	var b backoff.BackOff = &backoff.StopBackOff{}
	if p.retryFor > 0 {
		exp := backoff.NewExponentialBackOff()
		exp.InitialInterval = 200 * time.Millisecond
		exp.MaxInterval = 5 * time.Second
		exp.MaxElapsedTime = p.retryFor
		b = exp
	}

	notify := func(err error, wait time.Duration) {
		p.metrics.LoadAttempts.WithLabelValues(l.Name(), "retry").Inc()
		p.logger.Warn("load failed, retrying", "sink", l.Name(), "error", err, "wait", wait)
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify); err != nil {
		p.metrics.LoadAttempts.WithLabelValues(l.Name(), "error").Inc()
		p.logger.Error("load failed", "sink", l.Name(), "error", err)
		return err
	}
	p.metrics.LoadAttempts.WithLabelValues(l.Name(), "success").Inc()
	p.logger.Debug("loaded dataset", "sink", l.Name())
	return nil
}
