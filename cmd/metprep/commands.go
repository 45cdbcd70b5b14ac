package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	_ "modernc.org/sqlite"

	"github.com/couchcryptid/metdata-etl/internal/adapter/csvfile"
	kafkaadapter "github.com/couchcryptid/metdata-etl/internal/adapter/kafka"
	sqliteadapter "github.com/couchcryptid/metdata-etl/internal/adapter/sqlite"
	"github.com/couchcryptid/metdata-etl/internal/config"
	"github.com/couchcryptid/metdata-etl/internal/derive"
	"github.com/couchcryptid/metdata-etl/internal/domain"
	"github.com/couchcryptid/metdata-etl/internal/mlprep"
	"github.com/couchcryptid/metdata-etl/internal/normalize"
	"github.com/couchcryptid/metdata-etl/internal/observability"
	"github.com/couchcryptid/metdata-etl/internal/pipeline"
)

// InputFlags are shared by the processing commands.
type InputFlags struct {
	CSV       string `name:"csv" required:"" type:"existingfile" help:"Source CSV file."`
	Map       string `name:"map" required:"" type:"existingfile" help:"Mapping descriptor (YAML or JSON)."`
	Out       string `required:"" type:"path" help:"Output CSV for the processed frame."`
	QCProfile string `name:"qc-profile" type:"existingfile" help:"QC profile overriding bounds, windows and thresholds."`
	Station   string `default:"station" help:"Station identifier attached to outputs."`
	Delimiter string `default:"," help:"Source CSV field delimiter."`

	Freq      time.Duration `help:"Sampling interval for gap insertion. Inferred when unset."`
	NoGaps    bool          `name:"no-gaps" help:"Skip gap insertion."`
	AccumRain bool          `name:"accum-rain" help:"Rain column is a cumulative counter."`
}

func (in InputFlags) options() (pipeline.Options, error) {
	mapping, err := config.LoadMapping(in.Map)
	if err != nil {
		return pipeline.Options{}, err
	}
	reg, err := config.LoadQCProfile(in.QCProfile)
	if err != nil {
		return pipeline.Options{}, err
	}
	return pipeline.Options{
		Station:    in.Station,
		Mapping:    mapping,
		Registry:   reg,
		InsertGaps: !in.NoGaps,
		Frequency:  in.Freq,
		AccumRain:  in.AccumRain,
	}, nil
}

func (in InputFlags) comma() (rune, error) {
	r := []rune(in.Delimiter)
	if len(r) != 1 {
		return 0, fmt.Errorf("delimiter must be a single character, got %q", in.Delimiter)
	}
	return r[0], nil
}

// RunCmd runs every stage.
type RunCmd struct {
	InputFlags `embed:""`

	Derive   []string          `help:"Derived metrics to add (dew_point, vpd, heat_index, wind_chill or all)."`
	Resample time.Duration     `help:"Aggregate onto a coarser grid, e.g. 1h."`
	Agg      map[string]string `help:"Aggregation override per variable, e.g. wspd_ms=max."`
	Calendar bool              `help:"Add hour, weekday, month and day-of-year columns."`
	Cyclical bool              `help:"Also add sine/cosine encodings of hour and day of year."`

	Targets     []string `help:"Target columns for the supervised table."`
	Lags        []int    `help:"Lag steps for every numeric column."`
	Horizons    []int    `help:"Forecast horizons for the targets."`
	DropNA      bool     `name:"dropna" help:"Drop supervised rows with any missing value."`
	TrainEnd    string   `name:"train-end" help:"Last timestamp of the training split (UTC unless an offset is given)."`
	ValEnd      string   `name:"val-end" help:"Last timestamp of the validation split."`
	Scaler      string   `xor:"scaler" help:"Scaler fitted on the training split: standard, minmax or robust."`
	ScalerIn    string   `name:"scaler-in" xor:"scaler" type:"existingfile" help:"Apply scaler parameters from a JSON file instead of fitting."`
	ReuseScaler bool     `name:"reuse-scaler" xor:"scaler" help:"Apply the station's most recently stored scaler (needs METPREP_SQLITE_PATH)."`
	ScalerOut   string   `name:"scaler-out" type:"path" help:"Write the scaler parameters used as JSON."`
}

func (c *RunCmd) Run(a *app) error {
	opts, err := c.options()
	if err != nil {
		return err
	}
	if opts.Derive, err = expandDerive(c.Derive); err != nil {
		return err
	}
	opts.Resample = c.Resample
	if len(c.Agg) > 0 {
		opts.Aggregations = make(map[string]domain.Agg, len(c.Agg))
		for k, v := range c.Agg {
			opts.Aggregations[k] = domain.Agg(v)
		}
	}
	opts.Calendar = c.Calendar || c.Cyclical
	opts.Cyclical = c.Cyclical
	if opts.ML, err = c.mlOptions(); err != nil {
		return err
	}

	_, err = a.execute(c.InputFlags, opts, c.ScalerOut, c.ReuseScaler)
	return err
}

func (c *RunCmd) mlOptions() (*pipeline.MLOptions, error) {
	if len(c.Targets) == 0 && len(c.Lags) == 0 && c.TrainEnd == "" && c.ValEnd == "" &&
		c.Scaler == "" && c.ScalerIn == "" && !c.ReuseScaler {
		return nil, nil
	}
	set := 0
	for _, on := range []bool{c.Scaler != "", c.ScalerIn != "", c.ReuseScaler} {
		if on {
			set++
		}
	}
	if set > 1 {
		return nil, errors.New("--scaler, --scaler-in and --reuse-scaler are mutually exclusive")
	}
	ml := &pipeline.MLOptions{
		Targets:      c.Targets,
		Lags:         c.Lags,
		Horizons:     c.Horizons,
		DropNA:       c.DropNA,
		ScalerMethod: c.Scaler,
	}
	if len(ml.Targets) > 0 && len(ml.Horizons) == 0 {
		ml.Horizons = []int{1}
	}
	var err error
	if ml.TrainEnd, err = parseBoundary(c.TrainEnd); err != nil {
		return nil, fmt.Errorf("--train-end: %w", err)
	}
	if ml.ValEnd, err = parseBoundary(c.ValEnd); err != nil {
		return nil, fmt.Errorf("--val-end: %w", err)
	}
	if ml.ValEnd != nil && ml.TrainEnd == nil {
		return nil, fmt.Errorf("--val-end requires --train-end")
	}
	if c.ScalerIn != "" {
		data, err := os.ReadFile(c.ScalerIn)
		if err != nil {
			return nil, fmt.Errorf("--scaler-in: %w", err)
		}
		if ml.Scaler, err = mlprep.UnmarshalScaler(data); err != nil {
			return nil, fmt.Errorf("--scaler-in: %w", err)
		}
	}
	return ml, nil
}

func parseBoundary(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := normalize.ParseTimestamp(s, time.UTC)
	if err != nil {
		return nil, err
	}
	t = t.UTC()
	return &t, nil
}

func expandDerive(names []string) ([]string, error) {
	if slices.Contains(names, "all") {
		return derive.All(), nil
	}
	for _, n := range names {
		if !slices.Contains(derive.All(), n) {
			return nil, fmt.Errorf("unknown derived metric %q (choose from %v)", n, derive.All())
		}
	}
	return names, nil
}

// QCCmd normalizes and flags without deriving or resampling.
type QCCmd struct {
	InputFlags `embed:""`

	Report string `type:"path" help:"Write the QC report as JSON here instead of stdout."`
}

func (c *QCCmd) Run(a *app) error {
	opts, err := c.options()
	if err != nil {
		return err
	}
	ds, err := a.execute(c.InputFlags, opts, "", false)
	if err != nil {
		return err
	}

	var w io.Writer = os.Stdout
	if c.Report != "" {
		f, err := os.Create(c.Report)
		if err != nil {
			return fmt.Errorf("create report: %w", err)
		}
		defer f.Close()
		w = f
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(ds.Report)
}

// TemplateCmd writes a mapping template.
type TemplateCmd struct {
	Out     string `type:"path" help:"Output file. Defaults to stdout."`
	Minimal bool   `help:"List only the commonly reported fields."`
}

func (c *TemplateCmd) Run(*app) error {
	data, err := config.MappingTemplate(domain.DefaultRegistry(), !c.Minimal)
	if err != nil {
		return err
	}
	if c.Out == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(c.Out, data, 0o644)
}

// HistoryCmd lists stored runs for a station with their QC counts.
type HistoryCmd struct {
	Station string `default:"station" help:"Station identifier."`
	Limit   int    `default:"10" help:"Maximum number of runs, newest first."`
	Out     string `type:"path" help:"Write the listing as JSON here instead of stdout."`
}

type runSummary struct {
	ID          int64          `json:"id"`
	ProcessedAt time.Time      `json:"processed_at"`
	Frequency   string         `json:"frequency"`
	Rows        int            `json:"rows"`
	Gaps        int            `json:"gaps"`
	Flagged     int            `json:"flagged"`
	Warnings    []string       `json:"warnings,omitempty"`
	QC          map[string]int `json:"qc"`
}

func (c *HistoryCmd) Run(a *app) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.SQLitePath == "" {
		return errors.New("history needs METPREP_SQLITE_PATH")
	}
	store, closeStore, err := openStore(a, cfg.SQLitePath, observability.NewLogger(cfg))
	if err != nil {
		return err
	}
	defer closeStore()

	runs, err := store.Runs(a.ctx, c.Station, c.Limit)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}
	out := make([]runSummary, 0, len(runs))
	for _, r := range runs {
		counts, err := store.QCSummary(a.ctx, r.ID)
		if err != nil {
			return fmt.Errorf("qc summary for run %d: %w", r.ID, err)
		}
		out = append(out, runSummary{
			ID:          r.ID,
			ProcessedAt: r.ProcessedAt,
			Frequency:   r.Frequency.String(),
			Rows:        r.Rows,
			Gaps:        r.Gaps,
			Flagged:     r.Flagged,
			Warnings:    r.Warnings,
			QC:          counts,
		})
	}

	var w io.Writer = os.Stdout
	if c.Out != "" {
		f, err := os.Create(c.Out)
		if err != nil {
			return fmt.Errorf("create listing: %w", err)
		}
		defer f.Close()
		w = f
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// execute wires configuration, sinks and the pipeline for one run. With
// reuseScaler set the station's latest stored scaler replaces fitting.
func (a *app) execute(in InputFlags, opts pipeline.Options, scalerOut string, reuseScaler bool) (*pipeline.Dataset, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	comma, err := in.comma()
	if err != nil {
		return nil, err
	}

	loaders := []pipeline.Loader{csvfile.NewWriter(in.Out, scalerOut)}
	var store *sqliteadapter.Store
	if cfg.SQLitePath != "" {
		var closeStore func()
		if store, closeStore, err = openStore(a, cfg.SQLitePath, logger); err != nil {
			return nil, err
		}
		defer closeStore()
		loaders = append(loaders, store)
	}
	if reuseScaler {
		if store == nil {
			return nil, errors.New("--reuse-scaler needs METPREP_SQLITE_PATH")
		}
		params, err := store.LatestScaler(a.ctx, opts.Station)
		if err != nil {
			return nil, fmt.Errorf("load stored scaler: %w", err)
		}
		if params == nil {
			return nil, fmt.Errorf("no stored scaler for station %q", opts.Station)
		}
		opts.ML.Scaler = params
		logger.Info("reusing stored scaler", "station", opts.Station, "method", params.Method)
	}

	proc, err := pipeline.NewProcessor(opts, logger, metrics)
	if err != nil {
		return nil, err
	}
	if cfg.KafkaEnabled {
		w := kafkaadapter.NewWriter(cfg, logger)
		defer func() {
			if err := w.Close(); err != nil {
				logger.Error("kafka writer close error", "error", err)
			}
		}()
		loaders = append(loaders, w)
	}

	p := pipeline.New(csvfile.NewReader(in.CSV, comma), proc, loaders, logger, metrics, cfg.SinkRetryMaxElapsed)
	ds, runErr := p.Run(a.ctx)

	if cfg.MetricsTextfile != "" {
		if err := metrics.WriteTextfile(cfg.MetricsTextfile); err != nil {
			logger.Error("write metrics textfile", "path", cfg.MetricsTextfile, "error", err)
		}
	}
	return ds, runErr
}

func openStore(a *app, path string, logger *slog.Logger) (*sqliteadapter.Store, func(), error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.ExecContext(a.ctx, pragma); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	store := sqliteadapter.New(db, logger)
	if err := store.Migrate(a.ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	version, err := store.MigrationVersion(a.ctx)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("schema version: %w", err)
	}
	logger.Debug("run store ready", "path", path, "schema_version", version)
	return store, func() { db.Close() }, nil
}
