// Package sqlite persists run history, QC summaries and fitted scaler
// parameters so later runs and audits can reuse them.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/metdata-etl/internal/mlprep"
	"github.com/couchcryptid/metdata-etl/internal/pipeline"
)

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store is the run store. It implements pipeline.Loader.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Run is one stored processing run.
type Run struct {
	ID          int64
	Station     string
	ProcessedAt time.Time
	Frequency   time.Duration
	Rows        int
	Gaps        int
	Flagged     int
	History     []pipeline.HistoryEntry
	Warnings    []string
}

func New(db *sql.DB, logger *slog.Logger) *Store {
	return &Store{db: db, logger: logger}
}

func (s *Store) Name() string { return "sqlite" }

// Load records the dataset; see SaveDataset.
func (s *Store) Load(ctx context.Context, ds *pipeline.Dataset) error {
	id, err := s.SaveDataset(ctx, ds)
	if err != nil {
		return err
	}
	s.logger.Debug("stored run", "run_id", id, "station", ds.Station)
	return nil
}

// SaveDataset stores the run summary, its per-flag counts and, when
// present, the fitted scaler parameters in one transaction.
func (s *Store) SaveDataset(ctx context.Context, ds *pipeline.Dataset) (int64, error) {
	history, err := json.Marshal(ds.History)
	if err != nil {
		return 0, fmt.Errorf("encode history: %w", err)
	}
	warnings := ds.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	warningsJSON, err := json.Marshal(warnings)
	if err != nil {
		return 0, fmt.Errorf("encode warnings: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO runs (station, processed_at, frequency_seconds, row_count, gap_count, flagged_count, history_json, warnings_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, ds.Station, ds.ProcessedAt.UTC().Format(timeLayout), ds.Frequency.Seconds(),
		ds.Report.Rows, ds.Report.Gaps, ds.Report.Flagged(), string(history), string(warningsJSON))
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("run id: %w", err)
	}

	for flag, n := range ds.Report.Flags {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO qc_summary (run_id, flag, flagged) VALUES (?, ?, ?)", id, flag, n,
		); err != nil {
			return 0, fmt.Errorf("insert qc summary %s: %w", flag, err)
		}
	}

	if ds.Scaler != nil {
		params, err := mlprep.MarshalScaler(ds.Scaler)
		if err != nil {
			return 0, err
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO scaler_params (run_id, method, params_json) VALUES (?, ?, ?)",
			id, ds.Scaler.Method, string(params),
		); err != nil {
			return 0, fmt.Errorf("insert scaler params: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit run: %w", err)
	}
	return id, nil
}

// Runs returns the most recent runs for a station, newest first.
func (s *Store) Runs(ctx context.Context, station string, limit int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, station, processed_at, frequency_seconds, row_count, gap_count, flagged_count, history_json, warnings_json
		FROM runs
		WHERE station = ?
		ORDER BY processed_at DESC, id DESC
		LIMIT ?
	`, station, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r                       Run
			processedAt             string
			freqSeconds             float64
			historyJSON, warningsJS string
		)
		if err := rows.Scan(&r.ID, &r.Station, &processedAt, &freqSeconds, &r.Rows, &r.Gaps, &r.Flagged, &historyJSON, &warningsJS); err != nil {
			return nil, err
		}
		if r.ProcessedAt, err = time.Parse(timeLayout, processedAt); err != nil {
			return nil, fmt.Errorf("run %d processed_at: %w", r.ID, err)
		}
		r.Frequency = time.Duration(freqSeconds * float64(time.Second))
		if err := json.Unmarshal([]byte(historyJSON), &r.History); err != nil {
			return nil, fmt.Errorf("run %d history: %w", r.ID, err)
		}
		if err := json.Unmarshal([]byte(warningsJS), &r.Warnings); err != nil {
			return nil, fmt.Errorf("run %d warnings: %w", r.ID, err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// QCSummary returns the per-flag counts stored for a run.
func (s *Store) QCSummary(ctx context.Context, runID int64) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT flag, flagged FROM qc_summary WHERE run_id = ?", runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var (
			flag string
			n    int
		)
		if err := rows.Scan(&flag, &n); err != nil {
			return nil, err
		}
		out[flag] = n
	}
	return out, rows.Err()
}

// LatestScaler returns the scaler fitted by the station's most recent run
// that fitted one, or nil if there is none.
func (s *Store) LatestScaler(ctx context.Context, station string) (*mlprep.ScalerParams, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `
		SELECT sp.params_json
		FROM scaler_params sp
		JOIN runs r ON r.id = sp.run_id
		WHERE r.station = ?
		ORDER BY r.processed_at DESC, r.id DESC
		LIMIT 1
	`, station).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return mlprep.UnmarshalScaler([]byte(data))
}
