// Command metprep normalizes, quality-controls and prepares station time
// series for model training.
//
// Usage:
//
//	metprep run --csv obs.csv --map mapping.yml --out clean.csv \
//	  --resample 1h --derive dew_point,vpd --targets temp_c --lags 1,2,3 \
//	  --horizons 1 --train-end 2024-06-30 --scaler standard --scaler-out scaler.json
//	metprep qc --csv obs.csv --map mapping.yml --out flagged.csv --report qc.json
//	metprep run --csv new.csv --map mapping.yml --out scaled.csv \
//	  --targets temp_c --lags 1,2,3 --reuse-scaler
//	metprep template --out mapping.yml
//	metprep history --station KDEN --limit 5
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
)

// CLI is the command tree.
type CLI struct {
	EnvFile string `name:"env-file" default:".env" type:"path" help:"Environment file loaded before configuration (ignored if absent)."`

	Run      RunCmd      `cmd:"" help:"Run the full pipeline: normalize, QC, derive, resample and optional ML preparation."`
	QC       QCCmd       `cmd:"" name:"qc" help:"Normalize and quality-control a file and report flag counts."`
	Template TemplateCmd `cmd:"" help:"Write a mapping descriptor template."`
	History  HistoryCmd  `cmd:"" help:"List stored runs and their QC counts for a station."`
}

// app carries process-wide state into command Run methods.
type app struct {
	ctx context.Context
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("metprep"),
		kong.Description("Meteorological time-series preparation."),
		kong.UsageOnError(),
	)

	if err := loadEnvFile(cli.EnvFile); err != nil {
		fmt.Fprintln(os.Stderr, "metprep:", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := kctx.Run(&app{ctx: ctx})
	stop()
	kctx.FatalIfErrorf(err)
}

func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}
