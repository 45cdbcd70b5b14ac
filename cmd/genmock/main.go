// Command genmock writes a synthetic weather-station CSV and a matching
// mapping descriptor for fixtures and demos. Values are in common logger
// units (°F, mph, mbar, inches of rain as a running total) with injected
// gaps, spikes, a stuck sensor and out-of-range readings, so every QC check
// has something to find.
//
// Usage:
//
//	go run ./cmd/genmock -out data/mock/station.csv -map data/mock/mapping.yml -days 7
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/couchcryptid/metdata-etl/internal/domain"
)

var header = []string{"Timestamp", "TempF", "Humidity", "PressureMbar", "WindMph", "WindDir", "GustMph", "RainIn", "Solar"}

// options controls generation.
type options struct {
	start   time.Time
	days    int
	freq    time.Duration
	seed    uint64
	gapRate float64
}

// anomalies records the injected faults by grid position.
type anomalies struct {
	gaps       int
	spikeRows  []int
	rangeRows  []int
	flatStart  int
	flatLength int
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "", "output CSV path")
	mapOut := flag.String("map", "", "output mapping descriptor path")
	days := flag.Int("days", 7, "days of data")
	freq := flag.Duration("freq", 10*time.Minute, "sampling interval")
	seed := flag.Uint64("seed", 1, "random seed")
	start := flag.String("start", "2024-07-01", "first day (UTC)")
	flag.Parse()

	if *out == "" || *mapOut == "" {
		flag.Usage()
		return fmt.Errorf("missing required flags: -out, -map")
	}
	t0, err := time.Parse("2006-01-02", *start)
	if err != nil {
		return fmt.Errorf("parse -start: %w", err)
	}

	rows, faults := generate(options{start: t0, days: *days, freq: *freq, seed: *seed, gapRate: 0.01})
	if err := writeCSV(*out, rows); err != nil {
		return fmt.Errorf("writing CSV: %w", err)
	}
	if err := writeMapping(*mapOut); err != nil {
		return fmt.Errorf("writing mapping: %w", err)
	}
	log.Printf("wrote %d rows to %s (%d gaps, %d spikes, %d out of range, flatline of %d at row %d)",
		len(rows), *out, faults.gaps, len(faults.spikeRows), len(faults.rangeRows), faults.flatLength, faults.flatStart)
	return nil
}

func generate(o options) ([][]string, anomalies) {
	rng := rand.New(rand.NewPCG(o.seed, o.seed^0x9e3779b97f4a7c15))
	n := int(time.Duration(o.days) * 24 * time.Hour / o.freq)

	var a anomalies
	a.flatStart, a.flatLength = n/2, 8
	spikeEvery := max(n/5, 1)

	rows := make([][]string, 0, n)
	rain := 0.0
	for i := range n {
		ts := o.start.Add(time.Duration(i) * o.freq)
		// Gaps never land inside the stuck-sensor run so it stays contiguous.
		inFlat := i >= a.flatStart && i < a.flatStart+a.flatLength
		if i > 0 && !inFlat && rng.Float64() < o.gapRate {
			a.gaps++
			continue
		}

		hour := float64(ts.Hour()) + float64(ts.Minute())/60
		doy := float64(ts.YearDay())
		seasonal := 10 * math.Cos(2*math.Pi*(doy-200)/365.25)
		diurnal := 8 * math.Sin(2*math.Pi*(hour-9)/24)
		tempC := 15 + seasonal + diurnal + rng.NormFloat64()*0.3
		rh := clamp(65-2.5*diurnal+rng.NormFloat64()*2, 5, 100)
		pres := 1013 + 4*math.Sin(2*math.Pi*float64(i)/float64(max(n, 1))) + rng.NormFloat64()*0.2
		wind := math.Abs(3 + 2*math.Sin(2*math.Pi*(hour-14)/24) + rng.NormFloat64())
		gust := wind * (1.3 + 0.2*rng.Float64())
		wdir := math.Mod(220+rng.NormFloat64()*30+360, 360)
		solar := math.Max(0, 900*math.Sin(math.Pi*(hour-6)/12))
		if rng.Float64() < 0.02 {
			rain += 0.01 * float64(1+rng.IntN(5))
		}

		if inFlat {
			tempC = 18.5
		}
		if i > 0 && i%spikeEvery == 0 && !inFlat {
			tempC += 25
			a.spikeRows = append(a.spikeRows, i)
		}
		if i == n-1 {
			rh = 140
			a.rangeRows = append(a.rangeRows, i)
		}

		rows = append(rows, []string{
			ts.Format("2006-01-02 15:04"),
			f1(tempC*9/5 + 32),
			f1(rh),
			f1(pres),
			f1(wind / 0.44704),
			strconv.Itoa(int(math.Round(wdir))),
			f1(gust / 0.44704),
			strconv.FormatFloat(rain, 'f', 2, 64),
			strconv.Itoa(int(math.Round(solar))),
		})
	}
	return rows, a
}

func f1(v float64) string { return strconv.FormatFloat(v, 'f', 1, 64) }

func clamp(v, lo, hi float64) float64 { return math.Min(math.Max(v, lo), hi) }

func writeCSV(path string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		f.Close()
		return err
	}
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// mapping describes the generated CSV.
func mapping() domain.Mapping {
	return domain.Mapping{
		Version: 1,
		TS:      domain.TimestampMapping{Col: "Timestamp"},
		Fields: map[string]domain.FieldMapping{
			domain.VarTemp:  {Col: "TempF", Unit: "°F", Confidence: 1},
			domain.VarRH:    {Col: "Humidity", Unit: "%", Confidence: 1},
			domain.VarPres:  {Col: "PressureMbar", Unit: "mbar", Confidence: 1},
			domain.VarWspd:  {Col: "WindMph", Unit: "mph", Confidence: 1},
			domain.VarWdir:  {Col: "WindDir", Unit: "deg", Confidence: 1},
			domain.VarGust:  {Col: "GustMph", Unit: "mph", Confidence: 1},
			domain.VarRain:  {Col: "RainIn", Unit: "in", Confidence: 1},
			domain.VarSolar: {Col: "Solar", Unit: "W/m2", Confidence: 1},
		},
	}
}

func writeMapping(path string) error {
	data, err := yaml.Marshal(mapping())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
