package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/metdata-etl/internal/config"
	"github.com/couchcryptid/metdata-etl/internal/domain"
	"github.com/couchcryptid/metdata-etl/internal/pipeline"
)

// batchSize bounds a single WriteMessages call.
const batchSize = 1000

// Record is the JSON payload published for one processed row. Missing
// values are omitted from Values.
type Record struct {
	Station string             `json:"station"`
	TS      time.Time          `json:"ts_utc"`
	Values  map[string]float64 `json:"values"`
	Flags   map[string]bool    `json:"flags"`
}

// Writer produces one message per processed row to a Kafka topic.
// It implements pipeline.Loader.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

func (w *Writer) Name() string { return "kafka" }

// Load publishes every row of the processed frame. Messages are keyed by
// station, so a station's rows land on one partition in index order.
func (w *Writer) Load(ctx context.Context, ds *pipeline.Dataset) error {
	n := ds.Frame.Len()
	for start := 0; start < n; start += batchSize {
		end := min(start+batchSize, n)
		msgs := make([]kafkago.Message, 0, end-start)
		for i := start; i < end; i++ {
			msg, err := serializeToMessage(ds.Station, ds.ProcessedAt, rowRecord(ds.Station, ds.Frame, i))
			if err != nil {
				return err
			}
			msgs = append(msgs, msg)
		}
		if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
			return fmt.Errorf("write messages: %w", err)
		}
	}
	w.logger.Debug("published rows", "topic", w.writer.Topic, "rows", n)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

func rowRecord(station string, f *domain.Frame, i int) Record {
	rec := Record{
		Station: station,
		TS:      f.Time(i),
		Values:  make(map[string]float64),
		Flags:   make(map[string]bool),
	}
	for _, name := range f.FloatColumns() {
		x, _ := f.Float(name)
		if !math.IsNaN(x[i]) && !math.IsInf(x[i], 0) {
			rec.Values[name] = x[i]
		}
	}
	for _, name := range f.FlagColumns() {
		b, _ := f.Flag(name)
		rec.Flags[name] = b[i]
	}
	return rec
}

// serializeToMessage marshals a Record into a Kafka message keyed by
// station. The row timestamp travels in the payload and the ts_utc header.
func serializeToMessage(station string, processedAt time.Time, rec Record) (kafkago.Message, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize record: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(station),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "station", Value: []byte(station)},
			{Key: domain.IndexName, Value: []byte(rec.TS.UTC().Format(time.RFC3339))},
			{Key: "processed_at", Value: []byte(processedAt.Format(time.RFC3339))},
		},
	}, nil
}
