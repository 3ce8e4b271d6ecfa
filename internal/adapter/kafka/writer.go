// Package kafka publishes persisted measurement batches to a Kafka topic
// for downstream consumers. The sink is feature-flagged and best effort: a
// publish failure never affects what was written to the database.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/tidemark-obs/obs-ingest/internal/config"
	"github.com/tidemark-obs/obs-ingest/internal/domain"
)

// Writer produces measurement records to the sink topic.
// It implements pipeline.Sink.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured sink topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// Publish serializes and writes a batch of records in a single
// WriteMessages call. Keys are the source ID so one file's records stay
// ordered within a partition.
func (w *Writer) Publish(ctx context.Context, records []domain.MeasurementRecord) error {
	if len(records) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(records))
	for i := range records {
		msg, err := serializeToMessage(records[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	return w.writer.WriteMessages(ctx, msgs...)
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a MeasurementRecord into a Kafka message.
func serializeToMessage(rec domain.MeasurementRecord) (kafkago.Message, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize measurement: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(rec.SourceID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "parameter_code", Value: []byte(rec.ParameterCode)},
			{Key: "ingested_at", Value: []byte(rec.IngestedAt.Format(time.RFC3339))},
		},
	}, nil
}
