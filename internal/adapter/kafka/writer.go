package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/couchcryptid/covid-report-etl/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer publishes merged rows to a Kafka topic, one message per row.
// It implements pipeline.Publisher.
type Writer struct {
	writer    *kafkago.Writer
	geoColumn string
	logger    *slog.Logger
}

// NewWriter creates a Kafka producer for topic. Messages are keyed by the
// value of geoColumn so one region's rows stay on one partition in date
// order.
func NewWriter(brokers []string, topic, geoColumn string, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, geoColumn: geoColumn, logger: logger}
}

// Name identifies the sink in logs and metrics.
func (w *Writer) Name() string { return "kafka" }

// Publish serializes rows and writes them in a single WriteMessages call.
func (w *Writer) Publish(ctx context.Context, date time.Time, schema domain.Schema, rows []domain.Row) error {
	if len(rows) == 0 {
		return nil
	}
	now := time.Now().UTC()
	msgs := make([]kafkago.Message, len(rows))
	for i := range rows {
		msg, err := serializeToMessage(schema, rows[i], w.geoColumn, now)
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write %d rows for %s: %w", len(rows), domain.FormatDate(date), err)
	}
	w.logger.Debug("rows published", "sink", w.Name(), "date", domain.FormatDate(date), "rows", len(rows))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals one row into a Kafka message.
func serializeToMessage(schema domain.Schema, row domain.Row, geoColumn string, publishedAt time.Time) (kafkago.Message, error) {
	data, err := json.Marshal(row.Record(schema))
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize row: %w", err)
	}
	reportDate := row.ReportDate.Format(domain.ISODateLayout)
	key := reportDate
	if v, ok := row.Get(schema, geoColumn); ok && v.String() != "" {
		key = v.String()
	}
	return kafkago.Message{
		Key:   []byte(key),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "report_date", Value: []byte(reportDate)},
			{Key: "schema_columns", Value: []byte(strconv.Itoa(schema.Len()))},
			{Key: "published_at", Value: []byte(publishedAt.Format(time.RFC3339))},
		},
	}, nil
}
