// Package kafkaout publishes finished correlation results to a Kafka topic
// so downstream consumers can react without polling the store.
package kafkaout

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/hollyoak/citysignal/internal/domain"
)

// Publisher produces correlation results to a Kafka topic.
// It implements pipeline.ResultPublisher.
type Publisher struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewPublisher creates a Kafka producer for the results topic.
func NewPublisher(brokers []string, topic string, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Publisher{writer: w, logger: logger}
}

// PublishResult serializes and publishes one correlation result.
func (p *Publisher) PublishResult(ctx context.Context, res domain.CorrelationResult) error {
	msg, err := serializeToMessage(res)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafkaout: write result %s/%s: %w", res.SeriesAKey, res.SeriesBKey, err)
	}
	p.logger.Debug("result published", "series_a", res.SeriesAKey, "series_b", res.SeriesBKey)
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// serializeToMessage marshals a CorrelationResult into a Kafka message keyed
// by the series pair, so re-runs of the same pair land in one partition.
func serializeToMessage(res domain.CorrelationResult) (kafkago.Message, error) {
	data, err := json.Marshal(res)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("kafkaout: serialize result: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(res.SeriesAKey + "|" + res.SeriesBKey),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "lag", Value: []byte(strconv.Itoa(res.Lag))},
			{Key: "computed_at", Value: []byte(res.ComputedAt.Format(time.RFC3339))},
		},
	}, nil
}
