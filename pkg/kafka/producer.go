package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"

	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Producer publishes clover events. One writer serves every outbound topic;
// the topic is set per message.
type Producer struct {
	writer *kafka.Writer
	logger ectologger.Logger
}

// ProducerConfig holds Kafka producer configuration
type ProducerConfig struct {
	Brokers      []string
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks int
	Compression  string
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg ProducerConfig, logger ectologger.Logger) *Producer {
	compression := kafka.Snappy
	switch cfg.Compression {
	case "gzip":
		compression = kafka.Gzip
	case "lz4":
		compression = kafka.Lz4
	case "zstd":
		compression = kafka.Zstd
	case "none":
		compression = 0
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.LeastBytes{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:            compression,
		AllowAutoTopicCreation: true,
	}

	return &Producer{
		writer: writer,
		logger: logger,
	}
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// Publish marshals the envelope and writes it to the topic, keyed so all
// events of one tenant land on one partition in order.
func (p *Producer) Publish(ctx context.Context, topic string, env *Envelope) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.Publish")
	defer span.End()

	if env.Timestamp.IsZero() {
		env.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(env)
	if err != nil {
		return err
	}

	headers := []kafka.Header{
		{Key: "event_type", Value: []byte(env.Type)},
		{Key: "tenant_id", Value: []byte(env.TenantID)},
		{Key: "schema_version", Value: []byte(env.SchemaVersion)},
	}
	if tp := tracing.GetTraceParent(ctx); tp != "" {
		headers = append(headers, kafka.Header{Key: "traceparent", Value: []byte(tp)})
	}
	if ts := tracing.GetTraceState(ctx); ts != "" {
		headers = append(headers, kafka.Header{Key: "tracestate", Value: []byte(ts)})
	}

	msg := kafka.Message{
		Topic:   topic,
		Key:     []byte(env.TenantID),
		Value:   data,
		Headers: headers,
	}

	started := time.Now()
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		metrics.RecordKafkaPublish(topic, "error", time.Since(started).Seconds())
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"topic": topic,
			"type":  env.Type,
		}).Error("Failed to publish event")
		return err
	}
	metrics.RecordKafkaPublish(topic, "ok", time.Since(started).Seconds())

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"topic":     topic,
		"type":      env.Type,
		"tenant_id": env.TenantID,
	}).Debug("Published event")

	return nil
}
