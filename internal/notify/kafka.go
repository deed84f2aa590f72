package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"crossfund/internal/metrics"
	"crossfund/internal/model"
)

const (
	defaultKafkaBuffer    = 1024
	defaultKafkaBatchSize = 100
)

// KafkaConfig holds the Kafka producer settings.
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	BufferSize   int
	BatchSize    int
	WriteTimeout time.Duration
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Event is the payload published for each ledger event.
type Event struct {
	Event        string             `json:"event"`
	Contribution model.Contribution `json:"contribution"`
}

// KafkaPublisher publishes ledger events keyed by project id.
// Events are buffered so the ledger never waits on the broker.
type KafkaPublisher struct {
	writer       messageWriter
	queue        chan kafka.Message
	batchSize    int
	writeTimeout time.Duration
	logger       *zap.Logger
}

func NewKafkaPublisher(cfg KafkaConfig, logger *zap.Logger) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
	return newKafkaPublisher(writer, cfg, logger)
}

func newKafkaPublisher(writer messageWriter, cfg KafkaConfig, logger *zap.Logger) *KafkaPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultKafkaBuffer
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultKafkaBatchSize
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	return &KafkaPublisher{
		writer:       writer,
		queue:        make(chan kafka.Message, cfg.BufferSize),
		batchSize:    cfg.BatchSize,
		writeTimeout: cfg.WriteTimeout,
		logger:       logger,
	}
}

// Subscriber returns a ledger callback that enqueues events for publishing.
func (p *KafkaPublisher) Subscriber() func(event string, rec model.Contribution) {
	return func(event string, rec model.Contribution) {
		data, err := json.Marshal(Event{Event: event, Contribution: rec})
		if err != nil {
			p.logger.Warn("marshal kafka event failed", zap.String("contribution_id", rec.ID), zap.Error(err))
			return
		}
		msg := kafka.Message{Key: []byte(rec.ProjectID), Value: data, Time: rec.Timestamp}
		select {
		case p.queue <- msg:
		default:
			metrics.EventsPublished.WithLabelValues("kafka", "dropped").Inc()
			p.logger.Warn("kafka buffer full, dropping event", zap.String("contribution_id", rec.ID))
		}
	}
}

// Run publishes queued events in batches until ctx is done.
func (p *KafkaPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), p.writeTimeout)
			p.write(flushCtx, p.drain(nil))
			cancel()
			return ctx.Err()
		case msg := <-p.queue:
			p.write(ctx, p.drain([]kafka.Message{msg}))
		}
	}
}

func (p *KafkaPublisher) drain(batch []kafka.Message) []kafka.Message {
	for len(batch) < p.batchSize {
		select {
		case msg := <-p.queue:
			batch = append(batch, msg)
		default:
			return batch
		}
	}
	return batch
}

func (p *KafkaPublisher) write(ctx context.Context, batch []kafka.Message) {
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, p.writeTimeout)
	defer cancel()

	if err := p.writer.WriteMessages(ctx, batch...); err != nil {
		metrics.EventsPublished.WithLabelValues("kafka", "failed").Add(float64(len(batch)))
		p.logger.Warn("publish kafka events failed", zap.Int("events", len(batch)), zap.Error(err))
		return
	}
	metrics.EventsPublished.WithLabelValues("kafka", "ok").Add(float64(len(batch)))
}

// Close closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
