package kafka_client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/confluentinc/confluent-kafka-go/kafka"

	"github.com/spacesedan/sentiboard/internal/models"
)

// ResultsProducer publishes persisted results transactionally, one
// transaction per batch, keyed by result id.
type ResultsProducer struct {
	producer *kafka.Producer
	topic    string
	log      *slog.Logger
}

func NewResultsProducer(ctx context.Context, cfg KafkaConfig, logger *slog.Logger) (*ResultsProducer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("[KafkaClient] Initializing Kafka Producer...", slog.String("broker", cfg.Broker))

	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers":                     cfg.Broker,
		"security.protocol":                     "PLAINTEXT",
		"api.version.request":                   "true",
		"enable.idempotence":                    true,
		"acks":                                  "all",
		"max.in.flight.requests.per.connection": 1,
		"transactional.id":                      cfg.TransactionalID,
	})
	if err != nil {
		return nil, fmt.Errorf("[KafkaClient] Failed to create producer: %w", err)
	}

	if err := p.InitTransactions(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("[KafkaClient] Failed to init transactions: %w", err)
	}

	go drainEvents(p, logger)

	logger.Info("[KafkaClient] Kafka Producer initialized successfully")
	return &ResultsProducer{producer: p, topic: cfg.Topic, log: logger}, nil
}

// drainEvents logs delivery failures reported on the producer's event channel.
func drainEvents(p *kafka.Producer, logger *slog.Logger) {
	for e := range p.Events() {
		if m, ok := e.(*kafka.Message); ok && m.TopicPartition.Error != nil {
			logger.Warn("[KafkaClient] Delivery failed",
				slog.String("error", m.TopicPartition.Error.Error()))
		}
	}
}

// PublishResults sends the batch in a single transaction; on any failure the
// transaction is aborted and nothing from the batch is visible to consumers.
func (rp *ResultsProducer) PublishResults(ctx context.Context, results []models.SentimentResult) error {
	if len(results) == 0 {
		return nil
	}
	if err := rp.producer.BeginTransaction(); err != nil {
		return fmt.Errorf("[KafkaClient] failed to begin transaction: %w", err)
	}

	for _, result := range results {
		data, err := json.Marshal(result)
		if err != nil {
			return rp.abort(ctx, fmt.Errorf("failed to marshal result %s: %w", result.ID, err))
		}
		msg := &kafka.Message{
			TopicPartition: kafka.TopicPartition{Topic: &rp.topic, Partition: kafka.PartitionAny},
			Key:            []byte(result.ID),
			Value:          data,
		}

		for i := 0; i < MAX_RETRIES; i++ {
			if err = rp.producer.Produce(msg, nil); err == nil {
				break
			}
			rp.log.Warn("[KafkaClient] Failed to produce message, retrying...",
				slog.Int("attempt", i+1),
				slog.String("error", err.Error()))
		}
		if err != nil {
			return rp.abort(ctx, err)
		}
	}

	var commitErr error
	for i := 0; i < MAX_RETRIES; i++ {
		if commitErr = rp.producer.CommitTransaction(ctx); commitErr == nil {
			break
		}
		rp.log.Warn("[KafkaClient] Failed to commit transaction, retrying...",
			slog.Int("attempt", i+1))
	}
	if commitErr != nil {
		return rp.abort(ctx, fmt.Errorf("failed to commit after %d attempts: %w", MAX_RETRIES, commitErr))
	}

	rp.log.Info("[KafkaClient] Published sentiment results",
		slog.String("topic", rp.topic),
		slog.Int("count", len(results)))
	return nil
}

func (rp *ResultsProducer) abort(ctx context.Context, cause error) error {
	if err := rp.producer.AbortTransaction(ctx); err != nil {
		return fmt.Errorf("[KafkaClient] failed to abort transaction after %v: %w", cause, err)
	}
	return fmt.Errorf("[KafkaClient] batch aborted: %w", cause)
}

func (rp *ResultsProducer) Close() {
	rp.log.Info("[KafkaClient] Flushing Kafka producer before shutdown...")
	if remaining := rp.producer.Flush(int(FLUSH_TIMEOUT.Milliseconds())); remaining > 0 {
		rp.log.Warn("[KafkaClient] Not all messages were delivered before shutdown",
			slog.Int("remaining", remaining))
	}
	rp.producer.Close()
	rp.log.Info("[KafkaClient] Kafka producer shut down")
}
