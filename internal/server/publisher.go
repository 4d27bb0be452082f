package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/spacesedan/sentiboard/internal/models"
	"github.com/spacesedan/sentiboard/internal/utils"
)

// ResultsSink receives batches of persisted results;
// *kafka_client.ResultsProducer implements it.
type ResultsSink interface {
	PublishResults(ctx context.Context, results []models.SentimentResult) error
}

// ResultPublisher buffers saved results and hands them to the sink when the
// buffer fills or the flush interval passes.
type ResultPublisher struct {
	sink     ResultsSink
	buffer   *utils.BatchBuffer[models.SentimentResult]
	full     chan struct{}
	interval time.Duration
	clock    clockwork.Clock
	log      *slog.Logger
}

func NewResultPublisher(sink ResultsSink, batchSize int, interval time.Duration, clock clockwork.Clock, logger *slog.Logger) *ResultPublisher {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ResultPublisher{
		sink:     sink,
		buffer:   utils.NewBatchBuffer[models.SentimentResult](batchSize),
		full:     make(chan struct{}, 1),
		interval: interval,
		clock:    clock,
		log:      logger,
	}
}

func (p *ResultPublisher) Enqueue(result models.SentimentResult) {
	if p.buffer.Add(result) {
		select {
		case p.full <- struct{}{}:
		default:
		}
	}
}

// Run flushes until ctx ends, then flushes whatever is left.
func (p *ResultPublisher) Run(ctx context.Context) {
	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			p.flush(flushCtx)
			cancel()
			return
		case <-ticker.Chan():
			p.flush(ctx)
		case <-p.full:
			p.flush(ctx)
		}
	}
}

func (p *ResultPublisher) flush(ctx context.Context) {
	batch := p.buffer.GetAndClear()
	if len(batch) == 0 {
		return
	}
	p.log.Info("[ResultPublisher] Processing batch", slog.Int("batch_size", len(batch)))
	if err := p.sink.PublishResults(ctx, batch); err != nil {
		p.log.Error("[ResultPublisher] Failed to publish batch",
			slog.Int("batch_size", len(batch)),
			slog.String("error", err.Error()))
	}
}
