// Package db holds the backing-store repositories behind the store server.
package db

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/spacesedan/sentiboard/internal/models"
)

const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendDynamoDB = "dynamodb"
)

var ErrInvalidResult = errors.New("invalid sentiment result")

// Repository persists classified results and derives statistics from them.
// Save assigns ID and CreatedAt and returns the stored copy.
type Repository interface {
	Save(ctx context.Context, result models.SentimentResult) (models.SentimentResult, error)
	Stats(ctx context.Context) (models.StatsSnapshot, error)
	Clear(ctx context.Context) error
	Close() error
}

// prepare validates an incoming result and stamps server-owned fields.
func prepare(result models.SentimentResult, clock clockwork.Clock) (models.SentimentResult, error) {
	if err := result.Validate(); err != nil {
		return models.SentimentResult{}, fmt.Errorf("%w: %v", ErrInvalidResult, err)
	}
	out := result.Clone()
	out.ID = uuid.NewString()
	out.CreatedAt = clock.Now().UTC()
	return out, nil
}

// snapshotFrom computes stats over an unordered set of stored results.
func snapshotFrom(results []models.SentimentResult) models.StatsSnapshot {
	counts := make(map[models.SentimentClass]int)
	var latest *models.SentimentResult
	for i := range results {
		counts[results[i].PredictedClass]++
		if latest == nil || results[i].CreatedAt.After(latest.CreatedAt) {
			latest = &results[i]
		}
	}
	if latest == nil {
		return models.ZeroSnapshot()
	}
	lastUpdated := latest.CreatedAt
	return models.BuildSnapshot(counts, &lastUpdated, results)
}

type MemoryRepository struct {
	mu      sync.RWMutex
	results []models.SentimentResult
	clock   clockwork.Clock
}

func NewMemoryRepository(clock clockwork.Clock) *MemoryRepository {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryRepository{clock: clock}
}

func (m *MemoryRepository) Save(_ context.Context, result models.SentimentResult) (models.SentimentResult, error) {
	stored, err := prepare(result, m.clock)
	if err != nil {
		return models.SentimentResult{}, err
	}
	m.mu.Lock()
	m.results = append(m.results, stored)
	m.mu.Unlock()
	return stored.Clone(), nil
}

func (m *MemoryRepository) Stats(context.Context) (models.StatsSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Reverse insertion order so equal timestamps still list the newest save first.
	results := make([]models.SentimentResult, 0, len(m.results))
	for i := len(m.results) - 1; i >= 0; i-- {
		results = append(results, m.results[i].Clone())
	}
	return snapshotFrom(results), nil
}

func (m *MemoryRepository) Clear(context.Context) error {
	m.mu.Lock()
	m.results = nil
	m.mu.Unlock()
	return nil
}

func (m *MemoryRepository) Close() error { return nil }
