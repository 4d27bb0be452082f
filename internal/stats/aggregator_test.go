package stats

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spacesedan/sentiboard/internal/logging"
	"github.com/spacesedan/sentiboard/internal/models"
)

type fetcherFunc func(ctx context.Context) (models.StatsSnapshot, error)

func (f fetcherFunc) FetchStats(ctx context.Context) (models.StatsSnapshot, error) { return f(ctx) }

func snapshotWithTotal(total int) models.StatsSnapshot {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	recent := []models.SentimentResult{{ID: "r1", Text: "t", PredictedClass: models.Positive, CreatedAt: now}}
	return models.BuildSnapshot(map[models.SentimentClass]int{models.Positive: total}, &now, recent)
}

func TestStartsAtZero(t *testing.T) {
	a := NewAggregator(nil, logging.Discard())
	snap := a.Current()
	assert.Equal(t, 0, snap.TotalEntries)
	assert.Empty(t, snap.RecentEntries)
}

func TestApplyIsIdempotent(t *testing.T) {
	a := NewAggregator(nil, logging.Discard())
	snap := snapshotWithTotal(4)

	a.Apply(snap)
	first := a.Current()
	a.Apply(snap)
	second := a.Current()

	assert.Equal(t, first, second)
	assert.Equal(t, 4, second.TotalEntries)
	assert.Len(t, second.RecentEntries, 1)
}

func TestOutOfOrderSnapshotsAreShownVerbatim(t *testing.T) {
	a := NewAggregator(nil, logging.Discard())

	a.Apply(snapshotWithTotal(10))
	a.Apply(snapshotWithTotal(7))

	assert.Equal(t, 7, a.Current().TotalEntries)
}

func TestApplyCopiesInput(t *testing.T) {
	a := NewAggregator(nil, logging.Discard())
	snap := snapshotWithTotal(2)
	a.Apply(snap)

	snap.RecentEntries[0].ID = "mutated"
	snap.PerClass[0].Count = 100

	got := a.Current()
	assert.Equal(t, "r1", got.RecentEntries[0].ID)
	assert.Equal(t, 2, got.PerClass[0].Count)
}

func TestRefreshReplacesSnapshot(t *testing.T) {
	a := NewAggregator(fetcherFunc(func(context.Context) (models.StatsSnapshot, error) {
		return snapshotWithTotal(3), nil
	}), logging.Discard())

	require.NoError(t, a.Refresh(context.Background()))
	assert.Equal(t, 3, a.Current().TotalEntries)
}

func TestRefreshFailureKeepsPreviousSnapshot(t *testing.T) {
	a := NewAggregator(fetcherFunc(func(context.Context) (models.StatsSnapshot, error) {
		return models.StatsSnapshot{}, errors.New("store down")
	}), logging.Discard())
	a.Apply(snapshotWithTotal(5))

	assert.Error(t, a.Refresh(context.Background()))
	assert.Equal(t, 5, a.Current().TotalEntries)
}

func TestResetWinsOverInFlightRefresh(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	a := NewAggregator(fetcherFunc(func(context.Context) (models.StatsSnapshot, error) {
		close(entered)
		<-release
		return snapshotWithTotal(9), nil
	}), logging.Discard())
	a.Apply(snapshotWithTotal(9))

	done := make(chan error)
	go func() { done <- a.Refresh(context.Background()) }()

	<-entered
	a.Reset()
	snap := a.Current()
	assert.Equal(t, 0, snap.TotalEntries)
	assert.Empty(t, snap.RecentEntries)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, 0, a.Current().TotalEntries, "stale refresh must be discarded")
}

func TestPushAfterResetIsApplied(t *testing.T) {
	a := NewAggregator(nil, logging.Discard())
	a.Apply(snapshotWithTotal(3))
	a.Reset()
	a.Apply(snapshotWithTotal(1))
	assert.Equal(t, 1, a.Current().TotalEntries)
}

func TestOnChangeReceivesEachReplacement(t *testing.T) {
	a := NewAggregator(nil, logging.Discard())
	var (
		mu     sync.Mutex
		totals []int
	)
	a.OnChange(func(s models.StatsSnapshot) {
		mu.Lock()
		defer mu.Unlock()
		totals = append(totals, s.TotalEntries)
	})

	a.Apply(snapshotWithTotal(2))
	a.Reset()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{2, 0}, totals)
}

func TestConcurrentReadersSeeWholeSnapshots(t *testing.T) {
	a := NewAggregator(nil, logging.Discard())
	var wg sync.WaitGroup
	stop := make(chan struct{})

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				snap := a.Current()
				sum := 0
				for _, c := range snap.PerClass {
					sum += c.Count
				}
				assert.Equal(t, snap.TotalEntries, sum)
			}
		}()
	}

	for i := 1; i <= 200; i++ {
		a.Apply(snapshotWithTotal(i))
		if i%50 == 0 {
			a.Reset()
		}
	}
	close(stop)
	wg.Wait()
}
