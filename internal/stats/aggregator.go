// Package stats owns the single displayed StatsSnapshot. Producers always
// hand over a complete snapshot; it replaces the held one without merging.
package stats

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/spacesedan/sentiboard/internal/models"
)

type Fetcher interface {
	FetchStats(ctx context.Context) (models.StatsSnapshot, error)
}

type Aggregator struct {
	current atomic.Pointer[models.StatsSnapshot]

	// swapMu orders epoch checks against stores; readers never take it.
	swapMu sync.Mutex
	epoch  uint64

	listenersMu sync.Mutex
	listeners   []func(models.StatsSnapshot)

	fetcher Fetcher
	log     *slog.Logger
}

func NewAggregator(fetcher Fetcher, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Aggregator{fetcher: fetcher, log: logger}
	zero := models.ZeroSnapshot()
	a.current.Store(&zero)
	return a
}

// OnChange registers a callback run after every replacement.
func (a *Aggregator) OnChange(fn func(models.StatsSnapshot)) {
	a.listenersMu.Lock()
	defer a.listenersMu.Unlock()
	a.listeners = append(a.listeners, fn)
}

// Current returns a copy of the held snapshot.
func (a *Aggregator) Current() models.StatsSnapshot {
	return a.current.Load().Clone()
}

// Apply replaces the held snapshot verbatim. Applying the same value twice
// is a no-op in effect; an older value simply wins until the next update.
func (a *Aggregator) Apply(s models.StatsSnapshot) {
	if err := s.Validate(); err != nil {
		a.log.Warn("[StatsAggregator] Applying inconsistent snapshot",
			slog.String("error", err.Error()))
	}
	a.swapMu.Lock()
	a.store(s)
	a.swapMu.Unlock()
	a.notify()
}

// Refresh pulls a fresh snapshot. If Reset ran while the fetch was in
// flight, the fetched value is discarded. Fetch errors leave the held
// snapshot untouched.
func (a *Aggregator) Refresh(ctx context.Context) error {
	if a.fetcher == nil {
		return nil
	}

	a.swapMu.Lock()
	started := a.epoch
	a.swapMu.Unlock()

	snap, err := a.fetcher.FetchStats(ctx)
	if err != nil {
		a.log.Warn("[StatsAggregator] Refresh failed, keeping previous snapshot",
			slog.String("error", err.Error()))
		return err
	}

	a.swapMu.Lock()
	if a.epoch != started {
		a.swapMu.Unlock()
		a.log.Debug("[StatsAggregator] Discarding refresh that raced a reset")
		return nil
	}
	a.store(snap)
	a.swapMu.Unlock()

	a.log.Debug("[StatsAggregator] Snapshot refreshed", slog.Int("total_entries", snap.TotalEntries))
	a.notify()
	return nil
}

// Reset forces the zero snapshot and invalidates any in-flight Refresh.
func (a *Aggregator) Reset() {
	a.swapMu.Lock()
	a.epoch++
	a.store(models.ZeroSnapshot())
	a.swapMu.Unlock()
	a.notify()
}

func (a *Aggregator) store(s models.StatsSnapshot) {
	c := s.Clone()
	a.current.Store(&c)
}

func (a *Aggregator) notify() {
	a.listenersMu.Lock()
	listeners := slices.Clone(a.listeners)
	a.listenersMu.Unlock()
	if len(listeners) == 0 {
		return
	}
	snap := a.Current()
	for _, fn := range listeners {
		fn(snap)
	}
}
