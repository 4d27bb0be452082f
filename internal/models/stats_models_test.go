package models

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundPercentage(t *testing.T) {
	assert.Equal(t, 0.0, RoundPercentage(1, 0))
	assert.Equal(t, 33.3, RoundPercentage(1, 3))
	assert.Equal(t, 66.7, RoundPercentage(2, 3))
	assert.Equal(t, 100.0, RoundPercentage(5, 5))
}

func TestBuildSnapshotInvariants(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var recent []SentimentResult
	for i := 0; i < 15; i++ {
		recent = append(recent, SentimentResult{
			ID:        fmt.Sprintf("id-%d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}
	last := base.Add(14 * time.Minute)

	snap := BuildSnapshot(map[SentimentClass]int{Positive: 1, Negative: 1, Neutral: 1}, &last, recent)

	require.NoError(t, snap.Validate())
	assert.Equal(t, 3, snap.TotalEntries)
	require.Len(t, snap.PerClass, 3)
	assert.Equal(t, Negative, snap.PerClass[0].Class, "ties order by class name")
	assert.Equal(t, 33.3, snap.PerClass[0].Percentage)
	require.Len(t, snap.RecentEntries, RecentEntriesLimit)
	assert.Equal(t, "id-14", snap.RecentEntries[0].ID)
	assert.Equal(t, "id-5", snap.RecentEntries[RecentEntriesLimit-1].ID)
}

func TestBuildSnapshotOrdersByCount(t *testing.T) {
	snap := BuildSnapshot(map[SentimentClass]int{Positive: 2, Negative: 5, Neutral: 0}, nil, nil)
	require.Len(t, snap.PerClass, 2)
	assert.Equal(t, Negative, snap.PerClass[0].Class)
	assert.Equal(t, 71.4, snap.PerClass[0].Percentage)
	assert.Equal(t, 28.6, snap.PerClass[1].Percentage)
	assert.Nil(t, snap.LastUpdated)
	assert.NotNil(t, snap.RecentEntries)
}

func TestValidateDetectsCountMismatch(t *testing.T) {
	snap := StatsSnapshot{TotalEntries: 4, PerClass: []ClassStat{{Class: Positive, Count: 3, Percentage: 100}}}
	assert.Error(t, snap.Validate())
}

func TestStatsResponseRoundTripThroughWire(t *testing.T) {
	last := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	snap := BuildSnapshot(map[SentimentClass]int{Positive: 3, Neutral: 1}, &last, []SentimentResult{
		{ID: "old", CreatedAt: last.Add(-time.Hour)},
		{ID: "new", CreatedAt: last},
	})

	body, err := json.Marshal(NewStatsResponse(snap))
	require.NoError(t, err)
	assert.Contains(t, string(body), `"color":"#22c55e"`)
	assert.Contains(t, string(body), `"label":"Positive"`)

	var resp StatsResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	got := resp.Snapshot()

	assert.Equal(t, 4, got.TotalEntries)
	require.NotNil(t, got.LastUpdated)
	assert.True(t, last.Equal(*got.LastUpdated))
	assert.Equal(t, "new", got.RecentEntries[0].ID)
	assert.Equal(t, snap.PerClass, got.PerClass)
}

func TestZeroStatsResponseHasNullLastUpdated(t *testing.T) {
	body, err := json.Marshal(NewStatsResponse(ZeroSnapshot()))
	require.NoError(t, err)
	assert.Contains(t, string(body), `"last_updated":null`)
	assert.Contains(t, string(body), `"recent_entries":[]`)
}

func TestSnapshotCloneIsIndependent(t *testing.T) {
	now := time.Now()
	snap := BuildSnapshot(map[SentimentClass]int{Positive: 1}, &now, []SentimentResult{{ID: "a"}})
	c := snap.Clone()
	c.PerClass[0].Count = 99
	c.RecentEntries[0].ID = "b"
	*c.LastUpdated = now.Add(time.Hour)

	assert.Equal(t, 1, snap.PerClass[0].Count)
	assert.Equal(t, "a", snap.RecentEntries[0].ID)
	assert.True(t, now.Equal(*snap.LastUpdated))
}
