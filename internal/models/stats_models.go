package models

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

const RecentEntriesLimit = 10

var ClassColors = map[SentimentClass]string{
	Positive: "#22c55e",
	Negative: "#ef4444",
	Neutral:  "#6b7280",
}

type ClassStat struct {
	Class      SentimentClass
	Count      int
	Percentage float64
}

// StatsSnapshot is replaced wholesale on every fetch or push; never diffed.
type StatsSnapshot struct {
	TotalEntries  int
	LastUpdated   *time.Time
	PerClass      []ClassStat
	RecentEntries []SentimentResult
}

func ZeroSnapshot() StatsSnapshot {
	return StatsSnapshot{
		PerClass:      []ClassStat{},
		RecentEntries: []SentimentResult{},
	}
}

func (s StatsSnapshot) IsZero() bool {
	return s.TotalEntries == 0 && len(s.RecentEntries) == 0
}

// Clone deep-copies the snapshot so a held value can't be mutated through
// a slice shared with the producer.
func (s StatsSnapshot) Clone() StatsSnapshot {
	out := StatsSnapshot{TotalEntries: s.TotalEntries}
	if s.LastUpdated != nil {
		t := *s.LastUpdated
		out.LastUpdated = &t
	}
	out.PerClass = append([]ClassStat{}, s.PerClass...)
	out.RecentEntries = make([]SentimentResult, 0, len(s.RecentEntries))
	for _, r := range s.RecentEntries {
		out.RecentEntries = append(out.RecentEntries, r.Clone())
	}
	return out
}

// Validate reports snapshots whose counts don't add up or whose recent
// entries exceed the limit.
func (s StatsSnapshot) Validate() error {
	sum := 0
	pct := 0.0
	for _, c := range s.PerClass {
		sum += c.Count
		pct += c.Percentage
	}
	if sum != s.TotalEntries {
		return fmt.Errorf("per-class counts sum to %d, total_entries is %d", sum, s.TotalEntries)
	}
	if s.TotalEntries > 0 && math.Abs(pct-100) > 0.1*float64(len(s.PerClass)) {
		return fmt.Errorf("percentages sum to %.2f", pct)
	}
	if len(s.RecentEntries) > RecentEntriesLimit {
		return fmt.Errorf("%d recent entries exceeds limit %d", len(s.RecentEntries), RecentEntriesLimit)
	}
	return nil
}

// RoundPercentage rounds count/total to one decimal place.
func RoundPercentage(count, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(count)*1000/float64(total)) / 10
}

// BuildSnapshot assembles a snapshot from raw per-class counts and candidate
// recent entries. Classes are ordered by count desc, then name; recent entries
// newest-first and truncated.
func BuildSnapshot(counts map[SentimentClass]int, lastUpdated *time.Time, recent []SentimentResult) StatsSnapshot {
	snap := ZeroSnapshot()
	for _, n := range counts {
		snap.TotalEntries += n
	}
	for class, n := range counts {
		if n == 0 {
			continue
		}
		snap.PerClass = append(snap.PerClass, ClassStat{
			Class:      class,
			Count:      n,
			Percentage: RoundPercentage(n, snap.TotalEntries),
		})
	}
	sort.Slice(snap.PerClass, func(i, j int) bool {
		if snap.PerClass[i].Count != snap.PerClass[j].Count {
			return snap.PerClass[i].Count > snap.PerClass[j].Count
		}
		return snap.PerClass[i].Class < snap.PerClass[j].Class
	})
	if lastUpdated != nil {
		t := *lastUpdated
		snap.LastUpdated = &t
	}
	snap.RecentEntries = newestFirst(recent)
	return snap
}

func newestFirst(entries []SentimentResult) []SentimentResult {
	out := make([]SentimentResult, len(entries))
	copy(out, entries)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > RecentEntriesLimit {
		out = out[:RecentEntriesLimit]
	}
	return out
}

// Wire shapes for GET /api/sentiment-stats and the data-updated event.
type (
	StatsResponse struct {
		DatabaseInfo  DatabaseInfo      `json:"database_info"`
		Statistics    []ClassStatistic  `json:"statistics"`
		ChartData     []ChartDatum      `json:"chart_data"`
		RecentEntries []SentimentResult `json:"recent_entries"`
	}
	DatabaseInfo struct {
		TotalEntries int        `json:"total_entries"`
		LastUpdated  *time.Time `json:"last_updated"`
	}
	ClassStatistic struct {
		PredictedClass SentimentClass `json:"predicted_class"`
		Count          int            `json:"count"`
		Percentage     float64        `json:"percentage"`
	}
	ChartDatum struct {
		Label string `json:"label"`
		Count int    `json:"count"`
		Color string `json:"color"`
	}
)

// Snapshot converts the wire payload, enforcing newest-first order and the
// recent-entries bound.
func (r StatsResponse) Snapshot() StatsSnapshot {
	snap := ZeroSnapshot()
	snap.TotalEntries = r.DatabaseInfo.TotalEntries
	if r.DatabaseInfo.LastUpdated != nil {
		t := *r.DatabaseInfo.LastUpdated
		snap.LastUpdated = &t
	}
	for _, s := range r.Statistics {
		snap.PerClass = append(snap.PerClass, ClassStat{
			Class:      s.PredictedClass,
			Count:      s.Count,
			Percentage: s.Percentage,
		})
	}
	snap.RecentEntries = newestFirst(r.RecentEntries)
	return snap
}

func NewStatsResponse(s StatsSnapshot) StatsResponse {
	resp := StatsResponse{
		DatabaseInfo: DatabaseInfo{
			TotalEntries: s.TotalEntries,
			LastUpdated:  s.LastUpdated,
		},
		Statistics:    make([]ClassStatistic, 0, len(s.PerClass)),
		ChartData:     make([]ChartDatum, 0, len(s.PerClass)),
		RecentEntries: s.RecentEntries,
	}
	if resp.RecentEntries == nil {
		resp.RecentEntries = []SentimentResult{}
	}
	for _, c := range s.PerClass {
		resp.Statistics = append(resp.Statistics, ClassStatistic{
			PredictedClass: c.Class,
			Count:          c.Count,
			Percentage:     c.Percentage,
		})
		resp.ChartData = append(resp.ChartData, ChartDatum{
			Label: chartLabel(c.Class),
			Count: c.Count,
			Color: ClassColors[c.Class],
		})
	}
	return resp
}

func chartLabel(c SentimentClass) string {
	s := string(c)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
