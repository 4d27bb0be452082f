package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"github.com/spacesedan/sentiboard/internal/db"
	"github.com/spacesedan/sentiboard/internal/logging"
	"github.com/spacesedan/sentiboard/internal/models"
	"github.com/spacesedan/sentiboard/internal/realtime"
)

func newTestServer(t *testing.T, cfg Config) (*Server, *httptest.Server) {
	t.Helper()
	if cfg.Repo == nil {
		cfg.Repo = db.NewMemoryRepository(clockwork.NewRealClock())
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	if cfg.PollWait == 0 {
		cfg.PollWait = 2 * time.Second
	}
	s := New(cfg)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func positive(text string) models.SentimentResult {
	return models.SentimentResult{
		Text:           text,
		PredictedClass: models.Positive,
		Confidence:     0.94,
		AllProbabilities: map[models.SentimentClass]float64{
			models.Positive: 0.94, models.Negative: 0.03, models.Neutral: 0.03,
		},
	}
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func getStats(t *testing.T, base string) models.StatsResponse {
	t.Helper()
	resp, err := http.Get(base + STATS_PATH)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out models.StatsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestStatsEmptyStore(t *testing.T) {
	_, ts := newTestServer(t, Config{})

	resp, err := http.Get(ts.URL + STATS_PATH)
	require.NoError(t, err)
	defer resp.Body.Close()

	var raw map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
	assert.JSONEq(t, `{"total_entries":0,"last_updated":null}`, string(raw["database_info"]))
	assert.JSONEq(t, `[]`, string(raw["statistics"]))
	assert.JSONEq(t, `[]`, string(raw["chart_data"]))
	assert.JSONEq(t, `[]`, string(raw["recent_entries"]))
}

func TestSaveAndStats(t *testing.T) {
	_, ts := newTestServer(t, Config{})

	resp := postJSON(t, ts.URL+SAVE_PATH, positive("great"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var saved saveResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&saved))
	assert.NotEmpty(t, saved.Data.ID)
	assert.False(t, saved.Data.CreatedAt.IsZero())

	stats := getStats(t, ts.URL)
	assert.Equal(t, 1, stats.DatabaseInfo.TotalEntries)
	require.NotNil(t, stats.DatabaseInfo.LastUpdated)
	require.Len(t, stats.Statistics, 1)
	assert.Equal(t, models.ClassStatistic{PredictedClass: models.Positive, Count: 1, Percentage: 100}, stats.Statistics[0])
	assert.Equal(t, []models.ChartDatum{{Label: "Positive", Count: 1, Color: "#22c55e"}}, stats.ChartData)
	require.Len(t, stats.RecentEntries, 1)
	assert.Equal(t, saved.Data.ID, stats.RecentEntries[0].ID)
}

func TestSaveRejectsInvalid(t *testing.T) {
	_, ts := newTestServer(t, Config{})

	resp, err := http.Post(ts.URL+SAVE_PATH, "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	bad := positive("x")
	bad.PredictedClass = models.Negative
	resp = postJSON(t, ts.URL+SAVE_PATH, bad)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var e models.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&e))
	assert.Contains(t, e.Error, "arg-max")

	assert.Zero(t, getStats(t, ts.URL).DatabaseInfo.TotalEntries)
}

func TestClear(t *testing.T) {
	_, ts := newTestServer(t, Config{})
	postJSON(t, ts.URL+SAVE_PATH, positive("a"))
	postJSON(t, ts.URL+SAVE_PATH, positive("b"))

	req, err := http.NewRequest(http.MethodDelete, ts.URL+CLEAR_PATH, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	stats := getStats(t, ts.URL)
	assert.Zero(t, stats.DatabaseInfo.TotalEntries)
	assert.Nil(t, stats.DatabaseInfo.LastUpdated)
}

func TestPollHandshakeAndLongPoll(t *testing.T) {
	_, ts := newTestServer(t, Config{})

	resp, err := http.Get(ts.URL + realtime.PollPath + "?cursor=0&wait=0s")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode, "nothing published yet")

	type pollResult struct {
		status int
		event  models.RealtimeEvent
	}
	done := make(chan pollResult, 1)
	go func() {
		resp, err := http.Get(ts.URL + realtime.PollPath + "?cursor=0&wait=2s")
		if err != nil {
			done <- pollResult{}
			return
		}
		defer resp.Body.Close()
		var ev models.RealtimeEvent
		_ = json.NewDecoder(resp.Body).Decode(&ev)
		done <- pollResult{status: resp.StatusCode, event: ev}
	}()

	time.Sleep(100 * time.Millisecond)
	postJSON(t, ts.URL+SAVE_PATH, positive("wake"))

	select {
	case got := <-done:
		assert.Equal(t, http.StatusOK, got.status)
		assert.Equal(t, models.EventDataUpdated, got.event.Event)
		assert.Equal(t, uint64(1), got.event.Seq)
		require.NotNil(t, got.event.Data)
		assert.Equal(t, 1, got.event.Data.DatabaseInfo.TotalEntries)
	case <-time.After(3 * time.Second):
		t.Fatal("long poll did not return")
	}

	resp, err = http.Get(ts.URL + realtime.PollPath + "?cursor=1&wait=50ms")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestPollRejectsBadCursor(t *testing.T) {
	_, ts := newTestServer(t, Config{})
	resp, err := http.Get(ts.URL + realtime.PollPath + "?cursor=abc")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPollAnswersCursorAheadOfServer(t *testing.T) {
	_, ts := newTestServer(t, Config{})
	postJSON(t, ts.URL+SAVE_PATH, positive("after restart"))

	start := time.Now()
	resp, err := http.Get(ts.URL + realtime.PollPath + "?cursor=40&wait=2s")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Less(t, time.Since(start), time.Second)
	var ev models.RealtimeEvent
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ev))
	assert.Equal(t, uint64(1), ev.Seq)
}

func TestWebSocketDropsUnresponsiveClient(t *testing.T) {
	s, ts := newTestServer(t, Config{PingInterval: 50 * time.Millisecond})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Never reading means pings go unanswered.
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+realtime.WebSocketPath, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	require.Eventually(t, func() bool { return s.Hub().Subscribers() == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return s.Hub().Subscribers() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func readEvent(t *testing.T, ctx context.Context, conn *websocket.Conn) models.RealtimeEvent {
	t.Helper()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var ev models.RealtimeEvent
	require.NoError(t, json.Unmarshal(data, &ev))
	return ev
}

func TestWebSocketReceivesUpdates(t *testing.T) {
	s, ts := newTestServer(t, Config{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+realtime.WebSocketPath, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	require.Eventually(t, func() bool { return s.Hub().Subscribers() == 1 }, time.Second, 10*time.Millisecond)

	postJSON(t, ts.URL+SAVE_PATH, positive("one"))
	ev := readEvent(t, ctx, conn)
	assert.Equal(t, models.EventDataUpdated, ev.Event)
	assert.Equal(t, uint64(1), ev.Seq)
	assert.Equal(t, 1, ev.Data.DatabaseInfo.TotalEntries)

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+CLEAR_PATH, nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	ev = readEvent(t, ctx, conn)
	assert.Equal(t, uint64(2), ev.Seq)
	assert.Zero(t, ev.Data.DatabaseInfo.TotalEntries)
}

func TestWebSocketSendsLatestOnConnect(t *testing.T) {
	_, ts := newTestServer(t, Config{})
	postJSON(t, ts.URL+SAVE_PATH, positive("before"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+realtime.WebSocketPath, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	ev := readEvent(t, ctx, conn)
	assert.Equal(t, uint64(1), ev.Seq)
	assert.Equal(t, 1, ev.Data.DatabaseInfo.TotalEntries)
}

func TestHealthAndMetrics(t *testing.T) {
	_, ts := newTestServer(t, Config{})
	postJSON(t, ts.URL+SAVE_PATH, positive("counted"))

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `sentiboard_results_saved_total{class="positive",outcome="ok"} 1`)
	assert.Contains(t, string(body), "sentiboard_realtime_broadcasts_total 1")
}

func TestCORSPreflight(t *testing.T) {
	_, ts := newTestServer(t, Config{CORSOrigins: []string{"http://localhost:3000"}})

	req, err := http.NewRequest(http.MethodOptions, ts.URL+SAVE_PATH, nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))
}
