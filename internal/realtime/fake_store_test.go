package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"nhooyr.io/websocket"

	"github.com/spacesedan/sentiboard/internal/models"
)

// fakeStore serves the two realtime endpoints the way the store server does.
type fakeStore struct {
	t      *testing.T
	server *httptest.Server

	noWebSocket bool
	wsDials     atomic.Int32
	polls       atomic.Int32

	mu      sync.Mutex
	seq     uint64
	latest  *models.RealtimeEvent
	conns   map[*websocket.Conn]struct{}
	changed chan struct{}
}

func newFakeStore(t *testing.T, noWebSocket bool) *fakeStore {
	t.Helper()
	f := &fakeStore{
		t:           t,
		noWebSocket: noWebSocket,
		conns:       make(map[*websocket.Conn]struct{}),
		changed:     make(chan struct{}),
	}
	mux := http.NewServeMux()
	mux.HandleFunc(WebSocketPath, f.handleWS)
	mux.HandleFunc(PollPath, f.handlePoll)
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeStore) URL() string { return f.server.URL }

func (f *fakeStore) handleWS(w http.ResponseWriter, r *http.Request) {
	if f.noWebSocket {
		http.NotFound(w, r)
		return
	}
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	f.wsDials.Add(1)

	f.mu.Lock()
	f.conns[conn] = struct{}{}
	latest := f.latest
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		delete(f.conns, conn)
		f.mu.Unlock()
	}()

	if latest != nil {
		f.write(conn, *latest)
	}
	ctx := conn.CloseRead(r.Context())
	<-ctx.Done()
}

func (f *fakeStore) handlePoll(w http.ResponseWriter, r *http.Request) {
	f.polls.Add(1)
	cursor, _ := strconv.ParseUint(r.URL.Query().Get("cursor"), 10, 64)
	wait, _ := time.ParseDuration(r.URL.Query().Get("wait"))

	f.mu.Lock()
	latest, changed := f.latest, f.changed
	f.mu.Unlock()

	if latest == nil || latest.Seq <= cursor {
		select {
		case <-changed:
		case <-time.After(wait):
		case <-r.Context().Done():
			return
		}
		f.mu.Lock()
		latest = f.latest
		f.mu.Unlock()
	}

	if latest == nil || latest.Seq <= cursor {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(latest)
}

func (f *fakeStore) write(conn *websocket.Conn, event models.RealtimeEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		f.t.Errorf("marshal event: %v", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = conn.Write(ctx, websocket.MessageText, data)
}

// publish emits a data-updated event carrying a snapshot with the given total.
func (f *fakeStore) publish(total int) {
	snap := models.BuildSnapshot(map[models.SentimentClass]int{models.Positive: total}, nil, nil)
	resp := models.NewStatsResponse(snap)

	f.mu.Lock()
	f.seq++
	event := models.RealtimeEvent{Event: models.EventDataUpdated, Seq: f.seq, Data: &resp}
	f.latest = &event
	close(f.changed)
	f.changed = make(chan struct{})
	conns := make([]*websocket.Conn, 0, len(f.conns))
	for c := range f.conns {
		conns = append(conns, c)
	}
	f.mu.Unlock()

	for _, c := range conns {
		f.write(c, event)
	}
}

func (f *fakeStore) sendRaw(event models.RealtimeEvent) {
	f.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(f.conns))
	for c := range f.conns {
		conns = append(conns, c)
	}
	f.mu.Unlock()
	for _, c := range conns {
		f.write(c, event)
	}
}

// kick drops every websocket connection as a server restart would.
func (f *fakeStore) kick() {
	f.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(f.conns))
	for c := range f.conns {
		conns = append(conns, c)
	}
	f.mu.Unlock()
	for _, c := range conns {
		_ = c.Close(websocket.StatusGoingAway, "restart")
	}
}

func (f *fakeStore) openConnections() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.conns)
}
