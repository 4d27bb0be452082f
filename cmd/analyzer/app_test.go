package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spacesedan/sentiboard/config"
	"github.com/spacesedan/sentiboard/internal/db"
	"github.com/spacesedan/sentiboard/internal/logging"
	"github.com/spacesedan/sentiboard/internal/sentiment"
	"github.com/spacesedan/sentiboard/internal/server"
	"github.com/spacesedan/sentiboard/internal/session"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestApp(t *testing.T, stdin string) (*app, *syncBuffer, *session.Session) {
	t.Helper()
	logger := logging.Discard()

	oracle := httptest.NewServer(sentiment.NewHandler(logger))
	t.Cleanup(oracle.Close)
	store := httptest.NewServer(server.New(server.Config{
		Repo:   db.NewMemoryRepository(nil),
		Logger: logger,
	}).Handler())
	t.Cleanup(store.Close)

	sess, err := session.New(session.Options{
		Config: config.Config{
			MLAPIURL:                  oracle.URL,
			APIURL:                    store.URL,
			OracleTimeout:             5 * time.Second,
			OracleMaxAttempts:         1,
			StoreTimeout:              5 * time.Second,
			RealtimeTransports:        []string{"websocket"},
			RealtimeDialTimeout:       time.Second,
			RealtimeReconnectDelay:    20 * time.Millisecond,
			RealtimeMaxReconnectDelay: 100 * time.Millisecond,
			NotificationTTL:           time.Minute,
		},
		Clock:  clockwork.NewFakeClock(),
		Logger: logger,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sess.Close() })

	out := &syncBuffer{}
	return newApp(sess, strings.NewReader(stdin), out), out, sess
}

func TestAnalyzeCommand(t *testing.T) {
	a, out, _ := newTestApp(t, "")

	code := a.run(context.Background(), "analyze", []string{"I", "love", "this!"})
	require.Equal(t, exitOK, code)

	text := out.String()
	assert.Contains(t, text, "* Analysis Complete: Sentiment: positive (")
	assert.Contains(t, text, " - Saved to database")
	assert.Contains(t, text, "POSITIVE")
	assert.Contains(t, text, "negative")
}

func TestAnalyzeCommandValidation(t *testing.T) {
	a, out, _ := newTestApp(t, "")

	code := a.run(context.Background(), "analyze", nil)
	assert.Equal(t, exitError, code)
	assert.Contains(t, out.String(), "! Error: Please enter some text to analyze")
}

func TestBatchCommandFromStdin(t *testing.T) {
	a, out, sess := newTestApp(t, "wonderful day\n\n  \nhorrible traffic\n")

	code := a.run(context.Background(), "batch", []string{"-"})
	require.Equal(t, exitOK, code)
	assert.Contains(t, out.String(), "Batch Analysis Complete: Analyzed 2 texts, saved 2 to database")
	assert.Contains(t, out.String(), "wonderful day")
	assert.Equal(t, 2, sess.Stats.Current().TotalEntries)
}

func TestBatchCommandNeedsInput(t *testing.T) {
	a, _, _ := newTestApp(t, "")
	assert.Equal(t, exitUsage, a.run(context.Background(), "batch", nil))
	assert.Equal(t, exitError, a.run(context.Background(), "batch", []string{"/does/not/exist"}))
}

func TestStatsCommand(t *testing.T) {
	a, out, _ := newTestApp(t, "")
	ctx := context.Background()
	require.Equal(t, exitOK, a.run(ctx, "analyze", []string{"great"}))

	require.Equal(t, exitOK, a.run(ctx, "stats", nil))
	assert.Contains(t, out.String(), "Total entries: 1")
	assert.Contains(t, out.String(), "Recent:")
}

func TestClearCommandDeclined(t *testing.T) {
	a, out, sess := newTestApp(t, "n\n")
	ctx := context.Background()
	require.Equal(t, exitOK, a.run(ctx, "analyze", []string{"great"}))

	require.Equal(t, exitOK, a.run(ctx, "clear", nil))
	assert.Contains(t, out.String(), "[y/N]")
	assert.Contains(t, out.String(), "Aborted.")

	snap, err := sess.Store.FetchStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.TotalEntries)
}

func TestClearCommandConfirmed(t *testing.T) {
	a, out, sess := newTestApp(t, "")
	ctx := context.Background()
	require.Equal(t, exitOK, a.run(ctx, "analyze", []string{"great"}))

	require.Equal(t, exitOK, a.run(ctx, "clear", []string{"-yes"}))
	assert.Contains(t, out.String(), "Database Cleared")
	assert.True(t, sess.Stats.Current().IsZero())
}

func TestWatchPrintsPushedSnapshots(t *testing.T) {
	a, out, sess := newTestApp(t, "")
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan int, 1)
	go func() { done <- a.run(ctx, "watch", nil) }()
	require.Eventually(t, sess.Channel.IsConnected, 5*time.Second, 5*time.Millisecond)

	_, err := sess.Orchestrator.SubmitSingle(context.Background(), "pushed through")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return strings.Contains(out.String(), "Total entries: 1") }, 5*time.Second, 5*time.Millisecond)

	cancel()
	assert.Equal(t, exitOK, <-done)
}

func TestUnknownCommand(t *testing.T) {
	a, out, _ := newTestApp(t, "")
	assert.Equal(t, exitUsage, a.run(context.Background(), "frobnicate", nil))
	assert.Contains(t, out.String(), "Usage: analyzer")
}

func TestPreviewAndBar(t *testing.T) {
	assert.Equal(t, "short", preview("short"))
	long := strings.Repeat("é", 80)
	assert.Equal(t, 60, len([]rune(preview(long))))

	assert.Equal(t, strings.Repeat("█", 20), bar(1))
	assert.Equal(t, strings.Repeat("·", 20), bar(0))
	assert.Equal(t, strings.Repeat("█", 10)+strings.Repeat("·", 10), bar(0.5))
}
