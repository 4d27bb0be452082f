// Package realtime keeps one long-lived push connection to the store and
// hands every data-updated snapshot to a single subscriber slot.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spacesedan/sentiboard/internal/apperrors"
	"github.com/spacesedan/sentiboard/internal/models"
)

var ErrClosed = errors.New("realtime channel closed")

type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Subscriber receives the snapshot carried by a data-updated event.
type Subscriber func(models.StatsSnapshot)

type Config struct {
	BaseURL string
	// Transports in preference order; defaults to websocket then polling.
	Transports        []string
	DialTimeout       time.Duration
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
	PollWait          time.Duration
	// PingInterval is how often an open websocket is checked for liveness.
	// A ping unanswered within DialTimeout drops the connection.
	PingInterval time.Duration
	HTTPClient   *http.Client
	Logger       *slog.Logger
}

// Channel is the explicitly owned connection manager. At most one
// subscriber is active; replacing it never touches the connection.
type Channel struct {
	transports []Transport
	subscriber atomic.Pointer[Subscriber]

	mu        sync.RWMutex
	state     State
	transport string
	opened    bool
	closed    bool
	cancel    context.CancelFunc
	done      chan struct{}

	reconnectDelay    time.Duration
	maxReconnectDelay time.Duration
	log               *slog.Logger
}

func NewChannel(cfg Config) (*Channel, error) {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = time.Second
	}
	if cfg.MaxReconnectDelay < cfg.ReconnectDelay {
		cfg.MaxReconnectDelay = 30 * cfg.ReconnectDelay
	}
	if cfg.PollWait <= 0 {
		cfg.PollWait = 25 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = DefaultPingInterval
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if len(cfg.Transports) == 0 {
		cfg.Transports = []string{TransportWebSocket, TransportPolling}
	}

	opts := transportOptions{
		baseURL:      cfg.BaseURL,
		dialTimeout:  cfg.DialTimeout,
		pollWait:     cfg.PollWait,
		pingInterval: cfg.PingInterval,
		httpClient:   cfg.HTTPClient,
	}
	transports := make([]Transport, 0, len(cfg.Transports))
	for _, name := range cfg.Transports {
		t, err := newTransport(name, opts)
		if err != nil {
			return nil, err
		}
		transports = append(transports, t)
	}

	return &Channel{
		transports:        transports,
		reconnectDelay:    cfg.ReconnectDelay,
		maxReconnectDelay: cfg.MaxReconnectDelay,
		log:               cfg.Logger,
	}, nil
}

// Open starts the connection loop. Calling it again while open is a no-op.
func (c *Channel) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.opened {
		return nil
	}

	loopCtx, cancel := context.WithCancel(ctx)
	c.opened = true
	c.cancel = cancel
	c.done = make(chan struct{})
	c.setStateLocked(Connecting, "")

	go c.run(loopCtx)
	return nil
}

// SetSubscriber installs fn as the only recipient of snapshots, replacing
// any previous one.
func (c *Channel) SetSubscriber(fn Subscriber) {
	if fn == nil {
		c.ClearSubscriber()
		return
	}
	c.subscriber.Store(&fn)
}

func (c *Channel) ClearSubscriber() {
	c.subscriber.Store(nil)
}

func (c *Channel) IsConnected() bool {
	return c.State() == Connected
}

func (c *Channel) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Transport names the transport currently carrying events, if connected.
func (c *Channel) Transport() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.transport
}

// Close tears the connection down and waits for the loop to exit. Once it
// returns, no subscriber callback will run. The channel cannot be reopened.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	c.ClearSubscriber()
	if cancel != nil {
		cancel()
		<-done
	}

	c.mu.Lock()
	c.setStateLocked(Disconnected, "")
	c.mu.Unlock()
	return nil
}

func (c *Channel) run(ctx context.Context) {
	defer close(c.done)
	defer c.setState(Disconnected, "")

	attempt := 0
	for {
		for _, t := range c.transports {
			if ctx.Err() != nil {
				return
			}

			wasConnected := false
			err := t.Run(ctx, func() {
				wasConnected = true
				attempt = 0
				c.setState(Connected, t.Name())
			}, func(event models.RealtimeEvent) {
				c.handleEvent(ctx, event)
			})
			if ctx.Err() != nil {
				return
			}
			connErr := apperrors.NewConnection(t.Name(), err)

			if wasConnected {
				c.log.Warn("[RealtimeChannel] Connection lost",
					slog.String("transport", t.Name()),
					slog.String("error_kind", string(connErr.Kind)),
					slog.String("error", connErr.Error()))
				break
			}
			c.log.Warn("[RealtimeChannel] Transport unavailable, trying next",
				slog.String("transport", t.Name()),
				slog.String("error_kind", string(connErr.Kind)),
				slog.String("error", connErr.Error()))
		}

		attempt++
		delay := c.backoff(attempt)
		c.setState(Reconnecting, "")
		c.log.Info("[RealtimeChannel] Reconnecting",
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay))

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

func (c *Channel) handleEvent(ctx context.Context, event models.RealtimeEvent) {
	if event.Event != models.EventDataUpdated {
		c.log.Debug("[RealtimeChannel] Ignoring event", slog.String("event", event.Event))
		return
	}
	if event.Data == nil {
		c.log.Warn("[RealtimeChannel] data-updated event without payload", slog.Uint64("seq", event.Seq))
		return
	}
	if ctx.Err() != nil {
		return
	}

	sub := c.subscriber.Load()
	if sub == nil {
		c.log.Debug("[RealtimeChannel] No subscriber, dropping snapshot", slog.Uint64("seq", event.Seq))
		return
	}
	c.log.Debug("[RealtimeChannel] Received real-time update", slog.Uint64("seq", event.Seq))
	(*sub)(event.Data.Snapshot())
}

func (c *Channel) setState(s State, transport string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.setStateLocked(s, transport)
}

func (c *Channel) setStateLocked(s State, transport string) {
	if c.state == s && c.transport == transport {
		return
	}
	c.log.Info("[RealtimeChannel] State change",
		slog.String("from", c.state.String()),
		slog.String("to", s.String()),
		slog.String("transport", transport))
	c.state = s
	c.transport = transport
}

func (c *Channel) backoff(attempt int) time.Duration {
	delay := float64(c.reconnectDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(c.maxReconnectDelay) {
		delay = float64(c.maxReconnectDelay)
	}
	return time.Duration(delay)
}
