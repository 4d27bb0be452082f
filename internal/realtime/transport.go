package realtime

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spacesedan/sentiboard/internal/models"
)

const (
	TransportWebSocket = "websocket"
	TransportPolling   = "polling"

	WebSocketPath = "/realtime/ws"
	PollPath      = "/realtime/poll"

	DefaultPingInterval = 15 * time.Second
)

// Transport carries realtime events from the store. Run blocks until the
// connection ends or ctx is cancelled. connected is called once the
// handshake succeeds; a Run that returns without calling it means the
// transport is unavailable.
type Transport interface {
	Name() string
	Run(ctx context.Context, connected func(), deliver func(models.RealtimeEvent)) error
}

type transportOptions struct {
	baseURL      string
	dialTimeout  time.Duration
	pollWait     time.Duration
	pingInterval time.Duration
	httpClient   *http.Client
}

func newTransport(name string, opts transportOptions) (Transport, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case TransportWebSocket:
		wsURL, err := websocketURL(opts.baseURL)
		if err != nil {
			return nil, err
		}
		return &websocketTransport{
			url:          wsURL,
			dialTimeout:  opts.dialTimeout,
			pingInterval: opts.pingInterval,
			httpClient:   opts.httpClient,
		}, nil
	case TransportPolling:
		return &pollingTransport{
			endpoint:    strings.TrimRight(opts.baseURL, "/") + PollPath,
			dialTimeout: opts.dialTimeout,
			wait:        opts.pollWait,
			httpClient:  opts.httpClient,
		}, nil
	default:
		return nil, fmt.Errorf("unknown realtime transport %q", name)
	}
}

func websocketURL(base string) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid realtime base url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported realtime url scheme %q", u.Scheme)
	}
	u.Path += WebSocketPath
	return u.String(), nil
}
