package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/spacesedan/sentiboard/internal/models"
)

// pollingTransport long-polls the store: each request parks until an event
// newer than the cursor exists or the wait elapses (204).
type pollingTransport struct {
	endpoint    string
	dialTimeout time.Duration
	wait        time.Duration
	httpClient  *http.Client
}

func (t *pollingTransport) Name() string { return TransportPolling }

func (t *pollingTransport) Run(ctx context.Context, connected func(), deliver func(models.RealtimeEvent)) error {
	var (
		cursor       uint64
		isConnected  bool
		wait         time.Duration
		requestLimit = t.dialTimeout
	)

	for {
		// The first request is the handshake and is answered immediately.
		event, status, err := t.poll(ctx, cursor, wait, requestLimit)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		if !isConnected {
			isConnected = true
			wait = t.wait
			requestLimit = t.wait + t.dialTimeout
			connected()
		}

		if status == http.StatusNoContent || event == nil {
			continue
		}
		// The store may have restarted or be another instance, so its
		// sequence replaces ours even when lower.
		cursor = event.Seq
		deliver(*event)
	}
}

func (t *pollingTransport) poll(ctx context.Context, cursor uint64, wait, limit time.Duration) (*models.RealtimeEvent, int, error) {
	reqCtx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	q := url.Values{}
	q.Set("cursor", strconv.FormatUint(cursor, 10))
	q.Set("wait", wait.String())

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, t.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build poll request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("poll request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, resp.StatusCode, nil
	case http.StatusOK:
		var event models.RealtimeEvent
		if err := json.NewDecoder(resp.Body).Decode(&event); err != nil {
			return nil, resp.StatusCode, fmt.Errorf("failed to decode poll response: %w", err)
		}
		return &event, resp.StatusCode, nil
	default:
		return nil, resp.StatusCode, fmt.Errorf("poll returned status %d", resp.StatusCode)
	}
}
