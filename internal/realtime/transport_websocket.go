package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"nhooyr.io/websocket"

	"github.com/spacesedan/sentiboard/internal/models"
)

type websocketTransport struct {
	url          string
	dialTimeout  time.Duration
	pingInterval time.Duration
	httpClient   *http.Client
}

func (t *websocketTransport) Name() string { return TransportWebSocket }

func (t *websocketTransport) Run(ctx context.Context, connected func(), deliver func(models.RealtimeEvent)) error {
	dialCtx, cancel := context.WithTimeout(ctx, t.dialTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, t.url, &websocket.DialOptions{
		HTTPClient: t.httpClient,
	})
	if err != nil {
		return fmt.Errorf("failed to dial websocket: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	connected()

	readCtx, stopRead := context.WithCancel(ctx)
	defer stopRead()
	pingFailed := make(chan error, 1)
	go t.keepAlive(readCtx, conn, pingFailed, stopRead)

	for {
		msgType, data, err := conn.Read(readCtx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			select {
			case pingErr := <-pingFailed:
				return pingErr
			default:
			}
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				return fmt.Errorf("websocket closed by server (status %d)", status)
			}
			return fmt.Errorf("websocket read failed: %w", err)
		}
		if msgType != websocket.MessageText {
			continue
		}

		var event models.RealtimeEvent
		if err := json.Unmarshal(data, &event); err != nil {
			// A malformed frame is not worth dropping the connection for.
			continue
		}
		deliver(event)
	}
}

// keepAlive pings the server every pingInterval. A ping without a pong
// within dialTimeout means the link is dead: the error is reported on failed
// and the read loop is stopped so Run returns and the channel redials.
func (t *websocketTransport) keepAlive(ctx context.Context, conn *websocket.Conn, failed chan<- error, stopRead context.CancelFunc) {
	ticker := time.NewTicker(t.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		pingCtx, cancel := context.WithTimeout(ctx, t.dialTimeout)
		err := conn.Ping(pingCtx)
		cancel()
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		failed <- fmt.Errorf("websocket ping unanswered after %s: %w", t.dialTimeout, err)
		stopRead()
		return
	}
}
