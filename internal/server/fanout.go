package server

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"

	"github.com/spacesedan/sentiboard/internal/clients"
	"github.com/spacesedan/sentiboard/internal/models"
)

// PubSub is the cross-instance message bus; *clients.ValkeyClient implements it.
type PubSub interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string, handler func(payload []byte)) error
}

type fanoutMessage struct {
	Origin string               `json:"origin"`
	Data   models.StatsResponse `json:"data"`
}

// Fanout relays stats changes between store instances sharing one backend,
// so every instance's subscribers see writes made through any of them.
type Fanout struct {
	bus     PubSub
	channel string
	origin  string
	hub     *Hub
	metrics *Metrics
	log     *slog.Logger
}

func NewFanout(bus PubSub, hub *Hub, metrics *Metrics, logger *slog.Logger) *Fanout {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fanout{
		bus:     bus,
		channel: clients.VALKEY_DATA_UPDATED_CHANNEL,
		origin:  uuid.NewString(),
		hub:     hub,
		metrics: metrics,
		log:     logger,
	}
}

// Announce tells the other instances about a local change.
func (f *Fanout) Announce(ctx context.Context, stats models.StatsResponse) {
	payload, err := json.Marshal(fanoutMessage{Origin: f.origin, Data: stats})
	if err != nil {
		f.log.Error("[Fanout] Failed to encode message", slog.String("error", err.Error()))
		return
	}
	if err := f.bus.Publish(ctx, f.channel, payload); err != nil {
		f.log.Warn("[Fanout] Failed to publish update", slog.String("error", err.Error()))
		return
	}
	f.metrics.fanout.WithLabelValues("out").Inc()
}

// Run rebroadcasts updates from other instances to local subscribers until
// ctx ends.
func (f *Fanout) Run(ctx context.Context) error {
	f.log.Info("[Fanout] Listening for remote updates", slog.String("channel", f.channel))
	return f.bus.Subscribe(ctx, f.channel, func(payload []byte) {
		var msg fanoutMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			f.log.Warn("[Fanout] Ignoring malformed message", slog.String("error", err.Error()))
			return
		}
		if msg.Origin == f.origin {
			return
		}
		f.metrics.fanout.WithLabelValues("in").Inc()
		f.hub.Publish(msg.Data)
	})
}
