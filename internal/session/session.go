// Package session assembles one analyzer client: oracle and store clients,
// the statistics aggregator, the realtime channel and the notification
// queue, all owned by a single Session.
package session

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/spacesedan/sentiboard/config"
	"github.com/spacesedan/sentiboard/internal/clients"
	"github.com/spacesedan/sentiboard/internal/models"
	"github.com/spacesedan/sentiboard/internal/notify"
	"github.com/spacesedan/sentiboard/internal/orchestrator"
	"github.com/spacesedan/sentiboard/internal/realtime"
	"github.com/spacesedan/sentiboard/internal/stats"
)

type Options struct {
	Config     config.Config
	HTTPClient *http.Client
	Clock      clockwork.Clock
	Logger     *slog.Logger
}

type Session struct {
	Oracle        *clients.OracleClient
	Store         *clients.StoreClient
	Stats         *stats.Aggregator
	Channel       *realtime.Channel
	Notifications *notify.Queue
	Orchestrator  *orchestrator.Orchestrator

	log *slog.Logger
}

func New(opts Options) (*Session, error) {
	cfg := opts.Config
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	storeBase := clients.NewAuthHTTPClient(context.Background(), cfg.StoreAuth, opts.HTTPClient)

	oracle := clients.NewOracleClient(clients.OracleClientConfig{
		BaseURL:     cfg.MLAPIURL,
		Timeout:     cfg.OracleTimeout,
		MaxAttempts: cfg.OracleMaxAttempts,
		HTTPClient:  withTimeout(opts.HTTPClient, cfg.OracleTimeout),
		Logger:      opts.Logger,
	})
	store := clients.NewStoreClient(clients.StoreClientConfig{
		BaseURL:    cfg.APIURL,
		Timeout:    cfg.StoreTimeout,
		HTTPClient: withTimeout(storeBase, cfg.StoreTimeout),
		Logger:     opts.Logger,
	})
	channel, err := realtime.NewChannel(realtime.Config{
		BaseURL:           cfg.APIURL,
		Transports:        cfg.RealtimeTransports,
		DialTimeout:       cfg.RealtimeDialTimeout,
		ReconnectDelay:    cfg.RealtimeReconnectDelay,
		MaxReconnectDelay: cfg.RealtimeMaxReconnectDelay,
		PollWait:          cfg.RealtimePollWait,
		PingInterval:      cfg.RealtimePingInterval,
		HTTPClient:        storeBase,
		Logger:            opts.Logger,
	})
	if err != nil {
		return nil, err
	}

	aggregator := stats.NewAggregator(store, opts.Logger)
	queue := notify.NewQueue(notify.Config{
		TTL:    cfg.NotificationTTL,
		Clock:  opts.Clock,
		Logger: opts.Logger,
	})

	return &Session{
		Oracle:        oracle,
		Store:         store,
		Stats:         aggregator,
		Channel:       channel,
		Notifications: queue,
		Orchestrator: orchestrator.New(orchestrator.Config{
			Oracle:   oracle,
			Store:    store,
			Stats:    aggregator,
			Notifier: queue,
			Logger:   opts.Logger,
		}),
		log: opts.Logger,
	}, nil
}

// withTimeout shares base's transport under a per-request deadline. The
// realtime channel keeps base itself since its requests are long-lived.
func withTimeout(base *http.Client, timeout time.Duration) *http.Client {
	if timeout <= 0 {
		return nil
	}
	return &http.Client{Transport: base.Transport, Timeout: timeout}
}

// Start loads the initial statistics and, when live is set, opens the
// realtime channel with the aggregator as its subscriber. A failed initial
// load is logged; the aggregator keeps the zero snapshot.
func (s *Session) Start(ctx context.Context, live bool) error {
	if err := s.Stats.Refresh(ctx); err != nil {
		s.log.Warn("[Session] Initial stats load failed", slog.String("error", err.Error()))
	}
	if !live {
		return nil
	}
	s.Channel.SetSubscriber(func(snap models.StatsSnapshot) {
		s.Stats.Apply(snap)
	})
	return s.Channel.Open(ctx)
}

// Close stops the realtime channel before the queue so no snapshot or
// notification callback runs afterwards.
func (s *Session) Close() error {
	err := s.Channel.Close()
	s.Notifications.Close()
	return err
}
