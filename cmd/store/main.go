package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spacesedan/sentiboard/config"
	"github.com/spacesedan/sentiboard/internal/clients"
	"github.com/spacesedan/sentiboard/internal/clients/kafka_client"
	"github.com/spacesedan/sentiboard/internal/db"
	"github.com/spacesedan/sentiboard/internal/logging"
	"github.com/spacesedan/sentiboard/internal/server"
)

func main() {
	config.LoadEnv(config.AppEnv())
	cfg := config.Load()
	logging.InitLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, err := db.Open(ctx, cfg.Store, slog.Default())
	if err != nil {
		slog.Error("[Main] Failed to open repository",
			slog.String("backend", cfg.Store.Backend),
			slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer repo.Close()

	metrics := server.NewMetrics()

	var publisher *server.ResultPublisher
	publisherDone := make(chan struct{})
	if cfg.Store.KafkaBroker != "" {
		producer := initProducer(ctx, kafka_client.GetKafkaConfig(cfg.Store))
		if producer != nil {
			defer producer.Close()
			publisher = server.NewResultPublisher(producer, kafka_client.BATCH_SIZE, kafka_client.BATCH_TIMEOUT, nil, slog.Default())
			go func() {
				publisher.Run(ctx)
				close(publisherDone)
			}()
		}
	}
	if publisher == nil {
		close(publisherDone)
	}

	srv := server.New(server.Config{
		Addr:        cfg.Store.Addr,
		Repo:        repo,
		CORSOrigins: cfg.Store.CORSOrigins,
		PollWait:    cfg.RealtimePollWait,
		Metrics:     metrics,
		Publisher:   publisher,
		Logger:      slog.Default(),
	})

	if cfg.Store.ValkeyAddr != "" {
		vc, err := clients.NewValkeyClient(ctx, clients.ValkeyOptions{
			Addr:     cfg.Store.ValkeyAddr,
			Password: cfg.Store.ValkeyPassword,
			TLS:      cfg.Store.ValkeyTLS,
		}, slog.Default())
		if err != nil {
			slog.Warn("[Main] Valkey unavailable, running without fan-out", slog.String("error", err.Error()))
		} else {
			defer vc.Close()
			fanout := server.NewFanout(vc, srv.Hub(), metrics, slog.Default())
			srv.SetFanout(fanout)
			go fanout.Run(ctx)
		}
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
	case err := <-errc:
		if err != nil {
			slog.Error("[Main] Store server failed", slog.String("error", err.Error()))
		}
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("[Main] Shutdown failed", slog.String("error", err.Error()))
	}
	<-publisherDone
}

// initProducer retries until Kafka accepts the transactional producer or
// ctx ends, in which case results are simply not published.
func initProducer(ctx context.Context, cfg kafka_client.KafkaConfig) *kafka_client.ResultsProducer {
	for {
		producer, err := kafka_client.NewResultsProducer(ctx, cfg, slog.Default())
		if err == nil {
			return producer
		}
		slog.Warn("[Main] Kafka init failed, retrying...", slog.String("error", err.Error()))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(5 * time.Second):
		}
	}
}
