package clients

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/valkey-io/valkey-go"
)

const VALKEY_DATA_UPDATED_CHANNEL = "sentiboard:data-updated"

type ValkeyOptions struct {
	Addr     string
	Password string
	TLS      bool
}

// ValkeyClient wraps a valkey.Client and rebuilds it when the connection
// drops.
type ValkeyClient struct {
	client valkey.Client
	opts   ValkeyOptions
	mu     sync.RWMutex
	log    *slog.Logger
}

func NewValkeyClient(ctx context.Context, opts ValkeyOptions, logger *slog.Logger) (*ValkeyClient, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client, err := connectValkey(ctx, opts)
	if err != nil {
		return nil, err
	}
	logger.Info("[ValkeyClient] Successfully connected to valkey", slog.String("addr", opts.Addr))
	return &ValkeyClient{client: client, opts: opts, log: logger}, nil
}

func connectValkey(ctx context.Context, opts ValkeyOptions) (valkey.Client, error) {
	clientOpts := valkey.ClientOption{
		InitAddress:      []string{opts.Addr},
		Password:         opts.Password,
		ConnWriteTimeout: 5 * time.Second,
		SelectDB:         0,
	}
	if opts.TLS {
		clientOpts.TLSConfig = &tls.Config{InsecureSkipVerify: false}
	}

	client, err := valkey.NewClient(clientOpts)
	if err != nil {
		return nil, fmt.Errorf("[ValkeyClient] failed to create Valkey: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Do(pingCtx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("[ValkeyClient] failed to ping Valkey: %w", err)
	}
	return client, nil
}

func (vc *ValkeyClient) current() valkey.Client {
	vc.mu.RLock()
	defer vc.mu.RUnlock()
	return vc.client
}

func (vc *ValkeyClient) recreateClient(ctx context.Context) {
	vc.mu.Lock()
	defer vc.mu.Unlock()

	vc.log.Warn("[ValkeyClient] Attempting to recreate Valkey client...")
	client, err := connectValkey(ctx, vc.opts)
	if err != nil {
		vc.log.Error("[ValkeyClient] Recreate failed", slog.String("error", err.Error()))
		return
	}
	vc.client.Close()
	vc.client = client
	vc.log.Info("[ValkeyClient] Successfully reconnected to valkey")
}

// Publish sends payload on channel, retrying transient failures.
func (vc *ValkeyClient) Publish(ctx context.Context, channel string, payload []byte) error {
	client := vc.current()
	// Pinned so retries can resend it.
	cmd := client.B().Publish().Channel(channel).Message(string(payload)).Build().Pin()
	return vc.DoWithRetry(ctx, cmd, 3).Error()
}

// Subscribe delivers every message on channel to handler until ctx ends.
// A dropped subscription is re-established after a short pause.
func (vc *ValkeyClient) Subscribe(ctx context.Context, channel string, handler func(payload []byte)) error {
	for {
		client := vc.current()
		err := client.Receive(ctx, client.B().Subscribe().Channel(channel).Build(), func(msg valkey.PubSubMessage) {
			handler([]byte(msg.Message))
		})
		if ctx.Err() != nil {
			return ctx.Err()
		}
		vc.log.Warn("[ValkeyClient] Subscription ended, resubscribing",
			slog.String("channel", channel),
			slog.String("error", errText(err)))
		if isConnectionError(err) {
			vc.recreateClient(ctx)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
}

func (vc *ValkeyClient) DoWithRetry(ctx context.Context, completed valkey.Completed, retries int) valkey.ValkeyResult {
	var result valkey.ValkeyResult
	for i := 0; i < retries; i++ {
		result = vc.current().Do(ctx, completed)
		if result.Error() == nil {
			break
		}

		vc.log.Warn("[ValkeyClient] Do failed",
			slog.Int("attempt", i+1),
			slog.String("error", result.Error().Error()))
		if isConnectionError(result.Error()) {
			vc.recreateClient(ctx)
		}

		select {
		case <-ctx.Done():
			return result
		case <-time.After(250 * time.Millisecond):
		}
	}
	return result
}

func (vc *ValkeyClient) Close() {
	vc.current().Close()
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "EOF") ||
		strings.Contains(msg, "i/o timeout")
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
