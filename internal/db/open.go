package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/spacesedan/sentiboard/config"
	"github.com/spacesedan/sentiboard/internal/clients"
)

// Open builds the repository selected by cfg.Backend.
func Open(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (Repository, error) {
	clock := clockwork.NewRealClock()
	switch cfg.Backend {
	case BackendMemory:
		return NewMemoryRepository(clock), nil
	case BackendSQLite, "":
		return NewSQLiteRepository(ctx, cfg.SQLitePath, clock, logger)
	case BackendDynamoDB:
		client, err := clients.NewDynamoDBClient(ctx, cfg.AWSRegion, cfg.AWSEndpoint)
		if err != nil {
			return nil, err
		}
		return NewDynamoDBRepository(client, cfg.DynamoDBTable, clock, logger), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
