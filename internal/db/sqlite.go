package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	_ "modernc.org/sqlite"

	"github.com/spacesedan/sentiboard/internal/models"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sentiment_results (
	id                TEXT PRIMARY KEY,
	text              TEXT NOT NULL,
	predicted_class   TEXT NOT NULL,
	confidence        REAL NOT NULL,
	all_probabilities TEXT NOT NULL,
	created_at        INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sentiment_results_created_at ON sentiment_results(created_at DESC);
`

type SQLiteRepository struct {
	conn  *sql.DB
	path  string
	clock clockwork.Clock
	log   *slog.Logger
}

// NewSQLiteRepository opens (creating if needed) the database at path and
// applies the schema. "file:" URIs are used as-is, which lets tests run
// against an in-memory database.
func NewSQLiteRepository(ctx context.Context, path string, clock clockwork.Clock, logger *slog.Logger) (*SQLiteRepository, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}

	inMemory := strings.HasPrefix(path, "file:")
	if !inMemory {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve database path: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		path = absPath
	}

	conn, err := sql.Open("sqlite", sqliteConnString(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if inMemory {
		// Each connection to an in-memory database sees its own copy.
		conn.SetMaxOpenConns(1)
	} else {
		conn.SetMaxOpenConns(10)
		conn.SetMaxIdleConns(2)
		conn.SetConnMaxLifetime(time.Hour)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}
	if _, err := conn.ExecContext(ctx, sqliteSchema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	logger.Info("[SQLite] Database ready", slog.String("path", path))
	return &SQLiteRepository{conn: conn, path: path, clock: clock, log: logger}, nil
}

func sqliteConnString(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=temp_store(MEMORY)"
}

func (r *SQLiteRepository) Save(ctx context.Context, result models.SentimentResult) (models.SentimentResult, error) {
	stored, err := prepare(result, r.clock)
	if err != nil {
		return models.SentimentResult{}, err
	}
	probs, err := json.Marshal(stored.AllProbabilities)
	if err != nil {
		return models.SentimentResult{}, fmt.Errorf("failed to encode probabilities: %w", err)
	}

	_, err = r.conn.ExecContext(ctx,
		`INSERT INTO sentiment_results (id, text, predicted_class, confidence, all_probabilities, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		stored.ID, stored.Text, string(stored.PredictedClass), stored.Confidence, string(probs), stored.CreatedAt.UnixNano())
	if err != nil {
		return models.SentimentResult{}, fmt.Errorf("failed to insert result: %w", err)
	}
	return stored, nil
}

func (r *SQLiteRepository) Stats(ctx context.Context) (models.StatsSnapshot, error) {
	rows, err := r.conn.QueryContext(ctx,
		`SELECT predicted_class, COUNT(*) FROM sentiment_results GROUP BY predicted_class`)
	if err != nil {
		return models.StatsSnapshot{}, fmt.Errorf("failed to count results: %w", err)
	}
	counts := make(map[models.SentimentClass]int)
	for rows.Next() {
		var (
			class string
			n     int
		)
		if err := rows.Scan(&class, &n); err != nil {
			rows.Close()
			return models.StatsSnapshot{}, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[models.SentimentClass(class)] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return models.StatsSnapshot{}, err
	}
	if len(counts) == 0 {
		return models.ZeroSnapshot(), nil
	}

	recent, err := r.recent(ctx)
	if err != nil {
		return models.StatsSnapshot{}, err
	}

	var lastNanos sql.NullInt64
	if err := r.conn.QueryRowContext(ctx, `SELECT MAX(created_at) FROM sentiment_results`).Scan(&lastNanos); err != nil {
		return models.StatsSnapshot{}, fmt.Errorf("failed to read last update: %w", err)
	}
	var lastUpdated *time.Time
	if lastNanos.Valid {
		t := time.Unix(0, lastNanos.Int64).UTC()
		lastUpdated = &t
	}
	return models.BuildSnapshot(counts, lastUpdated, recent), nil
}

func (r *SQLiteRepository) recent(ctx context.Context) ([]models.SentimentResult, error) {
	rows, err := r.conn.QueryContext(ctx,
		`SELECT id, text, predicted_class, confidence, all_probabilities, created_at
		 FROM sentiment_results ORDER BY created_at DESC, rowid DESC LIMIT ?`, models.RecentEntriesLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent results: %w", err)
	}
	defer rows.Close()

	var out []models.SentimentResult
	for rows.Next() {
		var (
			res     models.SentimentResult
			class   string
			probs   string
			created int64
		)
		if err := rows.Scan(&res.ID, &res.Text, &class, &res.Confidence, &probs, &created); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		res.PredictedClass = models.SentimentClass(class)
		res.CreatedAt = time.Unix(0, created).UTC()
		if err := json.Unmarshal([]byte(probs), &res.AllProbabilities); err != nil {
			r.log.Warn("[SQLite] Skipping unreadable probabilities",
				slog.String("id", res.ID),
				slog.String("error", err.Error()))
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	res, err := r.conn.ExecContext(ctx, `DELETE FROM sentiment_results`)
	if err != nil {
		return fmt.Errorf("failed to clear results: %w", err)
	}
	n, _ := res.RowsAffected()
	r.log.Info("[SQLite] Cleared results", slog.Int64("deleted", n))
	return nil
}

func (r *SQLiteRepository) Close() error {
	return r.conn.Close()
}
