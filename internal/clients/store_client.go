package clients

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/spacesedan/sentiboard/internal/apperrors"
	"github.com/spacesedan/sentiboard/internal/models"
)

// ErrClearNotConfirmed is returned when Clear is called without a
// confirmation that answered yes.
var ErrClearNotConfirmed = errors.New("clear not confirmed")

// ConfirmFunc gates the irreversible Clear. It must return true only after
// the user explicitly agreed to remove every stored entry.
type ConfirmFunc func(ctx context.Context) bool

type StoreClientConfig struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// StoreClient is the thin HTTP client for the backing store: save a result,
// fetch aggregated stats, clear everything.
type StoreClient struct {
	baseURL string
	client  *http.Client
	log     *slog.Logger
}

func NewStoreClient(cfg StoreClientConfig) *StoreClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DEFAULT_STORE_TIMEOUT
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &StoreClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  client,
		log:     log,
	}
}

// Save is best-effort: any failure is logged and reported as false.
func (s *StoreClient) Save(ctx context.Context, result models.SentimentResult) bool {
	saved, err := s.SaveResult(ctx, result)
	if err != nil {
		s.log.Warn("[StoreClient] Failed to save result",
			slog.String("error", err.Error()))
		return false
	}
	s.log.Info("[StoreClient] Result saved to database", slog.String("id", saved.ID))
	return true
}

type saveResponse struct {
	Data models.SentimentResult `json:"data"`
}

// SaveResult persists a result and returns the stored copy with its id.
func (s *StoreClient) SaveResult(ctx context.Context, result models.SentimentResult) (models.SentimentResult, error) {
	const op = "save"
	endpoint := s.baseURL + SAVE_PATH

	res, err := doJSON(ctx, s.client, http.MethodPost, endpoint, result)
	if err != nil {
		return models.SentimentResult{}, apperrors.NewPersistence(op, err)
	}
	if !res.ok() {
		return models.SentimentResult{}, apperrors.NewPersistence(op, apperrors.NewNetwork(op, res.status, res.serverError(), nil))
	}

	var out saveResponse
	if err := decodeBody(endpoint, res, &out, s.log); err != nil {
		return models.SentimentResult{}, apperrors.NewPersistence(op, err)
	}
	if out.Data.ID == "" {
		return models.SentimentResult{}, apperrors.NewPersistence(op, errors.New("store response carried no id"))
	}
	return out.Data, nil
}

// FetchStats is an idempotent read. A store that has nothing yet (404 or an
// empty body) yields the zero snapshot rather than an error.
func (s *StoreClient) FetchStats(ctx context.Context) (models.StatsSnapshot, error) {
	const op = "fetch_stats"
	endpoint := s.baseURL + STATS_PATH

	res, err := doJSON(ctx, s.client, http.MethodGet, endpoint, nil)
	if err != nil {
		return models.StatsSnapshot{}, apperrors.NewPersistence(op, err)
	}
	if res.status == http.StatusNotFound || (res.ok() && len(strings.TrimSpace(string(res.body))) == 0) {
		s.log.Debug("[StoreClient] Store is empty, using zero snapshot", slog.Int("status", res.status))
		return models.ZeroSnapshot(), nil
	}
	if !res.ok() {
		return models.StatsSnapshot{}, apperrors.NewPersistence(op, apperrors.NewNetwork(op, res.status, res.serverError(), nil))
	}

	var out models.StatsResponse
	if err := decodeBody(endpoint, res, &out, s.log); err != nil {
		return models.StatsSnapshot{}, apperrors.NewPersistence(op, err)
	}
	return out.Snapshot(), nil
}

// Clear irreversibly removes every stored entry. confirm is consulted first;
// without a yes nothing is sent. On success the caller must drop its
// snapshot immediately.
func (s *StoreClient) Clear(ctx context.Context, confirm ConfirmFunc) error {
	const op = "clear"
	if confirm == nil || !confirm(ctx) {
		s.log.Info("[StoreClient] Clear aborted, not confirmed")
		return ErrClearNotConfirmed
	}

	res, err := doJSON(ctx, s.client, http.MethodDelete, s.baseURL+CLEAR_PATH, nil)
	if err != nil {
		return apperrors.NewPersistence(op, err)
	}
	if !res.ok() {
		return apperrors.NewPersistence(op, apperrors.NewNetwork(op, res.status, res.serverError(), nil))
	}

	s.log.Warn("[StoreClient] All stored sentiment data cleared")
	return nil
}
