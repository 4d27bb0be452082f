package clients

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/spacesedan/sentiboard/internal/apperrors"
	"github.com/spacesedan/sentiboard/internal/models"
)

type OracleClientConfig struct {
	BaseURL string
	// Timeout bounds each attempt. Zero means DEFAULT_ORACLE_TIMEOUT.
	Timeout time.Duration
	// MaxAttempts counts the first try; retries happen only on transport
	// errors and 5xx answers. Zero means one attempt.
	MaxAttempts int
	Backoff     time.Duration
	HTTPClient  *http.Client
	Logger      *slog.Logger
}

// OracleClient talks to the external sentiment prediction service.
type OracleClient struct {
	baseURL     string
	client      *http.Client
	maxAttempts int
	backoff     time.Duration
	log         *slog.Logger
}

func NewOracleClient(cfg OracleClientConfig) *OracleClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DEFAULT_ORACLE_TIMEOUT
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = INITIAL_BACKOFF
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	log.Info("[OracleClient] Initializing Client",
		slog.String("base_url", cfg.BaseURL),
		slog.Duration("timeout", timeout),
		slog.Int("max_attempts", attempts))

	return &OracleClient{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		client:      client,
		maxAttempts: attempts,
		backoff:     backoff,
		log:         log,
	}
}

// Predict classifies one text. A response that breaks the probability
// invariants is reported as a network error rather than passed on.
func (o *OracleClient) Predict(ctx context.Context, text string) (models.SentimentResult, error) {
	const op = "predict"
	o.log.Info("[OracleClient] Requesting prediction", slog.Int("text_length", len(text)))
	start := time.Now()

	var out models.PredictResponse
	if err := o.postJSON(ctx, op, PREDICT_PATH, models.PredictRequest{Text: text}, &out); err != nil {
		o.log.Error("[OracleClient] Prediction request failed",
			slog.Duration("elapsed", time.Since(start)),
			slog.String("error", err.Error()))
		return models.SentimentResult{}, err
	}

	result := out.Result()
	if result.Text == "" {
		result.Text = text
	}
	if err := result.Validate(); err != nil {
		o.log.Error("[OracleClient] Prediction violates result invariants",
			slog.String("error", err.Error()))
		return models.SentimentResult{}, apperrors.NewNetwork(op, 0, "invalid oracle response: "+err.Error(), err)
	}

	o.log.Info("[OracleClient] Prediction request successful",
		slog.String("predicted_class", string(result.PredictedClass)),
		slog.Duration("elapsed", time.Since(start)))
	return result, nil
}

// BatchPredict sends every text in one call. Per-item status is returned
// untouched; only a failure of the call itself is an error.
func (o *OracleClient) BatchPredict(ctx context.Context, texts []string) (models.BatchPredictResponse, error) {
	const op = "batch_predict"
	o.log.Info("[OracleClient] Requesting batch prediction", slog.Int("batch_size", len(texts)))
	start := time.Now()

	var out models.BatchPredictResponse
	if err := o.postJSON(ctx, op, BATCH_PREDICT_PATH, models.BatchPredictRequest{Texts: texts}, &out); err != nil {
		o.log.Error("[OracleClient] Batch prediction request failed",
			slog.Duration("elapsed", time.Since(start)),
			slog.String("error", err.Error()))
		return out, err
	}

	o.log.Info("[OracleClient] Batch prediction request successful",
		slog.Int("results", len(out.Results)),
		slog.Int("total_processed", out.TotalProcessed),
		slog.Duration("elapsed", time.Since(start)))
	return out, nil
}

func (o *OracleClient) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := doJSON(ctx, o.client, http.MethodGet, o.baseURL+HEALTH_PATH, nil)
	if err != nil {
		o.log.Debug("[OracleClient] Health check failed", slog.String("error", err.Error()))
		return false
	}
	return res.ok()
}

func (o *OracleClient) doWithRetry(ctx context.Context, method, endpoint string, input any) (httpResult, error) {
	var (
		res     httpResult
		err     error
		backoff = o.backoff
	)

	for attempt := 0; attempt < o.maxAttempts; attempt++ {
		res, err = doJSON(ctx, o.client, method, endpoint, input)
		if err == nil && res.status < 500 {
			return res, nil
		}
		if attempt == o.maxAttempts-1 || ctx.Err() != nil {
			break
		}

		o.log.Warn("[OracleClient] Request failed, will retry",
			slog.Int("attempt", attempt+1),
			slog.String("error", errMsg(err, res)))

		select {
		case <-ctx.Done():
			return res, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > MAX_BACKOFF {
			backoff = MAX_BACKOFF
		}
	}

	return res, err
}

func (o *OracleClient) postJSON(ctx context.Context, op, path string, input, output any) error {
	endpoint := o.baseURL + path

	res, err := o.doWithRetry(ctx, http.MethodPost, endpoint, input)
	if err != nil {
		return apperrors.NewNetwork(op, res.status, "", err)
	}
	if !res.ok() {
		o.log.Warn("[OracleClient] Non-success response",
			slog.String("endpoint", endpoint),
			slog.Int("status", res.status),
			getPreview(res.body))
		return apperrors.NewNetwork(op, res.status, res.serverError(), nil)
	}
	if err := decodeBody(endpoint, res, output, o.log); err != nil {
		return apperrors.NewNetwork(op, res.status, "invalid oracle response", err)
	}
	return nil
}
