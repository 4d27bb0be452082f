package clients

import "time"

const (
	DEFAULT_ORACLE_TIMEOUT = 30 * time.Second
	DEFAULT_STORE_TIMEOUT  = 10 * time.Second
	INITIAL_BACKOFF        = 500 * time.Millisecond
	MAX_BACKOFF            = 8 * time.Second
	USER_AGENT             = "sentiboard-client/1.0 (+https://github.com/spacesedan/sentiboard)"
	MAX_ERROR_BODY         = 64 << 10
)

const (
	PREDICT_PATH       = "/predict"
	BATCH_PREDICT_PATH = "/batch_predict"
	HEALTH_PATH        = "/health"

	STATS_PATH = "/api/sentiment-stats"
	SAVE_PATH  = "/api/save-sentiment"
	CLEAR_PATH = "/api/clear-data"
)
