package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the process configuration shared by the analyzer CLI, the store
// server and the dev oracle. Each binary only reads the fields it needs.
type Config struct {
	MLAPIURL string
	APIURL   string
	LogLevel string

	OracleTimeout     time.Duration
	OracleMaxAttempts int
	StoreTimeout      time.Duration

	RealtimeTransports        []string
	RealtimeDialTimeout       time.Duration
	RealtimeReconnectDelay    time.Duration
	RealtimeMaxReconnectDelay time.Duration
	RealtimePollWait          time.Duration
	RealtimePingInterval      time.Duration

	NotificationTTL time.Duration

	// StoreAuth enables client-credentials tokens on store requests.
	StoreAuth AuthConfig

	Store  StoreConfig
	Oracle OracleConfig
}

type StoreConfig struct {
	Addr          string
	Backend       string
	SQLitePath    string
	AWSEndpoint   string
	AWSRegion     string
	DynamoDBTable string
	CORSOrigins   []string

	ValkeyAddr     string
	ValkeyPassword string
	ValkeyTLS      bool

	KafkaBroker       string
	KafkaResultsTopic string
}

type AuthConfig struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

type OracleConfig struct {
	Addr string
}

func Load() Config {
	return Config{
		MLAPIURL: strings.TrimRight(getEnv("ML_API_URL", "http://localhost:5000"), "/"),
		APIURL:   strings.TrimRight(getEnv("API_URL", "http://localhost:3001"), "/"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		OracleTimeout:     getDuration("ORACLE_TIMEOUT", 30*time.Second),
		OracleMaxAttempts: getInt("ORACLE_MAX_ATTEMPTS", 2),
		StoreTimeout:      getDuration("STORE_TIMEOUT", 10*time.Second),

		RealtimeTransports:        getList("REALTIME_TRANSPORTS", []string{"websocket", "polling"}),
		RealtimeDialTimeout:       getDuration("REALTIME_DIAL_TIMEOUT", 10*time.Second),
		RealtimeReconnectDelay:    getDuration("REALTIME_RECONNECT_DELAY", time.Second),
		RealtimeMaxReconnectDelay: getDuration("REALTIME_MAX_RECONNECT_DELAY", 30*time.Second),
		RealtimePollWait:          getDuration("REALTIME_POLL_WAIT", 25*time.Second),
		RealtimePingInterval:      getDuration("REALTIME_PING_INTERVAL", 15*time.Second),

		NotificationTTL: getDuration("NOTIFICATION_TTL", 5*time.Second),

		StoreAuth: AuthConfig{
			TokenURL:     getEnv("STORE_TOKEN_URL", ""),
			ClientID:     getEnv("STORE_CLIENT_ID", ""),
			ClientSecret: getEnv("STORE_CLIENT_SECRET", ""),
			Scopes:       getList("STORE_SCOPES", nil),
		},

		Store: StoreConfig{
			Addr:          getEnv("STORE_ADDR", ":3001"),
			Backend:       getEnv("STORE_BACKEND", "sqlite"),
			SQLitePath:    getEnv("SQLITE_PATH", "data/sentiment.db"),
			AWSEndpoint:   getEnv("AWS_ENDPOINT", ""),
			AWSRegion:     getEnv("AWS_REGION", "us-west-2"),
			DynamoDBTable: getEnv("DYNAMODB_TABLE", "SentimentResults"),
			CORSOrigins:   getList("CORS_ORIGINS", []string{"*"}),

			ValkeyAddr:     getEnv("VALKEY_INIT_ADDRESS", ""),
			ValkeyPassword: getEnv("VALKEY_PASSWORD", ""),
			ValkeyTLS:      getEnv("VALKEY_TLS", "") == "true",

			KafkaBroker:       getEnv("KAFKA_BROKER", ""),
			KafkaResultsTopic: getEnv("KAFKA_RESULTS_TOPIC", "sentiment-results"),
		},
		Oracle: OracleConfig{
			Addr: getEnv("ORACLE_ADDR", ":5000"),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		slog.Warn("[Config] Invalid duration, using default",
			slog.String("key", key),
			slog.String("value", raw),
			slog.Duration("default", defaultValue))
		return defaultValue
	}
	return d
}

func getInt(key string, defaultValue int) int {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		slog.Warn("[Config] Invalid integer, using default",
			slog.String("key", key),
			slog.String("value", raw),
			slog.Int("default", defaultValue))
		return defaultValue
	}
	return n
}

func getList(key string, defaultValue []string) []string {
	raw, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
