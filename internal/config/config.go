package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Kraken API
	KrakenBaseURL   string
	KrakenWSURL     string
	KrakenAPIKey    string
	KrakenAPISecret string // base64, as issued
	KrakenOTP       string // static API-key password
	KrakenTOTP      string // base32 seed; used when KrakenOTP is empty
	IgnoreWarnings  bool

	// Rate gates. Zero occurrences disables a gate.
	PrivateGateOccurrences int
	PrivateGatePeriod      time.Duration
	OrderGateOccurrences   int
	OrderGatePeriod        time.Duration
	PublicRatePerSec       float64 // 0 = unlimited

	HTTPTimeout time.Duration

	// Engine policy
	PolicyPath string

	// History
	HistoryDBPath string

	// Notifications
	DiscordWebhookURL string
	FanoutPort        int // 0 disables the lifecycle feed

	// Telemetry
	LogLevel string
}

func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		KrakenBaseURL:   envStr("KRAKEN_BASE_URL", "https://api.kraken.com/0/"),
		KrakenWSURL:     envStr("KRAKEN_WS_URL", "wss://ws.kraken.com/v2"),
		KrakenAPIKey:    envStr("KRAKEN_API_KEY", ""),
		KrakenAPISecret: envStr("KRAKEN_API_SECRET", ""),
		KrakenOTP:       envStr("KRAKEN_OTP", ""),
		KrakenTOTP:      envStr("KRAKEN_TOTP_SECRET", ""),
		IgnoreWarnings:  envBool("KRAKEN_IGNORE_WARNINGS", false),

		// Starter-tier private counter: 15 calls, one decays every 3s.
		PrivateGateOccurrences: envInt("PRIVATE_GATE_OCCURRENCES", 15),
		PrivateGatePeriod:      time.Duration(envInt("PRIVATE_GATE_PERIOD_MS", 45000)) * time.Millisecond,
		OrderGateOccurrences:   envInt("ORDER_GATE_OCCURRENCES", 0),
		OrderGatePeriod:        time.Duration(envInt("ORDER_GATE_PERIOD_MS", 1000)) * time.Millisecond,
		PublicRatePerSec:       envFloat("PUBLIC_RATE_PER_SEC", 0),

		HTTPTimeout: time.Duration(envInt("HTTP_TIMEOUT_SEC", 10)) * time.Second,

		PolicyPath:    envStr("POLICY_PATH", ""),
		HistoryDBPath: envStr("HISTORY_DB_PATH", "data/history.db"),

		DiscordWebhookURL: envStr("DISCORD_WEBHOOK_URL", ""),
		FanoutPort:        envInt("FANOUT_PORT", 0),

		LogLevel: envStr("LOG_LEVEL", "info"),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
