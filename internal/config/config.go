package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	DatabaseURL    string
	RedisURL       string
	KafkaBrokers   string
	KafkaTopic     string
	JaegerEndpoint string
	Port           string

	GatewayBaseURL string
	GatewayShopID  string
	GatewaySecret  string
	GatewayTimeout time.Duration
	ReturnURL      string

	TelegramToken  string
	TelegramChatID string

	SweepInterval         time.Duration
	RetryCheckDelay       time.Duration
	SchedulerWorkers      int
	RecurringIntervalDays int
}

func Load() *Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8082"
	}

	gatewayURL := os.Getenv("GATEWAY_BASE_URL")
	if gatewayURL == "" {
		gatewayURL = "https://api.yookassa.ru/v3"
	}

	kafkaTopic := os.Getenv("KAFKA_TOPIC")
	if kafkaTopic == "" {
		kafkaTopic = "payment.status.changed"
	}

	return &Config{
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisURL:       os.Getenv("REDIS_URL"),
		KafkaBrokers:   os.Getenv("KAFKA_BROKERS"),
		KafkaTopic:     kafkaTopic,
		JaegerEndpoint: os.Getenv("JAEGER_ENDPOINT"),
		Port:           port,

		GatewayBaseURL: gatewayURL,
		GatewayShopID:  os.Getenv("GATEWAY_SHOP_ID"),
		GatewaySecret:  os.Getenv("GATEWAY_SECRET"),
		GatewayTimeout: durationEnv("GATEWAY_TIMEOUT", 15*time.Second),
		ReturnURL:      os.Getenv("RETURN_URL"),

		TelegramToken:  os.Getenv("TELEGRAM_TOKEN"),
		TelegramChatID: os.Getenv("TELEGRAM_CHAT_ID"),

		SweepInterval:         durationEnv("SWEEP_INTERVAL", 10*time.Second),
		RetryCheckDelay:       durationEnv("RETRY_CHECK_DELAY", 10*time.Second),
		SchedulerWorkers:      intEnv("SCHEDULER_WORKERS", 4),
		RecurringIntervalDays: intEnv("RECURRING_INTERVAL_DAYS", 1),
	}
}

func durationEnv(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func intEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}
