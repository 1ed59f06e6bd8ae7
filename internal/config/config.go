package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration for the matching engine.
type Config struct {
	Port     int
	LogLevel string

	QuoteAsset   string
	Markets      []string
	TradeHistory int

	KafkaBrokers      []string
	KafkaCommandTopic string
	KafkaResultTopic  string
	KafkaGroupID      string

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// KafkaEnabled reports whether the queue consumer should run.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// Load reads configuration from environment variables, applies defaults,
// and validates values. It returns an error for any invalid value.
//
// Variables from the file named by ENV_FILE (or ./.env when present) are
// loaded first; variables already set in the environment win.
func Load() (*Config, error) {
	if err := loadEnvFile(os.Getenv("ENV_FILE")); err != nil {
		return nil, err
	}

	port, err := getInt("PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}
	if port < 1 || port > 65535 {
		return nil, fmt.Errorf("invalid PORT: %d out of range", port)
	}

	logLevel := getStr("LOG_LEVEL", "info")
	if !isValidLogLevel(logLevel) {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %q, must be one of: debug, info, warn, error", logLevel)
	}

	markets := getList("MARKETS", []string{"BTC_USDT", "ETH_USDT"})
	if len(markets) == 0 {
		return nil, errors.New("invalid MARKETS: at least one market is required")
	}
	seen := make(map[string]bool, len(markets))
	for _, m := range markets {
		if seen[m] {
			return nil, fmt.Errorf("invalid MARKETS: %q listed twice", m)
		}
		seen[m] = true
	}

	tradeHistory, err := getInt("TRADE_HISTORY", 1000)
	if err != nil {
		return nil, fmt.Errorf("invalid TRADE_HISTORY: %w", err)
	}
	if tradeHistory < 1 {
		return nil, fmt.Errorf("invalid TRADE_HISTORY: %d, must be positive", tradeHistory)
	}

	readTimeout, err := getDuration("READ_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid READ_TIMEOUT: %w", err)
	}

	writeTimeout, err := getDuration("WRITE_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid WRITE_TIMEOUT: %w", err)
	}

	idleTimeout, err := getDuration("IDLE_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid IDLE_TIMEOUT: %w", err)
	}

	shutdownTimeout, err := getDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %w", err)
	}

	return &Config{
		Port:              port,
		LogLevel:          logLevel,
		QuoteAsset:        getStr("QUOTE_ASSET", "USDT"),
		Markets:           markets,
		TradeHistory:      tradeHistory,
		KafkaBrokers:      getList("KAFKA_BROKERS", nil),
		KafkaCommandTopic: getStr("KAFKA_COMMAND_TOPIC", "messages"),
		KafkaResultTopic:  os.Getenv("KAFKA_RESULT_TOPIC"),
		KafkaGroupID:      getStr("KAFKA_GROUP_ID", "matchcore"),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ShutdownTimeout:   shutdownTimeout,
	}, nil
}

// loadEnvFile loads path into the environment. An empty path loads
// ./.env if it exists; an explicit path must exist.
func loadEnvFile(path string) error {
	if path == "" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load ENV_FILE %s: %w", path, err)
	}
	return nil
}

func getStr(key, defaultVal string) string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	return v
}

func getInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.Atoi(v)
}

func getDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return time.ParseDuration(v)
}

// getList splits a comma-separated variable, dropping blank entries.
func getList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}
