package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "THRESHOLD_ALARM_"

// LookupFunc resolves an environment variable. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// LoadDotEnv loads a .env file from the working directory when present.
// Variables already set in the environment win.
func LoadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env file: %w", err)
	}

	return nil
}

// ApplyEnv overrides cfg with THRESHOLD_ALARM_* variables resolved by lookup.
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	get := func(name string) (string, bool) {
		v, ok := lookup(EnvPrefix + name)
		if !ok || strings.TrimSpace(v) == "" {
			return "", false
		}

		return strings.TrimSpace(v), true
	}

	if v, ok := get("HTTP_ADDR"); ok {
		cfg.HTTPAddress = v
	}

	if v, ok := get("GRPC_ADDR"); ok {
		cfg.GRPCAddress = v
	}

	if v, ok := get("LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}

	if v, ok := get("TICK_INTERVAL"); ok {
		interval, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse %sTICK_INTERVAL: %w", EnvPrefix, err)
		}

		cfg.Simulation.Interval = interval
	}

	if v, ok := get("HISTORY_LIMIT"); ok {
		limit, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse %sHISTORY_LIMIT: %w", EnvPrefix, err)
		}

		cfg.Alarm.HistoryLimit = limit
	}

	if v, ok := get("KAFKA_BROKERS"); ok {
		cfg.Kafka.Brokers = splitList(v)
	}

	if v, ok := get("KAFKA_TOPIC"); ok {
		cfg.Kafka.Topic = v
	}

	return nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))

	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			result = append(result, p)
		}
	}

	return result
}
