package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/threshold-alarm/internal/domain/alarm"
	"github.com/oshokin/threshold-alarm/internal/domain/metric"
)

// TestValidate checks required fields and value consistency.
func TestValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, Validate(Default()))
	require.ErrorIs(t, Validate(nil), errConfigIsNotSet)

	cases := map[string]func(*Config){
		"missing http address": func(c *Config) { c.HTTPAddress = "" },
		"bad grpc address":     func(c *Config) { c.GRPCAddress = "bad:address" },
		"bad log level":        func(c *Config) { c.LogLevel = "loud" },
		"zero interval":        func(c *Config) { c.Simulation.Interval = 0 },
		"zero history":         func(c *Config) { c.Alarm.HistoryLimit = 0 },
		"zero buffer":          func(c *Config) { c.Delivery.BufferSize = 0 },
		"no metrics":           func(c *Config) { c.Metrics = nil },
		"inverted bounds": func(c *Config) {
			c.Metrics["cpu"] = Metric{Min: 100, Max: 0, Unit: "%", Warning: 1, Critical: 2}
		},
		"inverted thresholds": func(c *Config) {
			c.Metrics["cpu"] = Metric{Min: 0, Max: 100, Unit: "%", Warning: 90, Critical: 70}
		},
		"negative volatility": func(c *Config) {
			c.Metrics["cpu"] = Metric{Min: 0, Max: 100, Volatility: -1, Warning: 70, Critical: 90}
		},
		"kafka without topic": func(c *Config) {
			c.Kafka = Kafka{Brokers: []string{"localhost:9092"}}
		},
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			cfg := Default()
			mutate(cfg)

			require.Error(t, Validate(cfg))
		})
	}

	// An empty gRPC address disables the service.
	cfg := Default()
	cfg.GRPCAddress = ""
	require.NoError(t, Validate(cfg))
}

// TestMetric_Spec maps every documented field and rejects bad bounds as an invalid spec.
func TestMetric_Spec(t *testing.T) {
	t.Parallel()

	m := Metric{Min: 10, Max: 1000, Unit: "GB", Volatility: 20, Warning: 700, Critical: 900}
	require.Equal(t, metric.Spec{Min: 10, Max: 1000, Unit: "GB", Volatility: 20}, m.Spec())
	require.NoError(t, m.validate())

	cfg := Default()
	cfg.Metrics["disk"] = Metric{Min: 5, Max: 5, Unit: "GB", Warning: 1, Critical: 2}
	require.ErrorIs(t, Validate(cfg), metric.ErrInvalidSpec)

	cfg.Metrics["disk"] = Metric{Min: 0, Max: 10, Unit: "GB", Warning: 8, Critical: 8}
	err := Validate(cfg)
	require.Error(t, err)
	require.NotErrorIs(t, err, metric.ErrInvalidSpec)
}

// TestSaveLoadRoundtrip ensures settings are persisted and loaded back correctly.
func TestSaveLoadRoundtrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")

	cfg := Default()
	cfg.HTTPAddress = "127.0.0.1:9090"
	cfg.Simulation.Interval = 250 * time.Millisecond
	cfg.Simulation.Autostart = false
	cfg.Simulation.Seed = 7
	cfg.Kafka.Brokers = []string{"kafka:9092"}

	require.NoError(t, Save(path, cfg))

	contents, err := os.ReadFile(path)
	require.NoError(t, err)

	loaded := Default()
	require.NoError(t, decode(contents, loaded))
	require.Equal(t, cfg, loaded)
}

// TestDecode_PartialFileKeepsDefaults checks that absent keys keep built-in values.
func TestDecode_PartialFileKeepsDefaults(t *testing.T) {
	t.Parallel()

	cfg := Default()
	require.NoError(t, decode([]byte("http_addr: \":9999\"\nsimulation:\n  interval: 2s\n"), cfg))

	require.Equal(t, ":9999", cfg.HTTPAddress)
	require.Equal(t, DefaultGRPCAddress, cfg.GRPCAddress)
	require.Equal(t, 2*time.Second, cfg.Simulation.Interval)
	require.True(t, cfg.Simulation.Autostart)
	require.Len(t, cfg.Metrics, 4)
}

// TestDecode_MetricsReplaceDefaults checks that a metrics section is not merged.
func TestDecode_MetricsReplaceDefaults(t *testing.T) {
	t.Parallel()

	cfg := Default()
	doc := `
metrics:
  disk:
    min: 0
    max: 100
    unit: "%"
    volatility: 1
    warning: 80
    critical: 95
`
	require.NoError(t, decode([]byte(doc), cfg))
	require.Equal(t, []string{"disk"}, cfg.MetricNames())
	require.Equal(t, alarm.ThresholdPair{Warning: 80, Critical: 95}, cfg.Thresholds()["disk"])
	require.Equal(t, "%", cfg.Specs()["disk"].Unit)
}

// TestApplyEnv checks environment overrides.
func TestApplyEnv(t *testing.T) {
	t.Parallel()

	env := map[string]string{
		EnvPrefix + "HTTP_ADDR":     ":7070",
		EnvPrefix + "LOG_LEVEL":     "debug",
		EnvPrefix + "TICK_INTERVAL": "500ms",
		EnvPrefix + "HISTORY_LIMIT": "5",
		EnvPrefix + "KAFKA_BROKERS": "a:9092, b:9092,",
		EnvPrefix + "GRPC_ADDR":     "   ",
	}

	lookup := func(key string) (string, bool) {
		v, ok := env[key]

		return v, ok
	}

	cfg := Default()
	require.NoError(t, ApplyEnv(cfg, lookup))

	require.Equal(t, ":7070", cfg.HTTPAddress)
	require.Equal(t, DefaultGRPCAddress, cfg.GRPCAddress)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, 500*time.Millisecond, cfg.Simulation.Interval)
	require.Equal(t, 5, cfg.Alarm.HistoryLimit)
	require.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)

	env[EnvPrefix+"HISTORY_LIMIT"] = "many"
	require.Error(t, ApplyEnv(Default(), lookup))
}

// TestLoad_MissingFile reports read errors.
func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
