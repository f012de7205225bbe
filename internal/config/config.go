package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/threshold-alarm/internal/domain/alarm"
	"github.com/oshokin/threshold-alarm/internal/domain/metric"
	"github.com/oshokin/threshold-alarm/internal/logger"
)

// Config holds the settings of the alarm server.
type Config struct {
	// HTTPAddress is the listen address of the REST, WebSocket and metrics endpoints.
	HTTPAddress string `yaml:"http_addr"`
	// GRPCAddress is the listen address of the gRPC control service. Empty disables it.
	GRPCAddress string `yaml:"grpc_addr"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
	// Simulation controls the tick scheduler.
	Simulation Simulation `yaml:"simulation"`
	// Alarm controls the alarm state machine.
	Alarm Alarm `yaml:"alarm"`
	// Delivery controls the transport subscribers.
	Delivery Delivery `yaml:"delivery"`
	// Metrics describes every simulated metric and its default thresholds.
	Metrics map[string]Metric `yaml:"metrics"`
	// Kafka configures the optional alarm exporter.
	Kafka Kafka `yaml:"kafka"`
}

// Simulation holds scheduler settings.
type Simulation struct {
	// Interval is the time between ticks.
	Interval time.Duration `yaml:"interval"`
	// Autostart starts ticking as soon as the server is up.
	Autostart bool `yaml:"autostart"`
	// Seed seeds the random walk. Zero seeds from the clock.
	Seed uint64 `yaml:"seed"`
}

// Alarm holds alarm state machine settings.
type Alarm struct {
	// HistoryLimit caps the number of history entries kept.
	HistoryLimit int `yaml:"history_limit"`
}

// Delivery holds settings of transport subscribers.
type Delivery struct {
	// BufferSize is the number of queued messages per subscriber before it is dropped.
	BufferSize int `yaml:"buffer_size"`
	// WriteTimeout bounds a single network write.
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// Metric is the static description of one metric plus its default thresholds.
type Metric struct {
	// Min is the lower bound of simulated values.
	Min float64 `yaml:"min"`
	// Max is the upper bound of simulated values.
	Max float64 `yaml:"max"`
	// Unit is appended to values in alarm messages.
	Unit string `yaml:"unit"`
	// Volatility is the largest change of the value per tick.
	Volatility float64 `yaml:"volatility"`
	// Warning is the default warning threshold.
	Warning float64 `yaml:"warning"`
	// Critical is the default critical threshold; it must exceed Warning.
	Critical float64 `yaml:"critical"`
}

// Kafka holds exporter settings. No brokers means the exporter is disabled.
type Kafka struct {
	// Brokers lists bootstrap broker addresses.
	Brokers []string `yaml:"brokers"`
	// Topic receives alarm transition events.
	Topic string `yaml:"topic"`
}

const (
	// DefaultConfigFilename is the conventional settings filename.
	DefaultConfigFilename = "threshold-alarm.yaml"

	// DefaultHTTPAddress is the default REST and WebSocket listen address.
	DefaultHTTPAddress = ":8080"

	// DefaultGRPCAddress is the default gRPC listen address.
	DefaultGRPCAddress = ":50051"

	// DefaultInterval is the default tick interval.
	DefaultInterval = time.Second

	// DefaultHistoryLimit is the default alarm history cap.
	DefaultHistoryLimit = 50

	// DefaultBufferSize is the default per-subscriber queue length.
	DefaultBufferSize = 64

	// DefaultWriteTimeout is the default network write timeout.
	DefaultWriteTimeout = 5 * time.Second

	// DefaultKafkaTopic is the default exporter topic.
	DefaultKafkaTopic = "threshold-alarm.transitions"

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errHTTPAddressRequired is returned when the HTTP address is missing.
	errHTTPAddressRequired = errors.New("http address must be provided")
	// errNoMetrics is returned when no metric is configured.
	errNoMetrics = errors.New("at least one metric must be configured")
	// errKafkaTopicRequired is returned when brokers are set without a topic.
	errKafkaTopicRequired = errors.New("kafka topic must be provided when brokers are set")
)

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		HTTPAddress: DefaultHTTPAddress,
		GRPCAddress: DefaultGRPCAddress,
		LogLevel:    "info",
		Simulation: Simulation{
			Interval:  DefaultInterval,
			Autostart: true,
		},
		Alarm: Alarm{
			HistoryLimit: DefaultHistoryLimit,
		},
		Delivery: Delivery{
			BufferSize:   DefaultBufferSize,
			WriteTimeout: DefaultWriteTimeout,
		},
		Metrics: DefaultMetrics(),
		Kafka: Kafka{
			Topic: DefaultKafkaTopic,
		},
	}
}

// DefaultMetrics returns the four built-in metrics.
func DefaultMetrics() map[string]Metric {
	return map[string]Metric{
		"cpu":       {Min: 0, Max: 100, Unit: "%", Volatility: 5, Warning: 70, Critical: 90},
		"memory":    {Min: 0, Max: 100, Unit: "%", Volatility: 3, Warning: 65, Critical: 85},
		"bandwidth": {Min: 0, Max: 1000, Unit: "Mbps", Volatility: 50, Warning: 700, Critical: 900},
		"latency":   {Min: 0, Max: 500, Unit: "ms", Volatility: 10, Warning: 80, Critical: 150},
	}
}

// Load resolves settings from defaults, the YAML file at path (skipped when
// path is empty), a .env file in the working directory and the environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		contents, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return nil, fmt.Errorf("read settings: %w", err)
		}

		if err := decode(contents, cfg); err != nil {
			return nil, err
		}
	}

	if err := LoadDotEnv(); err != nil {
		return nil, err
	}

	if err := ApplyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes settings to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks the provided settings for required fields and consistent values.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if cfg.HTTPAddress == "" {
		return errHTTPAddressRequired
	}

	if _, err := net.ResolveTCPAddr("tcp", cfg.HTTPAddress); err != nil {
		return fmt.Errorf("invalid http address: %w", err)
	}

	if cfg.GRPCAddress != "" {
		if _, err := net.ResolveTCPAddr("tcp", cfg.GRPCAddress); err != nil {
			return fmt.Errorf("invalid grpc address: %w", err)
		}
	}

	if _, ok := logger.ParseLogLevel(cfg.LogLevel); !ok {
		return fmt.Errorf("invalid log level %q", cfg.LogLevel)
	}

	if cfg.Simulation.Interval <= 0 {
		return fmt.Errorf("simulation interval must be positive, got %s", cfg.Simulation.Interval)
	}

	if cfg.Alarm.HistoryLimit <= 0 {
		return fmt.Errorf("alarm history limit must be positive, got %d", cfg.Alarm.HistoryLimit)
	}

	if cfg.Delivery.BufferSize <= 0 {
		return fmt.Errorf("delivery buffer size must be positive, got %d", cfg.Delivery.BufferSize)
	}

	if cfg.Delivery.WriteTimeout <= 0 {
		return fmt.Errorf("delivery write timeout must be positive, got %s", cfg.Delivery.WriteTimeout)
	}

	if len(cfg.Metrics) == 0 {
		return errNoMetrics
	}

	for _, name := range cfg.MetricNames() {
		if err := cfg.Metrics[name].validate(); err != nil {
			return fmt.Errorf("metric %q: %w", name, err)
		}
	}

	if len(cfg.Kafka.Brokers) > 0 && cfg.Kafka.Topic == "" {
		return errKafkaTopicRequired
	}

	return nil
}

// MetricNames returns the configured metric names, sorted.
func (c *Config) MetricNames() []string {
	names := make([]string, 0, len(c.Metrics))
	for name := range c.Metrics {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Specs returns the simulator description of every metric.
func (c *Config) Specs() map[string]metric.Spec {
	specs := make(map[string]metric.Spec, len(c.Metrics))
	for name, m := range c.Metrics {
		specs[name] = m.Spec()
	}

	return specs
}

// Thresholds returns the default threshold pair of every metric.
func (c *Config) Thresholds() map[string]alarm.ThresholdPair {
	pairs := make(map[string]alarm.ThresholdPair, len(c.Metrics))
	for name, m := range c.Metrics {
		pairs[name] = alarm.ThresholdPair{Warning: m.Warning, Critical: m.Critical}
	}

	return pairs
}

// Spec returns the simulator description of m.
func (m Metric) Spec() metric.Spec {
	return metric.Spec{Min: m.Min, Max: m.Max, Unit: m.Unit, Volatility: m.Volatility}
}

func (m Metric) validate() error {
	if err := m.Spec().Validate(); err != nil {
		return err
	}

	if err := (alarm.ThresholdPair{Warning: m.Warning, Critical: m.Critical}).Validate(); err != nil {
		return fmt.Errorf("default thresholds: %w", err)
	}

	return nil
}

// decode overlays YAML contents on cfg. A metrics section replaces the
// built-in metrics instead of merging with them.
func decode(contents []byte, cfg *Config) error {
	defaults := cfg.Metrics
	cfg.Metrics = nil

	if err := yaml.Unmarshal(contents, cfg); err != nil {
		return fmt.Errorf("unmarshal settings: %w", err)
	}

	if len(cfg.Metrics) == 0 {
		cfg.Metrics = defaults
	}

	return nil
}
