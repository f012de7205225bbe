package protocol

import (
	"encoding/json"

	"github.com/oshokin/threshold-alarm/internal/domain/alarm"
	"github.com/oshokin/threshold-alarm/internal/domain/metric"
)

// Outbound message types.
const (
	TypeMetricsUpdate = "metrics_update"
	TypeAlarmUpdate   = "alarm_update"
	TypeConfig        = "config"
	TypeMetrics       = "metrics"
	TypeError         = "error"
)

// Inbound command types. Replies reuse the command type unless noted.
const (
	TypeThresholdUpdate   = "threshold_update"
	TypeResetThresholds   = "reset_thresholds"
	TypeClearAlarms       = "clear_alarms"
	TypeSimulationControl = "simulation_control"
	TypeSimulateSpike     = "simulate_spike"
	TypeAddMetric         = "add_metric"
	// TypeGetConfig is answered with TypeConfig.
	TypeGetConfig = "get_config"
	// TypeGetMetrics is answered with TypeMetrics.
	TypeGetMetrics = "get_metrics"
	// TypeGetAlarms is answered with TypeAlarmUpdate.
	TypeGetAlarms = "get_alarms"
)

// Simulation states reported by simulation_control.
const (
	StatusRunning = "running"
	StatusStopped = "stopped"
)

// Envelope is the frame of every message in both directions.
type Envelope struct {
	// Type names the message.
	Type string `json:"type"`
	// Data is the type-specific payload.
	Data json.RawMessage `json:"data,omitempty"`
}

// Result is the payload of command replies that only report success.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// SpikeResult is the payload of simulate_spike replies.
type SpikeResult struct {
	Success bool    `json:"success"`
	Error   string  `json:"error,omitempty"`
	Metric  string  `json:"metric,omitempty"`
	Value   float64 `json:"value,omitempty"`
	Unit    string  `json:"unit,omitempty"`
}

// MetricResult is the payload of add_metric replies.
type MetricResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Metric  string `json:"metric,omitempty"`
	// Reading is the initial value of the new metric.
	Reading *metric.Reading `json:"reading,omitempty"`
}

// SimulationStatus is the payload of simulation_control replies.
type SimulationStatus struct {
	Status string `json:"status"`
}

// ConfigPayload is the payload of config messages.
type ConfigPayload struct {
	Thresholds map[string]alarm.ThresholdPair `json:"thresholds"`
}

// MetricsPayload is the payload of metrics messages.
type MetricsPayload struct {
	Metrics metric.Snapshot `json:"metrics"`
}

// ErrorPayload is the payload of error messages.
type ErrorPayload struct {
	Message string `json:"message"`
}

// NewEnvelope marshals data into an envelope of the given type.
func NewEnvelope(msgType string, data any) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}

	return Envelope{Type: msgType, Data: raw}, nil
}

// ErrorEnvelope builds an error message.
func ErrorEnvelope(message string) Envelope {
	env, _ := NewEnvelope(TypeError, ErrorPayload{Message: message}) //nolint:errchkjson // Plain string payload.

	return env
}

// MetricsUpdateEnvelope builds a metrics_update message.
func MetricsUpdateEnvelope(update metric.Snapshot) (Envelope, error) {
	if update == nil {
		update = metric.Snapshot{}
	}

	return NewEnvelope(TypeMetricsUpdate, update)
}

// AlarmUpdateEnvelope builds an alarm_update message.
func AlarmUpdateEnvelope(update alarm.Update) (Envelope, error) {
	if update.Alarms == nil {
		update.Alarms = map[string]alarm.Record{}
	}

	if update.History == nil {
		update.History = []alarm.HistoryEntry{}
	}

	return NewEnvelope(TypeAlarmUpdate, update)
}
