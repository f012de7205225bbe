package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/oshokin/threshold-alarm/internal/domain/alarm"
	"github.com/oshokin/threshold-alarm/internal/domain/metric"
	"github.com/oshokin/threshold-alarm/internal/logger"
	"github.com/oshokin/threshold-alarm/internal/simulator"
)

// Controller is the command surface the transports drive.
type Controller interface {
	SetThreshold(ctx context.Context, name string, warning, critical float64) error
	ResetThresholds(ctx context.Context)
	ClearAlarms(ctx context.Context) bool
	StartSimulation(ctx context.Context) bool
	StopSimulation(ctx context.Context) bool
	Running() bool
	InjectSpike(ctx context.Context, name string, fraction float64) (metric.Reading, error)
	AddMetric(ctx context.Context, name string, spec metric.Spec) (metric.Reading, error)
	Thresholds() map[string]alarm.ThresholdPair
	Metrics() metric.Snapshot
	Alarms() alarm.Update
}

var (
	// ErrUnknownAction is returned for a simulation action other than start or stop.
	ErrUnknownAction = errors.New("action must be start or stop")

	// Error texts sent back to clients as is.
	errInvalidJSON    = errors.New("Invalid JSON")    //nolint:stylecheck // Wire message.
	errUnknownCommand = errors.New("Unknown command") //nolint:stylecheck // Wire message.
)

// thresholdCommand is the payload of threshold_update.
type thresholdCommand struct {
	Metric   string          `json:"metric"`
	Warning  json.RawMessage `json:"warning"`
	Critical json.RawMessage `json:"critical"`
}

// simulationCommand is the payload of simulation_control.
type simulationCommand struct {
	Action string `json:"action"`
}

// spikeCommand is the payload of simulate_spike.
type spikeCommand struct {
	Metric     string          `json:"metric"`
	Percentage json.RawMessage `json:"percentage"`
}

// AddMetricRequest is the payload of add_metric and of the REST and gRPC
// equivalents. Bounds and volatility may be numbers or numeric strings;
// volatility defaults to 0.
type AddMetricRequest struct {
	Metric     string          `json:"metric"`
	Min        json.RawMessage `json:"min"`
	Max        json.RawMessage `json:"max"`
	Unit       string          `json:"unit"`
	Volatility json.RawMessage `json:"volatility"`
}

// Handle decodes one inbound message, runs it against ctrl and returns the reply.
// Command fields are read from "data"; a message without "data" is read as a
// flat object, so {"type":"clear_alarms"} and {"type":"threshold_update",
// "metric":"cpu",...} are both accepted.
func Handle(ctx context.Context, ctrl Controller, payload []byte) Envelope {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		logger.DebugKV(ctx, "Invalid JSON received", "error", err)

		return ErrorEnvelope(errInvalidJSON.Error())
	}

	body := []byte(env.Data)
	if len(body) == 0 || string(body) == "null" {
		body = payload
	}

	reply, err := dispatch(ctx, ctrl, env.Type, body)
	if err != nil {
		return ErrorEnvelope(err.Error())
	}

	return reply
}

func dispatch(ctx context.Context, ctrl Controller, msgType string, body []byte) (Envelope, error) {
	switch msgType {
	case TypeThresholdUpdate:
		var cmd thresholdCommand
		if err := json.Unmarshal(body, &cmd); err != nil {
			return Envelope{}, errInvalidJSON
		}

		return NewEnvelope(TypeThresholdUpdate, setThreshold(ctx, ctrl, cmd))
	case TypeResetThresholds:
		ctrl.ResetThresholds(ctx)

		return NewEnvelope(TypeResetThresholds, Result{Success: true})
	case TypeClearAlarms:
		return NewEnvelope(TypeClearAlarms, Result{Success: ctrl.ClearAlarms(ctx)})
	case TypeSimulationControl:
		var cmd simulationCommand
		if err := json.Unmarshal(body, &cmd); err != nil {
			return Envelope{}, errInvalidJSON
		}

		status, err := ControlSimulation(ctx, ctrl, cmd.Action)
		if err != nil {
			return Envelope{}, err
		}

		return NewEnvelope(TypeSimulationControl, status)
	case TypeSimulateSpike:
		var cmd spikeCommand
		if err := json.Unmarshal(body, &cmd); err != nil {
			return Envelope{}, errInvalidJSON
		}

		return NewEnvelope(TypeSimulateSpike, spike(ctx, ctrl, cmd))
	case TypeAddMetric:
		var cmd AddMetricRequest
		if err := json.Unmarshal(body, &cmd); err != nil {
			return Envelope{}, errInvalidJSON
		}

		return NewEnvelope(TypeAddMetric, addMetric(ctx, ctrl, cmd))
	case TypeGetConfig:
		return NewEnvelope(TypeConfig, ConfigPayload{Thresholds: ctrl.Thresholds()})
	case TypeGetMetrics:
		return NewEnvelope(TypeMetrics, MetricsPayload{Metrics: ctrl.Metrics()})
	case TypeGetAlarms:
		return AlarmUpdateEnvelope(ctrl.Alarms())
	default:
		logger.DebugKV(ctx, "Unknown message type", "type", msgType)

		return Envelope{}, errUnknownCommand
	}
}

// ControlSimulation starts or stops the simulation and reports the resulting state.
func ControlSimulation(ctx context.Context, ctrl Controller, action string) (SimulationStatus, error) {
	switch action {
	case "start":
		ctrl.StartSimulation(ctx)
	case "stop":
		ctrl.StopSimulation(ctx)
	default:
		return SimulationStatus{}, ErrUnknownAction
	}

	return CurrentSimulationStatus(ctrl), nil
}

// CurrentSimulationStatus reports whether the simulation is running.
func CurrentSimulationStatus(ctrl Controller) SimulationStatus {
	if ctrl.Running() {
		return SimulationStatus{Status: StatusRunning}
	}

	return SimulationStatus{Status: StatusStopped}
}

func setThreshold(ctx context.Context, ctrl Controller, cmd thresholdCommand) Result {
	warning, err := ParseNumber(cmd.Warning)
	if err != nil {
		return Result{Error: "warning: " + err.Error()}
	}

	critical, err := ParseNumber(cmd.Critical)
	if err != nil {
		return Result{Error: "critical: " + err.Error()}
	}

	if err := ctrl.SetThreshold(ctx, cmd.Metric, warning, critical); err != nil {
		return Result{Error: err.Error()}
	}

	return Result{Success: true}
}

func spike(ctx context.Context, ctrl Controller, cmd spikeCommand) SpikeResult {
	fraction := simulator.DefaultSpikeFraction

	if len(cmd.Percentage) > 0 && string(cmd.Percentage) != "null" {
		v, err := ParseNumber(cmd.Percentage)
		if err != nil {
			return SpikeResult{Metric: cmd.Metric, Error: "percentage: " + err.Error()}
		}

		fraction = v
	}

	reading, err := ctrl.InjectSpike(ctx, cmd.Metric, fraction)
	if err != nil {
		return SpikeResult{Metric: cmd.Metric, Error: err.Error()}
	}

	return SpikeResult{Success: true, Metric: cmd.Metric, Value: reading.Value, Unit: reading.Unit}
}

func addMetric(ctx context.Context, ctrl Controller, cmd AddMetricRequest) MetricResult {
	spec, err := cmd.Spec()
	if err != nil {
		return MetricResult{Metric: cmd.Metric, Error: err.Error()}
	}

	reading, err := ctrl.AddMetric(ctx, cmd.Metric, spec)
	if err != nil {
		return MetricResult{Metric: cmd.Metric, Error: err.Error()}
	}

	return MetricResult{Success: true, Metric: cmd.Metric, Reading: &reading}
}

// Spec parses the request into a metric spec. Range checks are left to the
// controller.
func (c AddMetricRequest) Spec() (metric.Spec, error) {
	spec := metric.Spec{Unit: c.Unit}

	var err error

	if spec.Min, err = ParseNumber(c.Min); err != nil {
		return metric.Spec{}, fmt.Errorf("min: %w", err)
	}

	if spec.Max, err = ParseNumber(c.Max); err != nil {
		return metric.Spec{}, fmt.Errorf("max: %w", err)
	}

	if len(c.Volatility) > 0 && string(c.Volatility) != "null" {
		if spec.Volatility, err = ParseNumber(c.Volatility); err != nil {
			return metric.Spec{}, fmt.Errorf("volatility: %w", err)
		}
	}

	return spec, nil
}
