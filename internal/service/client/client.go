package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	api "github.com/oshokin/threshold-alarm/internal/api/grpc/alarm"
	"github.com/oshokin/threshold-alarm/internal/api/protocol"
	"github.com/oshokin/threshold-alarm/internal/domain/alarm"
	"github.com/oshokin/threshold-alarm/internal/domain/metric"
)

// DefaultCallTimeout is the default timeout for a single RPC.
const DefaultCallTimeout = 5 * time.Second

// Client wraps the gRPC AlarmService with convenience helpers.
type Client struct {
	// conn is the underlying gRPC connection to the alarm server.
	conn *grpc.ClientConn
	// callTimeout is the default timeout for individual RPC calls.
	callTimeout time.Duration
	// dialOptions are appended to the default dial options.
	dialOptions []grpc.DialOption
}

// Option configures client behaviour.
type Option func(*Client)

// WithCallTimeout sets a default timeout for service calls.
func WithCallTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.callTimeout = timeout
		}
	}
}

// WithDialOptions adds gRPC dial options, e.g. a custom dialer in tests.
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(c *Client) {
		c.dialOptions = append(c.dialOptions, opts...)
	}
}

// errAddressRequired is returned when a required address value is missing.
var errAddressRequired = errors.New("address must be provided")

// Dial establishes a gRPC connection to the alarm server.
// Note: this uses insecure transport credentials; deploy on a trusted network
// or terminate TLS in a proxy.
func Dial(_ context.Context, address string, opts ...Option) (*Client, error) {
	if address == "" {
		return nil, errAddressRequired
	}

	client := &Client{
		callTimeout: DefaultCallTimeout,
	}

	for _, opt := range opts {
		opt(client)
	}

	dialOptions := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}, client.dialOptions...)

	conn, err := grpc.NewClient(address, dialOptions...)
	if err != nil {
		return nil, fmt.Errorf("dial alarm server: %w", err)
	}

	client.conn = conn

	return client, nil
}

// Close releases the underlying gRPC connection.
func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}

	return c.conn.Close()
}

// GetConfig returns every threshold pair.
func (c *Client) GetConfig(ctx context.Context) (map[string]alarm.ThresholdPair, error) {
	var out protocol.ConfigPayload
	if err := c.call(ctx, api.MethodGetConfig, nil, &out); err != nil {
		return nil, fmt.Errorf("get config: %w", err)
	}

	return out.Thresholds, nil
}

// GetMetrics returns the current reading of every metric.
func (c *Client) GetMetrics(ctx context.Context) (metric.Snapshot, error) {
	var out protocol.MetricsPayload
	if err := c.call(ctx, api.MethodGetMetrics, nil, &out); err != nil {
		return nil, fmt.Errorf("get metrics: %w", err)
	}

	return out.Metrics, nil
}

// GetAlarms returns alarm statuses, history and the highest severity.
func (c *Client) GetAlarms(ctx context.Context) (alarm.Update, error) {
	var out alarm.Update
	if err := c.call(ctx, api.MethodGetAlarms, nil, &out); err != nil {
		return alarm.Update{}, fmt.Errorf("get alarms: %w", err)
	}

	return out, nil
}

// SetThreshold replaces the pair of one metric.
func (c *Client) SetThreshold(ctx context.Context, name string, warning, critical float64) error {
	req := map[string]any{"metric": name, "warning": warning, "critical": critical}

	if err := c.call(ctx, api.MethodSetThreshold, req, nil); err != nil {
		return fmt.Errorf("set threshold: %w", err)
	}

	return nil
}

// ResetThresholds restores the configured pairs.
func (c *Client) ResetThresholds(ctx context.Context) error {
	if err := c.call(ctx, api.MethodResetThresholds, nil, nil); err != nil {
		return fmt.Errorf("reset thresholds: %w", err)
	}

	return nil
}

// ClearAlarms forces every alarm back to normal.
func (c *Client) ClearAlarms(ctx context.Context) error {
	if err := c.call(ctx, api.MethodClearAlarms, nil, nil); err != nil {
		return fmt.Errorf("clear alarms: %w", err)
	}

	return nil
}

// ControlSimulation starts ("start") or stops ("stop") the simulation and
// returns the resulting state. An empty action only queries it.
func (c *Client) ControlSimulation(ctx context.Context, action string) (string, error) {
	var out protocol.SimulationStatus
	if err := c.call(ctx, api.MethodControlSimulation, api.ControlSimulationRequest{Action: action}, &out); err != nil {
		return "", fmt.Errorf("control simulation: %w", err)
	}

	return out.Status, nil
}

// InjectSpike forces a metric to fraction × max. A nil fraction uses the server default.
func (c *Client) InjectSpike(ctx context.Context, name string, fraction *float64) (metric.Reading, error) {
	var out protocol.SpikeResult

	req := api.InjectSpikeRequest{Metric: name, Fraction: fraction}
	if err := c.call(ctx, api.MethodInjectSpike, req, &out); err != nil {
		return metric.Reading{}, fmt.Errorf("inject spike: %w", err)
	}

	return metric.Reading{Value: out.Value, Unit: out.Unit}, nil
}

// AddMetric asks the server to start simulating a new metric and returns its
// initial reading.
func (c *Client) AddMetric(ctx context.Context, name string, spec metric.Spec) (metric.Reading, error) {
	var out protocol.MetricResult

	req := map[string]any{
		"metric":     name,
		"min":        spec.Min,
		"max":        spec.Max,
		"unit":       spec.Unit,
		"volatility": spec.Volatility,
	}
	if err := c.call(ctx, api.MethodAddMetric, req, &out); err != nil {
		return metric.Reading{}, fmt.Errorf("add metric: %w", err)
	}

	var reading metric.Reading
	if out.Reading != nil {
		reading = *out.Reading
	}

	return reading, nil
}

// Watch opens an update stream. The stream ends when ctx is canceled.
func (c *Client) Watch(ctx context.Context, alarmsOnly bool) (*WatchStream, error) {
	streamCtx, cancel := context.WithCancel(ctx)

	stream, err := c.conn.NewStream(streamCtx, &api.WatchStreamDesc, api.MethodWatch)
	if err != nil {
		cancel()

		return nil, fmt.Errorf("open watch stream: %w", err)
	}

	req, err := api.ToStruct(api.WatchRequest{AlarmsOnly: alarmsOnly})
	if err != nil {
		cancel()

		return nil, err
	}

	if err := stream.SendMsg(req); err != nil {
		cancel()

		return nil, fmt.Errorf("send watch request: %w", err)
	}

	if err := stream.CloseSend(); err != nil {
		cancel()

		return nil, fmt.Errorf("close watch request: %w", err)
	}

	return &WatchStream{stream: stream, cancel: cancel}, nil
}

// WatchStream yields update envelopes.
type WatchStream struct {
	// stream is the server stream.
	stream grpc.ClientStream
	// cancel ends the stream.
	cancel context.CancelFunc
}

// Recv blocks until the next envelope arrives.
func (w *WatchStream) Recv() (protocol.Envelope, error) {
	msg := new(structpb.Struct)
	if err := w.stream.RecvMsg(msg); err != nil {
		return protocol.Envelope{}, err
	}

	var env protocol.Envelope
	if err := api.FromStruct(msg, &env); err != nil {
		return protocol.Envelope{}, err
	}

	return env, nil
}

// Close ends the stream.
func (w *WatchStream) Close() {
	w.cancel()
}

// call invokes a unary method. A nil req sends an empty Struct; a nil out
// discards the response.
func (c *Client) call(ctx context.Context, method string, req, out any) error {
	in := new(structpb.Struct)

	if req != nil {
		var err error
		if in, err = api.ToStruct(req); err != nil {
			return err
		}
	}

	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	resp := new(structpb.Struct)
	if err := c.conn.Invoke(callCtx, method, in, resp); err != nil {
		return err
	}

	if out == nil {
		return nil
	}

	return api.FromStruct(resp, out)
}

// callContext returns a context with the client's call timeout if configured,
// otherwise a cancellable child context without a deadline.
func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, c.callTimeout)
}
