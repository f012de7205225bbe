package client

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	api "github.com/oshokin/threshold-alarm/internal/api/grpc/alarm"
	"github.com/oshokin/threshold-alarm/internal/api/protocol"
	domain "github.com/oshokin/threshold-alarm/internal/domain/alarm"
	"github.com/oshokin/threshold-alarm/internal/domain/metric"
	"github.com/oshokin/threshold-alarm/internal/service/engine"
)

// TestDial_ValidatesAddress verifies that Dial rejects empty addresses.
func TestDial_ValidatesAddress(t *testing.T) {
	t.Parallel()

	c, err := Dial(context.Background(), "")
	require.Error(t, err)
	require.Nil(t, c)
}

// TestClient_callContext checks timeout vs cancel-only behavior of callContext.
func TestClient_callContext(t *testing.T) {
	t.Parallel()

	c := &Client{
		callTimeout: 0,
	}

	ctx, cancel := c.callContext(context.Background())
	cancel()

	require.NotNil(t, ctx)

	c.callTimeout = 10 * time.Millisecond

	ctx, cancel = c.callContext(context.Background())
	defer cancel()

	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	require.WithinDuration(t, time.Now().Add(10*time.Millisecond), deadline, 30*time.Millisecond)
}

func newTestClient(t *testing.T) (*Client, *engine.Engine) {
	t.Helper()

	eng := engine.New(engine.Config{
		Metrics: map[string]metric.Spec{
			"bandwidth": {Min: 0, Max: 1000, Unit: "Mbps", Volatility: 50},
		},
		Thresholds: map[string]domain.ThresholdPair{
			"bandwidth": {Warning: 700, Critical: 900},
		},
		HistoryLimit: 5,
	})

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	api.Register(srv, api.NewServer(eng, 16))

	go func() { _ = srv.Serve(lis) }()

	t.Cleanup(srv.Stop)

	c, err := Dial(context.Background(), "passthrough:///bufnet",
		WithCallTimeout(5*time.Second),
		WithDialOptions(grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		})),
	)
	require.NoError(t, err)

	t.Cleanup(func() { _ = c.Close() })

	return c, eng
}

// TestClient_Roundtrip drives every unary method against a live server.
func TestClient_Roundtrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c, eng := newTestClient(t)

	pairs, err := c.GetConfig(ctx)
	require.NoError(t, err)
	require.Equal(t, domain.ThresholdPair{Warning: 700, Critical: 900}, pairs["bandwidth"])

	require.Error(t, c.SetThreshold(ctx, "bandwidth", 900, 700))
	require.NoError(t, c.SetThreshold(ctx, "bandwidth", 500, 800))

	fraction := 0.6
	reading, err := c.InjectSpike(ctx, "bandwidth", &fraction)
	require.NoError(t, err)
	require.InDelta(t, 600.0, reading.Value, 1e-9)
	require.Equal(t, "Mbps", reading.Unit)

	values, err := c.GetMetrics(ctx)
	require.NoError(t, err)
	require.InDelta(t, 600.0, values["bandwidth"].Value, 1e-9)

	update, err := c.GetAlarms(ctx)
	require.NoError(t, err)
	require.Equal(t, domain.StatusWarning, update.Highest)
	require.Len(t, update.History, 1)
	require.Equal(t, "BANDWIDTH warning: 600.00Mbps", update.History[0].Message)

	require.NoError(t, c.ClearAlarms(ctx))
	require.NoError(t, c.ResetThresholds(ctx))
	require.Equal(t, domain.StatusNormal, eng.Alarms().Highest)

	state, err := c.ControlSimulation(ctx, "start")
	require.NoError(t, err)
	require.Equal(t, protocol.StatusRunning, state)

	state, err = c.ControlSimulation(ctx, "")
	require.NoError(t, err)
	require.Equal(t, protocol.StatusRunning, state)

	_, err = c.InjectSpike(ctx, "disk", nil)
	require.Error(t, err)
}

// TestClient_AddMetric registers a metric and spikes it.
func TestClient_AddMetric(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c, eng := newTestClient(t)

	reading, err := c.AddMetric(ctx, "disk", metric.Spec{Min: 100, Max: 2000, Unit: "GB", Volatility: 25})
	require.NoError(t, err)
	require.Equal(t, metric.Reading{Value: 100, Unit: "GB"}, reading)

	_, err = c.AddMetric(ctx, "disk", metric.Spec{Min: 0, Max: 10})
	require.Error(t, err)
	require.Equal(t, codes.AlreadyExists, status.Code(err))

	_, err = c.AddMetric(ctx, "swap", metric.Spec{Min: 5, Max: 5})
	require.Equal(t, codes.InvalidArgument, status.Code(err))

	reading, err = c.InjectSpike(ctx, "disk", nil)
	require.NoError(t, err)
	require.InDelta(t, 1800.0, reading.Value, 1e-9)
	require.InDelta(t, 1800.0, eng.Metrics()["disk"].Value, 1e-9)
}

// TestClient_Watch receives the snapshot and a live update.
func TestClient_Watch(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, eng := newTestClient(t)

	stream, err := c.Watch(ctx, true)
	require.NoError(t, err)

	defer stream.Close()

	env, err := stream.Recv()
	require.NoError(t, err)
	require.Equal(t, protocol.TypeAlarmUpdate, env.Type)

	_, err = eng.InjectSpike(ctx, "bandwidth", 0.95)
	require.NoError(t, err)

	env, err = stream.Recv()
	require.NoError(t, err)
	require.Equal(t, protocol.TypeAlarmUpdate, env.Type)
	require.Contains(t, FormatEnvelope(env), "BANDWIDTH critical: 950.00Mbps")
}

// TestPrint renders tables.
func TestPrint(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	require.NoError(t, PrintThresholds(&buf, map[string]domain.ThresholdPair{"cpu": {Warning: 70, Critical: 90}}))
	require.Contains(t, buf.String(), "cpu     70.00    90.00")

	buf.Reset()
	require.NoError(t, PrintMetrics(&buf, metric.Snapshot{"latency": {Value: 12.5, Unit: "ms"}}))
	require.Contains(t, buf.String(), "latency  12.50  ms")

	buf.Reset()

	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	update := domain.Update{
		Alarms: map[string]domain.Record{
			"cpu": {Status: domain.StatusCritical, Value: 95, Unit: "%", LastTriggered: &at},
		},
		History: []domain.HistoryEntry{domain.NewHistoryEntry(1, "cpu", domain.StatusCritical, 95, "%", at)},
		Highest: domain.StatusCritical,
	}

	require.NoError(t, PrintAlarms(&buf, update))
	require.Contains(t, buf.String(), "HIGHEST: critical")
	require.Contains(t, buf.String(), "2025-01-02T03:04:05Z  CPU critical: 95.00%")
}
