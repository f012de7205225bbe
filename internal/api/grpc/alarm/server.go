package alarm

import (
	"context"
	"encoding/json"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/threshold-alarm/internal/api/protocol"
	"github.com/oshokin/threshold-alarm/internal/hub"
	"github.com/oshokin/threshold-alarm/internal/logger"
	"github.com/oshokin/threshold-alarm/internal/service/engine"
	"github.com/oshokin/threshold-alarm/internal/simulator"
)

// Service abstracts the engine operations the transport layer depends on.
type Service interface {
	protocol.Controller
	Subscribe(ctx context.Context, sub hub.Subscriber) error
	SubscribeAlarms(ctx context.Context, sub hub.AlarmSubscriber) error
	Unsubscribe(ctx context.Context, id string)
}

// Server implements AlarmServiceServer.
type Server struct {
	// service provides the business logic.
	service Service
	// bufferSize is the outbox length of each Watch stream.
	bufferSize int
}

// SetThresholdRequest is the payload of SetThreshold. Boundaries may be
// numbers or numeric strings.
type SetThresholdRequest struct {
	Metric   string          `json:"metric"`
	Warning  json.RawMessage `json:"warning"`
	Critical json.RawMessage `json:"critical"`
}

// ControlSimulationRequest is the payload of ControlSimulation. An empty
// action only reports the current state.
type ControlSimulationRequest struct {
	Action string `json:"action"`
}

// InjectSpikeRequest is the payload of InjectSpike. A missing fraction uses
// the default of 0.9.
type InjectSpikeRequest struct {
	Metric   string   `json:"metric"`
	Fraction *float64 `json:"fraction,omitempty"`
}

// WatchRequest is the payload of Watch.
type WatchRequest struct {
	// AlarmsOnly skips metric updates.
	AlarmsOnly bool `json:"alarms_only"`
}

// NewServer wires the provided service implementation into a gRPC handler.
func NewServer(service Service, bufferSize int) *Server {
	return &Server{
		service:    service,
		bufferSize: bufferSize,
	}
}

// GetConfig returns every threshold pair.
func (s *Server) GetConfig(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return respond(protocol.ConfigPayload{Thresholds: s.service.Thresholds()})
}

// GetMetrics returns the current reading of every metric.
func (s *Server) GetMetrics(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return respond(protocol.MetricsPayload{Metrics: s.service.Metrics()})
}

// GetAlarms returns alarm statuses, history and the highest severity.
func (s *Server) GetAlarms(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	env, err := protocol.AlarmUpdateEnvelope(s.service.Alarms())
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}

	return respond(env.Data)
}

// SetThreshold replaces the pair of one metric.
func (s *Server) SetThreshold(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in SetThresholdRequest
	if err := FromStruct(req, &in); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	warning, err := protocol.ParseNumber(in.Warning)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "warning: "+err.Error())
	}

	critical, err := protocol.ParseNumber(in.Critical)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "critical: "+err.Error())
	}

	if err := s.service.SetThreshold(ctx, in.Metric, warning, critical); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	return respond(protocol.Result{Success: true})
}

// ResetThresholds restores the configured pairs.
func (s *Server) ResetThresholds(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	s.service.ResetThresholds(ctx)

	return respond(protocol.Result{Success: true})
}

// ClearAlarms forces every alarm back to normal.
func (s *Server) ClearAlarms(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return respond(protocol.Result{Success: s.service.ClearAlarms(ctx)})
}

// ControlSimulation starts or stops ticking.
func (s *Server) ControlSimulation(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in ControlSimulationRequest
	if err := FromStruct(req, &in); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	if in.Action == "" {
		return respond(protocol.CurrentSimulationStatus(s.service))
	}

	state, err := protocol.ControlSimulation(ctx, s.service, in.Action)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	return respond(state)
}

// InjectSpike forces a metric to a share of its maximum.
func (s *Server) InjectSpike(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in InjectSpikeRequest
	if err := FromStruct(req, &in); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	fraction := simulator.DefaultSpikeFraction
	if in.Fraction != nil {
		fraction = *in.Fraction
	}

	reading, err := s.service.InjectSpike(ctx, in.Metric, fraction)

	switch {
	case errors.Is(err, engine.ErrUnknownMetric):
		return nil, status.Error(codes.NotFound, err.Error())
	case err != nil:
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	return respond(protocol.SpikeResult{
		Success: true,
		Metric:  in.Metric,
		Value:   reading.Value,
		Unit:    reading.Unit,
	})
}

// AddMetric starts simulating a new metric. The request has the shape of
// protocol.AddMetricRequest.
func (s *Server) AddMetric(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in protocol.AddMetricRequest
	if err := FromStruct(req, &in); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	spec, err := in.Spec()
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	reading, err := s.service.AddMetric(ctx, in.Metric, spec)

	switch {
	case errors.Is(err, engine.ErrMetricExists):
		return nil, status.Error(codes.AlreadyExists, err.Error())
	case err != nil:
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	return respond(protocol.MetricResult{
		Success: true,
		Metric:  in.Metric,
		Reading: &reading,
	})
}

// Watch streams update envelopes until the client goes away or falls behind.
func (s *Server) Watch(req *structpb.Struct, stream grpc.ServerStream) error {
	var in WatchRequest
	if err := FromStruct(req, &in); err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}

	outbox := protocol.NewOutbox(s.bufferSize)
	ctx := logger.WithKV(logger.WithName(stream.Context(), "watch"), "client_id", outbox.ID())

	var err error
	if in.AlarmsOnly {
		err = s.service.SubscribeAlarms(ctx, outbox)
	} else {
		err = s.service.Subscribe(ctx, outbox)
	}

	if err != nil {
		return status.Error(codes.Unavailable, err.Error())
	}

	logger.InfoKV(ctx, "Watch stream opened", "alarms_only", in.AlarmsOnly)

	defer func() {
		s.service.Unsubscribe(ctx, outbox.ID())
		outbox.Close()

		logger.Info(ctx, "Watch stream closed")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case env, ok := <-outbox.Messages():
			if !ok {
				return status.Error(codes.ResourceExhausted, "watcher fell behind")
			}

			msg, err := ToStruct(env)
			if err != nil {
				return status.Error(codes.Internal, err.Error())
			}

			if err := stream.SendMsg(msg); err != nil {
				return err
			}
		}
	}
}

func respond(v any) (*structpb.Struct, error) {
	out, err := ToStruct(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}

	return out, nil
}
