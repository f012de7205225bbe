package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oshokin/threshold-alarm/internal/api/protocol"
	"github.com/oshokin/threshold-alarm/internal/logger"
	"github.com/oshokin/threshold-alarm/internal/service/engine"
	"github.com/oshokin/threshold-alarm/internal/simulator"
)

// maxBodySize limits request bodies.
const maxBodySize = 1 << 20

// Router wires the HTTP handlers of the alarm service.
type Router struct {
	// ctrl executes control commands.
	ctrl protocol.Controller
	// mux is the chi router.
	mux *chi.Mux
}

// NewRouter creates the router. ws serves /ws and may be nil.
func NewRouter(ctrl protocol.Controller, ws http.Handler) *Router {
	r := &Router{
		ctrl: ctrl,
		mux:  chi.NewRouter(),
	}

	r.mux.Use(chimiddleware.RequestID)
	r.mux.Use(chimiddleware.RealIP)
	r.mux.Use(requestLogger)
	r.mux.Use(recoverer)
	r.mux.Use(chimiddleware.Heartbeat("/ping"))

	r.mux.Get("/healthz", r.health)
	r.mux.Handle("/metrics", promhttp.Handler())

	if ws != nil {
		r.mux.Handle("/ws", ws)
	}

	r.mux.Route("/api/v1", func(api chi.Router) {
		api.Use(chimiddleware.RequestSize(maxBodySize))

		api.Get("/thresholds", r.listThresholds)
		api.Post("/thresholds/reset", r.resetThresholds)
		api.Get("/thresholds/{metric}", r.getThreshold)
		api.Put("/thresholds/{metric}", r.setThreshold)

		api.Get("/metrics", r.listMetrics)
		api.Post("/metrics/{metric}", r.addMetric)
		api.Post("/metrics/{metric}/spike", r.spike)

		api.Get("/alarms", r.listAlarms)
		api.Post("/alarms/clear", r.clearAlarms)

		api.Get("/simulation", r.simulationStatus)
		api.Post("/simulation", r.controlSimulation)
	})

	return r
}

// Handler returns the HTTP handler.
func (r *Router) Handler() http.Handler {
	return r.mux
}

type thresholdRequest struct {
	Warning  json.RawMessage `json:"warning"`
	Critical json.RawMessage `json:"critical"`
}

type spikeRequest struct {
	Percentage json.RawMessage `json:"percentage"`
}

type simulationRequest struct {
	Action string `json:"action"`
}

func (r *Router) health(w http.ResponseWriter, req *http.Request) {
	writeJSON(req.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
}

func (r *Router) listThresholds(w http.ResponseWriter, req *http.Request) {
	writeJSON(req.Context(), w, http.StatusOK, protocol.ConfigPayload{Thresholds: r.ctrl.Thresholds()})
}

func (r *Router) getThreshold(w http.ResponseWriter, req *http.Request) {
	name := chi.URLParam(req, "metric")

	pair, ok := r.ctrl.Thresholds()[name]
	if !ok {
		writeError(req.Context(), w, http.StatusNotFound, "unknown metric")

		return
	}

	writeJSON(req.Context(), w, http.StatusOK, pair)
}

func (r *Router) setThreshold(w http.ResponseWriter, req *http.Request) {
	var body thresholdRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeResult(req.Context(), w, http.StatusBadRequest, "invalid JSON body")

		return
	}

	warning, err := protocol.ParseNumber(body.Warning)
	if err != nil {
		writeResult(req.Context(), w, http.StatusBadRequest, "warning: "+err.Error())

		return
	}

	critical, err := protocol.ParseNumber(body.Critical)
	if err != nil {
		writeResult(req.Context(), w, http.StatusBadRequest, "critical: "+err.Error())

		return
	}

	if err := r.ctrl.SetThreshold(req.Context(), chi.URLParam(req, "metric"), warning, critical); err != nil {
		writeResult(req.Context(), w, http.StatusBadRequest, err.Error())

		return
	}

	writeJSON(req.Context(), w, http.StatusOK, protocol.Result{Success: true})
}

func (r *Router) resetThresholds(w http.ResponseWriter, req *http.Request) {
	r.ctrl.ResetThresholds(req.Context())

	writeJSON(req.Context(), w, http.StatusOK, protocol.Result{Success: true})
}

func (r *Router) listMetrics(w http.ResponseWriter, req *http.Request) {
	writeJSON(req.Context(), w, http.StatusOK, protocol.MetricsPayload{Metrics: r.ctrl.Metrics()})
}

func (r *Router) addMetric(w http.ResponseWriter, req *http.Request) {
	var body protocol.AddMetricRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeResult(req.Context(), w, http.StatusBadRequest, "invalid JSON body")

		return
	}

	body.Metric = chi.URLParam(req, "metric")

	spec, err := body.Spec()
	if err != nil {
		writeResult(req.Context(), w, http.StatusBadRequest, err.Error())

		return
	}

	reading, err := r.ctrl.AddMetric(req.Context(), body.Metric, spec)

	switch {
	case errors.Is(err, engine.ErrMetricExists):
		writeResult(req.Context(), w, http.StatusConflict, err.Error())
	case err != nil:
		writeResult(req.Context(), w, http.StatusBadRequest, err.Error())
	default:
		writeJSON(req.Context(), w, http.StatusCreated, protocol.MetricResult{
			Success: true,
			Metric:  body.Metric,
			Reading: &reading,
		})
	}
}

func (r *Router) spike(w http.ResponseWriter, req *http.Request) {
	name := chi.URLParam(req, "metric")
	fraction := simulator.DefaultSpikeFraction

	// An empty body keeps the default fraction.
	var body spikeRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeResult(req.Context(), w, http.StatusBadRequest, "invalid JSON body")

		return
	}

	if len(body.Percentage) > 0 && string(body.Percentage) != "null" {
		v, err := protocol.ParseNumber(body.Percentage)
		if err != nil {
			writeResult(req.Context(), w, http.StatusBadRequest, "percentage: "+err.Error())

			return
		}

		fraction = v
	}

	reading, err := r.ctrl.InjectSpike(req.Context(), name, fraction)

	switch {
	case errors.Is(err, engine.ErrUnknownMetric):
		writeResult(req.Context(), w, http.StatusNotFound, err.Error())
	case err != nil:
		writeResult(req.Context(), w, http.StatusBadRequest, err.Error())
	default:
		writeJSON(req.Context(), w, http.StatusOK, protocol.SpikeResult{
			Success: true,
			Metric:  name,
			Value:   reading.Value,
			Unit:    reading.Unit,
		})
	}
}

func (r *Router) listAlarms(w http.ResponseWriter, req *http.Request) {
	env, err := protocol.AlarmUpdateEnvelope(r.ctrl.Alarms())
	if err != nil {
		writeError(req.Context(), w, http.StatusInternalServerError, err.Error())

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(env.Data)
}

func (r *Router) clearAlarms(w http.ResponseWriter, req *http.Request) {
	writeJSON(req.Context(), w, http.StatusOK, protocol.Result{Success: r.ctrl.ClearAlarms(req.Context())})
}

func (r *Router) simulationStatus(w http.ResponseWriter, req *http.Request) {
	writeJSON(req.Context(), w, http.StatusOK, protocol.CurrentSimulationStatus(r.ctrl))
}

func (r *Router) controlSimulation(w http.ResponseWriter, req *http.Request) {
	var body simulationRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(req.Context(), w, http.StatusBadRequest, "invalid JSON body")

		return
	}

	status, err := protocol.ControlSimulation(req.Context(), r.ctrl, body.Action)
	if err != nil {
		writeError(req.Context(), w, http.StatusBadRequest, err.Error())

		return
	}

	writeJSON(req.Context(), w, http.StatusOK, status)
}

// writeJSON sends v with the given status. The status is written before
// encoding, so an encoding failure is only logged.
func writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WarnKV(ctx, "Failed to encode response", "status", status, "error", err)
	}
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, message string) {
	writeJSON(ctx, w, status, protocol.ErrorPayload{Message: message})
}

func writeResult(ctx context.Context, w http.ResponseWriter, status int, message string) {
	writeJSON(ctx, w, status, protocol.Result{Success: false, Error: message})
}
