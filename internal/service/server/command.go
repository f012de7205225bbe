package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	api "github.com/oshokin/threshold-alarm/internal/api/grpc/alarm"
	"github.com/oshokin/threshold-alarm/internal/api/rest"
	"github.com/oshokin/threshold-alarm/internal/api/ws"
	"github.com/oshokin/threshold-alarm/internal/config"
	"github.com/oshokin/threshold-alarm/internal/exporter"
	"github.com/oshokin/threshold-alarm/internal/logger"
	"github.com/oshokin/threshold-alarm/internal/service/engine"
)

// Options controls the server process.
type Options struct {
	// ConfigPath is the settings YAML file. Empty uses defaults and the environment.
	ConfigPath string
	// Config replaces loading from ConfigPath when set.
	Config *config.Config
	// HTTPAddress overrides the configured HTTP listen address.
	HTTPAddress string
	// GRPCAddress overrides the configured gRPC listen address.
	GRPCAddress string
	// EngineOptions are passed to engine.New after the configured ones.
	EngineOptions []engine.Option
}

// shutdownTimeout bounds graceful shutdown of each listener.
const shutdownTimeout = 5 * time.Second

// readHeaderTimeout bounds reading request headers.
const readHeaderTimeout = 10 * time.Second

// App is a configured server with bound listeners.
type App struct {
	// cfg holds the resolved settings.
	cfg *config.Config
	// engine executes commands and ticks.
	engine *engine.Engine
	// httpServer serves REST, WebSocket and metrics.
	httpServer *http.Server
	// httpListener is the bound HTTP socket.
	httpListener net.Listener
	// wsServer tracks WebSocket sessions.
	wsServer *ws.Server
	// grpcServer serves the control service; nil when disabled.
	grpcServer *grpc.Server
	// grpcListener is the bound gRPC socket; nil when disabled.
	grpcListener net.Listener
	// health reports gRPC serving status.
	health *health.Server
	// exporter publishes transitions to Kafka; nil when disabled.
	exporter *exporter.Exporter
}

// Run starts the server and blocks until ctx is canceled or a listener fails.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "threshold-alarm-server")

	app, err := New(ctx, opts)
	if err != nil {
		return err
	}

	return app.Serve(ctx)
}

// New resolves settings, builds the engine and binds the listeners.
func New(ctx context.Context, opts *Options) (*App, error) {
	cfg, err := resolveConfig(opts)
	if err != nil {
		return nil, err
	}

	if lvl, ok := logger.ParseLogLevel(cfg.LogLevel); ok {
		logger.SetLevel(lvl)
	}

	engineOpts := append([]engine.Option{engine.WithSeed(cfg.Simulation.Seed)}, opts.EngineOptions...)

	eng := engine.New(engine.Config{
		Metrics:      cfg.Specs(),
		Thresholds:   cfg.Thresholds(),
		HistoryLimit: cfg.Alarm.HistoryLimit,
		Autostart:    cfg.Simulation.Autostart,
	}, engineOpts...)

	app := &App{
		cfg:    cfg,
		engine: eng,
		health: health.NewServer(),
	}

	app.wsServer = ws.NewServer(eng, ws.Options{
		BufferSize:   cfg.Delivery.BufferSize,
		WriteTimeout: cfg.Delivery.WriteTimeout,
	})

	app.httpServer = &http.Server{
		Handler:           rest.NewRouter(eng, app.wsServer).Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	lc := net.ListenConfig{}

	app.httpListener, err = lc.Listen(ctx, "tcp", cfg.HTTPAddress)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.HTTPAddress, err)
	}

	if cfg.GRPCAddress != "" {
		app.grpcListener, err = lc.Listen(ctx, "tcp", cfg.GRPCAddress)
		if err != nil {
			_ = app.httpListener.Close()

			return nil, fmt.Errorf("listen on %s: %w", cfg.GRPCAddress, err)
		}

		app.grpcServer = grpc.NewServer(
			grpc.ChainUnaryInterceptor(unaryLogger, unaryRecoverer),
			grpc.ChainStreamInterceptor(streamLogger, streamRecoverer),
		)

		api.Register(app.grpcServer, api.NewServer(eng, cfg.Delivery.BufferSize))
		healthpb.RegisterHealthServer(app.grpcServer, app.health)
		app.health.SetServingStatus(api.ServiceName, healthpb.HealthCheckResponse_SERVING)
	}

	if len(cfg.Kafka.Brokers) > 0 {
		writer := exporter.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Delivery.WriteTimeout)
		app.exporter = exporter.New(writer, exporter.DefaultBufferSize)

		if err := app.exporter.Attach(ctx, eng); err != nil {
			app.closeListeners()

			return nil, err
		}
	}

	return app, nil
}

// Engine returns the alarm engine.
func (a *App) Engine() *engine.Engine {
	return a.engine
}

// HTTPAddr returns the bound HTTP address.
func (a *App) HTTPAddr() string {
	return a.httpListener.Addr().String()
}

// GRPCAddr returns the bound gRPC address, or an empty string when disabled.
func (a *App) GRPCAddr() string {
	if a.grpcListener == nil {
		return ""
	}

	return a.grpcListener.Addr().String()
}

// Serve runs the listeners, the tick scheduler and the exporter until ctx is
// canceled or one of them fails, then shuts everything down.
func (a *App) Serve(ctx context.Context) error {
	logger.InfoKV(ctx, "Threshold alarm server listening",
		"http_address", a.HTTPAddr(),
		"grpc_address", a.GRPCAddr(),
		"metrics", a.cfg.MetricNames(),
		"interval", a.cfg.Simulation.Interval.String(),
		"running", a.engine.Running(),
		"kafka_enabled", a.exporter != nil)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return runScheduler(gctx, a.engine, a.cfg.Simulation.Interval)
	})

	g.Go(func() error {
		if err := a.httpServer.Serve(a.httpListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve HTTP: %w", err)
		}

		return nil
	})

	if a.grpcServer != nil {
		g.Go(func() error {
			if err := a.grpcServer.Serve(a.grpcListener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return fmt.Errorf("serve gRPC: %w", err)
			}

			return nil
		})
	}

	if a.exporter != nil {
		g.Go(func() error {
			return a.exporter.Run(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		a.shutdown(ctx)

		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Info(ctx, "Threshold alarm server stopped")

	return nil
}

// shutdown stops accepting work and closes every open session.
func (a *App) shutdown(ctx context.Context) {
	logger.Info(ctx, "Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		logger.WarnKV(ctx, "HTTP shutdown failed", "error", err)
	}

	a.wsServer.Close()

	if a.grpcServer == nil {
		return
	}

	a.health.Shutdown()

	stopped := make(chan struct{})

	go func() {
		a.grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-shutdownCtx.Done():
		logger.Warnf(ctx, "Graceful gRPC stop timed out after %s, closing streams", shutdownTimeout)
		a.grpcServer.Stop()
	}
}

func (a *App) closeListeners() {
	_ = a.httpListener.Close()

	if a.grpcListener != nil {
		_ = a.grpcListener.Close()
	}
}

// resolveConfig loads settings and applies listen address overrides.
func resolveConfig(opts *Options) (*config.Config, error) {
	var cfg *config.Config

	if opts.Config != nil {
		copied := *opts.Config
		cfg = &copied
	} else {
		loaded, err := config.Load(opts.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("load settings: %w", err)
		}

		cfg = loaded
	}

	if opts.HTTPAddress != "" {
		cfg.HTTPAddress = opts.HTTPAddress
	}

	if opts.GRPCAddress != "" {
		cfg.GRPCAddress = opts.GRPCAddress
	}

	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate settings: %w", err)
	}

	return cfg, nil
}
