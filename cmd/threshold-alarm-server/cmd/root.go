package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/threshold-alarm/internal/logger"
	"github.com/oshokin/threshold-alarm/internal/service/server"
	"github.com/oshokin/threshold-alarm/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// httpAddress overrides the configured HTTP listen address.
	httpAddress string
	// grpcAddress overrides the configured gRPC listen address.
	grpcAddress string

	// rootCmd runs the alarm server.
	rootCmd = &cobra.Command{
		Use:   "threshold-alarm-server",
		Short: "Run the threshold alarm server.",
		Long: `Simulates metrics, evaluates them against warning and critical thresholds
and pushes metric and alarm updates to subscribers.

HTTP serves the REST API under /api/v1, the WebSocket stream at /ws and
Prometheus metrics at /metrics. The gRPC control service listens separately.

Settings come from the YAML file, a .env file and THRESHOLD_ALARM_* variables,
in increasing priority. Without a file the built-in defaults are used.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			defer logger.Sync()

			options := &server.Options{
				ConfigPath:  configPath,
				HTTPAddress: httpAddress,
				GRPCAddress: grpcAddress,
			}

			return server.Run(ctx, options)
		},
	}
)

// Execute runs the server CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to configuration file")
	rootCmd.Flags().StringVar(&httpAddress, "http-addr", "", "HTTP listen address override")
	rootCmd.Flags().StringVar(&grpcAddress, "grpc-addr", "", "gRPC listen address override")
}
