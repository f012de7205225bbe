package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/oshokin/threshold-alarm/internal/service/client"
	"github.com/oshokin/threshold-alarm/internal/version"
)

// defaultServerAddress is the gRPC address of a locally running server.
const defaultServerAddress = "localhost:50051"

var (
	// serverAddress is the gRPC address of the alarm server.
	serverAddress string
	// timeout bounds every unary call.
	timeout time.Duration

	// rootCmd is the base command of the control client.
	rootCmd = &cobra.Command{
		Use:   "threshold-alarm-ctl",
		Short: "Control a running threshold alarm server.",
		Long: `Queries and controls a threshold alarm server over gRPC.

Read thresholds, metric values and alarms, change thresholds, start or stop the
simulation, inject spikes and follow the live update stream.`,
		SilenceUsage: true,
	}
)

// Execute runs the control CLI and exits with non-zero status on error.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1) //nolint:gocritic // stop is called explicitly above.
	}
}

// withClient dials the server, runs fn and closes the connection.
func withClient(cmd *cobra.Command, fn func(ctx context.Context, c *client.Client) error) error {
	ctx := cmd.Context()

	c, err := client.Dial(ctx, serverAddress, client.WithCallTimeout(timeout))
	if err != nil {
		return err
	}

	defer func() {
		_ = c.Close()
	}()

	return fn(ctx, c)
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.PersistentFlags().StringVarP(&serverAddress, "server", "s", defaultServerAddress, "gRPC address of the alarm server")
	rootCmd.PersistentFlags().DurationVarP(&timeout, "timeout", "t", client.DefaultCallTimeout, "timeout of a single call")

	rootCmd.AddCommand(
		newConfigCommand(),
		newMetricsCommand(),
		newAlarmsCommand(),
		newThresholdCommand(),
		newClearCommand(),
		newSimulationCommand("start", "Start the simulation."),
		newSimulationCommand("stop", "Stop the simulation."),
		newSpikeCommand(),
		newAddMetricCommand(),
		newWatchCommand(),
	)
}
