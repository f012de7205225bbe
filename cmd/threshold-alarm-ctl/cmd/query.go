package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/oshokin/threshold-alarm/internal/service/client"
)

func newConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the threshold pair of every metric.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(cmd, func(ctx context.Context, c *client.Client) error {
				pairs, err := c.GetConfig(ctx)
				if err != nil {
					return err
				}

				return client.PrintThresholds(cmd.OutOrStdout(), pairs)
			})
		},
	}
}

func newMetricsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "metrics",
		Short: "Print the current metric values.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(cmd, func(ctx context.Context, c *client.Client) error {
				values, err := c.GetMetrics(ctx)
				if err != nil {
					return err
				}

				return client.PrintMetrics(cmd.OutOrStdout(), values)
			})
		},
	}
}

func newAlarmsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "alarms",
		Short: "Print alarm records, the highest severity and the history.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(cmd, func(ctx context.Context, c *client.Client) error {
				update, err := c.GetAlarms(ctx)
				if err != nil {
					return err
				}

				return client.PrintAlarms(cmd.OutOrStdout(), update)
			})
		},
	}
}
