package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/oshokin/threshold-alarm/internal/domain/metric"
	"github.com/oshokin/threshold-alarm/internal/service/client"
)

func newThresholdCommand() *cobra.Command {
	threshold := &cobra.Command{
		Use:   "threshold",
		Short: "Change thresholds.",
	}

	set := &cobra.Command{
		Use:   "set <metric> <warning> <critical>",
		Short: "Set the warning and critical thresholds of a metric.",
		Long:  "Set the thresholds of a metric. Warning must be strictly below critical. Unknown metrics get a new pair.",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			warning, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("parse warning: %w", err)
			}

			critical, err := strconv.ParseFloat(args[2], 64)
			if err != nil {
				return fmt.Errorf("parse critical: %w", err)
			}

			return withClient(cmd, func(ctx context.Context, c *client.Client) error {
				if err := c.SetThreshold(ctx, args[0], warning, critical); err != nil {
					return err
				}

				_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s: warning %s, critical %s\n", args[0], args[1], args[2])

				return err
			})
		},
	}

	reset := &cobra.Command{
		Use:   "reset",
		Short: "Restore the configured default thresholds.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(cmd, func(ctx context.Context, c *client.Client) error {
				if err := c.ResetThresholds(ctx); err != nil {
					return err
				}

				_, err := fmt.Fprintln(cmd.OutOrStdout(), "thresholds reset")

				return err
			})
		},
	}

	threshold.AddCommand(set, reset)

	return threshold
}

func newClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Return every alarm to normal.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(cmd, func(ctx context.Context, c *client.Client) error {
				if err := c.ClearAlarms(ctx); err != nil {
					return err
				}

				_, err := fmt.Fprintln(cmd.OutOrStdout(), "alarms cleared")

				return err
			})
		},
	}
}

func newSimulationCommand(action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(cmd, func(ctx context.Context, c *client.Client) error {
				status, err := c.ControlSimulation(ctx, action)
				if err != nil {
					return err
				}

				_, err = fmt.Fprintf(cmd.OutOrStdout(), "simulation %s\n", status)

				return err
			})
		},
	}
}

func newSpikeCommand() *cobra.Command {
	var fraction float64

	spike := &cobra.Command{
		Use:   "spike <metric>",
		Short: "Move a metric to a fraction of its maximum.",
		Long:  "Move a metric to a fraction of its maximum and evaluate it at once. Without --fraction the server default is used.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var f *float64
			if cmd.Flags().Changed("fraction") {
				f = &fraction
			}

			return withClient(cmd, func(ctx context.Context, c *client.Client) error {
				reading, err := c.InjectSpike(ctx, args[0], f)
				if err != nil {
					return err
				}

				_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s = %s%s\n",
					args[0], strconv.FormatFloat(reading.Value, 'f', 2, 64), reading.Unit)

				return err
			})
		},
	}

	spike.Flags().Float64VarP(&fraction, "fraction", "f", 0, "fraction of the metric maximum, 0..1")

	return spike
}

func newAddMetricCommand() *cobra.Command {
	var spec metric.Spec

	add := &cobra.Command{
		Use:   "add-metric <metric>",
		Short: "Start simulating a new metric.",
		Long:  "Start simulating a new metric within [--min, --max]. Set its thresholds afterwards with \"threshold set\".",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := spec.Validate(); err != nil {
				return err
			}

			return withClient(cmd, func(ctx context.Context, c *client.Client) error {
				reading, err := c.AddMetric(ctx, args[0], spec)
				if err != nil {
					return err
				}

				_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s added = %s%s\n",
					args[0], strconv.FormatFloat(reading.Value, 'f', 2, 64), reading.Unit)

				return err
			})
		},
	}

	add.Flags().Float64Var(&spec.Min, "min", 0, "lower bound of the metric")
	add.Flags().Float64Var(&spec.Max, "max", 100, "upper bound of the metric")
	add.Flags().StringVarP(&spec.Unit, "unit", "u", "", "display unit")
	add.Flags().Float64Var(&spec.Volatility, "volatility", 0, "largest change per tick")

	return add
}
