package cmd

import (
	"github.com/spf13/cobra"

	"github.com/oshokin/threshold-alarm/internal/service/watcher"
)

func newWatchCommand() *cobra.Command {
	var (
		alarmsOnly bool
		retry      = watcher.DefaultRetryInterval
	)

	watch := &cobra.Command{
		Use:   "watch",
		Short: "Stream updates until interrupted.",
		Long:  "Print every metric and alarm update as it arrives. The stream is reopened after connection failures.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return watcher.Run(cmd.Context(), &watcher.Options{
				ServerAddress: serverAddress,
				Timeout:       timeout,
				RetryInterval: retry,
				AlarmsOnly:    alarmsOnly,
				Out:           cmd.OutOrStdout(),
			})
		},
	}

	watch.Flags().BoolVarP(&alarmsOnly, "alarms-only", "a", false, "skip metric updates")
	watch.Flags().DurationVar(&retry, "retry", retry, "delay before reconnecting")

	return watch
}
