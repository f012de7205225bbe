package client

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/oshokin/threshold-alarm/internal/api/protocol"
	"github.com/oshokin/threshold-alarm/internal/domain/alarm"
	"github.com/oshokin/threshold-alarm/internal/domain/metric"
)

// PrintThresholds writes one row per metric.
func PrintThresholds(w io.Writer, pairs map[string]alarm.ThresholdPair) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintln(tw, "METRIC\tWARNING\tCRITICAL")

	for _, name := range sortedNames(pairs) {
		pair := pairs[name]
		fmt.Fprintf(tw, "%s\t%s\t%s\n", name, formatFloat(pair.Warning), formatFloat(pair.Critical))
	}

	return tw.Flush()
}

// PrintMetrics writes one row per metric.
func PrintMetrics(w io.Writer, values metric.Snapshot) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintln(tw, "METRIC\tVALUE\tUNIT")

	for _, name := range values.Names() {
		reading := values[name]
		fmt.Fprintf(tw, "%s\t%s\t%s\n", name, formatFloat(reading.Value), reading.Unit)
	}

	return tw.Flush()
}

// PrintAlarms writes the status table followed by the history, newest first.
func PrintAlarms(w io.Writer, update alarm.Update) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintf(tw, "HIGHEST: %s\n\n", update.Highest)
	fmt.Fprintln(tw, "METRIC\tSTATUS\tVALUE\tLAST TRIGGERED")

	for _, name := range sortedNames(update.Alarms) {
		record := update.Alarms[name]

		triggered := "-"
		if record.LastTriggered != nil {
			triggered = record.LastTriggered.Format(time.RFC3339)
		}

		fmt.Fprintf(tw, "%s\t%s\t%s%s\t%s\n", name, record.Status, formatFloat(record.Value), record.Unit, triggered)
	}

	if len(update.History) > 0 {
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "TIME\tMESSAGE")

		for _, entry := range update.History {
			fmt.Fprintf(tw, "%s\t%s\n", entry.Timestamp.Format(time.RFC3339), entry.Message)
		}
	}

	return tw.Flush()
}

// FormatEnvelope renders a watch envelope as a single line.
func FormatEnvelope(env protocol.Envelope) string {
	return fmt.Sprintf("%s %s", env.Type, string(env.Data))
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func sortedNames[T any](m map[string]T) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}
