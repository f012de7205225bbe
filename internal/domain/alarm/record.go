package alarm

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Record is the alarm state of one metric.
type Record struct {
	// Status is the output of the latest threshold evaluation for the metric.
	Status Status `json:"status"`
	// Value is the value that caused the current status.
	Value float64 `json:"value"`
	// Unit is the display unit of Value.
	Unit string `json:"unit"`
	// LastTriggered is the time of the latest transition into a non-normal
	// status; nil while the metric has not alarmed or after a clear.
	LastTriggered *time.Time `json:"last_triggered"`
}

// Clone returns a deep copy; LastTriggered is copied too.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}

	cloned := *r

	if r.LastTriggered != nil {
		ts := *r.LastTriggered
		cloned.LastTriggered = &ts
	}

	return &cloned
}

// HistoryEntry is a snapshot of a transition into a non-normal status.
type HistoryEntry struct {
	// Seq is a process-wide, strictly increasing sequence number.
	Seq uint64 `json:"seq"`
	// Metric is the metric name.
	Metric string `json:"metric"`
	// Status is the status the metric entered.
	Status Status `json:"status"`
	// Value is the value that caused the transition.
	Value float64 `json:"value"`
	// Unit is the display unit of Value.
	Unit string `json:"unit"`
	// Timestamp is when the transition happened.
	Timestamp time.Time `json:"timestamp"`
	// Message is a human-readable summary, e.g. "CPU critical: 95.00%".
	Message string `json:"message"`
}

// NewHistoryEntry builds an entry with its human-readable message.
func NewHistoryEntry(seq uint64, metric string, status Status, value float64, unit string, at time.Time) HistoryEntry {
	return HistoryEntry{
		Seq:       seq,
		Metric:    metric,
		Status:    status,
		Value:     value,
		Unit:      unit,
		Timestamp: at,
		Message:   FormatMessage(metric, status, value, unit),
	}
}

// FormatMessage renders the message stored in history entries.
func FormatMessage(metric string, status Status, value float64, unit string) string {
	return fmt.Sprintf("%s %s: %s%s", strings.ToUpper(metric), status, strconv.FormatFloat(value, 'f', 2, 64), unit)
}

// Update is the payload delivered to alarm subscribers.
type Update struct {
	// Alarms maps every tracked metric to its record.
	Alarms map[string]Record `json:"alarms"`
	// History holds transitions, newest first.
	History []HistoryEntry `json:"history"`
	// Highest is the most severe status across Alarms.
	Highest Status `json:"highest"`
}

// Clone returns a deep copy of the update.
func (u Update) Clone() Update {
	cloned := Update{
		Alarms:  make(map[string]Record, len(u.Alarms)),
		History: make([]HistoryEntry, len(u.History)),
		Highest: u.Highest,
	}

	for name, record := range u.Alarms {
		cloned.Alarms[name] = *record.Clone()
	}

	copy(cloned.History, u.History)

	return cloned
}
