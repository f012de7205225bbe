package exporter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/oshokin/threshold-alarm/internal/domain/alarm"
	"github.com/oshokin/threshold-alarm/internal/hub"
	"github.com/oshokin/threshold-alarm/internal/logger"
	"github.com/oshokin/threshold-alarm/internal/metrics"
)

// DefaultBufferSize is the number of alarm updates queued for export.
const DefaultBufferSize = 256

// DefaultRetryInterval is how often Run tries to subscribe again after the
// hub dropped the exporter.
const DefaultRetryInterval = time.Second

// Header keys attached to every exported message.
const (
	HeaderEventID = "event_id"
	HeaderSeq     = "seq"
	HeaderStatus  = "status"
)

// ErrBufferFull is returned when Run fell behind by the whole buffer.
var ErrBufferFull = errors.New("exporter buffer is full")

// Writer is the part of kafka.Writer used by the exporter.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Source is where the exporter subscribes for alarm updates, usually the engine.
type Source interface {
	SubscribeAlarms(ctx context.Context, sub hub.AlarmSubscriber) error
}

// Exporter writes alarm history entries to Kafka.
type Exporter struct {
	// id identifies the exporter in the hub.
	id string
	// writer delivers messages.
	writer Writer
	// updates queues alarm updates for Run.
	updates chan alarm.Update
	// source is set by Attach and used to subscribe again after a drop.
	source Source
	// dropped is set when a delivery failed and the hub removed the exporter.
	dropped atomic.Bool
	// retryInterval paces subscription attempts while dropped.
	retryInterval time.Duration
	// lastSeq is the sequence number of the newest exported entry. Owned by Run.
	lastSeq uint64
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithRetryInterval sets how often Run tries to subscribe again after a drop.
func WithRetryInterval(d time.Duration) Option {
	return func(e *Exporter) {
		if d > 0 {
			e.retryInterval = d
		}
	}
}

// New creates an exporter. A non-positive bufferSize falls back to DefaultBufferSize.
func New(writer Writer, bufferSize int, opts ...Option) *Exporter {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}

	e := &Exporter{
		id:            "kafka-exporter-" + uuid.NewString(),
		writer:        writer,
		updates:       make(chan alarm.Update, bufferSize),
		retryInterval: DefaultRetryInterval,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// NewKafkaWriter creates a synchronous writer partitioning by message key.
func NewKafkaWriter(brokers []string, topic string, writeTimeout time.Duration) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		WriteTimeout: writeTimeout,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}
}

// ID returns the subscriber id.
func (e *Exporter) ID() string {
	return e.id
}

// Attach subscribes the exporter to source. Run subscribes again through
// source whenever the hub drops the exporter for a full buffer.
// Attach must be called before Run.
func (e *Exporter) Attach(ctx context.Context, source Source) error {
	e.source = source

	if err := source.SubscribeAlarms(ctx, e); err != nil {
		return fmt.Errorf("attach exporter: %w", err)
	}

	return nil
}

// ReceiveAlarmUpdate queues an update without blocking. A full buffer makes
// the hub drop the exporter, so the exporter remembers to subscribe again.
func (e *Exporter) ReceiveAlarmUpdate(update alarm.Update) error {
	select {
	case e.updates <- update:
		return nil
	default:
		e.dropped.Store(true)

		return ErrBufferFull
	}
}

// Run exports queued updates until ctx is canceled, then closes the writer.
func (e *Exporter) Run(ctx context.Context) error {
	ctx = logger.WithName(ctx, "exporter")

	logger.Info(ctx, "Alarm exporter started")

	retry := time.NewTicker(e.retryInterval)
	defer retry.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := e.writer.Close(); err != nil {
				return fmt.Errorf("close writer: %w", err)
			}

			logger.Info(ctx, "Alarm exporter stopped")

			return nil
		case update := <-e.updates:
			e.export(ctx, update)
			e.reattach(ctx)
		case <-retry.C:
			e.reattach(ctx)
		}
	}
}

// reattach subscribes again after a drop once the buffer has room. The
// snapshot carries the history missed meanwhile; lastSeq filters what was
// already exported.
func (e *Exporter) reattach(ctx context.Context) {
	if e.source == nil || !e.dropped.Load() || len(e.updates) == cap(e.updates) {
		return
	}

	e.dropped.Store(false)

	if err := e.source.SubscribeAlarms(ctx, e); err != nil {
		e.dropped.Store(true)

		logger.WarnKV(ctx, "Failed to resubscribe alarm exporter", "error", err)

		return
	}

	logger.InfoKV(ctx, "Alarm exporter resubscribed", "last_seq", e.lastSeq)
}

// export writes the entries of update newer than lastSeq. A failed write is
// logged and counted; the entries are not retried.
func (e *Exporter) export(ctx context.Context, update alarm.Update) {
	msgs, last, err := Messages(update.History, e.lastSeq)
	if err != nil {
		logger.ErrorKV(ctx, "Failed to encode alarm events", "error", err)
		metrics.ExportedEventsTotal.WithLabelValues("failed").Inc()

		return
	}

	if len(msgs) == 0 {
		return
	}

	e.lastSeq = last

	if err := e.writer.WriteMessages(ctx, msgs...); err != nil {
		logger.ErrorKV(ctx, "Failed to export alarm events", "error", err, "count", len(msgs))
		metrics.ExportedEventsTotal.WithLabelValues("failed").Add(float64(len(msgs)))

		return
	}

	logger.DebugKV(ctx, "Alarm events exported", "count", len(msgs), "last_seq", last)
	metrics.ExportedEventsTotal.WithLabelValues("success").Add(float64(len(msgs)))
}

// Messages converts history entries with Seq above after into Kafka messages,
// oldest first. history is expected newest first. It also returns the highest
// sequence number seen.
func Messages(history []alarm.HistoryEntry, after uint64) ([]kafka.Message, uint64, error) {
	last := after

	var msgs []kafka.Message

	for i := len(history) - 1; i >= 0; i-- {
		entry := history[i]
		if entry.Seq <= after {
			continue
		}

		value, err := json.Marshal(entry)
		if err != nil {
			return nil, after, fmt.Errorf("marshal history entry %d: %w", entry.Seq, err)
		}

		msgs = append(msgs, kafka.Message{
			Key:   []byte(entry.Metric),
			Value: value,
			Headers: []kafka.Header{
				{Key: HeaderEventID, Value: []byte(uuid.NewString())},
				{Key: HeaderSeq, Value: []byte(strconv.FormatUint(entry.Seq, 10))},
				{Key: HeaderStatus, Value: []byte(entry.Status)},
			},
			Time: entry.Timestamp,
		})

		if entry.Seq > last {
			last = entry.Seq
		}
	}

	return msgs, last, nil
}
