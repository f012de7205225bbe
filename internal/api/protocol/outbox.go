package protocol

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/oshokin/threshold-alarm/internal/domain/alarm"
	"github.com/oshokin/threshold-alarm/internal/domain/metric"
)

var (
	// ErrQueueFull is returned when the reader fell behind by the whole buffer.
	ErrQueueFull = errors.New("outbox queue is full")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("outbox is closed")
)

// Outbox is a hub subscriber that queues envelopes for a transport writer.
// Enqueueing never blocks: a full queue is reported as a delivery failure and
// closes the outbox, so the writer drains what is queued and then stops.
type Outbox struct {
	// id identifies the subscriber in the hub.
	id string
	// queue holds envelopes waiting to be written.
	queue chan Envelope
	// closed is set once queue is closed.
	closed bool
	// mu guards closed and sends on queue.
	mu sync.Mutex
}

// NewOutbox creates an outbox with a random id and the given buffer size.
func NewOutbox(size int) *Outbox {
	if size <= 0 {
		size = 1
	}

	return &Outbox{
		id:    uuid.NewString(),
		queue: make(chan Envelope, size),
	}
}

// ID returns the subscriber id.
func (o *Outbox) ID() string {
	return o.id
}

// ReceiveMetricUpdate queues a metrics_update message.
func (o *Outbox) ReceiveMetricUpdate(update metric.Snapshot) error {
	env, err := MetricsUpdateEnvelope(update)
	if err != nil {
		return fmt.Errorf("encode metrics update: %w", err)
	}

	return o.Send(env)
}

// ReceiveAlarmUpdate queues an alarm_update message.
func (o *Outbox) ReceiveAlarmUpdate(update alarm.Update) error {
	env, err := AlarmUpdateEnvelope(update)
	if err != nil {
		return fmt.Errorf("encode alarm update: %w", err)
	}

	return o.Send(env)
}

// Send queues env without blocking.
func (o *Outbox) Send(env Envelope) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return ErrClosed
	}

	select {
	case o.queue <- env:
		return nil
	default:
		o.closeLocked()

		return ErrQueueFull
	}
}

// Messages returns the queue. It is closed by Close.
func (o *Outbox) Messages() <-chan Envelope {
	return o.queue
}

// Close stops accepting envelopes. It is safe to call more than once.
func (o *Outbox) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.closeLocked()
}

// Closed reports whether the outbox stopped accepting envelopes.
func (o *Outbox) Closed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.closed
}

func (o *Outbox) closeLocked() {
	if !o.closed {
		close(o.queue)
		o.closed = true
	}
}
