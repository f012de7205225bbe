package watcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/threshold-alarm/internal/api/protocol"
)

var errBroken = errors.New("stream broken")

// fakeStream replays envelopes and then returns err.
type fakeStream struct {
	// envs are returned in order.
	envs []protocol.Envelope
	// err is returned once envs are exhausted.
	err error
	// closed reports whether Close was called.
	closed bool
}

func (f *fakeStream) Recv() (protocol.Envelope, error) {
	if len(f.envs) == 0 {
		return protocol.Envelope{}, f.err
	}

	env := f.envs[0]
	f.envs = f.envs[1:]

	return env, nil
}

func (f *fakeStream) Close() {
	f.closed = true
}

// syncBuffer is a bytes.Buffer safe for concurrent use.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.String()
}

func envelope(t *testing.T, kind string, data string) protocol.Envelope {
	t.Helper()

	require.True(t, json.Valid([]byte(data)))

	return protocol.Envelope{Type: kind, Data: json.RawMessage(data)}
}

// TestFollow_ReconnectsAfterFailure checks that a broken stream is reopened and every update is printed.
func TestFollow_ReconnectsAfterFailure(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	streams := []*fakeStream{
		{
			envs: []protocol.Envelope{envelope(t, protocol.TypeMetricsUpdate, `{"cpu":{"value":50,"unit":"%"}}`)},
			err:  errBroken,
		},
		{
			envs: []protocol.Envelope{envelope(t, protocol.TypeAlarmUpdate, `{"alarms":{},"history":[],"highest":"critical"}`)},
			err:  io.EOF,
		},
	}

	var (
		mu     sync.Mutex
		opened int
	)

	open := func(context.Context) (Stream, error) {
		mu.Lock()
		defer mu.Unlock()

		if opened >= len(streams) {
			cancel()

			return nil, context.Canceled
		}

		s := streams[opened]
		opened++

		return s, nil
	}

	out := new(syncBuffer)

	err := Follow(ctx, open, &Options{Out: out, RetryInterval: time.Millisecond})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	require.True(t, strings.HasPrefix(lines[0], protocol.TypeMetricsUpdate+" "))
	require.True(t, strings.HasPrefix(lines[1], protocol.TypeAlarmUpdate+" "))

	for _, s := range streams {
		require.True(t, s.closed)
	}
}

// TestFollow_StopsOnCancel checks that Follow returns once the context is canceled during a retry wait.
func TestFollow_StopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())

	open := func(context.Context) (Stream, error) {
		cancel()

		return nil, errBroken
	}

	done := make(chan error, 1)

	go func() {
		done <- Follow(ctx, open, &Options{Out: io.Discard, RetryInterval: time.Hour})
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Follow did not return after cancel")
	}
}

// TestDecodeAlarmUpdate checks that the highest severity is read from an alarm envelope.
func TestDecodeAlarmUpdate(t *testing.T) {
	t.Parallel()

	update, err := decodeAlarmUpdate(envelope(t, protocol.TypeAlarmUpdate, `{"alarms":{},"history":[],"highest":"warning"}`))
	require.NoError(t, err)
	require.Equal(t, "warning", string(update.Highest))

	_, err = decodeAlarmUpdate(protocol.Envelope{Type: protocol.TypeAlarmUpdate, Data: json.RawMessage(`[`)})
	require.Error(t, err)
}
