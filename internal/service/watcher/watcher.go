package watcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/oshokin/threshold-alarm/internal/api/protocol"
	"github.com/oshokin/threshold-alarm/internal/domain/alarm"
	"github.com/oshokin/threshold-alarm/internal/logger"
	"github.com/oshokin/threshold-alarm/internal/service/client"
)

// Options controls the watcher.
type Options struct {
	// ServerAddress is the gRPC address of the alarm server.
	ServerAddress string
	// Timeout is the per-RPC timeout of the underlying client.
	Timeout time.Duration
	// RetryInterval is the delay before reopening a broken stream.
	RetryInterval time.Duration
	// AlarmsOnly skips metric updates.
	AlarmsOnly bool
	// Out receives one line per update. Defaults to stdout.
	Out io.Writer
}

// DefaultRetryInterval is the delay before reopening a broken stream.
const DefaultRetryInterval = 2 * time.Second

// Stream is the part of client.WatchStream the watcher uses.
type Stream interface {
	Recv() (protocol.Envelope, error)
	Close()
}

// Opener opens a new update stream.
type Opener func(ctx context.Context) (Stream, error)

// Run streams updates until ctx is canceled.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "watcher")

	c, err := client.Dial(ctx, opts.ServerAddress, client.WithCallTimeout(opts.Timeout))
	if err != nil {
		return fmt.Errorf("dial server: %w", err)
	}

	defer func() {
		_ = c.Close()
	}()

	logger.InfoKV(ctx, "Watching alarm server", "server_address", opts.ServerAddress, "alarms_only", opts.AlarmsOnly)

	open := func(ctx context.Context) (Stream, error) {
		return c.Watch(ctx, opts.AlarmsOnly)
	}

	return Follow(ctx, open, opts)
}

// Follow reads from streams produced by open, reopening after failures.
func Follow(ctx context.Context, open Opener, opts *Options) error {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	retry := opts.RetryInterval
	if retry <= 0 {
		retry = DefaultRetryInterval
	}

	var lastHighest alarm.Status

	for {
		err := follow(ctx, open, out, &lastHighest)

		if ctx.Err() != nil {
			logger.Info(ctx, "Context canceled, exiting")

			return nil
		}

		logger.WarnKV(ctx, "Watch stream ended, reconnecting", "error", err, "retry_in", retry.String())

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(retry):
		}
	}
}

func follow(ctx context.Context, open Opener, out io.Writer, lastHighest *alarm.Status) error {
	stream, err := open(ctx)
	if err != nil {
		return err
	}

	defer stream.Close()

	for {
		env, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) || status.Code(err) == codes.Canceled {
				return nil
			}

			return err
		}

		if _, err := fmt.Fprintln(out, client.FormatEnvelope(env)); err != nil {
			return fmt.Errorf("write update: %w", err)
		}

		if env.Type == protocol.TypeAlarmUpdate {
			logHighest(ctx, env, lastHighest)
		}
	}
}

// logHighest logs changes of the overall severity.
func logHighest(ctx context.Context, env protocol.Envelope, last *alarm.Status) {
	update, err := decodeAlarmUpdate(env)
	if err != nil {
		logger.WarnKV(ctx, "Malformed alarm update", "error", err)

		return
	}

	if update.Highest == *last {
		return
	}

	*last = update.Highest

	logger.InfoKV(ctx, "Highest severity changed", "highest", update.Highest)
}
