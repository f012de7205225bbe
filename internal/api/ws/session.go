package ws

import (
	"context"
	"time"

	"github.com/gorilla/websocket"

	"github.com/oshokin/threshold-alarm/internal/api/protocol"
	"github.com/oshokin/threshold-alarm/internal/logger"
)

// session is one WebSocket connection registered in the hub.
type session struct {
	// conn is the underlying socket.
	conn *websocket.Conn
	// outbox is the hub subscriber and the only source of outgoing frames.
	outbox *protocol.Outbox
	// engine executes commands.
	engine Engine
	// opts holds connection settings.
	opts Options
}

func (s *session) run(ctx context.Context) {
	writerDone := make(chan struct{})

	go func() {
		defer close(writerDone)

		s.writePump(ctx)
	}()

	defer func() {
		s.outbox.Close()
		<-writerDone

		_ = s.conn.Close()
	}()

	if err := s.engine.Subscribe(ctx, s.outbox); err != nil {
		logger.WarnKV(ctx, "WebSocket client rejected", "error", err)

		return
	}

	logger.Info(ctx, "WebSocket client connected")

	s.readPump(ctx)

	s.engine.Unsubscribe(ctx, s.outbox.ID())

	logger.Info(ctx, "WebSocket client disconnected")
}

func (s *session) readPump(ctx context.Context) {
	s.conn.SetReadLimit(s.opts.MaxMessageSize)
	s.extendReadDeadline(ctx)
	s.conn.SetPongHandler(func(string) error {
		s.extendReadDeadline(ctx)

		return nil
	})

	for {
		msgType, payload, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.DebugKV(ctx, "WebSocket read failed", "error", err)
			}

			return
		}

		s.extendReadDeadline(ctx)

		if msgType != websocket.TextMessage {
			logger.DebugKV(ctx, "Binary message ignored", "size", len(payload))

			continue
		}

		reply := protocol.Handle(ctx, s.engine, payload)
		if err := s.outbox.Send(reply); err != nil {
			logger.WarnKV(ctx, "Reply dropped", "type", reply.Type, "error", err)
		}
	}
}

func (s *session) writePump(ctx context.Context) {
	ticker := time.NewTicker(s.opts.PongWait * 9 / 10)
	defer ticker.Stop()

	// A failed write ends the session: the closed socket stops the read pump
	// and the closed outbox makes the hub drop this subscriber.
	defer func() {
		s.outbox.Close()

		_ = s.conn.Close()
	}()

	for {
		select {
		case env, ok := <-s.outbox.Messages():
			s.setWriteDeadline(ctx)

			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))

				return
			}

			if err := s.conn.WriteJSON(env); err != nil {
				logger.DebugKV(ctx, "WebSocket write failed", "type", env.Type, "error", err)

				return
			}
		case <-ticker.C:
			s.setWriteDeadline(ctx)

			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logger.DebugKV(ctx, "WebSocket ping failed", "error", err)

				return
			}
		}
	}
}

func (s *session) extendReadDeadline(ctx context.Context) {
	if err := s.conn.SetReadDeadline(time.Now().Add(s.opts.PongWait)); err != nil {
		logger.DebugKV(ctx, "Failed to set read deadline", "error", err)
	}
}

func (s *session) setWriteDeadline(ctx context.Context) {
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout)); err != nil {
		logger.DebugKV(ctx, "Failed to set write deadline", "error", err)
	}
}
