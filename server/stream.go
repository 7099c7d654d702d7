package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"blockcoop/events"
)

const wsWriteTimeout = 10 * time.Second

// streamMessage is one websocket frame. Source is "history" or "live".
type streamMessage struct {
	Source string       `json:"source"`
	Event  events.Event `json:"event"`
}

func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !events.Supported(name) {
		writeError(w, http.StatusNotFound, "unsupported event "+name)
		return
	}
	if s.events == nil {
		writeError(w, http.StatusServiceUnavailable, "event streaming unavailable")
		return
	}
	sub, err := s.events.Subscribe(r.Context(), name)
	if err != nil {
		s.logger.Warn("event subscription failed", slog.String("event", name), slog.Any("error", err))
		writeError(w, http.StatusServiceUnavailable, "event subscription unavailable")
		return
	}
	defer sub.Unsubscribe()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	ctx := conn.CloseRead(r.Context())
	if err := s.pump(ctx, conn, sub); err != nil {
		if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
			s.logger.Debug("event stream ended", slog.String("event", name), slog.Any("error", err))
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (s *Server) pump(ctx context.Context, conn *websocket.Conn, sub *events.Subscription) error {
	for _, ev := range sub.History() {
		if err := writeMessage(ctx, conn, streamMessage{Source: "history", Event: ev}); err != nil {
			return err
		}
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-sub.Live():
			if !ok {
				return sub.Err()
			}
			if err := writeMessage(ctx, conn, streamMessage{Source: "live", Event: ev}); err != nil {
				return err
			}
		}
	}
}

func writeMessage(ctx context.Context, conn *websocket.Conn, msg streamMessage) error {
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return wsjson.Write(writeCtx, conn, msg)
}
