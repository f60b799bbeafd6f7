package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/net/websocket"

	"github.com/iliyamo/bus-seat-hold/internal/realtime"
)

const writeWait = 10 * time.Second

// Subscriber hands out per-trip event subscriptions.
type Subscriber interface {
	Subscribe(tripID uint64) *realtime.Subscription
}

// EventsHandler streams seatHeld, seatReleased and seatBooked events of one
// trip over a websocket.  Clients only receive; anything they send is
// discarded.
type EventsHandler struct {
	hub Subscriber
	log *zap.Logger
}

func NewEventsHandler(hub Subscriber, log *zap.Logger) *EventsHandler {
	return &EventsHandler{hub: hub, log: log.With(zap.String("component", "events"))}
}

// Stream handles GET /v1/trips/:id/events.
func (h *EventsHandler) Stream(c echo.Context) error {
	id, err := tripID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	srv := websocket.Server{
		// Events carry no tokens or owners, so any origin may listen.
		Handshake: func(*websocket.Config, *http.Request) error { return nil },
		Handler: func(ws *websocket.Conn) {
			h.serve(ctx, ws, id)
		},
	}
	srv.ServeHTTP(c.Response(), c.Request())
	return nil
}

func (h *EventsHandler) serve(ctx context.Context, ws *websocket.Conn, tripID uint64) {
	defer ws.Close()
	sub := h.hub.Subscribe(tripID)
	defer sub.Close()

	// The read loop only notices the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		var discard string
		for {
			if err := websocket.Message.Receive(ws, &discard); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-gone:
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := websocket.JSON.Send(ws, ev); err != nil {
				h.log.Debug("subscriber write failed", zap.Uint64("trip_id", tripID), zap.Error(err))
				return
			}
		}
	}
}
