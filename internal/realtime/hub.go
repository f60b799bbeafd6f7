// Package realtime fans committed seat transitions out to subscribers.
// Services hand events to a Dispatcher after their transaction commits; the
// dispatcher feeds sinks (the local Hub, a Redis relay, Kafka, PubNub), and
// the Hub delivers to websocket subscribers grouped in one room per trip.
// Delivery is best effort: a slow consumer loses events rather than
// slowing anyone else down.
package realtime

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/iliyamo/bus-seat-hold/internal/metrics"
	"github.com/iliyamo/bus-seat-hold/internal/model"
)

// Hub keeps one room of subscriptions per trip.
type Hub struct {
	mu      sync.Mutex
	rooms   map[uint64]map[*Subscription]struct{}
	buffer  int
	metrics *metrics.Metrics
	log     *zap.Logger
}

// Subscription receives the events of one trip on C until Close is called.
// Per seat, events arrive in version order; stale versions are discarded.
type Subscription struct {
	TripID uint64
	C      <-chan model.SeatEvent

	ch     chan model.SeatEvent
	seen   map[string]int64 // highest delivered version per seat
	hub    *Hub
	closed bool
}

// NewHub returns a hub whose subscribers buffer up to buffer events.  m may
// be nil.
func NewHub(buffer int, m *metrics.Metrics, log *zap.Logger) *Hub {
	if buffer < 1 {
		buffer = 1
	}
	return &Hub{
		rooms:   make(map[uint64]map[*Subscription]struct{}),
		buffer:  buffer,
		metrics: m,
		log:     log.With(zap.String("component", "hub")),
	}
}

// Subscribe joins the room of tripID.
func (h *Hub) Subscribe(tripID uint64) *Subscription {
	ch := make(chan model.SeatEvent, h.buffer)
	s := &Subscription{TripID: tripID, C: ch, ch: ch, seen: make(map[string]int64), hub: h}

	h.mu.Lock()
	room, ok := h.rooms[tripID]
	if !ok {
		room = make(map[*Subscription]struct{})
		h.rooms[tripID] = room
	}
	room[s] = struct{}{}
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.Subscribers.Inc()
	}
	return s
}

// Close leaves the room and closes C.  It is safe to call more than once.
func (s *Subscription) Close() {
	h := s.hub
	h.mu.Lock()
	if s.closed {
		h.mu.Unlock()
		return
	}
	s.closed = true
	if room, ok := h.rooms[s.TripID]; ok {
		delete(room, s)
		if len(room) == 0 {
			delete(h.rooms, s.TripID)
		}
	}
	close(s.ch)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.Subscribers.Dec()
	}
}

// Publish delivers ev to every subscriber of its trip without blocking.
func (h *Hub) Publish(ev model.SeatEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.rooms[ev.TripID] {
		out, ok := s.fresh(ev)
		if !ok {
			continue
		}
		select {
		case s.ch <- out:
			s.markSeen(out)
		default:
			if h.metrics != nil {
				h.metrics.EventsDroppedTotal.WithLabelValues("subscriber").Inc()
			}
			h.log.Debug("subscriber buffer full, event dropped",
				zap.Uint64("trip_id", ev.TripID), zap.String("type", string(ev.Type)))
		}
	}
}

// RoomSize returns the number of subscribers of tripID.
func (h *Hub) RoomSize(tripID uint64) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[tripID])
}

// fresh strips seats whose version this subscriber has already passed.
func (s *Subscription) fresh(ev model.SeatEvent) (model.SeatEvent, bool) {
	codes := make([]string, 0, len(ev.SeatCodes))
	for _, code := range ev.SeatCodes {
		if v, ok := ev.Versions[code]; ok && v <= s.seen[code] {
			continue
		}
		codes = append(codes, code)
	}
	if len(codes) == 0 {
		return model.SeatEvent{}, false
	}
	ev.SeatCodes = codes
	return ev, true
}

func (s *Subscription) markSeen(ev model.SeatEvent) {
	for _, code := range ev.SeatCodes {
		if v := ev.Versions[code]; v > s.seen[code] {
			s.seen[code] = v
		}
	}
}

// HubSink delivers to the local hub directly.  It is used when the
// process is the only instance serving websockets.
type HubSink struct {
	hub *Hub
}

func NewHubSink(h *Hub) *HubSink { return &HubSink{hub: h} }

func (s *HubSink) Name() string { return "hub" }

func (s *HubSink) Deliver(_ context.Context, ev model.SeatEvent) error {
	s.hub.Publish(ev)
	return nil
}
