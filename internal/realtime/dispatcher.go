package realtime

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/bus-seat-hold/internal/metrics"
	"github.com/iliyamo/bus-seat-hold/internal/model"
)

// Sink is one destination of committed seat events.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, ev model.SeatEvent) error
}

// deliverTimeout bounds a single sink delivery.
const deliverTimeout = 5 * time.Second

type lane struct {
	sink Sink
	ch   chan model.SeatEvent
}

// Dispatcher queues events per sink and delivers them from one goroutine
// per sink, so events reach each sink in dispatch order and a stalled sink
// only drops its own events.
type Dispatcher struct {
	lanes   []*lane
	metrics *metrics.Metrics
	log     *zap.Logger
}

// NewDispatcher builds a dispatcher with queueSize buffered events per sink.
func NewDispatcher(queueSize int, m *metrics.Metrics, log *zap.Logger, sinks ...Sink) *Dispatcher {
	if queueSize < 1 {
		queueSize = 1
	}
	d := &Dispatcher{metrics: m, log: log.With(zap.String("component", "dispatcher"))}
	for _, s := range sinks {
		if s == nil {
			continue
		}
		d.lanes = append(d.lanes, &lane{sink: s, ch: make(chan model.SeatEvent, queueSize)})
	}
	return d
}

// Dispatch enqueues events on every sink.  It never blocks; a full queue
// drops the event for that sink.
func (d *Dispatcher) Dispatch(events ...model.SeatEvent) {
	for _, ev := range events {
		for _, l := range d.lanes {
			select {
			case l.ch <- ev:
			default:
				d.dropped("dispatch")
				d.log.Warn("sink queue full, event dropped",
					zap.String("sink", l.sink.Name()),
					zap.Uint64("trip_id", ev.TripID),
					zap.String("type", string(ev.Type)))
			}
		}
	}
}

// Run delivers queued events until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, l := range d.lanes {
		wg.Add(1)
		go func(l *lane) {
			defer wg.Done()
			d.drain(ctx, l)
		}(l)
	}
	wg.Wait()
	return nil
}

func (d *Dispatcher) drain(ctx context.Context, l *lane) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-l.ch:
			dctx, cancel := context.WithTimeout(ctx, deliverTimeout)
			err := l.sink.Deliver(dctx, ev)
			cancel()
			if err != nil {
				d.dropped("sink")
				d.log.Warn("sink delivery failed",
					zap.String("sink", l.sink.Name()),
					zap.Uint64("trip_id", ev.TripID),
					zap.Error(err))
			}
		}
	}
}

func (d *Dispatcher) dropped(stage string) {
	if d.metrics != nil {
		d.metrics.EventsDroppedTotal.WithLabelValues(stage).Inc()
	}
}
