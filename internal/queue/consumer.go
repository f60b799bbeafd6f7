package queue

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
    "go.uber.org/zap"
)

const bookingQueueName = "booking.confirmed"

// AuditConsumer reads booking.confirmed and appends one structured line
// per booking to the audit log.
type AuditConsumer struct {
    url   string
    queue string
    audit *zap.Logger
    log   *zap.Logger
}

// NewAuditConsumer writes audit lines to audit and its own diagnostics to
// log.
func NewAuditConsumer(url, queue string, audit, log *zap.Logger) *AuditConsumer {
    if queue == "" {
        queue = bookingQueueName
    }
    return &AuditConsumer{url: url, queue: queue, audit: audit, log: log.With(zap.String("component", "booking_consumer"))}
}

// Run connects, consumes and reconnects with backoff until ctx is
// cancelled.  It only returns once ctx is done.
func (c *AuditConsumer) Run(ctx context.Context) error {
    backoff := time.Second
    for {
        conn, err := amqp.Dial(c.url)
        if err != nil {
            c.log.Warn("failed to dial broker", zap.Error(err), zap.Duration("retry_in", backoff))
            if !sleep(ctx, backoff) {
                return nil
            }
            if backoff < 30*time.Second {
                backoff *= 2
            }
            continue
        }
        backoff = time.Second

        err = c.consume(ctx, conn)
        _ = conn.Close()
        if ctx.Err() != nil {
            return nil
        }
        c.log.Warn("consume loop ended, reconnecting", zap.Error(err))
        if !sleep(ctx, 2*time.Second) {
            return nil
        }
    }
}

func (c *AuditConsumer) consume(ctx context.Context, conn *amqp.Connection) error {
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if err := ch.Qos(50, 0, false); err != nil {
        c.log.Warn("set QoS failed", zap.Error(err))
    }
    if _, err := ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
        return fmt.Errorf("queue declare: %w", err)
    }
    msgs, err := ch.Consume(c.queue, "", false, false, false, false, nil)
    if err != nil {
        return fmt.Errorf("queue consume: %w", err)
    }

    for {
        select {
        case <-ctx.Done():
            return ctx.Err()
        case d, ok := <-msgs:
            if !ok {
                return errors.New("deliveries channel closed")
            }
            if err := c.handleMessage(d.Body); err != nil {
                c.log.Warn("handle message failed", zap.Error(err))
                _ = d.Nack(false, false) // reject without requeue to avoid tight loops
                continue
            }
            _ = d.Ack(false)
        }
    }
}

func (c *AuditConsumer) handleMessage(body []byte) error {
    var ev BookingConfirmedEvent
    if err := json.Unmarshal(body, &ev); err != nil {
        return fmt.Errorf("unmarshal: %w", err)
    }
    if ev.BookingID == "" {
        return errors.New("booking event without booking_id")
    }
    c.audit.Info("booking confirmed",
        zap.String("booking_id", ev.BookingID),
        zap.String("reference", ev.Reference),
        zap.Uint64("trip_id", ev.TripID),
        zap.String("owner", ev.Owner),
        zap.Strings("seats", ev.SeatCodes),
        zap.String("contact_email", ev.Contact.Email),
        zap.Int("passengers", len(ev.Passengers)),
        zap.String("confirmed_at", ev.ConfirmedAt),
    )
    return nil
}

// sleep waits for d and reports false when ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
    t := time.NewTimer(d)
    defer t.Stop()
    select {
    case <-ctx.Done():
        return false
    case <-t.C:
        return true
    }
}
