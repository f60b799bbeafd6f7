package queue

import (
    "context"
    "encoding/json"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
    "go.uber.org/zap"

    "github.com/iliyamo/bus-seat-hold/internal/model"
)

// Publisher sends booking.confirmed messages.  Each publish opens its own
// connection; bookings are rare next to holds and a broker outage must not
// leave a broken shared channel behind.
type Publisher struct {
    url   string
    queue string
    log   *zap.Logger
}

func NewPublisher(url, queue string, log *zap.Logger) *Publisher {
    if queue == "" {
        queue = bookingQueueName
    }
    return &Publisher{url: url, queue: queue, log: log.With(zap.String("component", "booking_publisher"))}
}

// PublishBookingConfirmed publishes a persistent message for b.  Errors
// are logged and returned so the caller may ignore them.
func (p *Publisher) PublishBookingConfirmed(ctx context.Context, b model.Booking) error {
    msg, err := bookingMessage(b)
    if err != nil {
        p.log.Error("marshal booking event", zap.String("booking_id", b.ID), zap.Error(err))
        return err
    }

    conn, err := amqp.Dial(p.url)
    if err != nil {
        p.log.Warn("rabbitmq dial failed", zap.Error(err))
        return err
    }
    defer func() { _ = conn.Close() }()

    ch, err := conn.Channel()
    if err != nil {
        p.log.Warn("rabbitmq channel open failed", zap.Error(err))
        return err
    }
    defer func() { _ = ch.Close() }()

    // Durable so messages survive broker restarts.
    if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
        p.log.Warn("rabbitmq queue declare failed", zap.String("queue", p.queue), zap.Error(err))
        return err
    }

    if err := ch.PublishWithContext(ctx, "", p.queue, false, false, msg); err != nil {
        p.log.Warn("rabbitmq publish failed", zap.String("booking_id", b.ID), zap.Error(err))
        return err
    }
    return nil
}

func bookingMessage(b model.Booking) (amqp.Publishing, error) {
    body, err := json.Marshal(NewBookingConfirmedEvent(b))
    if err != nil {
        return amqp.Publishing{}, err
    }
    return amqp.Publishing{
        ContentType:  "application/json",
        DeliveryMode: amqp.Persistent,
        MessageId:    b.ID,
        Timestamp:    time.Now().UTC(),
        Type:         bookingQueueName,
        Body:         body,
    }, nil
}
