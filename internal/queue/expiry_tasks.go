package queue

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "time"

    "github.com/hibiken/asynq"
    "go.uber.org/zap"
)

// TypeHoldExpire expires one hold at its expiry instant.
const TypeHoldExpire = "seat:hold:expire"

const expiryQueue = "critical"

type HoldExpirePayload struct {
    TripID uint64 `json:"trip_id"`
    Token  string `json:"token"`
}

func NewHoldExpireTask(tripID uint64, token string) (*asynq.Task, error) {
    payload, err := json.Marshal(HoldExpirePayload{TripID: tripID, Token: token})
    if err != nil {
        return nil, err
    }
    return asynq.NewTask(TypeHoldExpire, payload), nil
}

type enqueuer interface {
    EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// ExpiryScheduler enqueues a hold expiry task for every new expiry instant
// of a hold.  A refreshed hold gets a second task; the first one finds the
// hold still live and does nothing.
type ExpiryScheduler struct {
    client enqueuer
}

func NewExpiryScheduler(client *asynq.Client) *ExpiryScheduler {
    return &ExpiryScheduler{client: client}
}

func (s *ExpiryScheduler) ScheduleExpiry(ctx context.Context, tripID uint64, token string, at time.Time) error {
    task, err := NewHoldExpireTask(tripID, token)
    if err != nil {
        return err
    }
    _, err = s.client.EnqueueContext(ctx, task,
        asynq.ProcessAt(at),
        asynq.TaskID(fmt.Sprintf("%s:%d", token, at.Unix())),
        asynq.Queue(expiryQueue),
        asynq.MaxRetry(3),
    )
    if errors.Is(err, asynq.ErrTaskIDConflict) {
        return nil
    }
    return err
}

// TokenExpirer releases a lapsed hold.
type TokenExpirer interface {
    ExpireToken(ctx context.Context, tripID uint64, token string) (int, error)
}

// ExpiryWorker handles TypeHoldExpire tasks.
type ExpiryWorker struct {
    expirer TokenExpirer
    log     *zap.Logger
}

func NewExpiryWorker(e TokenExpirer, log *zap.Logger) *ExpiryWorker {
    return &ExpiryWorker{expirer: e, log: log.With(zap.String("component", "expiry_worker"))}
}

func (w *ExpiryWorker) Register(mux *asynq.ServeMux) {
    mux.HandleFunc(TypeHoldExpire, w.HandleHoldExpire)
}

func (w *ExpiryWorker) HandleHoldExpire(ctx context.Context, t *asynq.Task) error {
    var p HoldExpirePayload
    if err := json.Unmarshal(t.Payload(), &p); err != nil {
        return fmt.Errorf("decode %s payload: %v: %w", TypeHoldExpire, err, asynq.SkipRetry)
    }
    n, err := w.expirer.ExpireToken(ctx, p.TripID, p.Token)
    if err != nil {
        return err
    }
    if n > 0 {
        w.log.Debug("hold expired by task", zap.Uint64("trip_id", p.TripID), zap.Int("seats", n))
    }
    return nil
}

// NewExpiryServer returns an asynq server processing the expiry queue.
func NewExpiryServer(opt asynq.RedisClientOpt, concurrency int, log *zap.Logger) *asynq.Server {
    return asynq.NewServer(opt, asynq.Config{
        Concurrency: concurrency,
        Queues: map[string]int{
            expiryQueue: 6,
            "default":   3,
        },
        Logger: log.With(zap.String("component", "asynq")).Sugar(),
    })
}
