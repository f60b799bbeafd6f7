package main // Entry point package

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/bus-seat-hold/internal/config"
	"github.com/iliyamo/bus-seat-hold/internal/database"
	"github.com/iliyamo/bus-seat-hold/internal/handler"
	"github.com/iliyamo/bus-seat-hold/internal/metrics"
	"github.com/iliyamo/bus-seat-hold/internal/middleware"
	"github.com/iliyamo/bus-seat-hold/internal/queue"
	"github.com/iliyamo/bus-seat-hold/internal/realtime"
	"github.com/iliyamo/bus-seat-hold/internal/repository"
	"github.com/iliyamo/bus-seat-hold/internal/repository/memstore"
	"github.com/iliyamo/bus-seat-hold/internal/router"
	"github.com/iliyamo/bus-seat-hold/internal/service"
	"github.com/iliyamo/bus-seat-hold/internal/utils"
	"github.com/iliyamo/bus-seat-hold/internal/worker"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := utils.InitLogger(cfg.LogPath, cfg.Debug)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
	logger.Info("server stopped")
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	store, closeStore, err := openStore(cfg.Database, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	rdb := config.NewRedisClient(cfg.Redis)
	if rdb == nil {
		logger.Warn("redis unreachable; rate limiting, relay and expiry tasks disabled", zap.String("addr", cfg.Redis.Addr))
	} else {
		defer rdb.Close()
	}

	m := metrics.New()
	hub := realtime.NewHub(cfg.Realtime.SubscriberBuffer, m, logger)
	sinks, relay, closeSinks := buildSinks(cfg, rdb, hub, logger)
	defer closeSinks()
	dispatcher := realtime.NewDispatcher(cfg.Realtime.QueueSize, m, logger, sinks...)

	opts := service.Options{
		Clock:      service.SystemClock{},
		Dispatcher: dispatcher,
		Publisher:  queue.NewPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Queue, logger),
		Metrics:    m,
		Logger:     logger,
	}

	var (
		asynqClient *asynq.Client
		asynqServer *asynq.Server
	)
	if cfg.Asynq.Enabled && rdb != nil {
		asynqClient = asynq.NewClient(cfg.Redis.AsynqOpt())
		defer asynqClient.Close()
		opts.Scheduler = queue.NewExpiryScheduler(asynqClient)
		asynqServer = queue.NewExpiryServer(cfg.Redis.AsynqOpt(), cfg.Asynq.Concurrency, logger)
	}

	expirer := service.NewExpirer(store, opts)
	holds := service.NewHoldService(store, cfg.Hold, opts)
	availability := service.NewAvailabilityService(store, expirer, opts)
	bookings := service.NewBookingService(store, opts)

	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = handler.NewErrorHandler(logger)
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(logger))
	e.Use(echomw.Recover())
	e.Use(m.Middleware())
	e.GET("/metrics", echo.WrapHandler(m.Handler()))

	router.RegisterRoutes(e, router.Handlers{
		Health:       handler.NewHealthHandler(store),
		Holds:        handler.NewHoldHandler(holds),
		Availability: handler.NewAvailabilityHandler(availability),
		Bookings:     handler.NewBookingHandler(bookings),
		Events:       handler.NewEventsHandler(hub, logger),
		Admin:        handler.NewAdminHandler(expirer, cfg.Sweep.Batch),
	}, cfg.JWTSecret, middleware.NewTokenBucket(cfg.RateLimit, rdb, logger))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return dispatcher.Run(gctx) })

	sweeper := worker.NewHoldSweeper(expirer, cfg.Sweep.Interval, cfg.Sweep.Batch, logger)
	g.Go(func() error {
		sweeper.Start(gctx)
		return nil
	})

	if relay != nil {
		g.Go(func() error { return relay.Run(gctx) })
	}

	if asynqServer != nil {
		mux := asynq.NewServeMux()
		queue.NewExpiryWorker(expirer, logger).Register(mux)
		if err := asynqServer.Start(mux); err != nil {
			return fmt.Errorf("start expiry worker: %w", err)
		}
		g.Go(func() error {
			<-gctx.Done()
			asynqServer.Shutdown()
			return nil
		})
	}

	if cfg.RabbitMQ.AuditEnabled {
		audit, err := utils.InitAuditLogger(cfg.LogPath)
		if err != nil {
			return fmt.Errorf("audit logger: %w", err)
		}
		defer func() { _ = audit.Sync() }()
		consumer := queue.NewAuditConsumer(cfg.RabbitMQ.URL, cfg.RabbitMQ.Queue, audit, logger)
		g.Go(func() error { return consumer.Run(gctx) })
	}

	g.Go(func() error {
		addr := ":" + cfg.Port
		logger.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env), zap.String("db_driver", cfg.Database.Driver))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// openStore returns the seat store selected by DB_DRIVER.  The memory
// driver seeds a demo trip and keeps nothing across restarts.
func openStore(cfg config.DatabaseConfig, logger *zap.Logger) (repository.Store, func(), error) {
	if cfg.Driver == "memory" {
		logger.Warn("DB_DRIVER=memory: holds and bookings are lost on restart", zap.Uint64("demo_trip_id", memstore.DemoTripID))
		s := memstore.New(cfg.LockWait)
		s.SeedDemo(time.Now())
		return s, func() {}, nil
	}

	db, err := database.Open(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	closeDB := func() { _ = db.Close() }
	if cfg.Migrate {
		if err := database.Migrate(db, cfg.Driver); err != nil {
			closeDB()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
	}
	s, err := repository.NewSQLStore(db, cfg.LockWait)
	if err != nil {
		closeDB()
		return nil, nil, err
	}
	logDB(logger, db)
	return s, closeDB, nil
}

func logDB(logger *zap.Logger, db *sqlx.DB) {
	st := db.Stats()
	logger.Info("database ready", zap.String("driver", db.DriverName()), zap.Int("max_open", st.MaxOpenConnections))
}

// buildSinks assembles the realtime fan-out.  With the Redis relay on,
// local subscribers are fed by the relay rather than directly, so every
// instance sees every event exactly once.
func buildSinks(cfg config.Config, rdb *redis.Client, hub *realtime.Hub, logger *zap.Logger) ([]realtime.Sink, *realtime.RedisRelay, func()) {
	var (
		sinks   []realtime.Sink
		relay   *realtime.RedisRelay
		closers []func()
	)
	if cfg.Realtime.RedisRelay && rdb != nil {
		relay = realtime.NewRedisRelay(rdb, hub, logger)
		sinks = append(sinks, relay)
	} else {
		sinks = append(sinks, realtime.NewHubSink(hub))
	}
	if len(cfg.Kafka.Brokers) > 0 {
		k := realtime.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		sinks = append(sinks, k)
		closers = append(closers, func() { _ = k.Close() })
	}
	if cfg.PubNub.PublishKey != "" {
		sinks = append(sinks, realtime.NewPubNubSink(cfg.PubNub))
	}
	return sinks, relay, func() {
		for _, c := range closers {
			c()
		}
	}
}
