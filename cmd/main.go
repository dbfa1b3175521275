package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"gorm.io/gorm"

	"github.com/eisbuk/EisBuk-sub003/internal/changefeed"
	"github.com/eisbuk/EisBuk-sub003/internal/config"
	"github.com/eisbuk/EisBuk-sub003/internal/db"
	"github.com/eisbuk/EisBuk-sub003/internal/identity"
	"github.com/eisbuk/EisBuk-sub003/internal/jobs"
	"github.com/eisbuk/EisBuk-sub003/internal/model"
	"github.com/eisbuk/EisBuk-sub003/internal/repository"
	"github.com/eisbuk/EisBuk-sub003/internal/service"
	"github.com/eisbuk/EisBuk-sub003/internal/trigger"
)

// feed is a change feed the worker both publishes to and consumes.
type feed interface {
	changefeed.Publisher
	changefeed.Subscriber
}

func main() {
	// 1. Config from .env and the environment.
	_ = godotenv.Load()
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Change feed.
	changes, closeFeed, err := openFeed(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("init change feed: %v", err)
	}
	defer closeFeed()

	// 3. Primary store. Only writes to paths a handler listens to are published.
	registry := trigger.NewRegistry(logger)
	store, closeStore, err := openStore(ctx, cfg, changes, registry.Matches, logger)
	if err != nil {
		log.Fatalf("init store: %v", err)
	}
	defer closeStore()

	// 4. Aggregate handlers.
	handlers := service.NewHandlers(store, identity.UUIDMinter{}, logger)
	handlers.Register(registry)

	// 5. Booking write path, checked against the configured policy.
	bookings := service.NewBookingService(store, identity.NewStoreAdminChecker(store), cfg.AdmissionPolicy(),
		logger.With("component", "booking"))
	logger.Info("worker.booking_policy",
		"locking_period_days", bookings.Policy().LockingPeriodDays,
		"timezone", bookings.Policy().Location.String(),
	)

	// 6. Scheduled reconciliation.
	retention := time.Duration(cfg.Reconcile.ReceiptRetentionDays) * 24 * time.Hour
	reconciler := service.NewReconciler(store, retention, logger.With("job", "reconcile"))
	scheduler := jobs.NewReconcileScheduler(reconciler, cfg.Location(), logger.With("job", "reconcile"))
	if err := scheduler.Start(ctx, cfg.Reconcile.Schedule); err != nil {
		log.Fatalf("schedule reconciliation: %v", err)
	}
	defer scheduler.Stop()

	// 7. Health endpoint.
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)

	lis, err := net.Listen("tcp", cfg.Health.Addr)
	if err != nil {
		log.Fatalf("listen %s: %v", cfg.Health.Addr, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("worker.consuming", "feed", cfg.Feed.Driver, "store", cfg.Store.Driver)
		if err := changes.Subscribe(gctx, registry.Dispatch); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("consume change feed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("worker.health_listening", "addr", cfg.Health.Addr)
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("worker.shutting_down")
		healthServer.Shutdown()
		grpcServer.GracefulStop()
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		logger.Error("worker.stopped", "error", err)
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	if cfg.IsLocal() {
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

func openFeed(ctx context.Context, cfg *config.Config, logger *slog.Logger) (feed, func(), error) {
	logger = logger.With("component", "changefeed")

	switch cfg.Feed.Driver {
	case config.FeedDriverRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("redis ping: %w", err)
		}
		consumer, _ := os.Hostname()
		stream := changefeed.NewRedisStream(client, changefeed.RedisStreamOptions{
			Stream:   cfg.Redis.Stream,
			Group:    cfg.Redis.Group,
			Consumer: consumer,
			MinIdle:  cfg.Redis.MinIdle,
		}, logger)
		return stream, func() { _ = client.Close() }, nil

	case config.FeedDriverRabbitMQ:
		mq, err := changefeed.DialRabbitMQ(cfg.RabbitMQ.URL, changefeed.RabbitMQOptions{
			Exchange: cfg.RabbitMQ.Exchange,
			Queue:    cfg.RabbitMQ.Queue,
			Prefetch: cfg.RabbitMQ.Prefetch,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return mq, func() { _ = mq.Close() }, nil

	default:
		return changefeed.NewMemory(), func() {}, nil
	}
}

func openStore(
	ctx context.Context,
	cfg *config.Config,
	pub changefeed.Publisher,
	match func(path string) bool,
	logger *slog.Logger,
) (repository.DocumentStore, func(), error) {
	logger = logger.With("component", "store")

	if cfg.Store.Driver == config.StoreDriverMongo {
		client, err := db.NewMongoClient(ctx, cfg.Mongo.URI)
		if err != nil {
			return nil, nil, err
		}
		store := repository.NewMongoDocumentStore(client, cfg.Mongo.Database,
			repository.WithMongoPublisher(pub, match),
			repository.WithMongoLogger(logger),
		)
		if err := store.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, nil, err
		}
		return store, func() { _ = client.Disconnect(context.Background()) }, nil
	}

	var (
		gormDB *gorm.DB
		err    error
	)
	if cfg.Store.Driver == config.StoreDriverPostgres {
		gormDB, err = db.NewGormDB(&cfg.DB)
	} else {
		gormDB, err = db.NewSQLiteDB(cfg.Store.SQLitePath)
	}
	if err != nil {
		return nil, nil, err
	}
	if err := model.AutoMigrate(gormDB); err != nil {
		return nil, nil, fmt.Errorf("auto migrate: %w", err)
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, nil, fmt.Errorf("sql DB: %w", err)
	}

	store := repository.NewGormDocumentStore(gormDB,
		repository.WithPublisher(pub, match),
		repository.WithGormLogger(logger),
	)
	return store, func() { _ = sqlDB.Close() }, nil
}
