package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/fjod/go_cart/sharedcart-service/internal/activecart"
	"github.com/fjod/go_cart/sharedcart-service/internal/cache"
	"github.com/fjod/go_cart/sharedcart-service/internal/config"
	"github.com/fjod/go_cart/sharedcart-service/internal/housekeeping"
	h "github.com/fjod/go_cart/sharedcart-service/internal/http"
	"github.com/fjod/go_cart/sharedcart-service/internal/idgen"
	"github.com/fjod/go_cart/sharedcart-service/internal/merge"
	"github.com/fjod/go_cart/sharedcart-service/internal/metrics"
	"github.com/fjod/go_cart/sharedcart-service/internal/publisher"
	"github.com/fjod/go_cart/sharedcart-service/internal/repository"
	"github.com/fjod/go_cart/sharedcart-service/internal/resolver"
	"github.com/fjod/go_cart/sharedcart-service/internal/service"
	"github.com/fjod/go_cart/sharedcart-service/internal/snapshot"
	"github.com/fjod/go_cart/sharedcart-service/internal/storage"
	"github.com/fjod/go_cart/sharedcart-service/pkg/logger"
)

func main() {
	cfg, err := config.Load(os.Getenv(config.FileEnv))
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := logger.New(logger.Options{
		Service: "sharedcart-service",
		Env:     cfg.App.Env,
		Level:   cfg.App.Level,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Remote tier
	var remote repository.SnapshotStore
	var shutdownRemote func(context.Context) error
	if cfg.Remote.URI == "" {
		log.Warn("no remote uri configured, shared carts are kept in memory")
		remote = repository.NewMemoryStore(time.Now)
	} else {
		connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		mongoDB, err := repository.ConnectMongoDB(connectCtx, cfg.Remote.URI, cfg.Remote.Database)
		cancel()
		if err != nil {
			log.Error("failed to connect to MongoDB", "error", err)
			os.Exit(1)
		}
		shutdownRemote = mongoDB.Client().Disconnect

		mongoStore := repository.NewMongoStore(mongoDB, cfg.Remote.Timeout, log)
		if err := mongoStore.CreateIndexes(ctx); err != nil {
			log.Warn("failed to create shared cart indexes", "error", err)
		}
		remote = repository.NewBreakerStore(mongoStore, repository.BreakerSettings{
			ConsecutiveFailures: cfg.Remote.Breaker.Failures,
			OpenTimeout:         cfg.Remote.Breaker.Timeout,
		}, log)
		log.Info("connected to MongoDB", "database", cfg.Remote.Database)
	}

	// Device storage: the active cart always lives in Badger.
	engine, err := storage.NewBadgerEngine(storage.BadgerConfig{
		Dir:        cfg.Cache.Dir,
		InMemory:   cfg.Cache.InMemory,
		GCInterval: 10 * time.Minute,
	}, log)
	if err != nil {
		log.Error("failed to open badger", "dir", cfg.Cache.Dir, "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	var local cache.SnapshotCache
	switch cfg.Cache.Driver {
	case "redis":
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Error("redis connection failed", "addr", cfg.Redis.Addr, "error", err)
			os.Exit(1)
		}
		local = cache.NewRedisCache(redisClient)
	default:
		local = cache.NewKVCache(engine)
	}
	cart := activecart.NewKVStore(engine)

	var pub publisher.Publisher = publisher.Noop{}
	if len(cfg.Kafka.Brokers) > 0 {
		pub = publisher.NewKafkaPublisher(cfg.Kafka.Topic, cfg.Kafka.Brokers...)
		log.Info("publishing shared cart events", "topic", cfg.Kafka.Topic, "brokers", cfg.Kafka.Brokers)
	}
	defer pub.Close()

	ids, err := idgen.New(cfg.Share.IDGen, time.Now)
	if err != nil {
		log.Error("invalid id generator", "error", err)
		os.Exit(1)
	}

	res := resolver.New(remote, local,
		resolver.WithRemoteTimeout(cfg.Remote.Timeout),
		resolver.WithLogger(log),
		resolver.WithMetrics(m),
	)
	sharing := service.NewSharingService(
		snapshot.NewBuilder(ids, time.Now),
		remote,
		local,
		res,
		merge.NewImporter(cart),
		pub,
		service.Config{TTL: cfg.Remote.TTL, PutAttempts: cfg.Share.Attempts},
		log,
		m,
	)

	sweeper := housekeeping.NewSweeper(remote, cfg.Sweep.Interval, log, m)
	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		sweeper.Run(ctx)
	}()

	handler := h.NewSharedCartHandler(sharing, cart, cfg.HTTP.Timeout, log)
	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      h.NewRouter(handler, reg, log, cfg.HTTP.Timeout),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.HTTP.Timeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("shared cart service starting", "addr", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.Shutdown)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}
	<-sweepDone
	if shutdownRemote != nil {
		if err := shutdownRemote(shutdownCtx); err != nil {
			log.Warn("failed to disconnect from MongoDB", "error", err)
		}
	}

	log.Info("server exited")
}
