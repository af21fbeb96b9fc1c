package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"concretesync/internal/broadcast"
	"concretesync/internal/config"
	"concretesync/internal/display"
	"concretesync/internal/feed"
	"concretesync/internal/handler"
	"concretesync/internal/httpserver"
	"concretesync/internal/kv"
	"concretesync/internal/querycache"
	"concretesync/internal/realtime"
	"concretesync/internal/repository"
	"concretesync/internal/service/notification"
	"concretesync/internal/service/syncer"
	"concretesync/pkg/circuitbreaker"
	"concretesync/pkg/db"
	"concretesync/pkg/logger"
	"concretesync/pkg/mq"
	redispkg "concretesync/pkg/redis"
	"concretesync/pkg/util"
)

func main() {
	cfg := config.Load()

	log := logger.NewLogger(cfg.Log.Level)
	defer log.Sync()

	origin := cfg.Instance.ID
	if origin == "" {
		origin = uuid.NewString()
	}

	log.Info("Starting syncd...",
		zap.String("instance", origin),
		zap.String("feed_driver", cfg.Feed.Driver),
		zap.String("db_host", cfg.DB.Host),
		zap.String("redis_addr", cfg.Redis.Addr),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	log.Info("Initializing database connection...")
	dbConn, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("Failed to init DB", zap.Error(err))
	}
	defer dbConn.Close()

	notificationRepo := repository.NewNotificationRepository(dbConn, log)
	if err := notificationRepo.EnsureSchema(ctx); err != nil {
		log.Fatal("Failed to ensure notification schema", zap.Error(err))
	}

	// Redis
	rdb := redispkg.NewRedisClient(cfg.Redis)
	defer rdb.Close()
	if err := redispkg.Ping(ctx, rdb); err != nil {
		log.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	log.Info("Redis connection established successfully")

	// 实时推送 + 跨实例广播
	hub := realtime.NewHub()
	bus := broadcast.NewBus(
		broadcast.NewRedisSlot(rdb, cfg.Sync.BroadcastKey, cfg.Sync.BroadcastChannel, log),
		origin,
		log,
	)
	go func() {
		if err := bus.Start(ctx); err != nil {
			log.Error("Broadcast bus stopped", zap.Error(err))
		}
	}()

	// Notification config
	configStore := notification.NewConfigStore(kv.NewRedisStore(rdb, ""), cfg.Notification.ConfigKey, bus, log)
	configStore.Load(ctx)
	defer configStore.Listen()()

	// Notification store
	notificationService := notification.NewService(
		notification.NewStore(cfg.Notification.StoreCapacity),
		notificationRepo,
		bus,
		hub,
		log,
	)
	if err := notificationService.Seed(ctx); err != nil {
		log.Warn("Failed to seed notification store, starting empty", zap.Error(err))
	}
	defer notificationService.Listen()()

	// Displays
	displays := []display.Display{display.NewSSEDisplay(hub)}
	var publisher *mq.Publisher
	if cfg.Notification.PushEnabled {
		publisher, err = mq.NewPublisher(cfg.MQ.URL, mq.PushExchange)
		if err != nil {
			log.Fatal("Failed to init MQ publisher", zap.Error(err))
		}
		breaker := circuitbreaker.New(cfg.CircuitBreaker).OnStateChange(func(from, to circuitbreaker.State) {
			log.Warn("Push circuit breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		})
		displays = append(displays, display.NewPushDisplay(publisher, breaker, origin))
	}

	loc, _ := cfg.Location()
	dispatcher := notification.NewDispatcher(
		configStore,
		notificationService,
		display.NewFanout(displays...),
		notification.DispatcherOptions{Location: loc, AutoDismiss: cfg.AutoDismiss()},
		log,
	)
	defer dispatcher.ListenAdvisories(bus)()

	// Change feed
	changeFeed := newFeed(cfg, dbConn, log)
	invalidator := querycache.NewInvalidator(rdb, hub, log)
	tracker := syncer.NewTracker(hub, log)
	reconciler := syncer.NewReconciler(
		changeFeed,
		tracker,
		invalidator,
		util.NewDeduper(rdb, cfg.DedupTTL(), log),
		dispatcher,
		bus,
		hub,
		log,
	)
	defer reconciler.ListenSiblings()()
	reconciler.Start(ctx)

	liveness := syncer.NewLivenessChecker(tracker, reconciler.Alive, cfg.LivenessInterval(), log)
	liveness.Start(ctx)

	// HTTP Server
	router := httpserver.NewRouter(
		handler.NewSyncHandler(tracker, invalidator, hub, log),
		handler.NewNotificationHandler(notificationService, configStore, dispatcher, log),
		handler.NewAdvisoryHandler(bus, log),
		[]httpserver.ReadinessCheck{
			{Name: "db", Check: dbConn.Ping},
			{Name: "redis", Check: func(ctx context.Context) error { return redispkg.Ping(ctx, rdb) }},
		},
		cfg.JWT.Secret,
	)
	// 请求 ctx 派生自根 ctx，关闭时 SSE 连接随之退出
	srv := &http.Server{
		Addr:        cfg.Server.Port,
		Handler:     router.Engine,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	go func() {
		log.Info("HTTP server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	log.Info("syncd is fully initialized and running")

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down syncd gracefully...")

	// Close HTTP server
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		log.Info("HTTP server stopped")
	}

	reconciler.Stop()
	liveness.Stop()
	dispatcher.Close()
	notificationService.Close()
	if publisher != nil {
		publisher.Close()
	}

	log.Info("syncd shutdown complete")
}

func newFeed(cfg *config.Config, pool *pgxpool.Pool, log *zap.Logger) feed.Feed {
	switch cfg.Feed.Driver {
	case config.FeedDriverPostgres:
		return feed.NewPostgresFeed(pool, cfg.Feed.PGChannel, log)
	case config.FeedDriverMemory:
		log.Warn("Using in-memory change feed, no external changes will be observed")
		return feed.NewMemoryFeed(log)
	default:
		return feed.NewAMQPFeed(cfg.MQ.URL, cfg.Feed.Exchange, log)
	}
}
