package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/shubham-shewale/quote-relay/cmd/quoteserver/internal/api"
	"github.com/shubham-shewale/quote-relay/cmd/quoteserver/internal/gateway"
	"github.com/shubham-shewale/quote-relay/cmd/quoteserver/internal/hub"
	"github.com/shubham-shewale/quote-relay/cmd/quoteserver/internal/ingest"
	"github.com/shubham-shewale/quote-relay/cmd/quoteserver/internal/instrumentation"
	"github.com/shubham-shewale/quote-relay/cmd/quoteserver/internal/persistence"
	"github.com/shubham-shewale/quote-relay/cmd/quoteserver/internal/quote"
	"github.com/shubham-shewale/quote-relay/cmd/quoteserver/internal/refdata"
	"github.com/shubham-shewale/quote-relay/cmd/quoteserver/internal/repository"
	"github.com/shubham-shewale/quote-relay/cmd/quoteserver/internal/upstream"
	"github.com/shubham-shewale/quote-relay/pkg/config"
	"github.com/shubham-shewale/quote-relay/pkg/models"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger, err := config.NewLogger(cfg.Logger)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := instrumentation.NewMetrics(reg)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		// The read path degrades to defaults, so a cold cache is not fatal.
		logger.Warn("Redis not reachable at startup", zap.Error(err))
	}
	store := repository.NewRedisStore(rdb, repository.TTLs{
		Quote:     cfg.Cache.QuoteTTL,
		Spread:    cfg.Cache.SpreadTTL,
		Aggregate: cfg.Cache.AggregateTTL,
		Default:   cfg.Cache.DefaultTTL,
	}, cfg.Cache.KeyPattern)
	defer store.Close()

	var db *gorm.DB
	if cfg.Sink.Driver == "mysql" || cfg.MySQL.SpreadSource {
		db, err = persistence.OpenMySQL(cfg.MySQL.DSN)
		if err != nil {
			logger.Fatal("Failed to connect to MySQL", zap.Error(err))
		}
	}

	writer, err := newWriter(ctx, cfg, db, logger)
	if err != nil {
		logger.Fatal("Failed to initialize persistence", zap.Error(err))
	}
	sink := persistence.NewQueue(writer, cfg.Sink.QueueSize, logger.With(zap.String("component", "persistence")), metrics)

	var spreads quote.SpreadProvider = refdata.NewStaticProvider(cfg.Spreads)
	if cfg.MySQL.SpreadSource {
		spreads = refdata.NewGormProvider(db)
	}

	registry := upstream.NewRegistry(cfg.Feed.Symbols...)

	// The manager hands ticks to the processor, which is built after the hub
	// that needs the manager for subscriptions.
	var processor *ingest.Processor
	manager, err := upstream.NewManager(upstream.Options{
		URL:               cfg.Feed.URL,
		Token:             cfg.Feed.Token,
		HeartbeatInterval: cfg.Feed.HeartbeatInterval,
		ReconnectDelay:    cfg.Feed.ReconnectDelay,
	},
		upstream.NewGorillaDialer(cfg.Feed.HandshakeTimeout),
		registry,
		upstream.TickHandlerFunc(func(t models.Tick, raw []byte) { processor.HandleTick(t, raw) }),
		logger.With(zap.String("component", "upstream")),
		metrics,
	)
	if err != nil {
		logger.Fatal("Failed to create upstream manager", zap.Error(err))
	}

	wsHub := hub.NewHub(manager, logger, metrics)

	engine := quote.NewEngine(quote.EngineDeps{
		Store:       store,
		Spreads:     spreads,
		Sink:        sink,
		Broadcaster: wsHub,
		Symbols:     registry,
		Logger:      logger,
		Metrics:     metrics,
	})
	processor = ingest.NewProcessor(cfg.Processor, cfg.Dedup.Window, engine, logger.With(zap.String("component", "ingest")), metrics)

	queries := quote.NewQueryService(store, store, engine, nil, logger)
	router := api.NewRouter(api.NewHandler(queries, wsHub, logger), reg, gateway.Handler(wsHub, logger))

	srv := &http.Server{
		Addr:              cfg.App.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sink.Run(gctx) })
	g.Go(func() error { return processor.Run(gctx) })
	g.Go(func() error { return manager.Run(gctx) })
	g.Go(func() error {
		logger.Info("Server Started", zap.String("port", cfg.App.Port), zap.Strings("symbols", cfg.Feed.Symbols))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown signal received")
		wsHub.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	manager.Connect()

	if err := g.Wait(); err != nil {
		logger.Error("Quote server stopped with error", zap.Error(err))
		return
	}
	logger.Info("Shutdown Complete")
}

func newWriter(ctx context.Context, cfg *config.Config, db *gorm.DB, logger *zap.Logger) (persistence.Writer, error) {
	switch cfg.Sink.Driver {
	case "mysql":
		return persistence.NewMySQLWriter(db)
	case "kafka":
		tc := persistence.NewTopicCreator(logger, &persistence.RealKafkaDialer{Dialer: &kafka.Dialer{Timeout: 5 * time.Second}}, persistence.RealSleeper{})
		tc.Ensure(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topic)
		return persistence.NewKafkaRecordWriter(persistence.NewAsyncKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic)), nil
	default:
		return persistence.NopWriter{}, nil
	}
}
