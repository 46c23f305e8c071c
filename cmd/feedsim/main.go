package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/shubham-shewale/quote-relay/cmd/feedsim/internal/generator"
	"github.com/shubham-shewale/quote-relay/pkg/config"
)

var basePrices = map[string]decimal.Decimal{
	"AAPL.US": decimal.RequireFromString("189.50"),
	"MSFT.US": decimal.RequireFromString("410.20"),
	"GOOG.US": decimal.RequireFromString("165.30"),
	"AMZN.US": decimal.RequireFromString("185.10"),
	"TSLA.US": decimal.RequireFromString("250.80"),
	"NVDA.US": decimal.RequireFromString("145.67"),
}

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

	seed := time.Now().UnixNano()
	gen := generator.NewTickGenerator(basePrices, generator.RealRand{Rand: rand.New(rand.NewSource(seed))}, generator.RealClock{})
	feedServer := generator.NewServer(gen, generator.RealRand{Rand: rand.New(rand.NewSource(seed + 1))}, cfg.Sim.Interval, cfg.Sim.DuplicateRate, logger)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/*", feedServer)

	srv := &http.Server{Addr: cfg.Sim.Port, Handler: r, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		logger.Info("Feed simulator started", zap.String("port", cfg.Sim.Port), zap.Duration("interval", cfg.Sim.Interval))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP Error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
	logger.Info("Feed simulator stopped")
}
