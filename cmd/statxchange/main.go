package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/statxchange/statxchange/internal/config"
	"github.com/statxchange/statxchange/internal/engine"
	"github.com/statxchange/statxchange/internal/events"
	"github.com/statxchange/statxchange/internal/handler"
	"github.com/statxchange/statxchange/internal/service"
	"github.com/statxchange/statxchange/internal/store"
)

func main() {
	healthcheck := flag.Bool("healthcheck", false, "Run health check against running server")
	flag.Parse()

	// Handle -healthcheck flag: HTTP GET to localhost:PORT/healthz, exit 0/1.
	if *healthcheck {
		port := os.Getenv("PORT")
		if port == "" {
			port = "8080"
		}
		resp, err := http.Get(fmt.Sprintf("http://localhost:%s/healthz", port))
		if err != nil || resp.StatusCode != http.StatusOK {
			os.Exit(1)
		}
		os.Exit(0)
	}

	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Set up slog logger with configured level.
	var logLevel slog.Level
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Stores.
	securityStore := store.NewSecurityStore()
	orderStore := store.NewOrderStore()
	tradeStore := store.NewTradeStore()

	// Event bus feeding the websocket fan-out.
	bus := events.NewBus(cfg.EventBufferSize)

	// Engines.
	seed := cfg.RandomSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	books := engine.NewBookManager()
	breaker := engine.NewCircuitBreaker(cfg.BreakerTripPct, cfg.BreakerCooldown, bus)
	matcher := engine.NewMatcher(books, securityStore, orderStore, tradeStore, breaker, bus)
	expiryMgr := engine.NewExpiryManager(cfg.ExpirationInterval, books, matcher)
	pricing := engine.NewPriceFormation(cfg.Pricing(), rng)
	optionsEng := engine.NewOptionsEngine(cfg.Options())
	shortEng := engine.NewShortEngine(cfg.Short())
	tickEng := engine.NewTickEngine(
		cfg.TickInterval,
		securityStore,
		books,
		pricing,
		breaker,
		optionsEng,
		shortEng,
		tradeStore,
		bus,
		logger,
	)

	// Services.
	securitySvc := service.NewSecurityService(securityStore, books, shortEng, breaker)
	orderSvc := service.NewOrderService(matcher, expiryMgr, orderStore)
	marketSvc := service.NewMarketDataService(securityStore, books, matcher)
	optionsSvc := service.NewOptionsService(securityStore, books, optionsEng)
	shortSvc := service.NewShortService(securityStore, books, shortEng, breaker)

	// Websocket hub.
	hub := handler.NewHub(logger)

	// Router.
	router := handler.NewRouter(securitySvc, marketSvc, orderSvc, optionsSvc, shortSvc, hub, logger)

	// Start background goroutines with a cancellable context.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx, bus.Events())
	go expiryMgr.Start(ctx)
	go tickEng.Start(ctx)

	// Configure HTTP server.
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	// Start HTTP server in a goroutine.
	go func() {
		logger.Info("server starting", slog.String("addr", addr), slog.Int64("seed", seed))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	// Wait for SIGINT/SIGTERM.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutdown signal received", slog.String("signal", sig.String()))

	// Graceful shutdown: stop HTTP server, cancel context (stops the tick
	// pipeline, expiry manager, and websocket hub).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.String("error", err.Error()))
	}
	cancel()

	if dropped := bus.Dropped(); dropped > 0 {
		logger.Warn("events dropped during run", slog.Int64("dropped", dropped))
	}
	logger.Info("server stopped")
}
