package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/cypherlabdev/bet-engine-service/internal/cache"
	"github.com/cypherlabdev/bet-engine-service/internal/config"
	"github.com/cypherlabdev/bet-engine-service/internal/feed"
	httpHandler "github.com/cypherlabdev/bet-engine-service/internal/handler/http"
	"github.com/cypherlabdev/bet-engine-service/internal/ledger"
	"github.com/cypherlabdev/bet-engine-service/internal/messaging"
	"github.com/cypherlabdev/bet-engine-service/internal/metrics"
	"github.com/cypherlabdev/bet-engine-service/internal/service"
	"github.com/cypherlabdev/bet-engine-service/internal/slip"
	"github.com/cypherlabdev/bet-engine-service/pkg/pricing"
)

func main() {
	// Load configuration; without a file, defaults and BET_ENGINE_* env apply
	cfg, err := config.LoadConfig(os.Getenv("BET_ENGINE_CONFIG_FILE"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	logger := setupLogger(cfg.Logging)
	logger.Info().Msg("starting bet-engine-service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New(prometheus.DefaultRegisterer)

	// Redis: quote mirror and slip sessions
	quoteCache := cache.NewQuoteCache(
		cache.QuoteCacheConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.QuoteTTL,
		},
		logger,
	)
	defer quoteCache.Close()

	if err := quoteCache.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to Redis")
	}
	logger.Info().Str("addr", cfg.Redis.Addr).Msg("connected to Redis")

	slipStore := cache.NewSlipStore(
		cache.SlipStoreConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.SlipTTL,
		},
		logger,
	)
	defer slipStore.Close()

	engine, err := pricing.NewEngine(cfg.Pricing.ToParams())
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid pricing parameters")
	}

	wallet := ledger.NewLedger(
		ledger.Config{LockTimeout: cfg.Ledger.LockTimeout, Precision: engine.Params().Precision},
		logger,
		ledger.WithBusyHook(m.LedgerBusy),
	)

	// Odds feed: Kafka -> repricer -> quote book (+ Redis mirror)
	book := feed.NewQuoteBook()
	repricer := feed.NewRepricer(feed.RepricerConfig{}, book, quoteCache, logger)
	repricer.OnUpdate = m.FeedUpdate

	oddsFeed := messaging.NewKafkaFeed(
		messaging.KafkaFeedConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.OddsTopic,
			GroupID: cfg.Kafka.GroupID,
		},
		logger,
	)
	defer oddsFeed.Close()

	repricerDone := make(chan struct{})
	go func() {
		defer close(repricerDone)
		if err := repricer.Run(ctx, oddsFeed); err != nil {
			logger.Error().Err(err).Msg("repricer failed")
		}
	}()

	publisher := messaging.NewKafkaPublisher(
		messaging.KafkaPublisherConfig{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.EventsTopic,
			WriteTimeout: cfg.Kafka.WriteTimeout,
		},
		logger,
	)
	defer publisher.Close()

	bets := service.NewBetService(
		service.BetServiceConfig{
			OddsPolicy:    service.OddsPolicy(cfg.Pricing.OddsPolicy),
			OddsTolerance: cfg.Pricing.Tolerance(),
		},
		engine,
		wallet,
		service.NewMemoryBetStore(),
		book,
		logger,
		service.WithPublisher(publisher),
		service.WithRecorder(m),
	)

	rules := []slip.Rule{slip.ValidOddsRule, slip.MaxLegsRule(cfg.Slip.MaxLegs)}
	if cfg.Slip.SameMarketRule {
		rules = append(rules, slip.SameMarketRule)
	}
	slips := service.NewSlipService(slip.NewBuilder(rules...), slipStore, book, bets, logger)
	logger.Info().Str("odds_policy", cfg.Pricing.OddsPolicy).Msg("bet service initialized")

	mux := http.NewServeMux()

	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		readyHandler(w, r, quoteCache)
	})
	mux.Handle("/metrics", promhttp.Handler())

	httpHandler.NewBetHandler(bets, slips, logger).RegisterRoutes(mux)
	httpHandler.NewWalletHandler(wallet, bets, logger).RegisterRoutes(mux)
	httpHandler.NewMarketHandler(book, quoteCache, repricer, bets, logger).RegisterRoutes(mux)
	logger.Info().Msg("API routes registered")

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info().Int("port", cfg.Server.Port).Msg("starting HTTP server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("shutting down gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// Drain API calls first so no bet is placed against a stopped feed
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	cancel()
	select {
	case <-repricerDone:
	case <-shutdownCtx.Done():
		logger.Warn().Msg("repricer did not stop before shutdown timeout")
	}

	logger.Info().Msg("shutdown complete")
}

// setupLogger configures the logger based on config
func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}

	return log.Logger.With().Str("service", "bet-engine").Logger()
}

// healthHandler returns 200 if service is running
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// readyHandler returns 200 if service is ready to accept traffic
func readyHandler(w http.ResponseWriter, r *http.Request, cache *cache.QuoteCache) {
	if err := cache.Ping(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("Redis unavailable"))
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("READY"))
}
