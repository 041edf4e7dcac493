package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"mchatbot.io/support-backend/internal/analysis"
	"mchatbot.io/support-backend/internal/api"
	"mchatbot.io/support-backend/internal/auth"
	"mchatbot.io/support-backend/internal/cache"
	"mchatbot.io/support-backend/internal/config"
	"mchatbot.io/support-backend/internal/core"
	"mchatbot.io/support-backend/internal/logging"
	"mchatbot.io/support-backend/internal/metrics"
	"mchatbot.io/support-backend/internal/mood"
	"mchatbot.io/support-backend/internal/ratelimit"
	"mchatbot.io/support-backend/internal/response"
	"mchatbot.io/support-backend/internal/store"
)

const sweepInterval = 5 * time.Minute

func main() {
	// Command line flag for catalog ingestion
	seedFile := flag.String("seed", "", "Replace the coping strategy catalog from a YAML file and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, *seedFile, logger); err != nil {
		logger.Error("service stopped with error", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, seedFile string, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !cfg.DotEnvLoaded {
		logger.Debug("no .env file found, using environment only")
	}

	// Initialize database store
	dbStore, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbStore.Close()

	// Handle catalog ingestion if flag is set
	if seedFile != "" {
		logger.Info("starting coping strategy ingestion", zap.String("file", seedFile))
		n, err := dbStore.IngestCatalogFromFile(ctx, seedFile)
		if err != nil {
			return fmt.Errorf("catalog ingestion failed: %w", err)
		}
		logger.Info("catalog ingestion complete", zap.Int("strategies", n))
		return nil
	}
	if cfg.CopingStrategiesFile != "" {
		n, err := dbStore.IngestCatalogFromFile(ctx, cfg.CopingStrategiesFile)
		if err != nil {
			return fmt.Errorf("failed to load coping strategies: %w", err)
		}
		logger.Info("loaded coping strategy catalog", zap.String("file", cfg.CopingStrategiesFile), zap.Int("strategies", n))
	} else if n, err := dbStore.SeedDefaultStrategies(ctx); err != nil {
		return fmt.Errorf("failed to seed coping strategies: %w", err)
	} else if n > 0 {
		logger.Info("seeded default coping strategies", zap.Int("strategies", n))
	}

	m := metrics.New()

	scorer, closeScorer, err := newScorer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeScorer()

	cacheOpts := []cache.Option{
		cache.WithTTL(cfg.CacheTTL),
		cache.WithCapacity(cfg.CacheCapacity),
		cache.WithEvictBatch(cfg.CacheEvictBatch),
	}
	emotionCache := cache.New[analysis.Result](cacheOpts...)
	sentimentCache := cache.New[analysis.Sentiment](cacheOpts...)
	m.RegisterCache(cache.KindEmotion, emotionCache.Stats)
	m.RegisterCache(cache.KindSentiment, sentimentCache.Stats)

	classifier := analysis.NewClassifier(scorer, emotionCache, logger,
		analysis.WithScorerTimeout(cfg.ScorerTimeout),
		analysis.WithObserver(m.ObserveClassification))
	sentiment := analysis.NewSentimentAnalyzer(sentimentCache, logger)
	selector := response.NewSelector(dbStore, logger)

	windows, closeWindows, err := newWindowStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeWindows()
	limiter := ratelimit.NewLimiter(windows, logger,
		ratelimit.WithFailOpen(cfg.RateLimitFailOpen),
		ratelimit.WithObserver(m.ObserveRateLimit))

	// Initialize services
	userService := core.NewUserService(dbStore, auth.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL), logger)
	chatService := core.NewChatService(dbStore, classifier, sentiment, selector, logger,
		core.WithReplyObserver(m.ObserveTier))
	moodService := core.NewMoodService(dbStore, mood.NewAggregator(dbStore, logger), logger)

	// Initialize API Handler and Router
	hub := api.NewHub()
	apiHandler := api.NewAPIHandler(userService, chatService, moodService, dbStore, logger)
	chatSocket := api.NewChatSocket(userService, chatService, limiter, hub, cfg.AllowedOrigins, logger)
	router := api.NewRouter(apiHandler, chatSocket, limiter, m, cfg.AllowedOrigins, logger)

	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)
	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // scorer calls can take time
		IdleTimeout:  120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("addr", serverAddr), zap.String("scorer", scorer.Name()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err, ok := <-serveErr:
		if ok {
			return fmt.Errorf("could not listen on %s: %w", serverAddr, err)
		}
	case <-ctx.Done():
	}
	logger.Info("shutting down server")

	// Give active connections time to finish.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	hub.CloseAll()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server exited gracefully")
	return nil
}

// newScorer picks the Gemini scorer when an API key is configured and the
// keyword scorer otherwise.
func newScorer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (analysis.Scorer, func(), error) {
	if cfg.GeminiAPIKey == "" {
		logger.Info("GEMINI_API_KEY not set, using keyword emotion scorer")
		return analysis.NewRuleScorer(), func() {}, nil
	}
	gemini, err := analysis.NewGeminiScorer(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.ScorerRPS, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize Gemini scorer: %w", err)
	}
	return gemini, gemini.Close, nil
}

// newWindowStore returns the configured rate window store. The in-memory
// store is swept in the background until ctx is done.
func newWindowStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (ratelimit.WindowStore, func(), error) {
	if cfg.RateLimitStore == config.RateLimitStoreRedis {
		client, err := ratelimit.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		logger.Info("using redis rate limit store")
		return ratelimit.NewRedisStore(client), func() {
			if err := client.Close(); err != nil {
				logger.Warn("failed to close redis client", zap.Error(err))
			}
		}, nil
	}

	memory := ratelimit.NewMemoryStore()
	go memory.RunSweeper(ctx, sweepInterval)
	return memory, func() {}, nil
}
