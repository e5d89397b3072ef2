package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/sportsmockery/gm-trade-engine/internal/config"
	"github.com/sportsmockery/gm-trade-engine/internal/events"
	"github.com/sportsmockery/gm-trade-engine/internal/grader"
	"github.com/sportsmockery/gm-trade-engine/internal/metrics"
	"github.com/sportsmockery/gm-trade-engine/internal/store"
	"github.com/sportsmockery/gm-trade-engine/internal/trade"
)

func main() {
	// A missing .env is fine; the environment may be set by other means.
	_ = godotenv.Load()

	cfg := config.Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		loaded, err := config.LoadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load config %s: %v\n", path, err)
			os.Exit(1)
		}
		cfg = loaded
	}
	cfg.ApplyEnv()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "err", err)
			os.Exit(1)
		}
		rdb = redis.NewClient(opt)
		cleanup = append(cleanup, func() { rdb.Close() })
	}

	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		pg := store.NewPostgresStore(pool)
		if err := pg.InitSchema(context.Background()); err != nil {
			slog.Error("schema bootstrap failed", "err", err)
			os.Exit(1)
		}
		st = pg
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if rdb != nil && cfg.Cache.TTL > 0 {
			st = store.NewCachedStore(st, rdb, cfg.Cache.TTL)
			slog.Info("Redis cache enabled", "ttl", cfg.Cache.TTL.String())
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Valuation and grading ---
	engine := cfg.NewEngine()

	var g grader.Grader
	switch cfg.Grader.Provider {
	case config.ProviderChatGPT:
		gpt, err := grader.NewChatGPT(cfg.Grader.APIKey, cfg.Grader.Model, cfg.Grader.Attempts, cfg.Grader.Backoff)
		if err != nil {
			slog.Error("chatgpt grader init failed", "err", err)
			os.Exit(1)
		}
		g = gpt
	default:
		g = grader.NewHeuristic(engine.Tables())
	}
	slog.Info("grader ready", "provider", cfg.Grader.Provider, "timeout", cfg.Grader.Timeout.String())

	// --- Event sinks ---
	wsHub := trade.NewWSHub()
	go wsHub.Run()

	sinks := []trade.Publisher{wsHub}
	if rdb != nil && cfg.Stream.Enabled {
		sinks = append(sinks, events.NewStreamPublisher(rdb, cfg.Stream.MaxLen))
		slog.Info("Redis stream publishing enabled", "max_len", cfg.Stream.MaxLen)
	}

	// --- Trade service ---
	tradeSvc := trade.NewService(st, engine, g, trade.Options{
		Policy:          cfg.Policy,
		GraderName:      cfg.Grader.Provider,
		GraderTimeout:   cfg.Grader.Timeout,
		ShareCodeLength: cfg.ShareCodeLength,
	}, sinks...)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders: []string{"Retry-After"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"gm-trade-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket feed of graded trades. Long-lived, so no request timeout.
		r.Get("/ws", wsHub.HandleWS)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(cfg.Grader.Timeout + 10*time.Second))
			tradeSvc.Routes(r)
		})
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.Grader.Timeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("gm-trade-engine listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Grader.Timeout+5*time.Second)
	defer cancel()

	slog.Info("shutting down gm-trade-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	wsHub.Close()
	fmt.Println("gm-trade-engine stopped")
}
