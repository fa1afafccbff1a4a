package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"

	"tezoro.org/internal/auth"
	"tezoro.org/internal/config"
	"tezoro.org/internal/fx"
	"tezoro.org/internal/httpapi"
	"tezoro.org/internal/ledger"
	"tezoro.org/internal/obs"
	"tezoro.org/internal/store/pg"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	obs.Init()
	obs.InitBuildInfo(version, commit)

	if cfg.AuthSecret == "" {
		log.Fatal("AUTH_SECRET is required")
	}
	tokens, err := auth.NewTokens(cfg.AuthSecret)
	if err != nil {
		log.Fatalf("auth: %v", err)
	}

	var (
		store ledger.Store
		probe httpapi.ReadyProbe
	)
	if cfg.PostgresDSN != "" {
		pgStore, err := pg.Open(cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("open postgres: %v", err)
		}
		defer pgStore.Close()
		store = pgStore
		probe = httpapi.ReadyProbe{DB: pgStore.DB()}
	} else {
		log.Print("POSTGRES_DSN not set, using in-memory store")
		mem := ledger.NewInMemory()
		mem.AddCategory("misc", "Miscellaneous")
		store = mem
	}

	var cache fx.Cache
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
		cache = fx.NewRedisCache(rdb)
	} else {
		cache = fx.NewMemoryCache()
	}

	var clientOpts []fx.ClientOption
	if cfg.FXBaseURL != "" {
		clientOpts = append(clientOpts, fx.WithBaseURL(cfg.FXBaseURL))
	}
	rates := fx.NewProvider(fx.NewClient(cfg.FXAPIKey, clientOpts...), cache,
		fx.WithFallbackTTL(cfg.FXCacheTTL))

	engine := ledger.NewEngine(store, rates)

	api := httpapi.New(httpapi.Options{
		Engine:    engine,
		Tokens:    tokens,
		Daily:     fx.NewDailyClient(),
		Ready:     probe,
		Version:   version,
		IsAdmin:   cfg.IsAdmin,
		TokenTTL:  cfg.TokenTTL,
		RateRPS:   cfg.RateLimitRPS,
		RateBurst: cfg.RateLimitBurst,
		MaxBody:   cfg.MaxBodyBytes,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}

	log.Printf("Starting tezoro-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	log.Println("Stopped")
}
