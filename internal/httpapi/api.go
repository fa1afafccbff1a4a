// Package httpapi is the HTTP surface of the posting engine.
package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"

	"tezoro.org/internal/auth"
	"tezoro.org/internal/fx"
	"tezoro.org/internal/ledger"
	"tezoro.org/internal/obs"
	"tezoro.org/internal/stream"
)

// ReadyProbe checks downstream readiness (a DB ping when Postgres backs
// the store).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// DailyRates serves the display-only daily middle rates.
type DailyRates interface {
	Today(ctx context.Context) (fx.DailySnapshot, error)
}

// Options carries everything the API needs beyond its defaults.
type Options struct {
	Engine    *ledger.Engine
	Tokens    *auth.Tokens
	Daily     DailyRates
	Ready     ReadyProbe
	Version   string
	IsAdmin   func(userID string) bool
	TokenTTL  time.Duration
	RateRPS   float64
	RateBurst int
	MaxBody   int64
}

type API struct {
	router   chi.Router
	engine   *ledger.Engine
	tokens   *auth.Tokens
	daily    DailyRates
	ready    ReadyProbe
	stream   *stream.Stream
	version  string
	isAdmin  func(string) bool
	tokenTTL time.Duration
	validate *validator.Validate
}

func New(opts Options) *API {
	a := &API{
		engine:   opts.Engine,
		tokens:   opts.Tokens,
		daily:    opts.Daily,
		ready:    opts.Ready,
		stream:   stream.New(),
		version:  opts.Version,
		isAdmin:  opts.IsAdmin,
		tokenTTL: opts.TokenTTL,
		validate: validator.New(),
	}
	if a.isAdmin == nil {
		a.isAdmin = func(string) bool { return false }
	}
	if a.tokenTTL <= 0 {
		a.tokenTTL = 24 * time.Hour
	}
	if opts.RateRPS <= 0 {
		opts.RateRPS = 50
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = 100
	}
	if opts.MaxBody <= 0 {
		opts.MaxBody = 1 << 20
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(Logging)
	r.Use(SecurityHeaders)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           600,
	}))
	r.Use(RateLimit(opts.RateRPS, opts.RateBurst))
	r.Use(MaxBodyBytes(opts.MaxBody))
	r.Use(obs.Instrument)
	r.Use(a.withAuth)

	r.Get("/healthz", a.healthz)
	r.Get("/readyz", a.readyz)
	r.Get("/metrics", obs.Handler().ServeHTTP)
	r.Get("/v1/info", a.info)

	r.Post("/v1/auth/token", a.issueToken)

	r.Route("/v1/accounts", func(r chi.Router) {
		r.Post("/", a.openAccount)
		r.Get("/", a.listAccounts)
		r.Get("/{id}", a.getAccount)
		r.Patch("/{id}", a.renameAccount)
		r.Delete("/{id}", a.closeAccount)
	})

	r.Route("/v1/postings", func(r chi.Router) {
		r.Post("/", a.createPosting)
		r.Get("/", a.listEntries)
		r.Get("/stream", a.streamEntries)
		r.Get("/{id}", a.getEntry)
	})

	r.Get("/v1/rates/today", a.dailyRates)

	a.router = r
	return a
}

func (a *API) Handler() http.Handler { return a.router }
