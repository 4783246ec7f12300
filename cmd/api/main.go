package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"entgate.dev/internal/access"
	"entgate.dev/internal/account"
	"entgate.dev/internal/config"
	"entgate.dev/internal/httpapi"
	"entgate.dev/internal/log"
	"entgate.dev/internal/model"
	"entgate.dev/internal/obs"
	"entgate.dev/internal/repo"
	"entgate.dev/internal/scopes"
	"entgate.dev/internal/session"
	"entgate.dev/internal/store/pg"
)

var version = "0.3.1"

func main() {
	cfg, err := config.Load(os.Getenv("ENTGATE_CONFIG"))
	if err != nil {
		log.Setup("json", "info")
		log.Error(context.Background(), "load config", log.Err(err))
		os.Exit(1)
	}
	if err := log.Setup(cfg.LogFormat, cfg.LogLevel); err != nil {
		os.Exit(1)
	}
	obs.Init()

	ctx := context.Background()

	reg := model.BuiltinRegistry()
	if err := reg.Validate(); err != nil {
		log.Error(ctx, "invalid model graph", log.Err(err))
		os.Exit(1)
	}

	// Storage: Postgres when a DSN is configured, in-memory otherwise.
	var (
		repos     scopes.Repos
		usersRepo access.Repository
		db        *sql.DB
	)
	if cfg.PGDSN != "" {
		store, err := pg.Open(cfg.PGDSN, reg)
		if err != nil {
			log.Error(ctx, "open db", log.Err(err))
			os.Exit(1)
		}
		defer store.Close()
		if err := store.Migrate(ctx); err != nil {
			log.Error(ctx, "migrate", log.Err(err))
			os.Exit(1)
		}
		repos = store
		usersRepo = store.Repo("User")
		db = store.DB()
	} else {
		pool := repo.NewPool(reg)
		repos = pool
		usersRepo = pool.Repo("User")
	}

	if err := scopes.EnsureBuiltins(ctx, repos); err != nil {
		log.Error(ctx, "seed permissions", log.Err(err))
		os.Exit(1)
	}

	// Session KV: memory or redis per config.
	var sessKV, codeKV session.KV
	switch cfg.Session.Store {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.Session.RedisAddr})
		sessKV = session.NewRedisKV(client, "sess:")
		codeKV = session.NewRedisKV(client, "code:")
	default:
		sessKV = session.NewMemoryKV(time.Minute)
		codeKV = session.NewMemoryKV(time.Minute)
	}

	accountsStore := account.NewRepoStore(usersRepo)
	dir := scopes.NewDirectory(accountsStore, repos)

	opts := []session.Option{
		session.WithTTL(cfg.Session.TTL),
		session.WithCodeTTL(cfg.Session.CodeTTL),
	}
	if cfg.Session.TokenSecret != "" {
		opts = append(opts, session.WithTokenProvider(session.JWTTokenProvider{
			Secret: []byte(cfg.Session.TokenSecret),
			Issuer: "entgate",
		}))
	}
	sessions := session.NewService(sessKV, codeKV, dir, opts...)
	accounts := account.NewService(accountsStore, sessions, account.LogMailer{})

	gen := access.NewGenerator(reg)
	var ops []access.Operation
	for _, root := range scopes.DefaultRoots(repos) {
		ops = append(ops, gen.Build(root.Model, root.Scope, root.BasePath)...)
	}

	api := httpapi.New(sessions, accounts, ops, httpapi.ReadyProbe{DB: db}, version)

	handler := api.Handler()
	handler = httpapi.RateLimit(handler, cfg.RateLimitBurst, cfg.RateLimitPerSecond)
	handler = httpapi.MaxBodyBytes(handler, cfg.MaxBodyBytes)
	handler = httpapi.SecurityHeaders(handler)
	handler = httpapi.Logging(handler)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Info(ctx, "starting entgate-api",
		log.String("version", version),
		log.String("addr", srv.Addr),
	)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(ctx, "listen", log.Err(err))
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Info(ctx, "shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(shutdownCtx)
	log.Info(ctx, "stopped")
}
