package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"admin-auth/internal/audit"
	"admin-auth/internal/auth"
	"admin-auth/internal/config"
	"admin-auth/internal/federation"
	"admin-auth/internal/httpapi"
	"admin-auth/internal/identity"
	"admin-auth/internal/login"
	"admin-auth/internal/password"
	"admin-auth/internal/throttle"
	"admin-auth/pkg/logger"
	"admin-auth/pkg/utils"

	"github.com/gin-gonic/gin"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(rootCtx, stop, cfg, log); err != nil {
		log.Error("api exited", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stop context.CancelFunc, cfg config.Config, log *slog.Logger) error {
	codec, err := auth.NewCodec(cfg.Auth)
	if err != nil {
		return err
	}
	hasher, err := password.NewHasher(cfg.Auth.BcryptCost)
	if err != nil {
		return err
	}

	deps := login.Deps{Codec: codec, Hasher: hasher}
	var accounts identity.Store
	var auditSvc *audit.Service

	switch cfg.Store.Driver {
	case config.StoreDriverMemory:
		log.Warn("using in-memory account store; data is lost on restart")
		accounts = identity.NewMemoryStore()
		auditSvc = audit.NewService(audit.NewMemoryRepo())
	default:
		db, err := utils.OpenPostgres(ctx, cfg.PostgresDSN(), utils.PostgresPoolConfig{})
		if err != nil {
			return err
		}
		defer db.Close()
		accounts = identity.NewPostgresStore(db)
		auditSvc = audit.NewService(audit.NewPostgresRepo(db))
	}
	deps.Store = accounts
	deps.Events = auditSvc

	if err := seedAdmin(ctx, accounts, hasher, cfg.Bootstrap, log); err != nil {
		return err
	}

	if cfg.Login.MaxAttempts > 0 {
		rdb, err := utils.OpenRedis(ctx, utils.RedisConfig{Addr: cfg.RedisAddr(), Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err != nil {
			return err
		}
		defer rdb.Close()
		limiter, err := throttle.NewLoginThrottle(rdb, cfg.Login.MaxAttempts, cfg.Login.Window)
		if err != nil {
			return err
		}
		deps.Limiter = limiter
	}

	var consent httpapi.ConsentURLBuilder
	if cfg.FederationEnabled() {
		google, err := federation.NewGoogleExchange(cfg.Google)
		if err != nil {
			return err
		}
		deps.Exchange = google
		consent = google
	}

	svc, err := login.NewService(deps)
	if err != nil {
		return err
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, httpapi.Handlers{
		Auth:     svc,
		Accounts: accounts,
		Audit:    auditSvc,
		Consent:  consent,
	}, auth.Authenticate(codec))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env,
			"store", cfg.Store.Driver, "federation", cfg.FederationEnabled(), "login_limit", cfg.Login.MaxAttempts,
			"access_ttl", codec.AccessTTL(), "refresh_ttl", codec.RefreshTTL())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
	return nil
}
