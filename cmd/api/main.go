package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/splax/localpost/internal/app/migrate"
	"github.com/splax/localpost/internal/app/seed"
	httpx "github.com/splax/localpost/internal/http"
	"github.com/splax/localpost/internal/notify"
	"github.com/splax/localpost/internal/repository/postgres"
	"github.com/splax/localpost/internal/service/account"
	"github.com/splax/localpost/internal/service/mail"
	"github.com/splax/localpost/internal/service/session"
	"github.com/splax/localpost/internal/view"
	"github.com/splax/localpost/internal/ws"
	"github.com/splax/localpost/pkg/config"
	"github.com/splax/localpost/pkg/logger"
)

func main() {
	cfg := config.LoadServerConfig()
	log := logger.New("api", logger.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	runner, err := migrate.New(pool, cfg.DatabaseURL, cfg.MigrationsDir, log)
	if err != nil {
		log.Error("failed to configure migrations", "error", err)
		os.Exit(1)
	}
	defer runner.Close()
	if err := runner.Ping(ctx); err != nil {
		log.Error("database ping failed", "error", err)
		os.Exit(1)
	}
	if err := runner.Ensure(ctx); err != nil {
		log.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	repo := postgres.New(pool)

	if cfg.SeedSampleData {
		if err := seed.Ensure(ctx, repo, repo, log); err != nil {
			log.Error("sample data seeding failed", "error", err)
			os.Exit(1)
		}
	}

	var notifier notify.Notifier = notify.NewLogNotifier(log)
	if strings.TrimSpace(cfg.NotifyIMAPHost) != "" {
		imapNotifier, err := notify.NewIMAPNotifier(notify.IMAPOptions{
			Host:               cfg.NotifyIMAPHost,
			Port:               cfg.NotifyIMAPPort,
			Username:           cfg.NotifyIMAPUser,
			Password:           cfg.NotifyIMAPPass,
			Mailbox:            cfg.NotifyIMAPMailbox,
			UseTLS:             cfg.NotifyIMAPUseTLS,
			InsecureSkipVerify: cfg.NotifyIMAPInsecure,
		}, log)
		if err != nil {
			log.Warn("imap notifier unavailable, falling back to log delivery", "error", err)
		} else {
			notifier = imapNotifier
		}
	}

	hub := ws.NewHub()
	defer hub.Close()

	accountSvc := account.New(repo, notifier, log, cfg.BaseURL, cfg.NotifySender)
	mailSvc := mail.New(repo, repo, notifier, hub, log)

	sessionStore := session.NewMemoryStore()
	if addr := strings.TrimSpace(cfg.SessionRedisAddr); addr != "" {
		redisStore, err := session.NewRedisStore(addr, cfg.SessionRedisPass, cfg.SessionRedisDB, log)
		if err != nil {
			log.Warn("redis session store unavailable, using in-process store", "error", err)
		} else {
			sessionStore.Close()
			sessionStore = redisStore
		}
	}
	sessionMgr := session.NewManager(accountSvc, sessionStore, log, cfg.SessionSecret, cfg.SessionTTL)
	defer sessionMgr.Close()

	renderer, err := view.NewRenderer()
	if err != nil {
		log.Error("template parsing failed", "error", err)
		os.Exit(1)
	}

	var limiter httpx.RateLimiter
	if addr := strings.TrimSpace(cfg.SessionRedisAddr); addr != "" {
		redisLimiter, err := httpx.NewRedisRateLimiter(addr, cfg.SessionRedisPass, cfg.SessionRedisDB, log)
		if err != nil {
			log.Warn("redis rate limiter unavailable, using in-process limiter", "error", err)
		} else {
			limiter = redisLimiter
		}
	}

	router := httpx.NewRouter(log, accountSvc, mailSvc, sessionMgr, renderer, limiter, cfg.CookieName, cfg.CookieSecure, pool.Ping)
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("web server starting", "addr", cfg.Addr, "base_url", cfg.BaseURL)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("web server stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}
