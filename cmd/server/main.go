package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	httpapi "crmdash/internal/http"
	"crmdash/internal/platform/config"
	"crmdash/internal/platform/httpserver"
	"crmdash/internal/platform/logger"
	platformmetrics "crmdash/internal/platform/metrics"
	platformredis "crmdash/internal/platform/redis"
	ratelimithandler "crmdash/internal/ratelimit/handler"
	ratelimitmetrics "crmdash/internal/ratelimit/metrics"
	ratelimitmw "crmdash/internal/ratelimit/middleware"
	"crmdash/internal/ratelimit/models"
	"crmdash/internal/ratelimit/service/health"
	"crmdash/internal/ratelimit/service/requestlimit"
	"crmdash/internal/ratelimit/store/window"
	"crmdash/internal/session"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// process lifecycle in one errgroup. Business logic lives in internal packages.
func main() {
	devToken := flag.String("dev-token", "", "print a session token for userId:companyId signed with JWT_SECRET_KEY_CALL and exit")
	resetKey := flag.String("reset-key", "", "delete the shared window for tier:identifier (e.g. auth:1.2.3.4) and exit")
	flag.Parse()

	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if *devToken != "" {
		if err := printDevToken(cfg.SessionSecret, *devToken); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	if *resetKey != "" {
		if err := resetWindow(cfg, *resetKey); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	if err := run(cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cfg config.Server) error {
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := platformredis.New(ctx, cfg.Redis, log)
	if err != nil {
		return err
	}
	defer client.Close()

	reg := platformmetrics.NewRegistry()
	m := ratelimitmetrics.New(reg)

	shared, err := window.NewRedisStore(client,
		window.WithLogger(log),
		window.WithMetrics(m),
	)
	if err != nil {
		return err
	}
	fallback := window.NewInMemoryStore(window.WithMemoryLogger(log))
	monitor, err := health.New(client,
		health.WithLogger(log),
		health.WithMetrics(m),
	)
	if err != nil {
		return err
	}
	svc, err := requestlimit.New(shared, fallback, monitor,
		requestlimit.WithLogger(log),
		requestlimit.WithMetrics(m),
	)
	if err != nil {
		return err
	}

	tokens := session.NewTokenService(cfg.SessionSecret)
	if !tokens.Configured() {
		log.Warn("JWT_SECRET_KEY_CALL not set; every caller will be limited as anonymous")
	}

	router := httpapi.NewRouter(httpapi.Deps{
		RateLimit: ratelimitmw.New(svc, ratelimitmw.NewContextExtractor(tokens, log), log,
			ratelimitmw.WithDisabled(cfg.RateLimitDisabled),
		),
		Handler: ratelimithandler.New(svc, monitor, log),
		Metrics: platformmetrics.Handler(reg),
	})
	srv := httpserver.New(cfg.Addr, router)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpserver.Run(ctx, srv, log)
	})
	g.Go(func() error {
		return fallback.Run(ctx)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server stopped: %w", err)
	}
	log.Info("shutdown complete")
	return nil
}

// resetWindow clears one client's shared window, for support cases such as a
// user locked out of login after a password reset.
func resetWindow(cfg config.Server, raw string) error {
	key, err := models.ParseRateLimitKey(raw)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	client, err := platformredis.New(ctx, cfg.Redis, log)
	if err != nil {
		return err
	}
	defer client.Close()

	shared, err := window.NewRedisStore(client, window.WithLogger(log))
	if err != nil {
		return err
	}
	if err := shared.Reset(ctx, key); err != nil {
		return err
	}
	log.Info("rate limit window reset", "key", key.String())
	return nil
}

func printDevToken(secret, ids string) error {
	userID, companyID, ok := strings.Cut(ids, ":")
	if !ok || userID == "" || companyID == "" {
		return fmt.Errorf("-dev-token expects userId:companyId, got %q", ids)
	}
	token, err := session.NewTokenService(secret).Issue(userID, companyID, 24*time.Hour)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
