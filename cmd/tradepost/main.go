package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"tradepost/internal/config"
	"tradepost/internal/dedupe"
	"tradepost/internal/gateway"
	"tradepost/internal/http/handlers"
	applog "tradepost/internal/log"
	"tradepost/internal/metrics"
	"tradepost/internal/notify"
	"tradepost/internal/repos"
)

// webhook de-duplication window
const dedupeTTL = 24 * time.Hour

func main() {
	if err := run(); err != nil {
		applog.Error(nil, "server.exit", err, nil)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Optional file logging
	var out io.Writer = os.Stdout
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			applog.Error(nil, "log.file.open", err, map[string]any{"path": cfg.LogFile})
		} else {
			defer f.Close()
			out = io.MultiWriter(os.Stdout, f)
		}
	}
	applog.Setup(cfg.LogLevel, out)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := repos.OpenDB(cfg.DBDSN)
	if err != nil {
		return err
	}
	defer db.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	var guard *dedupe.Guard
	if cfg.RedisURL != "" {
		rdb, err := dedupe.Open(ctx, cfg.RedisURL)
		if err != nil {
			// webhooks still work without redis, only duplicates get reprocessed
			applog.Error(nil, "redis.unavailable", err, nil)
		} else {
			defer rdb.Close()
			guard = dedupe.New(rdb, dedupeTTL)
		}
	}

	deps, err := handlers.NewDeps(db, handlers.External{
		Gateway: gateway.New(cfg.Payment, cfg.HTTPClientTimeout, m),
		Mail:    notify.NewSender(cfg.Mail, cfg.HTTPClientTimeout),
		Guard:   guard,
		Metrics: m,
	})
	if err != nil {
		return err
	}
	app := handlers.NewApp(deps, handlers.AppConfig{
		MediaDir:      cfg.MediaDir,
		Gatherer:      reg,
		SecureCookies: cfg.CookieSecure,
		AccessLog:     true,
	})

	errc := make(chan error, 1)
	go func() {
		applog.Info(nil, "server.listen", map[string]any{"port": cfg.Port})
		errc <- app.Listen(":" + cfg.Port)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	applog.Info(nil, "server.shutdown", nil)
	return app.ShutdownWithTimeout(10 * time.Second)
}
