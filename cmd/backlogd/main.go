// Command backlogd serves the backlog scheduler over HTTP with an image
// optimization processor bound to uploads.
//
//	backlogd -addr :8080 -concurrency 4 -redis-addr localhost:6379 -archive backlog.db
//
// Every flag can also be set through a BACKLOG_* environment variable
// (BACKLOG_CONCURRENCY, BACKLOG_JOB_TIMEOUT, ...).
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/xraph/backlog/api"
	"github.com/xraph/backlog/archive/sqlite"
	redismirror "github.com/xraph/backlog/mirror/redis"
	"github.com/xraph/backlog/optimize"
	"github.com/xraph/backlog/scheduler"
	"github.com/xraph/backlog/stream"
)

func main() {
	s, err := parseSettings(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}
	logger := newLogger(s.logLevel, s.logFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, s, logger); err != nil {
		logger.Error("backlogd exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, s settings, logger *slog.Logger) error {
	cfg, err := s.config()
	if err != nil {
		return err
	}

	broker := stream.NewBroker(logger)
	opts := []scheduler.Option{
		scheduler.WithLogger(logger),
		scheduler.WithExtension(broker),
	}

	if s.redisAddr != "" {
		client := goredis.NewClient(&goredis.Options{Addr: s.redisAddr})
		defer client.Close()

		mirror := redismirror.New(client, cfg.ResultTTL, redismirror.WithLogger(logger))
		if err := mirror.Ping(ctx); err != nil {
			return fmt.Errorf("redis mirror: %w", err)
		}
		opts = append(opts, scheduler.WithExtension(mirror))
		logger.Info("status mirror enabled", slog.String("redis_addr", s.redisAddr))
	}

	if s.archivePath != "" {
		db, err := sql.Open("sqlite", s.archivePath)
		if err != nil {
			return fmt.Errorf("open archive: %w", err)
		}
		defer db.Close()

		archive := sqlite.New(db, sqlite.WithLogger(logger))
		if err := archive.Migrate(ctx); err != nil {
			return err
		}
		opts = append(opts, scheduler.WithExtension(archive))
		logger.Info("job archive enabled", slog.String("path", s.archivePath))
	}

	sched, err := scheduler.New(cfg, opts...)
	if err != nil {
		return err
	}
	if err := sched.Start(ctx); err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	handler := api.New(sched, optimize.New(),
		api.WithBroker(broker),
		api.WithLogger(logger),
		api.WithMaxUploadBytes(s.maxUpload),
	).Handler()

	srv := &http.Server{
		Addr:              s.addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("http server listening", slog.String("addr", s.addr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout+5*time.Second)
		defer cancel()

		// The scheduler goes first: it closes event subscribers, which
		// lets streaming requests finish before the server drains.
		report, err := sched.Shutdown(shutdownCtx)
		if err != nil {
			logger.Warn("scheduler shutdown", slog.String("error", err.Error()))
		}
		logger.Info("scheduler stopped",
			slog.Int("abandoned", report.Abandoned),
			slog.Int("pending", report.Pending),
			slog.Int("delayed", report.Delayed),
		)

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

func newLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
