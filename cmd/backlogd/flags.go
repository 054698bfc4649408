package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/xraph/backlog"
)

// settings is the daemon configuration. Every flag falls back to a
// BACKLOG_* environment variable, then to the library default.
type settings struct {
	addr        string
	redisAddr   string
	archivePath string
	logLevel    string
	logFormat   string
	maxUpload   int64

	concurrency     int
	jobTimeout      time.Duration
	maxQueueDepth   int
	resultTTL       time.Duration
	cleanupInterval time.Duration
	baseRetryDelay  time.Duration
	defaultEstimate time.Duration
	averageWindow   time.Duration
	shutdownTimeout time.Duration
	submitRateLimit float64
	submitBurst     int
}

func parseSettings(args []string) (settings, error) {
	def := backlog.DefaultConfig()
	var s settings

	fs := flag.NewFlagSet("backlogd", flag.ContinueOnError)
	fs.StringVar(&s.addr, "addr", envOr("BACKLOG_ADDR", ":8080"), "HTTP listen address")
	fs.StringVar(&s.redisAddr, "redis-addr", envOr("BACKLOG_REDIS_ADDR", ""), "Redis address for the status mirror (empty disables)")
	fs.StringVar(&s.archivePath, "archive", envOr("BACKLOG_ARCHIVE", ""), "SQLite file for the job archive (empty disables)")
	fs.StringVar(&s.logLevel, "log-level", envOr("BACKLOG_LOG_LEVEL", "info"), "debug|info|warn|error")
	fs.StringVar(&s.logFormat, "log-format", envOr("BACKLOG_LOG_FORMAT", "text"), "text|json")
	fs.Int64Var(&s.maxUpload, "max-upload-bytes", envInt64("BACKLOG_MAX_UPLOAD_BYTES", 32<<20), "maximum multipart request size")

	fs.IntVar(&s.concurrency, "concurrency", envInt("BACKLOG_CONCURRENCY", def.Concurrency), "jobs processed at once")
	fs.DurationVar(&s.jobTimeout, "job-timeout", envDuration("BACKLOG_JOB_TIMEOUT", def.JobTimeout), "per-attempt timeout")
	fs.IntVar(&s.maxQueueDepth, "max-queue-depth", envInt("BACKLOG_MAX_QUEUE_DEPTH", def.MaxQueueDepth), "pending jobs before submissions are rejected")
	fs.DurationVar(&s.resultTTL, "result-ttl", envDuration("BACKLOG_RESULT_TTL", def.ResultTTL), "how long results stay retrievable")
	fs.DurationVar(&s.cleanupInterval, "cleanup-interval", envDuration("BACKLOG_CLEANUP_INTERVAL", def.CleanupInterval), "expired result sweep interval")
	fs.DurationVar(&s.baseRetryDelay, "retry-delay", envDuration("BACKLOG_RETRY_DELAY", def.BaseRetryDelay), "base retry backoff")
	fs.DurationVar(&s.defaultEstimate, "default-estimate", envDuration("BACKLOG_DEFAULT_ESTIMATE", def.DefaultProcessingEstimate), "processing estimate before any job completes")
	fs.DurationVar(&s.averageWindow, "average-window", envDuration("BACKLOG_AVERAGE_WINDOW", def.AverageWindow), "window of completions used for wait estimates")
	fs.DurationVar(&s.shutdownTimeout, "shutdown-timeout", envDuration("BACKLOG_SHUTDOWN_TIMEOUT", def.ShutdownTimeout), "grace period for in-flight jobs")
	fs.Float64Var(&s.submitRateLimit, "rate-limit", envFloat("BACKLOG_RATE_LIMIT", 0), "submissions per second (0 disables)")
	fs.IntVar(&s.submitBurst, "rate-burst", envInt("BACKLOG_RATE_BURST", 0), "submission burst")

	if err := fs.Parse(args); err != nil {
		return settings{}, err
	}
	return s, nil
}

// config builds the scheduler configuration.
func (s settings) config() (backlog.Config, error) {
	cfg, err := backlog.NewConfig(
		backlog.WithConcurrency(s.concurrency),
		backlog.WithJobTimeout(s.jobTimeout),
		backlog.WithMaxQueueDepth(s.maxQueueDepth),
		backlog.WithResultTTL(s.resultTTL),
		backlog.WithCleanupInterval(s.cleanupInterval),
		backlog.WithBaseRetryDelay(s.baseRetryDelay),
		backlog.WithDefaultProcessingEstimate(s.defaultEstimate),
		backlog.WithAverageWindow(s.averageWindow),
		backlog.WithShutdownTimeout(s.shutdownTimeout),
		backlog.WithSubmitRateLimit(s.submitRateLimit, s.submitBurst),
	)
	if err != nil {
		return backlog.Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
