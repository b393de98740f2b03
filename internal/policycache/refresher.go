package policycache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"holiday-policy-bot/internal/domain"
)

// DefaultInterval is how often the policy page is re-read in the background.
const DefaultInterval = 6 * time.Hour

// Fetcher produces policy text, returning domain.PolicyUnavailable on failure.
type Fetcher interface {
	Fetch(ctx context.Context) string
}

// Refresher periodically re-fetches the policy page into a Cache. A failed
// fetch never replaces the cached value.
type Refresher struct {
	cache    *Cache
	fetcher  Fetcher
	interval time.Duration
	logger   *slog.Logger
	cron     *cron.Cron
}

// NewRefresher creates a stopped refresher. A non-positive interval selects
// DefaultInterval.
func NewRefresher(cache *Cache, fetcher Fetcher, interval time.Duration, logger *slog.Logger) (*Refresher, error) {
	if cache == nil {
		return nil, errors.New("policycache: cache must not be nil")
	}
	if fetcher == nil {
		return nil, errors.New("policycache: fetcher must not be nil")
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	cronLog := cronLogger{logger: logger}
	r := &Refresher{
		cache:    cache,
		fetcher:  fetcher,
		interval: interval,
		logger:   logger,
		cron: cron.New(
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		),
	}
	r.cron.Schedule(cron.Every(interval), cron.FuncJob(func() {
		r.RefreshNow(context.Background())
	}))
	return r, nil
}

// Start begins the periodic refresh.
func (r *Refresher) Start() {
	r.logger.Info("policy refresh scheduled", "interval", r.interval.String())
	r.cron.Start()
}

// Stop halts the schedule and waits for a running refresh to complete.
func (r *Refresher) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
}

// RefreshNow fetches the policy once and commits it when the fetch
// succeeded. It reports whether the cache was updated.
func (r *Refresher) RefreshNow(ctx context.Context) bool {
	text := r.fetcher.Fetch(ctx)
	if !domain.PolicyUsable(text) {
		r.logger.Warn("policy refresh failed, keeping cached policy")
		return false
	}
	r.cache.Set(text)
	r.logger.Info("policy refreshed", "chars", len([]rune(text)))
	return true
}

// cronLogger adapts slog to the cron.Logger interface.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append([]interface{}{"err", err}, keysAndValues...)...)
}
