package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/i474232898/city-weather/internal/metrics"
	"github.com/i474232898/city-weather/internal/store"
)

// pruneTimeout bounds a single prune run.
const pruneTimeout = 30 * time.Second

// Janitor periodically removes cache entries older than maxAge. The fetch
// path never prunes; only serve mode runs a Janitor.
type Janitor struct {
	scheduler *gocron.Scheduler
	cache     store.Store
	maxAge    time.Duration
	interval  time.Duration
	logger    *slog.Logger
	metrics   *metrics.Collector
	now       func() time.Time
}

// New creates a new Janitor. A nil logger uses slog.Default().
func New(cache store.Store, maxAge, interval time.Duration, logger *slog.Logger, m *metrics.Collector) *Janitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Janitor{
		scheduler: gocron.NewScheduler(time.UTC),
		cache:     cache,
		maxAge:    maxAge,
		interval:  interval,
		logger:    logger,
		metrics:   m,
		now:       time.Now,
	}
}

// Start schedules the prune job and starts the underlying scheduler. The
// first run happens immediately.
func (j *Janitor) Start() error {
	if j.maxAge <= 0 || j.interval <= 0 {
		return errors.New("janitor: max age and interval must be positive")
	}

	_, err := j.scheduler.Every(j.interval).SingletonMode().Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), pruneTimeout)
		defer cancel()

		if _, err := j.RunOnce(ctx); err != nil {
			j.logger.Warn("cache prune failed", "error", err)
		}
	})
	if err != nil {
		return err
	}

	j.scheduler.StartAsync()
	j.logger.Info("cache janitor started", "interval", j.interval, "max_age", j.maxAge)
	return nil
}

// RunOnce prunes entries fetched more than maxAge ago and returns how many
// were removed.
func (j *Janitor) RunOnce(ctx context.Context) (int, error) {
	cutoff := j.now().Add(-j.maxAge)
	n, err := j.cache.Prune(ctx, cutoff)
	if n > 0 {
		j.metrics.RecordPruned(n)
	}
	if err != nil {
		return n, err
	}
	j.logger.Debug("cache pruned", "removed", n, "cutoff", cutoff)
	return n, nil
}

// Stop stops the scheduler and cancels any future runs.
func (j *Janitor) Stop() {
	if j.scheduler != nil {
		j.scheduler.Stop()
	}
}
