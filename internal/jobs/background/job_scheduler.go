package background

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/harrissondutra/fitOS-sub014/internal/logging"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

const (
	TenantCacheWarmJob  = "tenant-cache-warm"
	DefaultWarmInterval = 2 * time.Minute
)

// Warmer preloads the tenant resolver cache.
type Warmer interface {
	Warm(ctx context.Context) (int, error)
}

// JobScheduler runs the gateway's periodic maintenance jobs.
type JobScheduler struct {
	scheduler gocron.Scheduler
	warmer    Warmer
	interval  time.Duration
	logger    *zap.Logger
	jobs      map[string]gocron.Job
	mu        sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
}

// NewJobScheduler creates a scheduler that warms the resolver every interval.
func NewJobScheduler(warmer Warmer, interval time.Duration, logger *zap.Logger) (*JobScheduler, error) {
	if interval <= 0 {
		interval = DefaultWarmInterval
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	js := &JobScheduler{
		scheduler: scheduler,
		warmer:    warmer,
		interval:  interval,
		logger:    logging.OrNop(logger),
		jobs:      make(map[string]gocron.Job),
		ctx:       ctx,
		cancel:    cancel,
	}

	if err := js.registerJobs(); err != nil {
		cancel()
		_ = scheduler.Shutdown()
		return nil, err
	}
	return js, nil
}

// Start starts the job scheduler
func (js *JobScheduler) Start() {
	js.logger.Info("starting background job scheduler", zap.Strings("jobs", js.JobNames()))
	js.scheduler.Start()
}

// Stop cancels running jobs and waits for them to return.
func (js *JobScheduler) Stop() error {
	js.logger.Info("stopping background job scheduler")
	js.cancel()
	return js.scheduler.Shutdown()
}

// RunNow triggers a registered job outside its schedule.
func (js *JobScheduler) RunNow(name string) error {
	js.mu.RLock()
	job, ok := js.jobs[name]
	js.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown job %q", name)
	}
	return job.RunNow()
}

func (js *JobScheduler) JobNames() []string {
	js.mu.RLock()
	defer js.mu.RUnlock()
	names := make([]string, 0, len(js.jobs))
	for name := range js.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (js *JobScheduler) registerJobs() error {
	// A warm that outlasts the interval is skipped rather than stacked.
	warmJob, err := js.scheduler.NewJob(
		gocron.DurationJob(js.interval),
		gocron.NewTask(js.warmTenantCache, js.ctx),
		gocron.WithName(TenantCacheWarmJob),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("failed to create %s job: %w", TenantCacheWarmJob, err)
	}

	js.mu.Lock()
	js.jobs[TenantCacheWarmJob] = warmJob
	js.mu.Unlock()
	return nil
}

func (js *JobScheduler) warmTenantCache(ctx context.Context) error {
	start := time.Now()
	warmed, err := js.warmer.Warm(ctx)
	if err != nil {
		js.logger.Warn("tenant cache warm failed", zap.Error(err))
		return err
	}
	js.logger.Debug("tenant cache warmed",
		zap.Int("tenants", warmed),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}
