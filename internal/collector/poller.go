package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"github.com/kloudmate/jenkins-exporter/internal/models"
)

// Poller refreshes the job snapshot on a fixed interval so scrapes never wait
// on Jenkins. It serves the last snapshot that was read successfully.
type Poller struct {
	logger    *zap.Logger
	source    JobSource
	interval  time.Duration
	scheduler gocron.Scheduler

	mu         sync.RWMutex
	jobs       []models.Job
	hasJobs    bool
	refreshing bool
	lastErr    error
	refreshed  time.Time
}

func NewPoller(source JobSource, interval time.Duration, logger *zap.Logger) (*Poller, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("poll interval must be positive, got %s", interval)
	}

	scheduler, err := gocron.NewScheduler(gocron.WithLogger(schedulerLogger{logger.Sugar()}))
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	return &Poller{
		logger:    logger,
		source:    source,
		interval:  interval,
		scheduler: scheduler,
	}, nil
}

// Start runs the first refresh immediately and then once per interval. The
// job stops when ctx is cancelled or Stop is called.
func (p *Poller) Start(ctx context.Context) error {
	_, err := p.scheduler.NewJob(
		gocron.DurationJob(p.interval),
		gocron.NewTask(p.Refresh),
		gocron.WithName("jenkins-poll"),
		gocron.WithContext(ctx),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule poll job: %w", err)
	}

	p.scheduler.Start()
	p.logger.Info("Poller started", zap.Duration("interval", p.interval))
	return nil
}

func (p *Poller) Stop() error {
	return p.scheduler.Shutdown()
}

// Refresh reads a new snapshot. On failure the previous snapshot is kept.
func (p *Poller) Refresh(ctx context.Context) {
	p.mu.Lock()
	p.refreshing = true
	p.mu.Unlock()

	jobs, err := p.source.FetchJobs(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.refreshing = false
	p.lastErr = err
	if err != nil {
		p.logger.Warn("Poll failed, keeping previous snapshot",
			zap.Error(err),
			zap.Time("snapshot_time", p.refreshed))
		return
	}
	p.jobs = jobs
	p.hasJobs = true
	p.refreshed = time.Now()
}

// FetchJobs returns the current snapshot without contacting Jenkins.
func (p *Poller) FetchJobs(context.Context) ([]models.Job, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.hasJobs {
		if p.lastErr != nil {
			return nil, fmt.Errorf("%w: no snapshot yet: %w", models.ErrUpstreamUnavailable, p.lastErr)
		}
		return nil, fmt.Errorf("%w: no snapshot yet", models.ErrUpstreamUnavailable)
	}
	return p.jobs, nil
}

// Stale reports whether the snapshot may lag Jenkins: a refresh is running
// or the last one failed.
func (p *Poller) Stale() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.refreshing || p.lastErr != nil
}

type schedulerLogger struct {
	s *zap.SugaredLogger
}

func (l schedulerLogger) Debug(msg string, args ...any) { l.s.Debugw(msg, args...) }
func (l schedulerLogger) Info(msg string, args ...any)  { l.s.Infow(msg, args...) }
func (l schedulerLogger) Warn(msg string, args ...any)  { l.s.Warnw(msg, args...) }
func (l schedulerLogger) Error(msg string, args ...any) { l.s.Errorw(msg, args...) }
