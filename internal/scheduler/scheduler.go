// Package scheduler drives the recurring re-announcement of approved
// submissions. A single process-wide timer; winner selection stays a
// moderator action.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	errMissingBroadcaster = errors.New("scheduler: broadcaster is required")
	errInvalidInterval    = errors.New("scheduler: interval must be positive")
)

// Broadcaster re-opens voting by re-posting every approved submission.
type Broadcaster interface {
	ReopenVoting(ctx context.Context) (int, error)
}

// Config bundles the scheduler dependencies.
type Config struct {
	Interval    time.Duration
	Broadcaster Broadcaster
	Logger      *zap.Logger
}

// Scheduler fires the voting broadcast on a fixed cadence. Start is
// single-shot; a restarted process simply begins a fresh interval.
type Scheduler struct {
	interval    time.Duration
	broadcaster Broadcaster
	logger      *zap.Logger

	mu      sync.Mutex
	started bool
	done    chan struct{}
}

// New constructs a scheduler with validated configuration.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Broadcaster == nil {
		return nil, errMissingBroadcaster
	}
	if cfg.Interval <= 0 {
		return nil, errInvalidInterval
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Scheduler{
		interval:    cfg.Interval,
		broadcaster: cfg.Broadcaster,
		logger:      logger,
	}, nil
}

// Start launches the timer goroutine. Calling Start again while running is a
// no-op so the process cannot double-schedule.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.run(ctx)
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("voting scheduler started", zap.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("voting scheduler stopped")
			return
		case <-ticker.C:
			posted, err := s.broadcaster.ReopenVoting(ctx)
			if err != nil {
				s.logger.Error("voting broadcast failed", zap.Error(err), zap.Int("posted", posted))
				continue
			}
			s.logger.Info("voting broadcast complete", zap.Int("posted", posted))
		}
	}
}

// Wait blocks until the timer goroutine has exited after context cancellation.
func (s *Scheduler) Wait() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}
