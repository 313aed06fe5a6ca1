// Package scheduler runs periodic maintenance tasks on their own tickers.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var (
	ErrAlreadyRunning = errors.New("scheduler already running")
	ErrInvalidTask    = errors.New("invalid task")
)

type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
	// Run once immediately instead of waiting for the first tick
	RunOnStart bool
}

// Scheduler never runs two iterations of the same task concurrently. A
// failing iteration is logged and the task keeps its schedule.
type Scheduler struct {
	mu      sync.Mutex
	tasks   []Task
	cancel  context.CancelFunc
	group   *errgroup.Group
	running bool
}

func New() *Scheduler {
	return &Scheduler{}
}

// Add registers a task. Tasks added while running start on the next Start.
func (s *Scheduler) Add(task Task) error {
	if task.Name == "" || task.Run == nil {
		return fmt.Errorf("%w: name and run function are required", ErrInvalidTask)
	}
	if task.Interval <= 0 {
		return fmt.Errorf("%w: %s interval must be positive", ErrInvalidTask, task.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.tasks = append(s.tasks, task)

	return nil
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	group, ctx := errgroup.WithContext(ctx)
	for _, task := range s.tasks {
		group.Go(func() error {
			loop(ctx, task)

			return nil
		})
	}

	s.cancel = cancel
	s.group = group
	s.running = true

	return nil
}

// Stop cancels every task and waits for in-flight iterations. The scheduler
// can be started again afterwards.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()

		return
	}
	cancel, group := s.cancel, s.group
	s.running = false
	s.mu.Unlock()

	cancel()
	_ = group.Wait()
}

func loop(ctx context.Context, task Task) {
	logger := log.WithField("task", task.Name)
	logger.Debugf("scheduled every %s", task.Interval)

	if task.RunOnStart {
		runOnce(ctx, task, logger)
	}

	ticker := time.NewTicker(task.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Debug("stopped")

			return
		case <-ticker.C:
			runOnce(ctx, task, logger)
		}
	}
}

func runOnce(ctx context.Context, task Task, logger *log.Entry) {
	start := time.Now()
	err := task.Run(ctx)
	switch {
	case err == nil:
		logger.WithField("took", time.Since(start)).Debug("task completed")
	case ctx.Err() != nil:
		logger.WithError(err).Debug("task interrupted by shutdown")
	default:
		logger.WithError(err).Error("task failed")
	}
}
