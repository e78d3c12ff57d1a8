package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"foodhub/internal/logger"
)

const (
	defaultMinBackoff = time.Second
	defaultMaxBackoff = 30 * time.Second
)

// Runner keeps a blocking consume loop alive, restarting it with
// exponential backoff until its context is cancelled.
type Runner struct {
	name       string
	consume    func(ctx context.Context) error
	logger     *logger.Logger
	minBackoff time.Duration
	maxBackoff time.Duration

	running  atomic.Bool
	mu       sync.Mutex
	lastErr  error
	restarts int
}

// NewRunner creates a runner for consume
func NewRunner(name string, consume func(ctx context.Context) error, log *logger.Logger) *Runner {
	return &Runner{
		name:       name,
		consume:    consume,
		logger:     log,
		minBackoff: defaultMinBackoff,
		maxBackoff: defaultMaxBackoff,
	}
}

// Run blocks until ctx is cancelled
func (r *Runner) Run(ctx context.Context) {
	backoff := r.minBackoff
	for {
		started := time.Now()
		r.running.Store(true)
		err := r.consume(ctx)
		r.running.Store(false)

		if ctx.Err() != nil {
			return
		}
		if err == nil {
			err = errors.New("consumer exited")
		}
		// a consumer that stayed up for a while starts over with a short wait
		if time.Since(started) > r.maxBackoff {
			backoff = r.minBackoff
		}

		r.mu.Lock()
		r.lastErr = err
		r.restarts++
		restarts := r.restarts
		r.mu.Unlock()

		r.logger.Error("consumer_restarting",
			fmt.Sprintf("Consumer %s stopped, restarting in %v", r.name, backoff),
			"", err, map[string]interface{}{
				"consumer": r.name,
				"restarts": restarts,
				"backoff":  backoff.String(),
			})

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		backoff *= 2
		if backoff > r.maxBackoff {
			backoff = r.maxBackoff
		}
	}
}

// Check reports an error while the consume loop is down
func (r *Runner) Check(context.Context) error {
	if r.running.Load() {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lastErr == nil {
		return fmt.Errorf("%s consumer is not running", r.name)
	}
	return fmt.Errorf("%s consumer is not running: %w", r.name, r.lastErr)
}

// Restarts returns how many times the consume loop has been restarted
func (r *Runner) Restarts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.restarts
}
