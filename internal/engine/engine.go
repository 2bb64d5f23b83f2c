// Homevault - Homelab Backup Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/homevault

/*
engine.go - Job Execution Engine

Execute runs one task against every target a tag resolves to:

 1. Try the lock for the job (or tag). If it is held, return
    Summary{Started: false} immediately; the overlapping fire is dropped.
 2. Resolve the tag. Unknown tag is an error; no targets is an empty,
    started run.
 3. Run the OnStart hook (the run lifecycle creates its Run row here).
 4. Fill a queue with every target and start min(targets, MaxConcurrency)
    workers. Each target gets MaxRetries+1 attempts with exponential
    backoff BackoffBase * 2^attempt between them. Validation errors are
    not retried.
 5. Collect per-target results under a results mutex.

The lock is released by defer on every path, including a panicking hook.
A panicking task is converted into a failed attempt so one broken plugin
cannot take down the process.
*/

//nolint:staticcheck // File documentation, not package doc
package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime/debug"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/homevault/internal/config"
	"github.com/tomtom215/homevault/internal/logging"
	"github.com/tomtom215/homevault/internal/metrics"
	"github.com/tomtom215/homevault/internal/models"
)

// Resolver turns a tag into its current targets
type Resolver interface {
	Resolve(ctx context.Context, tagID int64) ([]models.Target, error)
}

// Task performs one attempt against one target
type Task func(ctx context.Context, target models.Target) error

// Options tune one Execute call. Zero values fall back to the engine
// defaults.
type Options struct {
	MaxConcurrency int
	MaxRetries     *int
	BackoffBase    *time.Duration
	TargetTimeout  time.Duration

	// OnStart runs once the lock is held and targets are resolved. An error
	// aborts the execution before any task runs.
	OnStart func(ctx context.Context, targets []models.Target) error
	// OnTargetStart runs before the first attempt on a target.
	OnTargetStart func(ctx context.Context, target models.Target)
	// OnTargetDone runs after the last attempt on a target.
	OnTargetDone func(ctx context.Context, result TargetResult)
}

// TargetResult is the outcome of all attempts on one target
type TargetResult struct {
	Target     models.Target
	Success    bool
	Attempts   int
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Summary is the outcome of one Execute call
type Summary struct {
	Started bool
	LockKey string
	Results []TargetResult
}

// Succeeded counts successful targets
func (s *Summary) Succeeded() int {
	n := 0
	for _, r := range s.Results {
		if r.Success {
			n++
		}
	}
	return n
}

// Failed counts failed targets
func (s *Summary) Failed() int {
	return len(s.Results) - s.Succeeded()
}

// Statuses returns the per-target statuses in target order
func (s *Summary) Statuses() []models.RunStatus {
	out := make([]models.RunStatus, len(s.Results))
	for i, r := range s.Results {
		if r.Success {
			out[i] = models.StatusSuccess
		} else {
			out[i] = models.StatusFailed
		}
	}
	return out
}

// Engine executes tasks across resolved targets with per-key exclusion
type Engine struct {
	resolver Resolver
	locker   Locker
	defaults config.EngineConfig
}

// New creates an engine. A nil locker gets a fresh MemoryLocker owned by
// this engine.
func New(resolver Resolver, locker Locker, defaults config.EngineConfig) *Engine {
	if locker == nil {
		locker = NewMemoryLocker()
	}
	if defaults.MaxConcurrency < 1 {
		defaults.MaxConcurrency = 4
	}
	if defaults.MaxRetries < 0 {
		defaults.MaxRetries = 0
	}
	return &Engine{resolver: resolver, locker: locker, defaults: defaults}
}

// Locker returns the lock table
func (e *Engine) Locker() Locker {
	return e.locker
}

// Execute runs task on every target of tagID under the lock lockKey. It
// returns Summary{Started: false} without error when the lock is taken.
// Target failures are reported in the Summary, never as an error.
func (e *Engine) Execute(ctx context.Context, lockKey string, tagID int64, task Task, opts Options) (*Summary, error) {
	log := logging.Ctx(ctx).With().Str("component", "engine").Str("lock", lockKey).Logger()

	if !e.locker.TryLock(lockKey) {
		log.Info().Str(logging.EventField, logging.EventOverlapSkip).Msg("Execution already in progress, skipping")
		metrics.RecordOverlapSkip(lockKey)
		return &Summary{Started: false, LockKey: lockKey}, nil
	}
	defer e.locker.Unlock(lockKey)

	targets, err := e.resolver.Resolve(ctx, tagID)
	if err != nil {
		return nil, fmt.Errorf("execute %s: %w", lockKey, err)
	}

	summary := &Summary{Started: true, LockKey: lockKey, Results: make([]TargetResult, len(targets))}

	if opts.OnStart != nil {
		if err := opts.OnStart(ctx, targets); err != nil {
			return nil, fmt.Errorf("execute %s: %w", lockKey, err)
		}
	}
	if len(targets) == 0 {
		log.Info().Int64("tag_id", tagID).Msg("Tag resolved to no targets")
		return summary, nil
	}

	cfg := e.effective(opts)
	workers := min(len(targets), cfg.MaxConcurrency)

	queue := make(chan int, len(targets))
	for i := range targets {
		queue <- i
	}
	close(queue)

	var (
		resultsMu sync.Mutex
		g         errgroup.Group
	)
	for range workers {
		g.Go(func() error {
			metrics.TrackWorker(true)
			defer metrics.TrackWorker(false)

			for i := range queue {
				target := targets[i]
				if opts.OnTargetStart != nil {
					opts.OnTargetStart(ctx, target)
				}
				result := e.runTarget(ctx, target, task, cfg)
				if opts.OnTargetDone != nil {
					opts.OnTargetDone(ctx, result)
				}

				resultsMu.Lock()
				summary.Results[i] = result
				resultsMu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // workers never return errors

	log.Info().
		Int("targets", len(targets)).
		Int("workers", workers).
		Int("succeeded", summary.Succeeded()).
		Int("failed", summary.Failed()).
		Msg("Execution finished")

	return summary, nil
}

type effectiveOptions struct {
	MaxConcurrency int
	MaxRetries     int
	BackoffBase    time.Duration
	TargetTimeout  time.Duration
}

func (e *Engine) effective(opts Options) effectiveOptions {
	eff := effectiveOptions{
		MaxConcurrency: e.defaults.MaxConcurrency,
		MaxRetries:     e.defaults.MaxRetries,
		BackoffBase:    e.defaults.BackoffBase,
		TargetTimeout:  e.defaults.TargetTimeout,
	}
	if opts.MaxConcurrency > 0 {
		eff.MaxConcurrency = opts.MaxConcurrency
	}
	if opts.MaxRetries != nil && *opts.MaxRetries >= 0 {
		eff.MaxRetries = *opts.MaxRetries
	}
	if opts.BackoffBase != nil && *opts.BackoffBase >= 0 {
		eff.BackoffBase = *opts.BackoffBase
	}
	if opts.TargetTimeout > 0 {
		eff.TargetTimeout = opts.TargetTimeout
	}
	return eff
}

// newBackOff sleeps base, 2*base, 4*base ... between attempts with no
// jitter, and stops after maxRetries retries.
func newBackOff(ctx context.Context, base time.Duration, maxRetries int) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = base
	exp.Multiplier = 2
	exp.RandomizationFactor = 0
	exp.MaxInterval = time.Duration(math.MaxInt64)
	exp.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(maxRetries)), ctx) //nolint:gosec // non-negative
}

func (e *Engine) runTarget(ctx context.Context, target models.Target, task Task, cfg effectiveOptions) TargetResult {
	log := logging.Ctx(ctx).With().
		Str("component", "engine").
		Int64("target_id", target.ID).
		Str("target", target.Slug).
		Logger()

	result := TargetResult{Target: target, StartedAt: time.Now().UTC()}

	operation := func() error {
		result.Attempts++
		err := attempt(ctx, target, task, cfg.TargetTimeout)
		metrics.RecordAttempt(err)
		if errors.Is(err, models.ErrValidation) {
			return backoff.Permanent(err) // bad config will not fix itself
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		log.Warn().Err(err).Int("attempt", result.Attempts).Dur("retry_in", wait).Msg("Target attempt failed, retrying")
	}

	err := backoff.RetryNotify(operation, newBackOff(ctx, cfg.BackoffBase, cfg.MaxRetries), notify)

	result.FinishedAt = time.Now().UTC()
	result.Success = err == nil
	if err != nil {
		result.Error = err.Error()
		log.Error().Err(err).Int("attempts", result.Attempts).Msg("Target failed")
	} else {
		log.Debug().Int("attempts", result.Attempts).Msg("Target succeeded")
	}
	metrics.RecordTarget(result.Success, result.FinishedAt.Sub(result.StartedAt))
	return result
}

// attempt runs the task once with the per-target deadline and turns a panic
// into an error.
func attempt(ctx context.Context, target models.Target, task Task, timeout time.Duration) (err error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			logging.Ctx(ctx).Error().
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Int64("target_id", target.ID).
				Msg("Plugin panicked")
			err = fmt.Errorf("plugin panic: %v", r)
		}
	}()
	return task(ctx, target)
}
