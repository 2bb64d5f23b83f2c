// Homevault - Homelab Backup Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/homevault

package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/homevault/internal/config"
	"github.com/tomtom215/homevault/internal/models"
)

type fakeResolver struct {
	tags map[int64][]models.Target
}

func (f *fakeResolver) Resolve(_ context.Context, tagID int64) ([]models.Target, error) {
	targets, ok := f.tags[tagID]
	if !ok {
		return nil, models.NewNotFoundError("tag", tagID)
	}
	return targets, nil
}

func makeTargets(n int) []models.Target {
	out := make([]models.Target, n)
	for i := range out {
		out[i] = models.Target{ID: int64(i + 1), Name: fmt.Sprintf("t%d", i+1), Slug: fmt.Sprintf("t%d", i+1)}
	}
	return out
}

func newTestEngine(tags map[int64][]models.Target) *Engine {
	return New(&fakeResolver{tags: tags}, nil, config.EngineConfig{MaxConcurrency: 4, MaxRetries: 1})
}

func intPtr(v int) *int { return &v }
func durPtr(d time.Duration) *time.Duration { return &d }

func TestExecute_PeakConcurrency(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		targets     int
		concurrency int
	}{
		{"more targets than workers", 10, 3},
		{"fewer targets than workers", 2, 10},
		{"single worker", 5, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			e := newTestEngine(map[int64][]models.Target{1: makeTargets(tt.targets)})
			var active, peak atomic.Int32
			task := func(ctx context.Context, _ models.Target) error {
				n := active.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(20 * time.Millisecond)
				active.Add(-1)
				return nil
			}

			summary, err := e.Execute(context.Background(), JobLockKey(1), 1, task, Options{MaxConcurrency: tt.concurrency})
			if err != nil {
				t.Fatalf("Execute() error = %v", err)
			}
			if len(summary.Results) != tt.targets || summary.Succeeded() != tt.targets {
				t.Fatalf("results = %d, succeeded = %d", len(summary.Results), summary.Succeeded())
			}

			limit := int32(min(tt.targets, tt.concurrency))
			if got := peak.Load(); got > limit {
				t.Errorf("peak concurrency = %d, want <= %d", got, limit)
			}
		})
	}
}

func TestExecute_OverlapSkipped(t *testing.T) {
	t.Parallel()

	e := newTestEngine(map[int64][]models.Target{1: makeTargets(1)})
	started := make(chan struct{})
	release := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	var first *Summary
	go func() {
		defer wg.Done()
		first, _ = e.Execute(context.Background(), JobLockKey(7), 1, func(context.Context, models.Target) error {
			close(started)
			<-release
			return nil
		}, Options{})
	}()

	<-started
	var calls atomic.Int32
	second, err := e.Execute(context.Background(), JobLockKey(7), 1, func(context.Context, models.Target) error {
		calls.Add(1)
		return nil
	}, Options{})
	if err != nil {
		t.Fatalf("overlapping Execute() error = %v", err)
	}
	if second.Started {
		t.Error("overlapping execution should not start")
	}
	if calls.Load() != 0 {
		t.Error("overlapping execution invoked the task")
	}

	// A different key is not blocked.
	other, err := e.Execute(context.Background(), JobLockKey(8), 1, func(context.Context, models.Target) error { return nil }, Options{})
	if err != nil || !other.Started {
		t.Errorf("independent job blocked: %+v, %v", other, err)
	}

	close(release)
	wg.Wait()
	if first == nil || !first.Started {
		t.Fatalf("first execution = %+v", first)
	}

	third, err := e.Execute(context.Background(), JobLockKey(7), 1, func(context.Context, models.Target) error { return nil }, Options{})
	if err != nil || !third.Started {
		t.Errorf("lock not released after completion: %+v, %v", third, err)
	}
}

func TestExecute_RetryThenSuccess(t *testing.T) {
	t.Parallel()

	e := newTestEngine(map[int64][]models.Target{1: makeTargets(1)})
	var calls atomic.Int32
	task := func(context.Context, models.Target) error {
		if calls.Add(1) == 1 {
			return errors.New("transient")
		}
		return nil
	}

	summary, err := e.Execute(context.Background(), JobLockKey(1), 1, task,
		Options{MaxRetries: intPtr(1), BackoffBase: durPtr(time.Millisecond)})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	r := summary.Results[0]
	if !r.Success || r.Attempts != 2 || r.Error != "" {
		t.Errorf("result = %+v, want success after 2 attempts", r)
	}
}

func TestExecute_RetryExhausted(t *testing.T) {
	t.Parallel()

	e := newTestEngine(map[int64][]models.Target{1: makeTargets(2)})
	var calls atomic.Int32
	task := func(_ context.Context, target models.Target) error {
		calls.Add(1)
		if target.ID == 1 {
			return fmt.Errorf("disk full on %s", target.Slug)
		}
		return nil
	}

	base := 10 * time.Millisecond
	start := time.Now()
	summary, err := e.Execute(context.Background(), JobLockKey(1), 1, task,
		Options{MaxRetries: intPtr(2), BackoffBase: durPtr(base), MaxConcurrency: 1})
	if err != nil {
		t.Fatalf("target failure must not be returned as error: %v", err)
	}
	elapsed := time.Since(start)

	failed := summary.Results[0]
	if failed.Success || failed.Attempts != 3 || failed.Error != "disk full on t1" {
		t.Errorf("failed result = %+v", failed)
	}
	if !summary.Results[1].Success || summary.Results[1].Attempts != 1 {
		t.Errorf("second result = %+v", summary.Results[1])
	}
	if calls.Load() != 4 {
		t.Errorf("calls = %d, want 4", calls.Load())
	}
	// base + 2*base between the three attempts
	if elapsed < 3*base {
		t.Errorf("elapsed %v, want at least %v of backoff", elapsed, 3*base)
	}

	statuses := summary.Statuses()
	if statuses[0] != models.StatusFailed || statuses[1] != models.StatusSuccess {
		t.Errorf("Statuses() = %v", statuses)
	}
	if models.AggregateStatus(statuses) != models.StatusPartial {
		t.Errorf("aggregate = %v, want partial", models.AggregateStatus(statuses))
	}
}

func TestExecute_ValidationErrorNotRetried(t *testing.T) {
	t.Parallel()

	e := newTestEngine(map[int64][]models.Target{1: makeTargets(1)})
	var calls atomic.Int32
	summary, err := e.Execute(context.Background(), JobLockKey(1), 1, func(context.Context, models.Target) error {
		calls.Add(1)
		return models.NewValidationError("path", "is required")
	}, Options{MaxRetries: intPtr(3), BackoffBase: durPtr(0)})
	if err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 1 || summary.Results[0].Attempts != 1 {
		t.Errorf("validation error retried: calls = %d", calls.Load())
	}
}

func TestExecute_LockReleasedOnPanic(t *testing.T) {
	t.Parallel()

	locker := NewMemoryLocker()
	e := New(&fakeResolver{tags: map[int64][]models.Target{1: makeTargets(1)}}, locker, config.EngineConfig{})

	func() {
		defer func() {
			if recover() == nil {
				t.Error("expected the OnStart panic to propagate")
			}
		}()
		_, _ = e.Execute(context.Background(), JobLockKey(3), 1, func(context.Context, models.Target) error { return nil },
			Options{OnStart: func(context.Context, []models.Target) error { panic("hook exploded") }})
	}()

	if locker.Held(JobLockKey(3)) {
		t.Fatal("lock still held after panic")
	}
	summary, err := e.Execute(context.Background(), JobLockKey(3), 1, func(context.Context, models.Target) error { return nil }, Options{})
	if err != nil || !summary.Started {
		t.Errorf("re-execute after panic = %+v, %v", summary, err)
	}
}

func TestExecute_TaskPanicIsFailure(t *testing.T) {
	t.Parallel()

	e := newTestEngine(map[int64][]models.Target{1: makeTargets(1)})
	summary, err := e.Execute(context.Background(), JobLockKey(1), 1, func(context.Context, models.Target) error {
		panic("nil map")
	}, Options{MaxRetries: intPtr(0)})
	if err != nil {
		t.Fatal(err)
	}
	r := summary.Results[0]
	if r.Success || !strings.Contains(r.Error, "plugin panic: nil map") {
		t.Errorf("result = %+v", r)
	}
}

func TestExecute_UnknownTag(t *testing.T) {
	t.Parallel()

	locker := NewMemoryLocker()
	e := New(&fakeResolver{tags: map[int64][]models.Target{}}, locker, config.EngineConfig{})

	_, err := e.Execute(context.Background(), TagLockKey(99), 99, func(context.Context, models.Target) error { return nil }, Options{})
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if locker.Held(TagLockKey(99)) {
		t.Error("lock held after resolution error")
	}
}

func TestExecute_EmptyTag(t *testing.T) {
	t.Parallel()

	e := newTestEngine(map[int64][]models.Target{5: nil})
	var onStart atomic.Bool
	summary, err := e.Execute(context.Background(), JobLockKey(1), 5, func(context.Context, models.Target) error {
		t.Error("task must not run")
		return nil
	}, Options{OnStart: func(_ context.Context, targets []models.Target) error {
		onStart.Store(true)
		if len(targets) != 0 {
			t.Errorf("OnStart targets = %d", len(targets))
		}
		return nil
	}})
	if err != nil {
		t.Fatal(err)
	}
	if !summary.Started || len(summary.Results) != 0 || !onStart.Load() {
		t.Errorf("summary = %+v, onStart = %v", summary, onStart.Load())
	}
	if models.AggregateStatus(summary.Statuses()) != models.StatusSuccess {
		t.Error("zero-target run should aggregate to success")
	}
}

func TestExecute_OnStartErrorAborts(t *testing.T) {
	t.Parallel()

	e := newTestEngine(map[int64][]models.Target{1: makeTargets(2)})
	boom := errors.New("db down")
	_, err := e.Execute(context.Background(), JobLockKey(1), 1, func(context.Context, models.Target) error {
		t.Error("task must not run")
		return nil
	}, Options{OnStart: func(context.Context, []models.Target) error { return boom }})
	if !errors.Is(err, boom) {
		t.Errorf("error = %v, want %v", err, boom)
	}
}

func TestExecute_TargetHooksAndTimeout(t *testing.T) {
	t.Parallel()

	e := newTestEngine(map[int64][]models.Target{1: makeTargets(3)})

	var mu sync.Mutex
	startedIDs := map[int64]bool{}
	done := map[int64]TargetResult{}

	summary, err := e.Execute(context.Background(), JobLockKey(1), 1, func(ctx context.Context, target models.Target) error {
		if target.ID == 2 {
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	}, Options{
		MaxRetries:    intPtr(0),
		TargetTimeout: 20 * time.Millisecond,
		OnTargetStart: func(_ context.Context, target models.Target) {
			mu.Lock()
			startedIDs[target.ID] = true
			mu.Unlock()
		},
		OnTargetDone: func(_ context.Context, r TargetResult) {
			mu.Lock()
			done[r.Target.ID] = r
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(startedIDs) != 3 || len(done) != 3 {
		t.Fatalf("hooks saw %d starts and %d completions", len(startedIDs), len(done))
	}
	if done[2].Success || !strings.Contains(done[2].Error, "deadline exceeded") {
		t.Errorf("timed out target = %+v", done[2])
	}
	if summary.Failed() != 1 {
		t.Errorf("Failed() = %d, want 1", summary.Failed())
	}
	for i, r := range summary.Results {
		if r.Target.ID != int64(i+1) {
			t.Errorf("results not in target order: %d at %d", r.Target.ID, i)
		}
	}
}

func TestMemoryLocker(t *testing.T) {
	t.Parallel()

	l := NewMemoryLocker()
	if !l.TryLock("a") {
		t.Fatal("first TryLock should succeed")
	}
	if l.TryLock("a") {
		t.Error("second TryLock should fail")
	}
	if !l.TryLock("b") {
		t.Error("independent key should lock")
	}
	l.Unlock("a")
	l.Unlock("a")
	if !l.TryLock("a") {
		t.Error("TryLock after Unlock should succeed")
	}
}

func TestLockKeys(t *testing.T) {
	t.Parallel()

	if JobLockKey(12) != "job:12" || TagLockKey(3) != "tag:3" || RestoreLockKey(7) != "restore:7" {
		t.Errorf("keys = %s, %s, %s", JobLockKey(12), TagLockKey(3), RestoreLockKey(7))
	}
}
