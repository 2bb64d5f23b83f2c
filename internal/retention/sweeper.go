// Homevault - Homelab Backup Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/homevault

/*
sweeper.go - Retention Sweep

Apply prunes the backups of one (job, target) pair:

 1. Resolve the effective policy: the job override when present and
    parseable, else the global settings policy, else none. With no policy
    nothing is deleted.
 2. Load the candidates: successful backup TargetRuns of the pair that
    still reference an artifact.
 3. Plan the keep set (see plan.go) and drop everything else.
 4. For each dropped backup, in order: remove its sidecar, remove the
    artifact (file or directory), delete the TargetRun row, and delete the
    parent Run when it has no TargetRuns left.

Backups started by tag belong to no job. They form pairs under job id 0
(models.TagRunsJobID) and are pruned by the settings policy.

Storage failures in step 4 are advisory: they are logged with event
retention_delete_failed, counted in DeleteErrors, and the row is deleted
anyway so the ledger never points at a half-deleted artifact. Database
failures abort the pair; the Result then counts only completed deletions.

A dry run stops after step 3 and reports the same counts and paths a real
run would produce.

ApplyAll runs Apply for every pair with a successful backup. Pairs touch
disjoint rows and files, so they run concurrently under a bounded errgroup;
deletions within a pair stay sequential.
*/

//nolint:staticcheck // File documentation, not package doc
package retention

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/homevault/internal/artifact"
	"github.com/tomtom215/homevault/internal/logging"
	"github.com/tomtom215/homevault/internal/metrics"
	"github.com/tomtom215/homevault/internal/models"
)

// Store is the persistence the sweeper needs
type Store interface {
	GetJob(ctx context.Context, id int64) (*models.Job, error)
	GetSettings(ctx context.Context) (*models.Settings, error)
	ListRetentionCandidates(ctx context.Context, jobID, targetID int64) ([]models.TargetRun, error)
	ListBackupPairs(ctx context.Context) ([]models.JobTargetPair, error)
	DeleteTargetRun(ctx context.Context, id int64) (runDeleted bool, err error)
}

// Storage removes artifacts by exact path
type Storage interface {
	Delete(path string) error
}

// PolicySource says where the effective policy came from
type PolicySource string

const (
	PolicyJob      PolicySource = "job"
	PolicySettings PolicySource = "settings"
	PolicyNone     PolicySource = "none"
)

// Result is the outcome of one Apply call
type Result struct {
	JobID        int64        `json:"job_id"`
	TargetID     int64        `json:"target_id"`
	DryRun       bool         `json:"dry_run"`
	Policy       PolicySource `json:"policy"`
	KeepCount    int          `json:"keep_count"`
	DeleteCount  int          `json:"delete_count"`
	KeptPaths    []string     `json:"kept_paths"`
	DeletedPaths []string     `json:"deleted_paths"`
	DeleteErrors int          `json:"delete_errors"`
	RunsDeleted  int          `json:"runs_deleted"`
}

// SweepResult aggregates ApplyAll across every pair
type SweepResult struct {
	DryRun           bool     `json:"dry_run"`
	PairsProcessed   int      `json:"pairs_processed"`
	TargetsProcessed int      `json:"targets_processed"`
	KeepCount        int      `json:"keep_count"`
	DeleteCount      int      `json:"delete_count"`
	DeletedPaths     []string `json:"deleted_paths"`
	DeleteErrors     int      `json:"delete_errors"`
	RunsDeleted      int      `json:"runs_deleted"`
	Errors           []string `json:"errors,omitempty"`
	Results          []Result `json:"-"`
}

// Sweeper applies retention policies to the backup ledger and storage
type Sweeper struct {
	store       Store
	storage     Storage
	loc         *time.Location
	concurrency int
	now         func() time.Time
}

// NewSweeper creates a sweeper. loc is the timezone for "now" and bucket
// boundaries (nil means UTC). concurrency bounds ApplyAll (minimum 1).
func NewSweeper(store Store, storage Storage, loc *time.Location, concurrency int) *Sweeper {
	if loc == nil {
		loc = time.UTC
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &Sweeper{
		store:       store,
		storage:     storage,
		loc:         loc,
		concurrency: concurrency,
		now:         time.Now,
	}
}

// EffectivePolicy resolves the policy for a job: its override when present
// and valid, else the settings policy, else nil.
// Backups started by tag have no job and always use the settings policy.
func (s *Sweeper) EffectivePolicy(ctx context.Context, jobID int64) (*models.RetentionPolicy, PolicySource, error) {
	if jobID != models.TagRunsJobID {
		job, err := s.store.GetJob(ctx, jobID)
		if err != nil {
			return nil, PolicyNone, fmt.Errorf("load job %d: %w", jobID, err)
		}

		policy, err := models.ParseRetentionPolicy(job.Retention)
		switch {
		case err != nil:
			logging.Ctx(ctx).Warn().Err(err).Int64("job_id", jobID).Msg("Ignoring unparseable job retention policy")
		case !policy.Empty():
			return policy, PolicyJob, nil
		}
	}

	settings, err := s.store.GetSettings(ctx)
	if err != nil {
		return nil, PolicyNone, fmt.Errorf("load settings: %w", err)
	}
	policy, err := models.ParseRetentionPolicy(settings.Retention)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("Ignoring unparseable global retention policy")
		return nil, PolicyNone, nil
	}
	if policy.Empty() {
		return nil, PolicyNone, nil
	}
	return policy, PolicySettings, nil
}

// Apply prunes one (job, target) pair. With dryRun nothing is modified.
func (s *Sweeper) Apply(ctx context.Context, jobID, targetID int64, dryRun bool) (*Result, error) {
	log := logging.Ctx(ctx).With().
		Str("component", "retention").
		Int64("job_id", jobID).
		Int64("target_id", targetID).
		Bool("dry_run", dryRun).
		Logger()

	result := &Result{
		JobID:        jobID,
		TargetID:     targetID,
		DryRun:       dryRun,
		KeptPaths:    []string{},
		DeletedPaths: []string{},
	}

	policy, source, err := s.EffectivePolicy(ctx, jobID)
	if err != nil {
		return nil, err
	}
	result.Policy = source

	candidates, err := s.store.ListRetentionCandidates(ctx, jobID, targetID)
	if err != nil {
		return nil, fmt.Errorf("list retention candidates: %w", err)
	}

	keep, drop := Plan(candidates, policy, s.now(), s.loc)
	result.KeepCount = len(keep)
	result.DeleteCount = len(drop)
	for _, tr := range keep {
		result.KeptPaths = append(result.KeptPaths, tr.ArtifactPath)
	}
	for _, tr := range drop {
		result.DeletedPaths = append(result.DeletedPaths, tr.ArtifactPath)
	}

	if dryRun || len(drop) == 0 {
		log.Debug().Int("keep", result.KeepCount).Int("delete", result.DeleteCount).Msg("Retention evaluated")
		return result, nil
	}

	// From here on the counts describe what was actually removed, so an
	// aborted pair reports only the deletions that completed.
	result.DeleteCount = 0
	result.DeletedPaths = make([]string, 0, len(drop))
	defer func() { metrics.RecordRetention(result.DeleteCount, result.DeleteErrors) }()

	for _, tr := range drop {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.DeleteErrors += s.removeArtifact(ctx, tr)

		runDeleted, err := s.store.DeleteTargetRun(ctx, tr.ID)
		if err != nil {
			return result, fmt.Errorf("delete target run %d: %w", tr.ID, err)
		}
		result.DeleteCount++
		result.DeletedPaths = append(result.DeletedPaths, tr.ArtifactPath)
		if runDeleted {
			result.RunsDeleted++
		}
	}

	log.Info().
		Str("policy", string(source)).
		Int("kept", result.KeepCount).
		Int("deleted", result.DeleteCount).
		Int("runs_deleted", result.RunsDeleted).
		Int("delete_errors", result.DeleteErrors).
		Msg("Retention applied")
	return result, nil
}

// removeArtifact deletes the sidecar and then the artifact, so the store
// finds the date directory empty when it prunes. It returns the number of
// storage failures, which are logged and otherwise ignored.
func (s *Sweeper) removeArtifact(ctx context.Context, tr models.TargetRun) int {
	failures := 0
	if err := artifact.RemoveSidecar(tr.ArtifactPath); err != nil {
		failures++
		logging.Ctx(ctx).Warn().
			Err(err).
			Str(logging.EventField, logging.EventRetentionDeleteFailed).
			Int64("target_run_id", tr.ID).
			Str("sidecar", artifact.SidecarPath(tr.ArtifactPath)).
			Msg("Failed to delete artifact sidecar")
	}
	if err := s.storage.Delete(tr.ArtifactPath); err != nil {
		failures++
		logging.Ctx(ctx).Warn().
			Err(err).
			Str(logging.EventField, logging.EventRetentionDeleteFailed).
			Int64("target_run_id", tr.ID).
			Str("artifact", tr.ArtifactPath).
			Msg("Failed to delete artifact")
	}
	return failures
}

// ApplyAll runs Apply for every (job, target) pair with a successful
// backup. A failing pair is reported in Errors and does not stop the sweep.
func (s *Sweeper) ApplyAll(ctx context.Context, dryRun bool) (*SweepResult, error) {
	start := time.Now()
	defer func() { metrics.RecordSweep(time.Since(start)) }()

	pairs, err := s.store.ListBackupPairs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list backup pairs: %w", err)
	}

	sweep := &SweepResult{DryRun: dryRun, DeletedPaths: []string{}}
	targets := make(map[int64]struct{})
	for _, p := range pairs {
		targets[p.TargetID] = struct{}{}
	}
	sweep.TargetsProcessed = len(targets)

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(s.concurrency)
	for _, pair := range pairs {
		g.Go(func() error {
			res, err := s.Apply(ctx, pair.JobID, pair.TargetID, dryRun)

			mu.Lock()
			defer mu.Unlock()
			sweep.PairsProcessed++
			if err != nil {
				sweep.Errors = append(sweep.Errors, fmt.Sprintf("job %d target %d: %v", pair.JobID, pair.TargetID, err))
			}
			if res != nil {
				sweep.add(res)
			}
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // pair errors are collected in sweep.Errors

	sort.Strings(sweep.DeletedPaths)
	sort.Slice(sweep.Results, func(i, j int) bool {
		if sweep.Results[i].JobID != sweep.Results[j].JobID {
			return sweep.Results[i].JobID < sweep.Results[j].JobID
		}
		return sweep.Results[i].TargetID < sweep.Results[j].TargetID
	})

	logging.Ctx(ctx).Info().
		Str("component", "retention").
		Bool("dry_run", dryRun).
		Int("pairs", sweep.PairsProcessed).
		Int("targets", sweep.TargetsProcessed).
		Int("kept", sweep.KeepCount).
		Int("deleted", sweep.DeleteCount).
		Int("errors", len(sweep.Errors)).
		Msg("Retention sweep finished")

	if err := ctx.Err(); err != nil {
		return sweep, err
	}
	return sweep, nil
}

func (r *SweepResult) add(res *Result) {
	r.Results = append(r.Results, *res)
	r.KeepCount += res.KeepCount
	r.DeleteCount += res.DeleteCount
	r.DeleteErrors += res.DeleteErrors
	r.RunsDeleted += res.RunsDeleted
	r.DeletedPaths = append(r.DeletedPaths, res.DeletedPaths...)
}
