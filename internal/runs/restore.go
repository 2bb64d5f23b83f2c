// Homevault - Homelab Backup Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/homevault

package runs

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/tomtom215/homevault/internal/artifact"
	"github.com/tomtom215/homevault/internal/engine"
	"github.com/tomtom215/homevault/internal/logging"
	"github.com/tomtom215/homevault/internal/models"
	"github.com/tomtom215/homevault/internal/plugin"
)

// RestoreRequest selects an artifact and the target to restore it into.
// Either SourceTargetRunID or ArtifactPath must be set. A zero
// DestinationTargetID restores into the source target.
type RestoreRequest struct {
	JobID               *int64
	SourceTargetRunID   int64
	ArtifactPath        string
	SourceTargetID      int64
	DestinationTargetID int64
}

// restorePlan is a validated RestoreRequest
type restorePlan struct {
	jobID   *int64
	path    string
	source  *models.Target
	dest    *models.Target
	plugin  plugin.Plugin
	sidecar *artifact.Sidecar
}

// Restore replays one artifact into one target. It is a single attempt with
// no retry. Every check runs before a Run is recorded, so a rejected request
// leaves no history. A restore into a target that is already being restored
// fails with models.ErrConflict.
func (m *Manager) Restore(ctx context.Context, req RestoreRequest) (*Outcome, error) {
	ctx = withCorrelation(ctx)
	plan, err := m.planRestore(ctx, req)
	if err != nil {
		return nil, err
	}

	lockKey := engine.RestoreLockKey(plan.dest.ID)
	locker := m.executor.Locker()
	if !locker.TryLock(lockKey) {
		return nil, fmt.Errorf("restore into target %d already in progress: %w", plan.dest.ID, models.ErrConflict)
	}
	defer locker.Unlock(lockKey)

	log := logging.Ctx(ctx).With().
		Str("component", "runs").
		Int64("target_id", plan.dest.ID).
		Str("artifact", plan.path).
		Logger()

	run := &models.Run{
		JobID:     plan.jobID,
		Operation: models.OperationRestore,
		StartedAt: m.now(),
		Status:    models.StatusRunning,
	}
	if err := m.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create restore run: %w", err)
	}
	tr := &models.TargetRun{
		RunID:        run.ID,
		TargetID:     plan.dest.ID,
		Operation:    models.OperationRestore,
		StartedAt:    m.now(),
		Status:       models.StatusRunning,
		ArtifactPath: plan.path,
	}
	if plan.sidecar != nil {
		tr.ArtifactBytes = plan.sidecar.Bytes
		tr.SHA256 = plan.sidecar.SHA256
	}
	if err := m.store.CreateTargetRun(ctx, tr); err != nil {
		m.abandon(ctx, run, err)
		return nil, fmt.Errorf("create restore target run: %w", err)
	}
	log.Info().Int64("run_id", run.ID).Int64("source_target_id", plan.source.ID).Msg("Restore started")

	result, restoreErr := m.invokeRestore(ctx, plan)

	finished := m.now()
	tr.FinishedAt = &finished
	recordRestoreResult(tr, result, restoreErr, plan.source.Slug)
	run.Status = tr.Status
	if tr.Status == models.StatusSuccess {
		run.Message = fmt.Sprintf("restored %s into %s", plan.source.Slug, plan.dest.Slug)
	} else {
		run.Message = fmt.Sprintf("restore into %s failed", plan.dest.Slug)
		log.Error().Err(restoreErr).Str("message", tr.Message).Msg("Restore failed")
	}
	run.Log = fmt.Sprintf("%s: %s", plan.dest.Slug, tr.Status)
	if err := m.store.FinishTargetRun(context.WithoutCancel(ctx), tr); err != nil {
		log.Error().Err(err).Int64("target_run_id", tr.ID).Msg("Failed to record restore result")
	}
	m.finishRun(ctx, run)

	m.report(ctx, &models.RunReport{
		Run:         *run,
		Targets:     []models.TargetRun{*tr},
		TargetNames: map[int64]string{plan.dest.ID: plan.dest.Name},
	})
	return &Outcome{Started: true, Run: run, TargetRuns: []models.TargetRun{*tr}}, nil
}

// recordRestoreResult copies the plugin's report onto the restore target
// run. Target runs are either successful or failed, so any reported status
// other than success fails the restore.
func recordRestoreResult(tr *models.TargetRun, result *plugin.RestoreResult, restoreErr error, source string) {
	if restoreErr != nil {
		tr.Status = models.StatusFailed
		tr.Message = restoreErr.Error()
		return
	}
	tr.Status = models.StatusSuccess
	tr.Message = fmt.Sprintf("restored from %s", source)
	if result == nil {
		return
	}
	if result.Status != "" && result.Status != models.StatusSuccess {
		tr.Status = models.StatusFailed
		tr.Message = fmt.Sprintf("restore from %s reported %s", source, result.Status)
	}
	if result.ArtifactPath != "" {
		tr.ArtifactPath = result.ArtifactPath
	}
	if result.ArtifactBytes > 0 {
		tr.ArtifactBytes = result.ArtifactBytes
	}
	if result.SHA256 != "" {
		tr.SHA256 = result.SHA256
	}
	if result.Message != "" {
		tr.Message = result.Message
	}
	tr.Log = result.Log
}

func (m *Manager) planRestore(ctx context.Context, req RestoreRequest) (*restorePlan, error) {
	plan := &restorePlan{jobID: req.JobID, path: req.ArtifactPath}
	sourceID := req.SourceTargetID

	if req.SourceTargetRunID != 0 {
		src, err := m.store.GetTargetRun(ctx, req.SourceTargetRunID)
		if err != nil {
			return nil, fmt.Errorf("restore source: %w", err)
		}
		if src.Operation != models.OperationBackup || src.Status != models.StatusSuccess || src.ArtifactPath == "" {
			return nil, models.NewValidationError("source_target_run_id", "not a successful backup with an artifact")
		}
		plan.path = src.ArtifactPath
		sourceID = src.TargetID
		if plan.jobID == nil {
			if run, err := m.store.GetRun(ctx, src.RunID); err == nil {
				plan.jobID = run.JobID
			}
		}
	}
	if plan.path == "" {
		return nil, models.NewValidationError("artifact_path", "a source target run or artifact path is required")
	}

	sidecar, err := artifact.Verify(plan.path)
	if err != nil {
		return nil, models.NewValidationError("artifact_path", err.Error())
	}
	plan.sidecar = sidecar
	if sourceID == 0 && sidecar != nil {
		sourceID = sidecar.TargetID
	}
	if sourceID == 0 {
		return nil, models.NewValidationError("source_target_id", "required when the artifact has no metadata")
	}

	destID := req.DestinationTargetID
	if destID == 0 {
		destID = sourceID
	}
	if plan.source, err = m.store.GetTarget(ctx, sourceID); err != nil {
		return nil, fmt.Errorf("restore source target: %w", err)
	}
	if plan.dest, err = m.store.GetTarget(ctx, destID); err != nil {
		return nil, fmt.Errorf("restore destination target: %w", err)
	}

	if plan.source.Plugin != plan.dest.Plugin {
		return nil, models.NewValidationError("destination_target_id",
			fmt.Sprintf("plugin %q cannot restore a %q artifact", plan.dest.Plugin, plan.source.Plugin))
	}
	if sidecar != nil && sidecar.Plugin != "" && sidecar.Plugin != plan.dest.Plugin {
		return nil, models.NewValidationError("artifact_path",
			fmt.Sprintf("artifact was written by plugin %q, destination uses %q", sidecar.Plugin, plan.dest.Plugin))
	}

	if plan.plugin, err = m.plugins.Get(plan.dest.Plugin); err != nil {
		return nil, fmt.Errorf("restore destination target: %w", err)
	}
	if err := plan.plugin.ValidateConfig(plan.dest.Config); err != nil {
		return nil, err
	}
	return plan, nil
}

// invokeRestore calls the plugin once, applying the restore timeout and
// converting a panic into an error.
func (m *Manager) invokeRestore(ctx context.Context, plan *restorePlan) (result *plugin.RestoreResult, err error) {
	if m.restoreTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.restoreTimeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			logging.Ctx(ctx).Error().
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Int64("target_id", plan.dest.ID).
				Msg("Plugin panicked during restore")
			err = fmt.Errorf("plugin panic: %v", r)
		}
	}()
	return plan.plugin.Restore(ctx, &plugin.RestoreContext{
		Target:       *plan.dest,
		ArtifactPath: plan.path,
		Sidecar:      plan.sidecar,
	})
}
