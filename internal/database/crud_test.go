// Homevault - Homelab Backup Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/homevault

package database

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/homevault/internal/models"
	"github.com/tomtom215/homevault/internal/tags"
)

func TestCreateTarget_CreatesAutoTag(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	target := mustCreateTarget(t, db, "Home Assistant", nil)
	if target.Slug != "home-assistant" {
		t.Errorf("Slug = %q, want home-assistant", target.Slug)
	}

	rows, err := db.ListTargetTags(ctx, target.ID)
	if err != nil {
		t.Fatalf("ListTargetTags() error = %v", err)
	}
	if len(rows) != 1 || rows[0].Origin != models.OriginAuto || rows[0].SourceGroupID != nil {
		t.Fatalf("expected exactly one AUTO row without source group, got %+v", rows)
	}

	tag, err := db.GetTag(ctx, rows[0].TagID)
	if err != nil {
		t.Fatalf("GetTag() error = %v", err)
	}
	if tag.Name != "Home Assistant" || tag.Slug != "home-assistant" {
		t.Errorf("auto tag = %+v", tag)
	}
}

func TestCreateTarget_Uniqueness(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	mustCreateTarget(t, db, "NAS", nil)

	dup := &models.Target{Name: "nas", Plugin: "archive"}
	if err := db.CreateTarget(ctx, dup); !errors.Is(err, models.ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate name, got %v", err)
	}

	// A user tag already owns the slug "router"; the target gets a suffixed slug.
	if _, err := db.CreateTag(ctx, "Router"); err != nil {
		t.Fatalf("CreateTag() error = %v", err)
	}
	router := mustCreateTarget(t, db, "Router", nil)
	if router.Slug != "router-2" {
		t.Errorf("Slug = %q, want router-2", router.Slug)
	}

	// The archive slug is reserved.
	if _, err := db.CreateTag(ctx, "Archived"); !errors.Is(err, models.ErrConflict) {
		t.Errorf("expected ErrConflict for reserved slug, got %v", err)
	}
}

func TestRenameTarget_KeepsSlugs(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	target := mustCreateTarget(t, db, "Postgres", nil)
	if err := db.RenameTarget(ctx, target.ID, "Postgres Main"); err != nil {
		t.Fatalf("RenameTarget() error = %v", err)
	}

	got, err := db.GetTarget(ctx, target.ID)
	if err != nil {
		t.Fatalf("GetTarget() error = %v", err)
	}
	if got.Name != "Postgres Main" || got.Slug != "postgres" {
		t.Errorf("after rename target = %q/%q, want Postgres Main/postgres", got.Name, got.Slug)
	}

	tagID, err := db.AutoTagID(ctx, target.ID)
	if err != nil {
		t.Fatalf("AutoTagID() error = %v", err)
	}
	tag, err := db.GetTag(ctx, tagID)
	if err != nil {
		t.Fatalf("GetTag() error = %v", err)
	}
	if tag.Name != "Postgres Main" || tag.Slug != "postgres" {
		t.Errorf("auto tag after rename = %q/%q", tag.Name, tag.Slug)
	}

	if err := db.RenameTarget(ctx, 9999, "Ghost"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestTagResolution_DeduplicatesProvenance(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	group, err := db.CreateGroup(ctx, "Media")
	if err != nil {
		t.Fatalf("CreateGroup() error = %v", err)
	}
	nightly, err := db.CreateTag(ctx, "Nightly")
	if err != nil {
		t.Fatalf("CreateTag() error = %v", err)
	}
	if err := db.AddGroupTag(ctx, group.ID, nightly.ID); err != nil {
		t.Fatalf("AddGroupTag() error = %v", err)
	}

	a := mustCreateTarget(t, db, "Jellyfin", &group.ID) // GROUP
	b := mustCreateTarget(t, db, "Sonarr", nil)
	if err := db.AttachTag(ctx, b.ID, nightly.ID); err != nil { // DIRECT
		t.Fatalf("AttachTag() error = %v", err)
	}
	if err := db.SetTargetGroup(ctx, b.ID, &group.ID); err != nil { // and GROUP
		t.Fatalf("SetTargetGroup() error = %v", err)
	}

	rows, err := db.ListTagTargets(ctx, nightly.ID)
	if err != nil {
		t.Fatalf("ListTagTargets() error = %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 attachment rows, got %d", len(rows))
	}

	resolved, err := tags.NewResolver(db).Resolve(ctx, nightly.ID)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if len(resolved) != 2 || resolved[0].ID != a.ID || resolved[1].ID != b.ID {
		t.Fatalf("Resolve() = %+v, want [%d %d]", resolved, a.ID, b.ID)
	}

	// The AUTO tag of b resolves to b even though b also carries DIRECT and GROUP rows
	autoID, err := db.AutoTagID(ctx, b.ID)
	if err != nil {
		t.Fatalf("AutoTagID() error = %v", err)
	}
	if err := db.AttachTag(ctx, b.ID, autoID); err != nil {
		t.Fatalf("AttachTag(auto) error = %v", err)
	}
	resolved, err = tags.NewResolver(db).Resolve(ctx, autoID)
	if err != nil {
		t.Fatalf("Resolve(auto) error = %v", err)
	}
	if len(resolved) != 1 || resolved[0].ID != b.ID {
		t.Errorf("Resolve(auto) = %+v", resolved)
	}

	if _, err := db.ListTagTargets(ctx, 424242); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown tag, got %v", err)
	}
}

func TestDeleteGroup_DetachesMembersOnly(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	group, err := db.CreateGroup(ctx, "Servers")
	if err != nil {
		t.Fatalf("CreateGroup() error = %v", err)
	}
	weekly, err := db.CreateTag(ctx, "Weekly")
	if err != nil {
		t.Fatalf("CreateTag() error = %v", err)
	}
	if err := db.AddGroupTag(ctx, group.ID, weekly.ID); err != nil {
		t.Fatalf("AddGroupTag() error = %v", err)
	}
	target := mustCreateTarget(t, db, "Proxmox", &group.ID)
	if err := db.AttachTag(ctx, target.ID, weekly.ID); err != nil {
		t.Fatalf("AttachTag() error = %v", err)
	}

	if err := db.DeleteGroup(ctx, group.ID); err != nil {
		t.Fatalf("DeleteGroup() error = %v", err)
	}

	got, err := db.GetTarget(ctx, target.ID)
	if err != nil {
		t.Fatalf("target should survive group deletion: %v", err)
	}
	if got.GroupID != nil {
		t.Errorf("GroupID = %v, want nil", *got.GroupID)
	}

	rows, err := db.ListTargetTags(ctx, target.ID)
	if err != nil {
		t.Fatalf("ListTargetTags() error = %v", err)
	}
	var origins []models.TagOrigin
	for _, r := range rows {
		if !r.Consistent() {
			t.Errorf("inconsistent row %+v", r)
		}
		origins = append(origins, r.Origin)
	}
	if len(rows) != 2 {
		t.Fatalf("expected AUTO and DIRECT rows to remain, got %v", origins)
	}
	for _, r := range rows {
		if r.Origin == models.OriginGroup {
			t.Errorf("GROUP row survived group deletion: %+v", r)
		}
	}

	if err := db.DeleteGroup(ctx, group.ID); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestDeleteGroup_ConcurrentMembershipChanges(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	group, err := db.CreateGroup(ctx, "Rack")
	if err != nil {
		t.Fatalf("CreateGroup() error = %v", err)
	}
	nightly, err := db.CreateTag(ctx, "Nightly")
	if err != nil {
		t.Fatalf("CreateTag() error = %v", err)
	}
	if err := db.AddGroupTag(ctx, group.ID, nightly.ID); err != nil {
		t.Fatalf("AddGroupTag() error = %v", err)
	}
	var targets []*models.Target
	for i := 0; i < 8; i++ {
		targets = append(targets, mustCreateTarget(t, db, fmt.Sprintf("node-%d", i), nil))
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(targets)+1)
	for _, target := range targets {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			if err := db.SetTargetGroup(ctx, id, &group.ID); err != nil && !errors.Is(err, models.ErrNotFound) {
				errs <- fmt.Errorf("SetTargetGroup(%d): %w", id, err)
			}
		}(target.ID)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := db.DeleteGroup(ctx, group.ID); err != nil {
			errs <- fmt.Errorf("DeleteGroup: %w", err)
		}
	}()
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	for _, target := range targets {
		got, err := db.GetTarget(ctx, target.ID)
		if err != nil {
			t.Fatalf("GetTarget() error = %v", err)
		}
		if got.GroupID != nil {
			t.Errorf("target %d still in deleted group %d", target.ID, *got.GroupID)
		}
		rows, err := db.ListTargetTags(ctx, target.ID)
		if err != nil {
			t.Fatalf("ListTargetTags() error = %v", err)
		}
		for _, r := range rows {
			if r.Origin == models.OriginGroup {
				t.Errorf("target %d kept GROUP row %+v after group deletion", target.ID, r)
			}
		}
	}
}

func TestRemoveGroupTag(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	group, err := db.CreateGroup(ctx, "Edge")
	if err != nil {
		t.Fatalf("CreateGroup() error = %v", err)
	}
	tag, err := db.CreateTag(ctx, "Hourly")
	if err != nil {
		t.Fatalf("CreateTag() error = %v", err)
	}
	target := mustCreateTarget(t, db, "OPNsense", &group.ID)
	if err := db.AddGroupTag(ctx, group.ID, tag.ID); err != nil {
		t.Fatalf("AddGroupTag() error = %v", err)
	}
	if err := db.AddGroupTag(ctx, group.ID, tag.ID); err != nil {
		t.Fatalf("repeated AddGroupTag() error = %v", err)
	}

	rows, err := db.ListTagTargets(ctx, tag.ID)
	if err != nil || len(rows) != 1 || rows[0].ID != target.ID {
		t.Fatalf("expected propagated GROUP row, got %+v (%v)", rows, err)
	}

	if err := db.RemoveGroupTag(ctx, group.ID, tag.ID); err != nil {
		t.Fatalf("RemoveGroupTag() error = %v", err)
	}
	rows, err = db.ListTagTargets(ctx, tag.ID)
	if err != nil || len(rows) != 0 {
		t.Fatalf("expected no rows after RemoveGroupTag, got %+v (%v)", rows, err)
	}
}

func TestDeleteTarget_RemovesAutoTag(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	target := mustCreateTarget(t, db, "Pi-hole", nil)
	autoID, err := db.AutoTagID(ctx, target.ID)
	if err != nil {
		t.Fatalf("AutoTagID() error = %v", err)
	}

	if err := db.DeleteTarget(ctx, target.ID); err != nil {
		t.Fatalf("DeleteTarget() error = %v", err)
	}
	if _, err := db.GetTarget(ctx, target.ID); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected target gone, got %v", err)
	}
	if _, err := db.GetTag(ctx, autoID); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected auto tag gone, got %v", err)
	}
}

func TestJobs_CRUD(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	target := mustCreateTarget(t, db, "Vaultwarden", nil)
	tagID, err := db.AutoTagID(ctx, target.ID)
	if err != nil {
		t.Fatalf("AutoTagID() error = %v", err)
	}

	job := mustCreateJob(t, db, "Nightly vault", tagID)
	job.Retention = []byte(`{"rules":[{"unit":"day","window":7,"keep":1}]}`)
	job.Enabled = false
	job.Schedule = "30 1 * * *"
	if err := db.UpdateJob(ctx, job); err != nil {
		t.Fatalf("UpdateJob() error = %v", err)
	}

	got, err := db.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	if got.Enabled || got.Schedule != "30 1 * * *" || len(got.Retention) == 0 {
		t.Errorf("GetJob() = %+v", got)
	}

	enabled, err := db.ListEnabledJobs(ctx)
	if err != nil {
		t.Fatalf("ListEnabledJobs() error = %v", err)
	}
	if len(enabled) != 0 {
		t.Errorf("expected no enabled jobs, got %d", len(enabled))
	}

	if err := db.CreateJob(ctx, &models.Job{Name: "nightly VAULT", TagID: tagID, Schedule: "@daily"}); !errors.Is(err, models.ErrConflict) {
		t.Errorf("expected ErrConflict for duplicate job name, got %v", err)
	}
	if err := db.CreateJob(ctx, &models.Job{Name: "Orphan", TagID: 9999, Schedule: "@daily"}); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown tag, got %v", err)
	}
}

func TestDeleteJob_ArchivesRuns(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	target := mustCreateTarget(t, db, "Gitea", nil)
	tagID, err := db.AutoTagID(ctx, target.ID)
	if err != nil {
		t.Fatalf("AutoTagID() error = %v", err)
	}
	job := mustCreateJob(t, db, "Gitea nightly", tagID)

	now := time.Now().UTC()
	run1, _ := mustRecordBackup(t, db, job.ID, target.ID, now.Add(-48*time.Hour), "/a/1.tar.gz")
	run2, _ := mustRecordBackup(t, db, job.ID, target.ID, now.Add(-24*time.Hour), "/a/2.tar.gz")

	if _, err := db.ArchivedJob(ctx); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("sentinel should not exist before first delete, got %v", err)
	}

	archived, err := db.DeleteJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("DeleteJob() error = %v", err)
	}
	if archived != 2 {
		t.Errorf("archived = %d, want 2", archived)
	}

	sentinel, err := db.ArchivedJob(ctx)
	if err != nil {
		t.Fatalf("ArchivedJob() error = %v", err)
	}
	if sentinel.Enabled || !sentinel.IsArchive() {
		t.Errorf("sentinel = %+v", sentinel)
	}

	for _, id := range []int64{run1.ID, run2.ID} {
		r, err := db.GetRun(ctx, id)
		if err != nil {
			t.Fatalf("run %d should survive job deletion: %v", id, err)
		}
		if r.JobID == nil || *r.JobID != sentinel.ID {
			t.Errorf("run %d job = %v, want sentinel %d", id, r.JobID, sentinel.ID)
		}
	}

	if _, err := db.GetJob(ctx, job.ID); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected deleted job gone, got %v", err)
	}

	// A second deletion reuses the same sentinel
	second := mustCreateJob(t, db, "Gitea weekly", tagID)
	mustRecordBackup(t, db, second.ID, target.ID, now, "/a/3.tar.gz")
	if _, err := db.DeleteJob(ctx, second.ID); err != nil {
		t.Fatalf("DeleteJob(second) error = %v", err)
	}
	again, err := db.ArchivedJob(ctx)
	if err != nil || again.ID != sentinel.ID {
		t.Errorf("expected sentinel reuse, got %+v (%v)", again, err)
	}

	if _, err := db.DeleteJob(ctx, sentinel.ID); !errors.Is(err, models.ErrValidation) {
		t.Errorf("expected ErrValidation deleting sentinel, got %v", err)
	}
}

func TestRuns_Lifecycle(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	run := &models.Run{Operation: models.OperationRestore}
	if err := db.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}
	if run.ID == 0 || run.Status != models.StatusRunning {
		t.Fatalf("CreateRun() = %+v", run)
	}

	tr := &models.TargetRun{RunID: run.ID, TargetID: 7, Operation: models.OperationRestore}
	if err := db.CreateTargetRun(ctx, tr); err != nil {
		t.Fatalf("CreateTargetRun() error = %v", err)
	}
	tr.Status = models.StatusFailed
	tr.Message = "plugin mismatch"
	if err := db.FinishTargetRun(ctx, tr); err != nil {
		t.Fatalf("FinishTargetRun() error = %v", err)
	}
	run.Status = models.StatusFailed
	run.Message = "1 of 1 targets failed"
	if err := db.FinishRun(ctx, run); err != nil {
		t.Fatalf("FinishRun() error = %v", err)
	}

	got, err := db.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if got.JobID != nil || got.Status != models.StatusFailed || got.FinishedAt == nil {
		t.Errorf("GetRun() = %+v", got)
	}

	trs, err := db.ListTargetRuns(ctx, run.ID)
	if err != nil || len(trs) != 1 || trs[0].Message != "plugin mismatch" {
		t.Errorf("ListTargetRuns() = %+v (%v)", trs, err)
	}

	failed, err := db.ListRuns(ctx, RunFilter{Status: models.StatusFailed, Limit: 10})
	if err != nil || len(failed) != 1 {
		t.Errorf("ListRuns(failed) = %d (%v)", len(failed), err)
	}
}

func TestRetentionQueries(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	target := mustCreateTarget(t, db, "Nextcloud", nil)
	other := mustCreateTarget(t, db, "Immich", nil)
	tagID, err := db.AutoTagID(ctx, target.ID)
	if err != nil {
		t.Fatalf("AutoTagID() error = %v", err)
	}
	job := mustCreateJob(t, db, "Cloud", tagID)

	now := time.Now().UTC()
	mustRecordBackup(t, db, job.ID, target.ID, now.Add(-2*time.Hour), "/b/old.tar.gz")
	_, newest := mustRecordBackup(t, db, job.ID, target.ID, now.Add(-1*time.Hour), "/b/new.tar.gz")
	mustRecordBackup(t, db, job.ID, other.ID, now, "/c/x.tar.gz")

	// A failed run is never a candidate
	failedRun := &models.Run{JobID: &job.ID, Operation: models.OperationBackup}
	if err := db.CreateRun(ctx, failedRun); err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}
	ftr := &models.TargetRun{RunID: failedRun.ID, TargetID: target.ID, Operation: models.OperationBackup}
	if err := db.CreateTargetRun(ctx, ftr); err != nil {
		t.Fatalf("CreateTargetRun() error = %v", err)
	}
	ftr.Status = models.StatusFailed
	ftr.ArtifactPath = "/b/partial.tar.gz"
	if err := db.FinishTargetRun(ctx, ftr); err != nil {
		t.Fatalf("FinishTargetRun() error = %v", err)
	}

	candidates, err := db.ListRetentionCandidates(ctx, job.ID, target.ID)
	if err != nil {
		t.Fatalf("ListRetentionCandidates() error = %v", err)
	}
	if len(candidates) != 2 || candidates[0].ID != newest.ID {
		t.Fatalf("candidates = %+v, want 2 newest first", candidates)
	}

	pairs, err := db.ListBackupPairs(ctx)
	if err != nil {
		t.Fatalf("ListBackupPairs() error = %v", err)
	}
	if len(pairs) != 2 {
		t.Errorf("pairs = %+v, want 2", pairs)
	}
}

func TestRetentionQueries_TagRunsHaveAPair(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	target := mustCreateTarget(t, db, "Vaultwarden", nil)
	tagID, err := db.AutoTagID(ctx, target.ID)
	if err != nil {
		t.Fatalf("AutoTagID() error = %v", err)
	}
	job := mustCreateJob(t, db, "Passwords", tagID)

	now := time.Now().UTC()
	mustRecordBackup(t, db, job.ID, target.ID, now.Add(-time.Hour), "/b/job.tar.gz")
	for _, days := range []int{100, 200, 300} {
		mustRecordBackup(t, db, models.TagRunsJobID, target.ID, now.AddDate(0, 0, -days), fmt.Sprintf("/b/tag-%d.tar.gz", days))
	}

	// A restore without a job is never a retention pair
	restore := &models.Run{Operation: models.OperationRestore}
	if err := db.CreateRun(ctx, restore); err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}

	pairs, err := db.ListBackupPairs(ctx)
	if err != nil {
		t.Fatalf("ListBackupPairs() error = %v", err)
	}
	want := []models.JobTargetPair{
		{JobID: models.TagRunsJobID, TargetID: target.ID},
		{JobID: job.ID, TargetID: target.ID},
	}
	if !reflect.DeepEqual(pairs, want) {
		t.Errorf("pairs = %+v, want %+v", pairs, want)
	}

	candidates, err := db.ListRetentionCandidates(ctx, models.TagRunsJobID, target.ID)
	if err != nil {
		t.Fatalf("ListRetentionCandidates() error = %v", err)
	}
	if len(candidates) != 3 || candidates[0].ArtifactPath != "/b/tag-100.tar.gz" {
		t.Errorf("tag run candidates = %+v, want 3 newest first", candidates)
	}

	jobCandidates, err := db.ListRetentionCandidates(ctx, job.ID, target.ID)
	if err != nil || len(jobCandidates) != 1 {
		t.Errorf("job candidates = %+v (%v), want only the job backup", jobCandidates, err)
	}
}

func TestDeleteTargetRun_RemovesOrphanRun(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	jobID := int64(1)
	run := &models.Run{JobID: &jobID, Operation: models.OperationBackup}
	if err := db.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}
	first := &models.TargetRun{RunID: run.ID, TargetID: 1, Operation: models.OperationBackup}
	second := &models.TargetRun{RunID: run.ID, TargetID: 2, Operation: models.OperationBackup}
	for _, tr := range []*models.TargetRun{first, second} {
		if err := db.CreateTargetRun(ctx, tr); err != nil {
			t.Fatalf("CreateTargetRun() error = %v", err)
		}
	}

	deleted, err := db.DeleteTargetRun(ctx, first.ID)
	if err != nil {
		t.Fatalf("DeleteTargetRun(first) error = %v", err)
	}
	if deleted {
		t.Error("run should survive while it still has a target run")
	}

	deleted, err = db.DeleteTargetRun(ctx, second.ID)
	if err != nil {
		t.Fatalf("DeleteTargetRun(second) error = %v", err)
	}
	if !deleted {
		t.Error("orphan run should be deleted with its last target run")
	}
	if _, err := db.GetRun(ctx, run.ID); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected run gone, got %v", err)
	}

	// Idempotent
	if deleted, err := db.DeleteTargetRun(ctx, second.ID); err != nil || deleted {
		t.Errorf("repeat DeleteTargetRun() = %v, %v", deleted, err)
	}
}

func TestEnsureMaintenanceJob_NeverDuplicates(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	seed := &models.MaintenanceJob{
		Key:      models.RetentionSweepKey,
		Name:     "Retention sweep",
		JobType:  models.MaintenanceRetention,
		Schedule: "0 3 * * *",
		Enabled:  true,
	}

	first, err := db.EnsureMaintenanceJob(ctx, seed)
	if err != nil {
		t.Fatalf("EnsureMaintenanceJob() error = %v", err)
	}
	if err := db.UpdateMaintenanceJobSchedule(ctx, first.ID, "0 4 * * *", true); err != nil {
		t.Fatalf("UpdateMaintenanceJobSchedule() error = %v", err)
	}

	second, err := db.EnsureMaintenanceJob(ctx, seed)
	if err != nil {
		t.Fatalf("EnsureMaintenanceJob() second error = %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("re-seed created a new row: %d != %d", second.ID, first.ID)
	}
	if second.Schedule != "0 4 * * *" {
		t.Errorf("re-seed overwrote operator schedule: %q", second.Schedule)
	}

	visible, err := db.ListMaintenanceJobs(ctx, false)
	if err != nil {
		t.Fatalf("ListMaintenanceJobs() error = %v", err)
	}
	if len(visible) != 0 {
		t.Errorf("hidden job listed: %+v", visible)
	}
	all, err := db.ListMaintenanceJobs(ctx, true)
	if err != nil || len(all) != 1 {
		t.Errorf("ListMaintenanceJobs(all) = %d (%v)", len(all), err)
	}

	mr := &models.MaintenanceRun{MaintenanceJobID: first.ID}
	if err := db.CreateMaintenanceRun(ctx, mr); err != nil {
		t.Fatalf("CreateMaintenanceRun() error = %v", err)
	}
	mr.Status = models.StatusSuccess
	mr.Result = []byte(`{"targets_processed":0}`)
	if err := db.FinishMaintenanceRun(ctx, mr); err != nil {
		t.Fatalf("FinishMaintenanceRun() error = %v", err)
	}
	runs, err := db.ListMaintenanceRuns(ctx, first.ID, 5)
	if err != nil || len(runs) != 1 || runs[0].Status != models.StatusSuccess || runs[0].FinishedAt == nil {
		t.Errorf("ListMaintenanceRuns() = %+v (%v)", runs, err)
	}
}

func TestSettings_RetentionPolicy(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	s, err := db.GetSettings(ctx)
	if err != nil {
		t.Fatalf("GetSettings() error = %v", err)
	}
	if len(s.Retention) != 0 {
		t.Errorf("fresh settings should have no policy, got %s", s.Retention)
	}

	policy := []byte(`{"rules":[{"unit":"month","window":6,"keep":1}]}`)
	if err := db.SetRetentionPolicy(ctx, policy); err != nil {
		t.Fatalf("SetRetentionPolicy() error = %v", err)
	}
	if err := db.SetRetentionPolicy(ctx, policy); err != nil {
		t.Fatalf("second SetRetentionPolicy() error = %v", err)
	}
	s, err = db.GetSettings(ctx)
	if err != nil {
		t.Fatalf("GetSettings() error = %v", err)
	}
	if string(s.Retention) != string(policy) {
		t.Errorf("Retention = %s, want %s", s.Retention, policy)
	}

	if err := db.SetRetentionPolicy(ctx, nil); err != nil {
		t.Fatalf("clear SetRetentionPolicy() error = %v", err)
	}
	s, err = db.GetSettings(ctx)
	if err != nil || len(s.Retention) != 0 {
		t.Errorf("expected cleared policy, got %s (%v)", s.Retention, err)
	}
}

func TestRunStats(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	target := mustCreateTarget(t, db, "Paperless", nil)
	tagID, err := db.AutoTagID(ctx, target.ID)
	if err != nil {
		t.Fatalf("AutoTagID() error = %v", err)
	}
	busy := mustCreateJob(t, db, "Docs", tagID)
	mustCreateJob(t, db, "Idle", tagID)

	mustRecordBackup(t, db, busy.ID, target.ID, time.Now().UTC().Add(-time.Hour), "/p/1")
	failed := &models.Run{JobID: &busy.ID, Operation: models.OperationBackup}
	if err := db.CreateRun(ctx, failed); err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}
	failed.Status = models.StatusFailed
	if err := db.FinishRun(ctx, failed); err != nil {
		t.Fatalf("FinishRun() error = %v", err)
	}

	stats, err := db.RunStats(ctx)
	if err != nil {
		t.Fatalf("RunStats() error = %v", err)
	}
	if len(stats) != 2 {
		t.Fatalf("expected stats for 2 jobs, got %d", len(stats))
	}
	if stats[0].SuccessCount != 1 || stats[0].FailureCount != 1 || stats[0].LastFinished == nil {
		t.Errorf("busy stats = %+v", stats[0])
	}
	if stats[1].SuccessCount != 0 || stats[1].LastFinished != nil {
		t.Errorf("idle stats = %+v", stats[1])
	}
}
