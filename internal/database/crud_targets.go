// Homevault - Homelab Backup Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/homevault

/*
crud_targets.go - Targets and Tag Provenance

Every target owns exactly one AUTO tag, created in the same transaction and
named after it. Renaming a target renames the AUTO tag; neither slug ever
changes. DIRECT rows are user attachments. GROUP rows are derived from the
target's group and carry source_group_id; they are rewritten whenever group
membership or the group's tag set changes.
*/

//nolint:staticcheck // File documentation, not package doc
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/homevault/internal/models"
	"github.com/tomtom215/homevault/internal/tags"
)

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

const targetColumns = `id, name, slug, plugin_name, plugin_config, group_id, created_at, updated_at`

func scanTarget(s rowScanner) (*models.Target, error) {
	var (
		t       models.Target
		cfg     string
		groupID sql.NullInt64
	)
	if err := s.Scan(&t.ID, &t.Name, &t.Slug, &t.Plugin, &cfg, &groupID, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.Config = json.RawMessage(cfg)
	if groupID.Valid {
		id := groupID.Int64
		t.GroupID = &id
	}
	return &t, nil
}

func configText(cfg json.RawMessage) string {
	if len(cfg) == 0 {
		return "{}"
	}
	return string(cfg)
}

// slugTaken reports whether a slug is used by any target or tag, or reserved.
func slugTaken(ctx context.Context, tx *sql.Tx, slug string) (bool, error) {
	if slug == models.ArchivedTagSlug {
		return true, nil
	}
	var n int
	err := tx.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM targets WHERE slug = ?) + (SELECT COUNT(*) FROM tags WHERE slug = ?)`,
		slug, slug).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check slug: %w", err)
	}
	return n > 0, nil
}

func nameTaken(ctx context.Context, tx *sql.Tx, table, name string, excludeID int64) (bool, error) {
	var n int
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE lower(name) = lower(?) AND id <> ?`, table)
	if err := tx.QueryRowContext(ctx, query, strings.TrimSpace(name), excludeID).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to check %s name: %w", table, err)
	}
	return n > 0, nil
}

// CreateTarget inserts a target and its AUTO tag atomically. The slug is
// derived from the name once and is unique across targets and tags. When the
// target joins a group, GROUP rows for the group's tags are added too.
func (db *DB) CreateTarget(ctx context.Context, target *models.Target) error {
	target.Name = strings.TrimSpace(target.Name)
	if target.Name == "" {
		return models.NewValidationError("name", "is required")
	}

	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	now := time.Now().UTC()
	return db.withTx(ctx, func(tx *sql.Tx) error {
		taken, err := nameTaken(ctx, tx, "targets", target.Name, 0)
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("target name %q: %w", target.Name, models.ErrConflict)
		}

		slug, err := tags.UniqueSlug(tags.Slugify(target.Name), func(s string) (bool, error) {
			return slugTaken(ctx, tx, s)
		})
		if err != nil {
			return err
		}

		if target.GroupID != nil {
			if err := groupExists(ctx, tx, *target.GroupID); err != nil {
				return err
			}
		}

		err = tx.QueryRowContext(ctx, `
			INSERT INTO targets (name, slug, plugin_name, plugin_config, group_id, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			RETURNING id`,
			target.Name, slug, target.Plugin, configText(target.Config), nullInt64(target.GroupID), now, now,
		).Scan(&target.ID)
		if isConstraintViolation(err) {
			return fmt.Errorf("target slug %q: %w", slug, models.ErrConflict)
		}
		if err != nil {
			return fmt.Errorf("failed to insert target: %w", err)
		}

		var tagID int64
		err = tx.QueryRowContext(ctx, `
			INSERT INTO tags (name, slug, created_at) VALUES (?, ?, ?) RETURNING id`,
			target.Name, slug, now,
		).Scan(&tagID)
		if err != nil {
			return fmt.Errorf("failed to insert auto tag: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO target_tags (target_id, tag_id, origin, source_group_id) VALUES (?, ?, 'AUTO', 0)`,
			target.ID, tagID); err != nil {
			return fmt.Errorf("failed to attach auto tag: %w", err)
		}

		if target.GroupID != nil {
			if err := addGroupRowsForTarget(ctx, tx, target.ID, *target.GroupID); err != nil {
				return err
			}
		}

		target.Slug = slug
		target.CreatedAt = now
		target.UpdatedAt = now
		return nil
	})
}

// GetTarget returns a target by id
func (db *DB) GetTarget(ctx context.Context, id int64) (*models.Target, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+targetColumns+` FROM targets WHERE id = ?`, id)
	t, err := scanTarget(row)
	if err != nil {
		return nil, notFoundOr(err, "target", id)
	}
	return t, nil
}

// GetTargetBySlug returns a target by its immutable slug
func (db *DB) GetTargetBySlug(ctx context.Context, slug string) (*models.Target, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+targetColumns+` FROM targets WHERE slug = ?`, slug)
	t, err := scanTarget(row)
	if err != nil {
		return nil, notFoundOr(err, "target", slug)
	}
	return t, nil
}

// ListTargets returns all targets ordered by id
func (db *DB) ListTargets(ctx context.Context) ([]models.Target, error) {
	return db.queryTargets(ctx, `SELECT `+targetColumns+` FROM targets ORDER BY id`)
}

func (db *DB) queryTargets(ctx context.Context, query string, args ...any) ([]models.Target, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query targets: %w", err)
	}
	defer closeWithLog(rows, "targets rows")

	var out []models.Target
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan target: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// RenameTarget changes the display name of a target and its AUTO tag.
// The slugs of both are left untouched.
func (db *DB) RenameTarget(ctx context.Context, id int64, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.NewValidationError("name", "is required")
	}

	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	return db.withTx(ctx, func(tx *sql.Tx) error {
		taken, err := nameTaken(ctx, tx, "targets", name, id)
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("target name %q: %w", name, models.ErrConflict)
		}

		res, err := tx.ExecContext(ctx, `UPDATE targets SET name = ?, updated_at = ? WHERE id = ?`,
			name, time.Now().UTC(), id)
		if err != nil {
			return fmt.Errorf("failed to rename target: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 { //nolint:errcheck // duckdb always reports rows affected
			return models.NewNotFoundError("target", id)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE tags SET name = ?
			WHERE id IN (SELECT tag_id FROM target_tags WHERE target_id = ? AND origin = 'AUTO')`,
			name, id); err != nil {
			return fmt.Errorf("failed to rename auto tag: %w", err)
		}
		return nil
	})
}

// UpdateTargetConfig replaces a target's opaque plugin configuration
func (db *DB) UpdateTargetConfig(ctx context.Context, id int64, cfg json.RawMessage) error {
	res, err := db.conn.ExecContext(ctx, `UPDATE targets SET plugin_config = ?, updated_at = ? WHERE id = ?`,
		configText(cfg), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update target config: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 { //nolint:errcheck // duckdb always reports rows affected
		return models.NewNotFoundError("target", id)
	}
	return nil
}

// SetTargetGroup moves a target into groupID, or out of any group when nil.
// GROUP rows contributed by the old group are replaced with the new group's.
func (db *DB) SetTargetGroup(ctx context.Context, targetID int64, groupID *int64) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	return db.withTx(ctx, func(tx *sql.Tx) error {
		if err := targetExists(ctx, tx, targetID); err != nil {
			return err
		}
		if groupID != nil {
			if err := groupExists(ctx, tx, *groupID); err != nil {
				return err
			}
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM target_tags WHERE target_id = ? AND origin = 'GROUP'`, targetID); err != nil {
			return fmt.Errorf("failed to clear group tags: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE targets SET group_id = ?, updated_at = ? WHERE id = ?`,
			nullInt64(groupID), time.Now().UTC(), targetID); err != nil {
			return fmt.Errorf("failed to set target group: %w", err)
		}
		if groupID != nil {
			return addGroupRowsForTarget(ctx, tx, targetID, *groupID)
		}
		return nil
	})
}

// DeleteTarget removes a target, every tag row that points at it, and its
// AUTO tag (including attachments of that tag to other targets). Run history
// referencing the target is kept.
func (db *DB) DeleteTarget(ctx context.Context, id int64) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	return db.withTx(ctx, func(tx *sql.Tx) error {
		var autoTagID sql.NullInt64
		err := tx.QueryRowContext(ctx,
			`SELECT tag_id FROM target_tags WHERE target_id = ? AND origin = 'AUTO'`, id).Scan(&autoTagID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to find auto tag: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM target_tags WHERE target_id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete target tags: %w", err)
		}
		if autoTagID.Valid {
			if _, err := tx.ExecContext(ctx, `DELETE FROM target_tags WHERE tag_id = ?`, autoTagID.Int64); err != nil {
				return fmt.Errorf("failed to detach auto tag: %w", err)
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM group_tags WHERE tag_id = ?`, autoTagID.Int64); err != nil {
				return fmt.Errorf("failed to detach auto tag from groups: %w", err)
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM tags WHERE id = ?`, autoTagID.Int64); err != nil {
				return fmt.Errorf("failed to delete auto tag: %w", err)
			}
		}

		res, err := tx.ExecContext(ctx, `DELETE FROM targets WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to delete target: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 { //nolint:errcheck // duckdb always reports rows affected
			return models.NewNotFoundError("target", id)
		}
		return nil
	})
}

// AutoTagID returns the id of a target's AUTO tag
func (db *DB) AutoTagID(ctx context.Context, targetID int64) (int64, error) {
	var id int64
	err := db.conn.QueryRowContext(ctx,
		`SELECT tag_id FROM target_tags WHERE target_id = ? AND origin = 'AUTO'`, targetID).Scan(&id)
	if err != nil {
		return 0, notFoundOr(err, "target", targetID)
	}
	return id, nil
}

func targetExists(ctx context.Context, tx *sql.Tx, id int64) error {
	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM targets WHERE id = ?`, id).Scan(&n); err != nil {
		return fmt.Errorf("failed to check target: %w", err)
	}
	if n == 0 {
		return models.NewNotFoundError("target", id)
	}
	return nil
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
