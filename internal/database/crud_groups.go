// Homevault - Homelab Backup Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/homevault

package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/homevault/internal/models"
	"github.com/tomtom215/homevault/internal/tags"
)

// CreateGroup inserts a new group with a unique name
func (db *DB) CreateGroup(ctx context.Context, name string) (*models.Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, models.NewValidationError("name", "is required")
	}

	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	g := &models.Group{Name: name, CreatedAt: time.Now().UTC()}
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		taken, err := nameTaken(ctx, tx, "target_groups", name, 0)
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("group name %q: %w", name, models.ErrConflict)
		}
		return tx.QueryRowContext(ctx,
			`INSERT INTO target_groups (name, created_at) VALUES (?, ?) RETURNING id`,
			g.Name, g.CreatedAt).Scan(&g.ID)
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

// GetGroup returns a group by id
func (db *DB) GetGroup(ctx context.Context, id int64) (*models.Group, error) {
	var g models.Group
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM target_groups WHERE id = ?`, id).Scan(&g.ID, &g.Name, &g.CreatedAt)
	if err != nil {
		return nil, notFoundOr(err, "group", id)
	}
	return &g, nil
}

// ListGroups returns all groups ordered by id
func (db *DB) ListGroups(ctx context.Context) ([]models.Group, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT id, name, created_at FROM target_groups ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query groups: %w", err)
	}
	defer closeWithLog(rows, "group rows")

	var out []models.Group
	for rows.Next() {
		var g models.Group
		if err := rows.Scan(&g.ID, &g.Name, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// ListGroupTags returns the tags a group contributes to its members
func (db *DB) ListGroupTags(ctx context.Context, groupID int64) ([]models.Tag, error) {
	return db.queryTags(ctx, `
		SELECT t.id, t.name, t.slug, t.created_at
		FROM group_tags gt JOIN tags t ON t.id = gt.tag_id
		WHERE gt.group_id = ?
		ORDER BY t.id`, groupID)
}

// AddGroupTag attaches a tag to a group and propagates a GROUP row to every
// current member. Repeating the call is a no-op.
func (db *DB) AddGroupTag(ctx context.Context, groupID, tagID int64) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	return db.withTx(ctx, func(tx *sql.Tx) error {
		if err := groupExists(ctx, tx, groupID); err != nil {
			return err
		}
		if err := tagExists(ctx, tx, tagID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO group_tags (group_id, tag_id) VALUES (?, ?) ON CONFLICT DO NOTHING`,
			groupID, tagID); err != nil {
			return fmt.Errorf("failed to attach tag to group: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO target_tags (target_id, tag_id, origin, source_group_id)
			SELECT id, ?, 'GROUP', ? FROM targets WHERE group_id = ?
			ON CONFLICT DO NOTHING`,
			tagID, groupID, groupID); err != nil {
			return fmt.Errorf("failed to propagate group tag: %w", err)
		}
		return nil
	})
}

// RemoveGroupTag detaches a tag from a group and removes the GROUP rows it
// contributed. DIRECT and AUTO rows for the same tag are untouched.
func (db *DB) RemoveGroupTag(ctx context.Context, groupID, tagID int64) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	return db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM group_tags WHERE group_id = ? AND tag_id = ?`, groupID, tagID); err != nil {
			return fmt.Errorf("failed to detach tag from group: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM target_tags WHERE tag_id = ? AND origin = 'GROUP' AND source_group_id = ?`,
			tagID, groupID); err != nil {
			return fmt.Errorf("failed to remove group tag rows: %w", err)
		}
		return nil
	})
}

// DeleteGroup detaches the group's members and removes only the GROUP rows it
// contributed. Targets are never deleted.
func (db *DB) DeleteGroup(ctx context.Context, id int64) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	return db.withTx(ctx, func(tx *sql.Tx) error {
		if err := groupExists(ctx, tx, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM target_tags WHERE origin = 'GROUP' AND source_group_id = ?`, id); err != nil {
			return fmt.Errorf("failed to remove group tag rows: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE targets SET group_id = NULL, updated_at = ? WHERE group_id = ?`, time.Now().UTC(), id); err != nil {
			return fmt.Errorf("failed to detach group members: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM group_tags WHERE group_id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete group tags: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM target_groups WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete group: %w", err)
		}
		return nil
	})
}

func groupExists(ctx context.Context, tx *sql.Tx, id int64) error {
	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM target_groups WHERE id = ?`, id).Scan(&n); err != nil {
		return fmt.Errorf("failed to check group: %w", err)
	}
	if n == 0 {
		return models.NewNotFoundError("group", id)
	}
	return nil
}

// addGroupRowsForTarget inserts one GROUP row per tag the group carries
func addGroupRowsForTarget(ctx context.Context, tx *sql.Tx, targetID, groupID int64) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO target_tags (target_id, tag_id, origin, source_group_id)
		SELECT ?, tag_id, 'GROUP', group_id FROM group_tags WHERE group_id = ?
		ON CONFLICT DO NOTHING`,
		targetID, groupID); err != nil {
		return fmt.Errorf("failed to add group tags to target: %w", err)
	}
	return nil
}

// CreateTag inserts a user tag. The slug is derived from the name and must
// not collide with any existing tag or target slug, or with the reserved
// archive slug.
func (db *DB) CreateTag(ctx context.Context, name string) (*models.Tag, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, models.NewValidationError("name", "is required")
	}

	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	tag := &models.Tag{Name: name, Slug: tags.Slugify(name), CreatedAt: time.Now().UTC()}
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		taken, err := slugTaken(ctx, tx, tag.Slug)
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("tag slug %q: %w", tag.Slug, models.ErrConflict)
		}
		err = tx.QueryRowContext(ctx,
			`INSERT INTO tags (name, slug, created_at) VALUES (?, ?, ?) RETURNING id`,
			tag.Name, tag.Slug, tag.CreatedAt).Scan(&tag.ID)
		if isConstraintViolation(err) {
			return fmt.Errorf("tag slug %q: %w", tag.Slug, models.ErrConflict)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return tag, nil
}

// GetTag returns a tag by id
func (db *DB) GetTag(ctx context.Context, id int64) (*models.Tag, error) {
	var t models.Tag
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, name, slug, created_at FROM tags WHERE id = ?`, id).Scan(&t.ID, &t.Name, &t.Slug, &t.CreatedAt)
	if err != nil {
		return nil, notFoundOr(err, "tag", id)
	}
	return &t, nil
}

// GetTagBySlug returns a tag by slug
func (db *DB) GetTagBySlug(ctx context.Context, slug string) (*models.Tag, error) {
	var t models.Tag
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, name, slug, created_at FROM tags WHERE slug = ?`, slug).Scan(&t.ID, &t.Name, &t.Slug, &t.CreatedAt)
	if err != nil {
		return nil, notFoundOr(err, "tag", slug)
	}
	return &t, nil
}

// ListTags returns all tags ordered by id
func (db *DB) ListTags(ctx context.Context) ([]models.Tag, error) {
	return db.queryTags(ctx, `SELECT id, name, slug, created_at FROM tags ORDER BY id`)
}

func (db *DB) queryTags(ctx context.Context, query string, args ...any) ([]models.Tag, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tags: %w", err)
	}
	defer closeWithLog(rows, "tag rows")

	var out []models.Tag
	for rows.Next() {
		var t models.Tag
		if err := rows.Scan(&t.ID, &t.Name, &t.Slug, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// AttachTag adds a DIRECT attachment. Repeating the call is a no-op.
func (db *DB) AttachTag(ctx context.Context, targetID, tagID int64) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	return db.withTx(ctx, func(tx *sql.Tx) error {
		if err := targetExists(ctx, tx, targetID); err != nil {
			return err
		}
		if err := tagExists(ctx, tx, tagID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO target_tags (target_id, tag_id, origin, source_group_id) VALUES (?, ?, 'DIRECT', 0)
			ON CONFLICT DO NOTHING`, targetID, tagID); err != nil {
			return fmt.Errorf("failed to attach tag: %w", err)
		}
		return nil
	})
}

// DetachTag removes a DIRECT attachment only
func (db *DB) DetachTag(ctx context.Context, targetID, tagID int64) error {
	if _, err := db.conn.ExecContext(ctx,
		`DELETE FROM target_tags WHERE target_id = ? AND tag_id = ? AND origin = 'DIRECT'`,
		targetID, tagID); err != nil {
		return fmt.Errorf("failed to detach tag: %w", err)
	}
	return nil
}

// ListTargetTags returns every attachment row for a target
func (db *DB) ListTargetTags(ctx context.Context, targetID int64) ([]models.TargetTag, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT target_id, tag_id, origin, source_group_id
		FROM target_tags WHERE target_id = ?
		ORDER BY tag_id, origin, source_group_id`, targetID)
	if err != nil {
		return nil, fmt.Errorf("failed to query target tags: %w", err)
	}
	defer closeWithLog(rows, "target tag rows")

	var out []models.TargetTag
	for rows.Next() {
		var (
			tt     models.TargetTag
			origin string
			source int64
		)
		if err := rows.Scan(&tt.TargetID, &tt.TagID, &origin, &source); err != nil {
			return nil, fmt.Errorf("failed to scan target tag: %w", err)
		}
		tt.Origin = models.TagOrigin(origin)
		if source != 0 {
			sg := source
			tt.SourceGroupID = &sg
		}
		out = append(out, tt)
	}
	return out, rows.Err()
}

// ListTagTargets returns one row per attachment of tagID, ordered by target
// id then origin. Callers deduplicate (see tags.Resolver). An unknown tag is
// a NotFoundError.
func (db *DB) ListTagTargets(ctx context.Context, tagID int64) ([]models.Target, error) {
	if _, err := db.GetTag(ctx, tagID); err != nil {
		return nil, err
	}
	return db.queryTargets(ctx, `
		SELECT t.id, t.name, t.slug, t.plugin_name, t.plugin_config, t.group_id, t.created_at, t.updated_at
		FROM target_tags tt JOIN targets t ON t.id = tt.target_id
		WHERE tt.tag_id = ?
		ORDER BY t.id, tt.origin`, tagID)
}

func tagExists(ctx context.Context, tx *sql.Tx, id int64) error {
	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM tags WHERE id = ?`, id).Scan(&n); err != nil {
		return fmt.Errorf("failed to check tag: %w", err)
	}
	if n == 0 {
		return models.NewNotFoundError("tag", id)
	}
	return nil
}
