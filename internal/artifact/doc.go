// Homevault - Homelab Backup Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/homevault

// Package artifact owns the on-disk layout of backup artifacts and their
// JSON sidecars.
//
// Plugins ask the Store for a destination path, write the artifact there and
// record a Sidecar with the plugin id, target, size and checksum. The
// retention sweep deletes artifacts by the exact path stored on the
// TargetRun row, followed by the sidecar; both deletions are idempotent.
package artifact
