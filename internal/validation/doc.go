// Homevault - Homelab Backup Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/homevault

// Package validation provides struct validation using go-playground/validator v10.
//
// This package wraps the go-playground/validator library to provide a thread-safe
// singleton validator instance with a custom "cron" tag and user-friendly error
// messages. Failures convert to models.ValidationError so callers can match them
// with errors.Is(err, models.ErrValidation).
//
// # Quick Start
//
//	type JobRequest struct {
//	    Name     string `validate:"required,max=128"`
//	    Schedule string `validate:"required,cron"`
//	}
//
//	if err := validation.Validate(&req); err != nil {
//	    return err // matches models.ErrValidation
//	}
//
// # Cron Expressions
//
// The cron tag and ValidateCron accept standard five-field expressions
// (minute hour day-of-month month day-of-week) and descriptors such as
// "@daily". The same parser is used by the scheduler, so anything accepted
// here is guaranteed to schedule.
package validation
