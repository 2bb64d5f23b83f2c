// Homevault - Homelab Backup Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/homevault

package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"

	"github.com/tomtom215/homevault/internal/models"
)

// CronParser parses five-field cron expressions and descriptors.
// The scheduler uses the same parser so validation and scheduling agree.
var CronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// GetValidator returns the shared validator with the cron tag registered.
func GetValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(fieldName)

		if err := validate.RegisterValidation("cron", validateCronField); err != nil {
			panic(fmt.Sprintf("register cron validator: %v", err))
		}
	})

	return validate
}

// fieldName reports the JSON name of a field, so errors use the keys
// operators write in job documents. Untagged fields become snake case.
func fieldName(fld reflect.StructField) string {
	name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
	switch name {
	case "-":
		return ""
	case "":
		return snakeCase(fld.Name)
	}
	return name
}

func snakeCase(name string) string {
	var b strings.Builder
	for i, r := range name {
		if unicode.IsUpper(r) {
			if i > 0 && !unicode.IsUpper(rune(name[i-1])) {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}

func validateCronField(fl validator.FieldLevel) bool {
	_, err := CronParser.Parse(fl.Field().String())
	return err == nil
}

// ValidateCron parses expr and returns a models.ValidationError on failure.
func ValidateCron(expr string) error {
	if strings.TrimSpace(expr) == "" {
		return models.NewValidationError("schedule", "cron expression is required")
	}
	if _, err := CronParser.Parse(expr); err != nil {
		return models.NewValidationError("schedule", fmt.Sprintf("invalid cron expression %q: %v", expr, err))
	}
	return nil
}

// Validate checks s against its validate tags. Each failing field becomes a
// *models.ValidationError; several failures are joined, so errors.As finds
// the first and errors.Is(err, models.ErrValidation) matches either way.
func Validate(s any) error {
	err := GetValidator().Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return models.NewValidationError("", err.Error())
	}
	if len(fieldErrs) == 1 {
		return models.NewValidationError(fieldErrs[0].Field(), reason(fieldErrs[0]))
	}

	errs := make([]error, len(fieldErrs))
	for i, fe := range fieldErrs {
		errs[i] = models.NewValidationError(fe.Field(), reason(fe))
	}
	return errors.Join(errs...)
}

// reason phrases a failed tag without the field name, which
// models.ValidationError already prints.
func reason(fe validator.FieldError) string {
	param := fe.Param()
	unit := ""
	if fe.Kind() == reflect.String {
		unit = " characters"
	}

	switch fe.Tag() {
	case "required":
		return "is required"
	case "cron":
		return fmt.Sprintf("%q is not a valid cron expression", fe.Value())
	case "url":
		return "must be a valid URL"
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(param, " ", ", ")
	case "gte":
		return "must be greater than or equal to " + param
	case "lte":
		return "must be less than or equal to " + param
	case "gt":
		return "must be greater than " + param
	case "lt":
		return "must be less than " + param
	case "min":
		return "must be at least " + param + unit
	case "max":
		return "must be at most " + param + unit
	default:
		return "failed " + fe.Tag() + " validation"
	}
}
