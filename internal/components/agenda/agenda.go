// SPDX-License-Identifier: AGPL-3.0-or-later
// SPDX-FileCopyrightText: 2025 FamilyAgenda Authors

// Package agenda implements the family's shared task list and calendar.
package agenda

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Layouts accepted for task dates and event start times.
const (
	DateLayout     = "2006-01-02"
	DateTimeLayout = "2006-01-02T15:04"
)

// UpcomingTolerance keeps events that started up to a day ago in the
// upcoming view.
const UpcomingTolerance = 24 * time.Hour

var ErrNotFound = errors.New("not found")

// TaskCategories are the categories a task can carry, in display order.
var TaskCategories = []string{"Casa", "Compras", "Trabalho", "Saúde", "Lazer", "Outros"}

// EventCategories are the categories an event can carry, in display order.
var EventCategories = []string{"Aniversário", "Consulta", "Reunião", "Feriado", "Férias", "Jantar", "Outros"}

// FieldError reports an invalid input field.
type FieldError struct {
	Field string

	// Code is "missing_<field>" or "invalid_field".
	Code string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Code)
}

func missing(field string) error {
	return &FieldError{Field: field, Code: "missing_" + field}
}

func invalid(field string) error {
	return &FieldError{Field: field, Code: "invalid_field"}
}

// NormalizeCategory returns the canonical spelling of category from
// allowed. Comparison is on the NFC form, so input using
// a combining accent matches its precomposed spelling.
func NormalizeCategory(category string, allowed []string) (string, bool) {
	c := norm.NFC.String(strings.TrimSpace(category))
	for _, a := range allowed {
		if c == norm.NFC.String(a) {
			return a, true
		}
	}
	return "", false
}

// ValidDate reports whether s is a calendar date (YYYY-MM-DD).
func ValidDate(s string) bool {
	_, err := time.Parse(DateLayout, s)
	return err == nil
}

// ValidDateTime reports whether s is a local date and time (YYYY-MM-DDTHH:MM).
func ValidDateTime(s string) bool {
	_, err := time.Parse(DateTimeLayout, s)
	return err == nil
}
