// SPDX-License-Identifier: AGPL-3.0-or-later
// SPDX-FileCopyrightText: 2025 FamilyAgenda Authors

// Package family implements membership for the single configured family:
// invite acceptance, owner-only invites and removals, and member listing.
package family

import (
	"errors"
	"strings"

	"github.com/MahdiBaghbani/familyagenda-go/internal/components/identity"
	"github.com/MahdiBaghbani/familyagenda-go/internal/platform/store"
)

var (
	ErrForbidden        = errors.New("forbidden")
	ErrMissingFamilyID  = errors.New("missing family id")
	ErrMissingEmail     = errors.New("missing email")
	ErrMissingUserID    = errors.New("missing user id")
	ErrCannotRemoveSelf = errors.New("cannot remove self")
	ErrInvalidRole      = errors.New("invalid role")
)

// Settings identify the family and its owner. Values are read per call so
// a missing family id surfaces at request time.
type Settings struct {
	FamilyID   string
	OwnerEmail string

	// SiteURL is the redirect target for invite links.
	SiteURL string
}

// IsOwner reports whether caller's email matches the owner email.
func (s Settings) IsOwner(caller *identity.Identity) bool {
	return caller != nil && identity.SameEmail(caller.Email, s.OwnerEmail)
}

// ID returns the trimmed family id or ErrMissingFamilyID.
func (s Settings) ID() (string, error) {
	id := strings.TrimSpace(s.FamilyID)
	if id == "" {
		return "", ErrMissingFamilyID
	}
	return id, nil
}

// StoreError is a persistence failure whose message reaches the caller
// verbatim.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return e.Err.Error() }
func (e *StoreError) Unwrap() error { return e.Err }

func storeErr(op string, err error) error {
	return &StoreError{Op: op, Err: err}
}

// InviteError is a failure reported by the invite sender. Its message
// reaches the caller verbatim.
type InviteError struct {
	Err error
}

func (e *InviteError) Error() string { return e.Err.Error() }
func (e *InviteError) Unwrap() error { return e.Err }

// ValidRole reports whether role can be granted.
func ValidRole(role string) bool {
	return role == store.RoleAdmin || role == store.RoleMember
}
