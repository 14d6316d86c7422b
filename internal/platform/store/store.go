// Package store provides persistence primitives and driver abstractions.
package store

import (
	"context"
	"errors"
	"time"
)

// Common errors for store operations.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrClosed        = errors.New("store closed")
)

// Roles a membership or invite can carry.
const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// Driver defines the lifecycle of a persistence backend.
// Implementations must be safe for concurrent use.
type Driver interface {
	// Init opens the backend and migrates the schema.
	Init(ctx context.Context) error

	Close() error

	// Name returns the driver name (memory, sqlite, mirror).
	Name() string
}

// MembershipStore persists family memberships. At most one row exists per
// (family, user).
type MembershipStore interface {
	GetMembership(ctx context.Context, familyID, userID string) (*Membership, error)

	// CreateMembership returns ErrAlreadyExists when the pair is taken.
	CreateMembership(ctx context.Context, m *Membership) error

	// DeleteMembership succeeds when the row does not exist.
	DeleteMembership(ctx context.Context, familyID, userID string) error

	// ListMemberships returns rows ordered by CreatedAt ascending.
	ListMemberships(ctx context.Context, familyID string) ([]*Membership, error)
}

// InviteStore persists invites. Invites are never deleted.
type InviteStore interface {
	CreateInvite(ctx context.Context, inv *Invite) error

	// LatestInviteForEmail returns the most recently created invite for the
	// email in the family, matched case-insensitively.
	LatestInviteForEmail(ctx context.Context, familyID, email string) (*Invite, error)

	// MarkInviteAccepted sets AcceptedAt only if it is unset and reports
	// whether a row changed.
	MarkInviteAccepted(ctx context.Context, id string, at time.Time) (bool, error)

	ListInvites(ctx context.Context, familyID string) ([]*Invite, error)
}

// AgendaStore persists tasks and events.
type AgendaStore interface {
	CreateTask(ctx context.Context, t *Task) error
	GetTask(ctx context.Context, familyID, id string) (*Task, error)
	UpdateTask(ctx context.Context, t *Task) error
	DeleteTask(ctx context.Context, familyID, id string) error
	ListTasks(ctx context.Context, familyID string) ([]*Task, error)

	CreateEvent(ctx context.Context, e *Event) error
	GetEvent(ctx context.Context, familyID, id string) (*Event, error)
	UpdateEvent(ctx context.Context, e *Event) error
	DeleteEvent(ctx context.Context, familyID, id string) error
	ListEvents(ctx context.Context, familyID string) ([]*Event, error)
}

// Store is what every driver provides.
type Store interface {
	Driver
	MembershipStore
	InviteStore
	AgendaStore
}

// Membership links a user to the family with a role.
type Membership struct {
	FamilyID  string    `json:"family_id" gorm:"primaryKey"`
	UserID    string    `json:"user_id" gorm:"primaryKey"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`
}

// Invite records that an email was invited into the family.
type Invite struct {
	ID         string     `json:"id" gorm:"primaryKey"`
	FamilyID   string     `json:"family_id" gorm:"index:idx_invite_family_email"`
	Email      string     `json:"email,omitempty" gorm:"index:idx_invite_family_email"`
	Role       string     `json:"role"`
	CreatedAt  time.Time  `json:"created_at"`
	AcceptedAt *time.Time `json:"accepted_at"`
}

// Task is a to-do item.
type Task struct {
	ID          string    `json:"id" gorm:"primaryKey"`
	FamilyID    string    `json:"family_id" gorm:"index"`
	CreatedBy   string    `json:"created_by"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Done        bool      `json:"done"`
	Date        string    `json:"date,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Event is a calendar entry.
type Event struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	FamilyID  string    `json:"family_id" gorm:"index"`
	CreatedBy string    `json:"created_by"`
	Title     string    `json:"title"`
	Category  string    `json:"category"`
	StartsAt  string    `json:"starts_at"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
