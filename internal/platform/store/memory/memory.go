// Package memory implements an in-process store driver. Data does not
// survive a restart; it backs tests and throwaway dev instances.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/MahdiBaghbani/familyagenda-go/internal/platform/store"
)

func init() {
	store.Register("memory", NewDriver)
}

type membershipKey struct{ familyID, userID string }

// Driver keeps every table in maps guarded by one lock.
type Driver struct {
	mu          sync.RWMutex
	memberships map[membershipKey]store.Membership
	invites     map[string]store.Invite
	tasks       map[string]store.Task
	events      map[string]store.Event
}

// NewDriver creates an empty memory driver.
func NewDriver(_ *store.DriverConfig) (store.Store, error) {
	return New(), nil
}

// New returns a ready-to-use memory driver.
func New() *Driver {
	return &Driver{
		memberships: make(map[membershipKey]store.Membership),
		invites:     make(map[string]store.Invite),
		tasks:       make(map[string]store.Task),
		events:      make(map[string]store.Event),
	}
}

func (d *Driver) Name() string                 { return "memory" }
func (d *Driver) Init(_ context.Context) error { return nil }
func (d *Driver) Close() error                 { return nil }

func (d *Driver) GetMembership(_ context.Context, familyID, userID string) (*store.Membership, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	m, ok := d.memberships[membershipKey{familyID, userID}]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &m, nil
}

func (d *Driver) CreateMembership(_ context.Context, m *store.Membership) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	k := membershipKey{m.FamilyID, m.UserID}
	if _, ok := d.memberships[k]; ok {
		return store.ErrAlreadyExists
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	d.memberships[k] = *m
	return nil
}

func (d *Driver) DeleteMembership(_ context.Context, familyID, userID string) error {
	d.mu.Lock()
	delete(d.memberships, membershipKey{familyID, userID})
	d.mu.Unlock()
	return nil
}

func (d *Driver) ListMemberships(_ context.Context, familyID string) ([]*store.Membership, error) {
	d.mu.RLock()
	out := make([]*store.Membership, 0)
	for k, m := range d.memberships {
		if k.familyID == familyID {
			m := m
			out = append(out, &m)
		}
	}
	d.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].UserID < out[j].UserID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (d *Driver) CreateInvite(_ context.Context, inv *store.Invite) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.invites[inv.ID]; ok {
		return store.ErrAlreadyExists
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now().UTC()
	}
	d.invites[inv.ID] = *inv
	return nil
}

// newerInvite orders by CreatedAt, then ID, both descending.
func newerInvite(a, b *store.Invite) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.ID > b.ID
	}
	return a.CreatedAt.After(b.CreatedAt)
}

func (d *Driver) LatestInviteForEmail(_ context.Context, familyID, email string) (*store.Invite, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	d.mu.RLock()
	defer d.mu.RUnlock()

	var best *store.Invite
	for _, inv := range d.invites {
		if inv.FamilyID != familyID || strings.ToLower(inv.Email) != email {
			continue
		}
		inv := inv
		if best == nil || newerInvite(&inv, best) {
			best = &inv
		}
	}
	if best == nil {
		return nil, store.ErrNotFound
	}
	return best, nil
}

func (d *Driver) MarkInviteAccepted(_ context.Context, id string, at time.Time) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	inv, ok := d.invites[id]
	if !ok || inv.AcceptedAt != nil {
		return false, nil
	}
	at = at.UTC()
	inv.AcceptedAt = &at
	d.invites[id] = inv
	return true, nil
}

func (d *Driver) ListInvites(_ context.Context, familyID string) ([]*store.Invite, error) {
	d.mu.RLock()
	out := make([]*store.Invite, 0)
	for _, inv := range d.invites {
		if inv.FamilyID == familyID {
			inv := inv
			out = append(out, &inv)
		}
	}
	d.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return newerInvite(out[i], out[j]) })
	return out, nil
}

func (d *Driver) CreateTask(_ context.Context, t *store.Task) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.tasks[t.ID]; ok {
		return store.ErrAlreadyExists
	}
	d.tasks[t.ID] = *t
	return nil
}

func (d *Driver) GetTask(_ context.Context, familyID, id string) (*store.Task, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	t, ok := d.tasks[id]
	if !ok || t.FamilyID != familyID {
		return nil, store.ErrNotFound
	}
	return &t, nil
}

func (d *Driver) UpdateTask(_ context.Context, t *store.Task) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cur, ok := d.tasks[t.ID]
	if !ok || cur.FamilyID != t.FamilyID {
		return store.ErrNotFound
	}
	d.tasks[t.ID] = *t
	return nil
}

func (d *Driver) DeleteTask(_ context.Context, familyID, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cur, ok := d.tasks[id]
	if !ok || cur.FamilyID != familyID {
		return store.ErrNotFound
	}
	delete(d.tasks, id)
	return nil
}

func (d *Driver) ListTasks(_ context.Context, familyID string) ([]*store.Task, error) {
	d.mu.RLock()
	out := make([]*store.Task, 0)
	for _, t := range d.tasks {
		if t.FamilyID == familyID {
			t := t
			out = append(out, &t)
		}
	}
	d.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (d *Driver) CreateEvent(_ context.Context, e *store.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.events[e.ID]; ok {
		return store.ErrAlreadyExists
	}
	d.events[e.ID] = *e
	return nil
}

func (d *Driver) GetEvent(_ context.Context, familyID, id string) (*store.Event, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.events[id]
	if !ok || e.FamilyID != familyID {
		return nil, store.ErrNotFound
	}
	return &e, nil
}

func (d *Driver) UpdateEvent(_ context.Context, e *store.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cur, ok := d.events[e.ID]
	if !ok || cur.FamilyID != e.FamilyID {
		return store.ErrNotFound
	}
	d.events[e.ID] = *e
	return nil
}

func (d *Driver) DeleteEvent(_ context.Context, familyID, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cur, ok := d.events[id]
	if !ok || cur.FamilyID != familyID {
		return store.ErrNotFound
	}
	delete(d.events, id)
	return nil
}

func (d *Driver) ListEvents(_ context.Context, familyID string) ([]*store.Event, error) {
	d.mu.RLock()
	out := make([]*store.Event, 0)
	for _, e := range d.events {
		if e.FamilyID == familyID {
			e := e
			out = append(out, &e)
		}
	}
	d.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartsAt == out[j].StartsAt {
			return out[i].ID < out[j].ID
		}
		return out[i].StartsAt < out[j].StartsAt
	})
	return out, nil
}

var _ store.Store = (*Driver)(nil)
