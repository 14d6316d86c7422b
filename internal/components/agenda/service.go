package agenda

import (
	"context"
	"time"

	"github.com/MahdiBaghbani/familyagenda-go/internal/components/family"
	"github.com/MahdiBaghbani/familyagenda-go/internal/components/identity"
	"github.com/MahdiBaghbani/familyagenda-go/internal/platform/store"
)

// AgendaStore is the persistence the agenda needs.
type AgendaStore interface {
	store.MembershipStore
	store.AgendaStore
}

// Agenda serves tasks and events to family members. The owner counts as a
// member only once they hold a membership row.
type Agenda struct {
	settings family.Settings
	store    AgendaStore
	now      func() time.Time
}

// New creates an agenda.
func New(settings family.Settings, s AgendaStore) *Agenda {
	return &Agenda{settings: settings, store: s, now: time.Now}
}

func (a *Agenda) authorize(ctx context.Context, caller *identity.Identity) (string, error) {
	familyID, err := a.settings.ID()
	if err != nil {
		return "", err
	}
	if err := family.RequireMember(ctx, a.store, familyID, caller); err != nil {
		return "", err
	}
	return familyID, nil
}
