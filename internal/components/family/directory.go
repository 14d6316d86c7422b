package family

import (
	"context"
	"errors"

	"github.com/MahdiBaghbani/familyagenda-go/internal/components/identity"
	"github.com/MahdiBaghbani/familyagenda-go/internal/platform/store"
)

// Directory lists the family's members.
type Directory struct {
	settings Settings
	store    store.MembershipStore
}

// NewDirectory creates a directory.
func NewDirectory(settings Settings, s store.MembershipStore) *Directory {
	return &Directory{settings: settings, store: s}
}

// List returns memberships oldest first. The caller must be the owner or
// a member.
func (d *Directory) List(ctx context.Context, caller *identity.Identity) ([]*store.Membership, error) {
	familyID, err := d.settings.ID()
	if err != nil {
		return nil, err
	}
	if !d.settings.IsOwner(caller) {
		if err := RequireMember(ctx, d.store, familyID, caller); err != nil {
			return nil, err
		}
	}
	ms, err := d.store.ListMemberships(ctx, familyID)
	if err != nil {
		return nil, storeErr("list memberships", err)
	}
	return ms, nil
}

// RequireMember returns ErrForbidden unless caller holds a membership.
func RequireMember(ctx context.Context, s store.MembershipStore, familyID string, caller *identity.Identity) error {
	if caller == nil {
		return ErrForbidden
	}
	_, err := s.GetMembership(ctx, familyID, caller.ID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return ErrForbidden
	default:
		return storeErr("get membership", err)
	}
}
