package family

import (
	"context"
	"errors"
	"time"

	"github.com/MahdiBaghbani/familyagenda-go/internal/components/identity"
	"github.com/MahdiBaghbani/familyagenda-go/internal/platform/appctx"
	"github.com/MahdiBaghbani/familyagenda-go/internal/platform/store"
)

// ReconcilerStore is the persistence the reconciler needs.
type ReconcilerStore interface {
	store.MembershipStore
	store.InviteStore
}

// Reconciler turns owner status or a pending invite into exactly one
// membership row. It holds no locks; the store's primary key settles races.
type Reconciler struct {
	settings Settings
	store    ReconcilerStore
	now      func() time.Time
}

// NewReconciler creates a reconciler.
func NewReconciler(settings Settings, s ReconcilerStore) *Reconciler {
	return &Reconciler{settings: settings, store: s, now: time.Now}
}

// Accept reconciles caller's membership. The first matching branch wins:
// existing membership, owner auto-join, newest invite.
func (r *Reconciler) Accept(ctx context.Context, caller *identity.Identity) (Outcome, error) {
	familyID, err := r.settings.ID()
	if err != nil {
		return nil, err
	}

	_, err = r.store.GetMembership(ctx, familyID, caller.ID)
	switch {
	case err == nil:
		return AlreadyMember{}, nil
	case !errors.Is(err, store.ErrNotFound):
		return nil, storeErr("get membership", err)
	}

	if r.settings.IsOwner(caller) {
		m := &store.Membership{FamilyID: familyID, UserID: caller.ID, Role: store.RoleAdmin, CreatedAt: r.now().UTC()}
		// A concurrent owner join losing the race surfaces here as a store error.
		if err := r.store.CreateMembership(ctx, m); err != nil {
			return nil, storeErr("create owner membership", err)
		}
		appctx.GetLogger(ctx).Info("owner joined family", "family_id", familyID)
		return OwnerAdded{}, nil
	}

	inv, err := r.store.LatestInviteForEmail(ctx, familyID, identity.NormalizeEmail(caller.Email))
	switch {
	case errors.Is(err, store.ErrNotFound):
		return NoInvite{}, nil
	case err != nil:
		return nil, storeErr("find invite", err)
	}

	role := inv.Role
	if role == "" {
		role = store.RoleMember
	}
	m := &store.Membership{FamilyID: familyID, UserID: caller.ID, Role: role, CreatedAt: r.now().UTC()}
	if err := r.store.CreateMembership(ctx, m); err != nil && !errors.Is(err, store.ErrAlreadyExists) {
		return nil, storeErr("create membership", err)
	}

	if inv.AcceptedAt == nil {
		if _, err := r.store.MarkInviteAccepted(ctx, inv.ID, r.now().UTC()); err != nil {
			appctx.GetLogger(ctx).Warn("failed to mark invite accepted", "invite_id", inv.ID, "error", err)
		}
	}
	return Accepted{Role: role}, nil
}
