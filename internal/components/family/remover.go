package family

import (
	"context"
	"errors"
	"strings"

	"github.com/MahdiBaghbani/familyagenda-go/internal/components/identity"
	"github.com/MahdiBaghbani/familyagenda-go/internal/platform/appctx"
	"github.com/MahdiBaghbani/familyagenda-go/internal/platform/store"
)

// Remover lets the owner delete memberships other than their own.
type Remover struct {
	settings Settings
	store    store.MembershipStore
}

// NewRemover creates a remover.
func NewRemover(settings Settings, s store.MembershipStore) *Remover {
	return &Remover{settings: settings, store: s}
}

// Remove deletes target's membership. A missing row is not an error.
// Removing another admin is permitted and logged.
func (r *Remover) Remove(ctx context.Context, caller *identity.Identity, targetUserID string) error {
	targetUserID = strings.TrimSpace(targetUserID)
	if targetUserID == "" {
		return ErrMissingUserID
	}
	if !r.settings.IsOwner(caller) {
		return ErrForbidden
	}
	if targetUserID == caller.ID {
		return ErrCannotRemoveSelf
	}
	familyID, err := r.settings.ID()
	if err != nil {
		return err
	}

	log := appctx.GetLogger(ctx)
	if m, err := r.store.GetMembership(ctx, familyID, targetUserID); err == nil && m.Role == store.RoleAdmin {
		log.Info("owner removing another admin", "target_user_id", targetUserID, "role", m.Role)
	} else if err != nil && !errors.Is(err, store.ErrNotFound) {
		log.Debug("membership lookup before removal failed", "error", err)
	}

	if err := r.store.DeleteMembership(ctx, familyID, targetUserID); err != nil {
		return storeErr("delete membership", err)
	}
	log.Info("member removed", "target_user_id", targetUserID)
	return nil
}
