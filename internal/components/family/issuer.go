package family

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MahdiBaghbani/familyagenda-go/internal/components/identity"
	"github.com/MahdiBaghbani/familyagenda-go/internal/platform/appctx"
	"github.com/MahdiBaghbani/familyagenda-go/internal/platform/store"
)

// Issued describes a created invite.
type Issued struct {
	InviteID string

	// ProviderUserID is the id the identity provider assigned to the
	// invitee, or "" when it created none.
	ProviderUserID string
}

// Issuer lets the owner invite an email address. Every call creates a new
// invite row; acceptance always uses the newest.
type Issuer struct {
	settings Settings
	inviter  identity.Inviter
	store    store.InviteStore
	now      func() time.Time
}

// NewIssuer creates an issuer.
func NewIssuer(settings Settings, inviter identity.Inviter, s store.InviteStore) *Issuer {
	return &Issuer{settings: settings, inviter: inviter, store: s, now: time.Now}
}

// Invite sends the invite email, then records the invite. An empty role
// means member.
func (i *Issuer) Invite(ctx context.Context, caller *identity.Identity, email, role string) (*Issued, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, ErrMissingEmail
	}
	if !i.settings.IsOwner(caller) {
		return nil, ErrForbidden
	}
	familyID, err := i.settings.ID()
	if err != nil {
		return nil, err
	}
	role = strings.TrimSpace(role)
	if role == "" {
		role = store.RoleMember
	}
	if !ValidRole(role) {
		return nil, ErrInvalidRole
	}

	providerID, err := i.inviter.Invite(ctx, identity.InviteRequest{Email: email, RedirectTo: i.settings.SiteURL})
	if err != nil {
		return nil, &InviteError{Err: err}
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate invite id: %w", err)
	}
	inv := &store.Invite{
		ID:        id.String(),
		FamilyID:  familyID,
		Email:     identity.NormalizeEmail(email),
		Role:      role,
		CreatedAt: i.now().UTC(),
	}
	if err := i.store.CreateInvite(ctx, inv); err != nil {
		return nil, storeErr("create invite", err)
	}

	appctx.GetLogger(ctx).Info("invite issued", "invite_id", inv.ID, "role", role)
	return &Issued{InviteID: inv.ID, ProviderUserID: providerID}, nil
}
