package family

// Outcome is the result of an acceptance attempt. The concrete types are
// AlreadyMember, OwnerAdded, NoInvite and Accepted.
type Outcome interface {
	// Status is the wire name of the outcome.
	Status() string
	outcome()
}

// AlreadyMember means the caller already had a membership; nothing was written.
type AlreadyMember struct{}

// OwnerAdded means the owner joined as admin.
type OwnerAdded struct{}

// NoInvite means no invite exists for the caller's email; nothing was written.
type NoInvite struct{}

// Accepted means the newest invite was turned into a membership.
type Accepted struct {
	Role string
}

func (AlreadyMember) Status() string { return "already_member" }
func (OwnerAdded) Status() string    { return "owner_added" }
func (NoInvite) Status() string      { return "no_invite" }
func (Accepted) Status() string      { return "accepted" }

func (AlreadyMember) outcome() {}
func (OwnerAdded) outcome()    {}
func (NoInvite) outcome()      {}
func (Accepted) outcome()      {}
