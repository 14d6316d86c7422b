// SPDX-License-Identifier: AGPL-3.0-or-later
// SPDX-FileCopyrightText: 2025 FamilyAgenda Authors

// Package identity talks to the hosted identity provider: it turns bearer
// tokens into identities and asks the provider to send invite emails.
package identity

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/net/idna"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

var (
	// ErrInvalidToken covers every verification failure: bad signature,
	// expiry, unknown user or an unreachable provider.
	ErrInvalidToken = errors.New("invalid token")

	ErrMissingEmail = errors.New("missing email")
)

// Identity is the caller as established by a Verifier.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Verifier resolves a bearer token to an Identity.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// InviteRequest asks the provider to email a sign-in link.
type InviteRequest struct {
	Email string

	// RedirectTo is where the link lands; empty uses the provider default.
	RedirectTo string
}

// Inviter sends invite emails. It returns the provider-side user id when
// the provider creates one, or "".
type Inviter interface {
	Invite(ctx context.Context, req InviteRequest) (string, error)
}

// ProviderError carries the provider's message, which is shown to the
// caller verbatim.
type ProviderError struct {
	Status  int
	Message string
}

func (e *ProviderError) Error() string {
	return e.Message
}

var lower = cases.Lower(language.Und)

// NormalizeEmail returns the comparison form of an address: NFC, trimmed,
// lowercased, with an internationalized domain converted to ASCII.
// Anything without a single "@" is only lowercased.
func NormalizeEmail(email string) string {
	email = lower.String(norm.NFC.String(strings.TrimSpace(email)))
	at := strings.LastIndexByte(email, '@')
	if at <= 0 || at == len(email)-1 {
		return email
	}
	local, domain := email[:at], email[at+1:]
	if ascii, err := idna.Lookup.ToASCII(domain); err == nil {
		domain = ascii
	}
	return local + "@" + domain
}

// SameEmail reports whether a and b name the same mailbox. Empty never
// matches, so an unset owner email grants nothing.
func SameEmail(a, b string) bool {
	na, nb := NormalizeEmail(a), NormalizeEmail(b)
	return na != "" && na == nb
}
