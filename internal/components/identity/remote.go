// SPDX-License-Identifier: AGPL-3.0-or-later
// SPDX-FileCopyrightText: 2025 FamilyAgenda Authors

package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	httpclient "github.com/MahdiBaghbani/familyagenda-go/internal/platform/http/client"
)

const (
	userPath   = "/auth/v1/user"
	invitePath = "/auth/v1/invite"
)

// providerUser is the user object returned by the provider's auth API.
type providerUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// providerErrorBody covers the error shapes the provider's auth API uses.
type providerErrorBody struct {
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	ErrorDescription string `json:"error_description"`
	Error            string `json:"error"`
}

func (b providerErrorBody) text() string {
	for _, s := range []string{b.Msg, b.Message, b.ErrorDescription, b.Error} {
		if s != "" {
			return s
		}
	}
	return ""
}

// remote holds what both remote calls share.
type remote struct {
	baseURL string
	client  *httpclient.Client
}

func newRemote(baseURL string, client *httpclient.Client) (remote, error) {
	if client == nil {
		return remote{}, errors.New("identity: http client is required")
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return remote{}, fmt.Errorf("identity: invalid provider url %q", baseURL)
	}
	return remote{baseURL: strings.TrimRight(baseURL, "/"), client: client}, nil
}

// do sends req and decodes a 2xx body into out. Non-2xx responses become
// *ProviderError.
func (r remote) do(req *http.Request, out any) error {
	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	body, err := r.client.ReadBody(resp)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var eb providerErrorBody
		_ = json.Unmarshal(body, &eb)
		msg := eb.text()
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &ProviderError{Status: resp.StatusCode, Message: msg}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("identity: decode provider response: %w", err)
	}
	return nil
}

// RemoteVerifier asks the provider who owns a token.
type RemoteVerifier struct {
	remote
	anonKey string
}

// NewRemoteVerifier creates a verifier calling GET {baseURL}/auth/v1/user.
func NewRemoteVerifier(baseURL, anonKey string, client *httpclient.Client) (*RemoteVerifier, error) {
	r, err := newRemote(baseURL, client)
	if err != nil {
		return nil, err
	}
	return &RemoteVerifier{remote: r, anonKey: anonKey}, nil
}

// Verify implements Verifier.
func (v *RemoteVerifier) Verify(ctx context.Context, token string) (*Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+userPath, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Apikey", v.anonKey)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	var user providerUser
	if err := v.do(req, &user); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if user.ID == "" {
		return nil, fmt.Errorf("%w: provider returned no user", ErrInvalidToken)
	}
	return &Identity{ID: user.ID, Email: user.Email}, nil
}

// RemoteInviter uses the provider's admin invite endpoint with the service key.
type RemoteInviter struct {
	remote
	serviceKey string
}

// NewRemoteInviter creates an inviter calling POST {baseURL}/auth/v1/invite.
func NewRemoteInviter(baseURL, serviceKey string, client *httpclient.Client) (*RemoteInviter, error) {
	if serviceKey == "" {
		return nil, errors.New("identity: service key is required for remote invites")
	}
	r, err := newRemote(baseURL, client)
	if err != nil {
		return nil, err
	}
	return &RemoteInviter{remote: r, serviceKey: serviceKey}, nil
}

// Invite implements Inviter.
func (i *RemoteInviter) Invite(ctx context.Context, in InviteRequest) (string, error) {
	if strings.TrimSpace(in.Email) == "" {
		return "", ErrMissingEmail
	}
	endpoint := i.baseURL + invitePath
	if in.RedirectTo != "" {
		endpoint += "?" + url.Values{"redirect_to": {in.RedirectTo}}.Encode()
	}
	payload, err := json.Marshal(map[string]any{"email": in.Email, "data": map[string]any{}})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Apikey", i.serviceKey)
	req.Header.Set("Authorization", "Bearer "+i.serviceKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	var user providerUser
	if err := i.do(req, &user); err != nil {
		return "", err
	}
	return user.ID, nil
}
