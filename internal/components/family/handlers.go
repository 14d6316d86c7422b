package family

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MahdiBaghbani/familyagenda-go/internal/components/api"
	"github.com/MahdiBaghbani/familyagenda-go/internal/components/identity"
	"github.com/MahdiBaghbani/familyagenda-go/internal/platform/appctx"
	"github.com/MahdiBaghbani/familyagenda-go/internal/platform/http/auth"
	"github.com/MahdiBaghbani/familyagenda-go/internal/platform/store"
)

// Handler serves the membership endpoints.
type Handler struct {
	settings   Settings
	verifier   identity.Verifier
	reconciler *Reconciler
	issuer     *Issuer
	remover    *Remover
	directory  *Directory
}

// NewHandler wires the membership operations to one store and provider.
func NewHandler(settings Settings, verifier identity.Verifier, inviter identity.Inviter, s store.Store) *Handler {
	return &Handler{
		settings:   settings,
		verifier:   verifier,
		reconciler: NewReconciler(settings, s),
		issuer:     NewIssuer(settings, inviter, s),
		remover:    NewRemover(settings, s),
		directory:  NewDirectory(settings, s),
	}
}

// Authenticate verifies the request's bearer token. On failure it writes
// the 401 and returns nil.
func Authenticate(w http.ResponseWriter, r *http.Request, v identity.Verifier) (*identity.Identity, *http.Request) {
	token := auth.TokenFromContext(r.Context())
	if token == "" {
		t, ok := auth.BearerToken(r.Header.Get("Authorization"))
		if !ok {
			api.WriteUnauthorized(w, api.CodeMissingToken)
			return nil, r
		}
		token = t
	}
	caller, err := v.Verify(r.Context(), token)
	if err != nil {
		appctx.GetLogger(r.Context()).Debug("token verification failed", "error", err)
		api.WriteUnauthorized(w, api.CodeInvalidToken)
		return nil, r
	}
	return caller, r.WithContext(appctx.WithUserID(r.Context(), caller.ID))
}

// WriteError maps membership errors to responses.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	var se *StoreError
	var ie *InviteError
	switch {
	case errors.Is(err, ErrForbidden):
		api.WriteForbidden(w)
	case errors.Is(err, ErrMissingFamilyID):
		api.WriteInternalError(w, api.CodeMissingFamilyID)
	case errors.Is(err, ErrMissingEmail):
		api.WriteBadRequest(w, api.CodeMissingEmail)
	case errors.Is(err, ErrMissingUserID):
		api.WriteBadRequest(w, api.CodeMissingUserID)
	case errors.Is(err, ErrCannotRemoveSelf):
		api.WriteBadRequest(w, api.CodeCannotRemoveSelf)
	case errors.Is(err, ErrInvalidRole):
		api.WriteBadRequest(w, api.CodeInvalidRole)
	case errors.As(err, &ie):
		api.WriteBadRequest(w, ie.Error())
	case errors.As(err, &se):
		appctx.GetLogger(r.Context()).Warn("store operation failed", "op", se.Op, "error", se.Err)
		api.WriteBadRequest(w, se.Error())
	default:
		appctx.GetLogger(r.Context()).Error("unexpected error", "error", err)
		api.WriteInternalError(w, api.CodeInternalError)
	}
}

// decodeLoose reads a JSON object body. Malformed or empty bodies read as
// an empty object.
func decodeLoose(r *http.Request) map[string]any {
	body := map[string]any{}
	if err := api.DecodeJSON(r, &body); err != nil || body == nil {
		return map[string]any{}
	}
	return body
}

// stringField renders a scalar body field as text, trimmed. Absent, null,
// false and empty values read as "".
func stringField(body map[string]any, key string) string {
	switch v := body[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		if v == 0 {
			return ""
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		if !v {
			return ""
		}
		return "true"
	case nil:
		return ""
	default:
		b, _ := json.Marshal(v)
		return strings.TrimSpace(string(b))
	}
}

type meResponse struct {
	UserID   string  `json:"userId"`
	Email    string  `json:"email"`
	IsOwner  bool    `json:"isOwner"`
	FamilyID *string `json:"familyId"`
}

// HandleMe handles GET /api/me.
func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	caller, r := Authenticate(w, r, h.verifier)
	if caller == nil {
		return
	}
	resp := meResponse{
		UserID:  caller.ID,
		Email:   identity.NormalizeEmail(caller.Email),
		IsOwner: h.settings.IsOwner(caller),
	}
	if id := strings.TrimSpace(h.settings.FamilyID); id != "" {
		resp.FamilyID = &id
	}
	api.WriteJSON(w, http.StatusOK, resp)
}

type acceptResponse struct {
	OK     bool   `json:"ok"`
	Status string `json:"status"`
	Role   string `json:"role,omitempty"`
}

// HandleAcceptInvite handles POST /api/accept-invite.
func (h *Handler) HandleAcceptInvite(w http.ResponseWriter, r *http.Request) {
	caller, r := Authenticate(w, r, h.verifier)
	if caller == nil {
		return
	}
	outcome, err := h.reconciler.Accept(r.Context(), caller)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	resp := acceptResponse{OK: true, Status: outcome.Status()}
	if a, ok := outcome.(Accepted); ok {
		resp.Role = a.Role
	}
	appctx.GetLogger(r.Context()).Info("invite acceptance", "status", resp.Status)
	api.WriteJSON(w, http.StatusOK, resp)
}

type inviteResponse struct {
	OK      bool    `json:"ok"`
	Invited *string `json:"invited"`
}

// HandleInvite handles POST /api/invite. The email is checked before the
// token is verified.
func (h *Handler) HandleInvite(w http.ResponseWriter, r *http.Request) {
	body := decodeLoose(r)
	email := stringField(body, "email")
	if email == "" {
		api.WriteBadRequest(w, api.CodeMissingEmail)
		return
	}
	caller, r := Authenticate(w, r, h.verifier)
	if caller == nil {
		return
	}
	issued, err := h.issuer.Invite(r.Context(), caller, email, stringField(body, "role"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	resp := inviteResponse{OK: true}
	if issued.ProviderUserID != "" {
		resp.Invited = &issued.ProviderUserID
	}
	api.WriteJSON(w, http.StatusOK, resp)
}

type okResponse struct {
	OK bool `json:"ok"`
}

// HandleRemoveMember handles POST /api/remove-member. The user id is
// checked before the token is verified.
func (h *Handler) HandleRemoveMember(w http.ResponseWriter, r *http.Request) {
	target := stringField(decodeLoose(r), "user_id")
	if target == "" {
		api.WriteBadRequest(w, api.CodeMissingUserID)
		return
	}
	caller, r := Authenticate(w, r, h.verifier)
	if caller == nil {
		return
	}
	if err := h.remover.Remove(r.Context(), caller, target); err != nil {
		WriteError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, okResponse{OK: true})
}

type memberView struct {
	UserID    string `json:"user_id"`
	Role      string `json:"role"`
	CreatedAt string `json:"created_at"`
}

// HandleMembers handles GET /api/members.
func (h *Handler) HandleMembers(w http.ResponseWriter, r *http.Request) {
	caller, r := Authenticate(w, r, h.verifier)
	if caller == nil {
		return
	}
	ms, err := h.directory.List(r.Context(), caller)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	out := make([]memberView, 0, len(ms))
	for _, m := range ms {
		out = append(out, memberView{UserID: m.UserID, Role: m.Role, CreatedAt: m.CreatedAt.UTC().Format(time.RFC3339)})
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"members": out})
}

