package agenda

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/MahdiBaghbani/familyagenda-go/internal/components/api"
	"github.com/MahdiBaghbani/familyagenda-go/internal/components/family"
	"github.com/MahdiBaghbani/familyagenda-go/internal/components/identity"
	"github.com/MahdiBaghbani/familyagenda-go/internal/platform/appctx"
)

// Handler serves /api/tasks and /api/events. Item routes read the "id"
// URL parameter.
type Handler struct {
	agenda   *Agenda
	verifier identity.Verifier
}

// NewHandler creates a handler.
func NewHandler(a *Agenda, verifier identity.Verifier) *Handler {
	return &Handler{agenda: a, verifier: verifier}
}

type fieldErrorBody struct {
	Error string `json:"error"`
	Field string `json:"field"`
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var fe *FieldError
	switch {
	case errors.As(err, &fe):
		api.WriteJSON(w, http.StatusBadRequest, fieldErrorBody{Error: fe.Code, Field: fe.Field})
	case errors.Is(err, ErrNotFound):
		api.WriteNotFound(w)
	default:
		family.WriteError(w, r, err)
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := api.DecodeJSON(r, v); err != nil {
		appctx.GetLogger(r.Context()).Debug("rejecting agenda body", "error", err)
		api.WriteBadRequest(w, api.CodeBadRequest)
		return false
	}
	return true
}

type taskBody struct {
	Description string `json:"description"`
	Category    string `json:"category"`
	Date        string `json:"date"`
}

type taskPatchBody struct {
	Description *string `json:"description"`
	Category    *string `json:"category"`
	Done        *bool   `json:"done"`
	Date        *string `json:"date"`
}

// HandleListTasks handles GET /api/tasks[?category=].
func (h *Handler) HandleListTasks(w http.ResponseWriter, r *http.Request) {
	caller, r := family.Authenticate(w, r, h.verifier)
	if caller == nil {
		return
	}
	tasks, err := h.agenda.ListTasks(r.Context(), caller, r.URL.Query().Get("category"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

// HandleCreateTask handles POST /api/tasks.
func (h *Handler) HandleCreateTask(w http.ResponseWriter, r *http.Request) {
	caller, r := family.Authenticate(w, r, h.verifier)
	if caller == nil {
		return
	}
	var body taskBody
	if !decode(w, r, &body) {
		return
	}
	t, err := h.agenda.CreateTask(r.Context(), caller, TaskInput(body))
	if err != nil {
		writeError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, t)
}

// HandleUpdateTask handles PATCH /api/tasks/{id}.
func (h *Handler) HandleUpdateTask(w http.ResponseWriter, r *http.Request) {
	caller, r := family.Authenticate(w, r, h.verifier)
	if caller == nil {
		return
	}
	var body taskPatchBody
	if !decode(w, r, &body) {
		return
	}
	t, err := h.agenda.UpdateTask(r.Context(), caller, chi.URLParam(r, "id"), TaskPatch(body))
	if err != nil {
		writeError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, t)
}

// HandleDeleteTask handles DELETE /api/tasks/{id}.
func (h *Handler) HandleDeleteTask(w http.ResponseWriter, r *http.Request) {
	caller, r := family.Authenticate(w, r, h.verifier)
	if caller == nil {
		return
	}
	if err := h.agenda.DeleteTask(r.Context(), caller, chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type eventBody struct {
	Title    string `json:"title"`
	Category string `json:"category"`
	StartsAt string `json:"starts_at"`
}

type eventPatchBody struct {
	Title    *string `json:"title"`
	Category *string `json:"category"`
	StartsAt *string `json:"starts_at"`
}

// HandleListEvents handles GET /api/events[?upcoming=1].
func (h *Handler) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	caller, r := family.Authenticate(w, r, h.verifier)
	if caller == nil {
		return
	}
	upcoming, _ := strconv.ParseBool(r.URL.Query().Get("upcoming"))
	events, err := h.agenda.ListEvents(r.Context(), caller, upcoming)
	if err != nil {
		writeError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"events": events})
}

// HandleCreateEvent handles POST /api/events.
func (h *Handler) HandleCreateEvent(w http.ResponseWriter, r *http.Request) {
	caller, r := family.Authenticate(w, r, h.verifier)
	if caller == nil {
		return
	}
	var body eventBody
	if !decode(w, r, &body) {
		return
	}
	e, err := h.agenda.CreateEvent(r.Context(), caller, EventInput(body))
	if err != nil {
		writeError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, e)
}

// HandleUpdateEvent handles PATCH /api/events/{id}.
func (h *Handler) HandleUpdateEvent(w http.ResponseWriter, r *http.Request) {
	caller, r := family.Authenticate(w, r, h.verifier)
	if caller == nil {
		return
	}
	var body eventPatchBody
	if !decode(w, r, &body) {
		return
	}
	e, err := h.agenda.UpdateEvent(r.Context(), caller, chi.URLParam(r, "id"), EventPatch(body))
	if err != nil {
		writeError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, e)
}

// HandleDeleteEvent handles DELETE /api/events/{id}.
func (h *Handler) HandleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	caller, r := family.Authenticate(w, r, h.verifier)
	if caller == nil {
		return
	}
	if err := h.agenda.DeleteEvent(r.Context(), caller, chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
