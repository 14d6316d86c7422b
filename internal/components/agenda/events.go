package agenda

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/MahdiBaghbani/familyagenda-go/internal/components/identity"
	"github.com/MahdiBaghbani/familyagenda-go/internal/platform/store"
)

// EventInput creates an event. An empty category means "Aniversário".
type EventInput struct {
	Title    string
	Category string
	StartsAt string
}

// EventPatch updates an event. Nil fields are left unchanged.
type EventPatch struct {
	Title    *string
	Category *string
	StartsAt *string
}

func (a *Agenda) validEvent(e *store.Event) error {
	e.Title = strings.TrimSpace(e.Title)
	if e.Title == "" {
		return missing("title")
	}
	if e.Category == "" {
		e.Category = EventCategories[0]
	}
	c, ok := NormalizeCategory(e.Category, EventCategories)
	if !ok {
		return invalid("category")
	}
	e.Category = c
	e.StartsAt = strings.TrimSpace(e.StartsAt)
	if e.StartsAt == "" {
		return missing("starts_at")
	}
	if !ValidDateTime(e.StartsAt) {
		return invalid("starts_at")
	}
	return nil
}

// ListEvents returns the family's events in start order. With upcoming
// set, events that started more than UpcomingTolerance ago are dropped.
func (a *Agenda) ListEvents(ctx context.Context, caller *identity.Identity, upcoming bool) ([]*store.Event, error) {
	familyID, err := a.authorize(ctx, caller)
	if err != nil {
		return nil, err
	}
	all, err := a.store.ListEvents(ctx, familyID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	if !upcoming {
		return all, nil
	}
	// Start times carry no zone; compare in the server's local time.
	cutoff := a.now().Add(-UpcomingTolerance).Local().Format(DateTimeLayout)
	out := all[:0]
	for _, e := range all {
		if e.StartsAt >= cutoff {
			out = append(out, e)
		}
	}
	return out, nil
}

// CreateEvent adds an event.
func (a *Agenda) CreateEvent(ctx context.Context, caller *identity.Identity, in EventInput) (*store.Event, error) {
	familyID, err := a.authorize(ctx, caller)
	if err != nil {
		return nil, err
	}
	e := &store.Event{
		FamilyID:  familyID,
		CreatedBy: caller.ID,
		Title:     in.Title,
		Category:  in.Category,
		StartsAt:  in.StartsAt,
	}
	if err := a.validEvent(e); err != nil {
		return nil, err
	}
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate event id: %w", err)
	}
	e.ID = id.String()
	e.CreatedAt = a.now().UTC()
	e.UpdatedAt = e.CreatedAt
	if err := a.store.CreateEvent(ctx, e); err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	return e, nil
}

// UpdateEvent applies patch to the event. Concurrent updates are
// last-write-wins.
func (a *Agenda) UpdateEvent(ctx context.Context, caller *identity.Identity, id string, patch EventPatch) (*store.Event, error) {
	familyID, err := a.authorize(ctx, caller)
	if err != nil {
		return nil, err
	}
	e, err := a.store.GetEvent(ctx, familyID, id)
	if err != nil {
		return nil, notFound(err, "get event")
	}
	if patch.Title != nil {
		e.Title = *patch.Title
	}
	if patch.Category != nil {
		if *patch.Category == "" {
			return nil, invalid("category")
		}
		e.Category = *patch.Category
	}
	if patch.StartsAt != nil {
		e.StartsAt = *patch.StartsAt
	}
	if err := a.validEvent(e); err != nil {
		return nil, err
	}
	e.UpdatedAt = a.now().UTC()
	if err := a.store.UpdateEvent(ctx, e); err != nil {
		return nil, notFound(err, "update event")
	}
	return e, nil
}

// DeleteEvent removes the event.
func (a *Agenda) DeleteEvent(ctx context.Context, caller *identity.Identity, id string) error {
	familyID, err := a.authorize(ctx, caller)
	if err != nil {
		return err
	}
	if err := a.store.DeleteEvent(ctx, familyID, id); err != nil {
		return notFound(err, "delete event")
	}
	return nil
}
