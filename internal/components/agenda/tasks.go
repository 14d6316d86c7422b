package agenda

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/MahdiBaghbani/familyagenda-go/internal/components/identity"
	"github.com/MahdiBaghbani/familyagenda-go/internal/platform/store"
)

// TaskInput creates a task. An empty category means "Casa".
type TaskInput struct {
	Description string
	Category    string
	Date        string
}

// TaskPatch updates a task. Nil fields are left unchanged; an empty Date
// clears the date.
type TaskPatch struct {
	Description *string
	Category    *string
	Done        *bool
	Date        *string
}

func (a *Agenda) validTask(t *store.Task) error {
	t.Description = strings.TrimSpace(t.Description)
	if t.Description == "" {
		return missing("description")
	}
	if t.Category == "" {
		t.Category = TaskCategories[0]
	}
	c, ok := NormalizeCategory(t.Category, TaskCategories)
	if !ok {
		return invalid("category")
	}
	t.Category = c
	t.Date = strings.TrimSpace(t.Date)
	if t.Date != "" && !ValidDate(t.Date) {
		return invalid("date")
	}
	return nil
}

// ListTasks returns the family's tasks, dated ones first by date, then by
// creation time. A non-empty category filters the list.
func (a *Agenda) ListTasks(ctx context.Context, caller *identity.Identity, category string) ([]*store.Task, error) {
	familyID, err := a.authorize(ctx, caller)
	if err != nil {
		return nil, err
	}
	if category != "" {
		c, ok := NormalizeCategory(category, TaskCategories)
		if !ok {
			return nil, invalid("category")
		}
		category = c
	}
	all, err := a.store.ListTasks(ctx, familyID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	out := all[:0]
	for _, t := range all {
		if category == "" || t.Category == category {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		di, dj := out[i].Date, out[j].Date
		if di != dj {
			switch {
			case di == "":
				return false
			case dj == "":
				return true
			default:
				return di < dj
			}
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// CreateTask adds a pending task.
func (a *Agenda) CreateTask(ctx context.Context, caller *identity.Identity, in TaskInput) (*store.Task, error) {
	familyID, err := a.authorize(ctx, caller)
	if err != nil {
		return nil, err
	}
	t := &store.Task{
		FamilyID:    familyID,
		CreatedBy:   caller.ID,
		Description: in.Description,
		Category:    in.Category,
		Date:        in.Date,
	}
	if err := a.validTask(t); err != nil {
		return nil, err
	}
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate task id: %w", err)
	}
	t.ID = id.String()
	t.CreatedAt = a.now().UTC()
	t.UpdatedAt = t.CreatedAt
	if err := a.store.CreateTask(ctx, t); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	return t, nil
}

// UpdateTask applies patch to the task. Concurrent updates are
// last-write-wins.
func (a *Agenda) UpdateTask(ctx context.Context, caller *identity.Identity, id string, patch TaskPatch) (*store.Task, error) {
	familyID, err := a.authorize(ctx, caller)
	if err != nil {
		return nil, err
	}
	t, err := a.store.GetTask(ctx, familyID, id)
	if err != nil {
		return nil, notFound(err, "get task")
	}
	if patch.Description != nil {
		t.Description = *patch.Description
	}
	if patch.Category != nil {
		if *patch.Category == "" {
			return nil, invalid("category")
		}
		t.Category = *patch.Category
	}
	if patch.Date != nil {
		t.Date = *patch.Date
	}
	if patch.Done != nil {
		t.Done = *patch.Done
	}
	if err := a.validTask(t); err != nil {
		return nil, err
	}
	t.UpdatedAt = a.now().UTC()
	if err := a.store.UpdateTask(ctx, t); err != nil {
		return nil, notFound(err, "update task")
	}
	return t, nil
}

// DeleteTask removes the task.
func (a *Agenda) DeleteTask(ctx context.Context, caller *identity.Identity, id string) error {
	familyID, err := a.authorize(ctx, caller)
	if err != nil {
		return err
	}
	if err := a.store.DeleteTask(ctx, familyID, id); err != nil {
		return notFound(err, "delete task")
	}
	return nil
}

func notFound(err error, op string) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}
