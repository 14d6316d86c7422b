package service

import (
	"log/slog"
	"net/http"

	"github.com/MahdiBaghbani/familyagenda-go/internal/platform/deps"
)

// Service represents an HTTP service that can be registered and mounted.
type Service interface {
	Handler() http.Handler

	// Prefix is the mount point; "" mounts at the root.
	Prefix() string

	Close() error

	// Unprotected lists paths, relative to Prefix, that skip bearer auth.
	Unprotected() []string
}

// NewService is the constructor function type for services.
type NewService func(conf map[string]any, d *deps.Deps, log *slog.Logger) (Service, error)
