// Package interceptors provides cross-cutting HTTP middleware built from
// named, configurable constructors.
package interceptors

import (
	"log/slog"
	"net/http"

	"github.com/MahdiBaghbani/familyagenda-go/internal/platform/deps"
)

// Middleware is an HTTP middleware function.
type Middleware func(http.Handler) http.Handler

// NewInterceptor is the constructor function type for interceptors.
// conf is a profile map from [http.interceptors.<name>.profiles.<profile>].
type NewInterceptor func(conf map[string]any, d *deps.Deps, log *slog.Logger) (Middleware, error)
