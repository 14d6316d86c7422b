package interceptors

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/MahdiBaghbani/familyagenda-go/internal/platform/deps"
	"github.com/MahdiBaghbani/familyagenda-go/internal/platform/logutil"
)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]NewInterceptor)
)

// Register registers an interceptor constructor by name. Called from init.
// A later registration under the same name replaces the earlier one.
func Register(name string, fn NewInterceptor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = fn
}

// Get returns the interceptor constructor for name.
func Get(name string) (NewInterceptor, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	fn, ok := registry[name]
	return fn, ok
}

// Names returns the registered interceptor names, sorted.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build resolves profile for the named interceptor from d.Config and
// constructs the middleware.
func Build(name, profile string, d *deps.Deps, log *slog.Logger) (Middleware, error) {
	newFn, ok := Get(name)
	if !ok {
		return nil, fmt.Errorf("interceptor %q not registered (registered: %v)", name, Names())
	}
	if d == nil || d.Config == nil {
		return nil, fmt.Errorf("interceptor %q: config is required", name)
	}
	conf, err := GetProfileConfig(d.Config.HTTP.Interceptors, name, profile)
	if err != nil {
		return nil, err
	}
	mw, err := newFn(conf, d, logutil.NoopIfNil(log).With("interceptor", name, "profile", profile))
	if err != nil {
		return nil, fmt.Errorf("interceptor %q profile %q: %w", name, profile, err)
	}
	return mw, nil
}
