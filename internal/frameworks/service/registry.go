package service

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/MahdiBaghbani/familyagenda-go/internal/platform/deps"
	"github.com/MahdiBaghbani/familyagenda-go/internal/platform/logutil"
)

// CoreServices are built on every start, in this order, whether or not
// [http.services.<name>] appears in TOML. offline owns the site root and
// must stay last.
var CoreServices = []string{"api", "offline"}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]NewService)
)

// Register makes a service constructor available by name. Service packages
// call MustRegister from init; a duplicate name is an error.
func Register(name string, newFunc NewService) error {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[name]; exists {
		return fmt.Errorf("service %q already registered", name)
	}
	registry[name] = newFunc
	return nil
}

// MustRegister is Register for init functions.
func MustRegister(name string, newFunc NewService) {
	if err := Register(name, newFunc); err != nil {
		panic(err)
	}
}

// Get returns the constructor registered under name, or nil.
func Get(name string) NewService {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return registry[name]
}

// RegisteredServices returns the registered names, sorted.
func RegisteredServices() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ConfigFunc returns the raw [http.services.<name>] map, or nil.
type ConfigFunc func(name string) map[string]any

// Build constructs the named services in order. Each constructor gets a
// logger tagged with its service name. If any constructor fails, the
// services already built are closed.
func Build(names []string, conf ConfigFunc, d *deps.Deps, log *slog.Logger) ([]Service, error) {
	log = logutil.NoopIfNil(log)
	built := make([]Service, 0, len(names))
	for _, name := range names {
		newFn := Get(name)
		if newFn == nil {
			_ = CloseAll(built)
			return nil, fmt.Errorf("service %q is not registered (registered: %v)", name, RegisteredServices())
		}
		var m map[string]any
		if conf != nil {
			m = conf(name)
		}
		svc, err := newFn(m, d, log.With("service", name))
		if err != nil {
			_ = CloseAll(built)
			return nil, fmt.Errorf("service %q: %w", name, err)
		}
		built = append(built, svc)
	}
	return built, nil
}

// CloseAll closes services in reverse order and joins their errors.
func CloseAll(services []Service) error {
	var errs []error
	for i := len(services) - 1; i >= 0; i-- {
		if services[i] == nil {
			continue
		}
		if err := services[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// resetRegistry clears the registry. Tests only.
func resetRegistry() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[string]NewService)
}
