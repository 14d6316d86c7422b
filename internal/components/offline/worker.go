package offline

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/MahdiBaghbani/familyagenda-go/internal/platform/logutil"
)

// State is the worker lifecycle state.
type State int32

const (
	StateNew State = iota
	StateInstalled
	StateActivated
)

func (s State) String() string {
	switch s {
	case StateInstalled:
		return "installed"
	case StateActivated:
		return "activated"
	default:
		return "new"
	}
}

// Config configures a worker.
type Config struct {
	// CacheName is the current cache version.
	CacheName string

	// CoreAssets are warmed at install time.
	CoreAssets []string
}

// Worker intercepts GET requests for the web client. Until it is
// activated every request goes straight to the network.
type Worker struct {
	cfg      Config
	storage  *Storage
	upstream Upstream
	log      *slog.Logger
	state    atomic.Int32
}

// NewWorker creates a worker.
func NewWorker(cfg Config, storage *Storage, upstream Upstream, log *slog.Logger) *Worker {
	return &Worker{cfg: cfg, storage: storage, upstream: upstream, log: logutil.NoopIfNil(log)}
}

// State returns the lifecycle state.
func (w *Worker) State() State {
	return State(w.state.Load())
}

// CacheName returns the current cache version.
func (w *Worker) CacheName() string { return w.cfg.CacheName }

// Install opens the current cache and warms it with the core assets. An
// asset that fails to load is logged and skipped.
func (w *Worker) Install(ctx context.Context) error {
	c, err := w.storage.Open(ctx, w.cfg.CacheName)
	if err != nil {
		return err
	}
	stored := 0
	for _, path := range w.cfg.CoreAssets {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, path, nil)
		if err != nil {
			w.log.Warn("skipping core asset", "path", path, "error", err)
			continue
		}
		resp, err := w.upstream.Fetch(ctx, req)
		if err != nil {
			w.log.Warn("core asset unreachable", "path", path, "error", err)
			continue
		}
		if !resp.Shareable() {
			w.log.Warn("core asset not cached", "path", path, "status", resp.Status)
			continue
		}
		if err := c.Put(ctx, RequestKey(req), resp.sharedCopy()); err != nil {
			w.log.Warn("core asset not cached", "path", path, "error", err)
			continue
		}
		stored++
	}
	w.state.Store(int32(StateInstalled))
	w.log.Info("offline worker installed", "cache", w.cfg.CacheName, "assets", stored, "requested", len(w.cfg.CoreAssets))
	return nil
}

// Activate deletes every cache other than the current one, then starts
// intercepting requests.
func (w *Worker) Activate(ctx context.Context) error {
	names, err := w.storage.Names(ctx)
	if err != nil {
		return err
	}
	for _, n := range names {
		if n == w.cfg.CacheName {
			continue
		}
		if _, err := w.storage.Delete(ctx, n); err != nil {
			return err
		}
		w.log.Info("deleted stale cache", "cache", n)
	}
	w.state.Store(int32(StateActivated))
	return nil
}

// Start installs and immediately activates the worker.
func (w *Worker) Start(ctx context.Context) error {
	if err := w.Install(ctx); err != nil {
		return err
	}
	return w.Activate(ctx)
}

// Fetch answers r. Navigations are network-first and fall back to the
// cached request, then the cached root page. Assets are cache-first. When
// nothing can answer, navigations get a 503 and assets a 504, both marked
// with X-Offline.
func (w *Worker) Fetch(ctx context.Context, r *http.Request) (*Response, error) {
	if r.Method != http.MethodGet || w.State() != StateActivated {
		return w.upstream.Fetch(ctx, r)
	}
	if IsNavigation(r) {
		return w.navigate(ctx, r)
	}
	return w.asset(ctx, r)
}

func (w *Worker) navigate(ctx context.Context, r *http.Request) (*Response, error) {
	key := RequestKey(r)
	resp, err := w.upstream.Fetch(ctx, r)
	if err == nil {
		w.store(ctx, key, resp)
		return resp, nil
	}
	w.log.Debug("navigation network failure", "key", key, "error", err)

	for _, k := range []string{key, "/"} {
		cached, cerr := w.storage.Match(ctx, k)
		if cerr == nil {
			return cached, nil
		}
		if !errors.Is(cerr, ErrNoMatch) {
			w.log.Warn("offline cache read failed", "key", k, "error", cerr)
		}
	}
	return offlineResponse(http.StatusServiceUnavailable), nil
}

func (w *Worker) asset(ctx context.Context, r *http.Request) (*Response, error) {
	key := RequestKey(r)
	cached, err := w.storage.Match(ctx, key)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, ErrNoMatch) {
		w.log.Warn("offline cache read failed", "key", key, "error", err)
	}

	resp, err := w.upstream.Fetch(ctx, r)
	if err != nil {
		w.log.Debug("asset network failure", "key", key, "error", err)
		return offlineResponse(http.StatusGatewayTimeout), nil
	}
	w.store(ctx, key, resp)
	return resp, nil
}

// store keeps a copy of a shareable response in the current cache. The
// cache is read by every client, so cookies set for the requesting client
// are stripped from the copy. Failures are logged.
func (w *Worker) store(ctx context.Context, key string, resp *Response) {
	if !resp.Shareable() {
		if resp.OK() {
			w.log.Debug("response not shareable, not cached", "key", key)
		}
		return
	}
	c, err := w.storage.Open(ctx, w.cfg.CacheName)
	if err == nil {
		err = c.Put(ctx, key, resp.sharedCopy())
	}
	if err != nil {
		w.log.Warn("offline cache write failed", "key", key, "error", err)
	}
}
