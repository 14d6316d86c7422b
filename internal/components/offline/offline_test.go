package offline_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MahdiBaghbani/familyagenda-go/internal/components/offline"
	"github.com/MahdiBaghbani/familyagenda-go/internal/platform/cache/memory"
	"github.com/MahdiBaghbani/familyagenda-go/internal/platform/config"
	httpclient "github.com/MahdiBaghbani/familyagenda-go/internal/platform/http/client"
)

var errNetwork = errors.New("dial tcp: connection refused")

// fakeNetwork serves fixed bodies per path and can be taken offline.
type fakeNetwork struct {
	mu      sync.Mutex
	pages   map[string]string
	headers map[string]http.Header
	down    bool
	fetches int
}

func (n *fakeNetwork) Fetch(_ context.Context, r *http.Request) (*offline.Response, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.fetches++
	if n.down {
		return nil, errNetwork
	}
	body, ok := n.pages[r.URL.Path]
	if !ok {
		return &offline.Response{Status: http.StatusNotFound, Header: http.Header{}, Body: []byte("not found")}, nil
	}
	h := http.Header{"Content-Type": {"text/html"}}
	for k, vs := range n.headers[r.URL.Path] {
		h[k] = append([]string(nil), vs...)
	}
	return &offline.Response{Status: http.StatusOK, Header: h, Body: []byte(body)}, nil
}

func (n *fakeNetwork) setDown(down bool) {
	n.mu.Lock()
	n.down = down
	n.mu.Unlock()
}

func newStorage() *offline.Storage {
	return offline.NewStorage(memory.New(0, 0), 0)
}

func navigation(path string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, path, nil)
	r.Header.Set("Sec-Fetch-Mode", "navigate")
	return r
}

func asset(path string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, path, nil)
	r.Header.Set("Accept", "*/*")
	return r
}

func startedWorker(t *testing.T, storage *offline.Storage, net *fakeNetwork, assets ...string) *offline.Worker {
	t.Helper()
	w := offline.NewWorker(offline.Config{CacheName: "agenda-familiar-v1", CoreAssets: assets}, storage, net, nil)
	require.NoError(t, w.Start(context.Background()))
	return w
}

func TestIsNavigation(t *testing.T) {
	assert.True(t, offline.IsNavigation(navigation("/")))
	r := httptest.NewRequest(http.MethodGet, "/tarefas", nil)
	r.Header.Set("Accept", "text/html,application/xhtml+xml")
	assert.True(t, offline.IsNavigation(r))
	assert.False(t, offline.IsNavigation(asset("/_next/app.js")))
}

func TestStorage_OpenPutMatchDelete(t *testing.T) {
	ctx := context.Background()
	s := newStorage()

	c, err := s.Open(ctx, "v1")
	require.NoError(t, err)
	_, err = s.Open(ctx, "v1")
	require.NoError(t, err)

	require.NoError(t, c.Put(ctx, "/a", &offline.Response{Status: 200, Body: []byte("a")}))
	require.NoError(t, c.Put(ctx, "/a", &offline.Response{Status: 200, Body: []byte("a2")}))
	require.NoError(t, c.Put(ctx, "/b?x=1", &offline.Response{Status: 200, Body: []byte("b")}))

	keys, err := c.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"/a", "/b?x=1"}, keys)

	got, err := s.Match(ctx, "/a")
	require.NoError(t, err)
	assert.Equal(t, "a2", string(got.Body))

	_, err = c.Match(ctx, "/missing")
	assert.ErrorIs(t, err, offline.ErrNoMatch)

	names, err := s.Names(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"v1"}, names)

	existed, err := s.Delete(ctx, "v1")
	require.NoError(t, err)
	assert.True(t, existed)
	existed, err = s.Delete(ctx, "v1")
	require.NoError(t, err)
	assert.False(t, existed)

	_, err = s.Match(ctx, "/a")
	assert.ErrorIs(t, err, offline.ErrNoMatch)
	names, err = s.Names(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestStorage_ConcurrentPuts(t *testing.T) {
	ctx := context.Background()
	s := newStorage()
	c, err := s.Open(ctx, "v1")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := "/asset-" + string(rune('a'+i))
			assert.NoError(t, c.Put(ctx, key, &offline.Response{Status: 200}))
		}(i)
	}
	wg.Wait()

	keys, err := c.Keys(ctx)
	require.NoError(t, err)
	assert.Len(t, keys, 20)
}

func TestWorker_InstallSkipsFailedAssets(t *testing.T) {
	ctx := context.Background()
	s := newStorage()
	net := &fakeNetwork{pages: map[string]string{"/": "home", "/tarefas": "tasks"}}

	w := offline.NewWorker(offline.Config{
		CacheName:  "agenda-familiar-v1",
		CoreAssets: []string{"/", "/tarefas", "/calendario"},
	}, s, net, nil)
	require.NoError(t, w.Install(ctx))
	assert.Equal(t, offline.StateInstalled, w.State())

	c, err := s.Open(ctx, "agenda-familiar-v1")
	require.NoError(t, err)
	keys, err := c.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"/", "/tarefas"}, keys)

	require.NoError(t, w.Activate(ctx))
	assert.Equal(t, offline.StateActivated, w.State())
}

func TestWorker_InstallWithNetworkDown(t *testing.T) {
	net := &fakeNetwork{down: true}
	w := offline.NewWorker(offline.Config{CacheName: "v1", CoreAssets: []string{"/"}}, newStorage(), net, nil)
	require.NoError(t, w.Start(context.Background()))
	assert.Equal(t, offline.StateActivated, w.State())
}

func TestWorker_ActivateDeletesStaleCaches(t *testing.T) {
	ctx := context.Background()
	s := newStorage()
	old, err := s.Open(ctx, "agenda-familiar-v0")
	require.NoError(t, err)
	require.NoError(t, old.Put(ctx, "/", &offline.Response{Status: 200, Body: []byte("stale")}))
	_, err = s.Open(ctx, "agenda-familiar-v1")
	require.NoError(t, err)

	startedWorker(t, s, &fakeNetwork{pages: map[string]string{}})

	names, err := s.Names(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"agenda-familiar-v1"}, names)
	_, err = old.Match(ctx, "/")
	assert.ErrorIs(t, err, offline.ErrNoMatch)
}

func TestWorker_NavigationNetworkFirst(t *testing.T) {
	ctx := context.Background()
	net := &fakeNetwork{pages: map[string]string{"/calendario": "calendar v1"}}
	w := startedWorker(t, newStorage(), net)

	resp, err := w.Fetch(ctx, navigation("/calendario"))
	require.NoError(t, err)
	assert.Equal(t, "calendar v1", string(resp.Body))

	net.pages["/calendario"] = "calendar v2"
	resp, err = w.Fetch(ctx, navigation("/calendario"))
	require.NoError(t, err)
	assert.Equal(t, "calendar v2", string(resp.Body), "network wins while online")

	net.setDown(true)
	resp, err = w.Fetch(ctx, navigation("/calendario"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "calendar v2", string(resp.Body))
	assert.Empty(t, resp.Header.Get(offline.OfflineHeader))
}

func TestWorker_NavigationFallsBackToRoot(t *testing.T) {
	ctx := context.Background()
	net := &fakeNetwork{pages: map[string]string{"/": "shell"}}
	w := startedWorker(t, newStorage(), net, "/")

	net.setDown(true)
	resp, err := w.Fetch(ctx, navigation("/tarefas?filtro=Casa"))
	require.NoError(t, err)
	assert.Equal(t, "shell", string(resp.Body))
}

func TestWorker_NavigationOfflineFallback(t *testing.T) {
	net := &fakeNetwork{down: true}
	w := startedWorker(t, newStorage(), net)

	resp, err := w.Fetch(context.Background(), navigation("/tarefas"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.Status)
	assert.Equal(t, "1", resp.Header.Get(offline.OfflineHeader))
}

func TestWorker_AssetCacheFirst(t *testing.T) {
	ctx := context.Background()
	net := &fakeNetwork{pages: map[string]string{"/_next/app.js": "console.log(1)"}}
	w := startedWorker(t, newStorage(), net)

	resp, err := w.Fetch(ctx, asset("/_next/app.js"))
	require.NoError(t, err)
	assert.Equal(t, "console.log(1)", string(resp.Body))

	net.pages["/_next/app.js"] = "console.log(2)"
	before := net.fetches
	resp, err = w.Fetch(ctx, asset("/_next/app.js"))
	require.NoError(t, err)
	assert.Equal(t, "console.log(1)", string(resp.Body))
	assert.Equal(t, before, net.fetches, "cache hit must not touch the network")

	net.setDown(true)
	resp, err = w.Fetch(ctx, asset("/_next/other.js"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusGatewayTimeout, resp.Status)
	assert.Equal(t, "1", resp.Header.Get(offline.OfflineHeader))
}

func TestWorker_ErrorResponsesNotCached(t *testing.T) {
	ctx := context.Background()
	net := &fakeNetwork{pages: map[string]string{}}
	w := startedWorker(t, newStorage(), net)

	resp, err := w.Fetch(ctx, asset("/missing.png"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.Status)

	net.setDown(true)
	resp, err = w.Fetch(ctx, asset("/missing.png"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusGatewayTimeout, resp.Status)
}

func TestWorker_SetCookieNotShared(t *testing.T) {
	ctx := context.Background()
	net := &fakeNetwork{
		pages: map[string]string{"/_next/app.js": "console.log(1)", "/calendario": "calendar"},
		headers: map[string]http.Header{
			"/_next/app.js": {"Set-Cookie": {"session=user-a; Path=/"}, "Set-Cookie2": {"legacy=user-a"}},
			"/calendario":   {"Set-Cookie": {"session=user-a; Path=/"}},
		},
	}
	w := startedWorker(t, newStorage(), net)

	reqA := asset("/_next/app.js")
	reqA.AddCookie(&http.Cookie{Name: "af_session", Value: "a"})
	resp, err := w.Fetch(ctx, reqA)
	require.NoError(t, err)
	assert.Equal(t, "session=user-a; Path=/", resp.Header.Get("Set-Cookie"), "fetching client keeps its own cookie")

	before := net.fetches
	reqB := asset("/_next/app.js")
	reqB.AddCookie(&http.Cookie{Name: "af_session", Value: "b"})
	resp, err = w.Fetch(ctx, reqB)
	require.NoError(t, err)
	assert.Equal(t, before, net.fetches, "served from cache")
	assert.Equal(t, "console.log(1)", string(resp.Body))
	assert.Empty(t, resp.Header.Values("Set-Cookie"))
	assert.Empty(t, resp.Header.Values("Set-Cookie2"))

	_, err = w.Fetch(ctx, navigation("/calendario"))
	require.NoError(t, err)
	net.setDown(true)
	resp, err = w.Fetch(ctx, navigation("/calendario"))
	require.NoError(t, err)
	assert.Equal(t, "calendar", string(resp.Body))
	assert.Empty(t, resp.Header.Values("Set-Cookie"))
}

func TestWorker_PrivateResponsesNotCached(t *testing.T) {
	tests := []struct {
		name   string
		header http.Header
	}{
		{"no-store", http.Header{"Cache-Control": {"no-store"}}},
		{"private", http.Header{"Cache-Control": {"max-age=60, Private"}}},
		{"private with fields", http.Header{"Cache-Control": {`private="Set-Cookie"`}}},
		{"vary cookie", http.Header{"Vary": {"Accept-Encoding, Cookie"}}},
		{"vary star", http.Header{"Vary": {"*"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			net := &fakeNetwork{
				pages:   map[string]string{"/_next/app.js": "js", "/": "home"},
				headers: map[string]http.Header{"/_next/app.js": tt.header, "/": tt.header},
			}
			s := newStorage()
			w := startedWorker(t, s, net, "/")

			resp, err := w.Fetch(ctx, asset("/_next/app.js"))
			require.NoError(t, err)
			assert.Equal(t, "js", string(resp.Body))

			c, err := s.Open(ctx, "agenda-familiar-v1")
			require.NoError(t, err)
			keys, err := c.Keys(ctx)
			require.NoError(t, err)
			assert.Empty(t, keys, "neither the core asset nor the fetched asset is stored")

			net.setDown(true)
			resp, err = w.Fetch(ctx, asset("/_next/app.js"))
			require.NoError(t, err)
			assert.Equal(t, http.StatusGatewayTimeout, resp.Status)
		})
	}
}

func TestResponseShareable(t *testing.T) {
	ok := &offline.Response{Status: http.StatusOK, Header: http.Header{"Cache-Control": {"public, max-age=3600"}, "Vary": {"Accept-Encoding"}}}
	assert.True(t, ok.Shareable())
	assert.True(t, (&offline.Response{Status: http.StatusOK}).Shareable(), "nil header")
	assert.False(t, (&offline.Response{Status: http.StatusNotFound}).Shareable())
	assert.False(t, (&offline.Response{Status: http.StatusOK, Header: http.Header{"Cache-Control": {"NO-STORE"}}}).Shareable())
}

func TestWorker_PassThrough(t *testing.T) {
	ctx := context.Background()
	net := &fakeNetwork{pages: map[string]string{"/form": "posted"}}

	w := offline.NewWorker(offline.Config{CacheName: "v1"}, newStorage(), net, nil)
	resp, err := w.Fetch(ctx, asset("/form"))
	require.NoError(t, err, "inactive worker forwards")
	assert.Equal(t, "posted", string(resp.Body))

	require.NoError(t, w.Start(ctx))
	net.setDown(true)
	_, err = w.Fetch(ctx, httptest.NewRequest(http.MethodPost, "/form", nil))
	assert.ErrorIs(t, err, errNetwork, "non-GET errors are not masked")
}

func TestHTTPUpstream(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Header().Set("Connection", "keep-alive")
		_, _ = w.Write([]byte("page " + r.URL.RequestURI()))
	}))
	defer origin.Close()

	cfg := httpclient.DefaultConfig()
	cfg.SSRFMode = "off"
	c, err := httpclient.New(cfg)
	require.NoError(t, err)
	up, err := offline.NewHTTPUpstream(origin.URL+"/", httpclient.NewContextClient(c))
	require.NoError(t, err)

	resp, err := up.Fetch(context.Background(), navigation("/tarefas?x=1"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "page /tarefas?x=1", string(resp.Body))
	assert.Empty(t, resp.Header.Get("Connection"))

	origin.Close()
	_, err = up.Fetch(context.Background(), navigation("/"))
	assert.Error(t, err)

	_, err = offline.NewHTTPUpstream("ftp://example.org", httpclient.NewContextClient(c))
	assert.Error(t, err)
}

func TestDirUpstream(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "manifest.webmanifest"), []byte(`{"name":"Agenda"}`), 0o644))

	up := offline.NewDirUpstream(root)
	resp, err := up.Fetch(context.Background(), asset("/manifest.webmanifest"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, `{"name":"Agenda"}`, string(resp.Body))

	resp, err = up.Fetch(context.Background(), asset("/nope.js"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.Status)
}

func TestResponseWriteTo(t *testing.T) {
	rec := httptest.NewRecorder()
	(&offline.Response{Status: http.StatusTeapot, Header: http.Header{"X-A": {"1"}}, Body: []byte("tea")}).WriteTo(rec)
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("X-A"))
	assert.Equal(t, "3", rec.Header().Get("Content-Length"))
	assert.Equal(t, "tea", rec.Body.String())
}

func TestRenderScript_Golden(t *testing.T) {
	cfg := config.StrictConfig().Offline
	var buf bytes.Buffer
	require.NoError(t, offline.RenderScript(&buf, offline.Config{CacheName: cfg.CacheName, CoreAssets: cfg.CoreAssets}))

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "sw.js", buf.Bytes())
}

func TestScriptHandler(t *testing.T) {
	h, err := offline.ScriptHandler(offline.Config{CacheName: "agenda-familiar-v9", CoreAssets: []string{"/"}})
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sw.js", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "javascript")
	assert.Contains(t, rec.Body.String(), `const CACHE_NAME = "agenda-familiar-v9";`)
}
