package offline

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	httpclient "github.com/MahdiBaghbani/familyagenda-go/internal/platform/http/client"
)

// Upstream is the network side of the worker. An error means the network
// could not be reached; any HTTP status is a successful fetch.
type Upstream interface {
	Fetch(ctx context.Context, r *http.Request) (*Response, error)
}

// UpstreamFunc adapts a function to Upstream.
type UpstreamFunc func(ctx context.Context, r *http.Request) (*Response, error)

// Fetch calls f.
func (f UpstreamFunc) Fetch(ctx context.Context, r *http.Request) (*Response, error) {
	return f(ctx, r)
}

// HTTPUpstream forwards requests to the web client's origin.
type HTTPUpstream struct {
	base   *url.URL
	client *httpclient.ContextClient
}

// NewHTTPUpstream creates an upstream for origin, e.g. "http://127.0.0.1:3000".
func NewHTTPUpstream(origin string, client *httpclient.ContextClient) (*HTTPUpstream, error) {
	u, err := url.Parse(origin)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("offline: invalid upstream %q", origin)
	}
	u.Path = strings.TrimSuffix(u.Path, "/")
	return &HTTPUpstream{base: u, client: client}, nil
}

// Fetch sends r to the upstream and buffers the response.
func (u *HTTPUpstream) Fetch(ctx context.Context, r *http.Request) (*Response, error) {
	target := *u.base
	target.Path = u.base.Path + r.URL.Path
	target.RawQuery = r.URL.RawQuery

	out, err := http.NewRequestWithContext(ctx, r.Method, target.String(), r.Body)
	if err != nil {
		return nil, err
	}
	out.Header = cleanHeader(r.Header)
	out.ContentLength = r.ContentLength

	resp, err := u.client.Do(ctx, out)
	if err != nil {
		return nil, err
	}
	body, err := u.client.Client().ReadBody(resp)
	if err != nil {
		return nil, err
	}
	return &Response{Status: resp.StatusCode, Header: cleanHeader(resp.Header), Body: body}, nil
}

// DirUpstream serves a built web client from a directory.
type DirUpstream struct {
	files http.Handler
}

// NewDirUpstream creates an upstream over root.
func NewDirUpstream(root string) *DirUpstream {
	return &DirUpstream{files: http.FileServer(http.Dir(root))}
}

// Fetch serves r from the directory. It never fails.
func (d *DirUpstream) Fetch(ctx context.Context, r *http.Request) (*Response, error) {
	rec := &bufferedWriter{header: http.Header{}}
	d.files.ServeHTTP(rec, r.WithContext(ctx))
	if rec.status == 0 {
		rec.status = http.StatusOK
	}
	return &Response{Status: rec.status, Header: cleanHeader(rec.header), Body: rec.body.Bytes()}, nil
}

type bufferedWriter struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func (b *bufferedWriter) Header() http.Header { return b.header }

func (b *bufferedWriter) WriteHeader(status int) {
	if b.status == 0 {
		b.status = status
	}
}

func (b *bufferedWriter) Write(p []byte) (int, error) {
	if b.status == 0 {
		b.status = http.StatusOK
	}
	return b.body.Write(p)
}
