// SPDX-License-Identifier: AGPL-3.0-or-later
// SPDX-FileCopyrightText: 2025 FamilyAgenda Authors

// Package offline implements the server-side offline cache worker that
// fronts the web client: versioned named caches, network-first navigations
// and cache-first assets.
package offline

import (
	"net/http"
	"strconv"
	"strings"
)

// OfflineHeader marks responses synthesized because neither the network
// nor the cache could answer.
const OfflineHeader = "X-Offline"

// Response is a fully buffered HTTP response.
type Response struct {
	Status int         `json:"status"`
	Header http.Header `json:"header"`
	Body   []byte      `json:"body"`
}

// OK reports whether the status is 2xx.
func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// Clone returns a deep copy.
func (r *Response) Clone() *Response {
	c := &Response{Status: r.Status, Header: r.Header.Clone()}
	if r.Body != nil {
		c.Body = append([]byte(nil), r.Body...)
	}
	return c
}

// WriteTo writes the response to w.
func (r *Response) WriteTo(w http.ResponseWriter) {
	for k, vs := range r.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(r.Body)))
	w.WriteHeader(r.Status)
	_, _ = w.Write(r.Body)
}

// Shareable reports whether a copy of r may be kept in a cache that every
// client reads: a 2xx the origin did not mark no-store or private, and that
// does not vary on the caller's credentials.
func (r *Response) Shareable() bool {
	if !r.OK() {
		return false
	}
	for _, d := range headerTokens(r.Header, "Cache-Control") {
		if i := strings.IndexByte(d, '='); i >= 0 {
			d = strings.TrimSpace(d[:i])
		}
		if d == "no-store" || d == "private" {
			return false
		}
	}
	for _, f := range headerTokens(r.Header, "Vary") {
		switch f {
		case "*", "cookie", "authorization":
			return false
		}
	}
	return true
}

// sharedCopy returns a deep copy of r without the headers that belong to
// the client the response was fetched for.
func (r *Response) sharedCopy() *Response {
	c := r.Clone()
	for _, k := range perClientHeaders {
		c.Header.Del(k)
	}
	return c
}

// headerTokens returns the lowercased comma-separated values of key.
func headerTokens(h http.Header, key string) []string {
	var out []string
	for _, v := range h.Values(key) {
		for _, t := range strings.Split(v, ",") {
			if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
				out = append(out, t)
			}
		}
	}
	return out
}

var perClientHeaders = []string{"Set-Cookie", "Set-Cookie2"}

var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
	"Content-Length",
}

// cleanHeader copies h without hop-by-hop headers.
func cleanHeader(h http.Header) http.Header {
	out := h.Clone()
	if out == nil {
		out = http.Header{}
	}
	for _, f := range strings.Split(out.Get("Connection"), ",") {
		if f = strings.TrimSpace(f); f != "" {
			out.Del(f)
		}
	}
	for _, k := range hopHeaders {
		out.Del(k)
	}
	return out
}

// offlineResponse is returned when a request cannot be answered.
func offlineResponse(status int) *Response {
	h := http.Header{}
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("Cache-Control", "no-store")
	h.Set(OfflineHeader, "1")
	return &Response{Status: status, Header: h, Body: []byte("offline\n")}
}

// IsNavigation reports whether r is a page navigation: a browsing-context
// request or one that accepts HTML.
func IsNavigation(r *http.Request) bool {
	return r.Header.Get("Sec-Fetch-Mode") == "navigate" ||
		strings.Contains(r.Header.Get("Accept"), "text/html")
}

// RequestKey identifies r within a cache.
func RequestKey(r *http.Request) string {
	return r.URL.RequestURI()
}
