// Package httpwrap provides HTTP handler wrappers for service routers.
package httpwrap

import "net/http"

// ClearRawPath clears r.URL.RawPath so chi routes on the decoded path.
func ClearRawPath(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.URL.RawPath = ""
		next.ServeHTTP(w, r)
	})
}

// LimitBody caps request bodies at n bytes. Reads past the cap fail, which
// JSON decoders surface as a bad request.
func LimitBody(n int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, n)
			}
			next.ServeHTTP(w, r)
		})
	}
}
