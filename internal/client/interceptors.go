package client

import (
	"net/http"

	"github.com/pesio-ai/be-doc-workflows/internal/middleware"
)

// roundTripperFunc adapts a function to http.RoundTripper.
type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

// forwardRequestID propagates the incoming request ID to outgoing
// service-to-service calls so both sides log the same X-Request-ID.
func forwardRequestID(next http.RoundTripper) http.RoundTripper {
	return roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		id := middleware.GetRequestID(r.Context())
		if id == "" || r.Header.Get(middleware.RequestIDHeader) != "" {
			return next.RoundTrip(r)
		}
		r = r.Clone(r.Context())
		r.Header.Set(middleware.RequestIDHeader, id)
		return next.RoundTrip(r)
	})
}
