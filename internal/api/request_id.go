package api

import (
	"net/http"

	"github.com/vitaliisemenov/execution-bridge/internal/api/middleware"
)

// w3cRequestID reads the request ID middleware.RequestIDMiddleware attached
// to the request context, for embedding in error responses.
func w3cRequestID(r *http.Request) string {
	return middleware.GetRequestID(r.Context())
}
