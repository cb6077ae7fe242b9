package contexthelpers

import (
	"context"
	"net/http"
)

func SetProfileID(r *http.Request, profileID string) *http.Request {
	ctx := context.WithValue(r.Context(), profileIDContextKey, profileID)
	return r.WithContext(ctx)
}

func SetCSRFToken(r *http.Request, csrfToken string) *http.Request {
	ctx := context.WithValue(r.Context(), csrfTokenContextKey, csrfToken)
	return r.WithContext(ctx)
}

func SetCSPNonce(r *http.Request, nonce string) *http.Request {
	ctx := context.WithValue(r.Context(), cspNonceContextKey, nonce)
	return r.WithContext(ctx)
}
