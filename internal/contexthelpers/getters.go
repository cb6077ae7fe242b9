package contexthelpers

import (
	"context"
)

// ProfileID returns the browser profile identifier set by the profile middleware or "" if missing.
func ProfileID(ctx context.Context) string {
	profileID, ok := ctx.Value(profileIDContextKey).(string)
	if !ok {
		return ""
	}

	return profileID
}

func CSRFToken(ctx context.Context) string {
	csrfToken, ok := ctx.Value(csrfTokenContextKey).(string)
	if !ok {
		return ""
	}

	return csrfToken
}

func CSPNonce(ctx context.Context) string {
	nonce, ok := ctx.Value(cspNonceContextKey).(string)
	if !ok {
		return ""
	}

	return nonce
}
