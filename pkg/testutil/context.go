package testutil

import (
	"net/http"

	"flowaudit/pkg/requestcontext"
)

// WithUserID adds a user ID to the request context.
// This simulates what the auth middleware would do for authenticated requests.
func WithUserID(req *http.Request, userID string) *http.Request {
	return req.WithContext(requestcontext.WithUserID(req.Context(), userID))
}

// WithAuth adds user, session and organization IDs to the request context.
// This is the typical state for an authenticated admin request.
func WithAuth(req *http.Request, userID, sessionID, organizationID string) *http.Request {
	ctx := req.Context()
	if userID != "" {
		ctx = requestcontext.WithUserID(ctx, userID)
	}
	if sessionID != "" {
		ctx = requestcontext.WithSessionID(ctx, sessionID)
	}
	if organizationID != "" {
		ctx = requestcontext.WithOrganizationID(ctx, organizationID)
	}
	return req.WithContext(ctx)
}
