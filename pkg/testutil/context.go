package testutil

import (
	"net/http"
	"time"

	"custodia/internal/platform/middleware"
	"custodia/pkg/requestcontext"

	id "custodia/pkg/domain"
)

// WithAuth injects the authenticated user and clinic scope into the request
// context, simulating what the auth middleware does for valid tokens.
func WithAuth(req *http.Request, clinicID id.ClinicID, userID id.UserID) *http.Request {
	ctx := requestcontext.WithClinicID(req.Context(), clinicID)
	ctx = requestcontext.WithUserID(ctx, userID)
	return req.WithContext(ctx)
}

// WithOperator marks the request principal as an operator. Apply after
// WithAuth.
func WithOperator(req *http.Request) *http.Request {
	return req.WithContext(middleware.WithOperator(req.Context()))
}

// WithTime pins the request clock so assertions on timestamps are exact.
func WithTime(req *http.Request, at time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), at))
}
