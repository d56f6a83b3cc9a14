// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values. Middleware sets them; services read them. Keeping
// this package free of net/http lets services import only what they need.
package requestcontext

import (
	"context"
	"time"

	id "custodia/pkg/domain"
)

type (
	userIDKey      struct{}
	clinicIDKey    struct{}
	clientIPKey    struct{}
	userAgentKey   struct{}
	deviceKey      struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// Exported context keys for tests that need raw context.WithValue.
var (
	ContextKeyUserID      = userIDKey{}
	ContextKeyClinicID    = clinicIDKey{}
	ContextKeyClientIP    = clientIPKey{}
	ContextKeyUserAgent   = userAgentKey{}
	ContextKeyDevice      = deviceKey{}
	ContextKeyRequestID   = requestIDKey{}
	ContextKeyRequestTime = requestTimeKey{}
)

// UserID retrieves the authenticated user ID, or the zero value if not set.
func UserID(ctx context.Context) id.UserID {
	if v, ok := ctx.Value(ContextKeyUserID).(id.UserID); ok {
		return v
	}
	return id.UserID{}
}

// WithUserID injects a user ID into the context.
func WithUserID(ctx context.Context, userID id.UserID) context.Context {
	return context.WithValue(ctx, ContextKeyUserID, userID)
}

// ClinicID retrieves the tenant scope, or the zero value if not set.
func ClinicID(ctx context.Context) id.ClinicID {
	if v, ok := ctx.Value(ContextKeyClinicID).(id.ClinicID); ok {
		return v
	}
	return id.ClinicID{}
}

// WithClinicID injects the tenant scope into the context.
func WithClinicID(ctx context.Context, clinicID id.ClinicID) context.Context {
	return context.WithValue(ctx, ContextKeyClinicID, clinicID)
}

// ClientIP retrieves the client IP address from the context.
func ClientIP(ctx context.Context) string {
	if v, ok := ctx.Value(ContextKeyClientIP).(string); ok {
		return v
	}
	return ""
}

// WithClientIP injects a client IP into the context.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ContextKeyClientIP, ip)
}

// UserAgent retrieves the raw User-Agent header value from the context.
// Absence is normal; callers must tolerate an empty string.
func UserAgent(ctx context.Context) string {
	if v, ok := ctx.Value(ContextKeyUserAgent).(string); ok {
		return v
	}
	return ""
}

// WithUserAgent injects a raw User-Agent value into the context.
func WithUserAgent(ctx context.Context, ua string) context.Context {
	return context.WithValue(ctx, ContextKeyUserAgent, ua)
}

// Device retrieves the parsed, human-readable device description
// (e.g. "Chrome 120 on Linux") from the context.
func Device(ctx context.Context) string {
	if v, ok := ctx.Value(ContextKeyDevice).(string); ok {
		return v
	}
	return ""
}

// WithDevice injects a parsed device description into the context.
func WithDevice(ctx context.Context, device string) context.Context {
	return context.WithValue(ctx, ContextKeyDevice, device)
}

// RequestID retrieves the correlation ID assigned by middleware.
func RequestID(ctx context.Context) string {
	if v, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return v
	}
	return ""
}

// WithRequestID injects a correlation ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// Now returns the request time if injected (tests), otherwise time.Now().
func Now(ctx context.Context) time.Time {
	if v, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return v
	}
	return time.Now()
}

// WithTime pins the request time, letting tests control clocks.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}
