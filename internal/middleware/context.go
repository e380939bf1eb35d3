// Package middleware holds the HTTP middleware chain of the matchcore API:
// request ids, structured access logs, tracing, Prometheus metrics, bearer
// authentication and per-user rate limiting.
package middleware

import "context"

type (
	requestIDKey struct{}
	userIDKey    struct{}
	errorCodeKey struct{}
)

// SetUserID stores the authenticated user id in the context.
func SetUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// GetUserID returns the authenticated user id, or "" when the request is anonymous.
func GetUserID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey{}).(string)
	return id
}

// SetErrorCode records the API error code a handler is about to write.
func SetErrorCode(ctx context.Context, code string) context.Context {
	return context.WithValue(ctx, errorCodeKey{}, code)
}

// GetErrorCode returns the error code recorded by SetErrorCode.
func GetErrorCode(ctx context.Context) string {
	code, _ := ctx.Value(errorCodeKey{}).(string)
	return code
}

// GetRequestID returns the request id assigned by RequestID.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
