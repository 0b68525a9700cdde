// Package scope carries the tenant identity of a request or job through
// context.Context. Handlers executed by the worker pool see the same
// tenant scope the enqueuer had, so downstream calls (cache keys, quota
// checks, logging) stay attributed to the right tenant.
package scope

import "context"

type ctxKey struct{}

// Capture extracts the tenant identifier from the context.
// Returns the empty string if no scope is present.
func Capture(ctx context.Context) string {
	tenantID, _ := ctx.Value(ctxKey{}).(string)
	return tenantID
}

// Restore attaches a tenant scope to the context. If tenantID is empty
// the context is returned unchanged.
func Restore(ctx context.Context, tenantID string) context.Context {
	if tenantID == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, tenantID)
}
