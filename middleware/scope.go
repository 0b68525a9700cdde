package middleware

import (
	"context"

	"github.com/HeltonFraga01/cortexx-sub006/job"
	"github.com/HeltonFraga01/cortexx-sub006/scope"
)

// Scope returns middleware that restores the tenant identity from the
// job's TenantID field into the context. This ensures handlers see the
// same tenant scope as the original enqueue caller.
func Scope() Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		ctx = scope.Restore(ctx, j.TenantID)
		return next(ctx)
	}
}
