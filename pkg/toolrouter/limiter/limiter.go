// Package limiter implements the Tool Router's per-tool, per-tenant sliding
// window rate limiting (spec §4.5).
package limiter

import "context"

// Limiter decides whether a tool call is allowed under its catalog rate
// limit. Implementations key the window by (tenantID, toolName). Per-tool
// concurrency is a separate bound enforced by the Router itself, not by
// the Limiter.
type Limiter interface {
	// Allow reports whether a call may proceed. When it returns false,
	// retryAfterMs carries a hint for how long the caller should wait.
	Allow(ctx context.Context, tenantID, toolName string, perMinute, perHour int) (allowed bool, retryAfterMs int64, err error)
}
