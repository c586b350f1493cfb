// Package enforcer defines the collaborators that measure app usage and
// apply OS-level restrictions.
package enforcer

import (
	"context"
	"time"
)

// UsageTelemetry reports measured usage for today.
type UsageTelemetry interface {
	// AppUsedMinutes returns the best-effort cumulative minutes the app was
	// used today. Zero means unknown.
	AppUsedMinutes(ctx context.Context, appToken string) (int, error)
}

// RestrictionEnforcer blocks and unblocks apps. Calls are fire-and-forget:
// callers log failures and do not retry.
type RestrictionEnforcer interface {
	ApplyRestriction(ctx context.Context, appToken string) error
	// LiftRestriction unblocks the app and cancels any restriction scheduled
	// for it.
	LiftRestriction(ctx context.Context, appToken string) error
	LiftAllRestrictions(ctx context.Context) error
	ScheduleRestrictionAt(ctx context.Context, appToken string, at time.Time) error
	IsRestricted(ctx context.Context, appToken string) (bool, error)
}
