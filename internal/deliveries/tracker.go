// Package deliveries remembers which webhook deliveries were already applied
// so that provider retries of the same delivery id have no further effect.
package deliveries

import (
	"context"
	"time"
)

// State is the outcome of claiming a delivery id
type State int

const (
	// Claimed means the caller owns the delivery and must Complete or Release it
	Claimed State = iota
	// InFlight means another request is currently processing the same delivery
	InFlight
	// Done means the delivery was already applied successfully
	Done
)

func (s State) String() string {
	switch s {
	case Claimed:
		return "claimed"
	case InFlight:
		return "in_flight"
	case Done:
		return "done"
	default:
		return "unknown"
	}
}

// Default lifetimes for claims and completed markers
const (
	DefaultClaimTTL = 2 * time.Minute
	DefaultDoneTTL  = 72 * time.Hour
)

// Tracker records delivery processing state keyed by source and delivery id
type Tracker interface {
	Claim(ctx context.Context, source, id string) (State, error)
	Complete(ctx context.Context, source, id string) error
	Release(ctx context.Context, source, id string) error
	Close() error
}

func key(source, id string) string {
	return "webhook:delivery:" + source + ":" + id
}

func ttls(claimTTL, doneTTL time.Duration) (time.Duration, time.Duration) {
	if claimTTL <= 0 {
		claimTTL = DefaultClaimTTL
	}
	if doneTTL <= 0 {
		doneTTL = DefaultDoneTTL
	}
	return claimTTL, doneTTL
}
