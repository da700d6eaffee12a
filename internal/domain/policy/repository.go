package policy

import (
	"context"
	"time"
)

// ExpiryQuery selects policies whose resolved expiry date (insuranceEndDate
// with periodTo fallback) falls in the half-open range [From, To).
type ExpiryQuery struct {
	From     time.Time
	To       time.Time
	Statuses []Status
	// ExcludeRenewed drops policies whose renewal status is renewed.
	ExcludeRenewed bool
	// NotContactedSince, when set, keeps only policies never contacted or
	// last contacted strictly before the given instant.
	NotContactedSince *time.Time
}

// Repository defines the persistence operations the renewal core requires
// from the policy record store.
type Repository interface {
	// FindByExpiry returns policies matching the query, sorted by resolved
	// expiry date ascending.
	FindByExpiry(ctx context.Context, q ExpiryQuery) ([]*Policy, error)
	FindByID(ctx context.Context, id string) (*Policy, error)
	// Save persists the policy's mutable renewal-relevant fields, including
	// the full renewalTracking subtree.
	Save(ctx context.Context, p *Policy) error

	// CountDueBetween counts policies with resolved expiry in [from, to)
	// and status in the given set.
	CountDueBetween(ctx context.Context, from, to time.Time, statuses []Status) (int, error)
	// CountRenewedBetween counts policies marked renewed in [from, to), or
	// created in that range carrying a previous-policy reference.
	CountRenewedBetween(ctx context.Context, from, to time.Time) (int, error)
}
