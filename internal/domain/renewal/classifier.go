package renewal

import (
	"math"
	"time"
)

// Bucket is the urgency category a policy falls into relative to its
// resolved expiry date.
type Bucket string

const (
	BucketOverdue        Bucket = "Overdue"
	BucketUrgent         Bucket = "Urgent"
	BucketPendingRenewal Bucket = "Pending Renewal"
	BucketUpcoming       Bucket = "Upcoming"
)

// Classification is the result of bucketing a single expiry date.
// DaysUntilExpiry is nil when the policy has no resolved expiry date.
type Classification struct {
	DaysUntilExpiry *int
	Bucket          Bucket
}

// Midnight truncates an instant to local midnight of its calendar day.
// All day counting is anchored here so categorization is stable within a
// calendar day regardless of time-of-call.
func Midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// DaysUntil returns ceil((expiry - midnight(today)) / 24h).
func DaysUntil(expiry, today time.Time) int {
	diff := expiry.Sub(Midnight(today))
	return int(math.Ceil(diff.Hours() / 24))
}

// Classify maps an expiry date (nil when absent) and a reference instant to
// an urgency bucket. Pure and deterministic.
func Classify(expiry *time.Time, today time.Time) Classification {
	if expiry == nil {
		return Classification{Bucket: BucketUpcoming}
	}
	days := DaysUntil(*expiry, today)
	c := Classification{DaysUntilExpiry: &days}
	switch {
	case days < 0:
		c.Bucket = BucketOverdue
	case days <= 7:
		c.Bucket = BucketUrgent
	case days <= 30:
		c.Bucket = BucketPendingRenewal
	default:
		c.Bucket = BucketUpcoming
	}
	return c
}
