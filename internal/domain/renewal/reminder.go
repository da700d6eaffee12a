package renewal

import (
	"time"

	"policy_renewal_tracker/internal/domain/policy"
)

// Ladder holds the day-offsets at which automated reminders fire. The long
// and short rungs each fire at most once per policy; every day from
// Short-1 down to 1 fires a daily reminder.
type Ladder struct {
	LongDays  int // typed "30-day" rung
	ShortDays int // typed "7-day" rung
}

// DefaultLadder is the fixed reminder ladder: day 30, day 7, days 6..1.
var DefaultLadder = Ladder{LongDays: 30, ShortDays: 7}

// TypeFor maps a days-until-expiry count to a reminder type. The second
// return is false when no reminder applies for that day count.
func (l Ladder) TypeFor(days int) (policy.ReminderType, bool) {
	switch {
	case days == l.LongDays:
		return policy.ReminderType30Day, true
	case days == l.ShortDays:
		return policy.ReminderType7Day, true
	case days >= 1 && days < l.ShortDays:
		return policy.ReminderTypeDaily, true
	default:
		return "", false
	}
}

// Thresholds returns the exact day counts the daily sweep evaluates,
// descending: the long rung, then the short rung down to 1.
func (l Ladder) Thresholds() []int {
	out := []int{l.LongDays}
	for d := l.ShortDays; d >= 1; d-- {
		out = append(out, d)
	}
	return out
}

// ShouldRemind decides whether an automated reminder is due for the policy
// at the given days-until-expiry, based solely on the policy snapshot.
// It never mutates the policy.
//
// Typed reminders (30-day, 7-day) fire at most once ever per policy,
// checked by type alone. Daily reminders fire at most once per calendar
// date, counting contact events of any type dated today.
func (l Ladder) ShouldRemind(p *policy.Policy, days int, today time.Time) bool {
	if p.RenewalStatusOrDefault() == policy.RenewalRenewed {
		return false
	}

	reminderType, ok := l.TypeFor(days)
	if !ok {
		return false
	}

	var history []policy.ContactEvent
	if p.Renewal != nil {
		history = p.Renewal.ContactHistory
	}

	if reminderType == policy.ReminderTypeDaily {
		todayMidnight := Midnight(today)
		for _, ev := range history {
			// Event dates round-trip through JSON carrying whatever offset
			// they were written with; compare calendar days in one zone.
			if Midnight(ev.Date.In(today.Location())).Equal(todayMidnight) {
				return false
			}
		}
		return true
	}

	for _, ev := range history {
		if ev.ReminderType == reminderType {
			return false
		}
	}
	return true
}
