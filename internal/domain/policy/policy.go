package policy

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"policy_renewal_tracker/internal/domain/notify"
)

// Status is the lifecycle status of an insurance policy.
type Status string

const (
	StatusDraft           Status = "draft"
	StatusQuotationSent   Status = "quotation_sent"
	StatusPaymentPending  Status = "payment_pending"
	StatusPaymentApproved Status = "payment_approved"
	StatusActive          Status = "active"
	StatusExpired         Status = "expired"
	StatusCancelled       Status = "cancelled"
)

// RenewalStatus tracks where a policy sits in the renewal-outreach flow.
type RenewalStatus string

const (
	RenewalNotContacted RenewalStatus = "not_contacted"
	RenewalContacted    RenewalStatus = "contacted"
	RenewalPending      RenewalStatus = "pending"
	RenewalOverdue      RenewalStatus = "overdue"
	RenewalRenewed      RenewalStatus = "renewed"
)

// ParseRenewalStatus validates a raw status against the closed set.
// Unrecognized values are rejected rather than stored as-is.
func ParseRenewalStatus(raw string) (RenewalStatus, error) {
	switch RenewalStatus(raw) {
	case RenewalNotContacted, RenewalContacted, RenewalPending, RenewalOverdue, RenewalRenewed:
		return RenewalStatus(raw), nil
	default:
		return "", fmt.Errorf("unknown renewal status: %q", raw)
	}
}

// ReminderType tags an automated reminder with the ladder rung it fired on.
// Manual reminders carry no type.
type ReminderType string

const (
	ReminderType30Day ReminderType = "30-day"
	ReminderType7Day  ReminderType = "7-day"
	ReminderTypeDaily ReminderType = "daily"
)

// ContactResult records the outcome of one channel delivery attempt.
type ContactResult struct {
	Channel   notify.Channel `json:"channel"`
	Recipient string         `json:"recipient"`
	Success   bool           `json:"success"`
	Error     string         `json:"error,omitempty"`
}

// ContactEvent is one entry in a policy's contact history. Events are
// immutable once appended; the history itself is append-only.
type ContactEvent struct {
	Date         time.Time        `json:"date"`
	Channels     []notify.Channel `json:"channels"`
	Subject      string           `json:"subject"`
	Message      string           `json:"message"`
	ReminderType ReminderType     `json:"reminderType,omitempty"`
	Automated    bool             `json:"automated,omitempty"`
	Results      []ContactResult  `json:"results"`
}

// RenewalTracking is the renewal-outreach state embedded in a policy.
type RenewalTracking struct {
	Status         RenewalStatus  `json:"status"`
	Notes          string         `json:"notes,omitempty"`
	LastContacted  *time.Time     `json:"lastContacted,omitempty"`
	LastUpdated    *time.Time     `json:"lastUpdated,omitempty"`
	ContactHistory []ContactEvent `json:"contactHistory"`
}

// Policy is the renewal-relevant slice of an insurance policy record.
type Policy struct {
	ID           string
	PolicyNumber string
	Status       Status

	ClientName  string
	ClientEmail string
	ClientPhone string

	InsurerName    string
	PolicyTypeName string

	Premium *decimal.Decimal

	InsuranceStartDate *time.Time
	InsuranceEndDate   *time.Time
	// PeriodTo is the legacy end-date field kept for backward compatibility.
	// Never branch on it directly; use ResolveExpiry.
	PeriodTo *time.Time

	PreviousPolicyNumber string

	Renewal *RenewalTracking

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ResolveExpiry returns the effective policy end date: insuranceEndDate if
// present, else the legacy periodTo, else nil.
func (p *Policy) ResolveExpiry() *time.Time {
	if p.InsuranceEndDate != nil {
		return p.InsuranceEndDate
	}
	return p.PeriodTo
}

// Tracking returns the policy's renewal tracking state, creating it lazily
// with the not_contacted default.
func (p *Policy) Tracking() *RenewalTracking {
	if p.Renewal == nil {
		p.Renewal = &RenewalTracking{Status: RenewalNotContacted}
	}
	return p.Renewal
}

// RenewalStatusOrDefault reports the tracked renewal status without forcing
// the tracking subtree into existence.
func (p *Policy) RenewalStatusOrDefault() RenewalStatus {
	if p.Renewal == nil || p.Renewal.Status == "" {
		return RenewalNotContacted
	}
	return p.Renewal.Status
}

// AppendContact appends one event to the contact history and stamps the
// contacted state. The history is never truncated or rewritten.
func (p *Policy) AppendContact(ev ContactEvent) {
	t := p.Tracking()
	t.ContactHistory = append(t.ContactHistory, ev)
	// The automated path must never pull a renewed policy back to contacted.
	if !ev.Automated || t.Status != RenewalRenewed {
		t.Status = RenewalContacted
	}
	contacted := ev.Date
	t.LastContacted = &contacted
}
