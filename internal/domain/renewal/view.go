package renewal

import (
	"time"

	"github.com/shopspring/decimal"

	"policy_renewal_tracker/internal/domain/policy"
)

// premiumEstimateFactor is the default renewal quote heuristic: a flat 5%
// increase over the current premium. It is an estimate shown in renewal
// views, not a real quote.
var premiumEstimateFactor = decimal.NewFromFloat(1.05)

// View is the formatted renewal presentation of a policy, as returned by
// the list/get operations and reminder results.
type View struct {
	PolicyID        string                `json:"policyId"`
	PolicyNumber    string                `json:"policyNumber"`
	Client          string                `json:"client"`
	ClientEmail     string                `json:"clientEmail"`
	ClientPhone     string                `json:"clientPhone"`
	PolicyType      string                `json:"policyType"`
	Insurer         string                `json:"insurer"`
	CurrentPremium  string                `json:"currentPremium"`
	NewPremium      string                `json:"newPremium"`
	ExpiryDate      *time.Time            `json:"expiryDate"`
	DaysUntilExpiry *int                  `json:"daysUntilExpiry"`
	Status          Bucket                `json:"status"`
	RenewalStatus   policy.RenewalStatus  `json:"renewalStatus"`
	Notes           string                `json:"notes"`
	LastContacted   *time.Time            `json:"lastContacted"`
	ContactHistory  []policy.ContactEvent `json:"contactHistory"`
}

// BuildView formats a policy for renewal responses, classifying it against
// the given reference instant.
func BuildView(p *policy.Policy, today time.Time) View {
	expiry := p.ResolveExpiry()
	cls := Classify(expiry, today)

	v := View{
		PolicyID:        p.ID,
		PolicyNumber:    orNA(p.PolicyNumber),
		Client:          orNA(p.ClientName),
		ClientEmail:     p.ClientEmail,
		ClientPhone:     p.ClientPhone,
		PolicyType:      orNA(p.PolicyTypeName),
		Insurer:         orNA(p.InsurerName),
		CurrentPremium:  "N/A",
		NewPremium:      "N/A",
		ExpiryDate:      expiry,
		DaysUntilExpiry: cls.DaysUntilExpiry,
		Status:          cls.Bucket,
		RenewalStatus:   p.RenewalStatusOrDefault(),
		ContactHistory:  []policy.ContactEvent{},
	}

	if p.Premium != nil {
		v.CurrentPremium = "₹" + p.Premium.StringFixed(0)
		v.NewPremium = "₹" + p.Premium.Mul(premiumEstimateFactor).Round(0).StringFixed(0)
	}

	if p.Renewal != nil {
		v.Notes = p.Renewal.Notes
		v.LastContacted = p.Renewal.LastContacted
		if p.Renewal.ContactHistory != nil {
			v.ContactHistory = p.Renewal.ContactHistory
		}
	}
	return v
}

// FormatDate renders a date for message bodies, "N/A" when absent.
func FormatDate(t *time.Time) string {
	if t == nil {
		return "N/A"
	}
	return t.Format("2 Jan 2006")
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
