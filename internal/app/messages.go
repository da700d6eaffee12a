package app

import (
	"fmt"
	"strings"

	"policy_renewal_tracker/internal/domain/policy"
	"policy_renewal_tracker/internal/domain/renewal"
)

// defaultReminderBody is the templated message used by bulk reminders when
// no custom message is supplied.
func defaultReminderBody(p *policy.Policy) string {
	premium := "N/A"
	if p.Premium != nil {
		premium = p.Premium.StringFixed(0)
	}
	return strings.TrimSpace(fmt.Sprintf(`
Dear %s,

This is a reminder that your %s policy is due for renewal.

Policy Details:
- Policy Number: %s
- Insurer: %s
- Expiry Date: %s
- Current Premium: ₹%s

Please contact us at your earliest convenience to process the renewal and ensure uninterrupted coverage.

Best regards,
Risk Marshal Team
`,
		orDefault(p.ClientName, "Customer"),
		orDefault(p.PolicyTypeName, "insurance"),
		orDefault(p.PolicyNumber, "N/A"),
		orDefault(p.InsurerName, "N/A"),
		renewal.FormatDate(p.ResolveExpiry()),
		premium,
	))
}

// adminSummaryBody summarizes a client reminder for the admin copy.
func adminSummaryBody(p *policy.Policy, originalMessage string) string {
	premium := "N/A"
	if p.Premium != nil {
		premium = p.Premium.StringFixed(0)
	}
	return strings.TrimSpace(fmt.Sprintf(`
Renewal reminder sent to client.

Client: %s
Policy Number: %s
Policy Type: %s
Expiry Date: %s
Premium: ₹%s

Original Message:
%s
`,
		orDefault(p.ClientName, "N/A"),
		orDefault(p.PolicyNumber, "N/A"),
		orDefault(p.PolicyTypeName, "N/A"),
		renewal.FormatDate(p.ResolveExpiry()),
		premium,
		originalMessage,
	))
}

// automatedReminderSubject builds the urgency-graded subject line for sweep
// reminders: "URGENT:" prefix when three days or fewer remain.
func automatedReminderSubject(p *policy.Policy, days int) string {
	prefix := ""
	if days <= 3 {
		prefix = "URGENT: "
	}
	return fmt.Sprintf("%sRenewal Reminder - Your %s Policy Expires in %d %s",
		prefix, orDefault(p.PolicyTypeName, "Insurance"), days, dayWord(days))
}

// automatedReminderBody builds the sweep reminder message body.
func automatedReminderBody(p *policy.Policy, days int) string {
	premium := "N/A"
	if p.Premium != nil {
		premium = p.Premium.StringFixed(0)
	}
	return strings.TrimSpace(fmt.Sprintf(`
Dear %s,

Your %s policy is expiring in %d %s.

Policy Number: %s
Expiry Date: %s
Premium: ₹%s

Please contact us to renew your policy and ensure uninterrupted coverage.

Best regards,
Risk Marshal Team
`,
		orDefault(p.ClientName, "Customer"),
		orDefault(p.PolicyTypeName, "insurance"),
		days, strings.ToLower(dayWord(days)),
		orDefault(p.PolicyNumber, "N/A"),
		renewal.FormatDate(p.ResolveExpiry()),
		premium,
	))
}

func dayWord(days int) string {
	if days == 1 {
		return "Day"
	}
	return "Days"
}
