package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"policy_renewal_tracker/internal/domain/notify"
	"policy_renewal_tracker/internal/domain/policy"
	"policy_renewal_tracker/internal/domain/renewal"
)

// ErrInvalidInput marks malformed input to update/process operations.
// Callers surface it as a 400-equivalent and never retry.
var ErrInvalidInput = errors.New("invalid input")

// Windows are the fixed query horizons around today. They bound what the
// overdue and categorized views can see; policies outside them drop out of
// those views by design and must be reached via DueForRenewal instead.
type Windows struct {
	DueDefaultDays       int // default lookahead for DueForRenewal
	OverdueTrailingDays  int // fixed trailing window for Overdue
	CategorizedPastDays  int
	CategorizedAheadDays int
	RecontactSuppression time.Duration // bulk: skip policies contacted this recently
}

// DefaultWindows mirrors the windows the views have always used.
var DefaultWindows = Windows{
	DueDefaultDays:       30,
	OverdueTrailingDays:  30,
	CategorizedPastDays:  30,
	CategorizedAheadDays: 90,
	RecontactSuppression: 7 * 24 * time.Hour,
}

var dueStatuses = []policy.Status{policy.StatusActive, policy.StatusPaymentApproved}
var overdueStatuses = []policy.Status{policy.StatusActive, policy.StatusPaymentApproved, policy.StatusExpired}

// RenewalService orchestrates renewal queries, manual and bulk reminder
// sends, status updates, renewal processing and statistics.
type RenewalService struct {
	repo       policy.Repository
	gateway    notify.Gateway
	logger     *logrus.Entry
	windows    Windows
	adminEmail string

	locks *PolicyLocks
	now   func() time.Time
}

func NewRenewalService(
	repo policy.Repository,
	gateway notify.Gateway,
	logger *logrus.Entry,
	windows Windows,
	adminEmail string,
	locks *PolicyLocks,
) *RenewalService {
	if locks == nil {
		locks = NewPolicyLocks()
	}
	return &RenewalService{
		repo:       repo,
		gateway:    gateway,
		logger:     logger,
		windows:    windows,
		adminEmail: adminEmail,
		locks:      locks,
		now:        time.Now,
	}
}

// DueForRenewal returns policies whose resolved expiry falls in
// [today, today+daysAhead] inclusive, sorted by expiry ascending.
// Non-positive daysAhead falls back to the configured default.
func (s *RenewalService) DueForRenewal(ctx context.Context, daysAhead int) ([]renewal.View, error) {
	if daysAhead <= 0 {
		daysAhead = s.windows.DueDefaultDays
	}
	today := renewal.Midnight(s.now())
	policies, err := s.repo.FindByExpiry(ctx, policy.ExpiryQuery{
		From:     today,
		To:       today.AddDate(0, 0, daysAhead+1),
		Statuses: dueStatuses,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get renewal policies: %w", err)
	}
	return s.buildViews(policies), nil
}

// Overdue returns policies expired within the fixed trailing window,
// [today-N, today). A policy expired longer ago than the window silently
// drops out of this view.
func (s *RenewalService) Overdue(ctx context.Context) ([]renewal.View, error) {
	today := renewal.Midnight(s.now())
	policies, err := s.repo.FindByExpiry(ctx, policy.ExpiryQuery{
		From:     today.AddDate(0, 0, -s.windows.OverdueTrailingDays),
		To:       today,
		Statuses: overdueStatuses,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get overdue policies: %w", err)
	}
	return s.buildViews(policies), nil
}

// CategorizedRenewals partitions the categorized-window policies by
// urgency bucket.
type CategorizedRenewals struct {
	All            []renewal.View `json:"all"`
	Overdue        []renewal.View `json:"overdue"`
	Urgent         []renewal.View `json:"urgent"`
	PendingRenewal []renewal.View `json:"pendingRenewal"`
	Upcoming       []renewal.View `json:"upcoming"`
	Stats          CategoryCounts `json:"stats"`
}

type CategoryCounts struct {
	Total         int `json:"total"`
	OverdueCount  int `json:"overdueCount"`
	UrgentCount   int `json:"urgentCount"`
	PendingCount  int `json:"pendingCount"`
	UpcomingCount int `json:"upcomingCount"`
}

// AllCategorized runs a single query over the categorized window and
// partitions the results by bucket. The window does not cover everything
// DueForRenewal or Overdue can individually return; callers needing exact
// long-horizon data must use the dedicated queries.
func (s *RenewalService) AllCategorized(ctx context.Context) (*CategorizedRenewals, error) {
	today := renewal.Midnight(s.now())
	policies, err := s.repo.FindByExpiry(ctx, policy.ExpiryQuery{
		From:     today.AddDate(0, 0, -s.windows.CategorizedPastDays),
		To:       today.AddDate(0, 0, s.windows.CategorizedAheadDays+1),
		Statuses: overdueStatuses,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get all renewals: %w", err)
	}

	out := &CategorizedRenewals{
		All:            s.buildViews(policies),
		Overdue:        []renewal.View{},
		Urgent:         []renewal.View{},
		PendingRenewal: []renewal.View{},
		Upcoming:       []renewal.View{},
	}
	for _, v := range out.All {
		switch v.Status {
		case renewal.BucketOverdue:
			out.Overdue = append(out.Overdue, v)
		case renewal.BucketUrgent:
			out.Urgent = append(out.Urgent, v)
		case renewal.BucketPendingRenewal:
			out.PendingRenewal = append(out.PendingRenewal, v)
		default:
			out.Upcoming = append(out.Upcoming, v)
		}
	}
	out.Stats = CategoryCounts{
		Total:         len(out.All),
		OverdueCount:  len(out.Overdue),
		UrgentCount:   len(out.Urgent),
		PendingCount:  len(out.PendingRenewal),
		UpcomingCount: len(out.Upcoming),
	}
	return out, nil
}

// ByID returns the formatted renewal view of one policy.
func (s *RenewalService) ByID(ctx context.Context, policyID string) (*renewal.View, error) {
	p, err := s.repo.FindByID(ctx, policyID)
	if err != nil {
		return nil, err
	}
	v := renewal.BuildView(p, s.now())
	return &v, nil
}

// UpdateRenewalInput patches renewal tracking fields. Nil fields are left
// untouched.
type UpdateRenewalInput struct {
	Status *string
	Notes  *string
}

// UpdateStatus patches the renewal status and/or notes and stamps
// lastUpdated.
func (s *RenewalService) UpdateStatus(ctx context.Context, policyID string, input UpdateRenewalInput) (*renewal.View, error) {
	var status policy.RenewalStatus
	if input.Status != nil {
		parsed, err := policy.ParseRenewalStatus(*input.Status)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		status = parsed
	}

	unlock := s.locks.lock(policyID)
	defer unlock()

	p, err := s.repo.FindByID(ctx, policyID)
	if err != nil {
		return nil, err
	}

	tracking := p.Tracking()
	if input.Status != nil {
		tracking.Status = status
	}
	if input.Notes != nil {
		tracking.Notes = *input.Notes
	}
	now := s.now()
	tracking.LastUpdated = &now

	if err := s.repo.Save(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to update renewal: %w", err)
	}
	s.logger.WithFields(logrus.Fields{"policy_id": policyID, "status": tracking.Status}).
		Info("Renewal tracking updated")

	v := renewal.BuildView(p, now)
	return &v, nil
}

// ReminderMessage is the subject/body of a manual reminder.
type ReminderMessage struct {
	Subject string
	Message string
}

// SendReminderResult reports per-channel outcomes of one reminder send.
type SendReminderResult struct {
	Success bool                   `json:"success"`
	Results []policy.ContactResult `json:"results"`
	Policy  renewal.View           `json:"policy"`
}

// SendReminder delivers a manual reminder over the requested channels,
// records every per-channel outcome, and appends one contact event to the
// policy's history even if every channel failed.
func (s *RenewalService) SendReminder(
	ctx context.Context,
	policyID string,
	msg ReminderMessage,
	channels []notify.Channel,
	notifyAdmin bool,
) (*SendReminderResult, error) {
	unlock := s.locks.lock(policyID)
	defer unlock()

	p, err := s.repo.FindByID(ctx, policyID)
	if err != nil {
		return nil, err
	}

	results := make([]policy.ContactResult, 0, len(channels)+1)
	for _, ch := range channels {
		recipient := s.clientRecipient(p, ch)
		if recipient == "" {
			continue
		}
		res := policy.ContactResult{Channel: ch, Recipient: "client", Success: true}
		if err := s.gateway.Send(ctx, ch, recipient, notify.Message{Subject: msg.Subject, Body: msg.Message}); err != nil {
			res.Success = false
			res.Error = err.Error()
			s.logger.WithFields(logrus.Fields{"policy_id": policyID, "channel": ch}).
				WithError(err).Warn("Reminder delivery failed")
		}
		results = append(results, res)
	}

	if notifyAdmin && s.adminEmail != "" {
		res := policy.ContactResult{Channel: notify.ChannelEmail, Recipient: "admin", Success: true}
		adminMsg := notify.Message{
			Subject: fmt.Sprintf("[RENEWAL REMINDER SENT] %s", orPolicyID(p.PolicyNumber, policyID)),
			Body:    adminSummaryBody(p, msg.Message),
		}
		if err := s.gateway.Send(ctx, notify.ChannelEmail, s.adminEmail, adminMsg); err != nil {
			res.Success = false
			res.Error = err.Error()
			s.logger.WithField("policy_id", policyID).WithError(err).
				Warn("Admin notification failed")
		}
		results = append(results, res)
	}

	now := s.now()
	p.AppendContact(policy.ContactEvent{
		Date:     now,
		Channels: channels,
		Subject:  msg.Subject,
		Message:  msg.Message,
		Results:  results,
	})
	if err := s.repo.Save(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to record reminder: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"policy_id": policyID,
		"channels":  channels,
		"results":   len(results),
	}).Info("Renewal reminder sent")

	return &SendReminderResult{
		Success: true,
		Results: results,
		Policy:  renewal.BuildView(p, now),
	}, nil
}

// BulkReminderEntry is one policy's outcome within a bulk send.
type BulkReminderEntry struct {
	PolicyID     string `json:"policyId"`
	PolicyNumber string `json:"policyNumber"`
	Client       string `json:"client"`
	Success      bool   `json:"success"`
	Error        string `json:"error,omitempty"`
}

// BulkReminderResult aggregates a bulk send.
type BulkReminderResult struct {
	Success       bool                `json:"success"`
	TotalPolicies int                 `json:"totalPolicies"`
	Results       []BulkReminderEntry `json:"results"`
	Summary       BulkSummary         `json:"summary"`
}

type BulkSummary struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

// SendBulkReminders sends the default reminder to every policy expiring
// around today+daysBeforeExpiry (±1 day), skipping policies contacted
// within the suppression window. Per-policy failures are isolated and
// reported, never fatal to the batch.
func (s *RenewalService) SendBulkReminders(ctx context.Context, daysBeforeExpiry int, channels []notify.Channel) (*BulkReminderResult, error) {
	if daysBeforeExpiry <= 0 {
		daysBeforeExpiry = s.windows.DueDefaultDays
	}
	now := s.now()
	target := renewal.Midnight(now).AddDate(0, 0, daysBeforeExpiry)
	notContactedSince := now.Add(-s.windows.RecontactSuppression)

	policies, err := s.repo.FindByExpiry(ctx, policy.ExpiryQuery{
		From:              target.AddDate(0, 0, -1),
		To:                target.AddDate(0, 0, 2),
		Statuses:          dueStatuses,
		NotContactedSince: &notContactedSince,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to send bulk reminders: %w", err)
	}

	out := &BulkReminderResult{
		Success:       true,
		TotalPolicies: len(policies),
		Results:       []BulkReminderEntry{},
	}
	for _, p := range policies {
		entry := BulkReminderEntry{
			PolicyID:     p.ID,
			PolicyNumber: p.PolicyNumber,
			Client:       p.ClientName,
		}
		msg := ReminderMessage{
			Subject: fmt.Sprintf("Renewal Reminder - Your %s Policy Expires on %s",
				orDefault(p.PolicyTypeName, "Insurance"), renewal.FormatDate(p.ResolveExpiry())),
			Message: defaultReminderBody(p),
		}
		if _, err := s.SendReminder(ctx, p.ID, msg, channels, true); err != nil {
			entry.Success = false
			entry.Error = err.Error()
			out.Summary.Failed++
			s.logger.WithField("policy_id", p.ID).WithError(err).
				Error("Bulk reminder failed for policy")
		} else {
			entry.Success = true
			out.Summary.Sent++
		}
		out.Results = append(out.Results, entry)
	}

	s.logger.WithFields(logrus.Fields{
		"total":  out.TotalPolicies,
		"sent":   out.Summary.Sent,
		"failed": out.Summary.Failed,
	}).Info("Bulk renewal reminders complete")
	return out, nil
}

// RenewalDates optionally overrides the derived coverage period when
// processing a renewal.
type RenewalDates struct {
	InsuranceStartDate *time.Time
	InsuranceEndDate   *time.Time
}

// ProcessRenewal rolls the policy's coverage period forward one term and
// marks it renewed. When dates are not supplied, the new period starts the
// day after the current end date and runs one year less a day.
func (s *RenewalService) ProcessRenewal(ctx context.Context, policyID string, dates RenewalDates) (*renewal.View, error) {
	unlock := s.locks.lock(policyID)
	defer unlock()

	p, err := s.repo.FindByID(ctx, policyID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	currentEnd := now
	if p.InsuranceEndDate != nil {
		currentEnd = *p.InsuranceEndDate
	}
	derivedStart := currentEnd.AddDate(0, 0, 1)
	derivedEnd := derivedStart.AddDate(1, 0, -1)

	start := derivedStart
	if dates.InsuranceStartDate != nil {
		start = *dates.InsuranceStartDate
	}
	end := derivedEnd
	if dates.InsuranceEndDate != nil {
		end = *dates.InsuranceEndDate
	}

	p.InsuranceStartDate = &start
	p.InsuranceEndDate = &end
	p.Status = policy.StatusActive

	tracking := p.Tracking()
	tracking.Status = policy.RenewalRenewed
	tracking.LastUpdated = &now

	if err := s.repo.Save(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to process renewal: %w", err)
	}
	s.logger.WithFields(logrus.Fields{
		"policy_id": policyID,
		"start":     start.Format("2006-01-02"),
		"end":       end.Format("2006-01-02"),
	}).Info("Renewal processed")

	v := renewal.BuildView(p, now)
	return &v, nil
}

// RenewalStats summarizes renewal activity for the current month.
type RenewalStats struct {
	DueThisMonth int `json:"dueThisMonth"`
	Overdue      int `json:"overdue"`
	Renewed      int `json:"renewed"`
	RenewalRate  int `json:"renewalRate"`
}

// Stats counts policies due this calendar month, overdue within the
// trailing window, renewed this month, and the renewal rate against last
// month's due count (0 when that denominator is 0).
func (s *RenewalService) Stats(ctx context.Context) (*RenewalStats, error) {
	today := renewal.Midnight(s.now())
	monthStart := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, today.Location())
	nextMonthStart := monthStart.AddDate(0, 1, 0)
	prevMonthStart := monthStart.AddDate(0, -1, 0)

	dueThisMonth, err := s.repo.CountDueBetween(ctx, monthStart, nextMonthStart, dueStatuses)
	if err != nil {
		return nil, fmt.Errorf("failed to get renewal stats: %w", err)
	}
	overdue, err := s.repo.CountDueBetween(ctx, today.AddDate(0, 0, -s.windows.OverdueTrailingDays), today, overdueStatuses)
	if err != nil {
		return nil, fmt.Errorf("failed to get renewal stats: %w", err)
	}
	renewed, err := s.repo.CountRenewedBetween(ctx, monthStart, nextMonthStart)
	if err != nil {
		return nil, fmt.Errorf("failed to get renewal stats: %w", err)
	}
	dueLastMonth, err := s.repo.CountDueBetween(ctx, prevMonthStart, monthStart, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get renewal stats: %w", err)
	}

	rate := 0
	if dueLastMonth > 0 {
		rate = int(math.Round(float64(renewed) / float64(dueLastMonth) * 100))
	}
	return &RenewalStats{
		DueThisMonth: dueThisMonth,
		Overdue:      overdue,
		Renewed:      renewed,
		RenewalRate:  rate,
	}, nil
}

func (s *RenewalService) buildViews(policies []*policy.Policy) []renewal.View {
	now := s.now()
	views := make([]renewal.View, 0, len(policies))
	for _, p := range policies {
		views = append(views, renewal.BuildView(p, now))
	}
	return views
}

func (s *RenewalService) clientRecipient(p *policy.Policy, ch notify.Channel) string {
	switch ch {
	case notify.ChannelEmail:
		return p.ClientEmail
	case notify.ChannelSMS, notify.ChannelWhatsApp:
		return p.ClientPhone
	default:
		return ""
	}
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func orPolicyID(policyNumber, policyID string) string {
	if policyNumber == "" {
		return policyID
	}
	return policyNumber
}
