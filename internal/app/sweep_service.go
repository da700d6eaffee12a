package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"policy_renewal_tracker/internal/domain/notify"
	"policy_renewal_tracker/internal/domain/policy"
	"policy_renewal_tracker/internal/domain/renewal"
)

// ErrSweepRunning is returned when a sweep is triggered while another one
// is still in progress. The new invocation performs no work.
var ErrSweepRunning = errors.New("sweep already running")

// SweepAlreadyRunningReason is the caller-facing reason string for a
// guarded sweep invocation.
const SweepAlreadyRunningReason = "Already running"

const sweepLockKey = "renewal:sweep"

// SweepLocker guards the sweep across processes. In a multi-instance
// deployment a distributed implementation prevents duplicate sends; a
// single-instance deployment can run without one.
type SweepLocker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// RunStats is the transient record of one sweep execution.
type RunStats struct {
	StartTime     time.Time   `json:"startTime"`
	EndTime       time.Time   `json:"endTime"`
	TotalPolicies int         `json:"totalPolicies"`
	Sent          int         `json:"sent"`
	Failed        int         `json:"failed"`
	Skipped       int         `json:"skipped"`
	Details       []RunDetail `json:"details"`
	Error         string      `json:"error,omitempty"`
}

// RunDetail is one policy's outcome within a sweep.
type RunDetail struct {
	PolicyID        string              `json:"policyId"`
	PolicyNumber    string              `json:"policyNumber"`
	Client          string              `json:"client"`
	DaysUntilExpiry int                 `json:"daysUntilExpiry"`
	ReminderType    policy.ReminderType `json:"reminderType"`
	Success         bool                `json:"success"`
	Reason          string              `json:"reason,omitempty"`
	Error           string              `json:"error,omitempty"`
}

// SweepService runs the daily reminder sweep: it scans the reminder ladder
// thresholds for policies due a reminder today and dispatches automated
// email reminders, recording per-policy outcomes and run statistics.
type SweepService struct {
	repo      policy.Repository
	gateway   notify.Gateway
	logger    *logrus.Entry
	ladder    renewal.Ladder
	sendDelay time.Duration
	lock      SweepLocker
	locks     *PolicyLocks

	mu          sync.Mutex
	running     bool
	lastRunTime *time.Time
	lastStats   *RunStats

	now func() time.Time
}

func NewSweepService(
	repo policy.Repository,
	gateway notify.Gateway,
	logger *logrus.Entry,
	ladder renewal.Ladder,
	sendDelay time.Duration,
	lock SweepLocker,
	locks *PolicyLocks,
) *SweepService {
	if locks == nil {
		locks = NewPolicyLocks()
	}
	return &SweepService{
		repo:      repo,
		gateway:   gateway,
		logger:    logger,
		ladder:    ladder,
		sendDelay: sendDelay,
		lock:      lock,
		locks:     locks,
		now:       time.Now,
	}
}

// Running reports whether a sweep is currently in progress in this process.
func (s *SweepService) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// LastRun returns the end time and stats of the most recent completed
// sweep, nil when none has run yet.
func (s *SweepService) LastRun() (*time.Time, *RunStats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRunTime, s.lastStats
}

type reminderCandidate struct {
	policy       *policy.Policy
	days         int
	reminderType policy.ReminderType
}

// Run executes one sweep. A second invocation while one is in progress
// returns ErrSweepRunning and performs no work. Per-policy delivery
// failures never abort the sweep; an error in the sweep's own control flow
// is recorded on the returned stats and ends the run early. A panic is
// recovered and recorded the same way so a scheduled run can never take
// the process down.
func (s *SweepService) Run(ctx context.Context) (stats *RunStats, err error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Info("Renewal sweep already in progress, skipping")
		return nil, ErrSweepRunning
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	if s.lock != nil {
		ok, err := s.lock.Acquire(ctx, sweepLockKey, time.Hour)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire sweep lock: %w", err)
		}
		if !ok {
			s.logger.Info("Renewal sweep held by another instance, skipping")
			return nil, ErrSweepRunning
		}
		defer func() {
			if err := s.lock.Release(context.WithoutCancel(ctx), sweepLockKey); err != nil {
				s.logger.WithError(err).Warn("Failed to release sweep lock")
			}
		}()
	}

	now := s.now()
	stats = &RunStats{StartTime: now, Details: []RunDetail{}}
	defer func() {
		if r := recover(); r != nil {
			stats.EndTime = s.now()
			stats.Error = fmt.Sprintf("sweep panicked: %v", r)
			s.finish(stats)
			s.logger.WithField("panic", r).Error("Renewal sweep panicked")
		}
	}()
	s.logger.WithField("start", now.Format(time.RFC3339)).Info("Renewal sweep starting")

	candidates, err := s.collectCandidates(ctx, now)
	if err != nil {
		stats.EndTime = s.now()
		stats.Error = err.Error()
		s.finish(stats)
		s.logger.WithError(err).Error("Renewal sweep aborted")
		return stats, nil
	}
	stats.TotalPolicies = len(candidates)
	s.logger.WithField("count", len(candidates)).Info("Policies needing reminders")

	for i, cand := range candidates {
		detail := s.sendAutomated(ctx, cand)
		stats.Details = append(stats.Details, detail)
		switch {
		case detail.Success:
			stats.Sent++
		case detail.Reason != "":
			stats.Skipped++
		default:
			stats.Failed++
		}

		// Rate-limit the outbound gateway between consecutive sends.
		if s.sendDelay > 0 && i < len(candidates)-1 {
			select {
			case <-ctx.Done():
				stats.EndTime = s.now()
				stats.Error = ctx.Err().Error()
				s.finish(stats)
				return stats, nil
			case <-time.After(s.sendDelay):
			}
		}
	}

	stats.EndTime = s.now()
	s.finish(stats)
	s.logger.WithFields(logrus.Fields{
		"total":   stats.TotalPolicies,
		"sent":    stats.Sent,
		"failed":  stats.Failed,
		"skipped": stats.Skipped,
	}).Info("Renewal sweep complete")
	return stats, nil
}

// collectCandidates evaluates each ladder threshold independently: policies
// whose resolved expiry lands exactly on today+days, active or payment
// approved, not yet renewed, and due a reminder per the dedup rules.
func (s *SweepService) collectCandidates(ctx context.Context, now time.Time) ([]reminderCandidate, error) {
	today := renewal.Midnight(now)
	var candidates []reminderCandidate
	for _, days := range s.ladder.Thresholds() {
		target := today.AddDate(0, 0, days)
		policies, err := s.repo.FindByExpiry(ctx, policy.ExpiryQuery{
			From:           target,
			To:             target.AddDate(0, 0, 1),
			Statuses:       dueStatuses,
			ExcludeRenewed: true,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to query policies expiring in %d days: %w", days, err)
		}
		for _, p := range policies {
			if s.ladder.ShouldRemind(p, days, now) {
				reminderType, _ := s.ladder.TypeFor(days)
				candidates = append(candidates, reminderCandidate{
					policy:       p,
					days:         days,
					reminderType: reminderType,
				})
			}
		}
	}
	return candidates, nil
}

// sendAutomated delivers one sweep reminder over email. Policies without a
// client email are skipped without mutation. On delivery success the
// contact event is appended and the policy persisted; on failure the
// policy is left untouched.
func (s *SweepService) sendAutomated(ctx context.Context, cand reminderCandidate) RunDetail {
	p := cand.policy
	detail := RunDetail{
		PolicyID:        p.ID,
		PolicyNumber:    p.PolicyNumber,
		Client:          p.ClientName,
		DaysUntilExpiry: cand.days,
		ReminderType:    cand.reminderType,
	}

	if p.ClientEmail == "" {
		detail.Reason = "No client email"
		s.logger.WithField("policy_id", p.ID).Info("Skipping policy: no client email")
		return detail
	}

	subject := automatedReminderSubject(p, cand.days)
	body := automatedReminderBody(p, cand.days)

	unlock := s.locks.lock(p.ID)
	defer unlock()

	if err := s.gateway.Send(ctx, notify.ChannelEmail, p.ClientEmail, notify.Message{Subject: subject, Body: body}); err != nil {
		detail.Error = err.Error()
		s.logger.WithField("policy_id", p.ID).WithError(err).Error("Failed to send automated reminder")
		return detail
	}

	// Re-read under the lock so a concurrent manual send cannot lose its
	// contact-history append to ours.
	if fresh, err := s.repo.FindByID(ctx, p.ID); err == nil {
		p = fresh
	}

	now := s.now()
	p.AppendContact(policy.ContactEvent{
		Date:         now,
		Channels:     []notify.Channel{notify.ChannelEmail},
		Subject:      subject,
		Message:      body,
		ReminderType: cand.reminderType,
		Automated:    true,
		Results:      []policy.ContactResult{{Channel: notify.ChannelEmail, Recipient: "client", Success: true}},
	})
	if err := s.repo.Save(ctx, p); err != nil {
		detail.Error = err.Error()
		s.logger.WithField("policy_id", p.ID).WithError(err).Error("Failed to record automated reminder")
		return detail
	}

	detail.Success = true
	s.logger.WithFields(logrus.Fields{
		"policy_id":     p.ID,
		"reminder_type": cand.reminderType,
		"recipient":     p.ClientEmail,
	}).Info("Automated reminder sent")
	return detail
}

func (s *SweepService) finish(stats *RunStats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	end := stats.EndTime
	s.lastRunTime = &end
	s.lastStats = stats
}
