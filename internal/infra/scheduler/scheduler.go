package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"policy_renewal_tracker/internal/app"
)

// sweepTimeout bounds one scheduled sweep execution.
const sweepTimeout = 30 * time.Minute

// Config is the scheduler's runtime configuration: whether the daily sweep
// runs and at which local time of day.
type Config struct {
	Enabled   bool `json:"enabled"`
	RunHour   int  `json:"runHour"`
	RunMinute int  `json:"runMinute"`
}

// ConfigPatch carries the fields of an administrative reconfiguration.
// Nil fields keep their current values.
type ConfigPatch struct {
	Enabled   *bool `json:"enabled"`
	RunHour   *int  `json:"runHour"`
	RunMinute *int  `json:"runMinute"`
}

// Status is the scheduler's administrative view.
type Status struct {
	Enabled       bool       `json:"enabled"`
	Running       bool       `json:"running"`
	ScheduledTime string     `json:"scheduledTime"`
	LastRunTime   *time.Time `json:"lastRunTime"`
	NextRunTime   *time.Time `json:"nextRunTime"`
}

// RenewalScheduler owns the single repeating timer that triggers the daily
// sweep. All mutation goes through Start/Stop/UpdateConfig, which hold one
// mutable cron handle and always cancel the existing timer before
// installing a new one. There are never two live timers.
type RenewalScheduler struct {
	mu         sync.Mutex
	cronEngine *cron.Cron
	entryID    cron.EntryID
	cfg        Config

	sweep  *app.SweepService
	logger *logrus.Entry
}

func NewRenewalScheduler(sweep *app.SweepService, logger *logrus.Entry, cfg Config) *RenewalScheduler {
	return &RenewalScheduler{
		sweep:  sweep,
		logger: logger,
		cfg:    cfg,
	}
}

// Start installs the daily timer if the scheduler is enabled.
func (s *RenewalScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.cfg.Enabled {
		s.logger.Info("Renewal scheduler is disabled. Set ENABLE_RENEWAL_SCHEDULER=true to enable.")
		return nil
	}
	return s.install()
}

// Stop cancels the scheduled timer and waits for a running job to finish.
func (s *RenewalScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uninstall()
}

// install assumes s.mu is held and no engine is installed.
func (s *RenewalScheduler) install() error {
	cronSpec := fmt.Sprintf("%d %d * * *", s.cfg.RunMinute, s.cfg.RunHour)
	engine := cron.New(cron.WithLocation(time.Local))
	entryID, err := engine.AddFunc(cronSpec, func() {
		s.logger.Info("Cron job triggered for daily renewal sweep")
		ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
		defer cancel()
		if _, err := s.sweep.Run(ctx); err != nil && err != app.ErrSweepRunning {
			s.logger.WithError(err).Error("Scheduled renewal sweep failed")
		}
	})
	if err != nil {
		return fmt.Errorf("could not add daily sweep cron job: %w", err)
	}
	engine.Start()
	s.cronEngine = engine
	s.entryID = entryID
	s.logger.WithField("scheduled_time", s.scheduledTime()).
		Info("Renewal scheduler started")
	return nil
}

// uninstall assumes s.mu is held.
func (s *RenewalScheduler) uninstall() {
	if s.cronEngine == nil {
		return
	}
	ctx := s.cronEngine.Stop()
	<-ctx.Done() // Wait for a running job to finish
	s.cronEngine = nil
	s.logger.Info("Renewal scheduler stopped")
}

// UpdateConfig validates and merges the patch, then atomically cancels any
// existing timer and, if now enabled, installs a new one at the updated
// time.
func (s *RenewalScheduler) UpdateConfig(patch ConfigPatch) (Config, error) {
	if patch.RunHour != nil && (*patch.RunHour < 0 || *patch.RunHour > 23) {
		return Config{}, fmt.Errorf("runHour must be 0..23, got %d", *patch.RunHour)
	}
	if patch.RunMinute != nil && (*patch.RunMinute < 0 || *patch.RunMinute > 59) {
		return Config{}, fmt.Errorf("runMinute must be 0..59, got %d", *patch.RunMinute)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.uninstall()
	if patch.Enabled != nil {
		s.cfg.Enabled = *patch.Enabled
	}
	if patch.RunHour != nil {
		s.cfg.RunHour = *patch.RunHour
	}
	if patch.RunMinute != nil {
		s.cfg.RunMinute = *patch.RunMinute
	}
	if s.cfg.Enabled {
		if err := s.install(); err != nil {
			return s.cfg, err
		}
	}
	return s.cfg, nil
}

// TriggerNow runs the sweep synchronously, subject to the same reentrancy
// guard as the scheduled run.
func (s *RenewalScheduler) TriggerNow(ctx context.Context) (*app.RunStats, error) {
	return s.sweep.Run(ctx)
}

// GetStatus returns the administrative status view.
func (s *RenewalScheduler) GetStatus() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Enabled:       s.cfg.Enabled,
		Running:       s.sweep.Running(),
		ScheduledTime: s.scheduledTime(),
	}
	if last, _ := s.sweep.LastRun(); last != nil {
		st.LastRunTime = last
	}
	if s.cronEngine != nil {
		next := s.cronEngine.Entry(s.entryID).Next
		if !next.IsZero() {
			st.NextRunTime = &next
		}
	}
	return st
}

func (s *RenewalScheduler) scheduledTime() string {
	return fmt.Sprintf("%02d:%02d", s.cfg.RunHour, s.cfg.RunMinute)
}
