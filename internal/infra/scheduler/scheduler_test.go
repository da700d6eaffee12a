package scheduler

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"policy_renewal_tracker/internal/app"
	"policy_renewal_tracker/internal/domain/notify"
	"policy_renewal_tracker/internal/domain/policy"
	"policy_renewal_tracker/internal/domain/renewal"
)

type emptyRepo struct{}

func (emptyRepo) FindByExpiry(context.Context, policy.ExpiryQuery) ([]*policy.Policy, error) {
	return nil, nil
}
func (emptyRepo) FindByID(context.Context, string) (*policy.Policy, error) { return nil, nil }
func (emptyRepo) Save(context.Context, *policy.Policy) error              { return nil }
func (emptyRepo) CountDueBetween(context.Context, time.Time, time.Time, []policy.Status) (int, error) {
	return 0, nil
}
func (emptyRepo) CountRenewedBetween(context.Context, time.Time, time.Time) (int, error) {
	return 0, nil
}

type noopGateway struct{}

func (noopGateway) Send(context.Context, notify.Channel, string, notify.Message) error { return nil }

func newTestScheduler(cfg Config) *RenewalScheduler {
	l := logrus.New()
	l.SetOutput(io.Discard)
	entry := l.WithField("component", "test")
	sweep := app.NewSweepService(emptyRepo{}, noopGateway{}, entry, renewal.DefaultLadder, 0, nil, nil)
	return NewRenewalScheduler(sweep, entry, cfg)
}

func TestStartDisabledInstallsNothing(t *testing.T) {
	s := newTestScheduler(Config{Enabled: false, RunHour: 9})
	require.NoError(t, s.Start())

	st := s.GetStatus()
	assert.False(t, st.Enabled)
	assert.False(t, st.Running)
	assert.Equal(t, "09:00", st.ScheduledTime)
	assert.Nil(t, st.NextRunTime)
	assert.Nil(t, st.LastRunTime)
}

func TestStartEnabledSchedulesNextRun(t *testing.T) {
	s := newTestScheduler(Config{Enabled: true, RunHour: 9, RunMinute: 30})
	require.NoError(t, s.Start())
	defer s.Stop()

	st := s.GetStatus()
	assert.True(t, st.Enabled)
	assert.Equal(t, "09:30", st.ScheduledTime)
	require.NotNil(t, st.NextRunTime)
	assert.Equal(t, 9, st.NextRunTime.Hour())
	assert.Equal(t, 30, st.NextRunTime.Minute())
	assert.True(t, st.NextRunTime.After(time.Now()))
}

func TestStopClearsNextRun(t *testing.T) {
	s := newTestScheduler(Config{Enabled: true, RunHour: 9})
	require.NoError(t, s.Start())
	s.Stop()
	assert.Nil(t, s.GetStatus().NextRunTime)
}

func TestUpdateConfigValidation(t *testing.T) {
	s := newTestScheduler(Config{Enabled: false, RunHour: 9})

	_, err := s.UpdateConfig(patch(nil, intp(25), nil))
	assert.ErrorContains(t, err, "runHour")

	_, err = s.UpdateConfig(patch(nil, nil, intp(60)))
	assert.ErrorContains(t, err, "runMinute")
}

func TestUpdateConfigMergesWhileDisabled(t *testing.T) {
	s := newTestScheduler(Config{Enabled: false, RunHour: 9})

	cfg, err := s.UpdateConfig(patch(nil, intp(6), intp(15)))
	require.NoError(t, err)
	assert.Equal(t, Config{Enabled: false, RunHour: 6, RunMinute: 15}, cfg)
	assert.Nil(t, s.GetStatus().NextRunTime)
}

func TestUpdateConfigEnableAndReschedule(t *testing.T) {
	s := newTestScheduler(Config{Enabled: false, RunHour: 9})

	enabled := true
	cfg, err := s.UpdateConfig(ConfigPatch{Enabled: &enabled, RunHour: intp(23), RunMinute: intp(45)})
	require.NoError(t, err)
	defer s.Stop()
	assert.True(t, cfg.Enabled)

	st := s.GetStatus()
	assert.Equal(t, "23:45", st.ScheduledTime)
	require.NotNil(t, st.NextRunTime)
	assert.Equal(t, 23, st.NextRunTime.Hour())
}

func TestTriggerNowRunsSweep(t *testing.T) {
	s := newTestScheduler(Config{Enabled: false, RunHour: 9})

	stats, err := s.TriggerNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalPolicies)

	st := s.GetStatus()
	require.NotNil(t, st.LastRunTime)
}

func intp(v int) *int { return &v }

func patch(enabled *bool, hour, minute *int) ConfigPatch {
	return ConfigPatch{Enabled: enabled, RunHour: hour, RunMinute: minute}
}
