package database

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"policy_renewal_tracker/internal/domain/policy"
	"policy_renewal_tracker/internal/domain/renewal"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *PostgresPolicyRepository) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock, NewPostgresPolicyRepository(db)
}

var policyRowColumns = []string{
	"id", "policy_number", "status", "client_name", "client_email", "client_phone",
	"insurer_name", "policy_type", "premium", "insurance_start_date", "insurance_end_date", "period_to",
	"previous_policy_number", "renewal_status", "renewal_notes", "last_contacted", "last_updated",
	"contact_history", "created_at", "updated_at",
}

func addSampleRow(rows *sqlmock.Rows, id string, end time.Time, history string) *sqlmock.Rows {
	now := time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)
	return rows.AddRow(
		id, "POL-2026-0042", "active", "Asha Verma", "asha@example.com", "+919800000001",
		"National Insurance", "Motor", "12000", nil, end, nil,
		"", "not_contacted", "", nil, nil,
		[]byte(history), now, now,
	)
}

func TestFindByID(t *testing.T) {
	_, mock, repo := setupMockDB(t)
	end := time.Date(2026, time.April, 14, 0, 0, 0, 0, time.UTC)
	history := `[{"date":"2026-03-01T09:00:00Z","channels":["email"],"subject":"s","message":"m","results":[]}]`

	rows := addSampleRow(sqlmock.NewRows(policyRowColumns), "pol-1", end, history)
	mock.ExpectQuery(`FROM insurance_policies WHERE id = \$1`).
		WithArgs("pol-1").
		WillReturnRows(rows)

	p, err := repo.FindByID(context.Background(), "pol-1")
	require.NoError(t, err)
	assert.Equal(t, "pol-1", p.ID)
	assert.Equal(t, "POL-2026-0042", p.PolicyNumber)
	assert.Equal(t, policy.StatusActive, p.Status)
	require.NotNil(t, p.Premium)
	assert.Equal(t, "12000", p.Premium.StringFixed(0))
	require.NotNil(t, p.InsuranceEndDate)
	assert.Equal(t, time.Date(2026, time.April, 14, 0, 0, 0, 0, time.Local), *p.InsuranceEndDate)
	assert.Nil(t, p.PeriodTo)
	require.NotNil(t, p.Renewal)
	assert.Equal(t, policy.RenewalNotContacted, p.Renewal.Status)
	require.Len(t, p.Renewal.ContactHistory, 1)
	assert.Equal(t, "s", p.Renewal.ContactHistory[0].Subject)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByIDNormalizesDateColumns(t *testing.T) {
	_, mock, repo := setupMockDB(t)
	// The driver returns DATE columns as midnight UTC. Day counting anchors
	// to local midnight; without normalization every expiry east of UTC
	// would land one day late.
	end := time.Date(2026, time.March, 22, 0, 0, 0, 0, time.UTC)

	rows := addSampleRow(sqlmock.NewRows(policyRowColumns), "pol-1", end, "[]")
	mock.ExpectQuery(`FROM insurance_policies WHERE id = \$1`).
		WithArgs("pol-1").
		WillReturnRows(rows)

	p, err := repo.FindByID(context.Background(), "pol-1")
	require.NoError(t, err)
	require.NotNil(t, p.InsuranceEndDate)
	assert.Equal(t, time.Date(2026, time.March, 22, 0, 0, 0, 0, time.Local), *p.InsuranceEndDate)

	today := time.Date(2026, time.March, 15, 10, 0, 0, 0, time.Local)
	assert.Equal(t, 7, renewal.DaysUntil(*p.ResolveExpiry(), today))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByIDNotFound(t *testing.T) {
	_, mock, repo := setupMockDB(t)
	mock.ExpectQuery(`FROM insurance_policies WHERE id = \$1`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(policyRowColumns))

	_, err := repo.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrPolicyNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByExpiryRangeOnly(t *testing.T) {
	_, mock, repo := setupMockDB(t)
	from := time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 31)
	end := from.AddDate(0, 0, 10)

	rows := addSampleRow(sqlmock.NewRows(policyRowColumns), "pol-1", end, "[]")
	mock.ExpectQuery(`FROM insurance_policies WHERE COALESCE\(insurance_end_date, period_to\) >= \$1 AND COALESCE\(insurance_end_date, period_to\) < \$2 ORDER BY`).
		WithArgs(from, to).
		WillReturnRows(rows)

	got, err := repo.FindByExpiry(context.Background(), policy.ExpiryQuery{From: from, To: to})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "pol-1", got[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByExpiryAllFilters(t *testing.T) {
	_, mock, repo := setupMockDB(t)
	from := time.Date(2026, time.April, 14, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)
	since := time.Date(2026, time.March, 8, 14, 30, 0, 0, time.UTC)

	mock.ExpectQuery(`AND status = ANY\(\$3\) AND renewal_status <> \$4 AND \(last_contacted IS NULL OR last_contacted < \$5\)`).
		WithArgs(from, to, sqlmock.AnyArg(), "renewed", since).
		WillReturnRows(sqlmock.NewRows(policyRowColumns))

	got, err := repo.FindByExpiry(context.Background(), policy.ExpiryQuery{
		From:              from,
		To:                to,
		Statuses:          []policy.Status{policy.StatusActive, policy.StatusPaymentApproved},
		ExcludeRenewed:    true,
		NotContactedSince: &since,
	})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSave(t *testing.T) {
	_, mock, repo := setupMockDB(t)
	updated := time.Date(2026, time.March, 15, 15, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`UPDATE insurance_policies`).
		WithArgs("active", sqlmock.AnyArg(), sqlmock.AnyArg(), "contacted", "left voicemail",
			sqlmock.AnyArg(), sqlmock.AnyArg(), []byte("[]"), "pol-1").
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(updated))

	p := &policy.Policy{
		ID:     "pol-1",
		Status: policy.StatusActive,
		Renewal: &policy.RenewalTracking{
			Status: policy.RenewalContacted,
			Notes:  "left voicemail",
		},
	}
	require.NoError(t, repo.Save(context.Background(), p))
	assert.Equal(t, updated, p.UpdatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveUnknownPolicy(t *testing.T) {
	_, mock, repo := setupMockDB(t)
	mock.ExpectQuery(`UPDATE insurance_policies`).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}))

	p := &policy.Policy{ID: "missing", Status: policy.StatusActive}
	err := repo.Save(context.Background(), p)
	assert.ErrorIs(t, err, ErrPolicyNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountDueBetween(t *testing.T) {
	_, mock, repo := setupMockDB(t)
	from := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM insurance_policies WHERE (.+) AND status = ANY\(\$3\)`).
		WithArgs(from, to, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	count, err := repo.CountDueBetween(context.Background(), from, to, []policy.Status{policy.StatusActive})
	require.NoError(t, err)
	assert.Equal(t, 7, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountRenewedBetween(t *testing.T) {
	_, mock, repo := setupMockDB(t)
	from := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM insurance_policies`).
		WithArgs("renewed", from, to).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	count, err := repo.CountRenewedBetween(context.Background(), from, to)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}
