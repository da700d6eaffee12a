// internal/infra/database/postgres_policy_repository.go
package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq" // For pq.Array and driver registration
	"github.com/shopspring/decimal"

	"policy_renewal_tracker/internal/domain/policy"
)

// ErrPolicyNotFound is returned when the requested policy id does not exist.
var ErrPolicyNotFound = fmt.Errorf("policy not found")

const policyColumns = `id, policy_number, status, client_name, client_email, client_phone,
	insurer_name, policy_type, premium, insurance_start_date, insurance_end_date, period_to,
	previous_policy_number, renewal_status, renewal_notes, last_contacted, last_updated,
	contact_history, created_at, updated_at`

// resolvedExpiry is the effective policy end date used by every
// date-bounded query: the primary field with the legacy fallback.
const resolvedExpiry = `COALESCE(insurance_end_date, period_to)`

type PostgresPolicyRepository struct {
	db *sql.DB
}

func NewPostgresPolicyRepository(db *sql.DB) *PostgresPolicyRepository {
	return &PostgresPolicyRepository{db: db}
}

func (r *PostgresPolicyRepository) FindByExpiry(ctx context.Context, q policy.ExpiryQuery) ([]*policy.Policy, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT ` + policyColumns + ` FROM insurance_policies WHERE ` +
		resolvedExpiry + ` >= $1 AND ` + resolvedExpiry + ` < $2`)
	args := []interface{}{q.From, q.To}

	if len(q.Statuses) > 0 {
		statuses := make([]string, 0, len(q.Statuses))
		for _, s := range q.Statuses {
			statuses = append(statuses, string(s))
		}
		args = append(args, pq.Array(statuses))
		fmt.Fprintf(&sb, ` AND status = ANY($%d)`, len(args))
	}
	if q.ExcludeRenewed {
		args = append(args, string(policy.RenewalRenewed))
		fmt.Fprintf(&sb, ` AND renewal_status <> $%d`, len(args))
	}
	if q.NotContactedSince != nil {
		args = append(args, *q.NotContactedSince)
		fmt.Fprintf(&sb, ` AND (last_contacted IS NULL OR last_contacted < $%d)`, len(args))
	}
	sb.WriteString(` ORDER BY ` + resolvedExpiry + ` ASC`)

	rows, err := r.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("error querying policies by expiry: %w", err)
	}
	defer rows.Close()
	return scanPolicies(rows)
}

func (r *PostgresPolicyRepository) FindByID(ctx context.Context, id string) (*policy.Policy, error) {
	query := `SELECT ` + policyColumns + ` FROM insurance_policies WHERE id = $1`
	p, err := scanPolicy(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrPolicyNotFound
		}
		return nil, fmt.Errorf("error getting policy by ID: %w", err)
	}
	return p, nil
}

// Save persists the policy's mutable renewal-relevant fields, including the
// full renewalTracking subtree.
func (r *PostgresPolicyRepository) Save(ctx context.Context, p *policy.Policy) error {
	history, err := marshalHistory(p)
	if err != nil {
		return err
	}
	query := `UPDATE insurance_policies
		SET status = $1, insurance_start_date = $2, insurance_end_date = $3,
		    renewal_status = $4, renewal_notes = $5, last_contacted = $6,
		    last_updated = $7, contact_history = $8, updated_at = NOW()
		WHERE id = $9
		RETURNING updated_at`
	tracking := p.Tracking()
	err = r.db.QueryRowContext(ctx, query,
		string(p.Status), nullTime(p.InsuranceStartDate), nullTime(p.InsuranceEndDate),
		string(tracking.Status), tracking.Notes, nullTime(tracking.LastContacted),
		nullTime(tracking.LastUpdated), history, p.ID,
	).Scan(&p.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return ErrPolicyNotFound
		}
		return fmt.Errorf("error saving policy: %w", err)
	}
	return nil
}

func (r *PostgresPolicyRepository) CountDueBetween(ctx context.Context, from, to time.Time, statuses []policy.Status) (int, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT COUNT(*) FROM insurance_policies WHERE ` +
		resolvedExpiry + ` >= $1 AND ` + resolvedExpiry + ` < $2`)
	args := []interface{}{from, to}
	if len(statuses) > 0 {
		raw := make([]string, 0, len(statuses))
		for _, s := range statuses {
			raw = append(raw, string(s))
		}
		args = append(args, pq.Array(raw))
		fmt.Fprintf(&sb, ` AND status = ANY($%d)`, len(args))
	}
	var count int
	if err := r.db.QueryRowContext(ctx, sb.String(), args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("error counting due policies: %w", err)
	}
	return count, nil
}

func (r *PostgresPolicyRepository) CountRenewedBetween(ctx context.Context, from, to time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM insurance_policies
		WHERE (renewal_status = $1 AND last_updated >= $2 AND last_updated < $3)
		   OR (created_at >= $2 AND created_at < $3 AND previous_policy_number <> '')`
	var count int
	err := r.db.QueryRowContext(ctx, query, string(policy.RenewalRenewed), from, to).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("error counting renewed policies: %w", err)
	}
	return count, nil
}

// --- scanning helpers ---

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPolicy(row rowScanner) (*policy.Policy, error) {
	var (
		p             policy.Policy
		premium       sql.NullString
		start         sql.NullTime
		end           sql.NullTime
		periodTo      sql.NullTime
		renewalStatus string
		notes         sql.NullString
		lastContacted sql.NullTime
		lastUpdated   sql.NullTime
		history       []byte
	)
	err := row.Scan(
		&p.ID, &p.PolicyNumber, &p.Status, &p.ClientName, &p.ClientEmail, &p.ClientPhone,
		&p.InsurerName, &p.PolicyTypeName, &premium, &start, &end, &periodTo,
		&p.PreviousPolicyNumber, &renewalStatus, &notes, &lastContacted, &lastUpdated,
		&history, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if premium.Valid {
		d, err := decimal.NewFromString(premium.String)
		if err != nil {
			return nil, fmt.Errorf("error parsing premium for policy %s: %w", p.ID, err)
		}
		p.Premium = &d
	}
	p.InsuranceStartDate = datePtr(start)
	p.InsuranceEndDate = datePtr(end)
	p.PeriodTo = datePtr(periodTo)

	tracking := &policy.RenewalTracking{
		Status:         policy.RenewalStatus(renewalStatus),
		Notes:          notes.String,
		LastContacted:  timePtr(lastContacted),
		LastUpdated:    timePtr(lastUpdated),
		ContactHistory: []policy.ContactEvent{},
	}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &tracking.ContactHistory); err != nil {
			return nil, fmt.Errorf("error decoding contact history for policy %s: %w", p.ID, err)
		}
	}
	p.Renewal = tracking
	return &p, nil
}

func scanPolicies(rows *sql.Rows) ([]*policy.Policy, error) {
	policies := make([]*policy.Policy, 0)
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning policy row: %w", err)
		}
		policies = append(policies, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating policy rows: %w", err)
	}
	return policies, nil
}

func marshalHistory(p *policy.Policy) ([]byte, error) {
	tracking := p.Tracking()
	if tracking.ContactHistory == nil {
		return []byte("[]"), nil
	}
	raw, err := json.Marshal(tracking.ContactHistory)
	if err != nil {
		return nil, fmt.Errorf("error encoding contact history for policy %s: %w", p.ID, err)
	}
	return raw, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

// datePtr converts a scanned DATE column to local midnight. The driver
// hands DATE values back at 00:00 UTC; all day counting anchors to local
// midnight, so keeping the UTC instant would shift the calendar day in any
// locale east of UTC.
func datePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	y, m, d := t.Time.Date()
	v := time.Date(y, m, d, 0, 0, 0, 0, time.Local)
	return &v
}
