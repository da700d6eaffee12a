package app

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"policy_renewal_tracker/internal/domain/notify"
	"policy_renewal_tracker/internal/domain/policy"
	idb "policy_renewal_tracker/internal/infra/database"
)

// testNow is the frozen clock for service tests: a mid-afternoon instant so
// midnight normalization is actually exercised.
var testNow = time.Date(2026, time.March, 15, 14, 30, 0, 0, time.Local)

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l.WithField("component", "test")
}

func newTestPolicy(expiry *time.Time, opts ...func(*policy.Policy)) *policy.Policy {
	premium := decimal.NewFromInt(12000)
	p := &policy.Policy{
		ID:             uuid.NewString(),
		PolicyNumber:   "POL-" + uuid.NewString()[:8],
		Status:         policy.StatusActive,
		ClientName:     "Asha Verma",
		ClientEmail:    "asha@example.com",
		ClientPhone:    "+919800000001",
		InsurerName:    "National Insurance",
		PolicyTypeName: "Motor",
		Premium:        &premium,
	}
	if expiry != nil {
		p.InsuranceEndDate = expiry
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func datePtr(t time.Time) *time.Time { return &t }

// fakeRepo is a map-backed policy.Repository. Reads hand out deep copies so
// tests observe the same read/mutate/save cycle the SQL repository gives the
// services; an un-Saved mutation must never be visible on a re-read.
type fakeRepo struct {
	mu       sync.Mutex
	policies map[string]*policy.Policy
	order    []string

	queries  []policy.ExpiryQuery
	saves    int
	findErr  error
	saveErr  error
	queryErr error
}

func newFakeRepo(policies ...*policy.Policy) *fakeRepo {
	r := &fakeRepo{policies: make(map[string]*policy.Policy)}
	for _, p := range policies {
		r.add(p)
	}
	return r
}

func (r *fakeRepo) add(p *policy.Policy) {
	r.policies[p.ID] = clonePolicy(p)
	r.order = append(r.order, p.ID)
}

func (r *fakeRepo) get(id string) *policy.Policy {
	r.mu.Lock()
	defer r.mu.Unlock()
	return clonePolicy(r.policies[id])
}

func (r *fakeRepo) FindByExpiry(_ context.Context, q policy.ExpiryQuery) ([]*policy.Policy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries = append(r.queries, q)
	if r.queryErr != nil {
		return nil, r.queryErr
	}
	var out []*policy.Policy
	for _, id := range r.order {
		p := r.policies[id]
		if matchesExpiryQuery(p, q) {
			out = append(out, clonePolicy(p))
		}
	}
	return out, nil
}

func matchesExpiryQuery(p *policy.Policy, q policy.ExpiryQuery) bool {
	expiry := p.ResolveExpiry()
	if expiry == nil || expiry.Before(q.From) || !expiry.Before(q.To) {
		return false
	}
	if len(q.Statuses) > 0 {
		found := false
		for _, st := range q.Statuses {
			if p.Status == st {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if q.ExcludeRenewed && p.RenewalStatusOrDefault() == policy.RenewalRenewed {
		return false
	}
	if q.NotContactedSince != nil && p.Renewal != nil && p.Renewal.LastContacted != nil &&
		!p.Renewal.LastContacted.Before(*q.NotContactedSince) {
		return false
	}
	return true
}

func (r *fakeRepo) FindByID(_ context.Context, id string) (*policy.Policy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	p, ok := r.policies[id]
	if !ok {
		return nil, idb.ErrPolicyNotFound
	}
	return clonePolicy(p), nil
}

func (r *fakeRepo) Save(_ context.Context, p *policy.Policy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	if _, ok := r.policies[p.ID]; !ok {
		return idb.ErrPolicyNotFound
	}
	r.policies[p.ID] = clonePolicy(p)
	r.saves++
	return nil
}

func (r *fakeRepo) CountDueBetween(_ context.Context, from, to time.Time, statuses []policy.Status) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, p := range r.policies {
		if matchesExpiryQuery(p, policy.ExpiryQuery{From: from, To: to, Statuses: statuses}) {
			n++
		}
	}
	return n, nil
}

func (r *fakeRepo) CountRenewedBetween(_ context.Context, from, to time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, p := range r.policies {
		if p.RenewalStatusOrDefault() == policy.RenewalRenewed &&
			p.Renewal.LastUpdated != nil &&
			!p.Renewal.LastUpdated.Before(from) && p.Renewal.LastUpdated.Before(to) {
			n++
		}
	}
	return n, nil
}

func clonePolicy(p *policy.Policy) *policy.Policy {
	if p == nil {
		return nil
	}
	cp := *p
	if p.Renewal != nil {
		tr := *p.Renewal
		tr.ContactHistory = append([]policy.ContactEvent(nil), p.Renewal.ContactHistory...)
		cp.Renewal = &tr
	}
	return &cp
}

type sentMessage struct {
	Channel   notify.Channel
	Recipient string
	Subject   string
	Body      string
}

// fakeGateway records every send and can fail per channel.
type fakeGateway struct {
	mu          sync.Mutex
	sent        []sentMessage
	failChannel map[notify.Channel]error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{failChannel: make(map[notify.Channel]error)}
}

func (g *fakeGateway) failOn(ch notify.Channel) {
	g.failChannel[ch] = fmt.Errorf("%s provider unavailable", ch)
}

func (g *fakeGateway) Send(_ context.Context, ch notify.Channel, recipient string, msg notify.Message) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err, ok := g.failChannel[ch]; ok {
		return err
	}
	g.sent = append(g.sent, sentMessage{Channel: ch, Recipient: recipient, Subject: msg.Subject, Body: msg.Body})
	return nil
}

func (g *fakeGateway) sentTo(recipient string) []sentMessage {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []sentMessage
	for _, m := range g.sent {
		if m.Recipient == recipient {
			out = append(out, m)
		}
	}
	return out
}

// fakeLocker is a SweepLocker that always answers with a fixed grant.
type fakeLocker struct {
	grant    bool
	acquires int
	releases int
}

func (l *fakeLocker) Acquire(context.Context, string, time.Duration) (bool, error) {
	l.acquires++
	return l.grant, nil
}

func (l *fakeLocker) Release(context.Context, string) error {
	l.releases++
	return nil
}
