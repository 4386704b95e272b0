package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"
	"go.uber.org/zap"

	"kansha-backend-go/internal/db"
	"kansha-backend-go/internal/identity"
	"kansha-backend-go/internal/metrics"
	"kansha-backend-go/internal/models"
	"kansha-backend-go/internal/payments"
)

type fakeUserRepo struct {
	mu      sync.Mutex
	users   map[string]*models.User
	getErr  error
	applyFn func(userID string, sub models.Subscription) error
	writes  int
}

func newFakeUserRepo(users ...*models.User) *fakeUserRepo {
	r := &fakeUserRepo{users: map[string]*models.User{}}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *fakeUserRepo) GetByID(_ context.Context, userID string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	u, ok := r.users[userID]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", userID, db.ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (r *fakeUserRepo) Create(_ context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.ID]; ok {
		return db.ErrAlreadyExists
	}
	cp := *user
	r.users[user.ID] = &cp
	r.writes++
	return nil
}

func (r *fakeUserRepo) TouchSignIn(_ context.Context, userID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return db.ErrNotFound
	}
	u.LastSignIn = at
	return nil
}

func (r *fakeUserRepo) SaveRole(_ context.Context, seed *models.User, role models.Role) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[seed.ID]
	if !ok {
		cp := *seed
		u = &cp
		r.users[seed.ID] = u
	}
	u.Role = role
	r.writes++
	out := *u
	return &out, nil
}

func (r *fakeUserRepo) ApplySubscription(_ context.Context, userID string, sub models.Subscription) error {
	if r.applyFn != nil {
		if err := r.applyFn(userID, sub); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return db.ErrNotFound
	}
	if u.Subscription != nil && u.Subscription.SourceEventAt.After(sub.SourceEventAt) {
		return db.ErrStaleWrite
	}
	cp := sub
	u.Subscription = &cp
	r.writes++
	return nil
}

func (r *fakeUserRepo) get(id string) *models.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.users[id]
}

type fakePurchaseRepo struct {
	mu      sync.Mutex
	users   *fakeUserRepo
	records map[string]models.PurchaseRecord
}

func newFakePurchaseRepo(users *fakeUserRepo) *fakePurchaseRepo {
	return &fakePurchaseRepo{users: users, records: map[string]models.PurchaseRecord{}}
}

func (r *fakePurchaseRepo) Record(_ context.Context, rec models.PurchaseRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[rec.SessionID]; ok {
		return db.ErrAlreadyExists
	}
	r.users.mu.Lock()
	defer r.users.mu.Unlock()
	u, ok := r.users.users[rec.UserID]
	if !ok {
		return db.ErrNotFound
	}
	r.records[rec.SessionID] = rec
	u.Purchases = append(u.Purchases, rec.Purchase())
	now := time.Now()
	u.LastPurchaseAt = &now
	return nil
}

func (r *fakePurchaseRepo) GetBySessionID(_ context.Context, sessionID string) (*models.PurchaseRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[sessionID]
	if !ok {
		return nil, db.ErrNotFound
	}
	return &rec, nil
}

type fakeEventRepo struct {
	mu        sync.Mutex
	processed map[string]models.ProcessedEvent
}

func newFakeEventRepo() *fakeEventRepo {
	return &fakeEventRepo{processed: map[string]models.ProcessedEvent{}}
}

func (r *fakeEventRepo) IsProcessed(_ context.Context, eventID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.processed[eventID]
	return ok, nil
}

func (r *fakeEventRepo) MarkProcessed(_ context.Context, event models.ProcessedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processed[event.EventID] = event
	return nil
}

type fakeDeadLetters struct {
	mu      sync.Mutex
	letters map[string]*models.DeadLetter
	seq     int
	addErr  error
}

func newFakeDeadLetters() *fakeDeadLetters {
	return &fakeDeadLetters{letters: map[string]*models.DeadLetter{}}
}

func (r *fakeDeadLetters) Add(_ context.Context, letter *models.DeadLetter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.addErr != nil {
		return r.addErr
	}
	if letter.ID == "" {
		r.seq++
		letter.ID = fmt.Sprintf("dl-%d", r.seq)
	}
	cp := *letter
	r.letters[letter.ID] = &cp
	return nil
}

func (r *fakeDeadLetters) Get(_ context.Context, id string) (*models.DeadLetter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.letters[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (r *fakeDeadLetters) List(_ context.Context, limit int) ([]*models.DeadLetter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.DeadLetter, 0, len(r.letters))
	for _, l := range r.letters {
		cp := *l
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeDeadLetters) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.letters[id]; !ok {
		return db.ErrNotFound
	}
	delete(r.letters, id)
	return nil
}

func (r *fakeDeadLetters) Purge(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.letters)
	r.letters = map[string]*models.DeadLetter{}
	return n, nil
}

func (r *fakeDeadLetters) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.letters)
}

type fakeProvider struct {
	mu            sync.Mutex
	subscriptions map[string]*stripe.Subscription
	customers     map[string]*stripe.Customer
	subErr        error
	sessionErr    error
	sessions      []*stripe.CheckoutSessionParams
	portalURL     string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		subscriptions: map[string]*stripe.Subscription{},
		customers:     map[string]*stripe.Customer{},
		portalURL:     "https://billing.stripe.test/session",
	}
}

func (p *fakeProvider) GetSubscription(_ context.Context, id string) (*stripe.Subscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.subErr != nil {
		return nil, p.subErr
	}
	s, ok := p.subscriptions[id]
	if !ok {
		return nil, errors.New("no such subscription: " + id)
	}
	return s, nil
}

func (p *fakeProvider) GetCustomer(_ context.Context, id string) (*stripe.Customer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.customers[id]
	if !ok {
		return nil, errors.New("no such customer: " + id)
	}
	return c, nil
}

func (p *fakeProvider) FindOrCreateCustomer(_ context.Context, email, userID string) (*stripe.Customer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.customers {
		if c.Email == email {
			c.Metadata = map[string]string{"user_id": userID}
			return c, nil
		}
	}
	c := &stripe.Customer{ID: fmt.Sprintf("cus_%d", len(p.customers)+1), Email: email, Metadata: map[string]string{"user_id": userID}}
	p.customers[c.ID] = c
	return c, nil
}

func (p *fakeProvider) CreateCheckoutSession(_ context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sessionErr != nil {
		return nil, p.sessionErr
	}
	p.sessions = append(p.sessions, params)
	id := fmt.Sprintf("cs_test_%d", len(p.sessions))
	return &stripe.CheckoutSession{ID: id, URL: "https://checkout.stripe.test/" + id}, nil
}

func (p *fakeProvider) CreatePortalSession(_ context.Context, customerID, returnURL string) (string, error) {
	return p.portalURL + "?customer=" + customerID, nil
}

type fakeAlerter struct {
	mu     sync.Mutex
	alerts []string
}

func (a *fakeAlerter) Alert(_ context.Context, subject, _ string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, subject)
	return nil
}

func (a *fakeAlerter) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.alerts)
}

type fakeVerifier struct {
	revoked []string
}

func (v *fakeVerifier) VerifyIDToken(_ context.Context, token string) (*identity.Identity, error) {
	if token == "" {
		return nil, identity.ErrInvalidToken
	}
	return &identity.Identity{UID: token, Email: token + "@example.com"}, nil
}

func (v *fakeVerifier) RevokeRefreshTokens(_ context.Context, uid string) error {
	v.revoked = append(v.revoked, uid)
	return nil
}

// reconcilerFixture bundles a reconciler and its fakes.
type reconcilerFixture struct {
	users     *fakeUserRepo
	purchases *fakePurchaseRepo
	provider  *fakeProvider
	alerter   *fakeAlerter
	rec       *Reconciler
}

func newReconcilerFixture(users ...*models.User) *reconcilerFixture {
	f := &reconcilerFixture{
		users:    newFakeUserRepo(users...),
		provider: newFakeProvider(),
		alerter:  &fakeAlerter{},
	}
	f.purchases = newFakePurchaseRepo(f.users)
	f.rec = NewReconciler(f.users, f.purchases, f.provider, f.alerter, zap.NewNop())
	f.rec.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return f
}

func newTestMetrics() *metrics.Metrics { return metrics.New() }

// eventPayload builds the JSON body of a Stripe event wrapping object.
func eventPayload(t *testing.T, id string, typ stripe.EventType, created int64, object map[string]interface{}) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"id":      id,
		"object":  "event",
		"type":    string(typ),
		"created": created,
		"data":    map[string]interface{}{"object": object},
	})
	require.NoError(t, err)
	return body
}

func testEvent(t *testing.T, id string, typ stripe.EventType, created int64, object map[string]interface{}) stripe.Event {
	t.Helper()
	event, err := payments.ParseEvent(eventPayload(t, id, typ, created, object))
	require.NoError(t, err)
	return event
}

func activeSubscription(id, customerID, priceID, userID string) *stripe.Subscription {
	return &stripe.Subscription{
		ID:                 id,
		Status:             stripe.SubscriptionStatusActive,
		Customer:           &stripe.Customer{ID: customerID},
		CurrentPeriodStart: 1714521600,
		CurrentPeriodEnd:   1717200000,
		Created:            1714521600,
		Metadata:           map[string]string{"user_id": userID},
		Items: &stripe.SubscriptionItemList{Data: []*stripe.SubscriptionItem{{
			Quantity: 1,
			Price:    &stripe.Price{ID: priceID, Product: &stripe.Product{ID: "prod_basic"}},
		}}},
	}
}

func subscriptionObject(id, status, userID string) map[string]interface{} {
	return map[string]interface{}{
		"id":       id,
		"object":   "subscription",
		"status":   status,
		"customer": "cus_1",
		"metadata": map[string]string{"user_id": userID},
		"items": map[string]interface{}{
			"object": "list",
			"data": []interface{}{map[string]interface{}{
				"id":       "si_1",
				"quantity": 1,
				"price":    map[string]interface{}{"id": "price_basic", "product": "prod_basic"},
			}},
		},
	}
}
