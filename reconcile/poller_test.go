package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"talentbook-middleware/auth"
	"talentbook-middleware/models"
	"talentbook-middleware/userdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeStore struct {
	mu sync.Mutex

	// orderAfter makes the order visible from the n-th lookup on (1-based);
	// zero means never.
	orderAfter int
	order      models.Order
	orderErr   error
	customers  map[string]models.Customer
	subs       map[string]models.Subscription
	subErr     error
	panicOn    string

	orderCalls, customerCalls, subCalls int
}

func (f *fakeStore) OrderBySession(_ context.Context, id string) (models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orderCalls++
	if f.panicOn == "order" {
		panic("boom")
	}
	if f.orderErr != nil {
		return models.Order{}, f.orderErr
	}
	if f.orderAfter == 0 || f.orderCalls < f.orderAfter || f.order.CheckoutSessionID != id {
		return models.Order{}, userdata.ErrNotFound
	}
	return f.order, nil
}

func (f *fakeStore) CustomerByUser(_ context.Context, userID string) (models.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.customerCalls++
	c, ok := f.customers[userID]
	if !ok || c.DeletedAt != nil {
		return models.Customer{}, userdata.ErrNotFound
	}
	return c, nil
}

func (f *fakeStore) SubscriptionByCustomer(_ context.Context, customerID string) (models.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subCalls++
	if f.subErr != nil {
		return models.Subscription{}, f.subErr
	}
	s, ok := f.subs[customerID]
	if !ok {
		return models.Subscription{}, userdata.ErrNotFound
	}
	return s, nil
}

type fakeIdentity struct {
	user models.User
	err  error
}

func (f fakeIdentity) CurrentUser(context.Context) (models.User, error) {
	return f.user, f.err
}

var (
	user1   = fakeIdentity{user: models.User{ID: "user-1"}}
	anon    = fakeIdentity{err: auth.ErrNoSession}
	paidOrd = models.Order{CheckoutSessionID: "cs_test_1", AmountTotal: 499, Currency: "eur", PaymentStatus: "paid"}
)

func newPoller(t *testing.T, store Store, id auth.Identity, states *[]State) *Poller {
	return &Poller{
		Store:           store,
		Identity:        id,
		Logger:          zaptest.NewLogger(t),
		InitialInterval: time.Millisecond,
		MaxAttempts:     3,
		MaxElapsed:      time.Second,
		OnState: func(s State) {
			if states != nil {
				*states = append(*states, s)
			}
		},
	}
}

func TestMissingSessionReferenceFailsWithoutLookups(t *testing.T) {
	store := &fakeStore{}
	states := []State{}
	p := newPoller(t, store, user1, &states)

	_, err := p.Reconcile(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrMissingSessionReference)
	assert.Equal(t, []State{Idle, Failed}, states)
	assert.Zero(t, store.orderCalls+store.customerCalls+store.subCalls)
}

func TestNoOrderYetResolvesEmpty(t *testing.T) {
	store := &fakeStore{}
	states := []State{}
	p := newPoller(t, store, anon, &states)

	res, err := p.Reconcile(context.Background(), "cs_test_1")
	require.NoError(t, err)
	assert.Equal(t, NoneFound, res.Kind)
	assert.Nil(t, res.Order)
	assert.Nil(t, res.Subscription)
	assert.True(t, res.StillProcessing)
	assert.Equal(t, 3, store.orderCalls)
	assert.Equal(t, []State{Idle, Waiting, Querying, Resolved}, states)
}

func TestOrderArrivingLateIsPickedUp(t *testing.T) {
	store := &fakeStore{orderAfter: 2, order: paidOrd}
	p := newPoller(t, store, anon, nil)

	res, err := p.Reconcile(context.Background(), "cs_test_1")
	require.NoError(t, err)
	assert.Equal(t, OrderOnly, res.Kind)
	assert.False(t, res.StillProcessing)
	require.NotNil(t, res.Order)
	assert.Equal(t, int64(499), res.Order.AmountTotal)
	assert.Equal(t, 2, store.orderCalls)
}

func TestOrderAndActiveSubscription(t *testing.T) {
	store := &fakeStore{
		orderAfter: 1,
		order:      paidOrd,
		customers:  map[string]models.Customer{"user-1": {UserID: "user-1", CustomerID: "cus_1"}},
		subs:       map[string]models.Subscription{"cus_1": {CustomerID: "cus_1", Status: "active", CurrentPeriodEnd: 1767225600}},
	}
	p := newPoller(t, store, user1, nil)

	res, err := p.Reconcile(context.Background(), "cs_test_1")
	require.NoError(t, err)
	assert.Equal(t, Both, res.Kind)
	require.NotNil(t, res.Subscription)
	assert.True(t, res.Subscription.IsActive())
	assert.Equal(t, 1, store.orderCalls)
}

func TestSubscriptionOnly(t *testing.T) {
	store := &fakeStore{
		customers: map[string]models.Customer{"user-1": {UserID: "user-1", CustomerID: "cus_1"}},
		subs:      map[string]models.Subscription{"cus_1": {CustomerID: "cus_1", Status: "active"}},
	}
	res, err := newPoller(t, store, user1, nil).Reconcile(context.Background(), "cs_test_sub")
	require.NoError(t, err)
	assert.Equal(t, SubscriptionOnly, res.Kind)
	assert.Nil(t, res.Order)
}

func TestSoftDeletedCustomerSkipsSubscription(t *testing.T) {
	deleted := time.Now()
	store := &fakeStore{
		orderAfter: 1,
		order:      paidOrd,
		customers:  map[string]models.Customer{"user-1": {UserID: "user-1", CustomerID: "cus_1", DeletedAt: &deleted}},
		subs:       map[string]models.Subscription{"cus_1": {CustomerID: "cus_1", Status: "active"}},
	}
	res, err := newPoller(t, store, user1, nil).Reconcile(context.Background(), "cs_test_1")
	require.NoError(t, err)
	assert.Equal(t, OrderOnly, res.Kind)
	assert.Zero(t, store.subCalls)
}

func TestLookupErrorsAreTreatedAsAbsence(t *testing.T) {
	store := &fakeStore{
		orderErr:  errors.New("connection refused"),
		customers: map[string]models.Customer{"user-1": {UserID: "user-1", CustomerID: "cus_1"}},
		subErr:    errors.New("timeout"),
	}
	res, err := newPoller(t, store, fakeIdentity{err: errors.New("fusionauth down")}, nil).
		Reconcile(context.Background(), "cs_test_1")
	require.NoError(t, err)
	assert.Equal(t, NoneFound, res.Kind)
	assert.True(t, res.StillProcessing)
	assert.Zero(t, store.customerCalls)

	res, err = newPoller(t, store, user1, nil).Reconcile(context.Background(), "cs_test_1")
	require.NoError(t, err)
	assert.Equal(t, NoneFound, res.Kind)
	assert.Equal(t, 3, store.subCalls)
}

func TestPanicBecomesUnexpectedError(t *testing.T) {
	states := []State{}
	p := newPoller(t, &fakeStore{panicOn: "order"}, user1, &states)

	_, err := p.Reconcile(context.Background(), "cs_test_1")
	var ue *UnexpectedError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, "boom", ue.Value)
	assert.Equal(t, Failed, states[len(states)-1])
}

func TestInitialDelayAndCancellation(t *testing.T) {
	store := &fakeStore{orderAfter: 1, order: paidOrd}
	p := newPoller(t, store, anon, nil)
	p.InitialDelay = 20 * time.Millisecond

	start := time.Now()
	_, err := p.Reconcile(context.Background(), "cs_test_1")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	states := []State{}
	p = newPoller(t, store, anon, &states)
	p.InitialDelay = time.Hour
	_, err = p.Reconcile(ctx, "cs_test_1")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []State{Idle, Waiting, Failed}, states)
}

func TestMachineIgnoresTransitionsAfterTerminal(t *testing.T) {
	got := []State{}
	m := newMachine(func(s State) { got = append(got, s) })
	m.to(Failed)
	m.to(Querying)
	m.to(Resolved)
	assert.Equal(t, []State{Idle, Failed}, got)
	assert.Equal(t, "failed", m.state.String())
}

func TestResultJSON(t *testing.T) {
	b, err := json.Marshal(newResult(&paidOrd, nil))
	require.NoError(t, err)
	assert.Contains(t, string(b), `"kind":"order_only"`)
	assert.Contains(t, string(b), `"stillProcessing":false`)
}
