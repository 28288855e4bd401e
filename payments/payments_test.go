package payments

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"talentbook-middleware/catalog"
	"talentbook-middleware/models"
	"talentbook-middleware/userdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v72"
)

type fakeStripe struct {
	customers     []*stripe.CustomerParams
	sessions      []*stripe.CheckoutSessionParams
	subscriptions map[string]*stripe.Subscription
	sessionURL    string
	err           error
}

func (f *fakeStripe) NewCustomer(params *stripe.CustomerParams) (*stripe.Customer, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.customers = append(f.customers, params)
	return &stripe.Customer{ID: "cus_new"}, nil
}

func (f *fakeStripe) NewCheckoutSession(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.sessions = append(f.sessions, params)
	return &stripe.CheckoutSession{ID: "cs_test", URL: f.sessionURL}, nil
}

func (f *fakeStripe) GetSubscription(id string) (*stripe.Subscription, error) {
	sub, ok := f.subscriptions[id]
	if !ok {
		return nil, errors.New("no such subscription")
	}
	return sub, nil
}

type fakeStore struct {
	customers     map[string]string
	orders        []models.Order
	subscriptions map[string]models.Subscription
	err           error
}

func newFakeStore() *fakeStore {
	return &fakeStore{customers: map[string]string{}, subscriptions: map[string]models.Subscription{}}
}

func (f *fakeStore) CustomerByUser(_ context.Context, userID string) (models.Customer, error) {
	if f.err != nil {
		return models.Customer{}, f.err
	}
	id, ok := f.customers[userID]
	if !ok {
		return models.Customer{}, userdata.ErrNotFound
	}
	return models.Customer{UserID: userID, CustomerID: id}, nil
}

func (f *fakeStore) SubscriptionByCustomer(_ context.Context, customerID string) (models.Subscription, error) {
	sub, ok := f.subscriptions[customerID]
	if !ok {
		return models.Subscription{}, userdata.ErrNotFound
	}
	return sub, nil
}

func (f *fakeStore) InsertCustomer(_ context.Context, userID, customerID string) error {
	f.customers[userID] = customerID
	return nil
}

func (f *fakeStore) InsertOrder(_ context.Context, o models.Order) error {
	f.orders = append(f.orders, o)
	return nil
}

func (f *fakeStore) UpsertSubscription(_ context.Context, sub models.Subscription) error {
	f.subscriptions[sub.CustomerID] = sub
	return nil
}

var testUser = models.User{ID: "u1", Email: "jane@example.com", FullName: "Jane Doe", UserType: "job_seeker"}

func newService(st *fakeStripe, store *fakeStore) *Service {
	return &Service{
		Stripe:            st,
		Store:             store,
		NewIdempotencyKey: func() string { return "idem-1" },
	}
}

func paymentProduct(t *testing.T) catalog.Product {
	t.Helper()
	for _, p := range catalog.Products() {
		if p.Mode == models.ModePayment {
			return p
		}
	}
	t.Fatal("catalog has no one-time product")
	return catalog.Product{}
}

func checkoutRequest(p catalog.Product) models.CreateCheckoutSessionRequest {
	return models.CreateCheckoutSessionRequest{
		PriceID:    p.PriceID,
		Mode:       p.Mode,
		SuccessURL: "https://app.example.com/checkout/success?session_id=" + models.CheckoutSessionPlaceholder,
		CancelURL:  "https://app.example.com/checkout/cancel",
	}
}

func TestPropagateUserToStripe(t *testing.T) {
	st := &fakeStripe{}
	store := newFakeStore()
	s := newService(st, store)

	id, err := s.PropagateUserToStripe(context.Background(), testUser)
	require.NoError(t, err)
	assert.Equal(t, "cus_new", id)
	assert.Equal(t, "cus_new", store.customers["u1"])
	require.Len(t, st.customers, 1)
	assert.Equal(t, "jane@example.com", *st.customers[0].Email)
	assert.Equal(t, "u1", st.customers[0].Metadata["userId"])

	// second call reuses the stored customer
	id, err = s.PropagateUserToStripe(context.Background(), testUser)
	require.NoError(t, err)
	assert.Equal(t, "cus_new", id)
	assert.Len(t, st.customers, 1)
}

func TestPropagateUserToStripeStoreError(t *testing.T) {
	store := newFakeStore()
	store.err = errors.New("connection refused")
	st := &fakeStripe{}
	_, err := newService(st, store).PropagateUserToStripe(context.Background(), testUser)
	require.Error(t, err)
	assert.Empty(t, st.customers)
}

func TestCreateCheckoutSession(t *testing.T) {
	st := &fakeStripe{sessionURL: "https://checkout.stripe.com/pay/cs_test"}
	store := newFakeStore()
	store.customers["u1"] = "cus_existing"
	p := paymentProduct(t)

	url, err := newService(st, store).CreateCheckoutSession(context.Background(), testUser, checkoutRequest(p))
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.stripe.com/pay/cs_test", url)

	require.Len(t, st.sessions, 1)
	params := st.sessions[0]
	assert.Equal(t, "cus_existing", *params.Customer)
	assert.Equal(t, models.ModePayment, *params.Mode)
	require.Len(t, params.LineItems, 1)
	assert.Equal(t, p.PriceID, *params.LineItems[0].Price)
	assert.EqualValues(t, 1, *params.LineItems[0].Quantity)
	assert.Contains(t, *params.SuccessURL, models.CheckoutSessionPlaceholder)
	require.NotNil(t, params.IdempotencyKey)
	assert.Equal(t, "idem-1", *params.IdempotencyKey)
}

func TestCreateCheckoutSessionRejects(t *testing.T) {
	p := paymentProduct(t)

	tests := []struct {
		name   string
		mutate func(*models.CreateCheckoutSessionRequest)
		stripe *fakeStripe
		want   error
	}{
		{
			name:   "unknown price",
			mutate: func(r *models.CreateCheckoutSessionRequest) { r.PriceID = "price_nope" },
			stripe: &fakeStripe{sessionURL: "https://x"},
			want:   ErrUnknownPrice,
		},
		{
			name:   "mode mismatch",
			mutate: func(r *models.CreateCheckoutSessionRequest) { r.Mode = models.ModeSubscription },
			stripe: &fakeStripe{sessionURL: "https://x"},
			want:   ErrModeMismatch,
		},
		{
			name:   "stripe failure",
			mutate: func(*models.CreateCheckoutSessionRequest) {},
			stripe: &fakeStripe{err: errors.New("card_declined")},
		},
		{
			name:   "no url",
			mutate: func(*models.CreateCheckoutSessionRequest) {},
			stripe: &fakeStripe{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			store.customers["u1"] = "cus_existing"
			req := checkoutRequest(p)
			tt.mutate(&req)

			url, err := newService(tt.stripe, store).CreateCheckoutSession(context.Background(), testUser, req)
			require.Error(t, err)
			assert.Empty(t, url)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
				assert.Empty(t, tt.stripe.sessions)
			}
		})
	}
}

func event(t *testing.T, typ string, obj interface{}) stripe.Event {
	t.Helper()
	raw, err := json.Marshal(obj)
	require.NoError(t, err)
	return stripe.Event{ID: "evt_1", Type: typ, Data: &stripe.EventData{Raw: raw}}
}

func TestHandleEventPaidCheckout(t *testing.T) {
	store := newFakeStore()
	s := newService(&fakeStripe{}, store)

	ev := event(t, "checkout.session.completed", map[string]interface{}{
		"id":              "cs_1",
		"object":          "checkout.session",
		"mode":            "payment",
		"payment_status":  "paid",
		"customer":        "cus_1",
		"payment_intent":  "pi_1",
		"amount_subtotal": 1500,
		"amount_total":    1500,
		"currency":        "eur",
	})
	require.NoError(t, s.HandleEvent(context.Background(), ev))

	require.Len(t, store.orders, 1)
	o := store.orders[0]
	assert.Equal(t, "cs_1", o.CheckoutSessionID)
	assert.Equal(t, "cus_1", o.CustomerID)
	assert.Equal(t, "pi_1", o.PaymentIntentID)
	assert.EqualValues(t, 1500, o.AmountTotal)
	assert.Equal(t, "eur", o.Currency)
	assert.Equal(t, "paid", o.PaymentStatus)
	assert.Equal(t, "completed", o.Status)
}

func TestHandleEventUnpaidCheckout(t *testing.T) {
	store := newFakeStore()
	ev := event(t, "checkout.session.completed", map[string]interface{}{
		"id":             "cs_1",
		"mode":           "payment",
		"payment_status": "unpaid",
		"customer":       "cus_1",
	})
	require.NoError(t, newService(&fakeStripe{}, store).HandleEvent(context.Background(), ev))
	assert.Empty(t, store.orders)
}

func subscriptionFixture(status stripe.SubscriptionStatus) *stripe.Subscription {
	return &stripe.Subscription{
		ID:                 "sub_1",
		Status:             status,
		CurrentPeriodStart: 1700000000,
		CurrentPeriodEnd:   1702592000,
		Items: &stripe.SubscriptionItemList{
			Data: []*stripe.SubscriptionItem{{Price: &stripe.Price{ID: "price_monthly"}}},
		},
	}
}

func TestHandleEventSubscriptionCheckout(t *testing.T) {
	store := newFakeStore()
	st := &fakeStripe{subscriptions: map[string]*stripe.Subscription{
		"sub_1": subscriptionFixture(stripe.SubscriptionStatusActive),
	}}

	ev := event(t, "checkout.session.completed", map[string]interface{}{
		"id":             "cs_2",
		"mode":           "subscription",
		"payment_status": "paid",
		"customer":       "cus_1",
		"subscription":   "sub_1",
	})
	require.NoError(t, newService(st, store).HandleEvent(context.Background(), ev))

	assert.Empty(t, store.orders)
	sub, ok := store.subscriptions["cus_1"]
	require.True(t, ok)
	assert.Equal(t, "sub_1", sub.SubscriptionID)
	assert.Equal(t, "price_monthly", sub.PriceID)
	assert.Equal(t, "active", sub.Status)
	assert.EqualValues(t, 1702592000, sub.CurrentPeriodEnd)
}

func TestHandleEventSubscriptionDeleted(t *testing.T) {
	store := newFakeStore()
	store.subscriptions["cus_1"] = models.Subscription{CustomerID: "cus_1", SubscriptionID: "sub_1", Status: "active"}
	st := &fakeStripe{subscriptions: map[string]*stripe.Subscription{
		"sub_1": subscriptionFixture(stripe.SubscriptionStatusCanceled),
	}}

	ev := event(t, "customer.subscription.deleted", map[string]interface{}{
		"id":       "sub_1",
		"object":   "subscription",
		"customer": "cus_1",
	})
	require.NoError(t, newService(st, store).HandleEvent(context.Background(), ev))
	assert.Equal(t, "canceled", store.subscriptions["cus_1"].Status)
}

func TestHandleEventIgnored(t *testing.T) {
	store := newFakeStore()
	ev := event(t, "invoice.created", map[string]interface{}{"id": "in_1"})
	require.NoError(t, newService(&fakeStripe{}, store).HandleEvent(context.Background(), ev))
	assert.Empty(t, store.orders)
	assert.Empty(t, store.subscriptions)
}

func TestHandleEventErrors(t *testing.T) {
	s := newService(&fakeStripe{subscriptions: map[string]*stripe.Subscription{}}, newFakeStore())

	err := s.HandleEvent(context.Background(), stripe.Event{ID: "evt_1", Type: "checkout.session.completed"})
	assert.Error(t, err)

	ev := event(t, "checkout.session.completed", map[string]interface{}{"id": "cs_1", "mode": "payment"})
	assert.Error(t, s.HandleEvent(context.Background(), ev))

	ev = event(t, "customer.subscription.updated", map[string]interface{}{"id": "sub_missing", "customer": "cus_1"})
	assert.Error(t, s.HandleEvent(context.Background(), ev))
}

func TestConstructEventBadSignature(t *testing.T) {
	s := &Service{WebhookSecret: "whsec_test"}
	_, err := s.ConstructEvent([]byte(`{"id":"evt_1"}`), "t=1,v1=deadbeef")
	assert.Error(t, err)
}

func TestIsUserSubscribed(t *testing.T) {
	store := newFakeStore()
	s := newService(&fakeStripe{}, store)
	ctx := context.Background()

	ok, err := s.IsUserSubscribed(ctx, testUser, "price_monthly")
	require.NoError(t, err)
	assert.False(t, ok)

	store.customers["u1"] = "cus_1"
	ok, err = s.IsUserSubscribed(ctx, testUser, "price_monthly")
	require.NoError(t, err)
	assert.False(t, ok)

	store.subscriptions["cus_1"] = models.Subscription{CustomerID: "cus_1", PriceID: "price_monthly", Status: "active"}
	ok, err = s.IsUserSubscribed(ctx, testUser, "price_monthly")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.IsUserSubscribed(ctx, testUser, "price_other")
	require.NoError(t, err)
	assert.False(t, ok)

	store.subscriptions["cus_1"] = models.Subscription{CustomerID: "cus_1", PriceID: "price_monthly", Status: "past_due"}
	ok, err = s.IsUserSubscribed(ctx, testUser, "price_monthly")
	require.NoError(t, err)
	assert.False(t, ok)
}
