package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"talentbook-middleware/catalog"
	"talentbook-middleware/models"
	"talentbook-middleware/userdata"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/client"
	"github.com/stripe/stripe-go/v72/webhook"
	"go.uber.org/zap"
)

var (
	ErrUnknownPrice = errors.New("unknown price id")
	ErrModeMismatch = errors.New("checkout mode does not match price")
)

// StripeAPI is the part of the Stripe API the service calls.
type StripeAPI interface {
	NewCustomer(params *stripe.CustomerParams) (*stripe.Customer, error)
	NewCheckoutSession(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	GetSubscription(id string) (*stripe.Subscription, error)
}

type stripeClient struct {
	sc *client.API
}

func NewStripeAPI(secretKey string) StripeAPI {
	sc := &client.API{}
	sc.Init(secretKey, nil)
	return stripeClient{sc: sc}
}

func (c stripeClient) NewCustomer(params *stripe.CustomerParams) (*stripe.Customer, error) {
	return c.sc.Customers.New(params)
}

func (c stripeClient) NewCheckoutSession(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	return c.sc.CheckoutSessions.New(params)
}

func (c stripeClient) GetSubscription(id string) (*stripe.Subscription, error) {
	return c.sc.Subscriptions.Get(id, nil)
}

// Store is the write side of the Stripe mirror tables plus the lookups the
// service needs.
type Store interface {
	CustomerByUser(ctx context.Context, userID string) (models.Customer, error)
	SubscriptionByCustomer(ctx context.Context, customerID string) (models.Subscription, error)
	InsertCustomer(ctx context.Context, userID, customerID string) error
	InsertOrder(ctx context.Context, o models.Order) error
	UpsertSubscription(ctx context.Context, sub models.Subscription) error
}

// Service backs the checkout function and the Stripe webhook. It is the
// only writer of customers, orders and subscriptions.
type Service struct {
	Stripe        StripeAPI
	Store         Store
	Logger        *zap.Logger
	WebhookSecret string
	// NewIdempotencyKey defaults to a random uuid.
	NewIdempotencyKey func() string
}

// PropagateUserToStripe makes sure the user has a Stripe customer and
// returns its id.
func (s *Service) PropagateUserToStripe(ctx context.Context, user models.User) (string, error) {
	existing, err := s.Store.CustomerByUser(ctx, user.ID)
	if err == nil {
		// TODO: validate that the customer's email matches stripe email, and update if needed
		return existing.CustomerID, nil
	}
	if !errors.Is(err, userdata.ErrNotFound) {
		return "", fmt.Errorf("failed to get customer id from local db: %w", err)
	}

	params := &stripe.CustomerParams{
		Email: stripe.String(user.Email),
		Name:  stripe.String(user.FullName),
	}
	params.AddMetadata("userId", user.ID)
	customer, err := s.Stripe.NewCustomer(params)
	if err != nil {
		return "", fmt.Errorf("failed to create new customer: %w", err)
	}

	// push the customer's ID to database immediately!
	s.logger().Info("new stripe customer", zap.String("userId", user.ID), zap.String("customerId", customer.ID))
	if err := s.Store.InsertCustomer(ctx, user.ID, customer.ID); err != nil {
		return customer.ID, fmt.Errorf("failed to push customer id %v to database: %w", customer.ID, err)
	}
	return customer.ID, nil
}

// CreateCheckoutSession creates a hosted checkout session for one catalog
// price and returns the url to redirect the browser to.
// https://stripe.com/docs/api/checkout/sessions/create
func (s *Service) CreateCheckoutSession(ctx context.Context, user models.User, req models.CreateCheckoutSessionRequest) (string, error) {
	product, ok := catalog.ByPriceID(req.PriceID)
	if !ok {
		return "", fmt.Errorf("%w: %v", ErrUnknownPrice, req.PriceID)
	}
	if product.Mode != req.Mode {
		return "", fmt.Errorf("%w: %v is %v", ErrModeMismatch, req.PriceID, product.Mode)
	}

	customerID, err := s.PropagateUserToStripe(ctx, user)
	if err != nil {
		return "", err
	}

	params := &stripe.CheckoutSessionParams{
		Customer: stripe.String(customerID),
		PaymentMethodTypes: stripe.StringSlice([]string{
			"card",
		}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(product.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		Mode:       stripe.String(req.Mode),
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
	}
	params.AddMetadata("userId", user.ID)
	params.SetIdempotencyKey(s.idempotencyKey())

	session, err := s.Stripe.NewCheckoutSession(params)
	if err != nil {
		return "", fmt.Errorf("failed to create checkout session: %w", err)
	}
	if session.URL == "" {
		return "", fmt.Errorf("checkout session %v has no url", session.ID)
	}
	s.logger().Info(
		"created checkout session",
		zap.String("userId", user.ID),
		zap.String("sessionId", session.ID),
		zap.String("priceId", product.PriceID),
	)
	return session.URL, nil
}

// IsUserSubscribed reports whether the user holds an active subscription to
// priceID, according to the local mirror.
func (s *Service) IsUserSubscribed(ctx context.Context, user models.User, priceID string) (bool, error) {
	customer, err := s.Store.CustomerByUser(ctx, user.ID)
	if errors.Is(err, userdata.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	sub, err := s.Store.SubscriptionByCustomer(ctx, customer.CustomerID)
	if errors.Is(err, userdata.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return sub.PriceID == priceID && sub.IsActive(), nil
}

// ConstructEvent verifies the Stripe-Signature header of a webhook payload.
func (s *Service) ConstructEvent(payload []byte, signature string) (stripe.Event, error) {
	return webhook.ConstructEvent(payload, signature, s.WebhookSecret)
}

// HandleEvent applies a verified webhook event to the mirror tables.
// Events that don't concern checkout are ignored.
func (s *Service) HandleEvent(ctx context.Context, event stripe.Event) error {
	logger := s.logger().With(zap.String("eventId", event.ID), zap.String("eventType", event.Type))
	if event.Data == nil {
		return fmt.Errorf("event %v has no data", event.ID)
	}

	switch event.Type {
	case "checkout.session.completed":
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
			return fmt.Errorf("failed to parse checkout session: %w", err)
		}
		return s.checkoutCompleted(ctx, logger, cs)
	case "customer.subscription.created", "customer.subscription.updated", "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return fmt.Errorf("failed to parse subscription: %w", err)
		}
		if sub.Customer == nil {
			return fmt.Errorf("subscription %v has no customer", sub.ID)
		}
		return s.syncSubscription(ctx, logger, sub.Customer.ID, sub.ID)
	default:
		logger.Debug("ignoring webhook event")
		return nil
	}
}

func (s *Service) checkoutCompleted(ctx context.Context, logger *zap.Logger, cs stripe.CheckoutSession) error {
	if cs.Customer == nil || cs.Customer.ID == "" {
		return fmt.Errorf("checkout session %v has no customer", cs.ID)
	}

	switch cs.Mode {
	case stripe.CheckoutSessionModePayment:
		if cs.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
			logger.Info("checkout session not paid yet", zap.String("sessionId", cs.ID))
			return nil
		}
		order := models.Order{
			CheckoutSessionID: cs.ID,
			CustomerID:        cs.Customer.ID,
			AmountSubtotal:    cs.AmountSubtotal,
			AmountTotal:       cs.AmountTotal,
			Currency:          string(cs.Currency),
			PaymentStatus:     string(cs.PaymentStatus),
			Status:            "completed",
		}
		if cs.PaymentIntent != nil {
			order.PaymentIntentID = cs.PaymentIntent.ID
		}
		if err := s.Store.InsertOrder(ctx, order); err != nil {
			return err
		}
		logger.Info("recorded order", zap.String("sessionId", cs.ID), zap.Int64("amountTotal", cs.AmountTotal))
		return nil
	case stripe.CheckoutSessionModeSubscription:
		if cs.Subscription == nil {
			return fmt.Errorf("subscription checkout %v has no subscription", cs.ID)
		}
		return s.syncSubscription(ctx, logger, cs.Customer.ID, cs.Subscription.ID)
	}
	logger.Debug("ignoring checkout session mode", zap.String("mode", string(cs.Mode)))
	return nil
}

// syncSubscription re-reads the subscription from Stripe so replayed or
// out-of-order events always store the latest state.
func (s *Service) syncSubscription(ctx context.Context, logger *zap.Logger, customerID, subscriptionID string) error {
	sub, err := s.Stripe.GetSubscription(subscriptionID)
	if err != nil {
		return fmt.Errorf("failed to get subscription %v: %w", subscriptionID, err)
	}
	record := models.Subscription{
		CustomerID:         customerID,
		SubscriptionID:     sub.ID,
		Status:             string(sub.Status),
		CurrentPeriodStart: sub.CurrentPeriodStart,
		CurrentPeriodEnd:   sub.CurrentPeriodEnd,
		CancelAtPeriodEnd:  sub.CancelAtPeriodEnd,
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		record.PriceID = sub.Items.Data[0].Price.ID
	}
	if err := s.Store.UpsertSubscription(ctx, record); err != nil {
		return err
	}
	logger.Info(
		"synced subscription",
		zap.String("customerId", customerID),
		zap.String("subscriptionId", sub.ID),
		zap.String("status", record.Status),
	)
	return nil
}

func (s *Service) idempotencyKey() string {
	if s.NewIdempotencyKey != nil {
		return s.NewIdempotencyKey()
	}
	return uuid.NewString()
}

func (s *Service) logger() *zap.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return zap.NewNop()
}
