package models

import "time"

// CheckoutSessionPlaceholder is substituted by Stripe with the real checkout
// session id when redirecting back to the success url.
const CheckoutSessionPlaceholder = "{CHECKOUT_SESSION_ID}"

const (
	ModePayment      = "payment"
	ModeSubscription = "subscription"
)

const (
	SubscriptionStatusActive     = "active"
	SubscriptionStatusTrialing   = "trialing"
	SubscriptionStatusPastDue    = "past_due"
	SubscriptionStatusCanceled   = "canceled"
	SubscriptionStatusIncomplete = "incomplete"
	SubscriptionStatusUnpaid     = "unpaid"
)

type OauthState struct {
	State    string `json:"state"`
	Code     string `json:"code"`
	Verifier string
}

type LoggedInResponse struct {
	LoggedIn     bool   `json:"loggedIn"`
	UserID       string `json:"userId"`
	UserEmail    string `json:"userEmail"`
	UserFullName string `json:"userFullName"`
	UserType     string `json:"userType"`
}

// User is the identity resolved from a FusionAuth JWT.
type User struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"fullName"`
	UserType string `json:"userType"` // job_seeker or company
}

// CreateCheckoutSessionRequest is the body accepted by the checkout
// function endpoint.
type CreateCheckoutSessionRequest struct {
	PriceID    string `json:"price_id" binding:"required"`
	Mode       string `json:"mode" binding:"required,oneof=payment subscription"`
	SuccessURL string `json:"success_url" binding:"required,url"`
	CancelURL  string `json:"cancel_url" binding:"required,url"`
}

type CreateCheckoutSessionResponse struct {
	URL string `json:"url,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// Customer maps a FusionAuth user to a Stripe customer. Rows with DeletedAt
// set are never returned by lookups.
type Customer struct {
	UserID     string     `json:"user_id"`
	CustomerID string     `json:"customer_id"`
	CreatedAt  time.Time  `json:"created_at"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty"`
}

// Order is written by the webhook once a one-time payment completes.
type Order struct {
	ID                int64     `json:"id"`
	CheckoutSessionID string    `json:"checkout_session_id"`
	PaymentIntentID   string    `json:"payment_intent_id"`
	CustomerID        string    `json:"customer_id"`
	AmountSubtotal    int64     `json:"amount_subtotal"`
	AmountTotal       int64     `json:"amount_total"`
	Currency          string    `json:"currency"`
	PaymentStatus     string    `json:"payment_status"`
	Status            string    `json:"status"`
	OrderDate         time.Time `json:"order_date"`
}

// Subscription mirrors the Stripe subscription of a customer. Period bounds
// are unix seconds as delivered by Stripe.
type Subscription struct {
	CustomerID         string `json:"customer_id"`
	SubscriptionID     string `json:"subscription_id"`
	PriceID            string `json:"price_id"`
	Status             string `json:"status"`
	CurrentPeriodStart int64  `json:"current_period_start"`
	CurrentPeriodEnd   int64  `json:"current_period_end"`
	CancelAtPeriodEnd  bool   `json:"cancel_at_period_end"`
}

func (s Subscription) IsActive() bool {
	return s.Status == SubscriptionStatusActive
}

// PeriodEnd returns the end of the current billing period, or the zero time
// when Stripe has not reported one yet.
func (s Subscription) PeriodEnd() time.Time {
	if s.CurrentPeriodEnd == 0 {
		return time.Time{}
	}
	return time.Unix(s.CurrentPeriodEnd, 0).UTC()
}
