package userdata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"talentbook-middleware/models"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// ErrNotFound is returned by lookups that matched no row.
var ErrNotFound = errors.New("record not found")

// DB is the subset of pgxpool.Pool used by the store.
type DB interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// Store persists the Stripe mirror tables. Orders, subscriptions and
// customers are only written by the checkout function and the webhook;
// everything else reads.
type Store struct {
	db   DB
	pool *pgxpool.Pool
}

func New(db DB) *Store {
	return &Store{db: db}
}

// Connect opens a connection pool for connStr.
func Connect(ctx context.Context, connStr string) (*Store, error) {
	// https://github.com/jackc/pgx#example-usage
	pool, err := pgxpool.Connect(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	return &Store{db: pool, pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS stripe_customers (
		id BIGSERIAL PRIMARY KEY,
		user_id VARCHAR ( 36 ) NOT NULL,
		customer_id VARCHAR ( 255 ) NOT NULL UNIQUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		deleted_at TIMESTAMPTZ
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS stripe_customers_active_user
		ON stripe_customers (user_id) WHERE deleted_at IS NULL`,
	`CREATE TABLE IF NOT EXISTS stripe_orders (
		id BIGSERIAL PRIMARY KEY,
		checkout_session_id VARCHAR ( 255 ) NOT NULL UNIQUE,
		payment_intent_id VARCHAR ( 255 ) NOT NULL DEFAULT '',
		customer_id VARCHAR ( 255 ) NOT NULL,
		amount_subtotal BIGINT NOT NULL,
		amount_total BIGINT NOT NULL,
		currency VARCHAR ( 8 ) NOT NULL,
		payment_status VARCHAR ( 32 ) NOT NULL,
		status VARCHAR ( 32 ) NOT NULL DEFAULT 'completed',
		order_date TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS stripe_subscriptions (
		customer_id VARCHAR ( 255 ) PRIMARY KEY,
		subscription_id VARCHAR ( 255 ) NOT NULL DEFAULT '',
		price_id VARCHAR ( 255 ) NOT NULL DEFAULT '',
		status VARCHAR ( 32 ) NOT NULL,
		current_period_start BIGINT NOT NULL DEFAULT 0,
		current_period_end BIGINT NOT NULL DEFAULT 0,
		cancel_at_period_end BOOLEAN NOT NULL DEFAULT false,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// Migrate creates the tables if they don't exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range migrations {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

// OrderBySession returns the order written for a checkout session.
func (s *Store) OrderBySession(ctx context.Context, sessionID string) (models.Order, error) {
	o := models.Order{}
	err := s.db.QueryRow(
		ctx,
		`SELECT id, checkout_session_id, payment_intent_id, customer_id, amount_subtotal,
			amount_total, currency, payment_status, status, order_date
		FROM stripe_orders WHERE checkout_session_id=$1`,
		sessionID,
	).Scan(
		&o.ID,
		&o.CheckoutSessionID,
		&o.PaymentIntentID,
		&o.CustomerID,
		&o.AmountSubtotal,
		&o.AmountTotal,
		&o.Currency,
		&o.PaymentStatus,
		&o.Status,
		&o.OrderDate,
	)
	if err != nil {
		return o, notFound(err, "order for session %v", sessionID)
	}
	return o, nil
}

// CustomerByUser returns the live customer mapping for a user. Soft-deleted
// rows never match.
func (s *Store) CustomerByUser(ctx context.Context, userID string) (models.Customer, error) {
	c := models.Customer{}
	err := s.db.QueryRow(
		ctx,
		`SELECT user_id, customer_id, created_at, deleted_at
		FROM stripe_customers WHERE user_id=$1 AND deleted_at IS NULL`,
		userID,
	).Scan(&c.UserID, &c.CustomerID, &c.CreatedAt, &c.DeletedAt)
	if err != nil {
		return c, notFound(err, "customer for user %v", userID)
	}
	return c, nil
}

func (s *Store) SubscriptionByCustomer(ctx context.Context, customerID string) (models.Subscription, error) {
	sub := models.Subscription{}
	err := s.db.QueryRow(
		ctx,
		`SELECT customer_id, subscription_id, price_id, status, current_period_start,
			current_period_end, cancel_at_period_end
		FROM stripe_subscriptions WHERE customer_id=$1`,
		customerID,
	).Scan(
		&sub.CustomerID,
		&sub.SubscriptionID,
		&sub.PriceID,
		&sub.Status,
		&sub.CurrentPeriodStart,
		&sub.CurrentPeriodEnd,
		&sub.CancelAtPeriodEnd,
	)
	if err != nil {
		return sub, notFound(err, "subscription for customer %v", customerID)
	}
	return sub, nil
}

func (s *Store) InsertCustomer(ctx context.Context, userID, customerID string) error {
	_, err := s.db.Exec(
		ctx,
		"INSERT INTO stripe_customers (user_id, customer_id) VALUES ($1, $2)",
		userID,
		customerID,
	)
	if err != nil {
		return fmt.Errorf("failed to insert customer %v for user %v: %w", customerID, userID, err)
	}
	return nil
}

// SoftDeleteCustomer marks the live customer mapping of a user as deleted.
func (s *Store) SoftDeleteCustomer(ctx context.Context, userID string, at time.Time) error {
	tag, err := s.db.Exec(
		ctx,
		"UPDATE stripe_customers SET deleted_at=$2 WHERE user_id=$1 AND deleted_at IS NULL",
		userID,
		at,
	)
	if err != nil {
		return fmt.Errorf("failed to delete customer for user %v: %w", userID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("customer for user %v: %w", userID, ErrNotFound)
	}
	return nil
}

// InsertOrder records a completed one-time payment. Replayed webhook
// deliveries for the same session are ignored.
func (s *Store) InsertOrder(ctx context.Context, o models.Order) error {
	_, err := s.db.Exec(
		ctx,
		`INSERT INTO stripe_orders (checkout_session_id, payment_intent_id, customer_id,
			amount_subtotal, amount_total, currency, payment_status, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (checkout_session_id) DO NOTHING`,
		o.CheckoutSessionID,
		o.PaymentIntentID,
		o.CustomerID,
		o.AmountSubtotal,
		o.AmountTotal,
		o.Currency,
		o.PaymentStatus,
		o.Status,
	)
	if err != nil {
		return fmt.Errorf("failed to insert order for session %v: %w", o.CheckoutSessionID, err)
	}
	return nil
}

func (s *Store) UpsertSubscription(ctx context.Context, sub models.Subscription) error {
	_, err := s.db.Exec(
		ctx,
		`INSERT INTO stripe_subscriptions (customer_id, subscription_id, price_id, status,
			current_period_start, current_period_end, cancel_at_period_end, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (customer_id) DO UPDATE SET
			subscription_id = EXCLUDED.subscription_id,
			price_id = EXCLUDED.price_id,
			status = EXCLUDED.status,
			current_period_start = EXCLUDED.current_period_start,
			current_period_end = EXCLUDED.current_period_end,
			cancel_at_period_end = EXCLUDED.cancel_at_period_end,
			updated_at = now()`,
		sub.CustomerID,
		sub.SubscriptionID,
		sub.PriceID,
		sub.Status,
		sub.CurrentPeriodStart,
		sub.CurrentPeriodEnd,
		sub.CancelAtPeriodEnd,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert subscription for customer %v: %w", sub.CustomerID, err)
	}
	return nil
}

func notFound(err error, format string, args ...interface{}) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf(format+": %w", append(args, ErrNotFound)...)
	}
	return fmt.Errorf("failed to query "+format+": %w", append(args, err)...)
}
