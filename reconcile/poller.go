package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"talentbook-middleware/auth"
	"talentbook-middleware/models"
	"talentbook-middleware/userdata"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

var ErrMissingSessionReference = errors.New("no session id found")

var errNotYet = errors.New("checkout not processed yet")

// UnexpectedError wraps a panic raised while reconciling.
type UnexpectedError struct {
	Value interface{}
}

func (e *UnexpectedError) Error() string {
	return fmt.Sprintf("unexpected error: %v", e.Value)
}

// Store is the read side of the Stripe mirror tables. Lookups that match
// nothing return userdata.ErrNotFound.
type Store interface {
	OrderBySession(ctx context.Context, sessionID string) (models.Order, error)
	CustomerByUser(ctx context.Context, userID string) (models.Customer, error)
	SubscriptionByCustomer(ctx context.Context, customerID string) (models.Subscription, error)
}

const (
	DefaultInitialDelay    = 2 * time.Second
	DefaultInitialInterval = time.Second
	DefaultMaxAttempts     = 5
	DefaultMaxElapsed      = 20 * time.Second
)

// Poller reads back what the webhook wrote for a checkout session. It
// never writes.
type Poller struct {
	Store    Store
	Identity auth.Identity
	Logger   *zap.Logger

	// InitialDelay is waited before the first read to give the webhook a
	// head start.
	InitialDelay time.Duration
	// Subsequent reads back off exponentially from InitialInterval until
	// something is found, MaxAttempts reads were made or MaxElapsed passed.
	InitialInterval time.Duration
	MaxAttempts     int
	MaxElapsed      time.Duration

	OnState func(State)
}

// Reconcile looks up the order and subscription for sessionRef. Finding
// nothing is not an error: the result is NoneFound with StillProcessing set.
// Errors are reserved for a missing session reference, cancellation and
// unexpected panics.
func (p *Poller) Reconcile(ctx context.Context, sessionRef string) (res Result, err error) {
	m := newMachine(p.OnState)
	logger := p.logger().With(zap.String("sessionId", sessionRef))

	if strings.TrimSpace(sessionRef) == "" {
		m.to(Failed)
		return Result{}, ErrMissingSessionReference
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("reconciliation panicked", zap.Any("panic", r))
			m.to(Failed)
			res, err = Result{}, &UnexpectedError{Value: r}
		}
	}()

	m.to(Waiting)
	if err := wait(ctx, p.InitialDelay); err != nil {
		m.to(Failed)
		return Result{}, err
	}

	m.to(Querying)
	attempts := 0
	var last Result
	op := func() error {
		attempts++
		last = p.query(ctx, sessionRef, logger)
		if last.Kind == NoneFound {
			return errNotYet
		}
		return nil
	}
	notify := func(_ error, next time.Duration) {
		logger.Debug("checkout not processed yet", zap.Int("attempt", attempts), zap.Duration("retryIn", next))
	}

	if err := backoff.RetryNotify(op, p.policy(ctx), notify); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			m.to(Failed)
			return Result{}, ctxErr
		}
		logger.Info("checkout still processing", zap.Int("attempts", attempts))
		last.StillProcessing = true
	}

	m.to(Resolved)
	return last, nil
}

func (p *Poller) policy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	if b.InitialInterval <= 0 {
		b.InitialInterval = DefaultInitialInterval
	}
	b.MaxElapsedTime = p.MaxElapsed
	if b.MaxElapsedTime <= 0 {
		b.MaxElapsedTime = DefaultMaxElapsed
	}
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)
}

// query runs one read pass. Lookup failures are logged and count as
// absence so a slow webhook never looks like a failed payment.
func (p *Poller) query(ctx context.Context, sessionRef string, logger *zap.Logger) Result {
	var order *models.Order
	o, err := p.Store.OrderBySession(ctx, sessionRef)
	switch {
	case err == nil:
		order = &o
	case !errors.Is(err, userdata.ErrNotFound):
		logger.Error("error fetching order", zap.Error(err))
	}

	user, err := p.Identity.CurrentUser(ctx)
	if err != nil {
		if !errors.Is(err, auth.ErrNoSession) {
			logger.Error("error fetching user", zap.Error(err))
		}
		return newResult(order, nil)
	}

	customer, err := p.Store.CustomerByUser(ctx, user.ID)
	if err != nil {
		if !errors.Is(err, userdata.ErrNotFound) {
			logger.Error("error fetching customer", zap.String("userId", user.ID), zap.Error(err))
		}
		return newResult(order, nil)
	}

	var sub *models.Subscription
	s, err := p.Store.SubscriptionByCustomer(ctx, customer.CustomerID)
	switch {
	case err == nil:
		sub = &s
	case !errors.Is(err, userdata.ErrNotFound):
		logger.Error("error fetching subscription", zap.String("customerId", customer.CustomerID), zap.Error(err))
	}
	return newResult(order, sub)
}

func (p *Poller) logger() *zap.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return zap.NewNop()
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NewPoller returns a poller with the default timings.
func NewPoller(store Store, identity auth.Identity, logger *zap.Logger) *Poller {
	return &Poller{
		Store:           store,
		Identity:        identity,
		Logger:          logger,
		InitialDelay:    DefaultInitialDelay,
		InitialInterval: DefaultInitialInterval,
		MaxAttempts:     DefaultMaxAttempts,
		MaxElapsed:      DefaultMaxElapsed,
	}
}
