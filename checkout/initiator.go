package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"talentbook-middleware/auth"
	"talentbook-middleware/catalog"
	"talentbook-middleware/models"

	"go.uber.org/zap"
)

const maxResponseBody = 1 << 20

var (
	// ErrAuthRequired is returned when checkout starts without a session.
	ErrAuthRequired = errors.New("authentication required")
	// ErrBusy is returned while another checkout of the same initiator is
	// still outstanding.
	ErrBusy                   = errors.New("checkout already in progress")
	ErrCheckoutCreationFailed = errors.New("checkout creation failed")
)

const (
	msgLoginRequired  = "Please log in to continue with checkout"
	msgCreationFailed = "Failed to create checkout session"
	msgNoURL          = "No checkout URL received"
)

// CreationError carries the message shown to the user when the checkout
// function could not produce a session.
type CreationError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *CreationError) Error() string {
	return e.Message
}

func (e *CreationError) Unwrap() error {
	return e.Err
}

func (e *CreationError) Is(target error) bool {
	return target == ErrCheckoutCreationFailed
}

// Redirector performs the full-page navigation to the hosted checkout.
type Redirector interface {
	Redirect(url string)
}

type RedirectFunc func(url string)

func (f RedirectFunc) Redirect(url string) { f(url) }

// Handlers are the host callbacks. OnAuthRequired lets the host show a
// login prompt instead of an error; when it is nil the condition is
// reported through OnError.
type Handlers struct {
	OnError        func(message string)
	OnAuthRequired func()
}

// Guard is the busy flag of an initiator. Hosts that build a fresh
// Initiator per request share one Guard per user instead.
type Guard struct {
	busy atomic.Bool
}

func (g *Guard) Busy() bool { return g.busy.Load() }

func (g *Guard) acquire() bool { return g.busy.CompareAndSwap(false, true) }

func (g *Guard) release() { g.busy.Store(false) }

// Initiator asks the checkout function for a hosted checkout session and
// redirects the caller to it.
type Initiator struct {
	FunctionURL string
	// Origin prefixes the default success and cancel urls.
	Origin     string
	Sessions   auth.SessionProvider
	Redirector Redirector
	Handlers   Handlers
	HTTPClient *http.Client
	Logger     *zap.Logger
	Guard      *Guard

	own Guard
}

func (i *Initiator) guard() *Guard {
	if i.Guard != nil {
		return i.Guard
	}
	return &i.own
}

// Busy reports whether a checkout is outstanding, so hosts can disable the
// control that triggers it.
func (i *Initiator) Busy() bool {
	return i.guard().Busy()
}

// Initiate starts a checkout for product. Empty successURL or cancelURL fall
// back to the same-origin defaults. On success the Redirector is called
// exactly once; every failure is also reported through the Handlers. No
// retry is attempted.
func (i *Initiator) Initiate(ctx context.Context, product catalog.Product, successURL, cancelURL string) error {
	g := i.guard()
	if !g.acquire() {
		return ErrBusy
	}
	defer g.release()

	logger := i.logger().With(zap.String("priceId", product.PriceID))

	sess, err := i.Sessions.Session(ctx)
	if err != nil {
		logger.Info("checkout requires login", zap.Error(err))
		if i.Handlers.OnAuthRequired != nil {
			i.Handlers.OnAuthRequired()
		} else {
			i.reportError(msgLoginRequired)
		}
		return ErrAuthRequired
	}

	if successURL == "" {
		successURL = i.Origin + "/checkout/success?session_id=" + models.CheckoutSessionPlaceholder
	}
	if cancelURL == "" {
		cancelURL = i.Origin + "/checkout/cancel"
	}

	url, err := i.createSession(ctx, sess.Token, models.CreateCheckoutSessionRequest{
		PriceID:    product.PriceID,
		Mode:       product.Mode,
		SuccessURL: successURL,
		CancelURL:  cancelURL,
	})
	if err != nil {
		logger.Error("checkout error", zap.String("userId", sess.User.ID), zap.Error(err))
		i.reportError(err.Error())
		return err
	}

	logger.Info("redirecting to checkout", zap.String("userId", sess.User.ID))
	i.Redirector.Redirect(url)
	return nil
}

func (i *Initiator) createSession(ctx context.Context, token string, body models.CreateCheckoutSessionRequest) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", &CreationError{Message: msgCreationFailed, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, i.FunctionURL, bytes.NewReader(payload))
	if err != nil {
		return "", &CreationError{Message: msgCreationFailed, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := i.httpClient().Do(req)
	if err != nil {
		return "", &CreationError{Message: msgCreationFailed, Err: err}
	}
	defer resp.Body.Close()

	var result struct {
		URL   string `json:"url"`
		Error string `json:"error"`
	}
	decodeErr := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(&result)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := result.Error
		if msg == "" {
			msg = msgCreationFailed
		}
		return "", &CreationError{StatusCode: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return "", &CreationError{
			StatusCode: resp.StatusCode,
			Message:    msgCreationFailed,
			Err:        fmt.Errorf("invalid checkout response: %w", decodeErr),
		}
	}
	if result.URL == "" {
		return "", &CreationError{StatusCode: resp.StatusCode, Message: msgNoURL}
	}
	return result.URL, nil
}

func (i *Initiator) reportError(msg string) {
	if i.Handlers.OnError != nil {
		i.Handlers.OnError(msg)
	}
}

func (i *Initiator) httpClient() *http.Client {
	if i.HTTPClient != nil {
		return i.HTTPClient
	}
	return &http.Client{Timeout: 10 * time.Second}
}

func (i *Initiator) logger() *zap.Logger {
	if i.Logger != nil {
		return i.Logger
	}
	return zap.NewNop()
}
