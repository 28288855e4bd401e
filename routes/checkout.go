package routes

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"talentbook-middleware/auth"
	"talentbook-middleware/catalog"
	"talentbook-middleware/checkout"
	"talentbook-middleware/config"
	"talentbook-middleware/helpers"
	"talentbook-middleware/htmltemplates"
	"talentbook-middleware/reconcile"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// resolvedSession hands an already verified session to the initiator.
type resolvedSession auth.Session

func (r resolvedSession) Session(context.Context) (auth.Session, error) {
	return auth.Session(r), nil
}

// CheckoutStart begins a checkout for the product in the path. Browsers are
// sent to Stripe with a 303; JSON clients get {url} instead.
func (s *Server) CheckoutStart(c *gin.Context, app config.App) {
	product, ok := catalog.ByID(c.Param("productId"))
	if !ok {
		helpers.Simple404(c)
		return
	}

	ctx := c.Request.Context()
	sess, err := s.session(c, app).Session(ctx)
	if errors.Is(err, auth.ErrNoSession) {
		s.authRequired(c, app)
		return
	}
	if err != nil {
		s.logger().Error("failed to resolve session", zap.Error(err))
		helpers.JSONError(c, http.StatusInternalServerError, "Failed to create checkout session")
		return
	}

	var message string
	in := &checkout.Initiator{
		FunctionURL: app.Checkout.FunctionURL,
		Origin:      app.FullDomainURL,
		Sessions:    resolvedSession(sess),
		Redirector: checkout.RedirectFunc(func(u string) {
			if strings.Contains(c.GetHeader("Accept"), "application/json") {
				c.JSON(http.StatusOK, gin.H{"url": u})
				return
			}
			c.Redirect(http.StatusSeeOther, u)
		}),
		Handlers: checkout.Handlers{
			OnError:        func(m string) { message = m },
			OnAuthRequired: func() { s.authRequired(c, app) },
		},
		HTTPClient: s.HTTPClient,
		Logger:     s.logger(),
		Guard:      s.guardFor(sess.User.ID),
	}

	err = in.Initiate(ctx, product, app.SuccessURL(), app.CancelURL())
	switch {
	case err == nil, errors.Is(err, checkout.ErrAuthRequired):
	case errors.Is(err, checkout.ErrBusy):
		helpers.JSONError(c, http.StatusConflict, err.Error())
	default:
		helpers.JSONError(c, http.StatusBadGateway, message)
	}
}

func (s *Server) authRequired(c *gin.Context, app config.App) {
	c.JSON(http.StatusUnauthorized, gin.H{
		"auth_required": true,
		"login_url":     app.FullDomainURL + "/auth/login",
	})
}

func (s *Server) poller(c *gin.Context, app config.App) *reconcile.Poller {
	p := reconcile.NewPoller(s.Store, s.session(c, app), s.logger())
	p.InitialDelay = app.Checkout.InitialDelay
	p.MaxAttempts = app.Checkout.MaxAttempts
	p.MaxElapsed = app.Checkout.MaxElapsed
	return p
}

func pollURL(sessionID string) string {
	q := url.Values{}
	q.Set("session_id", sessionID)
	q.Set("poll", "1")
	return "/checkout/success?" + q.Encode()
}

// CheckoutSuccess is where Stripe sends the browser back to. The first hit
// renders the loading page, which immediately reloads with poll=1; that
// request runs the reconciliation and renders its outcome.
func (s *Server) CheckoutSuccess(c *gin.Context, app config.App) {
	sessionID := c.Query("session_id")
	if sessionID != "" && c.Query("poll") == "" {
		s.html(c, http.StatusOK, htmltemplates.LoadingView(pollURL(sessionID), 0))
		return
	}

	res, err := s.poller(c, app).Reconcile(c.Request.Context(), sessionID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, reconcile.ErrMissingSessionReference) {
			status = http.StatusBadRequest
		}
		s.html(c, status, htmltemplates.ErrorView(err))
		return
	}
	s.html(c, http.StatusOK, htmltemplates.SuccessView(res, pollURL(sessionID), app.Checkout.PageRefreshSeconds))
}

// CheckoutStatus is the JSON form of CheckoutSuccess for clients that render
// the confirmation themselves.
func (s *Server) CheckoutStatus(c *gin.Context, app config.App) {
	res, err := s.poller(c, app).Reconcile(c.Request.Context(), c.Query("session_id"))
	if err != nil {
		if errors.Is(err, reconcile.ErrMissingSessionReference) {
			helpers.JSONError(c, http.StatusBadRequest, "No session ID found")
			return
		}
		helpers.JSONError(c, http.StatusInternalServerError, htmltemplates.ErrorView(err).ErrorMessage)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) CheckoutCancel(c *gin.Context, _ config.App) {
	s.html(c, http.StatusOK, htmltemplates.CancelView())
}

func (s *Server) html(c *gin.Context, status int, v htmltemplates.View) {
	if err := helpers.HTML(c, status, v); err != nil {
		s.logger().Error("failed to render page", zap.String("page", v.Name), zap.Error(err))
	}
}
