package routes

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"talentbook-middleware/auth"
	"talentbook-middleware/config"
	"talentbook-middleware/helpers"
	"talentbook-middleware/models"
	"talentbook-middleware/payments"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// stripe caps webhook payloads well below this
const maxWebhookBody = 65536

func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
}

// CheckoutFunction creates a Stripe checkout session for the bearer of the
// Authorization header and answers {url} or {error}.
func (s *Server) CheckoutFunction(c *gin.Context, app config.App) {
	if origin := c.GetHeader("Origin"); origin != "" {
		if _, ok := s.Conf.GetConfigForOrigin(origin); ok {
			allowOrigin(c, app)
		}
	}

	token := bearerToken(c)
	if token == "" {
		helpers.JSONError(c, http.StatusUnauthorized, "missing authorization")
		return
	}
	ctx := c.Request.Context()
	user, err := s.Users(app).UserByJWT(ctx, token)
	if err != nil {
		if !errors.Is(err, auth.ErrInvalidJWT) {
			s.logger().Error("failed to resolve checkout user", zap.Error(err))
		}
		helpers.JSONError(c, http.StatusUnauthorized, "invalid authorization")
		return
	}

	var req models.CreateCheckoutSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.JSONError(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	url, err := s.payments(app).CreateCheckoutSession(ctx, user, req)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, models.CreateCheckoutSessionResponse{URL: url})
	case errors.Is(err, payments.ErrUnknownPrice), errors.Is(err, payments.ErrModeMismatch):
		helpers.JSONError(c, http.StatusBadRequest, err.Error())
	default:
		s.logger().Error("failed to create checkout session", zap.String("userId", user.ID), zap.Error(err))
		helpers.JSONError(c, http.StatusInternalServerError, "Failed to create checkout session")
	}
}

// StripeWebhook verifies and applies a Stripe event. A failed apply answers
// 500 so Stripe retries the delivery.
func (s *Server) StripeWebhook(c *gin.Context, app config.App) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		helpers.JSONError(c, http.StatusServiceUnavailable, "failed to read body")
		return
	}

	svc := s.payments(app)
	event, err := svc.ConstructEvent(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		s.logger().Info("rejected webhook", zap.Error(err))
		helpers.JSONError(c, http.StatusBadRequest, "invalid signature")
		return
	}

	if err := svc.HandleEvent(c.Request.Context(), event); err != nil {
		s.logger().Error("failed to handle webhook", zap.String("eventId", event.ID), zap.String("eventType", event.Type), zap.Error(err))
		helpers.JSONError(c, http.StatusInternalServerError, "failed to handle event")
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}
