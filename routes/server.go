package routes

import (
	"net/http"
	"sync"
	"time"

	"talentbook-middleware/auth"
	"talentbook-middleware/checkout"
	"talentbook-middleware/config"
	"talentbook-middleware/helpers"
	"talentbook-middleware/payments"
	"talentbook-middleware/reconcile"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Store is everything the HTTP surface needs from the database. The
// userdata store satisfies it.
type Store interface {
	reconcile.Store
	payments.Store
}

// Server wires the per-app config to the checkout components.
type Server struct {
	Conf       config.Config
	Store      Store
	States     auth.StateStore
	Notifier   *auth.Notifier
	Logger     *zap.Logger
	HTTPClient *http.Client

	// Users and Stripe default to the app's FusionAuth client and a Stripe
	// client for the app's secret key.
	Users  func(app config.App) auth.UserSource
	Stripe func(app config.App) payments.StripeAPI

	mu     sync.Mutex
	guards map[string]*checkout.Guard

	unsubscribe func()
}

func NewServer(conf config.Config, store Store, states auth.StateStore, notifier *auth.Notifier, logger *zap.Logger) *Server {
	stripeClients := map[string]payments.StripeAPI{}
	for _, app := range conf.Applications {
		stripeClients[app.FusionAuthAppID] = payments.NewStripeAPI(app.StripeSecretKey)
	}

	s := &Server{
		Conf:       conf,
		Store:      store,
		States:     states,
		Notifier:   notifier,
		Logger:     logger,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
		Users: func(app config.App) auth.UserSource {
			return auth.FusionAuthUsers{Client: app.FusionAuthClient}
		},
		Stripe: func(app config.App) payments.StripeAPI {
			return stripeClients[app.FusionAuthAppID]
		},
		guards: map[string]*checkout.Guard{},
	}
	s.unsubscribe = notifier.Subscribe(s.onAuthEvent)
	return s
}

// Close detaches the server from the notifier.
func (s *Server) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}

// guardFor returns the checkout busy flag of a user, creating it on first
// use.
func (s *Server) guardFor(userID string) *checkout.Guard {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.guards[userID]
	if !ok {
		g = &checkout.Guard{}
		s.guards[userID] = g
	}
	return g
}

func (s *Server) onAuthEvent(e auth.Event) {
	s.logger().Info("auth change", zap.Stringer("kind", e.Kind), zap.String("userId", e.User.ID))
	if e.Kind != auth.SignedOut {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.guards, e.User.ID)
}

func (s *Server) payments(app config.App) *payments.Service {
	return &payments.Service{
		Stripe:        s.Stripe(app),
		Store:         s.Store,
		Logger:        s.logger(),
		WebhookSecret: app.StripeWebhookSecret,
	}
}

func (s *Server) logger() *zap.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return zap.NewNop()
}

// withOrigin resolves the app from the Origin or Referer header and sets
// its CORS headers before calling h.
func (s *Server) withOrigin(h func(*gin.Context, config.App)) gin.HandlerFunc {
	return func(c *gin.Context) {
		app, ok := GetConfigViaRouteOrigin(c, s.Conf, s.logger())
		if !ok {
			helpers.Simple404(c)
			return
		}
		h(c, app)
	}
}

// withHost resolves the app from the request host. It serves routes that
// are reached by full-page navigation or server to server, where no usable
// Origin exists.
func (s *Server) withHost(h func(*gin.Context, config.App)) gin.HandlerFunc {
	return func(c *gin.Context) {
		app, ok := s.Conf.GetAppByOrigin(c.Request.Host)
		if !ok {
			helpers.Simple404(c)
			return
		}
		h(c, app)
	}
}

// preflight answers CORS OPTIONS requests for known origins.
func (s *Server) preflight(methods string) gin.HandlerFunc {
	return s.withOrigin(func(c *gin.Context, _ config.App) {
		helpers.SetCORSMethods(c, methods)
		helpers.Simple200OK(c)
	})
}

// Register mounts every route on r.
func (s *Server) Register(r *gin.Engine) {
	r.GET("/ping", s.withOrigin(func(c *gin.Context, _ config.App) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	}))
	r.GET("/assets/:file", Asset)

	r.OPTIONS("/api/products", s.preflight(helpers.CORSMethodsOptGet))
	r.GET("/api/products", s.withOrigin(s.Products))
	r.OPTIONS("/api/substatus", s.preflight(helpers.CORSMethodsOptGet))
	r.GET("/api/substatus", s.withOrigin(s.SubStatus))

	r.GET("/auth/login", s.Login)
	r.GET("/auth/oauth-cb/:appId", s.OauthCallback)
	r.OPTIONS("/auth/loggedin", s.preflight(helpers.CORSMethodsOptGet))
	r.GET("/auth/loggedin", s.withOrigin(s.LoggedIn))
	r.OPTIONS("/auth/logout", s.preflight(helpers.CORSMethodsOptPost))
	r.POST("/auth/logout", s.withOrigin(s.Logout))

	r.OPTIONS("/checkout/start/:productId", s.preflight(helpers.CORSMethodsOptPost))
	r.POST("/checkout/start/:productId", s.withOrigin(s.CheckoutStart))
	r.GET("/checkout/success", s.withHost(s.CheckoutSuccess))
	r.GET("/checkout/cancel", s.withHost(s.CheckoutCancel))
	r.OPTIONS("/api/checkout/status", s.preflight(helpers.CORSMethodsOptGet))
	r.GET("/api/checkout/status", s.withOrigin(s.CheckoutStatus))

	r.OPTIONS("/functions/v1/stripe-checkout", s.preflight(helpers.CORSMethodsOptPost))
	r.POST("/functions/v1/stripe-checkout", s.withHost(s.CheckoutFunction))
	r.POST("/functions/v1/stripe-webhook", s.withHost(s.StripeWebhook))
}
