package routes

import (
	"errors"
	"net/http"
	"net/url"
	"path/filepath"

	"talentbook-middleware/auth"
	"talentbook-middleware/config"
	"talentbook-middleware/helpers"
	"talentbook-middleware/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// GetConfigViaRouteOrigin sets the CORS headers that will allow HttpOnly
// cookies to work when requests are made via the web browser, as well as
// automatically retrieving the app config that corresponds to the request
// origin
func GetConfigViaRouteOrigin(c *gin.Context, conf config.Config, logger *zap.Logger) (app config.App, success bool) {
	originHeader := c.Request.Header.Get("Origin")
	if originHeader == "" {
		originHeader = c.Request.Header.Get("Referer")
		if originHeader == "" {
			return app, false
		}
	}
	parsedURL, err := url.Parse(originHeader)
	if err != nil {
		return app, false
	}
	app, ok := conf.GetAppByOrigin(parsedURL.Host)
	if !ok {
		logger.Debug("unknown origin", zap.String("origin", parsedURL.Host))
		return app, false
	}
	allowOrigin(c, app)
	return app, true
}

func allowOrigin(c *gin.Context, app config.App) {
	c.Header("Access-Control-Allow-Origin", app.FullDomainURL)
	c.Header("Access-Control-Allow-Credentials", "true")
}

// GetJWTFromGin allows for quick retrieval of a JWT HttpOnly cookie from
// a Gin context
func GetJWTFromGin(c *gin.Context, app config.App) string {
	cookie, err := c.Cookie(app.JWT.CookieName)
	if err != nil {
		return ""
	}
	return cookie
}

// GetUserFromGin extracts the user via the JWT HttpOnly cookie and will
// set the gin response if there's an error
func (s *Server) GetUserFromGin(c *gin.Context, app config.App) (models.User, error) {
	jwt := GetJWTFromGin(c, app)
	if jwt == "" {
		helpers.Simple403(c)
		return models.User{}, auth.ErrNoSession
	}

	user, err := s.Users(app).UserByJWT(c.Request.Context(), jwt)
	if err != nil {
		if !errors.Is(err, auth.ErrInvalidJWT) {
			s.logger().Error("failed to resolve user", zap.Error(err))
		}
		helpers.Simple403(c)
		return models.User{}, auth.ErrNoSession
	}
	return user, nil
}

func (s *Server) session(c *gin.Context, app config.App) auth.TokenSession {
	return auth.TokenSession{Token: GetJWTFromGin(c, app), Users: s.Users(app)}
}

// LoggedIn allows the frontend to quickly check if the user is logged in
func (s *Server) LoggedIn(c *gin.Context, app config.App) {
	resp := models.LoggedInResponse{}

	user, err := s.session(c, app).CurrentUser(c.Request.Context())
	if err != nil {
		if !errors.Is(err, auth.ErrNoSession) {
			s.logger().Error("loggedin: couldn't get user", zap.Error(err))
		}
		c.JSON(http.StatusOK, resp)
		return
	}

	resp.LoggedIn = true
	resp.UserID = user.ID
	resp.UserEmail = user.Email
	resp.UserFullName = user.FullName
	resp.UserType = user.UserType
	c.JSON(http.StatusOK, resp)
}

// Login sends the browser to the FusionAuth login page, unless it already
// carries a valid session.
func (s *Server) Login(c *gin.Context) {
	origin := c.Request.Header.Get("Origin")
	if origin == "" {
		origin = c.Request.Header.Get("Referer")
	}
	app, ok := s.Conf.GetConfigForOrigin(origin)
	if !ok {
		app, ok = s.Conf.GetAppByOrigin(c.Request.Host)
	}
	if !ok {
		helpers.Simple404(c)
		return
	}

	if _, err := s.session(c, app).CurrentUser(c.Request.Context()); err == nil {
		c.Data(http.StatusOK, "text/plain", []byte("already logged in"))
		return
	}

	authURL, err := auth.BeginLogin(c.Request.Context(), app, s.States)
	if err != nil {
		s.logger().Error("failed to begin login", zap.String("appId", app.FusionAuthAppID), zap.Error(err))
		helpers.Simple500(c)
		return
	}
	c.Redirect(http.StatusFound, authURL)
}

// OauthCallback completes the authorization code flow, sets the JWT cookie
// and makes sure the user exists in Stripe.
func (s *Server) OauthCallback(c *gin.Context) {
	app, ok := s.Conf.GetConfigForAppID(c.Param("appId"))
	if !ok {
		helpers.Simple404(c)
		return
	}
	logger := s.logger().With(zap.String("appId", app.FusionAuthAppID))

	state := c.Query("state")
	code := c.Query("code")
	if state == "" || code == "" {
		logger.Info("oauth callback without state or code")
		helpers.Simple403(c)
		return
	}

	ctx := c.Request.Context()
	verifier, err := s.States.Take(ctx, state)
	if err != nil {
		logger.Info("oauth callback with unknown state", zap.Error(err))
		helpers.Simple403(c)
		return
	}

	user, jwt, err := auth.Login(ctx, app, s.Users(app), models.OauthState{
		State:    state,
		Code:     code,
		Verifier: verifier,
	})
	if err != nil {
		logger.Error("err login", zap.Error(err))
		helpers.Simple403(c)
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(
		app.JWT.CookieName,
		jwt,
		app.JWT.CookieMaxAgeSeconds,
		"/",
		app.JWT.CookieDomain,
		app.JWT.CookieSetSecure,
		true,
	)

	if _, err := s.payments(app).PropagateUserToStripe(ctx, user); err != nil {
		logger.Error("failed to push user to stripe", zap.String("userId", user.ID), zap.Error(err))
	}

	s.Notifier.Publish(auth.Event{Kind: auth.SignedIn, User: user})
	c.Redirect(http.StatusFound, app.AuthCallbackRedirectURL)
}

// Logout clears the JWT cookie and tells subscribers the user signed out.
func (s *Server) Logout(c *gin.Context, app config.App) {
	user, err := s.session(c, app).CurrentUser(c.Request.Context())

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(app.JWT.CookieName, "", -1, "/", app.JWT.CookieDomain, app.JWT.CookieSetSecure, true)

	if err == nil {
		s.Notifier.Publish(auth.Event{Kind: auth.SignedOut, User: user})
	}
	c.JSON(http.StatusOK, models.LoggedInResponse{})
}

// Asset serves the static files used by the checkout pages.
func Asset(c *gin.Context) {
	name := filepath.Base(c.Param("file"))
	if name == "." || name == "/" {
		helpers.Simple404(c)
		return
	}
	c.File(filepath.Join("assets", name))
}
