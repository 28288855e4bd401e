package auth

import (
	"context"
	"errors"
	"fmt"

	"talentbook-middleware/config"
	"talentbook-middleware/models"

	"github.com/FusionAuth/go-client/pkg/fusionauth"
	"golang.org/x/oauth2"
)

var ErrInvalidJWT = errors.New("invalid jwt")

// UserSource resolves a session token to the user it was issued for.
type UserSource interface {
	UserByJWT(ctx context.Context, jwt string) (models.User, error)
}

// FusionAuthUsers resolves users through the FusionAuth user API.
type FusionAuthUsers struct {
	Client *fusionauth.FusionAuthClient
}

func (f FusionAuthUsers) UserByJWT(_ context.Context, jwt string) (models.User, error) {
	if jwt == "" {
		return models.User{}, ErrInvalidJWT
	}
	resp, faErrs, err := f.Client.RetrieveUserUsingJWT(jwt)
	if err != nil {
		return models.User{}, fmt.Errorf("failed to retrieve user by jwt: %w", err)
	}
	if faErrs != nil {
		return models.User{}, fmt.Errorf("%w: %v", ErrInvalidJWT, faErrs)
	}
	if resp == nil || resp.User.Id == "" {
		return models.User{}, ErrInvalidJWT
	}
	return fromFusionAuth(resp.User), nil
}

func fromFusionAuth(u fusionauth.User) models.User {
	user := models.User{
		ID:       u.Id,
		Email:    u.Email,
		FullName: u.FullName,
	}
	if t, ok := u.Data["user_type"].(string); ok {
		user.UserType = t
	}
	return user
}

// GetUserByJWT looks the user up through the app's FusionAuth client.
func GetUserByJWT(ctx context.Context, app config.App, jwt string) (models.User, error) {
	return FusionAuthUsers{Client: app.FusionAuthClient}.UserByJWT(ctx, jwt)
}

// GetOauthRedirectURL is where FusionAuth sends the browser after login.
func GetOauthRedirectURL(app config.App) string {
	return fmt.Sprintf("%v/auth/oauth-cb/%v", app.FullDomainURL, app.FusionAuthAppID)
}

// NewOauthConfig builds the authorization code flow config for an app.
func NewOauthConfig(app config.App) *oauth2.Config {
	return &oauth2.Config{
		RedirectURL:  GetOauthRedirectURL(app),
		ClientID:     app.FusionAuthOauthClientID,
		ClientSecret: app.FusionAuthOauthClientSecret,
		Scopes:       []string{"openid"},
		Endpoint: oauth2.Endpoint{
			AuthURL:   fmt.Sprintf("%v/oauth2/authorize", app.FusionAuthPublicHost),
			TokenURL:  fmt.Sprintf("%v/oauth2/token", app.FusionAuthPublicHost),
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}
}

// Login exchanges an authorization code (with its PKCE verifier) for an
// access token and resolves the user it belongs to. The access token is the
// JWT stored in the session cookie.
func Login(ctx context.Context, app config.App, users UserSource, oauths models.OauthState) (models.User, string, error) {
	if app.OauthConfig == nil {
		return models.User{}, "", fmt.Errorf("oauth is not configured for app %v", app.FusionAuthAppID)
	}
	token, err := app.OauthConfig.Exchange(
		ctx,
		oauths.Code,
		oauth2.SetAuthURLParam("code_verifier", oauths.Verifier),
	)
	if err != nil {
		return models.User{}, "", fmt.Errorf("failed to exchange code: %w", err)
	}
	user, err := users.UserByJWT(ctx, token.AccessToken)
	if err != nil {
		return models.User{}, "", err
	}
	return user, token.AccessToken, nil
}
