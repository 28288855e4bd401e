package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"talentbook-middleware/config"

	cv "github.com/nirasan/go-oauth-pkce-code-verifier"
	"github.com/redis/go-redis/v9"
	"github.com/thanhpk/randstr"
	"golang.org/x/oauth2"
)

const LoginStateTTL = 10 * time.Minute

var ErrUnknownState = errors.New("unknown or expired oauth state")

// StateStore keeps the PKCE verifier of each pending login, keyed by the
// oauth state parameter. Take consumes the entry.
type StateStore interface {
	Save(ctx context.Context, state, verifier string) error
	Take(ctx context.Context, state string) (string, error)
}

type RedisStateStore struct {
	Client *redis.Client
	Prefix string
}

func NewRedisStateStore(conf config.Redis) *RedisStateStore {
	return &RedisStateStore{
		Client: redis.NewClient(&redis.Options{
			Addr:     conf.Addr,
			Password: conf.Password,
			DB:       conf.DB,
		}),
		Prefix: "tb:oauth:",
	}
}

func (r *RedisStateStore) Save(ctx context.Context, state, verifier string) error {
	if err := r.Client.Set(ctx, r.Prefix+state, verifier, LoginStateTTL).Err(); err != nil {
		return fmt.Errorf("failed to store oauth state: %w", err)
	}
	return nil
}

func (r *RedisStateStore) Take(ctx context.Context, state string) (string, error) {
	verifier, err := r.Client.GetDel(ctx, r.Prefix+state).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrUnknownState
	}
	if err != nil {
		return "", fmt.Errorf("failed to load oauth state: %w", err)
	}
	return verifier, nil
}

// BeginLogin mints a fresh state and PKCE verifier, remembers the verifier
// and returns the FusionAuth authorize url to send the browser to.
func BeginLogin(ctx context.Context, app config.App, store StateStore) (string, error) {
	if app.OauthConfig == nil {
		return "", fmt.Errorf("oauth is not configured for app %v", app.FusionAuthAppID)
	}
	state := randstr.Hex(16)
	codeVerif, err := cv.CreateCodeVerifier()
	if err != nil {
		return "", fmt.Errorf("failed to initialize code verifier: %w", err)
	}
	if err := store.Save(ctx, state, codeVerif.String()); err != nil {
		return "", err
	}
	return app.OauthConfig.AuthCodeURL(
		state,
		oauth2.SetAuthURLParam("response_type", "code"),
		oauth2.SetAuthURLParam("code_challenge", codeVerif.CodeChallengeS256()),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	), nil
}
