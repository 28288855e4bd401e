package auth

import (
	"context"
	"errors"

	"talentbook-middleware/models"
)

// ErrNoSession means the caller is not signed in.
var ErrNoSession = errors.New("no active session")

type Session struct {
	Token string
	User  models.User
}

// SessionProvider hands out the caller's current session.
type SessionProvider interface {
	Session(ctx context.Context) (Session, error)
}

// Identity answers who the current caller is.
type Identity interface {
	CurrentUser(ctx context.Context) (models.User, error)
}

// TokenSession is a request-scoped session backed by the JWT taken from
// the session cookie. It satisfies both SessionProvider and Identity.
type TokenSession struct {
	Token string
	Users UserSource
}

func (s TokenSession) Session(ctx context.Context) (Session, error) {
	if s.Token == "" {
		return Session{}, ErrNoSession
	}
	user, err := s.Users.UserByJWT(ctx, s.Token)
	if err != nil {
		if errors.Is(err, ErrInvalidJWT) {
			return Session{}, ErrNoSession
		}
		return Session{}, err
	}
	return Session{Token: s.Token, User: user}, nil
}

func (s TokenSession) CurrentUser(ctx context.Context) (models.User, error) {
	sess, err := s.Session(ctx)
	if err != nil {
		return models.User{}, err
	}
	return sess.User, nil
}

// CatalogUserType maps the FusionAuth user_type onto the product catalog's
// audience tags.
func CatalogUserType(u models.User) string {
	switch u.UserType {
	case "company", "employer":
		return "employer"
	case "job_seeker":
		return "job_seeker"
	}
	return ""
}
