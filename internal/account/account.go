package account

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/studysync/studysync/internal/api"
	"github.com/studysync/studysync/internal/session"
)

// ErrInvalidCredentials is returned when the backend rejects a sign-in.
var ErrInvalidCredentials = errors.New("invalid email or password")

// Service owns the sign-in lifecycle: exchanging credentials for a bearer
// token, persisting the session, and keeping the cached profile fresh.
type Service struct {
	client *api.Client
	store  session.Store
}

func NewService(client *api.Client, store session.Store) *Service {
	return &Service{client: client, store: store}
}

type signInResponse struct {
	Token string `json:"token"`
	User  struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		Role string `json:"role"`
	} `json:"user"`
}

// SignIn exchanges credentials for a session and persists it. The cached
// profile is fetched best-effort; sign-in succeeds without it.
func (s *Service) SignIn(ctx context.Context, email, password string) (*session.Session, error) {
	var resp signInResponse
	err := s.client.Post(ctx, "/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, &resp)
	if err != nil {
		var apiErr *api.APIError
		if errors.As(err, &apiErr) || errors.Is(err, api.ErrAuthExpired) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("sign in: %w", err)
	}

	if resp.Token == "" || resp.User.ID == "" || resp.User.Name == "" {
		return nil, fmt.Errorf("sign in: backend returned an incomplete session")
	}

	// Cross-check the token claims against the declared identity. The claims
	// are unverified (the backend owns the key), but a token minted for a
	// different user must never be persisted.
	if claims, err := session.ParseClaims(resp.Token); err == nil {
		if claims.UserID != "" && claims.UserID != resp.User.ID {
			return nil, fmt.Errorf("sign in: token subject %s does not match user %s",
				claims.UserID, resp.User.ID)
		}
	}

	sess := &session.Session{
		Token:    resp.Token,
		UserID:   resp.User.ID,
		UserName: resp.User.Name,
		Role:     resp.User.Role,
	}

	if err := s.store.Set(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to persist session: %w", err)
	}

	if profile, err := s.fetchProfile(ctx); err == nil {
		sess.Profile = profile
		if err := s.store.Set(ctx, sess); err != nil {
			log.Warn().Err(err).Msg("failed to cache profile")
		}
	} else {
		log.Debug().Err(err).Msg("profile fetch skipped")
	}

	log.Info().Str("user_id", sess.UserID).Msg("signed in")

	return sess, nil
}

// SignOut revokes the token server-side (best effort) and always clears the
// local session.
func (s *Service) SignOut(ctx context.Context) error {
	if err := s.client.Post(ctx, "/auth/logout", nil, nil); err != nil {
		// A dead backend or an already-expired token must not block a local
		// sign-out.
		log.Debug().Err(err).Msg("server-side sign-out failed, clearing locally")
	}

	if err := s.store.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}

	log.Info().Msg("signed out")

	return nil
}

// Profile returns the cached profile, refetching when refresh is set or no
// cache exists. A 401 clears the session and reports ErrAuthExpired.
func (s *Service) Profile(ctx context.Context, refresh bool) (json.RawMessage, error) {
	sess, err := s.store.Get(ctx)
	if err != nil {
		return nil, err
	}

	if !refresh && len(sess.Profile) > 0 {
		return sess.Profile, nil
	}

	profile, err := s.fetchProfile(ctx)
	if err != nil {
		if errors.Is(err, api.ErrAuthExpired) {
			if clearErr := s.store.Clear(ctx); clearErr != nil {
				log.Warn().Err(clearErr).Msg("failed to clear expired session")
			}
		}
		return nil, err
	}

	sess.Profile = profile
	if err := s.store.Set(ctx, sess); err != nil {
		log.Warn().Err(err).Msg("failed to cache profile")
	}

	return profile, nil
}

func (s *Service) fetchProfile(ctx context.Context) (json.RawMessage, error) {
	var profile json.RawMessage
	if err := s.client.Get(ctx, "/me", &profile); err != nil {
		return nil, fmt.Errorf("fetch profile: %w", err)
	}
	return profile, nil
}
