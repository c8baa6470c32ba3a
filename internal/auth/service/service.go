package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"lead_triage_backend/internal/auth/password"
	"lead_triage_backend/platform/apperr"
	"lead_triage_backend/platform/config"
	"lead_triage_backend/platform/httpkit"
	"lead_triage_backend/platform/logger"
)

const defaultSessionTTL = 7 * 24 * time.Hour

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrLoginDisabled      = errors.New("login is not configured")
)

// Session is an issued operator session token.
type Session struct {
	Token     string
	Username  string
	ExpiresAt time.Time
}

// Service authenticates the single dashboard operator.
type Service struct {
	cfg config.AuthConfig
	log *logger.Logger
	now func() time.Time
}

func New(cfg config.AuthConfig, log *logger.Logger) *Service {
	return &Service{cfg: cfg, log: log, now: time.Now}
}

func (s *Service) SessionTTL() time.Duration {
	if ttl := s.cfg.GetSessionTTL(); ttl > 0 {
		return ttl
	}
	return defaultSessionTTL
}

func (s *Service) SignIn(ctx context.Context, username, plainPassword string) (Session, error) {
	log := s.log.WithContext(ctx)

	expectedUser := s.cfg.GetDashboardUsername()
	hash := s.cfg.GetDashboardPasswordHash()
	if expectedUser == "" || hash == "" || s.cfg.GetJWTAccessSecret() == "" {
		log.AuthEvent("login", username, false, "not configured")
		return Session{}, apperr.Wrap(apperr.KindUnavailable, ErrLoginDisabled.Error(), ErrLoginDisabled)
	}

	// Both checks always run so a wrong username costs the same as a wrong password.
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(expectedUser)) == 1
	passErr := password.Compare(hash, plainPassword)
	if !userOK || passErr != nil {
		log.AuthEvent("login", username, false, "invalid credentials")
		return Session{}, apperr.Wrap(apperr.KindUnauthorized, ErrInvalidCredentials.Error(), ErrInvalidCredentials)
	}

	token, claims, err := httpkit.IssueSessionToken(expectedUser, s.cfg.GetJWTAccessSecret(), s.SessionTTL(), s.now())
	if err != nil {
		return Session{}, apperr.Wrap(apperr.KindInternal, "failed to issue session", err)
	}

	log.AuthEvent("login", username, true, "")
	return Session{
		Token:     token,
		Username:  expectedUser,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
