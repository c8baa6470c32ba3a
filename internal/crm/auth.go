package crm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"lead_triage_backend/platform/config"
	"lead_triage_backend/platform/logger"

	"golang.org/x/oauth2"
)

const (
	// TokenDocumentKey is where refreshed OAuth tokens are persisted.
	TokenDocumentKey = "crm-tokens.json"

	expiryBuffer          = 300 * time.Second
	defaultTokenLifetime  = 24 * time.Hour
	bearerPrefix          = "Bearer "
	tokenEndpointFallback = "https://services.leadconnectorhq.com"
)

// ErrNoAuthConfigured is returned when neither OAuth nor a private token is available.
var ErrNoAuthConfigured = errors.New("no crm auth configured: set CRM_REFRESH_TOKEN, CRM_CLIENT_ID and CRM_CLIENT_SECRET, or CRM_PIT_TOKEN")

// DocumentStore persists the token document.
type DocumentStore interface {
	Get(ctx context.Context, key string, dst any) error
	Put(ctx context.Context, key string, doc any) error
}

// StoredTokens is the persisted OAuth state.
type StoredTokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// TokenProvider resolves the CRM bearer token: stored OAuth tokens first,
// then an env-bootstrapped refresh, then the private integration token.
type TokenProvider struct {
	store      DocumentStore
	tokenURL   string
	bootstrap  StoredTokens
	pit        string
	httpClient *http.Client
	log        *logger.Logger
	now        func() time.Time

	mu sync.Mutex
}

// NewTokenProvider builds a provider from the CRM config.
func NewTokenProvider(cfg config.CRMConfig, store DocumentStore, log *logger.Logger) *TokenProvider {
	base := strings.TrimRight(cfg.GetCRMBaseURL(), "/")
	if base == "" {
		base = tokenEndpointFallback
	}
	return &TokenProvider{
		store:    store,
		tokenURL: base + "/oauth/token",
		bootstrap: StoredTokens{
			RefreshToken: cfg.GetCRMRefreshToken(),
			ClientID:     cfg.GetCRMClientID(),
			ClientSecret: cfg.GetCRMClientSecret(),
		},
		pit:        cfg.GetCRMPITToken(),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        log,
		now:        time.Now,
	}
}

// AccessToken returns a value for the Authorization header.
func (p *TokenProvider) AccessToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var stored StoredTokens
	if err := p.store.Get(ctx, TokenDocumentKey, &stored); err == nil && stored.AccessToken != "" {
		if p.now().Unix() < stored.ExpiresAt-int64(expiryBuffer/time.Second) {
			return bearerPrefix + stored.AccessToken, nil
		}
		fresh, err := p.refresh(ctx, stored)
		if err != nil {
			if pit, ok := p.pitToken(); ok {
				p.log.Warn("crm token refresh failed, using private token", "error", err)
				return pit, nil
			}
			return "", err
		}
		return bearerPrefix + fresh.AccessToken, nil
	}

	if p.bootstrap.RefreshToken != "" && p.bootstrap.ClientID != "" && p.bootstrap.ClientSecret != "" {
		fresh, err := p.refresh(ctx, p.bootstrap)
		if err != nil {
			return "", err
		}
		return bearerPrefix + fresh.AccessToken, nil
	}

	if pit, ok := p.pitToken(); ok {
		return pit, nil
	}
	return "", ErrNoAuthConfigured
}

func (p *TokenProvider) pitToken() (string, bool) {
	if p.pit == "" {
		return "", false
	}
	if strings.HasPrefix(p.pit, bearerPrefix) {
		return p.pit, true
	}
	return bearerPrefix + p.pit, true
}

// refresh exchanges the refresh token and persists the result. A failed
// persist is logged; the fresh token is still returned.
func (p *TokenProvider) refresh(ctx context.Context, current StoredTokens) (StoredTokens, error) {
	conf := &oauth2.Config{
		ClientID:     current.ClientID,
		ClientSecret: current.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  p.tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	httpCtx := context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	tok, err := conf.TokenSource(httpCtx, &oauth2.Token{RefreshToken: current.RefreshToken}).Token()
	if err != nil {
		return StoredTokens{}, fmt.Errorf("crm token refresh: %w", err)
	}

	updated := current
	updated.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		updated.RefreshToken = tok.RefreshToken
	}
	if tok.Expiry.IsZero() {
		updated.ExpiresAt = p.now().Add(defaultTokenLifetime).Unix()
	} else {
		updated.ExpiresAt = tok.Expiry.Unix()
	}

	if err := p.store.Put(ctx, TokenDocumentKey, updated); err != nil {
		p.log.StoreError("put", TokenDocumentKey, err)
	}
	return updated, nil
}
