package crm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"lead_triage_backend/platform/logger"
)

var errMissing = errors.New("missing")

type mapStore struct {
	mu   sync.Mutex
	docs map[string][]byte
}

func newMapStore() *mapStore { return &mapStore{docs: map[string][]byte{}} }

func (s *mapStore) Get(_ context.Context, key string, dst any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.docs[key]
	if !ok {
		return errMissing
	}
	return json.Unmarshal(raw, dst)
}

func (s *mapStore) Put(_ context.Context, key string, doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[key] = raw
	return nil
}

func newTokenServer(t *testing.T, calls *int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.Form.Get("grant_type") != "refresh_token" || r.Form.Get("client_id") != "cid" {
			t.Errorf("unexpected refresh form %v", r.Form)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"fresh","refresh_token":"rotated","token_type":"Bearer","expires_in":86399}`))
	}))
}

func newProvider(srv *httptest.Server, store DocumentStore, now time.Time) *TokenProvider {
	return &TokenProvider{
		store:      store,
		tokenURL:   srv.URL + "/oauth/token",
		httpClient: srv.Client(),
		log:        logger.Nop(),
		now:        func() time.Time { return now },
	}
}

func TestTokenProvider_UsesStoredTokenOutsideBuffer(t *testing.T) {
	calls := 0
	srv := newTokenServer(t, &calls)
	defer srv.Close()

	now := time.Now()
	store := newMapStore()
	_ = store.Put(context.Background(), TokenDocumentKey, StoredTokens{AccessToken: "cached", ExpiresAt: now.Add(time.Hour).Unix()})

	tok, err := newProvider(srv, store, now).AccessToken(context.Background())
	if err != nil || tok != "Bearer cached" || calls != 0 {
		t.Fatalf("expected cached token without refresh, got %q %v calls=%d", tok, err, calls)
	}
}

func TestTokenProvider_RefreshesInsideBufferAndPersists(t *testing.T) {
	calls := 0
	srv := newTokenServer(t, &calls)
	defer srv.Close()

	now := time.Now()
	store := newMapStore()
	_ = store.Put(context.Background(), TokenDocumentKey, StoredTokens{
		AccessToken: "old", RefreshToken: "r1", ClientID: "cid", ClientSecret: "sec",
		ExpiresAt: now.Add(2 * time.Minute).Unix(),
	})

	tok, err := newProvider(srv, store, now).AccessToken(context.Background())
	if err != nil || tok != "Bearer fresh" || calls != 1 {
		t.Fatalf("expected refreshed token, got %q %v calls=%d", tok, err, calls)
	}

	var saved StoredTokens
	_ = store.Get(context.Background(), TokenDocumentKey, &saved)
	if saved.AccessToken != "fresh" || saved.RefreshToken != "rotated" || saved.ClientID != "cid" {
		t.Fatalf("expected rotated tokens to be persisted, got %+v", saved)
	}
}

func TestTokenProvider_BootstrapsFromEnvThenFallsBackToPIT(t *testing.T) {
	calls := 0
	srv := newTokenServer(t, &calls)
	defer srv.Close()

	p := newProvider(srv, newMapStore(), time.Now())
	p.bootstrap = StoredTokens{RefreshToken: "r0", ClientID: "cid", ClientSecret: "sec"}
	tok, err := p.AccessToken(context.Background())
	if err != nil || tok != "Bearer fresh" {
		t.Fatalf("bootstrap: %q %v", tok, err)
	}

	pitOnly := newProvider(srv, newMapStore(), time.Now())
	pitOnly.pit = "pit-123"
	tok, err = pitOnly.AccessToken(context.Background())
	if err != nil || tok != "Bearer pit-123" {
		t.Fatalf("pit fallback: %q %v", tok, err)
	}

	none := newProvider(srv, newMapStore(), time.Now())
	if _, err := none.AccessToken(context.Background()); !errors.Is(err, ErrNoAuthConfigured) {
		t.Fatalf("expected ErrNoAuthConfigured, got %v", err)
	}
}
