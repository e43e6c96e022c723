package drive

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func TestRedisTokenCacheRoundTrip(t *testing.T) {
	cache := NewRedisTokenCache(newTestRedis(t))
	ctx := context.Background()

	if _, _, ok := cache.Get(ctx); ok {
		t.Fatal("empty cache must report a miss")
	}

	expiresAt := time.Now().Add(time.Hour).Truncate(time.Second)
	cache.Set(ctx, "token-1", expiresAt)

	token, gotExpiry, ok := cache.Get(ctx)
	if !ok {
		t.Fatal("expected a cache hit")
	}
	if token != "token-1" {
		t.Fatalf("got token %q", token)
	}
	if !gotExpiry.Equal(expiresAt) {
		t.Fatalf("expiry drifted: want %v, got %v", expiresAt, gotExpiry)
	}
}

func TestRedisTokenCacheSkipsExpiredToken(t *testing.T) {
	cache := NewRedisTokenCache(newTestRedis(t))
	ctx := context.Background()

	cache.Set(ctx, "stale", time.Now().Add(-time.Minute))
	if _, _, ok := cache.Get(ctx); ok {
		t.Fatal("an already-expired token must not be stored")
	}
}

func TestTokenSourceRefreshesNearExpiry(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.FormValue("grant_type") != "client_credentials" {
			t.Errorf("unexpected grant_type %q", r.FormValue("grant_type"))
		}
		// First token expires inside the refresh skew, forcing a renewal.
		expiresIn := 30
		if n > 1 {
			expiresIn = 3600
		}
		writeGraphJSON(w, http.StatusOK, map[string]any{"access_token": "tok", "expires_in": expiresIn})
	}))
	defer server.Close()

	source := NewTokenSource(server.URL, "tenant", "id", "secret", nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := source.Token(ctx); err != nil {
			t.Fatalf("token call %d: %v", i, err)
		}
	}
	mu.Lock()
	defer mu.Unlock()
	if calls != 2 {
		t.Fatalf("expected refresh once then reuse, got %d provider calls", calls)
	}
}

func TestTokenSourceSurfacesProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeGraphJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_client", "error_description": "bad secret"})
	}))
	defer server.Close()

	source := NewTokenSource(server.URL, "tenant", "id", "secret", nil)
	_, err := source.Token(context.Background())
	if err == nil {
		t.Fatal("expected an error from the provider")
	}
	var remote *RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("expected RemoteError, got %T: %v", err, err)
	}
	if remote.Code != "invalid_client" {
		t.Fatalf("provider code lost: %+v", remote)
	}
}
