package drive

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/redis/go-redis/v9"
)

// TokenCache stores one bearer token with its expiry. Implementations must be
// safe for concurrent use.
type TokenCache interface {
	Get(ctx context.Context) (token string, expiresAt time.Time, ok bool)
	Set(ctx context.Context, token string, expiresAt time.Time)
}

// MemoryTokenCache keeps the token in process memory.
type MemoryTokenCache struct {
	mu        sync.RWMutex
	token     string
	expiresAt time.Time
}

func (c *MemoryTokenCache) Get(_ context.Context) (string, time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.token == "" {
		return "", time.Time{}, false
	}
	return c.token, c.expiresAt, true
}

func (c *MemoryTokenCache) Set(_ context.Context, token string, expiresAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
	c.expiresAt = expiresAt
}

// RedisTokenCache shares the token across processes. Failures fall through to
// a fresh token request, so cache errors are swallowed.
type RedisTokenCache struct {
	client *redis.Client
	key    string
}

func NewRedisTokenCache(client *redis.Client) *RedisTokenCache {
	return &RedisTokenCache{client: client, key: "drive:token"}
}

type cachedToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (c *RedisTokenCache) Get(ctx context.Context) (string, time.Time, bool) {
	raw, err := c.client.Get(ctx, c.key).Result()
	if err != nil {
		return "", time.Time{}, false
	}
	var cached cachedToken
	if err := json.Unmarshal([]byte(raw), &cached); err != nil {
		return "", time.Time{}, false
	}
	return cached.Token, cached.ExpiresAt, true
}

func (c *RedisTokenCache) Set(ctx context.Context, token string, expiresAt time.Time) {
	raw, err := json.Marshal(cachedToken{Token: token, ExpiresAt: expiresAt})
	if err != nil {
		return
	}
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return
	}
	_ = c.client.Set(ctx, c.key, raw, ttl).Err()
}

// TokenSource acquires Azure AD tokens via the client-credentials flow and
// reuses them until close to expiry instead of paying a token round trip per
// call.
type TokenSource struct {
	http         *resty.Client
	tenantID     string
	clientID     string
	clientSecret string
	cache        TokenCache
	// refreshSkew is subtracted from the provider expiry so a token is
	// renewed before it actually lapses mid-request.
	refreshSkew time.Duration

	mu sync.Mutex
}

func NewTokenSource(authBaseURL, tenantID, clientID, clientSecret string, cache TokenCache) *TokenSource {
	if cache == nil {
		cache = &MemoryTokenCache{}
	}
	return &TokenSource{
		http: resty.New().
			SetBaseURL(authBaseURL).
			SetTimeout(15 * time.Second).
			SetRetryCount(2).
			SetRetryWaitTime(500 * time.Millisecond),
		tenantID:     tenantID,
		clientID:     clientID,
		clientSecret: clientSecret,
		cache:        cache,
		refreshSkew:  2 * time.Minute,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

type tokenErrorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description"`
}

// Token returns a valid bearer token, from cache when possible.
func (s *TokenSource) Token(ctx context.Context) (string, error) {
	if token, expiresAt, ok := s.cache.Get(ctx); ok && time.Until(expiresAt) > s.refreshSkew {
		return token, nil
	}

	// Single flight within the process; concurrent callers wait for one fetch.
	s.mu.Lock()
	defer s.mu.Unlock()
	if token, expiresAt, ok := s.cache.Get(ctx); ok && time.Until(expiresAt) > s.refreshSkew {
		return token, nil
	}

	var parsed tokenResponse
	var parsedErr tokenErrorResponse
	resp, err := s.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"client_id":     s.clientID,
			"client_secret": s.clientSecret,
			"scope":         "https://graph.microsoft.com/.default",
			"grant_type":    "client_credentials",
		}).
		SetResult(&parsed).
		SetError(&parsedErr).
		Post("/" + s.tenantID + "/oauth2/v2.0/token")
	if err != nil {
		return "", fmt.Errorf("request graph token: %w", err)
	}
	if resp.IsError() {
		return "", &RemoteError{Status: resp.StatusCode(), Code: parsedErr.Error, Message: parsedErr.Description}
	}
	if parsed.AccessToken == "" {
		return "", fmt.Errorf("request graph token: empty access token")
	}

	expiresAt := time.Now().Add(time.Duration(parsed.ExpiresIn) * time.Second)
	s.cache.Set(ctx, parsed.AccessToken, expiresAt)
	return parsed.AccessToken, nil
}
