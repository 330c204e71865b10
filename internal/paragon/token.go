package paragon

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/singleflight"

	"github.com/evcraddock/listings/internal/kv"
	"github.com/evcraddock/listings/internal/metrics"
)

const tokenScope = "OData"

// Token is a bearer token and the instant it stops being valid.
type Token struct {
	Token      string    `json:"token"`
	Expiration time.Time `json:"tokenExpiration"`
}

func (t Token) validAt(now time.Time, leeway time.Duration) bool {
	return t.Token != "" && now.Add(leeway).Before(t.Expiration)
}

// TokenManager hands out unexpired bearer tokens for one client
// identity. Tokens are cached in process and persisted to a kv.Store
// under a key derived from the client ID, so a restarted process reuses
// a token until it expires.
type TokenManager struct {
	oauth      clientcredentials.Config
	httpClient *http.Client
	store      kv.Store
	key        string
	leeway     time.Duration
	now        func() time.Time

	mu       sync.Mutex
	current  Token
	distrust bool // set by Invalidate: skip the store on next refresh

	group singleflight.Group
}

// NewTokenManager creates a manager for the client-credentials grant at
// tokenURL. leeway treats tokens as expired that much early.
func NewTokenManager(tokenURL, clientID, clientSecret string, store kv.Store, httpClient *http.Client, leeway time.Duration) *TokenManager {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &TokenManager{
		oauth: clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     tokenURL,
			Scopes:       []string{tokenScope},
			AuthStyle:    oauth2.AuthStyleInHeader,
		},
		httpClient: httpClient,
		store:      store,
		key:        tokenKey(clientID),
		leeway:     leeway,
		now:        time.Now,
	}
}

// tokenKey derives the persisted-token key from the client ID.
func tokenKey(clientID string) string {
	sum := sha256.Sum256([]byte(clientID))
	return "paragon:token:" + hex.EncodeToString(sum[:])
}

// ValidToken returns a bearer token that is unexpired at return time.
func (m *TokenManager) ValidToken(ctx context.Context) (string, error) {
	tok, err := m.Token(ctx)
	if err != nil {
		return "", err
	}
	return tok.Token, nil
}

// Token returns the current token, refreshing it when absent or expired.
// Concurrent callers share a single refresh.
func (m *TokenManager) Token(ctx context.Context) (Token, error) {
	if tok, ok := m.cached(); ok {
		return tok, nil
	}

	// The exchange outlives any one caller: others may be waiting on it.
	flightCtx := context.WithoutCancel(ctx)
	v, err, _ := m.group.Do(m.key, func() (interface{}, error) {
		if tok, ok := m.cached(); ok {
			return tok, nil
		}
		if tok, ok := m.load(flightCtx); ok {
			m.setCurrent(tok)
			return tok, nil
		}

		tok, err := m.exchange(flightCtx)
		if err != nil {
			metrics.TokenExchanges.WithLabelValues("failure").Inc()
			return Token{}, err
		}
		metrics.TokenExchanges.WithLabelValues("success").Inc()
		slog.Info("paragon token refreshed", "expires", tok.Expiration.Format(time.RFC3339))

		m.setCurrent(tok)
		m.persist(flightCtx, tok)
		return tok, nil
	})
	if err != nil {
		return Token{}, err
	}
	return v.(Token), nil
}

// Invalidate drops the cached token so the next call performs a fresh
// exchange. Used when the feed rejects a token it should still accept.
func (m *TokenManager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = Token{}
	m.distrust = true
}

func (m *TokenManager) cached() (Token, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current.validAt(m.now(), m.leeway) {
		return m.current, true
	}
	return Token{}, false
}

func (m *TokenManager) setCurrent(tok Token) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = tok
	m.distrust = false
}

// load reads a persisted token, ignoring it when expired or distrusted.
func (m *TokenManager) load(ctx context.Context) (Token, bool) {
	m.mu.Lock()
	distrust := m.distrust
	m.mu.Unlock()
	if m.store == nil || distrust {
		return Token{}, false
	}

	b, err := m.store.Get(ctx, m.key)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			slog.Warn("reading persisted paragon token", "error", err)
		}
		return Token{}, false
	}

	var tok Token
	if err := json.Unmarshal(b, &tok); err != nil {
		slog.Warn("decoding persisted paragon token", "error", err)
		return Token{}, false
	}
	if !tok.validAt(m.now(), m.leeway) {
		return Token{}, false
	}
	return tok, true
}

// persist stores the token until its expiration. Failure only costs a
// handshake on the next process start, so it is logged.
func (m *TokenManager) persist(ctx context.Context, tok Token) {
	if m.store == nil {
		return
	}
	b, err := json.Marshal(tok)
	if err != nil {
		slog.Warn("encoding paragon token", "error", err)
		return
	}
	if err := m.store.Set(ctx, m.key, b, tok.Expiration.Sub(m.now())); err != nil {
		slog.Warn("persisting paragon token", "error", err)
	}
}

// exchange performs the client-credentials grant.
func (m *TokenManager) exchange(ctx context.Context) (Token, error) {
	issued := m.now()

	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
	tok, err := m.oauth.Token(ctx)
	if err != nil {
		status := 0
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			status = re.Response.StatusCode
		}
		return Token{}, &AuthError{Status: status, Err: err}
	}
	if tok.AccessToken == "" {
		return Token{}, &AuthError{Err: errors.New("response has no access_token")}
	}

	lifetime := expiresIn(tok)
	if lifetime <= 0 {
		return Token{}, &AuthError{Err: fmt.Errorf("response has no usable expires_in")}
	}

	return Token{Token: tok.AccessToken, Expiration: issued.Add(lifetime)}, nil
}

// expiresIn reads the raw expires_in value so expiration is computed
// from the manager's clock rather than the oauth2 package's.
func expiresIn(tok *oauth2.Token) time.Duration {
	switch v := tok.Extra("expires_in").(type) {
	case float64:
		return time.Duration(v * float64(time.Second))
	case int64:
		return time.Duration(v) * time.Second
	case string:
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return time.Duration(n * float64(time.Second))
		}
	}
	if !tok.Expiry.IsZero() {
		return time.Until(tok.Expiry)
	}
	return 0
}
