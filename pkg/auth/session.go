package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Common errors
var (
	ErrNoTokens        = errors.New("no tokens stored")
	ErrUnauthenticated = errors.New("not authenticated")
)

// Tokens is an access/refresh token pair issued by the backend
type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// TokenStore persists the token pair of one dashboard login
type TokenStore interface {
	Load(ctx context.Context) (Tokens, error) // ErrNoTokens when empty
	Save(ctx context.Context, t Tokens) error
	Clear(ctx context.Context) error
}

// RefreshFunc exchanges a refresh token for a new pair
type RefreshFunc func(ctx context.Context, refreshToken string) (Tokens, error)

// Session is the explicit, injected replacement for browser-global token storage.
// Login and Logout bound its lifetime.
type Session struct {
	store TokenStore
	mu    sync.Mutex // serializes refreshes
}

// NewSession creates a session over the given store
func NewSession(store TokenStore) *Session {
	return &Session{store: store}
}

// Login stores a freshly issued token pair
func (s *Session) Login(ctx context.Context, t Tokens) error {
	if t.AccessToken == "" {
		return fmt.Errorf("access token is required")
	}
	if err := s.store.Save(ctx, t); err != nil {
		return fmt.Errorf("failed to save tokens: %w", err)
	}
	return nil
}

// Logout forgets the token pair
func (s *Session) Logout(ctx context.Context) error {
	if err := s.store.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear tokens: %w", err)
	}
	return nil
}

// AccessToken returns the current access token or ErrUnauthenticated
func (s *Session) AccessToken(ctx context.Context) (string, error) {
	t, err := s.store.Load(ctx)
	if err != nil {
		if errors.Is(err, ErrNoTokens) {
			return "", ErrUnauthenticated
		}
		return "", fmt.Errorf("failed to load tokens: %w", err)
	}
	if t.AccessToken == "" {
		return "", ErrUnauthenticated
	}
	return t.AccessToken, nil
}

// Refresh replaces a rejected access token. stale is the token the backend rejected;
// if another caller already refreshed it, the newer token is returned without a second refresh.
// A failed refresh clears the store.
func (s *Session) Refresh(ctx context.Context, stale string, refresh RefreshFunc) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.store.Load(ctx)
	if err != nil {
		if errors.Is(err, ErrNoTokens) {
			return "", ErrUnauthenticated
		}
		return "", fmt.Errorf("failed to load tokens: %w", err)
	}

	if current.AccessToken != "" && current.AccessToken != stale {
		return current.AccessToken, nil
	}

	if current.RefreshToken == "" {
		s.clear(ctx)
		return "", ErrUnauthenticated
	}

	fresh, err := refresh(ctx, current.RefreshToken)
	if err != nil {
		slog.Warn("token refresh failed", "error", err)
		s.clear(ctx)
		return "", fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	// Some backends rotate only the access token
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = current.RefreshToken
	}
	if err := s.store.Save(ctx, fresh); err != nil {
		return "", fmt.Errorf("failed to save refreshed tokens: %w", err)
	}

	return fresh.AccessToken, nil
}

func (s *Session) clear(ctx context.Context) {
	if err := s.store.Clear(ctx); err != nil {
		slog.Error("failed to clear tokens", "error", err)
	}
}

// MemoryStore keeps tokens in process memory
type MemoryStore struct {
	mu     sync.RWMutex
	tokens *Tokens
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Load(_ context.Context) (Tokens, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.tokens == nil {
		return Tokens{}, ErrNoTokens
	}
	return *m.tokens, nil
}

func (m *MemoryStore) Save(_ context.Context, t Tokens) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens = &t
	return nil
}

func (m *MemoryStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens = nil
	return nil
}
