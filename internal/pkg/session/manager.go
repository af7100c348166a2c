// internal/pkg/session/manager.go
package session

import (
	"context"
	"fmt"
	"sync"

	"physioportal-client/internal/domain/auth"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// Manager owns the in-memory session and mirrors every mutation to the
// persistence backend. It also carries the two reactive flags the gateway
// raises from response codes: token validity (408) and signed terms (423).
// Neither flag clears the session by itself; callers decide how to react.
type Manager struct {
	mu          sync.RWMutex
	store       Store
	current     Session
	tokenValid  bool
	termsSigned bool
	subscribers []func(Session)
	logger      *zap.Logger
}

func NewManager(store Store, logger *zap.Logger) *Manager {
	return &Manager{
		store:       store,
		tokenValid:  true,
		termsSigned: true,
		logger:      logger,
	}
}

// Restore loads the persisted session, the relaunch analogue of a page
// reload restoring auth state.
func (m *Manager) Restore(ctx context.Context) error {
	s, err := m.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to restore session: %w", err)
	}
	m.mu.Lock()
	m.current = s
	m.mu.Unlock()
	if !s.Empty() {
		m.logger.Debug("session restored", zap.String("email", userEmail(s.User)))
	}
	m.notify(s)
	return nil
}

// SetSession replaces the session wholesale after a successful auth
// response and persists it.
func (m *Manager) SetSession(ctx context.Context, token string, user *auth.UserRecord, customerID string) error {
	s := Session{Token: token, User: user, CustomerID: customerID}
	m.mu.Lock()
	m.current = s
	m.tokenValid = true
	m.mu.Unlock()

	if err := m.store.Save(ctx, s); err != nil {
		return fmt.Errorf("failed to persist session: %w", err)
	}
	m.logger.Info("session established", zap.String("email", userEmail(user)))
	m.notify(s)
	return nil
}

// SetCustomerID records the billing customer id without touching the rest
// of the session. Used by registration before any login has happened.
func (m *Manager) SetCustomerID(ctx context.Context, customerID string) error {
	m.mu.Lock()
	m.current.CustomerID = customerID
	s := m.current
	m.mu.Unlock()

	if err := m.store.Save(ctx, s); err != nil {
		return fmt.Errorf("failed to persist session: %w", err)
	}
	m.notify(s)
	return nil
}

// ClearSession destroys the session, in memory and in the backend.
func (m *Manager) ClearSession(ctx context.Context) error {
	m.mu.Lock()
	m.current = Session{}
	m.tokenValid = true
	m.termsSigned = true
	m.mu.Unlock()

	if err := m.store.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear persisted session: %w", err)
	}
	m.logger.Info("session cleared")
	m.notify(Session{})
	return nil
}

// Token returns the current bearer token, empty when unauthenticated.
func (m *Manager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.Token
}

// User returns the current user snapshot, nil when unauthenticated.
func (m *Manager) User() *auth.UserRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.User
}

// CustomerID returns the billing customer id, empty when none is known.
func (m *Manager) CustomerID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.CustomerID
}

// IsAuthenticated reports whether a token is held. No local expiry check is
// performed; an expired token surfaces reactively as HTTP 408.
func (m *Manager) IsAuthenticated() bool {
	return m.Token() != ""
}

// MarkTokenInvalid records that the backend rejected the token (408).
func (m *Manager) MarkTokenInvalid() {
	m.mu.Lock()
	m.tokenValid = false
	m.mu.Unlock()
	m.logger.Warn("token marked invalid by backend")
}

// MarkTermsUnsigned records that the backend demands terms signing (423).
func (m *Manager) MarkTermsUnsigned() {
	m.mu.Lock()
	m.termsSigned = false
	m.mu.Unlock()
	m.logger.Warn("terms and conditions not signed")
}

// TokenValid reports the reactive token-validity flag.
func (m *Manager) TokenValid() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tokenValid
}

// TermsSigned reports the reactive terms flag.
func (m *Manager) TermsSigned() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.termsSigned
}

// Subscribe registers a callback invoked after every session change.
func (m *Manager) Subscribe(fn func(Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, fn)
}

// Claims parses the bearer token without verifying its signature, for
// display purposes only (whoami). Validity is the backend's call.
func (m *Manager) Claims() (jwt.MapClaims, error) {
	token := m.Token()
	if token == "" {
		return nil, fmt.Errorf("no token held")
	}
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("failed to parse token claims: %w", err)
	}
	return claims, nil
}

func (m *Manager) notify(s Session) {
	m.mu.RLock()
	subs := make([]func(Session), len(m.subscribers))
	copy(subs, m.subscribers)
	m.mu.RUnlock()
	for _, fn := range subs {
		fn(s)
	}
}

func userEmail(u *auth.UserRecord) string {
	if u == nil {
		return ""
	}
	return u.Email
}
