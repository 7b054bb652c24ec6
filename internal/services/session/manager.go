// Package session holds the trading session used to sign bundles.
package session

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/perpsplit/internal/domain"
	"github.com/vadiminshakov/perpsplit/internal/events"
	"go.uber.org/zap"
)

// Manager owns the current session. Every change is one publish of the whole session.
type Manager struct {
	owner      common.Address
	sessionKey common.Address
	store      *events.Store[domain.Session]
	clock      func() time.Time
	logger     *zap.Logger
}

// ErrOwnerMismatch session requested for an owner other than the configured trading owner.
var ErrOwnerMismatch = errors.New("session owner does not match the trading owner")

// NewManager creates a manager for the configured trading owner and session key.
// Sessions can only be established for owner.
func NewManager(owner, sessionKey common.Address, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		owner:      owner,
		sessionKey: sessionKey,
		store:      events.NewStore[domain.Session](nil, 4),
		clock:      func() time.Time { return time.Now().UTC() },
		logger:     logger.With(zap.String("component", "session")),
	}
}

// Establish starts a session of owner trading through account. A zero account means the owner trades directly.
func (m *Manager) Establish(owner, account common.Address) (domain.Session, error) {
	if owner == (common.Address{}) {
		return domain.Session{}, errors.New("session owner is required")
	}
	if owner != m.owner {
		return domain.Session{}, errors.Wrapf(ErrOwnerMismatch, "got %s, trading %s", owner.Hex(), m.owner.Hex())
	}
	if m.sessionKey == (common.Address{}) {
		return domain.Session{}, errors.New("no session key configured")
	}
	if account == (common.Address{}) {
		account = owner
	}

	s := domain.Session{
		Owner:            owner,
		ExecutionAccount: account,
		SessionKey:       m.sessionKey,
		EstablishedAt:    m.clock(),
	}
	m.store.Publish(s)

	m.logger.Info("session established",
		zap.String("owner", owner.Hex()),
		zap.String("account", account.Hex()),
		zap.String("session_key", m.sessionKey.Hex()))
	return s, nil
}

// End clears the session.
func (m *Manager) End() {
	m.store.Publish(domain.Session{})
	m.logger.Info("session ended")
}

// Current returns the active session.
func (m *Manager) Current() (domain.Session, bool) {
	s, ok := m.store.Read()
	if !ok || !s.Active() {
		return domain.Session{}, false
	}
	return s, true
}

// Subscribe delivers every session transition.
func (m *Manager) Subscribe() chan domain.Session {
	return m.store.Subscribe()
}

// Unsubscribe stops delivery and closes ch.
func (m *Manager) Unsubscribe(ch chan domain.Session) {
	m.store.Unsubscribe(ch)
}
