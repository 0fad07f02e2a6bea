package service

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/paywatch/paywatch/internal/core/domain"
	"github.com/paywatch/paywatch/internal/core/ports"
)

// SessionHub routes pushed account snapshots to the monitors of sessions
// opened by that account. Each monitor owns its subscription for as long as
// it is registered; there is no process-wide "current session".
type SessionHub struct {
	accounts ports.AccountStore
	log      zerolog.Logger

	mu     sync.RWMutex
	byID   map[string]*SessionMonitor
	byUser map[string]map[string]*SessionMonitor
}

func NewSessionHub(accounts ports.AccountStore, log zerolog.Logger) *SessionHub {
	return &SessionHub{
		accounts: accounts,
		log:      log,
		byID:     make(map[string]*SessionMonitor),
		byUser:   make(map[string]map[string]*SessionMonitor),
	}
}

// Register subscribes m to its account and delivers the current record as
// the initial push. Admin sessions have no account and are only tracked.
func (h *SessionHub) Register(ctx context.Context, m *SessionMonitor) {
	h.mu.Lock()
	h.byID[m.ID()] = m
	if m.Role() == domain.RoleUser {
		subs, ok := h.byUser[m.Username()]
		if !ok {
			subs = make(map[string]*SessionMonitor)
			h.byUser[m.Username()] = subs
		}
		subs[m.ID()] = m
	}
	h.mu.Unlock()

	if m.Role() != domain.RoleUser {
		return
	}
	acct, err := h.accounts.Get(ctx, m.Username())
	switch {
	case errors.Is(err, domain.ErrNotFound):
		m.Observe(nil)
	case err != nil:
		// The next push will catch up.
		h.log.Warn().Err(err).Str("username", m.Username()).Msg("initial account read failed")
	default:
		m.Observe(acct)
	}
}

// Unregister drops m from every index.
func (h *SessionHub) Unregister(m *SessionMonitor) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.byID, m.ID())
	if subs, ok := h.byUser[m.Username()]; ok {
		delete(subs, m.ID())
		if len(subs) == 0 {
			delete(h.byUser, m.Username())
		}
	}
}

// Lookup returns the live monitor for a session id held by this process.
func (h *SessionHub) Lookup(id string) (*SessionMonitor, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	m, ok := h.byID[id]
	return m, ok
}

// Deliver hands one account snapshot to every session of that account.
func (h *SessionHub) Deliver(_ context.Context, change ports.AccountChange) {
	h.mu.RLock()
	subs := make([]*SessionMonitor, 0, len(h.byUser[change.Username]))
	for _, m := range h.byUser[change.Username] {
		subs = append(subs, m)
	}
	h.mu.RUnlock()

	for _, m := range subs {
		if m.Observe(change.Account) {
			_, reason := m.State()
			h.log.Info().
				Str("session_id", m.ID()).
				Str("username", m.Username()).
				Str("reason", string(reason)).
				Msg("session invalidated by account change")
		}
	}
}

// Snapshots reads the current record of every account with a registered
// session, for replay after the change feed had a gap.
func (h *SessionHub) Snapshots(ctx context.Context) []ports.AccountChange {
	h.mu.RLock()
	users := make([]string, 0, len(h.byUser))
	for u := range h.byUser {
		users = append(users, u)
	}
	h.mu.RUnlock()

	out := make([]ports.AccountChange, 0, len(users))
	for _, u := range users {
		acct, err := h.accounts.Get(ctx, u)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			out = append(out, ports.AccountChange{Username: u})
		case err != nil:
			h.log.Warn().Err(err).Str("username", u).Msg("account resync read failed")
		default:
			out = append(out, ports.AccountChange{Username: u, Account: acct})
		}
	}
	return out
}

// Len returns the number of registered sessions.
func (h *SessionHub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byID)
}
