package domain

import "time"

// DefaultIdleTimeout is how long a session may go without activity.
const DefaultIdleTimeout = 10 * time.Minute

// SessionState is the state of a logged-in session.
type SessionState string

const (
	SessionLive        SessionState = "live"
	SessionInvalidated SessionState = "invalidated"
)

// InvalidationReason explains why a session moved to SessionInvalidated.
type InvalidationReason string

const (
	ReasonAccountDeleted    InvalidationReason = "AccountDeleted"
	ReasonAccountSuspended  InvalidationReason = "AccountSuspended"
	ReasonCredentialChanged InvalidationReason = "CredentialChanged"
	ReasonIdle              InvalidationReason = "Idle"
	ReasonLoggedOut         InvalidationReason = "LoggedOut"
)

// InvalidationFor decides whether the pushed account record ends a session
// that logged in with the given credential fingerprint. A nil account means
// the record was deleted. The empty reason means the session stays live.
func InvalidationFor(acct *Account, fingerprint string) InvalidationReason {
	switch {
	case acct == nil:
		return ReasonAccountDeleted
	case acct.Status != AccountActive:
		return ReasonAccountSuspended
	case CredentialFingerprint(acct.Password) != fingerprint:
		return ReasonCredentialChanged
	}
	return ""
}
