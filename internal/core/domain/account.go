package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
	"unicode"
)

// AccountStatus is the lifecycle state of a login identity.
type AccountStatus string

const (
	AccountActive    AccountStatus = "active"
	AccountSuspended AccountStatus = "suspended"
	AccountInactive  AccountStatus = "inactive"
)

// Toggled returns the status an admin toggle moves the account to.
// active and suspended swap; inactive activates.
func (s AccountStatus) Toggled() AccountStatus {
	if s == AccountActive {
		return AccountSuspended
	}
	return AccountActive
}

// Account is a login identity optionally linked to one device.
// Username is the store key: exact for lookups, case-insensitive for
// existence checks.
type Account struct {
	Username   string        `json:"username" bson:"_id"`
	Password   string        `json:"-" bson:"password"`
	DeviceCode string        `json:"device_code,omitempty" bson:"device_code,omitempty"`
	Status     AccountStatus `json:"status" bson:"status"`
	CreatedAt  time.Time     `json:"created_at" bson:"created_at"`
}

// Active reports whether the account may authenticate.
func (a *Account) Active() bool {
	return a.Status == AccountActive
}

// Snapshot builds the copy embedded in the linked device.
func (a *Account) Snapshot() *LinkedAccount {
	return &LinkedAccount{
		Username:  a.Username,
		Password:  a.Password,
		Status:    a.Status,
		Active:    a.Status == AccountActive,
		CreatedAt: a.CreatedAt,
	}
}

// usernameForbidden lists the characters a username token may not contain.
const usernameForbidden = "/.#$[]"

// ValidUsername reports whether u is a simple token usable as a store key.
func ValidUsername(u string) bool {
	if u == "" {
		return false
	}
	for _, r := range u {
		if unicode.IsSpace(r) || unicode.IsControl(r) || strings.ContainsRune(usernameForbidden, r) {
			return false
		}
	}
	return true
}

// CredentialFingerprint returns a digest of the password bytes. Two
// fingerprints are equal exactly when the passwords are byte-for-byte equal,
// so sessions can hold the digest instead of the password.
func CredentialFingerprint(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}
