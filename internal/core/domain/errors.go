package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrConflict           = errors.New("device already linked")
	ErrNotFound           = errors.New("not found")
	ErrStore              = errors.New("store write failed")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountNotActive   = errors.New("account is not active")
	ErrDeviceNotApproved  = errors.New("device not approved")
	ErrSessionInvalidated = errors.New("session invalidated")
	ErrSessionNotFound    = errors.New("session not found")
)

// ValidationError reports malformed or missing input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Reason
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// ConflictError reports that a device is already linked to another account.
type ConflictError struct {
	DeviceCode string
	LinkedTo   string
}

func (e *ConflictError) Error() string {
	if e.LinkedTo == "" {
		return fmt.Sprintf("device %s is linked", e.DeviceCode)
	}
	return fmt.Sprintf("device %s is linked to %s", e.DeviceCode, e.LinkedTo)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// StoreError wraps a failure reported by the data store.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func (e *StoreError) Is(target error) bool { return target == ErrStore }

// PartialError reports a multi-step operation that failed after some of its
// steps were already applied. Applied steps are not rolled back.
type PartialError struct {
	Operation string
	Applied   []string
	Failed    string
	Err       error
}

func (e *PartialError) Error() string {
	return fmt.Sprintf("%s partially applied (done: %s, failed: %s): %v",
		e.Operation, strings.Join(e.Applied, ","), e.Failed, e.Err)
}

func (e *PartialError) Unwrap() error { return e.Err }

// SessionInvalidatedError carries the reason a session ended.
type SessionInvalidatedError struct {
	Reason InvalidationReason
}

func (e *SessionInvalidatedError) Error() string {
	return "session invalidated: " + string(e.Reason)
}

func (e *SessionInvalidatedError) Is(target error) bool { return target == ErrSessionInvalidated }
