package chat

import (
	"errors"
	"fmt"
)

var (
	ErrMissingOwner     = errors.New("chat: owner id is required")
	ErrEmptyInput       = errors.New("chat: no valid user input found")
	ErrStoreUnavailable = errors.New("chat: store unavailable")
	ErrModelProvider    = errors.New("chat: model provider failed")
	ErrSessionNotFound  = errors.New("chat: session not found")
	ErrForbidden        = errors.New("chat: session belongs to another user")
)

// StoreError wraps a failed store operation. It matches ErrStoreUnavailable.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return fmt.Sprintf("chat: store %s: %v", e.Op, e.Err) }

func (e *StoreError) Unwrap() error { return e.Err }

func (e *StoreError) Is(target error) bool { return target == ErrStoreUnavailable }

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}

// ProviderError wraps a model call failure, timeouts included. It matches
// ErrModelProvider.
type ProviderError struct {
	Err error
}

func (e *ProviderError) Error() string { return fmt.Sprintf("chat: model provider: %v", e.Err) }

func (e *ProviderError) Unwrap() error { return e.Err }

func (e *ProviderError) Is(target error) bool { return target == ErrModelProvider }
