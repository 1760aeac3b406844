// Package storage provides the key-value abstraction that backs the token
// authority.
//
// A KeyStore maps opaque string keys to string values. Get, Put and Remove are
// each atomic on their own, but there is no transaction spanning several keys:
// callers composing multi-key updates must tolerate a concurrent reader seeing
// one write before the other.
//
// Persistent backends commit writes to their write path without forcing them
// to stable storage on every call. A crash can lose the most recent writes.
package storage

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned by Get when the key has no value. It is an expected
// outcome, not a backend fault.
var ErrNotFound = errors.New("key not found")

// ErrClosed is the cause carried by a StoreError for operations attempted
// after Close.
var ErrClosed = errors.New("store closed")

// KeyStore is an ordered-key to string mapping.
type KeyStore interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)
	// Put creates or overwrites the value stored under key.
	Put(ctx context.Context, key, value string) error
	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error
	// Close releases the backend.
	Close() error
}

// StoreError wraps any I/O, encoding or backend fault raised by a KeyStore.
// It is fatal to the request that triggered it and is never retried.
type StoreError struct {
	Op  string
	Key string
	Err error
}

func (e *StoreError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("keystore %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("keystore %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Fault wraps err in a StoreError. A nil err and ErrNotFound pass through
// unchanged, as does an error that already is a StoreError.
func Fault(op, key string, err error) error {
	if err == nil || errors.Is(err, ErrNotFound) {
		return err
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Key: key, Err: err}
}

// IsFault reports whether err is a backend fault rather than a normal outcome.
func IsFault(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}
