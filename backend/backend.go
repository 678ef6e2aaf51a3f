// Package backend provides uniform key-value adapters over concrete
// persistence mechanisms. Adapters perform no coercion — values are strings
// in, strings out — and never suppress underlying failures: every error is
// wrapped in *Error carrying a classification Kind before it is returned.
package backend

import (
	"errors"
	"fmt"
)

// Backend is the adapter contract shared by all tiers. Absence is reported
// through the ok return, never through an error.
type Backend interface {
	// Read returns the value stored under key, or ok=false when absent.
	Read(key string) (value string, ok bool, err error)
	// Write stores value under key, creating or overwriting.
	Write(key, value string) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(key string) error
	// Clear removes every entry.
	Clear() error
	// Count returns the number of stored entries.
	Count() (int, error)
	// KeyAt returns the key at index in the backend's enumeration order, or
	// ok=false when index is out of range. Order is stable only between
	// mutations.
	KeyAt(index int) (key string, ok bool, err error)
}

// Kind classifies a backend failure. The tiered store's demotion policy is
// driven entirely by this value.
type Kind int

const (
	KindUnknown   Kind = iota // unrecognized failure
	KindQuota                 // storage full or over a (possibly tiny) limit
	KindSecurity              // access denied or blocked by policy
	KindTransient             // intermittent I/O flake
)

func (k Kind) String() string {
	switch k {
	case KindQuota:
		return "quota"
	case KindSecurity:
		return "security"
	case KindTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// Error wraps a backend failure with its classification and the operation
// that produced it. The underlying cause is always preserved for Unwrap.
type Error struct {
	Kind Kind
	Op   string // "read", "write", "delete", "clear", "count", "keyat"
	Key  string // empty for whole-store operations
	Err  error
}

func (e *Error) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s %s %q: %v", e.Kind, e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Kind, e.Op, e.Err)
}

// Unwrap enables errors.Is and errors.As on the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Classify extracts the Kind from a backend error. Errors that did not pass
// through an adapter classify as KindUnknown.
func Classify(err error) Kind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return KindUnknown
}
