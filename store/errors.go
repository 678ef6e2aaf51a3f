package store

import "errors"

// Typed outcomes surfaced to callers. Backend failures are never returned
// as errors; they demote tiers and show up in Info and on the event channel.
var (
	// ErrInvalidArgument reports a caller-side violation of the key or value
	// constraints (empty key, reserved prefix, over-length key, oversized
	// value, unknown import mode).
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidEnvelope reports an import payload that is not a valid
	// export envelope.
	ErrInvalidEnvelope = errors.New("invalid envelope")
)
