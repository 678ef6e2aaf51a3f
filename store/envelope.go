package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tailored-agentic-units/tierstore/observability"
)

// EnvelopeFormatVersion is the version written into new export envelopes.
// Readers accept any version from 1 upward; unknown top-level fields ride
// along untouched, so older readers of newer envelopes lose nothing they
// understood.
const EnvelopeFormatVersion = 1

// Envelope is the versioned export document: a snapshot of the visible
// key-space plus provenance metadata. Unknown top-level fields encountered
// during parsing are preserved in Extra and re-emitted on marshal.
type Envelope struct {
	FormatVersion int
	CreatedAt     time.Time
	SourceTier    string
	Entries       map[string]string
	Extra         map[string]json.RawMessage
}

// MarshalJSON emits the canonical envelope encoding: a single JSON object
// with the known fields and any preserved extras, keys sorted (the
// encoding/json map ordering).
func (e *Envelope) MarshalJSON() ([]byte, error) {
	fields := make(map[string]json.RawMessage, len(e.Extra)+4)
	for k, v := range e.Extra {
		fields[k] = v
	}

	put := func(name string, v any) error {
		raw, err := json.Marshal(v)
		if err != nil {
			return err
		}
		fields[name] = raw
		return nil
	}
	if err := put("formatVersion", e.FormatVersion); err != nil {
		return nil, err
	}
	if err := put("createdAt", e.CreatedAt.Format(time.RFC3339)); err != nil {
		return nil, err
	}
	if err := put("sourceTier", e.SourceTier); err != nil {
		return nil, err
	}
	if err := put("entries", e.Entries); err != nil {
		return nil, err
	}

	return json.Marshal(fields)
}

// UnmarshalJSON decodes an envelope, stashing unrecognized top-level fields
// into Extra.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	*e = Envelope{Entries: make(map[string]string)}
	for name, raw := range fields {
		switch name {
		case "formatVersion":
			if err := json.Unmarshal(raw, &e.FormatVersion); err != nil {
				return fmt.Errorf("formatVersion: %w", err)
			}
		case "createdAt":
			var ts string
			if err := json.Unmarshal(raw, &ts); err != nil {
				return fmt.Errorf("createdAt: %w", err)
			}
			parsed, err := time.Parse(time.RFC3339, ts)
			if err != nil {
				return fmt.Errorf("createdAt: %w", err)
			}
			e.CreatedAt = parsed
		case "sourceTier":
			if err := json.Unmarshal(raw, &e.SourceTier); err != nil {
				return fmt.Errorf("sourceTier: %w", err)
			}
		case "entries":
			if err := json.Unmarshal(raw, &e.Entries); err != nil {
				return fmt.Errorf("entries: %w", err)
			}
		default:
			if e.Extra == nil {
				e.Extra = make(map[string]json.RawMessage)
			}
			e.Extra[name] = raw
		}
	}
	return nil
}

// Export snapshots the visible key-space of the active tier into an
// envelope and returns its JSON encoding. Reserved probe keys never appear.
// Enumeration failures demote like any other operation, so in the worst
// case the snapshot is served from the shadow — export cannot fail against
// a live store.
func (s *Store) Export() ([]byte, error) {
	ctx := context.Background()

	s.mu.Lock()
	defer s.mu.Unlock()

	keys := s.visibleKeysLocked(ctx)
	entries := make(map[string]string, len(keys))
	for _, key := range keys {
		if val, ok := s.getLocked(ctx, key); ok {
			entries[key] = val
		}
	}

	env := Envelope{
		FormatVersion: EnvelopeFormatVersion,
		CreatedAt:     s.now(),
		SourceTier:    s.activeLocked().String(),
		Entries:       entries,
	}
	data, err := json.Marshal(&env)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}

	s.emit(ctx, EventExportDone, observability.LevelInfo, "store.Export", map[string]any{
		"entries": len(entries),
		"tier":    env.SourceTier,
	})
	return data, nil
}
