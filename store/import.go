package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/tailored-agentic-units/tierstore/observability"
)

// ImportMode selects how an envelope is applied.
type ImportMode int

const (
	// ModeReplace clears the store, then writes every envelope entry.
	ModeReplace ImportMode = iota
	// ModeMerge writes every envelope entry over the existing key-space,
	// never deleting keys absent from the envelope.
	ModeMerge
)

func (m ImportMode) String() string {
	switch m {
	case ModeReplace:
		return "replace"
	case ModeMerge:
		return "merge"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ImportFailure records one envelope entry that could not be applied.
type ImportFailure struct {
	Key    string `json:"key"`
	Reason string `json:"reason"`
}

// ImportReport summarizes an import. A cancelled import keeps the entries
// applied before the cancellation point and sets Cancelled instead of
// returning an error.
type ImportReport struct {
	Imported  int             `json:"imported"`
	Failed    int             `json:"failed"`
	Failures  []ImportFailure `json:"failures,omitempty"`
	Cancelled bool            `json:"cancelled,omitempty"`
}

// envelopeSchema is the structural contract every import payload must meet
// before entry-level validation runs.
const envelopeSchema = `{
	"type": "object",
	"required": ["formatVersion", "entries"],
	"properties": {
		"formatVersion": {"type": "integer", "minimum": 1},
		"createdAt": {"type": "string"},
		"sourceTier": {"type": "string"},
		"entries": {
			"type": "object",
			"additionalProperties": {"type": "string"}
		}
	}
}`

var compiledEnvelopeSchema = jsonschema.MustCompileString("envelope.schema.json", envelopeSchema)

// ParseEnvelope validates raw bytes against the envelope schema and decodes
// them. All failures wrap ErrInvalidEnvelope.
func ParseEnvelope(data []byte) (*Envelope, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if err := compiledEnvelopeSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	return &env, nil
}

// Import applies an envelope to the store. In ModeReplace the key-space is
// cleared first; in ModeMerge existing keys not named by the envelope
// survive. Entries are applied in sorted key order; entry-level problems
// (reserved prefix, constraint violations) are reported per key without
// aborting, and a write that demotes the store continues against the new
// active tier. Cancellation via ctx stops cleanly at the truncation point.
func (s *Store) Import(ctx context.Context, data []byte, mode ImportMode) (ImportReport, error) {
	if mode != ModeReplace && mode != ModeMerge {
		return ImportReport{}, fmt.Errorf("%w: unknown import mode %d", ErrInvalidArgument, int(mode))
	}

	env, err := ParseEnvelope(data)
	if err != nil {
		return ImportReport{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	startData := map[string]any{
		"mode":    mode.String(),
		"entries": len(env.Entries),
	}
	// Provenance is advisory: unknown tier names (say, from a newer writer)
	// are simply omitted, never rejected.
	if tier, ok := ParseTier(env.SourceTier); ok {
		startData["source_tier"] = tier.String()
	}
	s.emit(ctx, EventImportStart, observability.LevelInfo, "store.Import", startData)

	if mode == ModeReplace {
		s.clearLocked(ctx)
	}

	keys := make([]string, 0, len(env.Entries))
	for key := range env.Entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var report ImportReport
	for _, key := range keys {
		if ctx.Err() != nil {
			report.Cancelled = true
			break
		}

		if reason := s.importableReason(key, env.Entries[key]); reason != "" {
			report.Failed++
			report.Failures = append(report.Failures, ImportFailure{Key: key, Reason: reason})
			continue
		}

		s.setLocked(ctx, key, env.Entries[key])
		report.Imported++
	}

	if report.Cancelled {
		s.emit(ctx, EventImportCancelled, observability.LevelWarning, "store.Import", map[string]any{
			"imported": report.Imported,
			"failed":   report.Failed,
		})
	} else {
		s.emit(ctx, EventImportDone, observability.LevelInfo, "store.Import", map[string]any{
			"imported": report.Imported,
			"failed":   report.Failed,
		})
	}
	return report, nil
}

// ImportFrom reads a complete envelope from r, then applies it like Import.
// The stream read is the suspension point: cancellation between chunks stops
// cleanly with a Cancelled report before any entry is applied.
func (s *Store) ImportFrom(ctx context.Context, r io.Reader, mode ImportMode) (ImportReport, error) {
	data, cancelled, err := readAllContext(ctx, r)
	if cancelled {
		return ImportReport{Cancelled: true}, nil
	}
	if err != nil {
		return ImportReport{}, fmt.Errorf("%w: read envelope: %v", ErrInvalidEnvelope, err)
	}
	return s.Import(ctx, data, mode)
}

// readAllContext drains r in chunks, checking ctx between reads.
func readAllContext(ctx context.Context, r io.Reader) ([]byte, bool, error) {
	var data []byte
	chunk := make([]byte, 32*1024)
	for {
		if ctx.Err() != nil {
			return nil, true, nil
		}
		n, err := r.Read(chunk)
		data = append(data, chunk[:n]...)
		if err == io.EOF {
			return data, false, nil
		}
		if err != nil {
			return nil, false, err
		}
	}
}

// importableReason explains why an entry cannot be applied, or returns ""
// when it can.
func (s *Store) importableReason(key, value string) string {
	if strings.HasPrefix(key, s.cfg.ReservedPrefix) {
		return "reserved prefix"
	}
	if err := s.validateKey(key); err != nil {
		return err.Error()
	}
	if len(value) > s.cfg.MaxValueBytes {
		return fmt.Sprintf("value of %d bytes exceeds limit %d", len(value), s.cfg.MaxValueBytes)
	}
	return ""
}
