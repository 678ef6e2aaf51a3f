package store

import (
	"time"

	"github.com/tailored-agentic-units/tierstore/backend"
)

// FailureRecord is one classified backend failure retained for the audit
// surface.
type FailureRecord struct {
	Kind      backend.Kind `json:"kind"`
	Tier      Tier         `json:"tier"`
	Timestamp time.Time    `json:"timestamp"`
	Operation string       `json:"operation"`
	Key       string       `json:"key,omitempty"`
	Message   string       `json:"message"`
}

// failureLedger retains recent failures per tier in capped ring buffers and
// keeps running counts per classification. Callers synchronize access; the
// store holds its own lock around every use.
type failureLedger struct {
	cap     int
	byTier  map[Tier][]FailureRecord
	recent  []FailureRecord
	byKind  map[backend.Kind]int
	perTier map[Tier]int
}

func newFailureLedger(capacity int) *failureLedger {
	return &failureLedger{
		cap:     capacity,
		byTier:  make(map[Tier][]FailureRecord),
		byKind:  make(map[backend.Kind]int),
		perTier: make(map[Tier]int),
	}
}

// append records a failure, evicting the oldest record once a tier's buffer
// exceeds the cap.
func (l *failureLedger) append(rec FailureRecord) {
	l.byKind[rec.Kind]++
	l.perTier[rec.Tier]++

	ring := append(l.byTier[rec.Tier], rec)
	if len(ring) > l.cap {
		ring = ring[len(ring)-l.cap:]
	}
	l.byTier[rec.Tier] = ring

	l.recent = append(l.recent, rec)
	if len(l.recent) > l.cap {
		l.recent = l.recent[len(l.recent)-l.cap:]
	}
}

// records returns the retained failures for a tier, oldest first.
func (l *failureLedger) records(tier Tier) []FailureRecord {
	ring := l.byTier[tier]
	out := make([]FailureRecord, len(ring))
	copy(out, ring)
	return out
}

// last returns the most recent failures across all tiers, oldest first.
func (l *failureLedger) last() []FailureRecord {
	out := make([]FailureRecord, len(l.recent))
	copy(out, l.recent)
	return out
}

// countsByKind returns classification counts keyed by kind name.
func (l *failureLedger) countsByKind() map[string]int {
	counts := make(map[string]int, len(l.byKind))
	for kind, n := range l.byKind {
		counts[kind.String()] = n
	}
	return counts
}

// tierFailures returns the cumulative failure count for a tier, including
// records already evicted from the ring.
func (l *failureLedger) tierFailures(tier Tier) int {
	return l.perTier[tier]
}
