package store

import (
	"context"
	"runtime"

	"github.com/tailored-agentic-units/tierstore/backend"
	"github.com/tailored-agentic-units/tierstore/observability"
)

// attemptLocked runs one backend operation under the retry policy: quota and
// security failures are final, transient and unknown failures are retried up
// to TransientRetryCount times after yielding control. Every failed attempt
// is recorded in the ledger, including ones a retry later recovers.
// Returns nil on success or the final classified error.
func (s *Store) attemptLocked(ctx context.Context, tier Tier, op, key string, fn func() error) error {
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		s.recordLocked(ctx, tier, op, key, err)

		kind := backend.Classify(err)
		retryable := kind == backend.KindTransient || kind == backend.KindUnknown
		if !retryable || attempt >= s.cfg.TransientRetryCount {
			return err
		}
		runtime.Gosched()
	}
}

// recordLocked appends a failure to the ledger, emits the audit event, and
// invalidates the tier's cached probe unless disabled.
func (s *Store) recordLocked(ctx context.Context, tier Tier, op, key string, err error) {
	rec := FailureRecord{
		Kind:      backend.Classify(err),
		Tier:      tier,
		Timestamp: s.now(),
		Operation: op,
		Key:       key,
		Message:   err.Error(),
	}
	s.ledger.append(rec)

	if !s.cfg.NoAutoReprobe {
		s.prober.invalidate(tier)
	}

	s.emit(ctx, EventFailureRecorded, observability.LevelWarning, "store."+op, map[string]any{
		"tier": tier.String(),
		"kind": rec.Kind.String(),
		"key":  key,
	})
}

// demoteLocked moves the active tier one step down the order. Demotion is
// monotonic: once the store reaches the volatile backstop it stays there
// until an explicit Reprobe.
func (s *Store) demoteLocked(ctx context.Context, kind backend.Kind, op string) {
	if s.activeIdx >= len(s.order)-1 {
		return
	}
	from := s.order[s.activeIdx]
	s.activeIdx++
	to := s.order[s.activeIdx]

	s.emit(ctx, EventTierDemoted, observability.LevelWarning, "store."+op, map[string]any{
		"from": from.String(),
		"to":   to.String(),
		"kind": kind.String(),
	})
}
