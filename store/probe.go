package store

import (
	"strings"

	"github.com/tailored-agentic-units/tierstore/backend"
)

// ProbeResult describes what a capability probe observed about a tier.
type ProbeResult struct {
	Available             bool `json:"available"`
	Persistent            bool `json:"persistent"`
	EstimatedCeilingBytes int  `json:"estimated_ceiling_bytes,omitempty"` // 0 = no ceiling observed
	PrivateModeSuspected  bool `json:"private_mode_suspected"`
}

const (
	probeSentinel      = "x"
	secondaryProbeSize = 1 << 10
	// Ceiling reported when even the 1-byte sentinel hits quota, the
	// signature of a severely restricted private mode.
	smallQuotaCeiling = 4 << 10
)

// prober runs capability probes against tier backends and caches the
// results until invalidated. Not self-synchronized; the store holds its
// lock around every call.
type prober struct {
	reservedPrefix string
	cache          map[Tier]ProbeResult
}

func newProber(reservedPrefix string) *prober {
	return &prober{
		reservedPrefix: reservedPrefix,
		cache:          make(map[Tier]ProbeResult),
	}
}

// probe returns the cached result for tier or runs a fresh probe.
func (p *prober) probe(tier Tier, b backend.Backend) ProbeResult {
	if res, ok := p.cache[tier]; ok {
		return res
	}
	res := p.run(tier, b)
	p.cache[tier] = res
	return res
}

// invalidate drops the cached result for tier.
func (p *prober) invalidate(tier Tier) {
	delete(p.cache, tier)
}

// invalidateAll drops every cached result.
func (p *prober) invalidateAll() {
	p.cache = make(map[Tier]ProbeResult)
}

// run performs the probe sequence: write a 1-byte sentinel under a reserved
// key, read it back, compare, delete, then attempt a ~1 KiB secondary write
// to estimate the quota ceiling. A read-back mismatch (including the
// empty-string reads some restricted environments return after accepting a
// write) marks the tier unavailable.
func (p *prober) run(tier Tier, b backend.Backend) ProbeResult {
	if tier == TierVolatile {
		return ProbeResult{Available: true}
	}
	if b == nil {
		return ProbeResult{}
	}

	// A backend that cannot even enumerate is unavailable outright.
	if _, err := b.Count(); err != nil {
		return ProbeResult{}
	}

	key := p.reservedPrefix + "probe"
	defer p.sweepReserved(b)

	if err := b.Write(key, probeSentinel); err != nil {
		if backend.Classify(err) == backend.KindQuota {
			return ProbeResult{
				Available:             true,
				Persistent:            true,
				EstimatedCeilingBytes: smallQuotaCeiling,
				PrivateModeSuspected:  true,
			}
		}
		return ProbeResult{}
	}

	got, ok, err := b.Read(key)
	if err != nil || !ok || got != probeSentinel {
		// Accepted the write but lost the data: silent-loss mode.
		return ProbeResult{}
	}

	res := ProbeResult{Available: true, Persistent: true}

	large := strings.Repeat("y", secondaryProbeSize)
	if err := b.Write(key, large); err != nil {
		if backend.Classify(err) == backend.KindQuota {
			res.EstimatedCeilingBytes = secondaryProbeSize
			res.PrivateModeSuspected = true
		}
	}

	return res
}

// sweepReserved removes leftover reserved-prefix keys from a backend.
// Reserved keys are transient probe state; a crash mid-probe must not leak
// them into enumeration. Failures here are ignored — the probe verdict
// already stands.
func (p *prober) sweepReserved(b backend.Backend) {
	n, err := b.Count()
	if err != nil {
		return
	}
	var stale []string
	for i := 0; i < n; i++ {
		key, ok, err := b.KeyAt(i)
		if err != nil {
			return
		}
		if ok && strings.HasPrefix(key, p.reservedPrefix) {
			stale = append(stale, key)
		}
	}
	for _, key := range stale {
		_ = b.Delete(key)
	}
}
