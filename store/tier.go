// Package store implements a resilient tiered key-value store. Writes go
// through an in-process shadow first and then to the highest available
// persistent tier; classified backend failures demote the active tier toward
// the volatile backstop, never losing a value the application has observed.
// Degradation, probe results, and import/export progress are reported on a
// structured event channel.
package store

import "fmt"

// Tier identifies a persistence mechanism. Demotion runs from TierPersistentA
// down to TierVolatile; TierVolatile is the backstop and can never be
// unavailable.
type Tier int

const (
	TierPersistentA Tier = iota // embedded database, most durable
	TierPersistentB             // flat-file directory
	TierVolatile                // in-process memory
)

func (t Tier) String() string {
	switch t {
	case TierPersistentA:
		return "persistent-a"
	case TierPersistentB:
		return "persistent-b"
	case TierVolatile:
		return "volatile"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// ParseTier maps a tier name back to its Tier. The zero result and false are
// returned for unknown names.
func ParseTier(name string) (Tier, bool) {
	switch name {
	case "persistent-a":
		return TierPersistentA, true
	case "persistent-b":
		return TierPersistentB, true
	case "volatile":
		return TierVolatile, true
	}
	return 0, false
}

// Persistent reports whether the tier survives process restarts.
func (t Tier) Persistent() bool {
	return t == TierPersistentA || t == TierPersistentB
}
