package store

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tailored-agentic-units/tierstore/backend"
	"github.com/tailored-agentic-units/tierstore/observability"
)

// Store is the tiered key-value store. Construct with New (injecting
// adapters) or Open (default on-disk composition). All methods are safe for
// concurrent use. Multiple instances do not coordinate.
type Store struct {
	mu       sync.Mutex
	id       string
	cfg      Config
	backends map[Tier]backend.Backend
	shadow   *backend.MemoryKV // also serves as the TierVolatile backend

	order     []Tier // demotion order, highest available tier first
	activeIdx int    // index into order; only ever increases between reprobes

	prober    *prober
	lastProbe map[Tier]ProbeResult
	ledger    *failureLedger
	observer  observability.Observer
	now       func() time.Time
	closers   []io.Closer
}

// Option configures a Store after config-driven initialization.
type Option func(*Store)

// WithPersistentA injects the adapter for the embedded-database tier.
func WithPersistentA(b backend.Backend) Option {
	return func(s *Store) { s.backends[TierPersistentA] = b }
}

// WithPersistentB injects the adapter for the flat-file tier.
func WithPersistentB(b backend.Backend) Option {
	return func(s *Store) { s.backends[TierPersistentB] = b }
}

// WithObserver subscribes an observer to the store's event channel.
func WithObserver(o observability.Observer) Option {
	return func(s *Store) { s.observer = o }
}

// WithClock overrides the timestamp source for probe results, failure
// records, and export envelopes.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a Store from configuration. Tiers without an injected adapter
// are simply absent; the volatile backstop always exists, so construction
// probes cannot fail the store into a dead state.
func New(cfg Config, opts ...Option) (*Store, error) {
	merged := cfg.withDefaults()
	if merged.ReservedPrefix == "" {
		return nil, fmt.Errorf("%w: reserved prefix must be non-empty", ErrInvalidArgument)
	}

	s := &Store{
		id:        uuid.Must(uuid.NewV7()).String(),
		cfg:       merged,
		backends:  make(map[Tier]backend.Backend),
		shadow:    backend.NewMemoryKV(),
		lastProbe: make(map[Tier]ProbeResult),
		observer:  observability.NoOpObserver{},
		now:       time.Now,
	}
	s.prober = newProber(merged.ReservedPrefix)
	s.ledger = newFailureLedger(merged.MaxFailureLedger)

	for _, opt := range opts {
		opt(s)
	}
	s.backends[TierVolatile] = s.shadow

	s.mu.Lock()
	s.rebuildOrderLocked(context.Background())
	s.mu.Unlock()

	return s, nil
}

// Open creates a Store with the default on-disk composition under dir: an
// embedded database at dir/db as the primary tier and a flat-file directory
// at dir/kv as the secondary. A database that fails to open leaves its tier
// unavailable rather than failing the store.
func Open(dir string, cfg Config, opts ...Option) (*Store, error) {
	var composed []Option

	db, err := backend.OpenBadger(backend.BadgerConfig{
		Path:       filepath.Join(dir, "db"),
		SyncWrites: true,
	})
	if err == nil {
		composed = append(composed, WithPersistentA(db))
	}
	composed = append(composed, WithPersistentB(backend.NewFileKV(filepath.Join(dir, "kv"))))
	composed = append(composed, opts...)

	s, newErr := New(cfg, composed...)
	if newErr != nil {
		if db != nil {
			db.Close()
		}
		return nil, newErr
	}
	if db != nil {
		s.closers = append(s.closers, db)
	}
	return s, nil
}

// Close releases backends the store opened itself (Open's database tier).
// Injected adapters remain the caller's to close.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for _, c := range s.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.closers = nil
	return firstErr
}

// ID returns the store instance identifier carried on every emitted event.
func (s *Store) ID() string {
	return s.id
}

// rebuildOrderLocked probes every configured tier and rebuilds the demotion
// order: available persistent tiers by durability, then the volatile
// backstop. The active tier resets to the top of the new order.
func (s *Store) rebuildOrderLocked(ctx context.Context) {
	s.order = s.order[:0]
	for _, tier := range []Tier{TierPersistentA, TierPersistentB} {
		res := s.prober.probe(tier, s.backends[tier])
		s.lastProbe[tier] = res
		s.emit(ctx, EventProbeDone, observability.LevelInfo, "store.probe", map[string]any{
			"tier":         tier.String(),
			"available":    res.Available,
			"private_mode": res.PrivateModeSuspected,
			"ceiling":      res.EstimatedCeilingBytes,
		})
		if res.Available {
			s.order = append(s.order, tier)
		}
	}
	s.order = append(s.order, TierVolatile)
	s.activeIdx = 0
}

// Reprobe discards cached probe results, re-probes every tier, and selects
// the highest available tier. This is the only path that can move the active
// tier back up; the store never re-promotes on its own.
func (s *Store) Reprobe() {
	ctx := context.Background()
	s.mu.Lock()
	defer s.mu.Unlock()

	s.prober.invalidateAll()
	s.rebuildOrderLocked(ctx)
	s.emit(ctx, EventReprobe, observability.LevelInfo, "store.Reprobe", map[string]any{
		"active": s.activeLocked().String(),
	})
}

// ActiveTier returns the tier currently serving operations.
func (s *Store) ActiveTier() Tier {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeLocked()
}

func (s *Store) activeLocked() Tier {
	return s.order[s.activeIdx]
}

// Get returns the value stored under key. The active tier is read first; a
// classified failure demotes and the read is retried against the new tier.
// A miss on a persistent tier falls back to the in-process shadow, so any
// value written this session is observable even after its tier died.
func (s *Store) Get(key string) (string, bool) {
	if !s.keyReadable(key) {
		return "", false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(context.Background(), key)
}

func (s *Store) getLocked(ctx context.Context, key string) (string, bool) {
	for {
		tier := s.activeLocked()
		if tier == TierVolatile {
			val, ok, _ := s.shadow.Read(key)
			return val, ok
		}

		var val string
		var ok bool
		err := s.attemptLocked(ctx, tier, "read", key, func() error {
			var readErr error
			val, ok, readErr = s.backends[tier].Read(key)
			return readErr
		})
		if err != nil {
			s.demoteLocked(ctx, backend.Classify(err), "read")
			continue
		}
		if ok {
			// Keep the shadow current with every observed value.
			s.shadow.Write(key, val)
			return val, true
		}
		val, ok, _ = s.shadow.Read(key)
		return val, ok
	}
}

// Set stores value under key. The shadow is written first, so a subsequent
// Get observes the value even if the persistent write fails. Returns true
// iff the write is backed by a persistent tier; a classified failure demotes
// the active tier and returns false without replaying the write.
func (s *Store) Set(key, value string) (bool, error) {
	if err := s.validateKey(key); err != nil {
		return false, err
	}
	if len(value) > s.cfg.MaxValueBytes {
		return false, fmt.Errorf("%w: value of %d bytes exceeds limit %d", ErrInvalidArgument, len(value), s.cfg.MaxValueBytes)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setLocked(context.Background(), key, value), nil
}

// setLocked applies a validated write: shadow first, then the active
// persistent tier. Reports whether the write is persistent-backed.
func (s *Store) setLocked(ctx context.Context, key, value string) bool {
	s.shadow.Write(key, value)

	tier := s.activeLocked()
	if tier == TierVolatile {
		return false
	}

	err := s.attemptLocked(ctx, tier, "write", key, func() error {
		return s.backends[tier].Write(key, value)
	})
	if err != nil {
		kind := backend.Classify(err)
		s.demoteLocked(ctx, kind, "write")
		s.emit(ctx, EventWriteDegraded, observability.LevelWarning, "store.Set", map[string]any{
			"key":  key,
			"kind": kind.String(),
			"tier": s.activeLocked().String(),
		})
		return false
	}
	return true
}

// Remove deletes key. Returns true iff the removal is backed by a
// persistent tier.
func (s *Store) Remove(key string) bool {
	if !s.keyReadable(key) {
		return false
	}
	ctx := context.Background()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.shadow.Delete(key)

	tier := s.activeLocked()
	if tier == TierVolatile {
		return false
	}

	err := s.attemptLocked(ctx, tier, "delete", key, func() error {
		return s.backends[tier].Delete(key)
	})
	if err != nil {
		s.demoteLocked(ctx, backend.Classify(err), "delete")
		return false
	}
	return true
}

// Clear removes every entry from the active tier and the shadow. Returns
// true iff the clear is backed by a persistent tier.
func (s *Store) Clear() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clearLocked(context.Background())
}

func (s *Store) clearLocked(ctx context.Context) bool {
	s.shadow.Clear()

	tier := s.activeLocked()
	persisted := tier != TierVolatile
	if persisted {
		err := s.attemptLocked(ctx, tier, "clear", "", func() error {
			return s.backends[tier].Clear()
		})
		if err != nil {
			s.demoteLocked(ctx, backend.Classify(err), "clear")
			persisted = false
		}
	}

	s.emit(ctx, EventCleared, observability.LevelInfo, "store.Clear", map[string]any{
		"tier": tier.String(),
	})
	return persisted
}

// Len returns the number of visible entries in the active tier. Reserved
// probe keys are never counted.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.visibleKeysLocked(context.Background()))
}

// KeyAt returns the key at index in the active tier's enumeration, or
// ok=false when index is out of range. Indices are stable only between
// mutations.
func (s *Store) KeyAt(index int) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := s.visibleKeysLocked(context.Background())
	if index < 0 || index >= len(keys) {
		return "", false
	}
	return keys[index], true
}

// visibleKeysLocked enumerates the active tier, filtering reserved keys.
// Enumeration runs under the same retry policy as every other backend
// operation; exhausted failures demote, and the volatile backstop always
// enumerates.
func (s *Store) visibleKeysLocked(ctx context.Context) []string {
	for {
		tier := s.activeLocked()
		b := s.backends[tier]

		var keys []string
		err := s.attemptLocked(ctx, tier, "enumerate", "", func() error {
			var enumErr error
			keys, enumErr = enumerateKeys(b)
			return enumErr
		})
		if err != nil {
			s.demoteLocked(ctx, backend.Classify(err), "enumerate")
			continue
		}

		visible := keys[:0]
		for _, key := range keys {
			if !strings.HasPrefix(key, s.cfg.ReservedPrefix) {
				visible = append(visible, key)
			}
		}
		return visible
	}
}

func enumerateKeys(b backend.Backend) ([]string, error) {
	n, err := b.Count()
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, n)
	for i := 0; i < n; i++ {
		key, ok, err := b.KeyAt(i)
		if err != nil {
			return nil, err
		}
		if ok {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// Info reports the store's audit surface.
type Info struct {
	StoreID              string                 `json:"store_id"`
	ActiveTier           Tier                   `json:"-"`
	ActiveTierName       string                 `json:"active_tier"`
	Persistent           bool                   `json:"persistent"`
	PrivateModeSuspected bool                   `json:"private_mode_suspected"`
	ItemCount            int                    `json:"item_count"`
	ShadowSize           int                    `json:"shadow_size"`
	FailureCountsByKind  map[string]int         `json:"failure_counts_by_kind"`
	LastFailures         []FailureRecord        `json:"last_failures"`
	Probes               map[string]ProbeResult `json:"probes"`
}

// Info returns a snapshot of the store's state: active tier, persistence,
// private-mode suspicion, sizes, and the failure ledger.
func (s *Store) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	active := s.activeLocked()
	shadowSize, _ := s.shadow.Count()

	privateMode := false
	probes := make(map[string]ProbeResult, len(s.lastProbe))
	for tier, res := range s.lastProbe {
		probes[tier.String()] = res
		if res.PrivateModeSuspected {
			privateMode = true
		}
	}

	return Info{
		StoreID:              s.id,
		ActiveTier:           active,
		ActiveTierName:       active.String(),
		Persistent:           active.Persistent(),
		PrivateModeSuspected: privateMode,
		ItemCount:            len(s.visibleKeysLocked(context.Background())),
		ShadowSize:           shadowSize,
		FailureCountsByKind:  s.ledger.countsByKind(),
		LastFailures:         s.ledger.last(),
		Probes:               probes,
	}
}

// validateKey enforces the write-side key constraints.
func (s *Store) validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidArgument)
	}
	if keyLength(key) > s.cfg.MaxKeyLength {
		return fmt.Errorf("%w: key exceeds %d code units", ErrInvalidArgument, s.cfg.MaxKeyLength)
	}
	if strings.HasPrefix(key, s.cfg.ReservedPrefix) {
		return fmt.Errorf("%w: key uses reserved prefix %q", ErrInvalidArgument, s.cfg.ReservedPrefix)
	}
	return nil
}

// keyLength counts UTF-16 code units: supplementary-plane runes occupy a
// surrogate pair, so they cost two units against the key limit.
func keyLength(key string) int {
	n := 0
	for _, r := range key {
		n++
		if r > 0xFFFF {
			n++
		}
	}
	return n
}

// keyReadable reports whether a key can name user data at all. Reads of
// malformed or reserved keys are plain misses, not errors.
func (s *Store) keyReadable(key string) bool {
	return s.validateKey(key) == nil
}

// emit sends an event to the observer with the store ID attached.
func (s *Store) emit(ctx context.Context, typ observability.EventType, level observability.Level, source string, data map[string]any) {
	if data == nil {
		data = make(map[string]any, 1)
	}
	data["store_id"] = s.id
	s.observer.OnEvent(ctx, observability.Event{
		Type:      typ,
		Level:     level,
		Timestamp: s.now(),
		Source:    source,
		Data:      data,
	})
}
