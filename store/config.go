package store

import (
	"encoding/json"
	"fmt"
	"os"
)

// Defaults for Config fields left zero.
const (
	defaultMaxKeyLength     = 256
	defaultMaxValueBytes    = 5 << 20
	defaultMaxFailureLedger = 10
	defaultTransientRetries = 1
	defaultReservedPrefix   = "__rcsc_"
)

// Config holds store initialization parameters. The zero value is usable;
// zero fields take the documented defaults via DefaultConfig/Merge.
type Config struct {
	// MaxKeyLength rejects keys longer than this many UTF-16 code units.
	MaxKeyLength int `json:"max_key_length,omitempty"`
	// MaxValueBytes rejects values longer than this many bytes.
	MaxValueBytes int `json:"max_value_bytes,omitempty"`
	// MaxFailureLedger caps the per-tier failure ring buffer.
	MaxFailureLedger int `json:"max_failure_ledger,omitempty"`
	// TransientRetryCount is how many times a transient failure is retried
	// before it demotes the active tier.
	TransientRetryCount int `json:"transient_retry_count,omitempty"`
	// ReservedPrefix marks internal probe keys. Keys carrying it are
	// rejected from Set, hidden from enumeration, and never exported.
	ReservedPrefix string `json:"reserved_prefix,omitempty"`
	// NoAutoReprobe disables probe-cache invalidation on classified
	// failures. The zero value keeps invalidation on.
	NoAutoReprobe bool `json:"no_auto_reprobe,omitempty"`
}

// DefaultConfig returns the default store configuration.
func DefaultConfig() Config {
	return Config{
		MaxKeyLength:        defaultMaxKeyLength,
		MaxValueBytes:       defaultMaxValueBytes,
		MaxFailureLedger:    defaultMaxFailureLedger,
		TransientRetryCount: defaultTransientRetries,
		ReservedPrefix:      defaultReservedPrefix,
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.MaxKeyLength > 0 {
		c.MaxKeyLength = source.MaxKeyLength
	}
	if source.MaxValueBytes > 0 {
		c.MaxValueBytes = source.MaxValueBytes
	}
	if source.MaxFailureLedger > 0 {
		c.MaxFailureLedger = source.MaxFailureLedger
	}
	if source.TransientRetryCount > 0 {
		c.TransientRetryCount = source.TransientRetryCount
	}
	if source.ReservedPrefix != "" {
		c.ReservedPrefix = source.ReservedPrefix
	}
	if source.NoAutoReprobe {
		c.NoAutoReprobe = true
	}
}

// LoadConfig reads a JSON config file, merges it with defaults, and returns
// the resulting Config.
func LoadConfig(filename string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var loaded Config
	if err := json.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.Merge(&loaded)
	return &cfg, nil
}

// withDefaults returns c with zero fields replaced by defaults.
func (c Config) withDefaults() Config {
	merged := DefaultConfig()
	merged.Merge(&c)
	return merged
}
