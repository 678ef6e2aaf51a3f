package backend

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"syscall"

	"github.com/dgraph-io/badger/v4"
)

// BadgerConfig holds options for the embedded-database adapter.
type BadgerConfig struct {
	// Path is the directory for database files. Required unless InMemory.
	Path string
	// InMemory opens the database without disk persistence. For testing.
	InMemory bool
	// SyncWrites forces a disk sync on every write.
	SyncWrites bool
	// Logger receives badger's internal log output. Nil disables it.
	Logger *slog.Logger
}

// BadgerKV is an adapter over an embedded badger database. It is the
// highest-durability tier: entries survive process restarts and writes can
// be synchronous.
type BadgerKV struct {
	db    *badger.DB
	owned bool
}

// OpenBadger opens a database per cfg and wraps it in an adapter. The
// returned adapter owns the database; Close releases it.
func OpenBadger(cfg BadgerConfig) (*BadgerKV, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for a persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &BadgerKV{db: db, owned: true}, nil
}

// NewBadgerKV wraps an already-open database. The caller retains ownership;
// Close is a no-op.
func NewBadgerKV(db *badger.DB) *BadgerKV {
	return &BadgerKV{db: db}
}

// Close releases the database if this adapter opened it.
func (b *BadgerKV) Close() error {
	if !b.owned {
		return nil
	}
	return b.db.Close()
}

func (b *BadgerKV) Read(key string) (string, bool, error) {
	var value string
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			value = string(val)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, classifyBadger("read", key, err)
	}
	return value, true, nil
}

func (b *BadgerKV) Write(key, value string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), []byte(value))
	})
	if err != nil {
		return classifyBadger("write", key, err)
	}
	return nil
}

func (b *BadgerKV) Delete(key string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
		return classifyBadger("delete", key, err)
	}
	return nil
}

func (b *BadgerKV) Clear() error {
	if err := b.db.DropAll(); err != nil {
		return classifyBadger("clear", "", err)
	}
	return nil
}

func (b *BadgerKV) Count() (int, error) {
	n := 0
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	if err != nil {
		return 0, classifyBadger("count", "", err)
	}
	return n, nil
}

func (b *BadgerKV) KeyAt(index int) (string, bool, error) {
	if index < 0 {
		return "", false, nil
	}
	var key string
	found := false
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		i := 0
		for it.Rewind(); it.Valid(); it.Next() {
			if i == index {
				key = string(it.Item().KeyCopy(nil))
				found = true
				return nil
			}
			i++
		}
		return nil
	})
	if err != nil {
		return "", false, classifyBadger("keyat", "", err)
	}
	return key, found, nil
}

// classifyBadger buckets a badger error into the adapter taxonomy.
func classifyBadger(op, key string, err error) error {
	kind := KindUnknown
	switch {
	case errors.Is(err, badger.ErrTxnTooBig) || errors.Is(err, syscall.ENOSPC) || errors.Is(err, syscall.EDQUOT):
		kind = KindQuota
	case os.IsPermission(err) || errors.Is(err, syscall.EROFS):
		kind = KindSecurity
	case errors.Is(err, badger.ErrConflict) || errors.Is(err, badger.ErrBlockedWrites):
		kind = KindTransient
	}
	return &Error{Kind: kind, Op: op, Key: key, Err: err}
}

// badgerLogger adapts slog.Logger to badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
