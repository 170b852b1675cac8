// Package badger provides a persistent upload cache backed by BadgerDB, so
// re-upload short-circuiting survives worker restarts.
package badger

import (
	"context"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"

	"github.com/marmos91/fsbridge/internal/logger"
	"github.com/marmos91/fsbridge/pkg/cache"
)

// keyPrefix namespaces cache keys so the database can hold other data later.
const keyPrefix = "upload:digest:"

func key(digest string) []byte {
	return []byte(keyPrefix + digest)
}

// Entries are stored as deterministic CBOR. Times keep nanosecond precision.
var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	encOptions.Time = cbor.TimeRFC3339Nano
	if encMode, err = encOptions.EncMode(); err != nil {
		panic("badger cache: CBOR encoder initialization failed: " + err.Error())
	}
	if decMode, err = (cbor.DecOptions{}).DecMode(); err != nil {
		panic("badger cache: CBOR decoder initialization failed: " + err.Error())
	}
}

// Config configures a BadgerDB-backed cache.
type Config struct {
	// DBPath is the directory holding the database files. It is created if
	// missing.
	DBPath string `mapstructure:"db_path" validate:"required_without=InMemory"`

	// InMemory runs Badger without touching disk. Used by tests.
	InMemory bool `mapstructure:"in_memory"`
}

// Cache is a cache.Cache persisted in BadgerDB. Badger transactions make it
// safe for concurrent use without extra locking.
type Cache struct {
	db *badger.DB
}

// New opens (or creates) the cache database.
//
// Parameters:
//   - ctx: Context for cancellation before the database is opened
//   - config: Database location
//
// Returns:
//   - *Cache: Ready-to-use cache
//   - error: If the database cannot be opened
func New(ctx context.Context, config Config) (*Cache, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var opts badger.Options
	if config.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if config.DBPath == "" {
			return nil, errors.New("badger cache: db_path is required")
		}
		opts = badger.DefaultOptions(config.DBPath)
	}
	opts = opts.WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", config.DBPath, err)
	}

	logger.Info("Upload cache opened: badger path=%s in_memory=%v", config.DBPath, config.InMemory)
	return &Cache{db: db}, nil
}

func (c *Cache) Lookup(ctx context.Context, digest string) (cache.Entry, bool, error) {
	if err := ctx.Err(); err != nil {
		return cache.Entry{}, false, err
	}

	var entry cache.Entry
	found := false

	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(digest))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			if err := decMode.Unmarshal(val, &entry); err != nil {
				return fmt.Errorf("failed to decode cache entry: %w", err)
			}
			found = true
			return nil
		})
	})
	if err != nil {
		return cache.Entry{}, false, mapError(err)
	}
	return entry, found, nil
}

func (c *Cache) Put(ctx context.Context, digest string, entry cache.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	val, err := encMode.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}

	return mapError(c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(digest), val)
	}))
}

func (c *Cache) Evict(ctx context.Context, digest string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return mapError(c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key(digest))
	}))
}

func (c *Cache) Len(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	n := 0
	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(keyPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, mapError(err)
}

// Close flushes and closes the database.
func (c *Cache) Close() error {
	if err := c.db.Close(); err != nil {
		return fmt.Errorf("failed to close BadgerDB: %w", err)
	}
	return nil
}

func mapError(err error) error {
	if errors.Is(err, badger.ErrDBClosed) {
		return cache.ErrClosed
	}
	return err
}
