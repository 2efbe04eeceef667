// Package cache memoizes run results. Entries are addressed by a deterministic
// key derived from everything that influences a run, held in memory and
// optionally persisted to SQLite as msgpack blobs.
package cache

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Namespace scopes run cache keys.
var Namespace = uuid.MustParse("2f6a8d0e-6c1b-4f0e-9a57-5d3c4f1b7e21")

// KeyParams lists the inputs that determine a run's outputs.
type KeyParams struct {
	AOI     string      `msgpack:"aoi"`
	Start   time.Time   `msgpack:"start"`
	End     time.Time   `msgpack:"end"`
	Variant string      `msgpack:"variant"`
	Anchors []time.Time `msgpack:"anchors"`
	Params  any         `msgpack:"params"`
}

// Key returns the cache key for p. Any change to a component yields a
// different key.
func Key(p KeyParams) (uuid.UUID, error) {
	norm := p
	norm.Start = p.Start.UTC()
	norm.End = p.End.UTC()
	norm.Anchors = make([]time.Time, len(p.Anchors))
	for i, a := range p.Anchors {
		norm.Anchors[i] = a.UTC()
	}

	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(&norm); err != nil {
		return uuid.Nil, fmt.Errorf("encoding cache key: %w", err)
	}
	return uuid.NewSHA1(Namespace, buf.Bytes()), nil
}

const schema = `
CREATE TABLE IF NOT EXISTS run_cache (
	key        TEXT PRIMARY KEY,
	payload    BLOB NOT NULL,
	created_at INTEGER NOT NULL
)`

// Cache is safe for concurrent use.
type Cache struct {
	mu      sync.RWMutex
	entries map[uuid.UUID][]byte

	db     *sql.DB
	logger *zap.SugaredLogger
}

// New returns a memory-only cache.
func New(logger *zap.SugaredLogger) *Cache {
	return &Cache{entries: make(map[uuid.UUID][]byte), logger: logger}
}

// Open returns a cache persisted to the SQLite database at path. An empty
// path yields a memory-only cache.
func Open(path string, logger *zap.SugaredLogger) (*Cache, error) {
	c := New(logger)
	if path == "" {
		return c, nil
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping cache database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create cache schema: %w", err)
	}
	c.db = db
	logger.Infof("run cache persisted to %s", path)
	return c, nil
}

// Get decodes the entry for key into v. found is false on a miss.
func (c *Cache) Get(ctx context.Context, key uuid.UUID, v any) (found bool, err error) {
	c.mu.RLock()
	payload, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok && c.db != nil {
		err := c.db.QueryRowContext(ctx, `SELECT payload FROM run_cache WHERE key = ?`, key.String()).Scan(&payload)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return false, fmt.Errorf("reading cache entry %s: %w", key, err)
		default:
			ok = true
			c.mu.Lock()
			c.entries[key] = payload
			c.mu.Unlock()
		}
	}
	if !ok {
		return false, nil
	}

	if err := msgpack.Unmarshal(payload, v); err != nil {
		return false, fmt.Errorf("decoding cache entry %s: %w", key, err)
	}
	c.logger.Debugf("cache hit %s", key)
	return true, nil
}

// Put stores v under key, replacing any previous entry.
func (c *Cache) Put(ctx context.Context, key uuid.UUID, v any) error {
	payload, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding cache entry %s: %w", key, err)
	}

	if c.db != nil {
		_, err := c.db.ExecContext(ctx,
			`INSERT INTO run_cache (key, payload, created_at) VALUES (?, ?, ?)
			 ON CONFLICT (key) DO UPDATE SET payload = excluded.payload, created_at = excluded.created_at`,
			key.String(), payload, time.Now().Unix())
		if err != nil {
			return fmt.Errorf("writing cache entry %s: %w", key, err)
		}
	}

	c.mu.Lock()
	c.entries[key] = payload
	c.mu.Unlock()
	return nil
}

// Invalidate removes the entry for key.
func (c *Cache) Invalidate(ctx context.Context, key uuid.UUID) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()

	if c.db != nil {
		if _, err := c.db.ExecContext(ctx, `DELETE FROM run_cache WHERE key = ?`, key.String()); err != nil {
			return fmt.Errorf("invalidating cache entry %s: %w", key, err)
		}
	}
	return nil
}

// Purge removes every entry.
func (c *Cache) Purge(ctx context.Context) error {
	c.mu.Lock()
	c.entries = make(map[uuid.UUID][]byte)
	c.mu.Unlock()

	if c.db != nil {
		if _, err := c.db.ExecContext(ctx, `DELETE FROM run_cache`); err != nil {
			return fmt.Errorf("purging cache: %w", err)
		}
	}
	c.logger.Info("run cache purged")
	return nil
}

// Len returns the number of entries held in memory.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Close releases the database handle, if any.
func (c *Cache) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}
