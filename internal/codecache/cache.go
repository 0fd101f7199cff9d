// Package codecache keeps finished code objects on disk, keyed by the unit
// content, the target layout and the back end that produced them.
package codecache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"tfjit/internal/codegen"
	"tfjit/internal/config"
	"tfjit/internal/ir"
)

// schemaVersion changes whenever payload or CodeObject layout changes.
const schemaVersion uint16 = 1

// Key identifies one cache entry.
type Key [32]byte

func (k Key) String() string { return hex.EncodeToString(k[:]) }

// KeyFor derives the cache key of a unit compiled for target by backend.
func KeyFor(unit ir.Digest, target config.Target, backend string) (Key, error) {
	t, err := msgpack.Marshal(&target)
	if err != nil {
		return Key{}, fmt.Errorf("cache key: %w", err)
	}
	h := sha256.New()
	h.Write(unit[:])
	h.Write(t)
	h.Write([]byte(backend))
	var k Key
	copy(k[:], h.Sum(nil))
	return k, nil
}

// Payload is what one entry stores.
type Payload struct {
	Schema uint16              `msgpack:"schema"`
	Unit   string              `msgpack:"unit"`
	Stored time.Time           `msgpack:"stored"`
	Object *codegen.CodeObject `msgpack:"object"`
}

// Cache is safe for concurrent use. A nil *Cache is a cache that never hits.
type Cache struct {
	mu  sync.RWMutex
	dir string
}

// Open uses dir, creating it if needed.
func Open(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Cache{dir: dir}, nil
}

// OpenDefault uses $XDG_CACHE_HOME/<app>, falling back to ~/.cache/<app>.
func OpenDefault(app string) (*Cache, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		base = filepath.Join(home, ".cache")
	}
	return Open(filepath.Join(base, app))
}

// Dir returns the cache directory.
func (c *Cache) Dir() string { return c.dir }

func (c *Cache) pathFor(k Key) string {
	s := k.String()
	return filepath.Join(c.dir, "code", s[:2], s+".mp")
}

// Put stores obj under k, replacing any previous entry atomically.
func (c *Cache) Put(k Key, unit string, obj *codegen.CodeObject) (err error) {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.pathFor(k)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(p), "tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if rmErr := os.Remove(f.Name()); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			err = errors.Join(err, rmErr)
		}
	}()

	payload := Payload{Schema: schemaVersion, Unit: unit, Stored: time.Now().UTC(), Object: obj}
	if err := msgpack.NewEncoder(f).Encode(&payload); err != nil {
		_ = f.Close()
		return fmt.Errorf("cache put %s: %w", unit, err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), p)
}

// Get returns the object stored under k. Entries written with another
// schema are treated as misses.
func (c *Cache) Get(k Key) (*codegen.CodeObject, bool, error) {
	if c == nil {
		return nil, false, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	f, err := os.Open(c.pathFor(k))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer f.Close()

	var payload Payload
	if err := msgpack.NewDecoder(f).Decode(&payload); err != nil {
		return nil, false, fmt.Errorf("cache entry %s: %w", k, err)
	}
	if payload.Schema != schemaVersion || payload.Object == nil {
		return nil, false, nil
	}
	return payload.Object, true, nil
}

// DropAll removes every entry.
func (c *Cache) DropAll() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return os.RemoveAll(filepath.Join(c.dir, "code"))
}
