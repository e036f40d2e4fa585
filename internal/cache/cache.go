// Package cache keeps downloaded ICS feeds on disk so an unchanged feed is
// revalidated with the server instead of downloaded again.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauern/calmirror/internal/util"
)

// Entry describes one cached feed. The feed URL itself is never stored
// because subscription URLs usually embed a secret token.
type Entry struct {
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	FetchedAt    time.Time `json:"fetched_at"`
	File         string    `json:"file"`
	Size         int       `json:"size"`
}

// Fresh reports whether the entry was fetched within ttl of now.
func (e Entry) Fresh(ttl time.Duration, now time.Time) bool {
	return ttl > 0 && now.Sub(e.FetchedAt) < ttl
}

// Cache is a directory of feed bodies plus a JSON index.
type Cache struct {
	Version string           `json:"version"`
	Entries map[string]Entry `json:"entries"`

	mu   sync.Mutex
	dir  string
	path string
	now  func() time.Time
}

const (
	cacheVersion = "1"
	indexFile    = "feeds.json"
	// DefaultTTL is how long a feed is served without asking the server.
	DefaultTTL = 5 * time.Minute
)

// DefaultDir returns the feed cache directory under the data dir.
func DefaultDir() string {
	return filepath.Join(util.DataDir(), "cache", "feeds")
}

// New creates or loads the cache in dir, or in DefaultDir when dir is empty.
// A corrupt or outdated index starts the cache fresh.
func New(dir string) (*Cache, error) {
	if dir == "" {
		dir = DefaultDir()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}

	c := &Cache{
		Version: cacheVersion,
		Entries: make(map[string]Entry),
		dir:     dir,
		path:    filepath.Join(dir, indexFile),
		now:     time.Now,
	}

	// #nosec G304 - path is built from the cache directory
	if data, err := os.ReadFile(c.path); err == nil {
		if err := json.Unmarshal(data, c); err != nil || c.Version != cacheVersion {
			c.Entries = make(map[string]Entry)
			c.Version = cacheVersion
		}
		if c.Entries == nil {
			c.Entries = make(map[string]Entry)
		}
	}
	return c, nil
}

// Key hashes a feed URL into the index key and body file name.
func Key(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:16])
}

// Get returns the entry and body cached for url. An entry whose body file
// went missing is dropped.
func (c *Cache) Get(url string) (Entry, []byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := Key(url)
	entry, ok := c.Entries[key]
	if !ok {
		return Entry{}, nil, false
	}
	// #nosec G304 - file name is a hash inside the cache directory
	body, err := os.ReadFile(filepath.Join(c.dir, entry.File))
	if err != nil {
		delete(c.Entries, key)
		return Entry{}, nil, false
	}
	return entry, body, true
}

// Set stores a freshly downloaded body for url.
func (c *Cache) Set(url string, body []byte, etag, lastModified string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := Key(url)
	file := key + ".ics"
	if err := util.WriteFileAtomic(filepath.Join(c.dir, file), body, 0o600); err != nil {
		return err
	}
	c.Entries[key] = Entry{
		ETag:         etag,
		LastModified: lastModified,
		FetchedAt:    c.now(),
		File:         file,
		Size:         len(body),
	}
	return nil
}

// Touch marks url as revalidated now.
func (c *Cache) Touch(url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := Key(url)
	if e, ok := c.Entries[key]; ok {
		e.FetchedAt = c.now()
		c.Entries[key] = e
	}
}

// Save persists the index.
func (c *Cache) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return util.WriteFileAtomic(c.path, data, 0o600)
}

// Clear removes every entry, its body and the index.
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var errs []error
	for key, e := range c.Entries {
		if err := os.Remove(filepath.Join(c.dir, e.File)); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
		delete(c.Entries, key)
	}
	if err := os.Remove(c.path); err != nil && !os.IsNotExist(err) {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Size returns the number of entries in the cache.
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Entries)
}

// Prune removes entries not fetched within maxAge and returns how many.
func (c *Cache) Prune(maxAge time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	pruned := 0
	for key, e := range c.Entries {
		if now.Sub(e.FetchedAt) > maxAge {
			_ = os.Remove(filepath.Join(c.dir, e.File))
			delete(c.Entries, key)
			pruned++
		}
	}
	return pruned
}
