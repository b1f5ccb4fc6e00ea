// Package contentcache implements the hash-validated local cache of SKILL
// documents used by the CLI and the read API to avoid repeated fetches.
// Entries are JSON files under a cache directory; eviction is LRU by last
// access once the entry count exceeds the configured maximum.
package contentcache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/skilldex-dev/skilldex/internal/skills"
)

const (
	// DefaultMaxItems bounds the number of cached documents.
	DefaultMaxItems = 100
	// PruneFraction of the oldest entries (by last access) is removed when
	// the cache overflows.
	PruneFraction = 0.20
	// StaleAfter is how long an entry without a registry hash to validate
	// against is served before refetching.
	StaleAfter = time.Hour
)

// Entry is one cached SKILL document.
type Entry struct {
	Content        string    `json:"content"`
	ContentHash    string    `json:"content_hash"`
	CommitSHA      string    `json:"commit_sha,omitempty"`
	Source         string    `json:"source"` // "host" or "registry"
	CachedAt       time.Time `json:"cached_at"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
}

// FetchFunc retrieves the current document from the source of truth.
// It returns the content and, when known, the commit SHA.
type FetchFunc func(ctx context.Context) (content, commitSHA string, err error)

// Cache is a file-backed LRU content cache. Writers take a per-key lock;
// concurrent readers of distinct keys do not block each other.
type Cache struct {
	dir      string
	maxItems int

	mu    sync.Mutex
	locks map[string]*sync.Mutex
	now   func() time.Time
}

// New creates the cache directory if needed.
func New(dir string, maxItems int) (*Cache, error) {
	if maxItems <= 0 {
		maxItems = DefaultMaxItems
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &Cache{
		dir:      dir,
		maxItems: maxItems,
		locks:    make(map[string]*sync.Mutex),
		now:      time.Now,
	}, nil
}

// Key builds the cache key for a skill coordinate.
func Key(owner, repo, path string) string {
	if path == "" {
		path = "root"
	}
	sanitize := func(s string) string {
		return strings.Map(func(r rune) rune {
			switch r {
			case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
				return '-'
			}
			return r
		}, s)
	}
	return sanitize(owner) + "_" + sanitize(repo) + "_" + sanitize(path)
}

// Get serves the document for key, consulting the cache first.
//
// Read path: when the registry reports a content hash and it matches the
// cached entry, the cached copy is authoritative. When no hash is available,
// a cached copy younger than StaleAfter is served. Otherwise the fetcher is
// invoked, the entry rewritten, and the fresh content returned.
func (c *Cache) Get(ctx context.Context, key, registryHash string, fetch FetchFunc) (*Entry, error) {
	lock := c.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	entry, err := c.load(key)
	if err == nil {
		fresh := false
		switch {
		case registryHash != "" && entry.ContentHash == registryHash:
			fresh = true
		case registryHash == "" && c.now().Sub(entry.CachedAt) < StaleAfter:
			fresh = true
		}
		if fresh {
			entry.LastAccessedAt = c.now()
			if err := c.store(key, entry); err != nil {
				return nil, err
			}
			return entry, nil
		}
	}

	content, sha, err := fetch(ctx)
	if err != nil {
		// Serve a stale copy rather than failing when the upstream is down.
		if entry != nil {
			return entry, nil
		}
		return nil, err
	}

	entry = &Entry{
		Content:        content,
		ContentHash:    skills.ContentHash(content),
		CommitSHA:      sha,
		Source:         "host",
		CachedAt:       c.now(),
		LastAccessedAt: c.now(),
	}
	if err := c.store(key, entry); err != nil {
		return nil, err
	}
	c.pruneIfNeeded()
	return entry, nil
}

// Put stores content fetched from the registry directly.
func (c *Cache) Put(key, content, commitSHA, from string) error {
	lock := c.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	entry := &Entry{
		Content:        content,
		ContentHash:    skills.ContentHash(content),
		CommitSHA:      commitSHA,
		Source:         from,
		CachedAt:       c.now(),
		LastAccessedAt: c.now(),
	}
	if err := c.store(key, entry); err != nil {
		return err
	}
	c.pruneIfNeeded()
	return nil
}

// Invalidate drops the entry for key, if present.
func (c *Cache) Invalidate(key string) error {
	lock := c.keyLock(key)
	lock.Lock()
	defer lock.Unlock()
	err := os.Remove(c.entryPath(key))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	entries, _ := os.ReadDir(c.dir)
	n := 0
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".json") {
			n++
		}
	}
	return n
}

func (c *Cache) keyLock(key string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[key]
	if !ok {
		l = &sync.Mutex{}
		c.locks[key] = l
	}
	return l
}

func (c *Cache) entryPath(key string) string {
	return filepath.Join(c.dir, key+".json")
}

func (c *Cache) load(key string) (*Entry, error) {
	data, err := os.ReadFile(c.entryPath(key))
	if err != nil {
		return nil, err
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("decode cache entry %s: %w", key, err)
	}
	return &e, nil
}

func (c *Cache) store(key string, e *Entry) error {
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	tmp := c.entryPath(key) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	return os.Rename(tmp, c.entryPath(key))
}

// pruneIfNeeded removes the oldest PruneFraction of entries by last access
// once the count exceeds maxItems.
func (c *Cache) pruneIfNeeded() {
	type aged struct {
		key  string
		last time.Time
	}
	files, err := os.ReadDir(c.dir)
	if err != nil {
		return
	}
	var all []aged
	for _, f := range files {
		name := f.Name()
		if !strings.HasSuffix(name, ".json") {
			continue
		}
		key := strings.TrimSuffix(name, ".json")
		e, err := c.load(key)
		if err != nil {
			continue
		}
		all = append(all, aged{key: key, last: e.LastAccessedAt})
	}
	if len(all) <= c.maxItems {
		return
	}
	sort.Slice(all, func(i, j int) bool { return all[i].last.Before(all[j].last) })
	drop := int(float64(c.maxItems) * PruneFraction)
	if drop < 1 {
		drop = 1
	}
	over := len(all) - c.maxItems
	if over > drop {
		drop = over
	}
	for _, victim := range all[:drop] {
		os.Remove(c.entryPath(victim.key))
	}
}
