// Package gitcache is a bounded, TTL-expiring cache of open repository
// handles, adapted from go-git's own plumbing/cache.Object interface
// (Add/Get/Clear) generalized from "object cache within one open
// repository" to "open-handle cache across every repository on a host."
package gitcache

import (
	"container/list"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/vcsindex/barehub/internal/gitrepo"
)

// entry is one cached handle plus its bookkeeping.
type entry struct {
	path      string
	repo      *gitrepo.Repo
	expiresAt time.Time
	listElem  *list.Element
}

// Cache bounds the number of simultaneously open repository handles and
// expires idle ones after a TTL. Concurrent Get calls for the same path
// that miss the cache are collapsed into a single Open via singleflight, so
// a burst of simultaneous requests for one repository opens it once.
type Cache struct {
	mu      sync.Mutex
	byPath  map[string]*entry
	order   *list.List // front = most recently used
	maxSize int
	ttl     time.Duration
	group   singleflight.Group
}

// New creates a cache holding at most maxSize handles, each expiring ttl
// after its last access.
func New(maxSize int, ttl time.Duration) *Cache {
	return &Cache{
		byPath:  make(map[string]*entry),
		order:   list.New(),
		maxSize: maxSize,
		ttl:     ttl,
	}
}

// Get returns the cached handle for path, opening it (and evicting the
// least-recently-used entry if the cache is full) if absent or expired.
func (c *Cache) Get(path string) (*gitrepo.Repo, error) {
	if repo, ok := c.lookup(path); ok {
		return repo, nil
	}

	v, err, _ := c.group.Do(path, func() (interface{}, error) {
		if repo, ok := c.lookup(path); ok {
			return repo, nil
		}
		repo, err := gitrepo.Open(path)
		if err != nil {
			return nil, err
		}
		c.add(path, repo)
		return repo, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*gitrepo.Repo), nil
}

func (c *Cache) lookup(path string) (*gitrepo.Repo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.byPath[path]
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		c.removeLocked(e)
		return nil, false
	}
	c.order.MoveToFront(e.listElem)
	e.expiresAt = time.Now().Add(c.ttl)
	return e.repo, true
}

func (c *Cache) add(path string, repo *gitrepo.Repo) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.byPath[path]; ok {
		c.removeLocked(existing)
	}
	for c.order.Len() >= c.maxSize && c.maxSize > 0 {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.removeLocked(oldest.Value.(*entry))
	}

	e := &entry{path: path, repo: repo, expiresAt: time.Now().Add(c.ttl)}
	e.listElem = c.order.PushFront(e)
	c.byPath[path] = e
}

// removeLocked removes e from both index structures. Caller must hold mu.
func (c *Cache) removeLocked(e *entry) {
	delete(c.byPath, e.path)
	c.order.Remove(e.listElem)
}

// Evict drops path from the cache unconditionally, e.g. after an indexer
// detects the repository was deleted from disk.
func (c *Cache) Evict(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.byPath[path]; ok {
		c.removeLocked(e)
	}
}

// Clear empties the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byPath = make(map[string]*entry)
	c.order.Init()
}

// Len reports the number of handles currently cached.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
