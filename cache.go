package ftl

import (
	"sync"
	"time"

	"github.com/zeebo/xxh3"
)

// DefaultUpdateDelay is how long a loaded template is trusted before its
// source is fetched again.
const DefaultUpdateDelay = 5 * time.Second

// templateCache maps full template names to compiled templates.
//
// Templates from a loader are re-fetched once their update delay has
// passed; they are only re-parsed when the xxh3 fingerprint of the source
// changed. Templates added directly never expire.
type templateCache struct {
	mu          sync.Mutex
	entries     map[string]*cacheEntry
	updateDelay time.Duration
	now         func() time.Time
}

type cacheEntry struct {
	tmpl        *Template
	fingerprint uint64
	checked     time.Time
	pinned      bool
}

func newTemplateCache() *templateCache {
	return &templateCache{
		entries:     make(map[string]*cacheEntry),
		updateDelay: DefaultUpdateDelay,
		now:         time.Now,
	}
}

func fingerprint(source string) uint64 {
	return xxh3.HashString(source)
}

// lookup returns a cached template that is still fresh.
func (c *templateCache) lookup(name string) (*Template, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[name]
	if !ok {
		return nil, false
	}
	if entry.pinned || c.now().Sub(entry.checked) < c.updateDelay {
		return entry.tmpl, true
	}
	return nil, false
}

// revalidate marks a stale entry fresh again when source is unchanged.
func (c *templateCache) revalidate(name, source string) (*Template, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[name]
	if !ok || entry.fingerprint != fingerprint(source) {
		return nil, false
	}
	entry.checked = c.now()
	return entry.tmpl, true
}

func (c *templateCache) store(tmpl *Template, pinned bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[tmpl.name] = &cacheEntry{
		tmpl:        tmpl,
		fingerprint: tmpl.fingerprint,
		checked:     c.now(),
		pinned:      pinned,
	}
}

func (c *templateCache) remove(name string) {
	c.mu.Lock()
	delete(c.entries, name)
	c.mu.Unlock()
}

func (c *templateCache) clear() {
	c.mu.Lock()
	c.entries = make(map[string]*cacheEntry)
	c.mu.Unlock()
}

func (c *templateCache) setUpdateDelay(d time.Duration) {
	c.mu.Lock()
	c.updateDelay = d
	c.mu.Unlock()
}
