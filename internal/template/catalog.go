package template

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Store defines the storage operations the Catalog needs.
// Implemented by storage.Store.
type Store interface {
	ListTemplates() ([]Template, error)
}

// ErrStoreNotFound is returned for lookups of unknown template ids.
var ErrStoreNotFound = errors.New("template not found")

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Catalog provides cached, read-only lookup of interview templates. Store
// templates shadow built-in ones with the same id, so an operator can replace
// the stock onboarding flow without a rebuild.
type Catalog struct {
	store    Store
	builtins []Template
	clock    Clock
	ttl      time.Duration

	mu       sync.RWMutex
	cached   map[string]Template
	cachedAt time.Time
}

// NewCatalog creates a Catalog over the given store with the built-in
// templates registered and a 60-second cache TTL.
func NewCatalog(store Store) *Catalog {
	return NewCatalogWithClock(store, realClock{}, 60*time.Second)
}

// NewCatalogWithClock creates a Catalog with a custom clock (for testing).
func NewCatalogWithClock(store Store, clock Clock, ttl time.Duration) *Catalog {
	return &Catalog{
		store:    store,
		builtins: Builtins(),
		clock:    clock,
		ttl:      ttl,
	}
}

// Get returns the active template with the given id. Non-active templates
// are rejected with ErrNotActive; unknown ids return ErrStoreNotFound.
func (c *Catalog) Get(id string) (Template, error) {
	all, err := c.load()
	if err != nil {
		return Template{}, err
	}
	t, ok := all[id]
	if !ok {
		return Template{}, fmt.Errorf("template %q: %w", id, ErrStoreNotFound)
	}
	if t.Status != StatusActive {
		return Template{}, fmt.Errorf("template %q has status %q: %w", id, t.Status, ErrNotActive)
	}
	return t, nil
}

// Default returns the first active template in deterministic (built-ins
// first, then store listing) order. A deployment with no active template is
// unusable, so this is an error, not an empty result.
func (c *Catalog) Default() (Template, error) {
	for _, b := range c.builtins {
		if t, err := c.Get(b.ID); err == nil {
			return t, nil
		}
	}

	list, err := c.List()
	if err != nil {
		return Template{}, err
	}
	for _, t := range list {
		if t.Status == StatusActive {
			return t, nil
		}
	}
	return Template{}, errors.New("no active interview template configured")
}

// List returns all known templates, store-defined ones shadowing built-ins.
func (c *Catalog) List() ([]Template, error) {
	all, err := c.load()
	if err != nil {
		return nil, err
	}

	// Built-in order first for stability, then any store-only extras.
	seen := make(map[string]bool, len(all))
	out := make([]Template, 0, len(all))
	for _, b := range c.builtins {
		if t, ok := all[b.ID]; ok {
			out = append(out, t)
			seen[b.ID] = true
		}
	}
	stored, err := c.store.ListTemplates()
	if err != nil {
		return nil, fmt.Errorf("listing templates: %w", err)
	}
	for _, t := range stored {
		if !seen[t.ID] {
			out = append(out, all[t.ID])
			seen[t.ID] = true
		}
	}
	return out, nil
}

// Invalidate drops the cache; the next lookup reloads from the store.
func (c *Catalog) Invalidate() {
	c.mu.Lock()
	c.cached = nil
	c.mu.Unlock()
}

func (c *Catalog) load() (map[string]Template, error) {
	c.mu.RLock()
	if c.cached != nil && c.clock.Now().Before(c.cachedAt.Add(c.ttl)) {
		m := c.cached
		c.mu.RUnlock()
		return m, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cached != nil && c.clock.Now().Before(c.cachedAt.Add(c.ttl)) {
		return c.cached, nil
	}

	m := make(map[string]Template, len(c.builtins))
	for _, b := range c.builtins {
		m[b.ID] = b
	}
	stored, err := c.store.ListTemplates()
	if err != nil {
		return nil, fmt.Errorf("loading templates: %w", err)
	}
	for _, t := range stored {
		m[t.ID] = t
	}

	c.cached = m
	c.cachedAt = c.clock.Now()
	return m, nil
}
