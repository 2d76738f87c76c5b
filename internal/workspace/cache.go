package workspace

import (
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// SettingsCache keeps recently read settings in memory for a short time.
// A nil cache is valid and caches nothing.
type SettingsCache struct {
	cache *lru.LRU[uuid.UUID, Settings]
}

// NewSettingsCache creates a cache holding up to size entries for ttl.
func NewSettingsCache(size int, ttl time.Duration) *SettingsCache {
	if size < 1 {
		size = 1
	}
	return &SettingsCache{cache: lru.NewLRU[uuid.UUID, Settings](size, nil, ttl)}
}

// Get returns a copy of the cached settings.
func (c *SettingsCache) Get(workspaceID uuid.UUID) (*Settings, bool) {
	if c == nil {
		return nil, false
	}
	s, ok := c.cache.Get(workspaceID)
	if !ok {
		return nil, false
	}
	return &s, true
}

func (c *SettingsCache) Add(s *Settings) {
	if c == nil || s == nil {
		return
	}
	c.cache.Add(s.WorkspaceID, *s)
}

func (c *SettingsCache) Remove(workspaceID uuid.UUID) {
	if c == nil {
		return
	}
	c.cache.Remove(workspaceID)
}
