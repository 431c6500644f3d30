package pim

import (
	"context"
	"sync"

	"github.com/Ramsey-B/fern/pkg/models"
)

type cachedEntity struct {
	entity *models.Entity
	level  models.LoadLevel
}

// RunCache memoizes PIM reads for a single export run. It is created per run and dropped
// with it, so nothing leaks between channels or runs.
type RunCache struct {
	mu       sync.RWMutex
	entities map[int]cachedEntity
	cvls     map[string]*models.CVLValue
}

// NewRunCache creates an empty run cache
func NewRunCache() *RunCache {
	return &RunCache{
		entities: make(map[int]cachedEntity),
		cvls:     make(map[string]*models.CVLValue),
	}
}

// Entity returns a cached entity loaded at least at the requested level
func (c *RunCache) Entity(id int, level models.LoadLevel) (*models.Entity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cached, ok := c.entities[id]
	if !ok || levelRank(cached.level) < levelRank(level) {
		return nil, false
	}
	return cached.entity, true
}

// StoreEntity caches an entity unless a richer copy is already cached
func (c *RunCache) StoreEntity(entity *models.Entity, level models.LoadLevel) {
	if entity == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if cached, ok := c.entities[entity.ID]; ok && levelRank(cached.level) > levelRank(level) {
		return
	}
	c.entities[entity.ID] = cachedEntity{entity: entity, level: level}
}

// IndexCVLValues replaces the CVL index with the given values
func (c *RunCache) IndexCVLValues(values []models.CVLValue) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cvls = make(map[string]*models.CVLValue, len(values))
	for i := range values {
		value := values[i]
		c.cvls[cvlKey(value.CVLID, value.Key)] = &value
	}
}

// GetCVLValue resolves a CVL key
func (c *RunCache) GetCVLValue(cvlID, key string) (*models.CVLValue, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	value, ok := c.cvls[cvlKey(cvlID, key)]
	return value, ok
}

// Len returns the number of cached entities
func (c *RunCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entities)
}

func cvlKey(cvlID, key string) string {
	return cvlID + "\x00" + key
}

// CachedSource serves entity reads from a RunCache and fills it from the wrapped Source
type CachedSource struct {
	Source
	cache *RunCache
}

// NewCachedSource wraps a source with a run cache
func NewCachedSource(source Source, cache *RunCache) *CachedSource {
	return &CachedSource{
		Source: source,
		cache:  cache,
	}
}

// Cache returns the run cache backing the source
func (s *CachedSource) Cache() *RunCache {
	return s.cache
}

// GetEntity returns the cached entity or fetches and caches it
func (s *CachedSource) GetEntity(ctx context.Context, id int, level models.LoadLevel) (*models.Entity, error) {
	if entity, ok := s.cache.Entity(id, level); ok {
		return entity, nil
	}

	entity, err := s.Source.GetEntity(ctx, id, level)
	if err != nil {
		return nil, err
	}
	s.cache.StoreEntity(entity, level)
	return entity, nil
}

// GetCVLValues fetches the CVL values and indexes them in the run cache
func (s *CachedSource) GetCVLValues(ctx context.Context) ([]models.CVLValue, error) {
	values, err := s.Source.GetCVLValues(ctx)
	if err != nil {
		return nil, err
	}
	s.cache.IndexCVLValues(values)
	return values, nil
}
