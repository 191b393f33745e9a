package cache

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/gatekeep-io/gatekeep/domain"
)

// MemorySessionCache implements SessionCache using ttlcache.
type MemorySessionCache struct {
	cache *ttlcache.Cache[string, *domain.Session]
	ttl   time.Duration
}

// NewMemorySessionCache creates an in-memory session cache with automatic
// expiry cleanup.
func NewMemorySessionCache(ttl time.Duration) *MemorySessionCache {
	c := ttlcache.New(
		ttlcache.WithTTL[string, *domain.Session](ttl),
		ttlcache.WithDisableTouchOnHit[string, *domain.Session](),
	)

	// Start the cleanup process
	go c.Start()

	return &MemorySessionCache{cache: c, ttl: ttl}
}

// Set implements SessionCache.Set.
func (s *MemorySessionCache) Set(_ context.Context, session *domain.Session) error {
	s.cache.Set(HashToken(session.AccessToken), session.Clone(), s.ttl)
	return nil
}

// Get implements SessionCache.Get.
func (s *MemorySessionCache) Get(_ context.Context, accessToken string) (*domain.Session, bool) {
	item := s.cache.Get(HashToken(accessToken))
	if item == nil {
		return nil, false
	}
	return item.Value().Clone(), true
}

// Delete implements SessionCache.Delete.
func (s *MemorySessionCache) Delete(_ context.Context, accessToken string) error {
	s.cache.Delete(HashToken(accessToken))
	return nil
}

// Clear implements SessionCache.Clear.
func (s *MemorySessionCache) Clear(_ context.Context) error {
	s.cache.DeleteAll()
	return nil
}

// Close stops the background cleanup goroutine.
func (s *MemorySessionCache) Close() error {
	s.cache.Stop()
	return nil
}

var _ SessionCache = (*MemorySessionCache)(nil)
