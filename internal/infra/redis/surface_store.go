package redis

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"quizprep-service/internal/app"
)

// SurfaceStore is a Redis-aware implementation of app.SurfaceRegistry.
// Surfaces and their timers live in process; Redis only carries a liveness
// marker per key so other instances can see who is connected.
type SurfaceStore struct {
	client  *redis.Client
	ttl     time.Duration
	factory func(key string) *app.Surface

	mu       sync.RWMutex
	surfaces map[string]*app.Surface
}

func NewSurfaceStore(client *redis.Client, ttl time.Duration, factory func(key string) *app.Surface) *SurfaceStore {
	return &SurfaceStore{
		client:   client,
		ttl:      ttl,
		factory:  factory,
		surfaces: make(map[string]*app.Surface),
	}
}

func (s *SurfaceStore) GetOrCreate(key string) *app.Surface {
	s.mu.Lock()
	defer s.mu.Unlock()
	surface, ok := s.surfaces[key]
	if !ok {
		surface = s.factory(key)
		s.surfaces[key] = surface
	}
	s.touch(key)
	return surface
}

func (s *SurfaceStore) Get(key string) (*app.Surface, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	surface, ok := s.surfaces[key]
	if ok {
		s.touch(key)
	}
	return surface, ok
}

// touch sets the liveness marker and restarts its TTL. Failures are ignored;
// the marker is advisory.
func (s *SurfaceStore) touch(key string) {
	_ = s.client.Set(context.Background(), s.key(key), "1", s.ttl).Err()
}

func (s *SurfaceStore) DeleteIfIdle(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	surface, ok := s.surfaces[key]
	if !ok {
		return
	}
	if surface.IsIdle() {
		delete(s.surfaces, key)
		_ = s.client.Del(context.Background(), s.key(key)).Err()
	}
}

// Close aborts every surface and removes the markers.
func (s *SurfaceStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, surface := range s.surfaces {
		surface.Close()
		delete(s.surfaces, key)
		_ = s.client.Del(context.Background(), s.key(key)).Err()
	}
}

func (s *SurfaceStore) key(key string) string {
	return "surface:" + key
}
