package memory

import (
	"sync"

	"quizprep-service/internal/app"
)

// SurfaceStore is an in-memory implementation of app.SurfaceRegistry.
type SurfaceStore struct {
	factory func(key string) *app.Surface

	mu       sync.RWMutex
	surfaces map[string]*app.Surface
}

func NewSurfaceStore(factory func(key string) *app.Surface) *SurfaceStore {
	return &SurfaceStore{
		factory:  factory,
		surfaces: make(map[string]*app.Surface),
	}
}

func (s *SurfaceStore) GetOrCreate(key string) *app.Surface {
	s.mu.Lock()
	defer s.mu.Unlock()
	if surface, ok := s.surfaces[key]; ok {
		return surface
	}
	surface := s.factory(key)
	s.surfaces[key] = surface
	return surface
}

func (s *SurfaceStore) Get(key string) (*app.Surface, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	surface, ok := s.surfaces[key]
	return surface, ok
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
	}
}

// Close aborts every surface and empties the store.
func (s *SurfaceStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, surface := range s.surfaces {
		surface.Close()
		delete(s.surfaces, key)
	}
}
