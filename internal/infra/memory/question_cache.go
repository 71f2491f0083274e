package memory

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"quizprep-service/internal/app"
	"quizprep-service/internal/domain"
)

// QuestionCache caches a source's raw question pools with TTL to avoid
// repeated remote fetches.
type QuestionCache struct {
	source app.QuestionSource
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex

	mu    sync.RWMutex
	cache map[string]cachedPool
}

type cachedPool struct {
	raws      []domain.RawQuestion
	expiresAt time.Time
}

func NewQuestionCache(source app.QuestionSource, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		source: source,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedPool),
	}
}

func (c *QuestionCache) Fetch(ctx context.Context, subject string) ([]domain.RawQuestion, error) {
	if raws, ok := c.lookup(subject); ok {
		return raws, nil
	}

	for attempt := 1; ; attempt++ {
		result, err, shared := c.sf.Do(subject, func() (interface{}, error) {
			if raws, ok := c.lookup(subject); ok {
				return raws, nil
			}

			raws, err := c.source.Fetch(ctx, subject)
			if err != nil {
				return nil, err
			}

			c.mu.Lock()
			c.cache[subject] = cachedPool{
				raws:      raws,
				expiresAt: c.clock().Add(c.ttlWithJitter()),
			}
			c.mu.Unlock()
			return raws, nil
		})
		if err != nil {
			// A shared fetch canceled by the caller that started it says
			// nothing about this caller; start a fresh one.
			if shared && isContextErr(err) && ctx.Err() == nil && attempt < maxSharedAttempts {
				c.sf.Forget(subject)
				continue
			}
			return nil, err
		}
		return append([]domain.RawQuestion(nil), result.([]domain.RawQuestion)...), nil
	}
}

// Invalidate drops the cached pool for subject.
func (c *QuestionCache) Invalidate(subject string) {
	c.mu.Lock()
	delete(c.cache, subject)
	c.mu.Unlock()
}

func (c *QuestionCache) lookup(subject string) ([]domain.RawQuestion, bool) {
	now := c.clock()
	c.mu.RLock()
	defer c.mu.RUnlock()
	if entry, ok := c.cache[subject]; ok && entry.expiresAt.After(now) {
		return append([]domain.RawQuestion(nil), entry.raws...), true
	}
	return nil, false
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

// StaticSource is a simple source backed by an in-memory map (useful for tests/demos).
type StaticSource struct {
	pools map[string][]domain.RawQuestion
}

func NewStaticSource(pools map[string][]domain.RawQuestion) *StaticSource {
	return &StaticSource{pools: pools}
}

func (s *StaticSource) Fetch(ctx context.Context, subject string) ([]domain.RawQuestion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if raws, ok := s.pools[subject]; ok {
		return append([]domain.RawQuestion(nil), raws...), nil
	}
	return nil, &domain.FetchError{Subject: subject, Err: domain.ErrUnknownSubject}
}

// maxSharedAttempts bounds how often a caller rejoins after a shared fetch
// was canceled under it.
const maxSharedAttempts = 3

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
