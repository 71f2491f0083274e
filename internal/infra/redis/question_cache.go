package redis

import (
	"context"
	"errors"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"quizprep-service/internal/app"
	"quizprep-service/internal/domain"
)

// QuestionCache caches raw question pools in Redis and falls back to the
// source on a cache miss.
// Pools are stored as: SET questions:{subject} <json array> EX ttl
type QuestionCache struct {
	client *redis.Client
	source app.QuestionSource
	ttl    time.Duration
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewQuestionCache(client *redis.Client, source app.QuestionSource, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		client: client,
		source: source,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *QuestionCache) Fetch(ctx context.Context, subject string) ([]domain.RawQuestion, error) {
	key := c.poolKey(subject)
	if raws, ok := c.lookup(ctx, key); ok {
		return raws, nil
	}

	for attempt := 1; ; attempt++ {
		result, err, shared := c.sf.Do(subject, func() (interface{}, error) {
			// Re-check cache in case another goroutine filled it.
			if raws, ok := c.lookup(ctx, key); ok {
				return raws, nil
			}

			raws, err := c.source.Fetch(ctx, subject)
			if err != nil {
				return nil, err
			}

			payload, err := json.Marshal(raws)
			if err != nil {
				return raws, nil
			}
			if err := c.client.Set(ctx, key, payload, c.ttlWithJitter()).Err(); err != nil {
				log.Warn().Err(err).Str("subject", subject).Msg("cache question pool failed")
			}
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
func (c *QuestionCache) Invalidate(ctx context.Context, subject string) error {
	return c.client.Del(ctx, c.poolKey(subject)).Err()
}

func (c *QuestionCache) lookup(ctx context.Context, key string) ([]domain.RawQuestion, bool) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var raws []domain.RawQuestion
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, false
	}
	return raws, true
}

func (c *QuestionCache) poolKey(subject string) string {
	return "questions:" + subject
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

// maxSharedAttempts bounds how often a caller rejoins after a shared fetch
// was canceled under it.
const maxSharedAttempts = 3

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
