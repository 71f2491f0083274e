package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"quizprep-service/internal/app"
	"quizprep-service/internal/domain"
	"quizprep-service/internal/infra/memory"
	"quizprep-service/internal/infra/storetest"
)

func newMiniredis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := newClient(mr)
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestMistakeStoreContract(t *testing.T) {
	storetest.RunMistakeStore(t, func(t *testing.T, now func() time.Time) app.MistakeStore {
		_, client := newMiniredis(t)
		return NewMistakeStoreWithClock(client, now)
	})
}

func TestSeenStoreContract(t *testing.T) {
	storetest.RunSeenStore(t, func(t *testing.T) app.SeenStore {
		_, client := newMiniredis(t)
		return NewSeenStore(client)
	})
}

func TestMistakeStoreUsesScopedHash(t *testing.T) {
	mr, client := newMiniredis(t)
	store := NewMistakeStore(client)
	scope := domain.Scope{UserID: "u1", Subject: "Physics"}

	err := store.AddMistakes(context.Background(), scope, []domain.Question{{ID: "q1", Text: "speed of light"}})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !mr.Exists("mistakes:u1:Physics") {
		t.Fatalf("expected hash mistakes:u1:Physics")
	}
	if got := mr.HGet("mistakes:u1:Physics", "q1"); got == "" {
		t.Fatalf("expected q1 field in hash")
	}
}

func TestMistakeStoreReportsBackendFailure(t *testing.T) {
	mr, client := newMiniredis(t)
	store := NewMistakeStore(client)
	mr.Close()

	_, err := store.GetMistakes(context.Background(), domain.Scope{UserID: "u1", Subject: "Physics"})
	if err == nil {
		t.Fatalf("expected error from closed backend")
	}
	if _, ok := err.(*domain.StorageError); !ok {
		t.Fatalf("expected storage error, got %T", err)
	}
}

func TestQuestionCacheCachesInRedis(t *testing.T) {
	mr, client := newMiniredis(t)

	answer := "4"
	source := &countingSource{
		QuestionSource: memory.NewStaticSource(map[string][]domain.RawQuestion{
			"Mathematics": {{ID: "q1", Question: "What is 2 + 2?", Options: []string{"3", "4"}, Answer: &answer}},
		}),
	}
	cache := NewQuestionCache(client, source, time.Minute)

	raws, err := cache.Fetch(context.Background(), "Mathematics")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if source.calls != 1 {
		t.Fatalf("expected source called once, got %d", source.calls)
	}
	if !mr.Exists("questions:Mathematics") {
		t.Fatalf("expected pool cached in redis")
	}

	// Second call should hit cache, source not incremented.
	cached, err := cache.Fetch(context.Background(), "Mathematics")
	if err != nil {
		t.Fatalf("fetch 2: %v", err)
	}
	if source.calls != 1 {
		t.Fatalf("expected cache hit, source calls=%d", source.calls)
	}
	if len(cached) != 1 || cached[0].Question != raws[0].Question || *cached[0].Answer != "4" {
		t.Fatalf("cached pool differs: %+v", cached)
	}

	mr.FastForward(2 * time.Minute)
	_, _ = cache.Fetch(context.Background(), "Mathematics")
	if source.calls != 2 {
		t.Fatalf("expected refetch after expiry, calls=%d", source.calls)
	}
}

func TestSurfaceStoreSetsAndClearsKeys(t *testing.T) {
	mr, client := newMiniredis(t)
	svc := app.NewPracticeService(app.NewQuestionBank(memory.NewStaticSource(nil), nil), memory.NewMistakeStore())
	store := NewSurfaceStore(client, time.Minute, svc.NewSurface)

	_ = store.GetOrCreate("user-1")
	if !mr.Exists("surface:user-1") {
		t.Fatalf("expected redis key to be set")
	}

	store.DeleteIfIdle("user-1")
	if mr.Exists("surface:user-1") {
		t.Fatalf("expected redis key to be removed")
	}
}

func TestSurfaceStoreRefreshesMarkerOnAccess(t *testing.T) {
	mr, client := newMiniredis(t)
	svc := app.NewPracticeService(app.NewQuestionBank(memory.NewStaticSource(nil), nil), memory.NewMistakeStore())
	store := NewSurfaceStore(client, time.Minute, svc.NewSurface)

	first := store.GetOrCreate("user-1")
	mr.FastForward(45 * time.Second)
	if again := store.GetOrCreate("user-1"); again != first {
		t.Fatalf("expected the same surface for the same key")
	}
	mr.FastForward(45 * time.Second)
	if !mr.Exists("surface:user-1") {
		t.Fatalf("marker expired although the surface was accessed")
	}

	mr.FastForward(45 * time.Second)
	if _, ok := store.Get("user-1"); !ok {
		t.Fatalf("expected registered surface")
	}
	if ttl := mr.TTL("surface:user-1"); ttl != time.Minute {
		t.Fatalf("expected ttl reset to 1m by Get, got %s", ttl)
	}
}

func TestTokenBlacklist(t *testing.T) {
	mr, client := newMiniredis(t)
	bl := NewTokenBlacklist(client)
	ctx := context.Background()

	if err := bl.Revoke(ctx, "jti-1", time.Minute); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	revoked, err := bl.IsRevoked(ctx, "jti-1")
	if err != nil || !revoked {
		t.Fatalf("expected revoked, got %v %v", revoked, err)
	}

	mr.FastForward(2 * time.Minute)
	revoked, _ = bl.IsRevoked(ctx, "jti-1")
	if revoked {
		t.Fatalf("expected entry to expire with the token")
	}
}

type countingSource struct {
	app.QuestionSource
	calls int
}

func (s *countingSource) Fetch(ctx context.Context, subject string) ([]domain.RawQuestion, error) {
	s.calls++
	return s.QuestionSource.Fetch(ctx, subject)
}

// slowFirstSource holds its first Fetch until the caller's context ends.
type slowFirstSource struct {
	app.QuestionSource
	entered chan struct{}

	mu    sync.Mutex
	calls int
}

func (s *slowFirstSource) Fetch(ctx context.Context, subject string) ([]domain.RawQuestion, error) {
	s.mu.Lock()
	s.calls++
	first := s.calls == 1
	s.mu.Unlock()
	if first {
		close(s.entered)
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return s.QuestionSource.Fetch(ctx, subject)
}

func TestQuestionCacheSurvivesCanceledSharedFetch(t *testing.T) {
	_, client := newMiniredis(t)
	source := &slowFirstSource{
		QuestionSource: memory.NewStaticSource(map[string][]domain.RawQuestion{
			"History": {{ID: "h1", Question: "Year of the Hijra?", Options: []string{"622", "632"}}},
		}),
		entered: make(chan struct{}),
	}
	cache := NewQuestionCache(client, source, time.Minute)

	ctx1, cancel1 := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := cache.Fetch(ctx1, "History")
		firstErr <- err
	}()
	<-source.entered

	secondErr := make(chan error, 1)
	go func() {
		raws, err := cache.Fetch(context.Background(), "History")
		if err == nil && len(raws) != 1 {
			err = errors.New("unexpected pool size")
		}
		secondErr <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel1()

	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled for the canceled caller, got %v", err)
	}
	select {
	case err := <-secondErr:
		if err != nil {
			t.Fatalf("live caller: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("second fetch never returned")
	}
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}

func TestUserStoreContract(t *testing.T) {
	_, client := newMiniredis(t)
	storetest.RunUserStore(t, NewUserStore(client))
}
