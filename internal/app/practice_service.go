package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"quizprep-service/internal/domain"
)

// QuestionPool yields the normalized question pool for a subject.
type QuestionPool interface {
	Pool(ctx context.Context, subject string) ([]domain.Question, error)
}

// SurfaceRegistry abstracts where the surfaces of connected users live
// (in-memory, Redis-marked, etc).
type SurfaceRegistry interface {
	GetOrCreate(key string) *Surface
	Get(key string) (*Surface, bool)
	DeleteIfIdle(key string)
}

const defaultPersistTimeout = 5 * time.Second

// PracticeService contains the practice use cases: picking questions,
// persisting the outcome of finished sessions and managing stored mistakes.
type PracticeService struct {
	pool           QuestionPool
	mistakes       MistakeStore
	seen           SeenStore
	resolver       *Resolver
	publisher      ResultPublisher
	clock          Clock
	persistTimeout time.Duration
	unseenFirst    bool
}

// ServiceOption configures a PracticeService.
type ServiceOption func(*PracticeService)

func WithSeenStore(store SeenStore) ServiceOption {
	return func(s *PracticeService) { s.seen = store }
}

func WithPublisher(p ResultPublisher) ServiceOption {
	return func(s *PracticeService) { s.publisher = p }
}

func WithResolver(r *Resolver) ServiceOption {
	return func(s *PracticeService) { s.resolver = r }
}

// WithServiceClock sets the clock handed to every engine the service starts.
func WithServiceClock(c Clock) ServiceOption {
	return func(s *PracticeService) { s.clock = c }
}

// WithUnseenFirst makes new-question sessions put questions the user has not
// been shown ahead of the rest. Without it the pool prefix is used as is.
func WithUnseenFirst() ServiceOption {
	return func(s *PracticeService) { s.unseenFirst = true }
}

func WithPersistTimeout(d time.Duration) ServiceOption {
	return func(s *PracticeService) { s.persistTimeout = d }
}

func NewPracticeService(pool QuestionPool, mistakes MistakeStore, opts ...ServiceOption) *PracticeService {
	s := &PracticeService{
		pool:           pool,
		mistakes:       mistakes,
		seen:           nopSeenStore{},
		resolver:       NewResolver(),
		publisher:      NopPublisher{},
		clock:          SystemClock{},
		persistTimeout: defaultPersistTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewSurface is the factory registries use to create surfaces.
func (s *PracticeService) NewSurface(id string) *Surface {
	return newSurface(id, s)
}

// PrepareNew fetches the subject's pool and resolves a new-questions session.
func (s *PracticeService) PrepareNew(ctx context.Context, scope domain.Scope, count, minutes int) (SessionConfig, error) {
	if err := checkScope(scope); err != nil {
		return SessionConfig{}, err
	}
	pool, err := s.pool.Pool(ctx, scope.Subject)
	if err != nil {
		return SessionConfig{}, err
	}
	if err := ctx.Err(); err != nil {
		return SessionConfig{}, err
	}

	var opts []SelectOption
	if s.unseenFirst {
		seen, err := s.seen.GetSeen(ctx, scope)
		if err != nil {
			log.Warn().Err(err).Str("user_id", scope.UserID).Str("subject", scope.Subject).Msg("seen questions unavailable")
		} else {
			opts = append(opts, PreferUnseen(seen))
		}
	}
	cfg, err := s.resolver.NewQuestions(pool, count, minutes, opts...)
	return cfg, withSubject(err, scope.Subject)
}

// PrepareMistakes resolves a session from the stored mistakes whose ids are
// listed. Unknown ids are ignored.
func (s *PracticeService) PrepareMistakes(ctx context.Context, scope domain.Scope, ids []string, minutes int) (SessionConfig, error) {
	if err := checkScope(scope); err != nil {
		return SessionConfig{}, err
	}
	stored, err := s.mistakes.GetMistakes(ctx, scope)
	if err != nil {
		return SessionConfig{}, err
	}

	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	selected := make([]domain.Question, 0, len(ids))
	for _, m := range stored {
		if _, ok := wanted[m.ID]; ok {
			selected = append(selected, m.Question)
		}
	}
	cfg, err := s.resolver.PastMistakes(selected, minutes)
	return cfg, withSubject(err, scope.Subject)
}

func (s *PracticeService) ListMistakes(ctx context.Context, scope domain.Scope) ([]domain.Mistake, error) {
	if err := checkScope(scope); err != nil {
		return nil, err
	}
	return s.mistakes.GetMistakes(ctx, scope)
}

func (s *PracticeService) RemoveMistakes(ctx context.Context, scope domain.Scope, ids []string) error {
	if err := checkScope(scope); err != nil {
		return err
	}
	return s.mistakes.RemoveMistakeIDs(ctx, scope, ids)
}

func (s *PracticeService) ClearMistakes(ctx context.Context, scope domain.Scope) error {
	if err := checkScope(scope); err != nil {
		return err
	}
	return s.mistakes.ClearAllMistakes(ctx, scope)
}

// ClearSeen forgets which questions the user has been shown.
func (s *PracticeService) ClearSeen(ctx context.Context, scope domain.Scope) error {
	if err := checkScope(scope); err != nil {
		return err
	}
	return s.seen.ClearSeen(ctx, scope)
}

// complete persists a finished session. The mistake write is the only step
// whose failure reaches the caller; seen tracking and publishing are logged.
func (s *PracticeService) complete(scope domain.Scope, questions []domain.Question, res domain.SessionResult) Outcome {
	ctx, cancel := context.WithTimeout(context.Background(), s.persistTimeout)
	defer cancel()

	logger := log.With().Str("user_id", scope.UserID).Str("subject", scope.Subject).Str("session_id", res.SessionID).Logger()

	out := Outcome{Scope: scope, Result: res}
	if err := s.mistakes.AddMistakes(ctx, scope, res.Missed); err != nil {
		logger.Error().Err(err).Msg("persist mistakes failed")
		out.Err = err
	}

	presented := res.Presented
	if presented > len(questions) {
		presented = len(questions)
	}
	ids := make([]string, 0, presented)
	for _, q := range questions[:presented] {
		ids = append(ids, q.ID)
	}
	if err := s.seen.AddSeen(ctx, scope, ids); err != nil {
		logger.Warn().Err(err).Msg("record seen questions failed")
	}

	if err := s.publisher.PublishResult(ctx, scope, res); err != nil {
		logger.Warn().Err(err).Msg("publish result failed")
	}

	logger.Info().
		Int("score", res.Score).
		Int("total", res.Total).
		Int("missed", len(res.Missed)).
		Str("reason", string(res.Reason)).
		Msg("session completed")
	return out
}

func checkScope(scope domain.Scope) error {
	if scope.UserID == "" {
		return &domain.AuthError{Code: domain.AuthUnauthenticated}
	}
	if !scope.Valid() {
		return domain.ErrInvalidScope
	}
	return nil
}

func withSubject(err error, subject string) error {
	if sel, ok := err.(*domain.EmptySelectionError); ok {
		sel.Subject = subject
	}
	return err
}
