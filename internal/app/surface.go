package app

import (
	"context"
	"sync"

	"quizprep-service/internal/domain"
)

// EventKind tells subscribers what an Event carries.
type EventKind string

const (
	EventState  EventKind = "state"
	EventResult EventKind = "result"
)

// Outcome is a completed session together with the result of persisting it.
type Outcome struct {
	Scope  domain.Scope
	Result domain.SessionResult
	Err    error
}

// Event is pushed to surface subscribers.
type Event struct {
	Kind     EventKind
	Snapshot Snapshot
	Outcome  *Outcome
}

// Surface hosts at most one running session for one user-facing surface.
// Starting a session replaces whatever was running, and each question fetch
// is canceled as soon as a newer request arrives.
type Surface struct {
	id  string
	svc *PracticeService

	mu          sync.Mutex
	engine      *Engine
	cancel      context.CancelFunc
	seq         uint64
	subscribers map[*subscriber]struct{}
}

type subscriber struct {
	ch   chan Event
	done chan struct{}
}

func newSurface(id string, svc *PracticeService) *Surface {
	return &Surface{
		id:          id,
		svc:         svc,
		subscribers: make(map[*subscriber]struct{}),
	}
}

// ID returns the key the surface was created for.
func (s *Surface) ID() string { return s.id }

// StartNew starts a session over new questions of scope.Subject.
func (s *Surface) StartNew(ctx context.Context, scope domain.Scope, count, minutes int) (Snapshot, error) {
	if err := checkScope(scope); err != nil {
		return Snapshot{}, err
	}
	reqCtx, seq := s.beginRequest(ctx)
	defer s.endRequest(seq)

	cfg, err := s.svc.PrepareNew(reqCtx, scope, count, minutes)
	if err != nil {
		return Snapshot{}, err
	}
	return s.launch(reqCtx, seq, scope, cfg)
}

// StartMistakes starts a session over the stored mistakes with the given ids.
func (s *Surface) StartMistakes(ctx context.Context, scope domain.Scope, ids []string, minutes int) (Snapshot, error) {
	if err := checkScope(scope); err != nil {
		return Snapshot{}, err
	}
	reqCtx, seq := s.beginRequest(ctx)
	defer s.endRequest(seq)

	cfg, err := s.svc.PrepareMistakes(reqCtx, scope, ids, minutes)
	if err != nil {
		return Snapshot{}, err
	}
	return s.launch(reqCtx, seq, scope, cfg)
}

func (s *Surface) Answer(choice int) (Snapshot, error) {
	return s.drive(func(e *Engine) Snapshot { return e.Answer(choice) })
}

func (s *Surface) Advance() (Snapshot, error) {
	return s.drive((*Engine).Advance)
}

func (s *Surface) Finish() (Snapshot, error) {
	return s.drive((*Engine).Finish)
}

// Abort abandons the running session. Nothing is persisted.
func (s *Surface) Abort() (Snapshot, error) {
	return s.drive((*Engine).Abort)
}

// Snapshot returns the state of the current session, if any.
func (s *Surface) Snapshot() (Snapshot, bool) {
	s.mu.Lock()
	e := s.engine
	s.mu.Unlock()
	if e == nil {
		return Snapshot{}, false
	}
	return e.Snapshot(), true
}

// Close cancels any in-flight fetch and aborts the running session.
func (s *Surface) Close() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.seq++
	e := s.engine
	s.mu.Unlock()

	if e != nil {
		e.Abort()
		e.Stop()
	}
}

// IsIdle reports whether nothing is running and nobody is listening.
func (s *Surface) IsIdle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.subscribers) > 0 || s.cancel != nil {
		return false
	}
	return s.engine == nil || s.engine.Snapshot().Status.Terminal()
}

// Subscribe returns a channel of surface events. State events are dropped
// when the subscriber falls behind; result events are always delivered until
// the returned cancel function is called.
func (s *Surface) Subscribe() (<-chan Event, func()) {
	sub := &subscriber{
		ch:   make(chan Event, 8),
		done: make(chan struct{}),
	}

	s.mu.Lock()
	s.subscribers[sub] = struct{}{}
	e := s.engine
	s.mu.Unlock()

	if e != nil {
		sub.ch <- Event{Kind: EventState, Snapshot: e.Snapshot()}
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subscribers, sub)
			s.mu.Unlock()
			close(sub.done)
		})
	}
	return sub.ch, cancel
}

// Subscribers reports how many listeners are attached.
func (s *Surface) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribers)
}

func (s *Surface) beginRequest(ctx context.Context) (context.Context, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	s.seq++
	reqCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	return reqCtx, s.seq
}

func (s *Surface) endRequest(seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seq == seq && s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *Surface) launch(ctx context.Context, seq uint64, scope domain.Scope, cfg SessionConfig) (Snapshot, error) {
	s.mu.Lock()
	if s.seq != seq || ctx.Err() != nil {
		s.mu.Unlock()
		return Snapshot{}, context.Canceled
	}

	var eng *Engine
	eng = NewEngine(
		WithClock(s.svc.clock),
		WithOnComplete(func(res domain.SessionResult) {
			out := s.svc.complete(scope, eng.Questions(), res)
			s.publish(Event{Kind: EventResult, Snapshot: eng.Snapshot(), Outcome: &out})
		}),
		WithOnTick(func(snap Snapshot) {
			if s.current(eng) {
				s.publish(Event{Kind: EventState, Snapshot: snap})
			}
		}),
	)
	if err := eng.Start(cfg.Questions, cfg.DurationSeconds); err != nil {
		s.mu.Unlock()
		return Snapshot{}, err
	}

	if prev := s.engine; prev != nil {
		prev.Abort()
		prev.Stop()
	}
	s.engine = eng
	s.mu.Unlock()

	snap := eng.Snapshot()
	s.publish(Event{Kind: EventState, Snapshot: snap})
	return snap, nil
}

func (s *Surface) drive(fn func(*Engine) Snapshot) (Snapshot, error) {
	s.mu.Lock()
	e := s.engine
	s.mu.Unlock()
	if e == nil {
		return Snapshot{}, domain.ErrNoActiveSession
	}

	snap := fn(e)
	if s.current(e) {
		s.publish(Event{Kind: EventState, Snapshot: snap})
	}
	return snap, nil
}

func (s *Surface) current(e *Engine) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine == e
}

func (s *Surface) publish(ev Event) {
	s.mu.Lock()
	subs := make([]*subscriber, 0, len(s.subscribers))
	for sub := range s.subscribers {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		if ev.Kind == EventState {
			select {
			case sub.ch <- ev:
			case <-sub.done:
			default:
			}
			continue
		}
		select {
		case sub.ch <- ev:
		case <-sub.done:
		}
	}
}
