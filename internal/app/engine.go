package app

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"quizprep-service/internal/domain"
	"quizprep-service/internal/question"
)

// TickPeriod is the countdown resolution.
const TickPeriod = time.Second

// Status is the lifecycle state of an Engine.
type Status int

const (
	StatusIdle Status = iota
	StatusActive
	StatusCompleted
	StatusAborted
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusCompleted:
		return "completed"
	case StatusAborted:
		return "aborted"
	default:
		return "idle"
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusAborted
}

// Snapshot is a read-only view of the engine at one point in time.
type Snapshot struct {
	SessionID   string           `json:"sessionId"`
	Status      Status           `json:"status"`
	Position    int              `json:"position"`
	Total       int              `json:"total"`
	Locked      bool             `json:"locked"`
	Score       int              `json:"score"`
	Remaining   int              `json:"remainingSeconds"`
	Current     *domain.Question `json:"current,omitempty"`
	LastCorrect *bool            `json:"lastCorrect,omitempty"`
}

// Engine runs one timed quiz session. All transitions, including countdown
// ticks, are serialized by a single mutex.
type Engine struct {
	id         string
	clock      Clock
	onComplete func(domain.SessionResult)
	onTick     func(Snapshot)

	mu          sync.Mutex
	status      Status
	questions   []domain.Question
	position    int
	locked      bool
	score       int
	answered    int
	lastCorrect *bool
	missed      []domain.Question
	missedIDs   map[string]struct{}
	remaining   int
	startedAt   time.Time
	result      *domain.SessionResult
	stop        chan struct{}
	stopped     bool
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithClock sets the clock driving the countdown.
func WithClock(c Clock) EngineOption {
	return func(e *Engine) { e.clock = c }
}

// WithOnComplete registers a hook called exactly once when the session
// completes. It runs outside the engine lock on the goroutine that caused the
// transition. It is never called for aborted sessions.
func WithOnComplete(fn func(domain.SessionResult)) EngineOption {
	return func(e *Engine) { e.onComplete = fn }
}

// WithOnTick registers a hook called with the snapshot after every countdown
// tick, on the countdown goroutine.
func WithOnTick(fn func(Snapshot)) EngineOption {
	return func(e *Engine) { e.onTick = fn }
}

// WithSessionID overrides the generated session id.
func WithSessionID(id string) EngineOption {
	return func(e *Engine) { e.id = id }
}

// NewEngine returns an Idle engine.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		id:    uuid.NewString(),
		clock: SystemClock{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ID returns the session id.
func (e *Engine) ID() string { return e.id }

// Start moves the engine from Idle to Active and starts the countdown.
func (e *Engine) Start(questions []domain.Question, durationSeconds int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status != StatusIdle {
		return &domain.InvalidSessionError{Reason: domain.ErrSessionStarted}
	}
	if len(questions) == 0 {
		return &domain.InvalidSessionError{Reason: domain.ErrEmptyQuestions}
	}
	if durationSeconds <= 0 {
		return &domain.InvalidSessionError{Reason: domain.ErrInvalidDuration}
	}

	e.questions = make([]domain.Question, len(questions))
	for i, q := range questions {
		q.Choices = append([]string(nil), q.Choices...)
		e.questions[i] = question.EnsureID(q)
	}
	e.position = 0
	e.locked = false
	e.score = 0
	e.answered = 0
	e.lastCorrect = nil
	e.missed = nil
	e.missedIDs = make(map[string]struct{})
	e.remaining = durationSeconds
	e.startedAt = e.clock.Now()
	e.status = StatusActive
	e.stop = make(chan struct{})
	e.stopped = false

	go e.countdown(e.clock.NewTicker(TickPeriod), e.stop)
	return nil
}

func (e *Engine) countdown(t Ticker, stop <-chan struct{}) {
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C():
			snap := e.Tick()
			if e.onTick != nil {
				e.onTick(snap)
			}
			if snap.Status != StatusActive {
				return
			}
		}
	}
}

// Answer commits choice for the current question. It is a no-op once the
// question is locked, so a repeated answer never double counts.
func (e *Engine) Answer(choice int) Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status != StatusActive || e.locked || e.position >= len(e.questions) {
		return e.snapshotLocked()
	}

	current := e.questions[e.position]
	correct := choice == current.AnswerIndex
	e.locked = true
	e.answered++
	e.lastCorrect = &correct
	if correct {
		e.score++
	} else if _, seen := e.missedIDs[current.ID]; !seen {
		e.missedIDs[current.ID] = struct{}{}
		e.missed = append(e.missed, current)
	}
	return e.snapshotLocked()
}

// Advance moves to the next question once the current one is locked. On the
// last question it completes the session, answered or not.
func (e *Engine) Advance() Snapshot {
	e.mu.Lock()
	var res *domain.SessionResult
	switch {
	case e.status != StatusActive:
	case e.position+1 >= len(e.questions):
		res = e.completeLocked(domain.ReasonEnd)
	case e.locked:
		e.position++
		e.locked = false
		e.lastCorrect = nil
	}
	snap := e.snapshotLocked()
	e.mu.Unlock()

	e.emit(res)
	return snap
}

// Tick consumes one second of the budget and completes the session when it
// runs out. An unanswered current question counts neither as right nor wrong.
func (e *Engine) Tick() Snapshot {
	e.mu.Lock()
	var res *domain.SessionResult
	if e.status == StatusActive {
		if e.remaining > 0 {
			e.remaining--
		}
		if e.remaining == 0 {
			res = e.completeLocked(domain.ReasonTimeout)
		}
	}
	snap := e.snapshotLocked()
	e.mu.Unlock()

	e.emit(res)
	return snap
}

// Finish completes an active session immediately.
func (e *Engine) Finish() Snapshot {
	e.mu.Lock()
	var res *domain.SessionResult
	if e.status == StatusActive {
		res = e.completeLocked(domain.ReasonFinished)
	}
	snap := e.snapshotLocked()
	e.mu.Unlock()

	e.emit(res)
	return snap
}

// Abort abandons an active session. Nothing is emitted.
func (e *Engine) Abort() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status == StatusActive {
		e.status = StatusAborted
		e.stopLocked()
	}
	return e.snapshotLocked()
}

// Stop halts the countdown without a state transition. Terminal transitions
// already stop it; calling Stop again is harmless.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked()
}

func (e *Engine) stopLocked() {
	if e.stop != nil && !e.stopped {
		e.stopped = true
		close(e.stop)
	}
}

// Snapshot returns the current view.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// Result returns the session result once the engine has completed.
func (e *Engine) Result() (domain.SessionResult, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.result == nil {
		return domain.SessionResult{}, false
	}
	return cloneResult(*e.result), true
}

// Questions returns the session's question list.
func (e *Engine) Questions() []domain.Question {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]domain.Question(nil), e.questions...)
}

func (e *Engine) completeLocked(reason domain.CompletionReason) *domain.SessionResult {
	e.status = StatusCompleted
	e.stopLocked()

	presented := e.position + 1
	if presented > len(e.questions) {
		presented = len(e.questions)
	}
	e.result = &domain.SessionResult{
		SessionID: e.id,
		Score:     e.score,
		Total:     len(e.questions),
		Answered:  e.answered,
		Presented: presented,
		Missed:    append([]domain.Question(nil), e.missed...),
		Reason:    reason,
		Elapsed:   e.clock.Now().Sub(e.startedAt),
	}
	res := cloneResult(*e.result)
	return &res
}

func (e *Engine) emit(res *domain.SessionResult) {
	if res != nil && e.onComplete != nil {
		e.onComplete(*res)
	}
}

func (e *Engine) snapshotLocked() Snapshot {
	snap := Snapshot{
		SessionID:   e.id,
		Status:      e.status,
		Position:    e.position,
		Total:       len(e.questions),
		Locked:      e.locked,
		Score:       e.score,
		Remaining:   e.remaining,
		LastCorrect: e.lastCorrect,
	}
	if e.status == StatusActive && e.position < len(e.questions) {
		q := e.questions[e.position]
		q.Choices = append([]string(nil), q.Choices...)
		snap.Current = &q
	}
	return snap
}

func cloneResult(r domain.SessionResult) domain.SessionResult {
	r.Missed = append([]domain.Question(nil), r.Missed...)
	return r
}
