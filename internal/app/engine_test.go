package app_test

import (
	"errors"
	"testing"
	"time"

	"quizprep-service/internal/app"
	"quizprep-service/internal/domain"
)

func sampleQuestions() []domain.Question {
	return []domain.Question{
		{ID: "q1", Text: "2 + 2", Choices: []string{"3", "4", "5", "6"}, AnswerIndex: 1},
		{ID: "q2", Text: "capital of France", Choices: []string{"Rome", "Paris"}, AnswerIndex: 1},
		{ID: "q3", Text: "H2O is", Choices: []string{"water", "salt", "sand"}, AnswerIndex: 0},
	}
}

type harness struct {
	clock   *app.ManualClock
	engine  *app.Engine
	results chan domain.SessionResult
	ticks   chan app.Snapshot
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		clock:   app.NewManualClock(time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)),
		results: make(chan domain.SessionResult, 4),
		ticks:   make(chan app.Snapshot, 64),
	}
	h.engine = app.NewEngine(
		app.WithClock(h.clock),
		app.WithSessionID("session-1"),
		app.WithOnComplete(func(r domain.SessionResult) { h.results <- r }),
		app.WithOnTick(func(s app.Snapshot) { h.ticks <- s }),
	)
	return h
}

func (h *harness) waitResult(t *testing.T) domain.SessionResult {
	t.Helper()
	select {
	case r := <-h.results:
		return r
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for session result")
	}
	return domain.SessionResult{}
}

func (h *harness) tick(t *testing.T) app.Snapshot {
	t.Helper()
	h.clock.Advance(app.TickPeriod)
	select {
	case s := <-h.ticks:
		return s
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for tick")
	}
	return app.Snapshot{}
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func TestEngineScoresAndCollectsMissed(t *testing.T) {
	h := newHarness(t)
	if err := h.engine.Start(sampleQuestions(), 60); err != nil {
		t.Fatalf("start: %v", err)
	}

	snap := h.engine.Answer(1)
	if !snap.Locked || snap.Score != 1 || snap.LastCorrect == nil || !*snap.LastCorrect {
		t.Fatalf("expected locked correct answer, got %+v", snap)
	}
	h.engine.Advance()
	h.engine.Answer(0)
	h.engine.Advance()
	h.engine.Answer(2)
	final := h.engine.Advance()
	if final.Status != app.StatusCompleted {
		t.Fatalf("expected completed, got %s", final.Status)
	}

	res := h.waitResult(t)
	if res.Score != 1 || res.Total != 3 || res.Answered != 3 {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Reason != domain.ReasonEnd {
		t.Fatalf("expected reason end, got %s", res.Reason)
	}
	if len(res.Missed) != 2 || res.Missed[0].ID != "q2" || res.Missed[1].ID != "q3" {
		t.Fatalf("expected q2,q3 missed in order, got %+v", res.Missed)
	}
	if res.SessionID != "session-1" || res.Presented != 3 {
		t.Fatalf("unexpected bookkeeping %+v", res)
	}
	if res.Score+len(res.Missed) != res.Answered {
		t.Fatalf("score plus missed must equal answered")
	}
}

func TestEngineAnswerSequences(t *testing.T) {
	twoQuestions := func() []domain.Question {
		return []domain.Question{
			{ID: "a", Text: "2+2", Choices: []string{"3", "4", "5", "6"}, AnswerIndex: 1},
			{ID: "b", Text: "capital of France", Choices: []string{"Rome", "Paris", "Berlin", "Madrid"}, AnswerIndex: 1},
		}
	}

	cases := []struct {
		name       string
		questions  []domain.Question
		duration   int
		answers    []int
		wantScore  int
		wantMissed []int
	}{
		{"one right one wrong", twoQuestions(), 600, []int{1, 0}, 1, []int{1}},
		{"all right", twoQuestions(), 600, []int{1, 1}, 2, nil},
		{"all wrong", twoQuestions(), 600, []int{0, 3}, 0, []int{0, 1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			if err := h.engine.Start(tc.questions, tc.duration); err != nil {
				t.Fatalf("start: %v", err)
			}
			for _, choice := range tc.answers {
				h.engine.Answer(choice)
				h.engine.Advance()
			}

			res := h.waitResult(t)
			if res.Score != tc.wantScore || res.Total != len(tc.questions) || res.Reason != domain.ReasonEnd {
				t.Fatalf("unexpected result %+v", res)
			}
			if len(res.Missed) != len(tc.wantMissed) {
				t.Fatalf("expected missed %v, got %+v", tc.wantMissed, res.Missed)
			}
			for i, idx := range tc.wantMissed {
				want := tc.questions[idx]
				got := res.Missed[i]
				if got.ID != want.ID || got.Text != want.Text || got.AnswerIndex != want.AnswerIndex || len(got.Choices) != len(want.Choices) {
					t.Fatalf("missed[%d] = %+v, want %+v", i, got, want)
				}
			}
		})
	}
}

func TestEngineTimeoutWithoutAnswer(t *testing.T) {
	h := newHarness(t)
	if err := h.engine.Start(sampleQuestions(), 1); err != nil {
		t.Fatalf("start: %v", err)
	}

	if s := h.tick(t); s.Status != app.StatusCompleted {
		t.Fatalf("expected completion after one tick, got %+v", s)
	}
	res := h.waitResult(t)
	if res.Reason != domain.ReasonTimeout || res.Score != 0 || res.Answered != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(res.Missed) != 0 {
		t.Fatalf("unanswered question must not be missed, got %+v", res.Missed)
	}
}

func TestEngineAnswerLocksQuestion(t *testing.T) {
	h := newHarness(t)
	if err := h.engine.Start(sampleQuestions(), 60); err != nil {
		t.Fatalf("start: %v", err)
	}

	h.engine.Answer(1)
	h.engine.Answer(1)
	snap := h.engine.Answer(0)
	if snap.Score != 1 {
		t.Fatalf("repeated answers must not change score, got %d", snap.Score)
	}
	if !*snap.LastCorrect {
		t.Fatalf("locked answer must keep its verdict")
	}
}

func TestEngineWrongAnswerIsNeverScored(t *testing.T) {
	h := newHarness(t)
	if err := h.engine.Start(sampleQuestions()[:1], 60); err != nil {
		t.Fatalf("start: %v", err)
	}
	h.engine.Answer(0)
	h.engine.Answer(1)
	h.engine.Advance()

	res := h.waitResult(t)
	if res.Score != 0 || len(res.Missed) != 1 {
		t.Fatalf("expected a single miss, got %+v", res)
	}
}

func TestEngineAdvanceRequiresAnswer(t *testing.T) {
	h := newHarness(t)
	if err := h.engine.Start(sampleQuestions(), 60); err != nil {
		t.Fatalf("start: %v", err)
	}
	snap := h.engine.Advance()
	if snap.Position != 0 || snap.Status != app.StatusActive {
		t.Fatalf("advance before answering must be a no-op, got %+v", snap)
	}
}

func TestEngineAdvanceOnUnansweredLastQuestionCompletes(t *testing.T) {
	h := newHarness(t)
	if err := h.engine.Start(sampleQuestions()[:2], 60); err != nil {
		t.Fatalf("start: %v", err)
	}
	h.engine.Answer(1)
	h.engine.Advance()
	h.engine.Advance()

	res := h.waitResult(t)
	if res.Reason != domain.ReasonEnd {
		t.Fatalf("expected end, got %s", res.Reason)
	}
	if res.Score != 1 || len(res.Missed) != 0 || res.Answered != 1 {
		t.Fatalf("unanswered question must count neither way, got %+v", res)
	}
}

func TestEngineMissedSetHasNoDuplicates(t *testing.T) {
	h := newHarness(t)
	q := sampleQuestions()[0]
	if err := h.engine.Start([]domain.Question{q, q}, 60); err != nil {
		t.Fatalf("start: %v", err)
	}
	h.engine.Answer(3)
	h.engine.Advance()
	h.engine.Answer(3)
	h.engine.Advance()

	res := h.waitResult(t)
	if len(res.Missed) != 1 {
		t.Fatalf("expected one missed entry, got %d", len(res.Missed))
	}
}

func TestEngineOutOfRangeChoiceIsWrong(t *testing.T) {
	h := newHarness(t)
	if err := h.engine.Start(sampleQuestions(), 60); err != nil {
		t.Fatalf("start: %v", err)
	}
	snap := h.engine.Answer(9)
	if !snap.Locked || *snap.LastCorrect {
		t.Fatalf("expected locked wrong answer, got %+v", snap)
	}
}

func TestEngineCountdownTimesOut(t *testing.T) {
	h := newHarness(t)
	if err := h.engine.Start(sampleQuestions(), 3); err != nil {
		t.Fatalf("start: %v", err)
	}
	h.engine.Answer(0) // wrong, locked but not advanced

	if s := h.tick(t); s.Remaining != 2 || s.Status != app.StatusActive {
		t.Fatalf("expected 2s left, got %+v", s)
	}
	if s := h.tick(t); s.Remaining != 1 {
		t.Fatalf("expected 1s left, got %+v", s)
	}
	if s := h.tick(t); s.Status != app.StatusCompleted || s.Remaining != 0 {
		t.Fatalf("expected timeout completion, got %+v", s)
	}

	res := h.waitResult(t)
	if res.Reason != domain.ReasonTimeout {
		t.Fatalf("expected timeout, got %s", res.Reason)
	}
	if len(res.Missed) != 1 || res.Missed[0].ID != "q1" {
		t.Fatalf("locked wrong answer must be in missed, got %+v", res.Missed)
	}
	if res.Elapsed != 3*time.Second {
		t.Fatalf("expected 3s elapsed, got %s", res.Elapsed)
	}
	waitUntil(t, func() bool { return h.clock.ActiveTickers() == 0 })

	// Terminal engines ignore further input.
	if s := h.engine.Answer(1); s.Score != 0 {
		t.Fatalf("answer after completion must be ignored")
	}
}

func TestEngineFinishEmitsOnce(t *testing.T) {
	h := newHarness(t)
	if err := h.engine.Start(sampleQuestions(), 60); err != nil {
		t.Fatalf("start: %v", err)
	}
	h.engine.Answer(1)
	h.engine.Finish()
	h.engine.Finish()
	h.engine.Advance()
	h.engine.Tick()

	res := h.waitResult(t)
	if res.Reason != domain.ReasonFinished || res.Score != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	select {
	case extra := <-h.results:
		t.Fatalf("result emitted twice: %+v", extra)
	case <-time.After(50 * time.Millisecond):
	}

	stored, ok := h.engine.Result()
	if !ok || stored.SessionID != res.SessionID {
		t.Fatalf("expected stored result, got %+v", stored)
	}
}

func TestEngineAbortEmitsNothing(t *testing.T) {
	h := newHarness(t)
	if err := h.engine.Start(sampleQuestions(), 2); err != nil {
		t.Fatalf("start: %v", err)
	}
	h.engine.Answer(0)
	snap := h.engine.Abort()
	if snap.Status != app.StatusAborted {
		t.Fatalf("expected aborted, got %s", snap.Status)
	}
	waitUntil(t, func() bool { return h.clock.ActiveTickers() == 0 })
	h.clock.Advance(5 * time.Second)

	select {
	case r := <-h.results:
		t.Fatalf("aborted session must not emit, got %+v", r)
	case <-time.After(50 * time.Millisecond):
	}
	if _, ok := h.engine.Result(); ok {
		t.Fatalf("aborted session has no result")
	}
}

func TestEngineStartValidation(t *testing.T) {
	var invalid *domain.InvalidSessionError

	e := app.NewEngine(app.WithClock(app.NewManualClock(time.Now())))
	if err := e.Start(nil, 60); !errors.As(err, &invalid) || !errors.Is(err, domain.ErrEmptyQuestions) {
		t.Fatalf("expected empty questions error, got %v", err)
	}
	if err := e.Start(sampleQuestions(), 0); !errors.Is(err, domain.ErrInvalidDuration) {
		t.Fatalf("expected invalid duration, got %v", err)
	}
	if e.Snapshot().Status != app.StatusIdle {
		t.Fatalf("failed start must leave the engine idle")
	}

	if err := e.Start(sampleQuestions(), 60); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer e.Abort()
	if err := e.Start(sampleQuestions(), 60); !errors.Is(err, domain.ErrSessionStarted) {
		t.Fatalf("expected already started, got %v", err)
	}
}

func TestEngineCopiesQuestions(t *testing.T) {
	h := newHarness(t)
	qs := sampleQuestions()
	qs[0].ID = ""
	if err := h.engine.Start(qs, 60); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer h.engine.Abort()

	qs[0].Choices[1] = "mutated"
	snap := h.engine.Snapshot()
	if snap.Current == nil || snap.Current.Choices[1] != "4" {
		t.Fatalf("engine must own its question list, got %+v", snap.Current)
	}
	if snap.Current.ID == "" {
		t.Fatalf("questions without id must be identified")
	}
}
