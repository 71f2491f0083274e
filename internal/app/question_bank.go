package app

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"quizprep-service/internal/domain"
	"quizprep-service/internal/question"
)

// QuestionBank loads and normalizes a subject's question pool, falling back to
// a static bank when the source fails.
type QuestionBank struct {
	source   QuestionSource
	fallback FallbackBank
}

// NewQuestionBank wires a source and an optional fallback.
func NewQuestionBank(source QuestionSource, fallback FallbackBank) *QuestionBank {
	return &QuestionBank{source: source, fallback: fallback}
}

// Pool returns the normalized, deduplicated pool for subject. A canceled
// context is returned as is and never falls back.
func (b *QuestionBank) Pool(ctx context.Context, subject string) ([]domain.Question, error) {
	raws, err := b.source.Fetch(ctx, subject)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		var fetchErr *domain.FetchError
		if !errors.As(err, &fetchErr) {
			err = &domain.FetchError{Subject: subject, Err: err}
		}
		if b.fallback != nil {
			if qs, ok := b.fallback.Questions(subject); ok {
				log.Warn().Err(err).Str("subject", subject).Int("questions", len(qs)).Msg("question source failed, serving fallback bank")
				return question.Dedupe(ensureIDs(qs)), nil
			}
		}
		return nil, err
	}

	pool := make([]domain.Question, 0, len(raws))
	for _, raw := range raws {
		q, report := question.NormalizeWithReport(raw)
		if report.AnswerFallback {
			log.Warn().Str("subject", subject).Str("question_id", q.ID).Msg("answer unresolved, defaulting to first choice")
		}
		pool = append(pool, q)
	}
	return question.Dedupe(pool), nil
}

func ensureIDs(qs []domain.Question) []domain.Question {
	out := make([]domain.Question, len(qs))
	for i, q := range qs {
		out[i] = question.EnsureID(q)
	}
	return out
}
