package question

import "quizprep-service/internal/domain"

// Report describes how a raw record was normalized.
type Report struct {
	// AnswerFallback is set when neither answerIndex nor the literal answer
	// resolved, and the first choice was assumed correct.
	AnswerFallback bool
}

// Normalize maps a raw record into a canonical question. It never fails.
func Normalize(raw domain.RawQuestion) domain.Question {
	q, _ := NormalizeWithReport(raw)
	return q
}

// NormalizeWithReport is Normalize plus a report of fallbacks taken.
//
// The answer resolves from answerIndex when it is in range, then from the
// position of the literal answer among the choices, and finally defaults to 0.
// The default silently marks the first choice correct; callers should log it.
func NormalizeWithReport(raw domain.RawQuestion) (domain.Question, Report) {
	choices := make([]string, 0, domain.MaxChoices)
	for i, c := range raw.Options {
		if i == domain.MaxChoices {
			break
		}
		choices = append(choices, c)
	}

	idx, ok := resolveAnswer(raw, choices)
	q := domain.Question{
		ID:          raw.ID,
		Text:        raw.Question,
		Choices:     choices,
		AnswerIndex: idx,
	}
	return EnsureID(q), Report{AnswerFallback: !ok}
}

func resolveAnswer(raw domain.RawQuestion, choices []string) (int, bool) {
	if raw.AnswerIndex != nil && inRange(*raw.AnswerIndex, choices) {
		return *raw.AnswerIndex, true
	}
	if raw.Answer != nil {
		for i, c := range choices {
			if c == *raw.Answer {
				return i, true
			}
		}
	}
	return 0, false
}

func inRange(i int, choices []string) bool {
	if i < 0 || i >= domain.MaxChoices {
		return false
	}
	return len(choices) == 0 || i < len(choices)
}
