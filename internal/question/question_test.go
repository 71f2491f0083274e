package question

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quizprep-service/internal/domain"
)

func intPtr(i int) *int       { return &i }
func strPtr(s string) *string { return &s }

func TestIdentifyKeepsSuppliedID(t *testing.T) {
	q := domain.Question{ID: "abc", Text: "2+2", Choices: []string{"3", "4"}}
	assert.Equal(t, "abc", Identify(q))
	assert.Equal(t, Identify(q), Identify(q))
}

func TestIdentifyIsStableForIdenticalContent(t *testing.T) {
	a := domain.Question{Text: "capital of France", Choices: []string{"Rome", "Paris", "Berlin", "Madrid"}, AnswerIndex: 1}
	b := domain.Question{Text: "capital of France", Choices: []string{"Rome", "Paris", "Berlin", "Madrid"}, AnswerIndex: 3}

	idA := Identify(a)
	assert.Equal(t, idA, Identify(b), "answer index is not part of identity")
	assert.True(t, strings.HasPrefix(idA, DerivedPrefix))
	assert.Len(t, idA, len(DerivedPrefix)+16)
}

func TestIdentifyDistinguishesFraming(t *testing.T) {
	a := domain.Question{Text: "a", Choices: []string{"b|c"}}
	b := domain.Question{Text: "a", Choices: []string{"b", "c"}}
	c := domain.Question{Text: "a", Choices: []string{"b", "d"}}

	assert.NotEqual(t, Identify(b), Identify(c))
	// "|" inside a choice is the documented framing ambiguity.
	assert.Equal(t, Identify(a), Identify(b))
}

func TestDedupeKeepsFirstPositionLastContent(t *testing.T) {
	qs := []domain.Question{
		{ID: "a", Text: "first"},
		{ID: "b", Text: "other"},
		{ID: "a", Text: "second"},
	}
	out := Dedupe(qs)
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].ID)
	assert.Equal(t, "second", out[0].Text)
	assert.Equal(t, "b", out[1].ID)
}

func TestNormalize(t *testing.T) {
	choices := []string{"3", "4", "5", "6"}
	tests := []struct {
		name         string
		raw          domain.RawQuestion
		wantIndex    int
		wantFallback bool
	}{
		{"explicit index", domain.RawQuestion{Question: "2+2", Options: choices, AnswerIndex: intPtr(1)}, 1, false},
		{"literal answer", domain.RawQuestion{Question: "2+2", Options: choices, Answer: strPtr("6")}, 3, false},
		{"index wins over literal", domain.RawQuestion{Question: "2+2", Options: choices, AnswerIndex: intPtr(2), Answer: strPtr("4")}, 2, false},
		{"out of range index falls to literal", domain.RawQuestion{Question: "2+2", Options: choices, AnswerIndex: intPtr(7), Answer: strPtr("4")}, 1, false},
		{"negative index", domain.RawQuestion{Question: "2+2", Options: choices, AnswerIndex: intPtr(-1)}, 0, true},
		{"index beyond short choices", domain.RawQuestion{Question: "x", Options: []string{"a", "b"}, AnswerIndex: intPtr(3)}, 0, true},
		{"unknown literal", domain.RawQuestion{Question: "2+2", Options: choices, Answer: strPtr("22")}, 0, true},
		{"nothing at all", domain.RawQuestion{}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, report := NormalizeWithReport(tt.raw)
			assert.Equal(t, tt.wantIndex, q.AnswerIndex)
			assert.Equal(t, tt.wantFallback, report.AnswerFallback)
			assert.NotEmpty(t, q.ID)
		})
	}
}

// The zero fallback turns an unresolvable answer into "first choice is
// correct". This test pins that hazard so a change in behavior is deliberate.
func TestNormalizeFallbackMarksFirstChoiceCorrect(t *testing.T) {
	raw := domain.RawQuestion{
		Question: "Which is prime?",
		Options:  []string{"4", "6", "7", "9"},
		Answer:   strPtr("seven"),
	}
	q, report := NormalizeWithReport(raw)
	require.True(t, report.AnswerFallback, "unresolvable answer must be reported")
	assert.Equal(t, 0, q.AnswerIndex)
	assert.Equal(t, "4", q.Choices[q.AnswerIndex], "first choice silently becomes the key")
}

func TestNormalizeTruncatesChoices(t *testing.T) {
	raw := domain.RawQuestion{
		Question: "pick",
		Options:  []string{"a", "b", "c", "d", "e", "f"},
		Answer:   strPtr("e"),
	}
	q, report := NormalizeWithReport(raw)
	assert.Equal(t, []string{"a", "b", "c", "d"}, q.Choices)
	assert.True(t, report.AnswerFallback, "answer beyond the fourth choice cannot resolve")
}

func TestNormalizeKeepsSourceID(t *testing.T) {
	q := Normalize(domain.RawQuestion{ID: "42", Question: "q", Options: []string{"a"}})
	assert.Equal(t, "42", q.ID)

	derived := Normalize(domain.RawQuestion{Question: "q", Options: []string{"a"}})
	assert.Equal(t, ContentID("q", []string{"a"}), derived.ID)
}

func TestRawQuestionDecodesBothSpellings(t *testing.T) {
	payload := `[
		{"id": 7, "question": "2+2", "options": ["3","4","5","6"], "answer": "4"},
		{"text": "capital", "choices": ["Rome","Paris"], "answerIndex": 1},
		{"question": 12, "options": "bad", "answerIndex": "x"}
	]`
	var raws []domain.RawQuestion
	require.NoError(t, json.Unmarshal([]byte(payload), &raws))
	require.Len(t, raws, 3)

	first := Normalize(raws[0])
	assert.Equal(t, "7", first.ID)
	assert.Equal(t, 1, first.AnswerIndex)

	second := Normalize(raws[1])
	assert.Equal(t, "capital", second.Text)
	assert.Equal(t, 1, second.AnswerIndex)

	third, report := NormalizeWithReport(raws[2])
	assert.Empty(t, third.Text)
	assert.Empty(t, third.Choices)
	assert.True(t, report.AnswerFallback)
}
