// Package question derives stable identities for questions and normalizes raw
// source records into the canonical domain.Question shape.
package question

import (
	"encoding/hex"
	"hash/fnv"
	"strings"

	"quizprep-service/internal/domain"
)

// DerivedPrefix marks ids computed from content, keeping them apart from
// source-supplied ids.
const DerivedPrefix = "h:"

// Identify returns q.ID when present, otherwise a content hash over the prompt
// and choices.
func Identify(q domain.Question) string {
	if q.ID != "" {
		return q.ID
	}
	return ContentID(q.Text, q.Choices)
}

// ContentID hashes text + "||" + choices joined by "|" with 64-bit FNV-1a.
func ContentID(text string, choices []string) string {
	h := fnv.New64a()
	h.Write([]byte(text))
	h.Write([]byte("||"))
	h.Write([]byte(strings.Join(choices, "|")))
	return DerivedPrefix + hex.EncodeToString(h.Sum(nil))
}

// EnsureID returns a copy of q with its ID filled in.
func EnsureID(q domain.Question) domain.Question {
	q.ID = Identify(q)
	return q
}

// Dedupe keeps one question per identity. The position of the first occurrence
// is kept and the last occurrence's content wins.
func Dedupe(qs []domain.Question) []domain.Question {
	if len(qs) == 0 {
		return nil
	}
	index := make(map[string]int, len(qs))
	out := make([]domain.Question, 0, len(qs))
	for _, q := range qs {
		q = EnsureID(q)
		if i, ok := index[q.ID]; ok {
			out[i] = q
			continue
		}
		index[q.ID] = len(out)
		out = append(out, q)
	}
	return out
}
