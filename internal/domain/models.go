package domain

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"
)

// MaxChoices is the number of choices a canonical question carries at most.
const MaxChoices = 4

// Question is the canonical multiple-choice question consumed by the session engine.
type Question struct {
	ID          string   `json:"id"`
	Text        string   `json:"question"`
	Choices     []string `json:"choices"`
	AnswerIndex int      `json:"answerIndex"`
}

// RawQuestion is a loosely shaped record as delivered by a question source.
// Only the normalizer looks at it; everything downstream sees Question.
type RawQuestion struct {
	ID          string
	Question    string
	Options     []string
	Answer      *string
	AnswerIndex *int
}

// UnmarshalJSON accepts both the API spelling (question/options/answer) and the
// canonical one (text/choices/answerIndex). Numeric ids are kept as strings and
// fields of the wrong type are ignored.
func (r *RawQuestion) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	*r = RawQuestion{}

	if v, ok := fields["id"]; ok {
		r.ID = rawID(v)
	}
	for _, key := range []string{"question", "text"} {
		if v, ok := fields[key]; ok {
			var s string
			if json.Unmarshal(v, &s) == nil && s != "" {
				r.Question = s
				break
			}
		}
	}
	for _, key := range []string{"options", "choices"} {
		if v, ok := fields[key]; ok {
			var opts []string
			if json.Unmarshal(v, &opts) == nil && opts != nil {
				r.Options = opts
				break
			}
		}
	}
	if v, ok := fields["answer"]; ok {
		var s string
		if json.Unmarshal(v, &s) == nil {
			r.Answer = &s
		}
	}
	if v, ok := fields["answerIndex"]; ok {
		var n json.Number
		if json.Unmarshal(v, &n) == nil {
			if i, err := strconv.Atoi(n.String()); err == nil {
				r.AnswerIndex = &i
			}
		}
	}
	return nil
}

// MarshalJSON writes the API spelling so cached records decode unchanged.
func (r RawQuestion) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID          string   `json:"id,omitempty"`
		Question    string   `json:"question"`
		Options     []string `json:"options"`
		Answer      *string  `json:"answer,omitempty"`
		AnswerIndex *int     `json:"answerIndex,omitempty"`
	}{r.ID, r.Question, r.Options, r.Answer, r.AnswerIndex})
}

func rawID(v json.RawMessage) string {
	var s string
	if json.Unmarshal(v, &s) == nil {
		return s
	}
	var n json.Number
	if json.Unmarshal(v, &n) == nil {
		return n.String()
	}
	return ""
}

// Scope identifies whose data an operation touches.
type Scope struct {
	UserID  string `json:"userId"`
	Subject string `json:"subject"`
}

func (s Scope) String() string {
	return s.UserID + "/" + s.Subject
}

// Valid reports whether both parts of the scope are set.
func (s Scope) Valid() bool {
	return strings.TrimSpace(s.UserID) != "" && strings.TrimSpace(s.Subject) != ""
}

// Mistake is a persisted miss: the question as it was missed plus merge bookkeeping.
type Mistake struct {
	Question
	TimesWrong int       `json:"timesWrong"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// CompletionReason records which path terminated a completed session.
type CompletionReason string

const (
	ReasonEnd      CompletionReason = "end"
	ReasonTimeout  CompletionReason = "timeout"
	ReasonFinished CompletionReason = "finished"
)

// SessionResult is the immutable outcome of a completed session.
type SessionResult struct {
	SessionID string           `json:"sessionId"`
	Score     int              `json:"score"`
	Total     int              `json:"total"`
	Answered  int              `json:"answered"`
	Presented int              `json:"presented"`
	Missed    []Question       `json:"missed"`
	Reason    CompletionReason `json:"reason"`
	Elapsed   time.Duration    `json:"elapsed"`
}

// SortMistakes orders mistakes most recently updated first, then by id.
func SortMistakes(ms []Mistake) {
	sort.SliceStable(ms, func(i, j int) bool {
		if !ms[i].UpdatedAt.Equal(ms[j].UpdatedAt) {
			return ms[i].UpdatedAt.After(ms[j].UpdatedAt)
		}
		return ms[i].ID < ms[j].ID
	})
}

// Subjects is the catalogue offered to clients.
var Subjects = []string{
	"Mathematics",
	"Physics",
	"History",
	"Geography",
	"Arabic",
	"Chemistry",
	"English",
	"Biology",
	"Statistics",
}
