package memory

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"quizprep-service/internal/domain"
	"quizprep-service/internal/question"
)

// StaticBank is the offline question set served when the remote source is
// unavailable.
type StaticBank struct {
	subjects map[string][]domain.Question
}

type bankFile struct {
	Subjects map[string][]bankQuestion `yaml:"subjects"`
}

type bankQuestion struct {
	ID          string   `yaml:"id"`
	Question    string   `yaml:"question"`
	Choices     []string `yaml:"choices"`
	Answer      *string  `yaml:"answer"`
	AnswerIndex *int     `yaml:"answerIndex"`
}

func NewStaticBank(subjects map[string][]domain.Question) *StaticBank {
	b := &StaticBank{subjects: make(map[string][]domain.Question, len(subjects))}
	for subject, qs := range subjects {
		b.subjects[subject] = question.Dedupe(qs)
	}
	return b
}

// LoadStaticBank reads a YAML bank file. Entries go through the same
// normalization as remote records.
func LoadStaticBank(path string) (*StaticBank, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file bankFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse bank %s: %w", path, err)
	}

	subjects := make(map[string][]domain.Question, len(file.Subjects))
	for subject, entries := range file.Subjects {
		qs := make([]domain.Question, 0, len(entries))
		for _, e := range entries {
			qs = append(qs, question.Normalize(domain.RawQuestion{
				ID:          e.ID,
				Question:    e.Question,
				Options:     e.Choices,
				Answer:      e.Answer,
				AnswerIndex: e.AnswerIndex,
			}))
		}
		subjects[subject] = qs
	}
	return NewStaticBank(subjects), nil
}

// Questions returns the subject's questions. A subject with no questions
// counts as missing.
func (b *StaticBank) Questions(subject string) ([]domain.Question, bool) {
	qs := b.subjects[subject]
	if len(qs) == 0 {
		return nil, false
	}
	out := make([]domain.Question, len(qs))
	for i, q := range qs {
		out[i] = cloneQuestion(q)
	}
	return out, true
}

// Subjects lists the subjects the bank can serve.
func (b *StaticBank) Subjects() []string {
	out := make([]string, 0, len(b.subjects))
	for s, qs := range b.subjects {
		if len(qs) > 0 {
			out = append(out, s)
		}
	}
	return out
}
