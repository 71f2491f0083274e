package cli

import (
	"context"
	"path/filepath"
	"sort"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"

	"quizprep-service/internal/app"
	"quizprep-service/internal/config"
	"quizprep-service/internal/domain"
	"quizprep-service/internal/infra/memory"
	redisstore "quizprep-service/internal/infra/redis"
	"quizprep-service/internal/infra/sqlite"
	"quizprep-service/internal/question"
)

func TestShippedConfigAndBank(t *testing.T) {
	cfg, err := config.Load("../../configs/config.yaml")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Store.Backend != config.BackendMemory {
		t.Fatalf("expected memory backend, got %q", cfg.Store.Backend)
	}

	bank, err := memory.LoadStaticBank(filepath.Join("../..", cfg.Questions.FallbackBank))
	if err != nil {
		t.Fatalf("load bank: %v", err)
	}
	got := bank.Subjects()
	want := append([]string(nil), domain.Subjects...)
	sort.Strings(got)
	sort.Strings(want)
	if len(got) != len(want) {
		t.Fatalf("bank subjects %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("bank subjects %v, want %v", got, want)
		}
	}
	for _, subject := range want {
		qs, _ := bank.Questions(subject)
		for _, q := range qs {
			if q.Text == "" || len(q.Choices) < 2 || q.AnswerIndex >= len(q.Choices) {
				t.Fatalf("%s: invalid question %+v", subject, q)
			}
		}
	}
}

func testConfig(backend string) config.Config {
	var cfg config.Config
	cfg.Store.Backend = backend
	cfg.Auth.Secret = "secret"
	cfg.ApplyDefaults()
	return cfg
}

func TestBuildStackMemory(t *testing.T) {
	st, err := buildStack(context.Background(), testConfig(config.BackendMemory))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer st.close()

	if _, ok := st.mistakes.(*memory.MistakeStore); !ok {
		t.Fatalf("unexpected mistake store %T", st.mistakes)
	}
	if _, ok := st.source.(*memory.QuestionCache); !ok {
		t.Fatalf("unexpected source %T", st.source)
	}
	if _, ok := st.publisher.(app.NopPublisher); !ok {
		t.Fatalf("unexpected publisher %T", st.publisher)
	}
}

func TestBuildStackSQLite(t *testing.T) {
	cfg := testConfig(config.BackendSQLite)
	cfg.SQLite.Path = filepath.Join(t.TempDir(), "quiz.db")

	st, err := buildStack(context.Background(), cfg)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer st.close()

	if _, ok := st.mistakes.(*sqlite.MistakeStore); !ok {
		t.Fatalf("unexpected mistake store %T", st.mistakes)
	}
	if _, ok := st.users.(*sqlite.UserStore); !ok {
		t.Fatalf("unexpected user store %T", st.users)
	}
}

func TestBuildStackRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(config.BackendRedis)
	cfg.Redis.Addr = mr.Addr()

	st, err := buildStack(context.Background(), cfg)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer st.close()

	if _, ok := st.mistakes.(*redisstore.MistakeStore); !ok {
		t.Fatalf("unexpected mistake store %T", st.mistakes)
	}
	if _, ok := st.source.(*redisstore.QuestionCache); !ok {
		t.Fatalf("unexpected source %T", st.source)
	}
	registry := st.registry(func(string) *app.Surface { return nil })
	if _, ok := registry.(*redisstore.SurfaceStore); !ok {
		t.Fatalf("unexpected registry %T", registry)
	}
}

func TestToRawKeepsAnswer(t *testing.T) {
	qs := []domain.Question{{ID: "a", Text: "1+1", Choices: []string{"1", "2"}, AnswerIndex: 1}}
	raws := toRaw(qs)
	if got := question.Normalize(raws[0]); got.ID != "a" || got.AnswerIndex != 1 || got.Text != "1+1" {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}
