package cli

import (
	"context"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"quizprep-service/internal/config"
	"quizprep-service/internal/domain"
	"quizprep-service/internal/infra/memory"
	"quizprep-service/internal/infra/postgres"
	"quizprep-service/internal/logging"
)

// NewSeedCmd copies a YAML question bank into the Postgres questions table.
func NewSeedCmd(configPath *string) *cobra.Command {
	var bankPath string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load a YAML question bank into Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			logging.Setup(cfg.Log.Level, cfg.Log.Pretty)
			if bankPath == "" {
				bankPath = cfg.Questions.FallbackBank
			}
			return seedQuestions(cmd.Context(), cfg, bankPath)
		},
	}
	cmd.Flags().StringVar(&bankPath, "bank", "", "bank file (defaults to questions.fallback_bank)")
	return cmd
}

func seedQuestions(ctx context.Context, cfg config.Config, bankPath string) error {
	if bankPath == "" {
		return fmt.Errorf("no bank file given")
	}
	bank, err := memory.LoadStaticBank(bankPath)
	if err != nil {
		return err
	}
	if err := runMigrationsWithConfig(ctx, cfg); err != nil {
		return err
	}
	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	loader := postgres.NewQuestionLoader(pool)
	subjects := bank.Subjects()
	sort.Strings(subjects)
	for _, subject := range subjects {
		qs, _ := bank.Questions(subject)
		if err := loader.SeedQuestions(ctx, subject, toRaw(qs)); err != nil {
			return fmt.Errorf("seed %s: %w", subject, err)
		}
		log.Info().Str("subject", subject).Int("questions", len(qs)).Msg("subject seeded")
	}
	return nil
}

func toRaw(qs []domain.Question) []domain.RawQuestion {
	out := make([]domain.RawQuestion, len(qs))
	for i, q := range qs {
		idx := q.AnswerIndex
		out[i] = domain.RawQuestion{
			ID:          q.ID,
			Question:    q.Text,
			Options:     q.Choices,
			AnswerIndex: &idx,
		}
	}
	return out
}
