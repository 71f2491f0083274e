package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"quizprep-service/internal/app"
	"quizprep-service/internal/auth"
	"quizprep-service/internal/config"
	"quizprep-service/internal/infra/httpsource"
	"quizprep-service/internal/infra/memory"
	"quizprep-service/internal/infra/postgres"
	"quizprep-service/internal/infra/rabbitmq"
	redisstore "quizprep-service/internal/infra/redis"
	"quizprep-service/internal/infra/sqlite"
	"quizprep-service/internal/logging"
	transport "quizprep-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the practice server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

// stack is everything the server needs from the configured backends.
type stack struct {
	mistakes  app.MistakeStore
	seen      app.SeenStore
	users     auth.UserStore
	blacklist auth.Blacklist
	source    app.QuestionSource
	publisher app.ResultPublisher
	registry  func(factory func(string) *app.Surface) surfaceRegistry
	closers   []func()
}

type surfaceRegistry interface {
	app.SurfaceRegistry
	Close()
}

func (s *stack) onClose(fn func()) { s.closers = append(s.closers, fn) }

func (s *stack) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Pretty)

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}

	st, err := buildStack(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.close()

	var fallback app.FallbackBank
	if cfg.Questions.FallbackBank != "" {
		bank, err := memory.LoadStaticBank(cfg.Questions.FallbackBank)
		if err != nil {
			return err
		}
		log.Info().Strs("subjects", bank.Subjects()).Msg("fallback bank loaded")
		fallback = bank
	}

	opts := []app.ServiceOption{
		app.WithSeenStore(st.seen),
		app.WithPublisher(st.publisher),
	}
	if cfg.Quiz.PreferUnseen {
		opts = append(opts, app.WithUnseenFirst())
	}
	service := app.NewPracticeService(app.NewQuestionBank(st.source, fallback), st.mistakes, opts...)
	surfaces := st.registry(service.NewSurface)
	defer surfaces.Close()

	provider := auth.NewLocalProvider(st.users, st.blacklist, cfg.Auth.Secret,
		config.TTLDuration(cfg.Auth.TokenTTL, auth.DefaultTokenTTL))

	router := transport.NewRouter(
		transport.NewAPIHandler(service, provider),
		transport.NewWSHandler(surfaces, provider, transport.Defaults{
			Count:   cfg.Quiz.DefaultCount,
			Minutes: cfg.Quiz.DefaultMinutes,
		}),
	)

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("port", finalPort).Str("backend", cfg.Store.Backend).Msg("starting practice service")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("failed to start server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info().Msg("shutting down server...")
	case <-ctx.Done():
		log.Info().Msg("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		config.TTLDuration(cfg.Server.ShutdownTimeout, 5*time.Second))
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func buildStack(ctx context.Context, cfg config.Config) (*stack, error) {
	st := &stack{
		users:     memory.NewUserStore(),
		blacklist: memory.NewTokenBlacklist(),
		publisher: app.NopPublisher{},
		registry: func(factory func(string) *app.Surface) surfaceRegistry {
			return memory.NewSurfaceStore(factory)
		},
	}
	fail := func(err error) (*stack, error) {
		st.close()
		return nil, err
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		st.onClose(func() { _ = redisClient.Close() })
		surfaceTTL := config.TTLDuration(cfg.Redis.SurfaceTTL, 10*time.Minute)
		st.blacklist = redisstore.NewTokenBlacklist(redisClient)
		st.registry = func(factory func(string) *app.Surface) surfaceRegistry {
			return redisstore.NewSurfaceStore(redisClient, surfaceTTL, factory)
		}
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return fail(err)
		}
		p, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return fail(err)
		}
		pool = p
		st.onClose(pool.Close)
	}

	switch cfg.Store.Backend {
	case config.BackendRedis:
		st.mistakes = redisstore.NewMistakeStore(redisClient)
		st.seen = redisstore.NewSeenStore(redisClient)
		st.users = redisstore.NewUserStore(redisClient)
	case config.BackendPostgres:
		st.mistakes = postgres.NewMistakeStore(pool)
		st.seen = postgres.NewSeenStore(pool)
		st.users = postgres.NewUserStore(pool)
	case config.BackendSQLite:
		db, err := sqlite.Open(cfg.SQLite.Path)
		if err != nil {
			return fail(err)
		}
		st.onClose(func() { _ = db.Close() })
		st.mistakes = db.MistakeStore()
		st.seen = db.SeenStore()
		st.users = db.UserStore()
	default:
		st.mistakes = memory.NewMistakeStore()
		st.seen = memory.NewSeenStore()
	}

	var source app.QuestionSource
	switch {
	case cfg.Questions.APIBaseURL != "":
		source = httpsource.New(cfg.Questions.APIBaseURL, config.TTLDuration(cfg.Questions.FetchTimeout, 10*time.Second))
	case pool != nil:
		source = postgres.NewQuestionLoader(pool)
	default:
		log.Warn().Msg("no question source configured, serving the fallback bank only")
		source = memory.NewStaticSource(nil)
	}
	cacheTTL := config.TTLDuration(cfg.Questions.CacheTTL, 10*time.Minute)
	if redisClient != nil {
		st.source = redisstore.NewQuestionCache(redisClient, source, cacheTTL)
	} else {
		st.source = memory.NewQuestionCache(source, cacheTTL)
	}

	if cfg.RabbitMQ.URL != "" {
		publisher, err := rabbitmq.Dial(cfg.RabbitMQ.URL, cfg.RabbitMQ.Queue)
		if err != nil {
			return fail(err)
		}
		st.onClose(func() { _ = publisher.Close() })
		st.publisher = publisher
		log.Info().Str("queue", cfg.RabbitMQ.Queue).Msg("publishing session results")
	}
	return st, nil
}
