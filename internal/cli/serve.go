package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"medquiz-challenge/internal/app"
	"medquiz-challenge/internal/config"
	"medquiz-challenge/internal/domain"
	"medquiz-challenge/internal/infra/memory"
	pgloader "medquiz-challenge/internal/infra/postgres"
	redisstore "medquiz-challenge/internal/infra/redis"
	transport "medquiz-challenge/internal/transport/http"
)

// NewServeCmd builds the subcommand that runs the challenge backend.
func NewServeCmd(configPath, port *string, envPort string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the challenge backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
	cmd.Flags().StringVar(port, "port", envPort, "port to listen on (overrides config)")
	return cmd
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}
	redisTTL := config.Duration(cfg.Redis.TTL, 6*time.Hour)

	var loader memory.ChallengeLoader = memory.NewStaticChallengeLoader(demoChallenges())
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		loader = pgloader.NewChallengeLoader(pool)
	}

	challengeTTL := config.Duration(cfg.Challenge.TTL, 10*time.Minute)
	var challenges app.ChallengeRepository
	var store app.PlayStore
	if redisClient != nil {
		challenges = redisstore.NewChallengeRepository(redisClient, loader, challengeTTL)
		store = redisstore.NewPlayStore(redisClient, redisTTL)
	} else {
		challenges = memory.NewChallengeRepository(loader, challengeTTL)
		store = memory.NewPlayStore()
	}
	service := app.NewChallengeService(challenges, store)

	router := mux.NewRouter()
	transport.NewRESTHandler(service, transport.NewMetrics()).Routes(router)

	c := cors.New(cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      c.Handler(router),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", finalPort).Bool("redis", redisClient != nil).Bool("postgres", cfg.Postgres.URL != "").Msg("starting challenge backend")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down server...")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// demoChallenges seeds the in-memory loader when no database is configured.
func demoChallenges() map[string]domain.ChallengeContent {
	return map[string]domain.ChallengeContent{
		"DEMO01": {
			Challenge: domain.Challenge{Code: "DEMO01", Status: domain.ChallengeActive, TimeLimitSeconds: 20},
			Questions: []domain.Question{
				{
					ID:            "demo-q1",
					Order:         1,
					Prompt:        "Which nerve innervates the deltoid?",
					Options:       []string{"Axillary", "Radial", "Median", "Ulnar"},
					CorrectAnswer: "Axillary",
					Explanation:   "The axillary nerve (C5-C6) supplies the deltoid and teres minor.",
				},
				{
					ID:            "demo-q2",
					Order:         2,
					Prompt:        "Which artery supplies the SA node in most people?",
					Options:       []string{"RCA", "LAD", "LCx", "PDA"},
					CorrectAnswer: "RCA",
					Explanation:   "The SA nodal artery arises from the right coronary artery in about 60% of hearts.",
				},
				{
					ID:            "demo-q3",
					Order:         3,
					Prompt:        "Which electrolyte disturbance produces peaked T waves?",
					Options:       []string{"Hypokalemia", "Hyperkalemia", "Hypocalcemia", "Hypermagnesemia"},
					CorrectAnswer: "Hyperkalemia",
				},
			},
		},
	}
}
