package cli

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"eduquiz-service/internal/app"
	"eduquiz-service/internal/config"
	"eduquiz-service/internal/domain"
	"eduquiz-service/internal/infra/memory"
	pginfra "eduquiz-service/internal/infra/postgres"
	redisinfra "eduquiz-service/internal/infra/redis"
	transport "eduquiz-service/internal/transport/http"
)

// NewServeCmd builds the CLI subcommand to start the server.
func NewServeCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the quiz attempt server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

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
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)
	catalogTTL := config.TTLDuration(cfg.Catalog.TTL, 10*time.Minute)
	// The ranking snapshot cache defaults to the general redis TTL.
	rankingTTL := config.TTLDuration(cfg.Ranking.TTL, redisTTL)
	shutdownTimeout := config.TTLDuration(cfg.Server.ShutdownTimeout, 5*time.Second)

	var (
		catalog   app.CatalogRepository
		attempts  app.AttemptStore
		rankings  app.RankingStore
		reports   app.ReportStore
		directory app.StudentDirectory
		lister    transport.QuizLister
	)

	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()

		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
		db := bun.NewDB(sqldb, pgdialect.New())
		defer db.Close()

		pgCatalog := pginfra.NewCatalog(pool)
		if redisClient != nil {
			catalog = redisinfra.NewCatalogCache(redisClient, pgCatalog, catalogTTL)
		} else {
			catalog = memory.NewCatalogCache(pgCatalog, catalogTTL)
		}
		lister = pgCatalog
		attempts = pginfra.NewAttemptStore(db)
		rankings = pginfra.NewRankingStore(db)
		reports = pginfra.NewReportStore(db)
		directory = pginfra.NewDirectory(pool)
	} else {
		// Demo mode: static catalog and in-memory stores.
		static := memory.NewStaticCatalog(sampleQuizzes())
		catalog = static
		lister = static
		attempts = memory.NewAttemptStore(static.CategoryOf)
		rankings = memory.NewRankingStore()
		reports = memory.NewReportStore()
		directory = memory.NewStaticDirectory(nil)
	}

	rankingService := app.NewRankingService(attempts, rankings, directory)
	if redisClient != nil {
		rankingService.WithCache(redisinfra.NewRankingCache(redisClient, rankingTTL))
	}
	attemptService := app.NewAttemptService(catalog, attempts, reports, rankingService)
	statsService := app.NewStatsService(catalog, attempts, reports, rankings)

	handler := transport.NewHandler(attemptService, rankingService, statsService, lister)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      handler.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting eduquiz service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleQuizzes seeds demo mode; production runs against the catalog tables.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-arith": {
			ID:          "quiz-arith",
			Title:       "Basic Arithmetic",
			CategoryID:  "cat-math",
			Active:      true,
			Public:      true,
			MaxAttempts: 1,
			Questions: []domain.Question{
				{
					ID:         "q1",
					QuizID:     "quiz-arith",
					Text:       "What is 2 + 2?",
					Type:       domain.QuestionSingleChoice,
					Points:     1,
					OrderIndex: 1,
					Active:     true,
					Options: []domain.Option{
						{ID: "o1", Text: "3", OrderIndex: 1},
						{ID: "o2", Text: "4", Correct: true, OrderIndex: 2},
						{ID: "o3", Text: "5", OrderIndex: 3},
					},
				},
				{
					ID:         "q2",
					QuizID:     "quiz-arith",
					Text:       "7 is a prime number.",
					Type:       domain.QuestionTrueFalse,
					Points:     1,
					OrderIndex: 2,
					Active:     true,
					Options: []domain.Option{
						{ID: "o4", Text: "True", Correct: true, OrderIndex: 1},
						{ID: "o5", Text: "False", OrderIndex: 2},
					},
				},
			},
		},
	}
}
