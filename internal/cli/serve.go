package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/quizward/quizward/internal/app"
	"github.com/quizward/quizward/internal/config"
	"github.com/quizward/quizward/internal/domain"
	"github.com/quizward/quizward/internal/infra/file"
	"github.com/quizward/quizward/internal/infra/memory"
	pgloader "github.com/quizward/quizward/internal/infra/postgres"
	redisstore "github.com/quizward/quizward/internal/infra/redis"
	"github.com/quizward/quizward/internal/round"
	"github.com/quizward/quizward/internal/scoring"
	"github.com/quizward/quizward/internal/season"
	transport "github.com/quizward/quizward/internal/transport/http"
	"github.com/quizward/quizward/internal/transport/telegram"
)

// NewServeCmd builds the CLI subcommand to start the bot and feed server.
func NewServeCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the quiz bot",
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

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var loader memory.QuestionLoader = memory.NewStaticQuestionLoader(sampleQuestions())
	switch {
	case pool != nil:
		loader = pgloader.NewQuestionLoader(pool)
	case cfg.Storage.QuestionsFile != "":
		loader = file.NewQuestionFile(cfg.Storage.QuestionsFile)
	}

	cacheTTL := config.TTLDuration(cfg.Quiz.CacheTTL, 10*time.Minute)
	var bank app.QuestionBank
	if redisClient != nil {
		bank = redisstore.NewQuestionCache(redisClient, loader, cacheTTL)
	} else {
		bank = memory.NewQuestionBank(loader, cacheTTL)
	}

	var participants app.ParticipantStore
	switch {
	case redisClient != nil:
		participants = redisstore.NewParticipantStore(redisClient)
	case cfg.Storage.ParticipantsFile != "":
		participants, err = file.NewParticipantStore(cfg.Storage.ParticipantsFile)
		if err != nil {
			return err
		}
	default:
		participants = memory.NewParticipantStore()
	}

	var seasons app.SeasonStore = memory.NewSeasonStore()
	if cfg.Storage.SeasonFile != "" {
		seasons = file.NewSeasonFile(cfg.Storage.SeasonFile)
	}

	roundTTL := config.TTLDuration(cfg.Quiz.RoundTTL, 10*time.Minute)
	engine := round.NewEngine(roundTTL)
	picker := round.NewPicker()
	policy := policyFromConfig(cfg)

	boundary := season.QuarterBoundary
	if cfg.Season.Mode == "interval" {
		boundary = season.IntervalBoundary(config.TTLDuration(cfg.Season.Interval, 90*24*time.Hour))
	}
	seasonBonus := cfg.Season.Bonus
	if len(seasonBonus) == 0 {
		seasonBonus = []int{730, 500, 250}
	}
	weeklyBonus := cfg.Weekly.Bonus
	if cfg.Weekly.Enabled && len(weeklyBonus) == 0 {
		weeklyBonus = []int{730, 500, 250}
	}
	if !cfg.Weekly.Enabled {
		weeklyBonus = nil
	}
	sched := season.NewScheduler(boundary, seasonBonus, weeklyBonus)

	service := app.NewGameService(participants, bank, seasons, engine, picker, policy, sched, cfg.Telegram.AdminID)
	if err := service.Init(ctx); err != nil {
		return err
	}

	token := os.Getenv("TELEGRAM_TOKEN")
	if token == "" {
		token = cfg.Telegram.Token
	}
	var gateway *telegram.Gateway
	if token != "" {
		gateway, err = telegram.NewGateway(token, service)
		if err != nil {
			return err
		}
		service.SetDispatcher(gateway)
	} else {
		log.Println("no telegram token configured, running feed server only")
	}

	feed := transport.NewFeedHandler(service)
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", feed.ServeFeed)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		log.Printf("starting quiz feed server on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if gateway != nil {
		g.Go(func() error {
			return gateway.Run(gctx)
		})
		g.Go(func() error {
			return service.RunRoundEmitter(gctx, app.EmitterConfig{
				Interval:    config.TTLDuration(cfg.Quiz.Interval, 45*time.Minute),
				ActiveFrom:  config.ClockTime(cfg.Quiz.ActiveFrom, 7*time.Hour),
				ActiveUntil: config.ClockTime(cfg.Quiz.ActiveUntil, 23*time.Hour),
			})
		})
	}
	g.Go(func() error {
		return service.RunSeasonTicker(gctx, time.Minute)
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

func policyFromConfig(cfg config.Config) scoring.Policy {
	p := scoring.Default()
	if cfg.Scoring.PointsPerCorrect > 0 {
		p.PointsPerCorrect = cfg.Scoring.PointsPerCorrect
	}
	if cfg.Scoring.StartingPoints > 0 {
		p.StartingPoints = cfg.Scoring.StartingPoints
	}
	if cfg.Scoring.StreakLength > 0 {
		p.StreakLength = cfg.Scoring.StreakLength
	}
	if cfg.Scoring.StreakBonus > 0 {
		p.StreakBonus = cfg.Scoring.StreakBonus
	}
	if cfg.Scoring.MissPenalty > 0 {
		p.MissPenalty = cfg.Scoring.MissPenalty
	}
	if cfg.Scoring.LevelBase > 0 {
		p.LevelBase = cfg.Scoring.LevelBase
	}
	if cfg.Scoring.LevelStep > 0 {
		p.LevelStep = cfg.Scoring.LevelStep
	}
	return p
}

// sampleQuestions seeds an in-memory bank when no question source is
// configured; swap in the file or postgres loader for real deployments.
func sampleQuestions() []domain.Question {
	return []domain.Question{
		{
			ID:           "q1",
			Prompt:       "What is the capital of Australia?",
			Options:      []string{"Sydney", "Canberra", "Melbourne", "Perth"},
			CorrectIndex: 1,
		},
		{
			ID:           "q2",
			Prompt:       "Which planet has the most moons?",
			Options:      []string{"Jupiter", "Saturn", "Neptune"},
			CorrectIndex: 1,
		},
		{
			ID:           "q3",
			Prompt:       "What year was the first email sent?",
			Options:      []string{"1965", "1971", "1983"},
			CorrectIndex: 1,
		},
	}
}
