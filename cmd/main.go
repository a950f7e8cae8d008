package main

import (
	"context"
	"time"

	"github.com/hellofresh/health-go/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/yakoovad/reviewmate/internal/api"
	"github.com/yakoovad/reviewmate/internal/auth"
	"github.com/yakoovad/reviewmate/internal/config"
	"github.com/yakoovad/reviewmate/internal/db"
	"github.com/yakoovad/reviewmate/internal/githubapi"
	"github.com/yakoovad/reviewmate/internal/notify"
	"github.com/yakoovad/reviewmate/internal/realtime"
	"github.com/yakoovad/reviewmate/internal/repository"
	"github.com/yakoovad/reviewmate/internal/service"
	"github.com/yakoovad/reviewmate/internal/vault"
	"github.com/yakoovad/reviewmate/pkg/logger"
)

func main() {
	logger, err := logger.NewLogger()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	logger.Info("starting application")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}
	auth.TokenSecretKey = cfg.TokenAuthSecret

	if err = db.Migrate(cfg.DatabaseURL); err != nil {
		logger.Fatal("failed to apply migrations", zap.Error(err))
	}

	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err = pool.Ping(context.Background()); err != nil {
		logger.Fatal("failed to ping database", zap.Error(err))
	}

	logger.Info("database connection established")

	transactor := db.NewPgxTransactor(pool)

	userRepo := repository.NewPgxUserRepository(pool)
	reviewRepo := repository.NewPgxReviewRepository(pool)

	tokenVault := vault.New(cfg.GithubTokenSecret)
	hub := realtime.NewHub(logger)
	mailer := notify.NewMailer(cfg.SMTP, logger)
	githubClient := githubapi.NewClient(cfg.GithubAPIBaseURL, cfg.GithubTimeout)

	user := service.NewUserService(transactor).
		WithUserRepo(userRepo).
		WithVault(tokenVault)
	review := service.NewReviewService().
		WithReviewRepo(reviewRepo).
		WithUserRepo(userRepo).
		WithGithubClient(githubClient).
		WithVault(tokenVault).
		WithNotifier(mailer).
		WithEmitter(hub)
	batch := service.NewBatchService().
		WithUpserter(review).
		WithEmitter(hub).
		WithLogger(logger)

	digest := notify.NewDigestSender(mailer, userRepo, reviewRepo, logger)
	scheduler := cron.New()
	if _, err = scheduler.AddFunc(cfg.DigestCron, func() {
		digest.SendDailyDigest(context.Background())
	}); err != nil {
		logger.Fatal("failed to schedule daily digest", zap.Error(err))
	}
	scheduler.Start()
	defer scheduler.Stop()

	healthChecker := api.MustNewHealthChecker(health.Config{
		Name:      "postgres",
		Timeout:   time.Second * 5,
		SkipOnErr: false,
		Check: func(ctx context.Context) error {
			return pool.Ping(ctx)
		},
	})

	e := echo.New()

	handler := api.NewHandler(logger).
		WithHealthChecker(healthChecker).
		WithUserService(user).
		WithReviewService(review).
		WithBatchService(batch).
		WithHub(hub).
		WithClientOrigin(cfg.ClientOrigin)

	handler.RegisterRoutes(e)

	logger.Info("server starting", zap.String("addr", cfg.ServerAddr))
	if err = e.Start(cfg.ServerAddr); err != nil {
		logger.Fatal("failed to start server", zap.Error(err))
	}
}
