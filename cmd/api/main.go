package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"phPortfolio/internal/api"
	"phPortfolio/internal/auth"
	"phPortfolio/internal/config"
	"phPortfolio/internal/database"
	"phPortfolio/internal/hosting"
	"phPortfolio/internal/portfolio"
	"phPortfolio/internal/publish"
	"phPortfolio/internal/storage"
)

func main() {
	cfg := config.MustLoad()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	logger.Info("database connection ready",
		slog.String("host", cfg.Database.Host),
		slog.String("name", cfg.Database.Name),
	)

	if err := db.AutoMigrate(
		&database.User{},
		&database.Resume{},
		&database.ResumeSection{},
		&database.Portfolio{},
	); err != nil {
		log.Fatalf("auto migrate: %v", err)
	}
	if err := database.EnsureIndexes(db); err != nil {
		log.Fatalf("ensure indexes: %v", err)
	}
	logger.Info("database migrated")

	redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
	redisClient := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error("close redis client failed", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("ping redis: %v", err)
	}

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddr})
	defer func() {
		if err := asynqClient.Close(); err != nil {
			logger.Error("close asynq client failed", slog.Any("error", err))
		}
	}()

	storageClient, err := storage.NewClient(cfg.MinIO)
	if err != nil {
		log.Fatalf("init storage client: %v", err)
	}
	logger.Info("storage client ready", slog.String("bucket", cfg.MinIO.Bucket))

	authService, err := auth.NewAuthService(
		[]byte(cfg.Auth.PrivateKeyPEM),
		[]byte(cfg.Auth.PublicKeyPEM),
		cfg.Auth.AccessTokenTTL,
		cfg.Auth.RefreshTokenTTL,
	)
	if err != nil {
		log.Fatalf("init auth service: %v", err)
	}

	hostingClient := hosting.NewHTTPClient(cfg.Hosting.BaseURL, cfg.Hosting.Timeout)
	store := portfolio.NewStore(db)
	resolver := portfolio.NewResolver(db, store, redisClient, logger)
	orchestrator := publish.NewOrchestrator(
		hostingClient,
		store,
		cfg.Hosting.EntryPath,
		cfg.Hosting.Branch,
		cfg.Hosting.PagesDomain,
		logger,
	)

	router := api.NewRouter(logger)
	api.RegisterRoutes(router, api.Deps{
		DB:           db,
		AsynqClient:  asynqClient,
		AuthService:  authService,
		RedisClient:  redisClient,
		Logger:       logger,
		Storage:      storageClient,
		Store:        store,
		Resolver:     resolver,
		Orchestrator: orchestrator,
		Config:       cfg,
	})

	address := fmt.Sprintf(":%d", cfg.API.Port)
	logger.Info("api listening", slog.String("address", address))
	if err := router.Run(address); err != nil {
		log.Fatalf("failed to start api server: %v", err)
	}
}
