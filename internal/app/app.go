// Package app собирает зависимости пайплайна и сервисов. Используется и HTTP-сервером, и CLI.
package app

import (
	"context"
	"fmt"

	"fictures-server/internal/clients"
	"fictures-server/internal/config"
	"fictures-server/internal/database"
	"fictures-server/internal/imaging"
	"fictures-server/internal/interfaces"
	"fictures-server/internal/messaging"
	"fictures-server/internal/pipeline"
	"fictures-server/internal/prompts"
	"fictures-server/internal/service"
	"fictures-server/internal/storage"
	"fictures-server/pkg/taskmanager"

	"go.uber.org/zap"
)

// Components - всё, что нужно обработчикам и командам CLI.
type Components struct {
	Stories interfaces.StoryRepository
	APIKeys interfaces.APIKeyRepository
	Blobs   storage.BlobStore
	Manager *taskmanager.Manager

	Runs    service.RunService
	Publish service.PublishService
	Admin   service.AdminService
	Regen   service.RegenerationService
	Status  service.StatusService
}

// Build создаёт репозитории, клиенты генерации, пайплайн и сервисы поверх готовых соединений.
func Build(
	ctx context.Context,
	cfg *config.Config,
	db interfaces.DBTX,
	runStore interfaces.RunStateStore,
	publisher messaging.NotificationPublisher,
	logger *zap.Logger,
) (*Components, error) {
	creds, err := cfg.Credentials()
	if err != nil {
		return nil, fmt.Errorf("учётные данные генерации: %w", err)
	}
	logger.Info("Generation credentials resolved", zap.String("profile", creds.Profile))

	text, err := clients.NewTextGenerator(cfg, creds, logger)
	if err != nil {
		return nil, err
	}
	images, err := clients.NewImageGenerator(cfg, creds, logger)
	if err != nil {
		return nil, err
	}

	blobs, err := storage.New(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("хранилище картинок: %w", err)
	}

	lib, err := prompts.Load()
	if err != nil {
		return nil, fmt.Errorf("шаблоны промптов: %w", err)
	}

	stories := database.NewPgStoryRepository(db, logger.Named("PgStoryRepo"))
	apiKeys := database.NewPgAPIKeyRepository(db, logger.Named("PgAPIKeyRepo"))

	fanout := pipeline.NewImageFanout(images, blobs, stories, imaging.NewValidator(cfg.ImageSpecs()), lib.Negative(),
		pipeline.FanoutConfig{
			Concurrency:  cfg.ImageConcurrency,
			RateInterval: cfg.ImageRateInterval,
			RateBurst:    cfg.ImageRateBurst,
		}, logger)

	runner := pipeline.New(text, lib, stories, fanout, pipeline.Config{
		SceneContentConcurrency: cfg.SceneContentConcurrency,
		TextMaxTokens:           cfg.TextMaxTokens,
		Temperature:             cfg.Temperature,
	}, logger)

	manager := taskmanager.New(taskmanager.Config{
		MaxTasks: cfg.PipelineMaxActiveRuns,
		Timeout:  cfg.PipelineMaxRunDuration,
	}, logger.Named("RunManager"))

	return &Components{
		Stories: stories,
		APIKeys: apiKeys,
		Blobs:   blobs,
		Manager: manager,
		Runs:    service.NewRunService(pipeline.NewIntake(cfg.Intake), runner, manager, runStore, publisher, logger),
		Publish: service.NewPublishService(stories, publisher, logger),
		Admin:   service.NewAdminService(stories, blobs, publisher, logger),
		Regen:   service.NewRegenerationService(stories, pipeline.NewTargets(lib, logger), fanout, logger),
		Status:  service.NewStatusService(stories, logger),
	}, nil
}
