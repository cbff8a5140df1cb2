package clients

import (
	"fmt"
	"strings"

	"fictures-server/internal/config"

	"go.uber.org/zap"
)

// NewTextGenerator выбирает реализацию по TEXT_BACKEND.
func NewTextGenerator(cfg *config.Config, creds config.GenerationCredentials, logger *zap.Logger) (TextGenerator, error) {
	switch strings.ToLower(cfg.TextBackend) {
	case backendAIServer:
		logger.Info("Using text backend", zap.String("backend", backendAIServer), zap.String("url", creds.BaseURL))
		return NewAIServerClient(creds, cfg.AIRequestTimeout, logger)
	case backendOpenAI:
		logger.Info("Using text backend", zap.String("backend", backendOpenAI), zap.String("model", cfg.TextModel))
		return NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.TextModel, cfg.ImageModel, cfg.AIRequestTimeout, logger), nil
	case backendOllama:
		logger.Info("Using text backend", zap.String("backend", backendOllama), zap.String("model", cfg.TextModel))
		return NewOllamaClient(cfg.OllamaURL, cfg.TextModel, cfg.AIRequestTimeout, logger)
	default:
		return nil, fmt.Errorf("неподдерживаемый TEXT_BACKEND: %s", cfg.TextBackend)
	}
}

// NewImageGenerator выбирает реализацию по IMAGE_BACKEND.
func NewImageGenerator(cfg *config.Config, creds config.GenerationCredentials, logger *zap.Logger) (ImageGenerator, error) {
	switch strings.ToLower(cfg.ImageBackend) {
	case backendAIServer:
		logger.Info("Using image backend", zap.String("backend", backendAIServer), zap.String("url", creds.BaseURL))
		return NewAIServerClient(creds, cfg.AIRequestTimeout, logger)
	case backendOpenAI:
		logger.Info("Using image backend", zap.String("backend", backendOpenAI), zap.String("model", cfg.ImageModel))
		return NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.TextModel, cfg.ImageModel, cfg.AIRequestTimeout, logger), nil
	default:
		return nil, fmt.Errorf("неподдерживаемый IMAGE_BACKEND: %s", cfg.ImageBackend)
	}
}
