package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"go.uber.org/zap"
)

const backendOllama = "ollama"

// OllamaClient - текстовая генерация через локальный Ollama.
type OllamaClient struct {
	client  *api.Client
	model   string
	timeout time.Duration
	logger  *zap.Logger
}

func NewOllamaClient(baseURL, model string, timeout time.Duration, logger *zap.Logger) (*OllamaClient, error) {
	// api.NewClient требует URL без суффикса /v1
	baseURL = strings.TrimSuffix(strings.TrimSuffix(baseURL, "/"), "/v1")
	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("ошибка парсинга Ollama URL '%s': %w", baseURL, err)
	}
	return &OllamaClient{
		client:  api.NewClient(parsedURL, &http.Client{Timeout: timeout}),
		model:   model,
		timeout: timeout,
		logger:  logger.Named("OllamaClient"),
	}, nil
}

func (c *OllamaClient) GenerateJSON(ctx context.Context, req TextRequest) (TextResult, error) {
	format := json.RawMessage(`"json"`)
	if req.Schema != nil {
		schemaJSON, err := json.Marshal(req.Schema)
		if err != nil {
			return TextResult{}, fmt.Errorf("failed to marshal response schema: %w", err)
		}
		format = schemaJSON
	}

	messages := []api.Message{}
	if req.System != "" {
		messages = append(messages, api.Message{Role: "system", Content: req.System})
	}
	messages = append(messages, api.Message{Role: "user", Content: req.Prompt})

	options := map[string]interface{}{}
	if req.Temperature > 0 {
		options["temperature"] = req.Temperature
	}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}

	stream := false
	chatReq := &api.ChatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   &stream,
		Format:   format,
		Options:  options,
	}

	requestCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		requestCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	started := time.Now()
	var resp api.ChatResponse
	err := c.client.Chat(requestCtx, chatReq, func(r api.ChatResponse) error {
		resp = r
		return nil
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			c.logger.Error("Ollama request timed out", zap.Duration("timeout", c.timeout), zap.Error(err))
		} else {
			c.logger.Error("Ollama request failed", zap.Error(err))
		}
		observeRequest(backendOllama, c.model, "error", started)
		return TextResult{}, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	if resp.Message.Content == "" {
		observeRequest(backendOllama, c.model, "error_empty_response", started)
		return TextResult{}, fmt.Errorf("%w: empty response", ErrGenerationFailed)
	}
	observeRequest(backendOllama, c.model, "success", started)
	observeTokens(backendOllama, c.model, "prompt", resp.PromptEvalCount)
	observeTokens(backendOllama, c.model, "completion", resp.EvalCount)

	return TextResult{
		Text:         resp.Message.Content,
		Model:        c.model,
		TokensUsed:   resp.PromptEvalCount + resp.EvalCount,
		FinishReason: resp.DoneReason,
	}, nil
}
