package clients

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pkoukk/tiktoken-go"
	openaigo "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const backendOpenAI = "openai"

// OpenAIClient реализует TextGenerator и ImageGenerator поверх go-openai.
type OpenAIClient struct {
	client     *openaigo.Client
	textModel  string
	imageModel string
	logger     *zap.Logger
}

// NewOpenAIClient. Пустой baseURL означает официальный API.
func NewOpenAIClient(apiKey, baseURL, textModel, imageModel string, timeout time.Duration, logger *zap.Logger) *OpenAIClient {
	cfg := openaigo.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}
	return &OpenAIClient{
		client:     openaigo.NewClientWithConfig(cfg),
		textModel:  textModel,
		imageModel: imageModel,
		logger:     logger.Named("OpenAIClient"),
	}
}

// GenerateJSON - chat completion в режиме json_object. Схема, если есть, уходит в системный промт.
func (c *OpenAIClient) GenerateJSON(ctx context.Context, req TextRequest) (TextResult, error) {
	system := req.System
	if req.Schema != nil {
		schemaJSON, err := json.Marshal(req.Schema)
		if err != nil {
			return TextResult{}, fmt.Errorf("failed to marshal response schema: %w", err)
		}
		system = strings.TrimSpace(system + "\n\nRespond with a single JSON object matching this JSON schema:\n" + string(schemaJSON))
	}
	messages := []openaigo.ChatCompletionMessage{}
	if system != "" {
		messages = append(messages, openaigo.ChatCompletionMessage{Role: openaigo.ChatMessageRoleSystem, Content: system})
	}
	messages = append(messages, openaigo.ChatCompletionMessage{Role: openaigo.ChatMessageRoleUser, Content: req.Prompt})

	started := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, openaigo.ChatCompletionRequest{
		Model:       c.textModel,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		ResponseFormat: &openaigo.ChatCompletionResponseFormat{
			Type: openaigo.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		c.logger.Error("OpenAI chat completion failed", zap.String("model", c.textModel), zap.Duration("duration", time.Since(started)), zap.Error(err))
		observeRequest(backendOpenAI, c.textModel, "error", started)
		return TextResult{}, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		observeRequest(backendOpenAI, c.textModel, "error_empty_response", started)
		return TextResult{}, fmt.Errorf("%w: empty response", ErrGenerationFailed)
	}
	observeRequest(backendOpenAI, c.textModel, "success", started)

	promptTokens := resp.Usage.PromptTokens
	if promptTokens == 0 {
		// OpenAI-совместимые серверы не всегда возвращают usage
		promptTokens = c.estimateTokens(system + req.Prompt)
	}
	observeTokens(backendOpenAI, c.textModel, "prompt", promptTokens)
	observeTokens(backendOpenAI, c.textModel, "completion", resp.Usage.CompletionTokens)

	return TextResult{
		Text:         resp.Choices[0].Message.Content,
		Model:        resp.Model,
		TokensUsed:   promptTokens + resp.Usage.CompletionTokens,
		FinishReason: string(resp.Choices[0].FinishReason),
	}, nil
}

func (c *OpenAIClient) estimateTokens(text string) int {
	tke, err := tiktoken.EncodingForModel(c.textModel)
	if err != nil {
		return 0
	}
	return len(tke.Encode(text, nil, nil))
}

// GenerateImage запрашивает одну картинку в b64_json. Размер берётся из ближайшего поддерживаемого.
func (c *OpenAIClient) GenerateImage(ctx context.Context, req ImageRequest) (ImageResult, error) {
	size, width, height := openAIImageSize(req.Width, req.Height)
	prompt := req.Prompt
	if req.NegativePrompt != "" {
		prompt += "\nAvoid: " + req.NegativePrompt
	}
	started := time.Now()
	resp, err := c.client.CreateImage(ctx, openaigo.ImageRequest{
		Prompt:         prompt,
		Model:          c.imageModel,
		N:              1,
		Size:           size,
		ResponseFormat: openaigo.CreateImageResponseFormatB64JSON,
	})
	if err != nil {
		c.logger.Error("OpenAI image generation failed", zap.String("model", c.imageModel), zap.Error(err))
		observeRequest(backendOpenAI, c.imageModel, "error", started)
		return ImageResult{}, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		observeRequest(backendOpenAI, c.imageModel, "error_empty_response", started)
		return ImageResult{}, fmt.Errorf("%w: empty image response", ErrGenerationFailed)
	}
	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		observeRequest(backendOpenAI, c.imageModel, "error_decode", started)
		return ImageResult{}, fmt.Errorf("%w: invalid base64 image: %v", ErrGenerationFailed, err)
	}
	observeRequest(backendOpenAI, c.imageModel, "success", started)
	return ImageResult{Data: data, Model: c.imageModel, Width: width, Height: height}, nil
}

// openAIImageSize сводит произвольные размеры к трём размерам, которые понимает API.
func openAIImageSize(width, height int) (string, int, int) {
	switch {
	case width > height:
		return openaigo.CreateImageSize1792x1024, 1792, 1024
	case height > width:
		return openaigo.CreateImageSize1024x1792, 1024, 1792
	default:
		return openaigo.CreateImageSize1024x1024, 1024, 1024
	}
}
