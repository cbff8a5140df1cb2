package clients

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"fictures-server/internal/config"

	"go.uber.org/zap"
)

const (
	backendAIServer = "aiserver"

	apiKeyHeader = "x-api-key"

	defaultTextMaxTokens   = 2048
	defaultTextTemperature = 0.7
	defaultTextTopP        = 0.9

	defaultImageSteps    = 4
	defaultGuidanceScale = 1.0
)

// AIServerClient ходит в HTTP API сервиса генерации (текст и картинки).
type AIServerClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewAIServerClient принимает учётные данные явно, сам ничего не читает с диска.
func NewAIServerClient(creds config.GenerationCredentials, timeout time.Duration, logger *zap.Logger) (*AIServerClient, error) {
	if creds.BaseURL == "" {
		return nil, errors.New("generation service base URL is not configured")
	}
	if timeout <= 0 {
		timeout = 180 * time.Second
	}
	return &AIServerClient{
		baseURL:    strings.TrimSuffix(creds.BaseURL, "/"),
		apiKey:     creds.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.Named("AIServerClient").With(zap.String("profile", creds.Profile)),
	}, nil
}

type guidedDecoding struct {
	Type    string         `json:"type"`
	Schema  map[string]any `json:"schema,omitempty"`
	Choices []string       `json:"choices,omitempty"`
}

type structuredRequest struct {
	Prompt         string         `json:"prompt"`
	GuidedDecoding guidedDecoding `json:"guided_decoding"`
	MaxTokens      int            `json:"max_tokens"`
	Temperature    float32        `json:"temperature"`
	TopP           float32        `json:"top_p"`
}

type structuredResponse struct {
	Output       string `json:"output"`
	Model        string `json:"model"`
	TokensUsed   int    `json:"tokens_used"`
	IsValid      bool   `json:"is_valid"`
	FinishReason string `json:"finish_reason"`
}

type textGenerateRequest struct {
	Prompt        string   `json:"prompt"`
	MaxTokens     int      `json:"max_tokens"`
	Temperature   float32  `json:"temperature"`
	TopP          float32  `json:"top_p"`
	StopSequences []string `json:"stop_sequences,omitempty"`
}

type textGenerateResponse struct {
	Text         string `json:"text"`
	Model        string `json:"model"`
	TokensUsed   int    `json:"tokens_used"`
	FinishReason string `json:"finish_reason"`
}

// GenerateJSON: со схемой идём в /text/structured, без схемы - в /text/generate.
func (c *AIServerClient) GenerateJSON(ctx context.Context, req TextRequest) (TextResult, error) {
	started := time.Now()
	prompt := req.Prompt
	if req.System != "" {
		prompt = req.System + "\n\n" + req.Prompt
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultTextMaxTokens
	}
	temperature := req.Temperature
	if temperature <= 0 {
		temperature = defaultTextTemperature
	}

	var result TextResult
	if req.Schema != nil {
		var resp structuredResponse
		err := c.postJSON(ctx, "/api/v1/text/structured", structuredRequest{
			Prompt:         prompt,
			GuidedDecoding: guidedDecoding{Type: "json", Schema: req.Schema},
			MaxTokens:      maxTokens,
			Temperature:    temperature,
			TopP:           defaultTextTopP,
		}, &resp)
		if err != nil {
			observeRequest(backendAIServer, "unknown", "error", started)
			return TextResult{}, err
		}
		if !resp.IsValid {
			c.logger.Warn("Structured output did not pass schema validation", zap.String("model", resp.Model), zap.String("finish_reason", resp.FinishReason))
		}
		result = TextResult{Text: resp.Output, Model: resp.Model, TokensUsed: resp.TokensUsed, FinishReason: resp.FinishReason}
	} else {
		var resp textGenerateResponse
		err := c.postJSON(ctx, "/api/v1/text/generate", textGenerateRequest{
			Prompt:      prompt,
			MaxTokens:   maxTokens,
			Temperature: temperature,
			TopP:        defaultTextTopP,
		}, &resp)
		if err != nil {
			observeRequest(backendAIServer, "unknown", "error", started)
			return TextResult{}, err
		}
		result = TextResult{Text: resp.Text, Model: resp.Model, TokensUsed: resp.TokensUsed, FinishReason: resp.FinishReason}
	}

	if strings.TrimSpace(result.Text) == "" {
		observeRequest(backendAIServer, result.Model, "error_empty_response", started)
		return TextResult{}, fmt.Errorf("%w: empty text from %s", ErrGenerationFailed, result.Model)
	}
	observeRequest(backendAIServer, result.Model, "success", started)
	observeTokens(backendAIServer, result.Model, "total", result.TokensUsed)
	c.logger.Debug("Text generated",
		zap.String("model", result.Model),
		zap.Int("tokens_used", result.TokensUsed),
		zap.Duration("duration", time.Since(started)),
	)
	return result, nil
}

type imageGenerateRequest struct {
	Prompt            string  `json:"prompt"`
	NegativePrompt    string  `json:"negative_prompt,omitempty"`
	Width             int     `json:"width"`
	Height            int     `json:"height"`
	NumInferenceSteps int     `json:"num_inference_steps"`
	GuidanceScale     float64 `json:"guidance_scale"`
	Seed              *int64  `json:"seed,omitempty"`
}

type imageGenerateResponse struct {
	ImageURL string `json:"image_url"`
	Model    string `json:"model"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Seed     int64  `json:"seed"`
}

// GenerateImage вызывает /api/v1/images/generate и декодирует data URI.
func (c *AIServerClient) GenerateImage(ctx context.Context, req ImageRequest) (ImageResult, error) {
	started := time.Now()
	var resp imageGenerateResponse
	err := c.postJSON(ctx, "/api/v1/images/generate", imageGenerateRequest{
		Prompt:            req.Prompt,
		NegativePrompt:    req.NegativePrompt,
		Width:             req.Width,
		Height:            req.Height,
		NumInferenceSteps: defaultImageSteps,
		GuidanceScale:     defaultGuidanceScale,
		Seed:              req.Seed,
	}, &resp)
	if err != nil {
		observeRequest(backendAIServer, "image", "error", started)
		return ImageResult{}, err
	}
	data, err := decodeDataURI(resp.ImageURL)
	if err != nil {
		observeRequest(backendAIServer, resp.Model, "error_decode", started)
		return ImageResult{}, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	observeRequest(backendAIServer, resp.Model, "success", started)
	return ImageResult{Data: data, Model: resp.Model, Width: resp.Width, Height: resp.Height, Seed: resp.Seed}, nil
}

// Health - GET /health, для readiness.
func (c *AIServerClient) Health(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("generation service health check failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("generation service health check returned %d", resp.StatusCode)
	}
	return nil
}

func (c *AIServerClient) postJSON(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request payload: %w", err)
	}
	endpointURL := c.baseURL + path
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpointURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set(apiKeyHeader, c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Error("Generation service request failed", zap.String("url", endpointURL), zap.Error(err))
		return fmt.Errorf("%w: http request failed: %v", ErrGenerationFailed, err)
	}
	defer resp.Body.Close()

	respBody, readErr := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		c.logger.Error("Generation service returned non-OK status",
			zap.String("url", endpointURL),
			zap.Int("status_code", resp.StatusCode),
			zap.ByteString("response_body", truncate(respBody, 512)),
		)
		return fmt.Errorf("%w: API returned status %d: %s", ErrGenerationFailed, resp.StatusCode, string(truncate(respBody, 256)))
	}
	if readErr != nil {
		return fmt.Errorf("%w: failed to read response body: %v", ErrGenerationFailed, readErr)
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%w: failed to decode response: %v", ErrGenerationFailed, err)
	}
	return nil
}

// decodeDataURI принимает data:image/png;base64,... или голый base64.
func decodeDataURI(uri string) ([]byte, error) {
	if uri == "" {
		return nil, errors.New("empty image payload")
	}
	payload := uri
	if strings.HasPrefix(uri, "data:") {
		_, after, ok := strings.Cut(uri, ",")
		if !ok {
			return nil, errors.New("malformed data URI")
		}
		payload = after
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 image payload: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("empty image payload")
	}
	return data, nil
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
