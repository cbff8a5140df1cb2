package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"fictures-server/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
)

// ErrGenerationFailed - бэкенд генерации не ответил или ответ непригоден.
var ErrGenerationFailed = errors.New("generation request failed")

// TextRequest - один вызов текстовой генерации.
type TextRequest struct {
	System      string
	Prompt      string
	Schema      map[string]any // JSON schema ожидаемого ответа, может быть nil
	MaxTokens   int
	Temperature float32
}

// TextResult - сырой ответ генератора.
type TextResult struct {
	Text         string
	Model        string
	TokensUsed   int
	FinishReason string
}

// TextGenerator - внешняя текстовая генерация, ответ ожидается в JSON.
type TextGenerator interface {
	GenerateJSON(ctx context.Context, req TextRequest) (TextResult, error)
}

// ImageRequest - один вызов генерации картинки.
type ImageRequest struct {
	Prompt         string
	NegativePrompt string
	Width          int
	Height         int
	Seed           *int64
}

// ImageResult - байты картинки и то, что о ней сообщил бэкенд.
type ImageResult struct {
	Data   []byte
	Model  string
	Width  int
	Height int
	Seed   int64
}

// ImageGenerator - внешняя генерация картинок.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, req ImageRequest) (ImageResult, error)
}

// CleanJSON убирает markdown-ограждение вокруг JSON в ответе модели.
func CleanJSON(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```json") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimSuffix(content, "```")
	} else if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(content, "```")
	}
	return strings.TrimSpace(content)
}

// DecodeJSON разбирает ответ генератора в v. Ошибка разбора - это ErrGenerationFailed.
func DecodeJSON(res TextResult, v any) error {
	cleaned := CleanJSON(res.Text)
	if cleaned == "" {
		return fmt.Errorf("%w: empty response", ErrGenerationFailed)
	}
	if err := json.Unmarshal([]byte(cleaned), v); err != nil {
		return fmt.Errorf("%w: malformed JSON from %s: %v", ErrGenerationFailed, res.Model, err)
	}
	return nil
}

func observeRequest(backend, model, status string, started time.Time) {
	metrics.AIRequestsTotal.With(prometheus.Labels{"backend": backend, "model": model, "status": status}).Inc()
	if status == "success" {
		metrics.AIRequestDuration.With(prometheus.Labels{"backend": backend, "model": model}).Observe(time.Since(started).Seconds())
	}
}

func observeTokens(backend, model, kind string, n int) {
	if n <= 0 {
		return
	}
	metrics.AITokens.With(prometheus.Labels{"backend": backend, "model": model, "type": kind}).Observe(float64(n))
}
