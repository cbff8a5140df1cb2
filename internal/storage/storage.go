package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"fictures-server/internal/config"
	"fictures-server/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrInvalidKey - ключ пустой или выходит за пределы хранилища.
var ErrInvalidKey = errors.New("invalid blob key")

// BlobStore - хранилище файлов картинок.
type BlobStore interface {
	// Put сохраняет объект и возвращает его публичный URL.
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	ListPrefix(ctx context.Context, prefix string) ([]string, error)
	// DeletePrefix удаляет все объекты под префиксом и возвращает их число.
	DeletePrefix(ctx context.Context, prefix string) (int, error)
	PublicURL(key string) string
}

// ImageKey строит ключ вида stories/<storyId>/<kind>/<entityId>/<variant>.<ext>.
func ImageKey(storyID uuid.UUID, kind models.ImageKind, entityID uuid.UUID, variant, ext string) string {
	return path.Join("stories", storyID.String(), string(kind), entityID.String(), variant+"."+ext)
}

// StoryPrefix - всё, что принадлежит истории.
func StoryPrefix(storyID uuid.UUID) string {
	return "stories/" + storyID.String() + "/"
}

// KindPrefix - картинки одного вида внутри истории.
func KindPrefix(storyID uuid.UUID, kind models.ImageKind) string {
	return StoryPrefix(storyID) + string(kind) + "/"
}

// ContentTypeForKey определяет MIME по расширению.
func ContentTypeForKey(key string) string {
	s := strings.ToLower(strings.TrimSpace(key))
	switch {
	case strings.HasSuffix(s, ".png"):
		return "image/png"
	case strings.HasSuffix(s, ".jpg"), strings.HasSuffix(s, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(s, ".webp"):
		return "image/webp"
	case strings.HasSuffix(s, ".gif"):
		return "image/gif"
	default:
		return "application/octet-stream"
	}
}

func cleanKey(key string) (string, error) {
	key = strings.TrimPrefix(strings.TrimSpace(key), "/")
	if key == "" {
		return "", ErrInvalidKey
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return cleaned, nil
}

// New выбирает реализацию по BLOB_BACKEND.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (BlobStore, error) {
	switch cfg.BlobBackend {
	case "local":
		return NewLocalStore(cfg.ImageSavePath, cfg.ImagePublicBaseURL, logger)
	case "gcs":
		return NewGCSStore(ctx, cfg.GCSBucket, cfg.GCSCDNDomain, cfg.GCSCredentials, logger)
	default:
		return nil, fmt.Errorf("неподдерживаемый BLOB_BACKEND: %s", cfg.BlobBackend)
	}
}
