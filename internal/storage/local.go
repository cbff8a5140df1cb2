package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// LocalStore хранит файлы на диске, URL строятся от publicBaseURL.
// Используется в разработке и когда картинки раздаёт сам сервер.
type LocalStore struct {
	root          string
	publicBaseURL string
	logger        *zap.Logger
}

func NewLocalStore(root, publicBaseURL string, logger *zap.Logger) (*LocalStore, error) {
	if root == "" {
		return nil, errors.New("IMAGE_SAVE_PATH is empty")
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("не удалось получить абсолютный путь для %s: %w", root, err)
	}
	if err := os.MkdirAll(absRoot, 0o755); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию %s: %w", absRoot, err)
	}
	return &LocalStore{
		root:          absRoot,
		publicBaseURL: strings.TrimSuffix(publicBaseURL, "/"),
		logger:        logger.Named("LocalBlobStore"),
	}, nil
}

// Root - корневая директория, её же раздаёт HTTP-сервер.
func (s *LocalStore) Root() string { return s.root }

func (s *LocalStore) Put(ctx context.Context, key string, data []byte, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	fullPath := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory for %s: %w", key, err)
	}
	tmp := fullPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", key, err)
	}
	if err := os.Rename(tmp, fullPath); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("failed to move %s into place: %w", key, err)
	}
	s.logger.Debug("Blob stored", zap.String("key", key), zap.Int("bytes", len(data)))
	return s.PublicURL(key), nil
}

func (s *LocalStore) ListPrefix(ctx context.Context, prefix string) ([]string, error) {
	prefix = strings.TrimPrefix(prefix, "/")
	// Обходим от ближайшей директории префикса, а не от корня.
	dir := prefix
	if !strings.HasSuffix(dir, "/") {
		dir = filepath.ToSlash(filepath.Dir(dir))
	}
	startDir := filepath.Join(s.root, filepath.FromSlash(dir))

	var keys []string
	err := filepath.WalkDir(startDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || strings.HasSuffix(p, ".tmp") {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list prefix %s: %w", prefix, err)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *LocalStore) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	keys, err := s.ListPrefix(ctx, prefix)
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, key := range keys {
		if err := os.Remove(filepath.Join(s.root, filepath.FromSlash(key))); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("Failed to delete blob", zap.String("key", key), zap.Error(err))
			continue
		}
		deleted++
	}
	s.removeEmptyDirs(prefix)
	return deleted, nil
}

// removeEmptyDirs подчищает пустые директории, оставшиеся после удаления.
func (s *LocalStore) removeEmptyDirs(prefix string) {
	dir := strings.TrimSuffix(strings.TrimPrefix(prefix, "/"), "/")
	if dir == "" {
		return
	}
	start := filepath.Join(s.root, filepath.FromSlash(dir))
	var dirs []string
	_ = filepath.WalkDir(start, func(p string, d fs.DirEntry, err error) error {
		if err == nil && d.IsDir() {
			dirs = append(dirs, p)
		}
		return nil
	})
	for i := len(dirs) - 1; i >= 0; i-- {
		_ = os.Remove(dirs[i]) // не пустые просто не удалятся
	}
}

func (s *LocalStore) PublicURL(key string) string {
	return s.publicBaseURL + "/" + strings.TrimPrefix(key, "/")
}
