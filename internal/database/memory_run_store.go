package database

import (
	"context"
	"time"

	"fictures-server/internal/interfaces"
	"fictures-server/internal/models"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

var _ interfaces.RunStateStore = (*memoryRunStore)(nil)

// memoryRunStore держит статусы запусков в памяти процесса. Используется CLI, где Redis не нужен.
type memoryRunStore struct {
	cache *cache.Cache
}

func NewMemoryRunStore(ttl time.Duration) interfaces.RunStateStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &memoryRunStore{cache: cache.New(ttl, ttl/2)}
}

func (s *memoryRunStore) Save(_ context.Context, record models.RunRecord) error {
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = time.Now().UTC()
	}
	s.cache.SetDefault(record.RunID.String(), record)
	return nil
}

func (s *memoryRunStore) Get(_ context.Context, runID uuid.UUID) (*models.RunRecord, error) {
	v, ok := s.cache.Get(runID.String())
	if !ok {
		return nil, models.ErrRunNotFound
	}
	record := v.(models.RunRecord)
	return &record, nil
}
