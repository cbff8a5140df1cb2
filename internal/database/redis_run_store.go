package database

import (
	"context"
	"fmt"
	"time"

	"fictures-server/internal/interfaces"
	"fictures-server/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Compile-time check to ensure redisRunStore implements RunStateStore
var _ interfaces.RunStateStore = (*redisRunStore)(nil)

const runKeyPrefix = "fictures:run:"

type redisRunStore struct {
	client redis.UniversalClient
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisRunStore хранит статус запуска в хэше fictures:run:<id> с TTL.
func NewRedisRunStore(client redis.UniversalClient, ttl time.Duration, logger *zap.Logger) interfaces.RunStateStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &redisRunStore{
		client: client,
		ttl:    ttl,
		logger: logger.Named("RedisRunStore"),
	}
}

func runKey(runID uuid.UUID) string {
	return runKeyPrefix + runID.String()
}

func (s *redisRunStore) Save(ctx context.Context, record models.RunRecord) error {
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = time.Now().UTC()
	}
	key := runKey(record.RunID)

	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"user_id":    record.UserID,
		"story_id":   record.StoryID,
		"status":     string(record.Status),
		"phase":      record.Phase,
		"message":    record.Message,
		"updated_at": record.UpdatedAt.Format(time.RFC3339Nano),
	})
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Error("Failed to save run state", zap.String("run_id", record.RunID.String()), zap.Error(err))
		return fmt.Errorf("ошибка сохранения статуса запуска %s: %w", record.RunID, err)
	}
	return nil
}

func (s *redisRunStore) Get(ctx context.Context, runID uuid.UUID) (*models.RunRecord, error) {
	fields, err := s.client.HGetAll(ctx, runKey(runID)).Result()
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения статуса запуска %s: %w", runID, err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: %s", models.ErrRunNotFound, runID)
	}
	record := &models.RunRecord{
		RunID:   runID,
		UserID:  fields["user_id"],
		StoryID: fields["story_id"],
		Status:  models.RunStatus(fields["status"]),
		Phase:   fields["phase"],
		Message: fields["message"],
	}
	if ts, perr := time.Parse(time.RFC3339Nano, fields["updated_at"]); perr == nil {
		record.UpdatedAt = ts
	}
	return record, nil
}
