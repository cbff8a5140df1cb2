package database

import (
	"context"
	"embed"
	"fmt"
	"time"

	"fictures-server/internal/config"
	"fictures-server/internal/interfaces"
	"fictures-server/pkg/migration"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MigrationConfig - встроенные миграции схемы для pkg/migration.
func MigrationConfig() migration.Config {
	return migration.Config{
		MigrationsFS:   migrationsFS,
		MigrationsPath: "migrations",
	}
}

// Connect создаёт пул соединений и проверяет его пингом, с несколькими попытками.
func Connect(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("ошибка парсинга DSN: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.DBMaxConns)
	poolCfg.MaxConnIdleTime = cfg.DBIdleTimeout

	const maxRetries = 5
	retryDelay := 2 * time.Second
	for attempt := 1; ; attempt++ {
		pool, err := tryConnect(ctx, poolCfg)
		if err == nil {
			logger.Info("Connected to PostgreSQL", zap.String("dsn", cfg.MaskedDSN()))
			return pool, nil
		}
		if attempt == maxRetries {
			return nil, err
		}
		logger.Warn("Failed to connect to PostgreSQL",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", maxRetries),
			zap.Duration("retry_delay", retryDelay),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryDelay):
		}
	}
}

func tryConnect(ctx context.Context, poolCfg *pgxpool.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("не удалось создать пул соединений: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("не удалось подключиться к БД (ping failed): %w", err)
	}
	return pool, nil
}

// WithTx выполняет fn в транзакции: коммит при nil, иначе откат.
func WithTx(ctx context.Context, db interfaces.DBTX, fn func(tx pgx.Tx) error) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && rbErr != pgx.ErrTxClosed {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
