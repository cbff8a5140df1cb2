// Команда fictures-admin - операторский CLI: миграции, запуск генерации, публикация и удаление историй.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"fictures-server/internal/app"
	"fictures-server/internal/config"
	"fictures-server/internal/database"
	"fictures-server/internal/messaging"
	"fictures-server/pkg/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/rabbitmq/amqp091-go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	version   = "0.1.0-dev"
	logLevel  string
	notifyOut bool
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: could not load .env file: %v\n", err)
	}

	rootCmd := &cobra.Command{
		Use:           "fictures-admin",
		Short:         "Operator tool for the Fictures story generation service",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&notifyOut, "notify", false, "Publish notifications to RabbitMQ")

	rootCmd.AddCommand(
		newMigrateCmd(),
		newGenerateCmd(),
		newPublishCmd(),
		newUnpublishCmd(),
		newPublishComicsCmd(),
		newStatusCmd(),
		newRegenerateImagesCmd(),
		newDeleteStoryCmd(),
		newDeleteUserStoriesCmd(),
		newCreateAPIKeyCmd(),
	)

	return rootCmd.ExecuteContext(ctx)
}

// env - конфигурация, логгер и пул соединений одной команды.
type env struct {
	cfg  *config.Config
	log  *zap.Logger
	pool *pgxpool.Pool
}

// withDB открывает соединение с БД. Учётные данные генерации не нужны.
func withDB(ctx context.Context, fn func(e *env) error) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	// stdout занят выводом команд
	log, err := logger.New(logger.Config{Level: logLevel, Encoding: "console", OutputPath: "stderr"})
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer func() { _ = log.Sync() }()
	zap.ReplaceGlobals(log)

	pool, err := database.Connect(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	return fn(&env{cfg: cfg, log: log, pool: pool})
}

// withApp дополнительно собирает сервисы. Статусы запусков живут в памяти процесса.
func withApp(ctx context.Context, fn func(e *env, c *app.Components) error) error {
	return withDB(ctx, func(e *env) error {
		var publisher messaging.NotificationPublisher = messaging.NoopPublisher{}
		if notifyOut {
			conn, err := amqp091.Dial(e.cfg.RabbitMQURL)
			if err != nil {
				return fmt.Errorf("connecting to RabbitMQ: %w", err)
			}
			defer conn.Close()
			p, err := messaging.NewRabbitMQNotificationPublisher(conn, e.cfg.NotificationQueue, e.log)
			if err != nil {
				return fmt.Errorf("creating notification publisher: %w", err)
			}
			defer p.Close()
			publisher = p
		}

		components, err := app.Build(ctx, e.cfg, e.pool, database.NewMemoryRunStore(e.cfg.RunStateTTL), publisher, e.log)
		if err != nil {
			return err
		}
		return fn(e, components)
	})
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
