package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"fictures-server/internal/models"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// NotificationPublisher публикует события жизненного цикла запусков и историй.
type NotificationPublisher interface {
	PublishNotification(ctx context.Context, n models.RunNotification) error
}

const (
	publishAttempts = 3
	publishTimeout  = 10 * time.Second
	appID           = "fictures-server"
)

// amqpChannel - часть *amqp.Channel, которая нужна паблишеру.
type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type rabbitMQPublisher struct {
	channel   amqpChannel
	queueName string
	logger    *zap.Logger
}

// NewRabbitMQNotificationPublisher открывает канал и объявляет durable lazy очередь.
func NewRabbitMQNotificationPublisher(conn *amqp.Connection, queueName string, logger *zap.Logger) (*rabbitMQPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("notification publisher: не удалось открыть канал: %w", err)
	}
	args := amqp.Table{"x-queue-mode": "lazy"}
	if _, err := ch.QueueDeclare(queueName, true, false, false, false, args); err != nil {
		ch.Close()
		return nil, fmt.Errorf("notification publisher: не удалось объявить очередь '%s': %w", queueName, err)
	}
	log := logger.Named("NotificationPublisher")
	log.Info("Notification queue declared", zap.String("queue", queueName))
	return &rabbitMQPublisher{channel: ch, queueName: queueName, logger: log}, nil
}

// PublishNotification сериализует событие и кладёт его в очередь.
func (p *rabbitMQPublisher) PublishNotification(ctx context.Context, n models.RunNotification) error {
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now().UTC()
	}
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("ошибка сериализации уведомления %s: %w", n.Event, err)
	}
	if err := p.publishMessage(ctx, body); err != nil {
		p.logger.Error("Failed to publish notification",
			zap.String("event", n.Event), zap.String("run_id", n.RunID), zap.String("story_id", n.StoryID), zap.Error(err))
		return err
	}
	return nil
}

// Close закрывает канал.
func (p *rabbitMQPublisher) Close() error {
	if p.channel == nil {
		return nil
	}
	return p.channel.Close()
}

func (p *rabbitMQPublisher) publishMessage(ctx context.Context, body []byte) error {
	if p.channel == nil {
		return errors.New("канал RabbitMQ не инициализирован")
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	var err error
	for attempt := 1; attempt <= publishAttempts; attempt++ {
		err = p.channel.PublishWithContext(ctx,
			"",          // default exchange
			p.queueName, // routing key = имя очереди
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				Body:         body,
				Timestamp:    time.Now(),
				AppId:        appID,
			},
		)
		if err == nil {
			p.logger.Debug("Message published", zap.String("queue", p.queueName), zap.Int("attempt", attempt))
			return nil
		}
		p.logger.Warn("Publish attempt failed", zap.String("queue", p.queueName), zap.Int("attempt", attempt), zap.Error(err))
		if attempt < publishAttempts {
			select {
			case <-ctx.Done():
				return fmt.Errorf("ошибка публикации в очередь %s: %w", p.queueName, ctx.Err())
			case <-time.After(time.Duration(attempt) * 100 * time.Millisecond):
			}
		}
	}
	return fmt.Errorf("ошибка публикации в очередь %s после retries: %w", p.queueName, err)
}

// NoopPublisher используется, когда RabbitMQ не настроен (CLI, тесты).
type NoopPublisher struct{}

func (NoopPublisher) PublishNotification(context.Context, models.RunNotification) error { return nil }
