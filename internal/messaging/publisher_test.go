package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"fictures-server/internal/models"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockChannel struct {
	mock.Mock
}

func (m *mockChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	args := m.Called(ctx, exchange, key, mandatory, immediate, msg)
	return args.Error(0)
}

func (m *mockChannel) Close() error {
	return m.Called().Error(0)
}

func TestPublishNotification_RetriesThenSucceeds(t *testing.T) {
	ch := new(mockChannel)
	ch.On("PublishWithContext", mock.Anything, "", "events", false, false, mock.Anything).
		Return(errors.New("channel busy")).Once()
	ch.On("PublishWithContext", mock.Anything, "", "events", false, false, mock.MatchedBy(func(msg amqp.Publishing) bool {
		var n models.RunNotification
		if err := json.Unmarshal(msg.Body, &n); err != nil {
			return false
		}
		return msg.DeliveryMode == amqp.Persistent && msg.ContentType == "application/json" &&
			n.Event == models.NotificationRunCompleted && n.RunID == "run-1" && !n.Timestamp.IsZero()
	})).Return(nil).Once()

	p := &rabbitMQPublisher{channel: ch, queueName: "events", logger: zap.NewNop()}
	err := p.PublishNotification(context.Background(), models.RunNotification{
		Event: models.NotificationRunCompleted,
		RunID: "run-1",
	})
	require.NoError(t, err)
	ch.AssertExpectations(t)
}

func TestPublishNotification_GivesUpAfterThreeAttempts(t *testing.T) {
	ch := new(mockChannel)
	ch.On("PublishWithContext", mock.Anything, "", "events", false, false, mock.Anything).
		Return(errors.New("connection closed")).Times(publishAttempts)

	p := &rabbitMQPublisher{channel: ch, queueName: "events", logger: zap.NewNop()}
	err := p.PublishNotification(context.Background(), models.RunNotification{Event: models.NotificationRunFailed})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection closed")
	ch.AssertNumberOfCalls(t, "PublishWithContext", publishAttempts)
}

func TestPublishNotification_NilChannel(t *testing.T) {
	p := &rabbitMQPublisher{queueName: "events", logger: zap.NewNop()}
	assert.Error(t, p.PublishNotification(context.Background(), models.RunNotification{Event: "x"}))
	assert.NoError(t, p.Close())
}
