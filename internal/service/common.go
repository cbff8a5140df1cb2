package service

import (
	"context"
	"fmt"
	"time"

	"fictures-server/internal/interfaces"
	"fictures-server/internal/messaging"
	"fictures-server/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const notifyTimeout = 5 * time.Second

// Actor - от чьего имени выполняется операция.
type Actor struct {
	UserID string
	Admin  bool
}

// ActorFromAuth строит Actor из результата проверки ключа.
func ActorFromAuth(a *models.AuthResult) Actor {
	if a == nil {
		return Actor{}
	}
	return Actor{UserID: a.UserID, Admin: a.HasScope(models.ScopeAdminAll)}
}

// SystemActor - операции из CLI оператора.
func SystemActor() Actor { return Actor{UserID: "system", Admin: true} }

func (a Actor) owns(ownerID string) bool {
	return a.Admin || (a.UserID != "" && a.UserID == ownerID)
}

// loadOwnedStory возвращает историю, если она видна актору. Чужая история выглядит как несуществующая.
func loadOwnedStory(ctx context.Context, repo interfaces.StoryReader, actor Actor, storyID uuid.UUID) (*models.Story, error) {
	story, err := repo.GetStory(ctx, storyID)
	if err != nil {
		return nil, err
	}
	if !actor.owns(story.UserID) {
		return nil, fmt.Errorf("%w: story %s", models.ErrNotFound, storyID)
	}
	return story, nil
}

// notify публикует уведомление. Ошибка только логируется: уведомления не влияют на результат операции.
func notify(publisher messaging.NotificationPublisher, logger *zap.Logger, n models.RunNotification) {
	if publisher == nil {
		return
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now().UTC()
	}
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()
	if err := publisher.PublishNotification(ctx, n); err != nil {
		logger.Warn("Failed to publish notification",
			zap.String("event", n.Event),
			zap.String("story_id", n.StoryID),
			zap.String("run_id", n.RunID),
			zap.Error(err),
		)
	}
}
