package notify

import (
	"context"

	"mentorbook-backend/internal/domain"
	"mentorbook-backend/internal/repository"
	"mentorbook-backend/internal/utils"
)

// InboxChannel persists events as in-app notifications.
type InboxChannel struct {
	repo repository.NotificationRepository
}

func NewInboxChannel(repo repository.NotificationRepository) *InboxChannel {
	return &InboxChannel{repo: repo}
}

func (c *InboxChannel) Name() string { return "inbox" }

func (c *InboxChannel) Deliver(ctx context.Context, event domain.Event, _ *domain.User) error {
	if event.UserID == "" {
		return nil
	}
	attrs := map[string]string{"type": string(event.Type)}
	for k, v := range event.Attributes {
		attrs[k] = v
	}
	return c.repo.Create(ctx, &domain.Notification{
		ID:         utils.NewID(),
		UserID:     event.UserID,
		Title:      event.Title,
		Message:    event.Message,
		Attributes: attrs,
		CreatedAt:  event.OccurredAt,
	})
}
