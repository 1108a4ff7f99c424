package notify

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"mentorbook-backend/internal/domain"
	"mentorbook-backend/internal/logger"
)

type pushSender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// PushChannel sends events to the recipient's device through Firebase
// Cloud Messaging.
type PushChannel struct {
	client pushSender
}

func NewPushChannel(ctx context.Context, credentialsFile, projectID string) (*PushChannel, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase messaging: %w", err)
	}
	return &PushChannel{client: client}, nil
}

func (c *PushChannel) Name() string { return "push" }

func (c *PushChannel) Deliver(ctx context.Context, event domain.Event, user *domain.User) error {
	if user == nil || user.PushToken == "" {
		return nil
	}
	data := map[string]string{"type": string(event.Type)}
	for k, v := range event.Attributes {
		data[k] = v
	}
	logger.ExternalServiceCall("fcm", "Send", "user_id", user.ID, "type", event.Type)
	id, err := c.client.Send(ctx, &messaging.Message{
		Token: user.PushToken,
		Notification: &messaging.Notification{
			Title: event.Title,
			Body:  event.Message,
		},
		Data: data,
	})
	logger.ExternalServiceResult("fcm", "Send", err, "user_id", user.ID, "message_id", id)
	if err != nil {
		return fmt.Errorf("failed to send push notification: %w", err)
	}
	return nil
}
