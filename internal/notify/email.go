package notify

import (
	"context"
	"fmt"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"mentorbook-backend/internal/domain"
	"mentorbook-backend/internal/logger"
)

type mailSender interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// EmailChannel sends events through SendGrid.
type EmailChannel struct {
	client    mailSender
	fromEmail string
	fromName  string
}

func NewEmailChannel(apiKey, fromEmail, fromName string) *EmailChannel {
	return &EmailChannel{
		client:    sendgrid.NewSendClient(apiKey),
		fromEmail: fromEmail,
		fromName:  fromName,
	}
}

func (c *EmailChannel) Name() string { return "email" }

func (c *EmailChannel) Deliver(ctx context.Context, event domain.Event, user *domain.User) error {
	if user == nil || user.Email == "" {
		return nil
	}
	from := mail.NewEmail(c.fromName, c.fromEmail)
	to := mail.NewEmail(user.Name, user.Email)
	body := fmt.Sprintf("Hello %s,\n\n%s\n\nThe Mentorbook Team", user.Name, event.Message)
	message := mail.NewSingleEmail(from, event.Title, to, body, "")

	logger.ExternalServiceCall("sendgrid", "Send", "to", user.Email, "type", event.Type)
	response, err := c.client.SendWithContext(ctx, message)
	if err == nil && response.StatusCode >= 400 {
		err = fmt.Errorf("sendgrid error: status %d, body: %s", response.StatusCode, response.Body)
	}
	logger.ExternalServiceResult("sendgrid", "Send", err, "to", user.Email)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}
