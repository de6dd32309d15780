package notify

import (
	"context"
	"fmt"
	"html"

	"gangkeeper-backend/internal/domain"
	"gangkeeper-backend/internal/logger"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// MailClient is the part of *sendgrid.Client the notifier needs.
type MailClient interface {
	Send(email *mail.SGMailV3) (*rest.Response, error)
}

// EmailNotifier mails outcome notices to the gang's contact address. Notices
// that ask for a review stay on the chat platform, where the buttons are.
type EmailNotifier struct {
	client    MailClient
	gangs     GangLookup
	fromEmail string
	fromName  string
}

func NewSendGridNotifier(apiKey, fromEmail, fromName string, gangs GangLookup) *EmailNotifier {
	return NewEmailNotifier(sendgrid.NewSendClient(apiKey), fromEmail, fromName, gangs)
}

func NewEmailNotifier(client MailClient, fromEmail, fromName string, gangs GangLookup) *EmailNotifier {
	return &EmailNotifier{client: client, gangs: gangs, fromEmail: fromEmail, fromName: fromName}
}

func (n *EmailNotifier) Notify(ctx context.Context, notice domain.Notice) error {
	if notice.Review != nil {
		return nil
	}
	gang, err := n.gangs.GetByID(ctx, notice.GangID)
	if err != nil {
		return fmt.Errorf("failed to load gang %d: %w", notice.GangID, err)
	}
	if gang.ContactEmail == "" {
		return nil
	}

	from := mail.NewEmail(n.fromName, n.fromEmail)
	to := mail.NewEmail(gang.Name, gang.ContactEmail)
	subject := fmt.Sprintf("[%s] %s", gang.Name, notice.Subject)
	htmlContent := fmt.Sprintf("<html><body><h3>%s</h3><p>%s</p></body></html>",
		html.EscapeString(notice.Subject), html.EscapeString(notice.Message))
	message := mail.NewSingleEmail(from, subject, to, notice.Message, htmlContent)

	logger.ExternalServiceCall("sendgrid", "send", "gangID", gang.ID)
	response, err := n.client.Send(message)
	logger.ExternalServiceResult("sendgrid", "send", err, "gangID", gang.ID)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	if response.StatusCode >= 400 {
		return fmt.Errorf("sendgrid error: status %d, body: %s", response.StatusCode, response.Body)
	}
	return nil
}
