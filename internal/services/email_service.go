package services

import (
	"context"
	"fmt"
	"html"

	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"

	"biodata/internal/config"
	"biodata/internal/events"
)

type MailSender interface {
	DialAndSend(m ...*gomail.Message) error
}

// EmailNotifier mails applicants when their application is approved or rejected.
type EmailNotifier struct {
	dialer MailSender
	from   string
}

func NewEmailNotifier(cfg config.EmailConfig) *EmailNotifier {
	return &EmailNotifier{
		dialer: gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword),
		from:   cfg.FromEmail,
	}
}

func (n *EmailNotifier) Publish(_ context.Context, e events.Event) error {
	if e.EmailID == "" {
		return nil
	}
	var subject, body string
	switch e.Type {
	case events.TypeApproved:
		subject = "Your biodata has been approved"
		body = fmt.Sprintf(`
		<h3>Hello %s,</h3>
		<p>Your application <strong>%s</strong> has been approved and is now visible to other members.</p>
	`, html.EscapeString(e.Name), e.UniqueID)
	case events.TypeRejected:
		subject = "Your biodata needs changes"
		body = fmt.Sprintf(`
		<h3>Hello %s,</h3>
		<p>Your application <strong>%s</strong> was not approved.</p>
		<p>Reviewer note: %s</p>
		<p>You can correct the details and resubmit from your dashboard.</p>
	`, html.EscapeString(e.Name), e.UniqueID, html.EscapeString(e.Note))
	default:
		return nil
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.from)
	m.SetHeader("To", e.EmailID)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)

	if err := n.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("send %s email: %w", e.Type, err)
	}
	logrus.WithFields(logrus.Fields{"unique_id": e.UniqueID, "type": e.Type}).Info("[email][send] ok")
	return nil
}
