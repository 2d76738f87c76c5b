package invitation

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Mailer delivers invitation links.
type Mailer interface {
	SendInvitation(ctx context.Context, email, workspaceName, link string) error
}

// LogMailer writes invitation links to the log instead of sending email.
type LogMailer struct {
	logger *logrus.Logger
}

func NewLogMailer(logger *logrus.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) SendInvitation(_ context.Context, email, workspaceName, link string) error {
	m.logger.WithFields(logrus.Fields{
		"email":     email,
		"workspace": workspaceName,
		"link":      link,
	}).Info("workspace invitation issued")
	return nil
}
