package mailer

import (
	"context"

	"go.uber.org/zap"
)

// Message is a composed outbound email.
type Message struct {
	To      string
	CC      []string
	Subject string
	Body    string
}

// Mailer dispatches composed messages to a delivery backend.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// LogMailer writes messages to the application log instead of delivering
// them. It is the default backend; provider integrations implement Mailer.
type LogMailer struct {
	fromAddress string
	fromName    string
	logger      *zap.Logger
}

// NewLogMailer constructs a log-backed mailer.
func NewLogMailer(fromAddress, fromName string, logger *zap.Logger) *LogMailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogMailer{
		fromAddress: fromAddress,
		fromName:    fromName,
		logger:      logger,
	}
}

// Send logs the message and reports success.
func (m *LogMailer) Send(_ context.Context, msg Message) error {
	m.logger.Info("outbound_mail",
		zap.String("from", m.fromAddress),
		zap.String("from_name", m.fromName),
		zap.String("to", msg.To),
		zap.Strings("cc", msg.CC),
		zap.String("subject", msg.Subject),
		zap.Int("body_bytes", len(msg.Body)),
	)
	return nil
}
