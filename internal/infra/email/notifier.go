package email

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"go.uber.org/zap"
)

// SMTPNotifier mails the operators when a job is dead-lettered.
type SMTPNotifier struct {
	host   string
	port   int
	from   string
	to     []string
	logger *zap.Logger
}

func NewSMTPNotifier(host string, port int, from string, to []string, logger *zap.Logger) *SMTPNotifier {
	return &SMTPNotifier{host: host, port: port, from: from, to: to, logger: logger}
}

func (n *SMTPNotifier) NotifyFailure(_ context.Context, jobID, source, errorMsg string) error {
	if len(n.to) == 0 {
		return nil
	}
	addr := fmt.Sprintf("%s:%d", n.host, n.port)

	subject := fmt.Sprintf("Detection job dead-lettered [Job %s]", jobID)
	body := fmt.Sprintf(
		"A detection job was moved to the dead-letter queue after repeated failures.\r\n\r\n"+
			"Job ID: %s\r\n"+
			"Source: %s\r\n"+
			"Error: %s\r\n\r\n"+
			"-- detection worker",
		jobID, source, errorMsg,
	)

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s",
		n.from, strings.Join(n.to, ", "), subject, body,
	)

	err := smtp.SendMail(addr, nil, n.from, n.to, []byte(msg))
	if err != nil {
		n.logger.Error("failed to send dead-letter notification",
			zap.Strings("to", n.to),
			zap.String("job_id", jobID),
			zap.Error(err),
		)
		return fmt.Errorf("send email: %w", err)
	}

	n.logger.Info("dead-letter notification sent",
		zap.Strings("to", n.to),
		zap.String("job_id", jobID),
	)
	return nil
}
