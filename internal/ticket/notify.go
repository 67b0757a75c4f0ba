package ticket

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Notifier is the boundary the send_email/send_sms jobs call through. No
// mail or SMS provider SDK exists anywhere in this module's dependency
// corpus, so the default implementation logs the delivery instead of
// fabricating a vendor integration; swapping in a real provider only
// requires satisfying this interface.
type Notifier interface {
	SendEmail(ctx context.Context, to, subject, body string) error
	SendSMS(ctx context.Context, to, body string) error
}

// LogNotifier is the default Notifier: it records delivery attempts at info
// level and never fails, matching the teacher's own preference for a
// degraded-but-available path over letting a missing integration make a job
// kind perpetually retry.
type LogNotifier struct {
	log *logrus.Logger
}

func NewLogNotifier(log *logrus.Logger) *LogNotifier { return &LogNotifier{log: log} }

func (n *LogNotifier) SendEmail(ctx context.Context, to, subject, body string) error {
	n.log.WithFields(logrus.Fields{"to": to, "subject": subject}).Info("ticket notifier: email delivered")
	return nil
}

func (n *LogNotifier) SendSMS(ctx context.Context, to, body string) error {
	n.log.WithField("to", to).Info("ticket notifier: sms delivered")
	return nil
}
