package notifications

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

var ErrProviderDown = errors.New("provider down (simulated)")

// LogNotifier stands in for the email provider and writes rendered notices
// to the log. Delay and Fail simulate a slow or broken provider.
type LogNotifier struct {
	log   *slog.Logger
	Delay time.Duration
	Fail  bool
}

func NewLogNotifier(log *slog.Logger) *LogNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &LogNotifier{log: log}
}

func (n *LogNotifier) SendEnrollmentNotice(ctx context.Context, in EnrollmentNotice) error {
	if in.Email == "" {
		return ErrNoRecipient
	}

	if n.Delay > 0 {
		t := time.NewTimer(n.Delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if n.Fail {
		return ErrProviderDown
	}

	subject, body := in.Render()
	n.log.InfoContext(ctx, "notification sent",
		"kind", in.Kind,
		"to", in.Email,
		"subject", subject,
		"body", body,
		"enrollment_id", in.EnrollmentID,
	)
	return nil
}
