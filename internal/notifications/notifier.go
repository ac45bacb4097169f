package notifications

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type NoticeKind string

const (
	NoticeConfirmed NoticeKind = "enrollment_confirmation"
	NoticeCancelled NoticeKind = "enrollment_cancelled"
)

// ErrNoRecipient is returned for a notice without an email. Retrying it
// cannot help.
var ErrNoRecipient = errors.New("notice has no recipient")

// EnrollmentNotice is what a guardian is told about an enrollment.
type EnrollmentNotice struct {
	Kind          NoticeKind
	EnrollmentID  string
	Email         string
	GuardianName  string
	ChildName     string
	ActivityTitle string
	StartAt       time.Time
}

type Notifier interface {
	SendEnrollmentNotice(ctx context.Context, notice EnrollmentNotice) error
}

// Render returns the subject and plain text body sent to the guardian.
func (n EnrollmentNotice) Render() (subject, body string) {
	greeting := "Hello"
	if n.GuardianName != "" {
		greeting += " " + n.GuardianName
	}
	when := n.StartAt.Format("Monday 2 January at 15:04")

	switch n.Kind {
	case NoticeCancelled:
		subject = fmt.Sprintf("Enrollment cancelled: %s", n.ActivityTitle)
		body = fmt.Sprintf("%s,\n\nthe enrollment of %s in %s (%s) has been cancelled.\n", greeting, n.ChildName, n.ActivityTitle, when)
	default:
		subject = fmt.Sprintf("Enrollment received: %s", n.ActivityTitle)
		body = fmt.Sprintf("%s,\n\n%s is enrolled in %s, starting %s.\nThe organizer will confirm the place.\n", greeting, n.ChildName, n.ActivityTitle, when)
	}
	return subject, body
}
