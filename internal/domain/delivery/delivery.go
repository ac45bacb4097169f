// Package delivery tracks notices handed to the notification provider so a
// retried job never sends the same notice twice.
package delivery

import "errors"

type Kind string

const (
	KindEnrollmentConfirmed Kind = "enrollment.confirmed"
	KindEnrollmentCancelled Kind = "enrollment.cancelled"
)

var (
	ErrAlreadySent = errors.New("notification already sent")
	ErrInProgress  = errors.New("notification send in progress")
)
