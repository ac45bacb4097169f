package enrollment

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled:
		return true
	default:
		return false
	}
}

type Enrollment struct {
	ID         string    `json:"id"`
	ActivityID string    `json:"activityId"`
	ChildID    string    `json:"childId"`
	GuardianID string    `json:"guardianId"`
	Status     Status    `json:"status"`
	Notes      string    `json:"notes,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// the child is already enrolled in this activity.
var ErrAlreadyEnrolled = errors.New("child already enrolled")

// error if the activity is full
var ErrActivityFull = errors.New("activity is full")
var ErrNotFound = errors.New("enrollment not found")

type CreateRequest struct {
	ActivityID string `json:"activityId" validate:"required"`
	ChildID    string `json:"childId" validate:"required"`
	GuardianID string `json:"guardianId" validate:"required"`
	Notes      string `json:"notes" validate:"omitempty,max=500"`
}

// A factory to build an Enrollment from the incoming DTO

func NewFromCreateRequest(req CreateRequest) Enrollment {
	now := time.Now().UTC()
	return Enrollment{
		ID:         uuid.NewString(),
		ActivityID: req.ActivityID,
		ChildID:    req.ChildID,
		GuardianID: req.GuardianID,
		Status:     StatusPending,
		Notes:      req.Notes,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}
