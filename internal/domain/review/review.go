package review

import (
	"errors"
	"time"
)

type Review struct {
	ID         string    `json:"id"`
	ActivityID string    `json:"activityId"`
	GuardianID string    `json:"guardianId"`
	Rating     int       `json:"rating"`
	Comment    string    `json:"comment,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

var (
	ErrNotFound        = errors.New("review not found")
	ErrAlreadyReviewed = errors.New("activity already reviewed")
)

type CreateRequest struct {
	ActivityID string `json:"activityId" validate:"required"`
	GuardianID string `json:"guardianId" validate:"required"`
	Rating     int    `json:"rating" validate:"required,min=1,max=5"`
	Comment    string `json:"comment" validate:"omitempty,max=1000"`
}

// Average returns the mean rating, or 0 for no reviews.
func Average(reviews []Review) float64 {
	if len(reviews) == 0 {
		return 0
	}

	total := 0
	for _, r := range reviews {
		total += r.Rating
	}

	return float64(total) / float64(len(reviews))
}
