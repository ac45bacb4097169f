package activity

import (
	"time"

	"github.com/google/uuid"
)

func NewFromCreateRequest(organizerID string, req CreateRequest) Activity {
	now := time.Now().UTC()

	return Activity{
		ID:          uuid.NewString(),
		OrganizerID: organizerID,
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		City:        req.City,
		Location:    req.Location,
		StartAt:     req.StartAt,
		EndAt:       req.EndAt,
		AgeMin:      req.AgeMin,
		AgeMax:      req.AgeMax,
		Capacity:    req.Capacity,
		Price:       req.Price,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
