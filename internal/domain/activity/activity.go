package activity

import (
	"errors"
	"time"
)

type Activity struct {
	ID          string     `json:"id"`
	OrganizerID string     `json:"organizerId"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Category    string     `json:"category,omitempty"`
	City        string     `json:"city,omitempty"`
	Location    string     `json:"location,omitempty"`
	StartAt     time.Time  `json:"startAt"`
	EndAt       *time.Time `json:"endAt,omitempty"`
	AgeMin      int        `json:"ageMin"`
	AgeMax      int        `json:"ageMax"`
	Capacity    int        `json:"capacity"`
	Price       float64    `json:"price"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// with pointers if optional, it will be nil
type ListFilter struct {
	City     *string
	Category *string
	Query    *string
	Age      *int
	From     *time.Time
	To       *time.Time
	Limit    int
	Offset   int
}

var ErrNotFound = errors.New("activity not found")

// AcceptsAge reports whether a child of the given age fits the age range.
// A zero bound is open.
func (a Activity) AcceptsAge(age int) bool {
	if a.AgeMin > 0 && age < a.AgeMin {
		return false
	}
	if a.AgeMax > 0 && age > a.AgeMax {
		return false
	}
	return true
}

type CreateRequest struct {
	Title       string     `json:"title" validate:"required,min=3,max=120"`
	Description string     `json:"description" validate:"omitempty,max=2000"`
	Category    string     `json:"category" validate:"omitempty,max=60"`
	City        string     `json:"city" validate:"omitempty,min=2,max=80"`
	Location    string     `json:"location" validate:"omitempty,max=200"`
	StartAt     time.Time  `json:"startAt" validate:"required"`
	EndAt       *time.Time `json:"endAt,omitempty"`
	AgeMin      int        `json:"ageMin" validate:"min=0,max=18"`
	AgeMax      int        `json:"ageMax" validate:"min=0,max=18"`
	Capacity    int        `json:"capacity" validate:"required,min=1,max=50000"`
	Price       float64    `json:"price" validate:"min=0"`
}

// a partial update; nil fields are not sent.
type UpdateRequest struct {
	Title       *string    `json:"title,omitempty" validate:"omitempty,min=3,max=120"`
	Description *string    `json:"description,omitempty" validate:"omitempty,max=2000"`
	Category    *string    `json:"category,omitempty"`
	City        *string    `json:"city,omitempty"`
	Location    *string    `json:"location,omitempty"`
	StartAt     *time.Time `json:"startAt,omitempty"`
	EndAt       *time.Time `json:"endAt,omitempty"`
	AgeMin      *int       `json:"ageMin,omitempty"`
	AgeMax      *int       `json:"ageMax,omitempty"`
	Capacity    *int       `json:"capacity,omitempty" validate:"omitempty,min=1,max=50000"`
	Price       *float64   `json:"price,omitempty" validate:"omitempty,min=0"`
}
