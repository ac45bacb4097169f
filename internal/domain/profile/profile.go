package profile

import (
	"errors"
	"time"
)

type Kind string

const (
	KindGuardian  Kind = "guardian"
	KindOrganizer Kind = "organizer"
)

// ParseKind maps the provider's user_type metadata onto a Kind. Unknown or
// missing values fall back to guardian.
func ParseKind(s string) Kind {
	switch Kind(s) {
	case KindOrganizer:
		return KindOrganizer
	default:
		return KindGuardian
	}
}

func (k Kind) IsValid() bool {
	return k == KindGuardian || k == KindOrganizer
}

// Table returns the store partition holding profiles of this kind.
func (k Kind) Table() string {
	if k == KindOrganizer {
		return "organizers"
	}
	return "guardians"
}

var ErrNotFound = errors.New("profile not found")

// User is the resolved account the client works with. Exactly one of
// Guardian or Organizer is set, matching Kind.
type User struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	Kind      Kind       `json:"userType"`
	Guardian  *Guardian  `json:"guardian,omitempty"`
	Organizer *Organizer `json:"organizer,omitempty"`
}

// DisplayName is what list screens show for the account.
func (u User) DisplayName() string {
	switch {
	case u.Guardian != nil:
		name := u.Guardian.FirstName
		if u.Guardian.LastName != "" {
			name += " " + u.Guardian.LastName
		}
		if name != "" {
			return name
		}
	case u.Organizer != nil && u.Organizer.OrganizationName != "":
		return u.Organizer.OrganizationName
	}
	return u.Email
}

type Guardian struct {
	FirstName string  `json:"firstName"`
	LastName  string  `json:"lastName"`
	Phone     string  `json:"phone,omitempty"`
	Children  []Child `json:"children"`
}

type Organizer struct {
	OrganizationName string `json:"organizationName"`
	ContactName      string `json:"contactName"`
	Description      string `json:"description,omitempty"`
	Website          string `json:"website,omitempty"`
	Phone            string `json:"phone,omitempty"`
}

// Child has no ID until it has been persisted.
type Child struct {
	ID          string     `json:"id,omitempty"`
	GuardianID  string     `json:"guardianId,omitempty"`
	FirstName   string     `json:"firstName"`
	LastName    string     `json:"lastName"`
	DateOfBirth string     `json:"dateOfBirth"`
	Age         *int       `json:"age,omitempty"`
	CreatedAt   *time.Time `json:"createdAt,omitempty"`
}

const dateLayout = "2006-01-02"

// AgeOn returns the child's age in whole years at the given time, or nil
// when the date of birth does not parse.
func (c Child) AgeOn(now time.Time) *int {
	dob, err := time.Parse(dateLayout, c.DateOfBirth)
	if err != nil {
		return nil
	}

	years := now.Year() - dob.Year()
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		years--
	}
	if years < 0 {
		years = 0
	}
	return &years
}
