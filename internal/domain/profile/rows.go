package profile

import "time"

// GuardianProfile mirrors a row of the guardians partition.
type GuardianProfile struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	FirstName string     `json:"firstName"`
	LastName  string     `json:"lastName"`
	Phone     string     `json:"phone"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// OrganizerProfile mirrors a row of the organizers partition.
type OrganizerProfile struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	OrganizationName string     `json:"organizationName"`
	ContactName      string     `json:"contactName"`
	Description      string     `json:"description"`
	Website          string     `json:"website"`
	Phone            string     `json:"phone"`
	CreatedAt        *time.Time `json:"createdAt,omitempty"`
	UpdatedAt        *time.Time `json:"updatedAt,omitempty"`
}

func (g GuardianProfile) User(children []Child) User {
	if children == nil {
		children = []Child{}
	}
	return User{
		ID:    g.ID,
		Email: g.Email,
		Kind:  KindGuardian,
		Guardian: &Guardian{
			FirstName: g.FirstName,
			LastName:  g.LastName,
			Phone:     g.Phone,
			Children:  children,
		},
	}
}

func (o OrganizerProfile) User() User {
	return User{
		ID:    o.ID,
		Email: o.Email,
		Kind:  KindOrganizer,
		Organizer: &Organizer{
			OrganizationName: o.OrganizationName,
			ContactName:      o.ContactName,
			Description:      o.Description,
			Website:          o.Website,
			Phone:            o.Phone,
		},
	}
}

// Patch carries the editable profile fields. Nil fields are left alone.
type Patch struct {
	FirstName        *string `json:"firstName,omitempty"`
	LastName         *string `json:"lastName,omitempty"`
	Phone            *string `json:"phone,omitempty"`
	OrganizationName *string `json:"organizationName,omitempty"`
	ContactName      *string `json:"contactName,omitempty"`
	Description      *string `json:"description,omitempty"`
	Website          *string `json:"website,omitempty"`
}

func (p Patch) Empty() bool {
	return p.FirstName == nil && p.LastName == nil && p.Phone == nil &&
		p.OrganizationName == nil && p.ContactName == nil && p.Description == nil && p.Website == nil
}
