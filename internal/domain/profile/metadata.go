package profile

// Metadata is the profile information the identity provider keeps next to
// the account. The provider stores it as a loose snake_case map; this type
// pins down which fields exist for which kind.
type Metadata struct {
	Kind      Kind
	FirstName string
	LastName  string
	Phone     string

	// Organization is only set for organizers.
	Organization *OrganizationMetadata
}

type OrganizationMetadata struct {
	Name        string
	ContactName string
	Description string
	Website     string
}

const (
	metaUserType         = "user_type"
	metaFirstName        = "first_name"
	metaLastName         = "last_name"
	metaPhone            = "phone"
	metaOrganizationName = "organization_name"
	metaContactName      = "contact_name"
	metaDescription      = "description"
	metaWebsite          = "website"
)

// MetadataFromMap reads provider metadata. Missing user_type means guardian.
func MetadataFromMap(raw map[string]any) Metadata {
	str := func(key string) string {
		if v, ok := raw[key].(string); ok {
			return v
		}
		return ""
	}

	m := Metadata{
		Kind:      ParseKind(str(metaUserType)),
		FirstName: str(metaFirstName),
		LastName:  str(metaLastName),
		Phone:     str(metaPhone),
	}

	if m.Kind == KindOrganizer {
		m.Organization = &OrganizationMetadata{
			Name:        str(metaOrganizationName),
			ContactName: str(metaContactName),
			Description: str(metaDescription),
			Website:     str(metaWebsite),
		}
	}

	return m
}

// Map renders the metadata in the provider's wire shape. Empty optional
// fields are left out.
func (m Metadata) Map() map[string]any {
	out := map[string]any{
		metaUserType: string(m.Kind),
	}

	put := func(key, val string) {
		if val != "" {
			out[key] = val
		}
	}

	put(metaFirstName, m.FirstName)
	put(metaLastName, m.LastName)
	put(metaPhone, m.Phone)

	if m.Organization != nil {
		put(metaOrganizationName, m.Organization.Name)
		put(metaContactName, m.Organization.ContactName)
		put(metaDescription, m.Organization.Description)
		put(metaWebsite, m.Organization.Website)
	}

	return out
}

// GuardianProfile builds the minimal guardians row for a fresh account.
func (m Metadata) GuardianProfile(id, email string) GuardianProfile {
	return GuardianProfile{
		ID:        id,
		Email:     email,
		FirstName: m.FirstName,
		LastName:  m.LastName,
		Phone:     m.Phone,
	}
}

// OrganizerProfile builds the minimal organizers row for a fresh account.
func (m Metadata) OrganizerProfile(id, email string) OrganizerProfile {
	p := OrganizerProfile{
		ID:    id,
		Email: email,
		Phone: m.Phone,
	}

	if m.Organization != nil {
		p.OrganizationName = m.Organization.Name
		p.ContactName = m.Organization.ContactName
		p.Description = m.Organization.Description
		p.Website = m.Organization.Website
	}

	if p.ContactName == "" {
		p.ContactName = joinName(m.FirstName, m.LastName)
	}

	return p
}

func joinName(first, last string) string {
	switch {
	case first == "":
		return last
	case last == "":
		return first
	default:
		return first + " " + last
	}
}
