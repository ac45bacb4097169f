package jobs

import "strings"

// ValidatePayload checks the payload type and its required ids.
func ValidatePayload(t JobType, payload any) error {
	if !t.IsValid() {
		return ErrInvalidJobType
	}

	var p EnrollmentPayload
	switch v := payload.(type) {
	case EnrollmentPayload:
		p = v
	case *EnrollmentPayload:
		if v == nil {
			return ErrInvalidJobPayload
		}
		p = *v
	default:
		return ErrPayloadTypeMismatch
	}

	trim := strings.TrimSpace
	if trim(p.EnrollmentID) == "" || trim(p.ActivityID) == "" || trim(p.GuardianID) == "" {
		return ErrInvalidJobPayload
	}
	return nil
}
