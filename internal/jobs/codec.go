package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/geocoder89/kidshub/internal/domain/job"
)

func EncodePayload(t JobType, payload any) ([]byte, error) {
	if err := ValidatePayload(t, payload); err != nil {
		return nil, err
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJobPayload, err)
	}

	return b, nil
}

// NewRequest builds the job.CreateRequest for an enrollment notification.
func NewRequest(t JobType, p EnrollmentPayload) (job.CreateRequest, error) {
	b, err := EncodePayload(t, p)
	if err != nil {
		return job.CreateRequest{}, err
	}

	key := IdempotencyKey(t, p.EnrollmentID)
	return job.CreateRequest{
		Type:           string(t),
		Payload:        b,
		IdempotencyKey: &key,
	}, nil
}

// DecodePayload unmarshals j.Payload into the typed payload for j.Type.
func DecodePayload(j job.Job) (JobType, EnrollmentPayload, error) {
	t := JobType(j.Type)
	if !t.IsValid() {
		return t, EnrollmentPayload{}, ErrInvalidJobType
	}
	if len(j.Payload) == 0 {
		return t, EnrollmentPayload{}, ErrInvalidJobPayload
	}

	var p EnrollmentPayload
	if err := json.Unmarshal(j.Payload, &p); err != nil {
		return t, EnrollmentPayload{}, fmt.Errorf("%w: %v", ErrInvalidJobPayload, err)
	}
	if err := ValidatePayload(t, p); err != nil {
		return t, EnrollmentPayload{}, err
	}

	return t, p, nil
}
