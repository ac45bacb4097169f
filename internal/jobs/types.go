package jobs

type JobType string

const (
	JobEnrollmentConfirmation JobType = "enrollment_confirmation"
	JobEnrollmentCancelled    JobType = "enrollment_cancelled"
)

// check to see if the job type is a known constant
func (t JobType) IsValid() bool {
	switch t {
	case JobEnrollmentConfirmation, JobEnrollmentCancelled:
		return true
	default:
		return false
	}
}
