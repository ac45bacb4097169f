package jobs

// EnrollmentPayload is ID based; the worker loads details itself.
type EnrollmentPayload struct {
	EnrollmentID string `json:"enrollmentId"`
	ActivityID   string `json:"activityId"`
	GuardianID   string `json:"guardianId"`
	ChildID      string `json:"childId"`
	RequestID    string `json:"requestId,omitempty"`
}

// IdempotencyKey is one job per enrollment and type.
func IdempotencyKey(t JobType, enrollmentID string) string {
	return string(t) + ":" + enrollmentID
}
