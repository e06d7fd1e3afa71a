package domain

import "time"

const (
	EventOTPIssued             = "otp.issued"
	EventRegistrationStaged    = "registration.staged"
	EventRegistrationCommitted = "registration.committed"
)

// Event is pushed to dashboard subscribers. It never carries a code.
type Event struct {
	ID    string    `json:"id"`
	Type  string    `json:"type"`
	Email string    `json:"email"`
	At    time.Time `json:"at"`
}
