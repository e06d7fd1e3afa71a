package domain

import "time"

// OTPEntry is a live one-time code. Email is the normalized address and the store key.
type OTPEntry struct {
	Email     string    `json:"email"`
	Code      string    `json:"code"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the entry is past its validity window at now.
func (e *OTPEntry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}
