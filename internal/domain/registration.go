package domain

import "time"

type RegistrationState string

const (
	RegistrationStaged    RegistrationState = "staged"
	RegistrationVerified  RegistrationState = "verified"
	RegistrationCommitted RegistrationState = "committed"
)

const (
	DeliveryEmail = "email"
	DeliverySMS   = "sms"
)

// Registration is a sign-up payload waiting for its email to be proven.
// It is keyed by normalized email and removed once committed.
type Registration struct {
	Email        string            `json:"email"`
	PasswordHash string            `json:"password_hash"`
	FirstName    string            `json:"first_name"`
	LastName     string            `json:"last_name"`
	Phone        *string           `json:"phone,omitempty"`
	Delivery     string            `json:"delivery"`
	State        RegistrationState `json:"state"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
	ExpiresAt    time.Time         `json:"expires_at"`
}

type StageRegistrationRequest struct {
	Email     string  `json:"email" validate:"required,email"`
	Password  string  `json:"password" validate:"required,min=8,max=72"`
	FirstName string  `json:"first_name" validate:"required"`
	LastName  string  `json:"last_name" validate:"required"`
	Phone     *string `json:"phone" validate:"omitempty,e164"`
	Delivery  string  `json:"delivery" validate:"omitempty,oneof=email sms"`
}

type SendCodeRequest struct {
	Email string `json:"email"`
}

type VerifyCodeRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}
