package http

import (
	"net/http"

	"github.com/genclean-otp/internal/application/otp"
	"github.com/genclean-otp/internal/application/registration"
	"github.com/genclean-otp/internal/transport/http/middleware"
)

// EventStream upgrades a request into an event subscription.
type EventStream interface {
	ServeWS(w http.ResponseWriter, r *http.Request)
}

// Deps holds the services the router wires into handlers. Verifier and
// Events are optional: without a verifier admin routes answer 401, and
// without a stream /v1/events is not mounted.
type Deps struct {
	OTP           otp.Service
	Registrations registration.Service
	Verifier      middleware.Verifier
	Events        EventStream
}
