package handler

import (
	"net/http"

	"github.com/genclean-otp/internal/application/registration"
	"github.com/genclean-otp/internal/domain"
)

// RegistrationHandler drives the stage, confirm and commit sign-up flow.
type RegistrationHandler struct {
	svc registration.Service
}

func NewRegistrationHandler(svc registration.Service) *RegistrationHandler {
	return &RegistrationHandler{svc: svc}
}

func (h *RegistrationHandler) Stage(w http.ResponseWriter, r *http.Request) {
	var req domain.StageRegistrationRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.svc.Stage(r.Context(), req); err != nil {
		httpError(w, err)
		return
	}
	writeOK(w, http.StatusAccepted, "verification code sent")
}

func (h *RegistrationHandler) Resend(w http.ResponseWriter, r *http.Request) {
	var req domain.SendCodeRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.svc.Resend(r.Context(), req.Email); err != nil {
		httpError(w, err)
		return
	}
	writeOK(w, http.StatusOK, "verification code sent")
}

func (h *RegistrationHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req domain.VerifyCodeRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.svc.Confirm(r.Context(), req.Email, req.Code)
	if err != nil {
		httpError(w, err)
		return
	}
	writeResult(w, res)
}

func (h *RegistrationHandler) Commit(w http.ResponseWriter, r *http.Request) {
	var req domain.SendCodeRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.svc.Commit(r.Context(), req.Email)
	if err != nil {
		httpError(w, err)
		return
	}
	writeResult(w, res)
}

func writeResult(w http.ResponseWriter, res *registration.Result) {
	writeJSON(w, http.StatusCreated, ResultEnvelope{
		Success: true,
		Message: "registration complete",
		Bearer:  res.Bearer,
		User:    res.User,
	})
}
