package handler

import (
	"net/http"

	"github.com/genclean-otp/internal/application/otp"
	"github.com/genclean-otp/internal/domain"
)

// OTPHandler exposes the bare issue/verify pair.
type OTPHandler struct {
	svc otp.Service
}

func NewOTPHandler(svc otp.Service) *OTPHandler { return &OTPHandler{svc: svc} }

func (h *OTPHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req domain.SendCodeRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.svc.Send(r.Context(), req.Email); err != nil {
		httpError(w, err)
		return
	}
	writeOK(w, http.StatusOK, "verification code sent")
}

func (h *OTPHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req domain.VerifyCodeRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.svc.Verify(r.Context(), req.Email, req.Code); err != nil {
		httpError(w, err)
		return
	}
	writeOK(w, http.StatusOK, "code verified")
}
