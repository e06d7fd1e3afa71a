package handler

import (
	"encoding/json"
	"net/http"

	"github.com/genclean-otp/internal/domain"
)

// ResultEnvelope is the response body of every endpoint.
type ResultEnvelope struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Bearer  string       `json:"Bearer,omitempty"`
	User    *domain.User `json:"user,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeOK(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ResultEnvelope{Success: true, Message: msg})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ResultEnvelope{Success: false, Message: msg})
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
