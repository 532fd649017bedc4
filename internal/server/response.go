package server

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/quiplabs/quip/internal/chat"
)

// errorPayload is the JSON body of every error response.
type errorPayload struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after_seconds,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, kind, message string, retryAfter time.Duration) {
	payload := errorPayload{Error: kind, Message: message}
	if retryAfter > 0 {
		seconds := int(math.Ceil(retryAfter.Seconds()))
		payload.RetryAfter = seconds
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
	}
	writeJSON(w, status, payload)
}

// writeTurnError maps the turn failure taxonomy onto HTTP statuses.
func writeTurnError(w http.ResponseWriter, err error) {
	turnErr, ok := chat.AsError(err)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal_error", "message processing failed", 0)
		return
	}

	var status int
	switch turnErr.Kind {
	case chat.KindValidation:
		status = http.StatusBadRequest
	case chat.KindAdmissionRejected:
		status = http.StatusConflict
	case chat.KindQuotaExceeded:
		status = http.StatusTooManyRequests
	case chat.KindAuthFailed, chat.KindTransient:
		status = http.StatusBadGateway
	case chat.KindStoreUnavailable:
		status = http.StatusServiceUnavailable
	default:
		status = http.StatusInternalServerError
	}

	writeError(w, status, turnErr.Kind.String(), turnErr.Message, turnErr.RetryAfter)
}
