package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"suvidha-service/internal/otp"
	"suvidha-service/internal/ratelimit"
	"suvidha-service/internal/repository/sqlite"
	"suvidha-service/internal/service"
	"suvidha-service/internal/util"
)

// Response is the standard API envelope.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

func successResponse(data interface{}, message string) Response {
	return Response{
		Success: true,
		Data:    data,
		Message: message,
	}
}

func errorResponse(err error, message string) Response {
	return Response{
		Success: false,
		Error:   err.Error(),
		Message: message,
	}
}

func respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		util.Error("Failed to encode JSON response", util.ErrorField(err))
	}
}

func respondWithError(w http.ResponseWriter, statusCode int, err error, message string) {
	util.Warn("HTTP error response",
		util.ErrorField(err),
		util.Int("status_code", statusCode),
		util.String("message", message),
	)
	respondWithJSON(w, statusCode, errorResponse(err, message))
}

// respondWithServiceError maps domain errors onto HTTP semantics. Rate
// limit blocks carry a Retry-After header; incorrect codes carry the
// remaining attempt budget.
func respondWithServiceError(w http.ResponseWriter, err error, message string) {
	if blocked, ok := ratelimit.AsBlocked(err); ok {
		w.Header().Set("Retry-After", strconv.Itoa(int(blocked.RetryAfter().Seconds())))
		resp := errorResponse(err, "Too many failed attempts")
		resp.Data = map[string]interface{}{"blocked_until": blocked.Until}
		respondWithJSON(w, http.StatusTooManyRequests, resp)
		return
	}

	if incorrect, ok := otp.AsIncorrect(err); ok {
		resp := errorResponse(err, "Incorrect verification code")
		resp.Data = map[string]interface{}{"attempts_remaining": incorrect.AttemptsRemaining}
		respondWithJSON(w, http.StatusUnauthorized, resp)
		return
	}

	respondWithError(w, statusForError(err), err, message)
}

func statusForError(err error) int {
	var deliveryErr *otp.DeliveryError
	switch {
	case errors.Is(err, otp.ErrMalformedCode),
		errors.Is(err, otp.ErrNoActiveCode),
		errors.Is(err, service.ErrInvalidAadhaar),
		errors.Is(err, service.ErrInvalidPhone),
		errors.Is(err, service.ErrUnknownDepartment),
		errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, otp.ErrCodeExpired),
		errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrInvalidToken),
		errors.Is(err, service.ErrSessionExpired):
		return http.StatusUnauthorized
	case errors.Is(err, otp.ErrAttemptsExhausted):
		return http.StatusForbidden
	case errors.Is(err, service.ErrCitizenNotFound),
		errors.Is(err, sqlite.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &deliveryErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
