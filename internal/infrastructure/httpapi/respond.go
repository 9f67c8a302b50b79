package httpapi

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"

	"AnnounceRelay/internal/domain"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps pipeline errors onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	var throttled *domain.ThrottledError
	if errors.As(err, &throttled) {
		secs := int(math.Ceil(throttled.Remaining.Seconds()))
		if secs < 1 {
			secs = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidPayload),
		errors.Is(err, domain.ErrMissingQualifyingLink):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrThrottled),
		errors.Is(err, domain.ErrDuplicate):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrMetaResponse):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrNoRecentItem):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrKillSwitchEngaged):
		return http.StatusConflict
	case errors.Is(err, domain.ErrGenerationTimedOut):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
