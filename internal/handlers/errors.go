package handlers

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/weddingdesk/api/internal/admission"
	"github.com/weddingdesk/api/internal/middleware"
	"github.com/weddingdesk/api/internal/validation"
)

// Response codes that accompany the error string
const (
	CodeValidation       = "validation_error"
	CodeDuplicateAccount = "duplicate_account"
	CodeInvalidBody      = "invalid_request_body"
	CodeMethodNotAllowed = "method_not_allowed"
	CodeInternal         = "internal_error"
)

// ErrorResponse represents an error response. Error is always a
// human-readable string safe to show the caller.
type ErrorResponse struct {
	Error        string                 `json:"error"`
	Code         string                 `json:"code,omitempty"`
	Details      map[string]interface{} `json:"details,omitempty"`
	BlockedUntil string                 `json:"blocked_until,omitempty"`
	RequestID    string                 `json:"request_id,omitempty"`
}

// WriteError writes an error response
func WriteError(w http.ResponseWriter, r *http.Request, statusCode int, message, code string, details map[string]interface{}) {
	writeJSON(w, statusCode, ErrorResponse{
		Error:     message,
		Code:      code,
		Details:   details,
		RequestID: middleware.GetRequestID(r.Context()),
	})
}

// WriteValidationErrors writes every validation problem at once. The error
// string joins the messages in field order.
func WriteValidationErrors(w http.ResponseWriter, r *http.Request, errs []error) {
	messages := validation.Messages(errs)

	fields := make([]map[string]interface{}, 0, len(errs))
	for _, err := range errs {
		if validationErr, ok := err.(*validation.ValidationError); ok {
			fields = append(fields, map[string]interface{}{
				"field":   validationErr.Field,
				"message": validationErr.Message,
			})
		}
	}

	WriteError(w, r, http.StatusBadRequest, strings.Join(messages, ", "), CodeValidation, map[string]interface{}{
		"errors": messages,
		"fields": fields,
	})
}

// WriteRateLimited writes a 429 naming the blocking tier
func WriteRateLimited(w http.ResponseWriter, r *http.Request, rle *admission.RateLimitExceeded, now time.Time) {
	response := ErrorResponse{
		Error:     rateLimitMessage(rle.Reason),
		Code:      rle.Reason,
		RequestID: middleware.GetRequestID(r.Context()),
	}

	if rle.RetryAfter != nil {
		response.BlockedUntil = rle.RetryAfter.UTC().Format(time.RFC3339)
		seconds := int(math.Ceil(rle.RetryAfter.Sub(now).Seconds()))
		if seconds < 1 {
			seconds = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
	}

	writeJSON(w, http.StatusTooManyRequests, response)
}

func rateLimitMessage(reason string) string {
	switch reason {
	case admission.ReasonIPRateLimited:
		return "Too many signup attempts from this IP address. Please try again later."
	case admission.ReasonEmailRateLimited:
		return "Too many signup attempts for this email. Please try again later."
	case admission.ReasonOverloaded:
		return "Service is temporarily overloaded. Please try again in a minute."
	default:
		return "Too many requests. Please try again later."
	}
}

// WriteSuccess writes a success response
func WriteSuccess(w http.ResponseWriter, data interface{}, statusCode int) {
	writeJSON(w, statusCode, data)
}

func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}
