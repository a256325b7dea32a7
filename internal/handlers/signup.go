package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/weddingdesk/api/internal/accounts"
	"github.com/weddingdesk/api/internal/admission"
	"github.com/weddingdesk/api/internal/logging"
	"github.com/weddingdesk/api/internal/metrics"
	"github.com/weddingdesk/api/internal/middleware"
	"github.com/weddingdesk/api/internal/utils"
	"github.com/weddingdesk/api/internal/validation"
)

// User-facing messages. Internal detail never reaches the caller.
const (
	msgAccountCreated   = "Account created successfully"
	msgDuplicateAccount = "An account with this email already exists"
	msgCreateFailed     = "Failed to create account"
	msgInvalidBody      = "Invalid request body"
	msgBodyTooLarge     = "Request body too large"
	msgMethodNotAllowed = "Method not allowed"
	msgUnexpected       = "An unexpected error occurred"
)

// Admitter decides whether a validated signup may proceed; *admission.Gate implements it
type Admitter interface {
	Admit(ctx context.Context, clientIP, email string) error
}

// SignupHandlers handles the signup endpoint
type SignupHandlers struct {
	gate         Admitter
	provisioner  accounts.Provisioner
	logger       *logging.Logger
	maxBodyBytes int64
	now          func() time.Time
}

// NewSignupHandlers creates signup handlers
func NewSignupHandlers(gate Admitter, provisioner accounts.Provisioner, logger *logging.Logger, maxBodyBytes int64) *SignupHandlers {
	if maxBodyBytes <= 0 {
		maxBodyBytes = middleware.DefaultMaxBodyBytes
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &SignupHandlers{
		gate:         gate,
		provisioner:  provisioner,
		logger:       logger,
		maxBodyBytes: maxBodyBytes,
		now:          time.Now,
	}
}

// SignupUser is the public part of a created account
type SignupUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// SignupResponse is the 200 body
type SignupResponse struct {
	Message string     `json:"message"`
	User    SignupUser `json:"user"`
}

// Signup validates the payload, runs the admission gate and provisions the
// account, in that order. Each stage ends the request with its own status.
func (h *SignupHandlers) Signup(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
		return
	case http.MethodPost:
	default:
		w.Header().Set("Allow", "POST, OPTIONS")
		WriteError(w, r, http.StatusMethodNotAllowed, msgMethodNotAllowed, CodeMethodNotAllowed, nil)
		return
	}

	ctx := r.Context()
	logger := h.logger.With(map[string]interface{}{
		"request_id": middleware.GetRequestID(ctx),
	})

	var raw validation.RawSignup
	body := http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			WriteError(w, r, http.StatusRequestEntityTooLarge, msgBodyTooLarge, CodeInvalidBody, nil)
			return
		}
		WriteError(w, r, http.StatusBadRequest, msgInvalidBody, CodeInvalidBody, nil)
		return
	}

	signup, errs := validation.ValidateSignup(raw)
	if len(errs) > 0 {
		WriteValidationErrors(w, r, errs)
		return
	}

	clientIP := middleware.GetClientIP(ctx)
	if err := h.gate.Admit(ctx, clientIP, signup.Email); err != nil {
		var rle *admission.RateLimitExceeded
		if errors.As(err, &rle) {
			logger.Info("Signup rate limited", map[string]interface{}{
				"tier":      string(rle.Tier),
				"client_ip": clientIP,
				"email":     utils.RedactEmail(signup.Email),
			})
			WriteRateLimited(w, r, rle, h.now())
			return
		}
		logger.Error("Admission gate failed", err, nil)
		WriteError(w, r, http.StatusInternalServerError, msgUnexpected, CodeInternal, nil)
		return
	}

	account, err := h.provisioner.CreateAccount(ctx, signup.Email, signup.Password, accounts.Profile{
		FullName: signup.FullName,
		Username: signup.Username,
	})
	if err != nil {
		if errors.Is(err, accounts.ErrDuplicateAccount) {
			metrics.RecordProvisioning("duplicate")
			WriteError(w, r, http.StatusBadRequest, msgDuplicateAccount, CodeDuplicateAccount, nil)
			return
		}
		metrics.RecordProvisioning("failed")
		logger.Error("Account provisioning failed", err, map[string]interface{}{
			"email": utils.RedactEmail(signup.Email),
		})
		WriteError(w, r, http.StatusInternalServerError, msgCreateFailed, CodeInternal, nil)
		return
	}

	metrics.RecordProvisioning("created")
	logger.Info("Account created", map[string]interface{}{
		"user_id": account.ID,
		"email":   utils.RedactEmail(account.Email),
	})

	WriteSuccess(w, SignupResponse{
		Message: msgAccountCreated,
		User:    SignupUser{ID: account.ID, Email: account.Email},
	}, http.StatusOK)
}
