package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/josh-kwaku/sbp-gateway/internal/domain"
)

type APIResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data"`
	Error   *APIError `json:"error"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// GatewayResponse is the body returned to the shop front and to the payment
// provider on the checkout and webhook routes.
type GatewayResponse struct {
	Result   string   `json:"result"`
	Redirect string   `json:"redirect,omitempty"`
	Reason   string   `json:"reason,omitempty"`
	Details  string   `json:"details,omitempty"`
	Messages []string `json:"messages,omitempty"`
}

const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultFailure = "failure"
)

func RespondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func RespondSuccess(w http.ResponseWriter, status int, data any) {
	RespondJSON(w, status, APIResponse{
		Success: true,
		Data:    data,
		Error:   nil,
	})
}

func RespondAppError(w http.ResponseWriter, appErr *AppError, details any) {
	RespondJSON(w, appErr.Status, APIResponse{
		Success: false,
		Data:    nil,
		Error: &APIError{
			Code:    appErr.Code,
			Message: appErr.Message,
			Details: details,
		},
	})
}

func RespondValidationError(w http.ResponseWriter, fields []FieldError) {
	RespondAppError(w, ErrValidationFailed, fields)
}

func RespondGateway(w http.ResponseWriter, status int, resp GatewayResponse) {
	RespondJSON(w, status, resp)
}

// RateLimited answers a throttled admin API request.
func RateLimited(w http.ResponseWriter, _ *http.Request) {
	RespondAppError(w, ErrRateLimited, nil)
}

// GatewayRateLimited answers a throttled checkout or webhook request in the
// gateway shape.
func GatewayRateLimited(w http.ResponseWriter, _ *http.Request) {
	RespondGateway(w, http.StatusTooManyRequests, GatewayResponse{Result: ResultError, Reason: "Too many requests"})
}

func RespondDomainError(w http.ResponseWriter, err error) {
	var appErr *AppError

	switch {
	case errors.Is(err, domain.ErrNotFound):
		appErr = ErrResourceNotFound
	case errors.Is(err, domain.ErrOrderExists):
		appErr = ErrOrderExists
	case errors.Is(err, domain.ErrInvalidAmount):
		appErr = ErrInvalidAmount
	default:
		slog.Error("unhandled domain error", "error", err)
		appErr = ErrInternalError
	}

	RespondAppError(w, appErr, nil)
}
