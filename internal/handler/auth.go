package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/josh-kwaku/sbp-gateway/internal/auth"
	"github.com/josh-kwaku/sbp-gateway/internal/domain"
)

type merchantReader interface {
	GetByID(ctx context.Context, id string) (*domain.Merchant, error)
}

type AuthHandler struct {
	merchants merchantReader
	jwtSecret string
	jwtExpiry time.Duration
}

func NewAuthHandler(merchants merchantReader, jwtSecret string, jwtExpiry time.Duration) *AuthHandler {
	return &AuthHandler{
		merchants: merchants,
		jwtSecret: jwtSecret,
		jwtExpiry: jwtExpiry,
	}
}

type loginRequest struct {
	MerchantID string `json:"merchant_id"`
	Password   string `json:"password"`
}

func (r loginRequest) Validate() []FieldError {
	var errs []FieldError
	if r.MerchantID == "" {
		errs = append(errs, FieldError{Field: "merchant_id", Message: "required"})
	}
	if r.Password == "" {
		errs = append(errs, FieldError{Field: "password", Message: "required"})
	}
	return errs
}

type loginResponse struct {
	Token      string `json:"token"`
	MerchantID string `json:"merchant_id"`
	StoreName  string `json:"store_name"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	merchant, err := h.merchants.GetByID(r.Context(), req.MerchantID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			RespondAppError(w, ErrInvalidCredentials, nil)
			return
		}
		RespondDomainError(w, err)
		return
	}

	// merchants seeded without a password cannot use the admin API
	if merchant.PasswordHash == "" {
		RespondAppError(w, ErrInvalidCredentials, nil)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(merchant.PasswordHash), []byte(req.Password)); err != nil {
		RespondAppError(w, ErrInvalidCredentials, nil)
		return
	}

	token, err := auth.GenerateToken(merchant.ID, h.jwtSecret, h.jwtExpiry)
	if err != nil {
		RespondAppError(w, ErrInternalError, nil)
		return
	}

	RespondSuccess(w, http.StatusOK, loginResponse{
		Token:      token,
		MerchantID: merchant.ID,
		StoreName:  merchant.StoreName,
	})
}
