package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/josh-kwaku/sbp-gateway/internal/domain"
	"github.com/josh-kwaku/sbp-gateway/internal/logging"
)

// PaymentMethodID identifies this gateway to the shop front.
const PaymentMethodID = "sbp"

type merchantStore interface {
	GetByID(ctx context.Context, id string) (*domain.Merchant, error)
	UpdateSettings(ctx context.Context, m *domain.Merchant) error
}

type MerchantHandler struct {
	merchants merchantStore
}

func NewMerchantHandler(merchants merchantStore) *MerchantHandler {
	return &MerchantHandler{merchants: merchants}
}

type settingsDTO struct {
	ID             string    `json:"id"`
	StoreName      string    `json:"store_name"`
	Enabled        bool      `json:"enabled"`
	APIKey         string    `json:"api_key"`
	SecretKey      string    `json:"secret_key"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	OnChainAllowed bool      `json:"on_chain_allowed"`
	Warnings       []string  `json:"warnings"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func toSettingsDTO(m *domain.Merchant) settingsDTO {
	warnings := m.Warnings()
	if warnings == nil {
		warnings = []string{}
	}
	return settingsDTO{
		ID:             m.ID,
		StoreName:      m.StoreName,
		Enabled:        m.Enabled,
		APIKey:         maskSecret(m.APIKey),
		SecretKey:      maskSecret(m.SecretKey),
		Title:          m.Title,
		Description:    m.Description,
		OnChainAllowed: m.OnChainAllowed,
		Warnings:       warnings,
		UpdatedAt:      m.UpdatedAt,
	}
}

// maskSecret keeps the last four characters of keys long enough to stay
// unguessable with them shown.
func maskSecret(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) <= 8:
		return "****"
	default:
		return "****" + s[len(s)-4:]
	}
}

type updateSettingsRequest struct {
	StoreName      *string `json:"store_name"`
	Enabled        *bool   `json:"enabled"`
	APIKey         *string `json:"api_key"`
	SecretKey      *string `json:"secret_key"`
	Title          *string `json:"title"`
	Description    *string `json:"description"`
	OnChainAllowed *bool   `json:"on_chain_allowed"`
}

func (r updateSettingsRequest) Validate() []FieldError {
	var errs []FieldError
	if r.Title != nil && strings.TrimSpace(*r.Title) == "" {
		errs = append(errs, FieldError{Field: "title", Message: "must not be empty"})
	}
	if r.APIKey != nil && strings.TrimSpace(*r.APIKey) != *r.APIKey {
		errs = append(errs, FieldError{Field: "api_key", Message: "must not contain surrounding whitespace"})
	}
	if r.SecretKey != nil && strings.TrimSpace(*r.SecretKey) != *r.SecretKey {
		errs = append(errs, FieldError{Field: "secret_key", Message: "must not contain surrounding whitespace"})
	}
	return errs
}

func (r updateSettingsRequest) apply(m *domain.Merchant) {
	if r.StoreName != nil {
		m.StoreName = *r.StoreName
	}
	if r.Enabled != nil {
		m.Enabled = *r.Enabled
	}
	if r.APIKey != nil {
		m.APIKey = *r.APIKey
	}
	if r.SecretKey != nil {
		m.SecretKey = *r.SecretKey
	}
	if r.Title != nil {
		m.Title = strings.TrimSpace(*r.Title)
	}
	if r.Description != nil {
		m.Description = *r.Description
	}
	if r.OnChainAllowed != nil {
		m.OnChainAllowed = *r.OnChainAllowed
	}
}

func (h *MerchantHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	merchantID, appErr := merchantFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	m, err := h.merchants.GetByID(r.Context(), merchantID)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to load merchant settings", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toSettingsDTO(m))
}

func (h *MerchantHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	merchantID, appErr := merchantFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	var req updateSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	log := logging.FromContext(r.Context())

	m, err := h.merchants.GetByID(r.Context(), merchantID)
	if err != nil {
		log.Error("failed to load merchant settings", "error", err)
		RespondDomainError(w, err)
		return
	}

	req.apply(m)
	m.UpdatedAt = time.Now().UTC()

	if err := h.merchants.UpdateSettings(r.Context(), m); err != nil {
		log.Error("failed to update merchant settings", "error", err)
		RespondDomainError(w, err)
		return
	}

	for _, warning := range m.Warnings() {
		log.Warn("merchant settings incomplete", "merchant_id", m.ID, "warning", warning)
	}

	RespondSuccess(w, http.StatusOK, toSettingsDTO(m))
}

type paymentMethodDTO struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Enabled     bool   `json:"enabled"`
}

// PaymentMethod is public: the shop front renders it at checkout and on the
// thank-you page.
func (h *MerchantHandler) PaymentMethod(w http.ResponseWriter, r *http.Request) {
	m, err := h.merchants.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, paymentMethodDTO{
		ID:          PaymentMethodID,
		Title:       m.Title,
		Description: m.Description,
		Enabled:     m.Enabled && m.APIKey != "",
	})
}
