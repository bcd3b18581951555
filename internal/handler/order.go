package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/sbp-gateway/internal/domain"
	"github.com/josh-kwaku/sbp-gateway/internal/logging"
)

type orderRepository interface {
	Create(ctx context.Context, order *domain.Order) error
	GetByID(ctx context.Context, id int64) (*domain.Order, error)
}

type orderNoteReader interface {
	GetByOrderID(ctx context.Context, orderID int64) ([]domain.OrderNote, error)
}

type OrderHandler struct {
	orders orderRepository
	notes  orderNoteReader
}

func NewOrderHandler(orders orderRepository, notes orderNoteReader) *OrderHandler {
	return &OrderHandler{orders: orders, notes: notes}
}

type createOrderRequest struct {
	ID        int64           `json:"id"`
	Total     decimal.Decimal `json:"total"`
	Currency  string          `json:"currency"`
	ReturnURL string          `json:"return_url"`
}

func (r createOrderRequest) Validate() []FieldError {
	var errs []FieldError
	if r.ID <= 0 {
		errs = append(errs, FieldError{Field: "id", Message: "must be a positive integer"})
	}
	if !r.Total.IsPositive() {
		errs = append(errs, FieldError{Field: "total", Message: "must be greater than zero"})
	}
	if _, ok := domain.NormalizeCurrency(r.Currency); !ok {
		errs = append(errs, FieldError{Field: "currency", Message: "must be a three letter code"})
	}
	if r.ReturnURL != "" {
		if u, err := url.Parse(r.ReturnURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, FieldError{Field: "return_url", Message: "must be an absolute URL"})
		}
	}
	return errs
}

type orderNoteDTO struct {
	Note      string    `json:"note"`
	CreatedAt time.Time `json:"created_at"`
}

type orderDTO struct {
	ID          int64          `json:"id"`
	MerchantID  string         `json:"merchant_id"`
	Total       string         `json:"total"`
	Currency    string         `json:"currency"`
	Status      string         `json:"status"`
	PaymentID   *string        `json:"payment_id"`
	CheckoutURL *string        `json:"checkout_url"`
	ReturnURL   string         `json:"return_url"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	PaidAt      *time.Time     `json:"paid_at"`
	Notes       []orderNoteDTO `json:"notes,omitempty"`
}

func toOrderDTO(o *domain.Order) orderDTO {
	return orderDTO{
		ID:          o.ID,
		MerchantID:  o.MerchantID,
		Total:       o.Total.StringFixed(2),
		Currency:    o.Currency,
		Status:      string(o.Status),
		PaymentID:   o.PaymentID,
		CheckoutURL: o.CheckoutURL,
		ReturnURL:   o.ReturnURL,
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
		PaidAt:      o.PaidAt,
	}
}

func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	merchantID, appErr := merchantFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	currency, _ := domain.NormalizeCurrency(req.Currency)
	now := time.Now().UTC()
	order := &domain.Order{
		ID:         req.ID,
		MerchantID: merchantID,
		Total:      req.Total,
		Currency:   currency,
		Status:     domain.OrderStatusPending,
		ReturnURL:  req.ReturnURL,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := h.orders.Create(r.Context(), order); err != nil {
		logging.FromContext(r.Context()).Warn("failed to create order", "order_id", req.ID, "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusCreated, toOrderDTO(order))
}

func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	merchantID, appErr := merchantFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	orderID, err := strconv.ParseInt(r.PathValue("orderId"), 10, 64)
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	order, err := h.orders.GetByID(r.Context(), orderID)
	if err != nil {
		RespondDomainError(w, err)
		return
	}
	if order.MerchantID != merchantID {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	notes, err := h.notes.GetByOrderID(r.Context(), orderID)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to load order notes", "order_id", orderID, "error", err)
		RespondDomainError(w, err)
		return
	}

	dto := toOrderDTO(order)
	dto.Notes = make([]orderNoteDTO, len(notes))
	for i, n := range notes {
		dto.Notes[i] = orderNoteDTO{Note: n.Note, CreatedAt: n.CreatedAt}
	}

	RespondSuccess(w, http.StatusOK, dto)
}
