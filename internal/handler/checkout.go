package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/josh-kwaku/sbp-gateway/internal/domain"
	"github.com/josh-kwaku/sbp-gateway/internal/logging"
	"github.com/josh-kwaku/sbp-gateway/internal/service"
)

const chargeFailedMessage = "Failed to create Swiss Bitcoin Pay invoice."

type checkoutService interface {
	CreateCharge(ctx context.Context, orderID int64) (*service.CheckoutResult, error)
}

type CheckoutHandler struct {
	checkout checkoutService
}

func NewCheckoutHandler(checkout checkoutService) *CheckoutHandler {
	return &CheckoutHandler{checkout: checkout}
}

func (h *CheckoutHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	orderID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || orderID <= 0 {
		RespondGateway(w, http.StatusBadRequest, GatewayResponse{Result: ResultError, Reason: "Missing order id"})
		return
	}

	res, err := h.checkout.CreateCharge(r.Context(), orderID)
	if err != nil {
		status := checkoutErrorStatus(err)
		if status >= http.StatusInternalServerError {
			log.Error("charge creation failed", "order_id", orderID, "error", err)
		} else {
			log.Warn("charge creation rejected", "order_id", orderID, "error", err)
		}
		RespondGateway(w, status, GatewayResponse{
			Result:   ResultFailure,
			Messages: []string{chargeFailedMessage},
		})
		return
	}

	RespondGateway(w, http.StatusOK, GatewayResponse{Result: ResultSuccess, Redirect: res.Redirect})
}

func checkoutErrorStatus(err error) int {
	var provErr *service.ProviderError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrOrderNotPending),
		errors.Is(err, domain.ErrGatewayDisabled),
		errors.Is(err, domain.ErrMissingAPIKey),
		errors.Is(err, domain.ErrInvalidAmount):
		return http.StatusUnprocessableEntity
	case errors.As(err, &provErr),
		errors.Is(err, domain.ErrChargeAlreadyAttached):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
