package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/josh-kwaku/sbp-gateway/internal/domain"
	"github.com/josh-kwaku/sbp-gateway/internal/logging"
	"github.com/josh-kwaku/sbp-gateway/internal/service"
)

const maxWebhookBody = 1 << 20

type reconciler interface {
	HandleWebhook(ctx context.Context, ev service.WebhookEvent) (*service.WebhookResult, error)
}

type WebhookHandler struct {
	reconciler      reconciler
	signatureHeader string
}

func NewWebhookHandler(r reconciler, signatureHeader string) *WebhookHandler {
	return &WebhookHandler{reconciler: r, signatureHeader: signatureHeader}
}

func (h *WebhookHandler) PaymentComplete(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	raw := r.PathValue("orderId")
	orderID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || orderID <= 0 {
		log.Warn("webhook without a usable order id", "order_id", raw)
		RespondGateway(w, http.StatusBadRequest, GatewayResponse{Result: ResultError, Reason: "Missing order id"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		log.Error("failed to read webhook body", "order_id", orderID, "error", err)
		RespondGateway(w, http.StatusBadRequest, GatewayResponse{Result: ResultError, Reason: "Unreadable body"})
		return
	}

	res, err := h.reconciler.HandleWebhook(r.Context(), service.WebhookEvent{
		OrderID:   orderID,
		Body:      body,
		Signature: r.Header.Get(h.signatureHeader),
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			RespondGateway(w, http.StatusNotFound, GatewayResponse{Result: ResultError, Reason: "Order not found"})
		case errors.Is(err, domain.ErrInvalidSignature):
			RespondGateway(w, http.StatusUnauthorized, GatewayResponse{Result: ResultError, Reason: "Wrong signature key"})
		default:
			log.Error("webhook processing failed", "order_id", orderID, "error", err)
			RespondGateway(w, http.StatusInternalServerError, GatewayResponse{Result: ResultError, Reason: "Internal error"})
		}
		return
	}

	RespondGateway(w, http.StatusOK, GatewayResponse{
		Result:   ResultSuccess,
		Redirect: res.Redirect,
		Details:  res.Details,
	})
}
