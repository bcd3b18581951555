package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/josh-kwaku/sbp-gateway/internal/domain"
	"github.com/josh-kwaku/sbp-gateway/internal/logging"
	"github.com/josh-kwaku/sbp-gateway/internal/metrics"
)

const tracerName = "github.com/josh-kwaku/sbp-gateway/internal/service"

type CheckoutResult struct {
	Redirect string
	// Reused is set when the order already carried a charge and no new
	// invoice was requested.
	Reused bool
}

// CheckoutService creates processor charges for pending orders.
type CheckoutService struct {
	orders    orderStore
	merchants merchantStore
	provider  chargeCreator
	timeout   time.Duration
	tracer    trace.Tracer
}

func NewCheckoutService(orders orderStore, merchants merchantStore, provider chargeCreator, timeout time.Duration) *CheckoutService {
	return &CheckoutService{
		orders:    orders,
		merchants: merchants,
		provider:  provider,
		timeout:   timeout,
		tracer:    otel.Tracer(tracerName),
	}
}

func (s *CheckoutService) CreateCharge(ctx context.Context, orderID int64) (*CheckoutResult, error) {
	ctx, span := s.tracer.Start(ctx, "CheckoutService.CreateCharge",
		trace.WithAttributes(attribute.Int64("order.id", orderID)))
	defer span.End()

	res, outcome, err := s.createCharge(ctx, orderID)
	metrics.ChargesTotal.WithLabelValues(outcome).Inc()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		return nil, fmt.Errorf("CreateCharge: %w", err)
	}
	return res, nil
}

func (s *CheckoutService) createCharge(ctx context.Context, orderID int64) (*CheckoutResult, string, error) {
	ctx, log := logging.With(ctx, "order_id", orderID)

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, "rejected", err
	}
	if order.Status != domain.OrderStatusPending {
		log.Info("checkout rejected: order not pending", "status", order.Status)
		return nil, "rejected", domain.ErrOrderNotPending
	}
	if !order.Total.IsPositive() {
		return nil, "rejected", domain.ErrInvalidAmount
	}

	merchant, err := s.merchants.GetByID(ctx, order.MerchantID)
	if err != nil {
		return nil, "config_error", fmt.Errorf("merchant %q: %w", order.MerchantID, err)
	}
	ctx, log = logging.With(ctx, "merchant_id", merchant.ID)

	if !merchant.Enabled {
		log.Warn("checkout rejected: gateway disabled for merchant")
		return nil, "config_error", domain.ErrGatewayDisabled
	}
	if merchant.APIKey == "" {
		log.Error("checkout rejected: merchant api key not configured")
		return nil, "config_error", domain.ErrMissingAPIKey
	}

	if order.HasCharge() && order.CheckoutURL != nil {
		log.Info("order already has a charge, reusing checkout url", "payment_id", *order.PaymentID)
		return &CheckoutResult{Redirect: *order.CheckoutURL, Reused: true}, "reused", nil
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	charge, err := s.provider.CreateCharge(callCtx, ChargeRequest{
		Amount:    order.Total,
		Currency:  order.Currency,
		Memo:      BuildMemo(merchant.StoreName, order.ID, order.Total, order.Currency),
		OrderID:   order.ID,
		ReturnURL: order.ReturnURL,
		OnChain:   merchant.OnChainAllowed,
		APIKey:    merchant.APIKey,
	})
	if err != nil {
		var perr *ProviderError
		if errors.As(err, &perr) {
			log.Error("Swiss Bitcoin Pay API failure",
				"status", perr.StatusCode,
				"body", perr.Body,
				"error", perr.Err,
			)
		} else {
			log.Error("Swiss Bitcoin Pay API failure", "error", err)
		}
		return nil, "upstream_error", err
	}

	if err := s.orders.AttachCharge(ctx, order.ID, charge.ID, charge.CheckoutURL); err != nil {
		log.Error("failed to attach charge to order", "payment_id", charge.ID, "error", err)
		return nil, "store_error", err
	}

	log.Info("charge created", "payment_id", charge.ID)
	return &CheckoutResult{Redirect: charge.CheckoutURL}, "success", nil
}

// BuildMemo renders the invoice memo, e.g. "Acme Order #42 Total=10.00CHF".
func BuildMemo(storeName string, orderID int64, total decimal.Decimal, currency string) string {
	var b strings.Builder
	if storeName != "" {
		b.WriteString(storeName)
		b.WriteByte(' ')
	}
	b.WriteString("Order #")
	b.WriteString(strconv.FormatInt(orderID, 10))
	b.WriteString(" Total=")
	b.WriteString(total.StringFixed(2))
	b.WriteString(currency)
	return b.String()
}
