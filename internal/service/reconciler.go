package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/josh-kwaku/sbp-gateway/internal/domain"
	"github.com/josh-kwaku/sbp-gateway/internal/logging"
	"github.com/josh-kwaku/sbp-gateway/internal/metrics"
)

const (
	DetailsOrderExpired  = "Order expired."
	DetailsEventReceived = "Event received."
)

// WebhookEvent is one inbound delivery. Body must be the raw request bytes;
// Signature is the unparsed signature header value.
type WebhookEvent struct {
	OrderID   int64
	Body      []byte
	Signature string
}

type Outcome string

const (
	OutcomePaid         Outcome = "paid"
	OutcomeExpired      Outcome = "expired"
	OutcomeIgnored      Outcome = "ignored"
	OutcomeDuplicate    Outcome = "duplicate"
	OutcomeAlreadyFinal Outcome = "already_final"
)

type WebhookResult struct {
	Outcome  Outcome
	Redirect string
	Details  string
	// Verified is false when the merchant has no secret key and the
	// delivery was trusted without a signature check.
	Verified bool
}

type webhookPayload struct {
	IsPaid    bool `json:"isPaid"`
	IsExpired bool `json:"isExpired"`
}

// Reconciler applies payment status callbacks to orders.
type Reconciler struct {
	orders     orderStore
	merchants  merchantStore
	deliveries deliveryGuard
	tracer     trace.Tracer
}

func NewReconciler(orders orderStore, merchants merchantStore, deliveries deliveryGuard) *Reconciler {
	return &Reconciler{
		orders:     orders,
		merchants:  merchants,
		deliveries: deliveries,
		tracer:     otel.Tracer(tracerName),
	}
}

func (r *Reconciler) HandleWebhook(ctx context.Context, ev WebhookEvent) (*WebhookResult, error) {
	ctx, span := r.tracer.Start(ctx, "Reconciler.HandleWebhook",
		trace.WithAttributes(attribute.Int64("order.id", ev.OrderID)))
	defer span.End()

	res, err := r.handle(ctx, ev)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "webhook rejected")
		return nil, fmt.Errorf("HandleWebhook: %w", err)
	}
	span.SetAttributes(attribute.String("webhook.outcome", string(res.Outcome)))
	metrics.WebhooksTotal.WithLabelValues(string(res.Outcome)).Inc()
	return res, nil
}

func (r *Reconciler) handle(ctx context.Context, ev WebhookEvent) (*WebhookResult, error) {
	ctx, log := logging.With(ctx, "order_id", ev.OrderID)

	order, err := r.orders.GetByID(ctx, ev.OrderID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			log.Warn("webhook for unknown order")
			metrics.WebhooksTotal.WithLabelValues("unknown_order").Inc()
		}
		return nil, err
	}

	merchant, err := r.merchants.GetByID(ctx, order.MerchantID)
	if err != nil {
		log.Error("webhook order references missing merchant", "merchant_id", order.MerchantID, "error", err)
		return nil, fmt.Errorf("merchant %q: %w", order.MerchantID, err)
	}
	ctx, log = logging.With(ctx, "merchant_id", merchant.ID)

	verified := merchant.VerifiesSignatures()
	if verified {
		if !VerifySignature(merchant.SecretKey, ev.Body, ParseSignatureHeader(ev.Signature)) {
			log.Warn("webhook signature verification failed")
			metrics.WebhooksTotal.WithLabelValues("bad_signature").Inc()
			return nil, domain.ErrInvalidSignature
		}
	} else {
		log.Warn("webhook signature NOT verified: merchant has no secret key configured, trusting delivery")
		metrics.WebhooksUnverified.WithLabelValues(merchant.ID).Inc()
	}

	var payload webhookPayload
	if err := json.Unmarshal(ev.Body, &payload); err != nil {
		log.Warn("malformed webhook payload, acknowledging without action", "error", err)
	}

	var (
		target  domain.OrderStatus
		note    string
		outcome Outcome
	)
	switch {
	case payload.IsPaid:
		target, note, outcome = domain.OrderStatusPaid, domain.NotePaymentDone, OutcomePaid
	case payload.IsExpired:
		target, note, outcome = domain.OrderStatusCancelled, domain.NotePaymentExpired, OutcomeExpired
	default:
		log.Info("webhook event not actioned: neither isPaid nor isExpired set", "status", order.Status)
		return &WebhookResult{Outcome: OutcomeIgnored, Details: DetailsEventReceived, Verified: verified}, nil
	}

	key := deliveryKey(order.ID, ev.Body)
	seen, err := r.deliveries.Seen(ctx, key)
	if err != nil {
		// the status CAS below still prevents a double transition
		log.Warn("delivery guard unavailable", "error", err)
	}
	// the guard only short-circuits once the order has left pending; a
	// pending order means an earlier attempt never committed
	if seen && order.Status.IsTerminal() {
		log.Info("duplicate webhook delivery", "status", order.Status)
		return stateResult(order, OutcomeDuplicate, verified), nil
	}
	if seen {
		log.Warn("redelivery for pending order, retrying transition")
	}

	if err := r.orders.Transition(ctx, order.ID, target, note); err != nil {
		if errors.Is(err, domain.ErrOrderFinal) {
			return r.alreadyFinal(ctx, order.ID, target, verified)
		}
		if ferr := r.deliveries.Forget(context.WithoutCancel(ctx), key); ferr != nil {
			log.Warn("failed to release delivery guard", "error", ferr)
		}
		log.Error("failed to apply order transition", "target", target, "error", err)
		return nil, err
	}

	metrics.OrdersTransitioned.WithLabelValues(string(target)).Inc()
	res := &WebhookResult{Outcome: outcome, Verified: verified}
	switch target {
	case domain.OrderStatusPaid:
		log.Info("payment complete", "payment_id", derefOr(order.PaymentID, ""))
		res.Redirect = order.ReturnURL
	case domain.OrderStatusCancelled:
		log.Info("order cancelled: payment expired", "payment_id", derefOr(order.PaymentID, ""))
		res.Details = DetailsOrderExpired
	}
	return res, nil
}

func (r *Reconciler) alreadyFinal(ctx context.Context, orderID int64, target domain.OrderStatus, verified bool) (*WebhookResult, error) {
	log := logging.FromContext(ctx)

	order, err := r.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if target == domain.OrderStatusPaid && order.Status == domain.OrderStatusCancelled {
		log.Warn("payment reported for cancelled order, manual review required", "payment_id", derefOr(order.PaymentID, ""))
	} else {
		log.Info("order already in terminal state, skipping", "status", order.Status)
	}
	return stateResult(order, OutcomeAlreadyFinal, verified), nil
}

// stateResult answers a delivery that did not change the order from the
// order's current status.
func stateResult(order *domain.Order, outcome Outcome, verified bool) *WebhookResult {
	res := &WebhookResult{Outcome: outcome, Verified: verified}
	switch order.Status {
	case domain.OrderStatusPaid:
		res.Redirect = order.ReturnURL
	case domain.OrderStatusCancelled:
		res.Details = DetailsOrderExpired
	default:
		res.Details = DetailsEventReceived
	}
	return res
}

func deliveryKey(orderID int64, body []byte) string {
	h := sha256.New()
	h.Write([]byte(strconv.FormatInt(orderID, 10)))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

func derefOr(s *string, def string) string {
	if s == nil {
		return def
	}
	return *s
}
