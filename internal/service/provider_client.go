package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/josh-kwaku/sbp-gateway/internal/domain"
	"github.com/josh-kwaku/sbp-gateway/internal/logging"
	"github.com/josh-kwaku/sbp-gateway/internal/metrics"
)

const (
	apiKeyHeader      = "api-key"
	maxErrorBodyBytes = 4096
	// invoice lifetime requested from the processor, in minutes
	chargeDelayMinutes = 60
)

var errMalformedCharge = errors.New("charge response missing id or checkoutUrl")

// ProviderError describes a failed charge creation. StatusCode is zero when
// no HTTP response was received.
type ProviderError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("payment api request failed: %v", e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("payment api status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("payment api unexpected status %d", e.StatusCode)
}

func (e *ProviderError) Unwrap() error { return e.Err }

type ChargeRequest struct {
	Amount    decimal.Decimal
	Currency  string
	Memo      string
	OrderID   int64
	ReturnURL string
	OnChain   bool
	APIKey    string
}

type Charge struct {
	ID          string
	CheckoutURL string
}

type ProviderClient struct {
	baseURL     string
	callbackURL string
	httpClient  *http.Client
}

func NewProviderClient(baseURL, callbackURL string, timeout time.Duration) *ProviderClient {
	return &ProviderClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		callbackURL: strings.TrimRight(callbackURL, "/"),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type chargePayload struct {
	Title             string            `json:"title"`
	Description       string            `json:"description"`
	Amount            json.Number       `json:"amount"`
	Unit              string            `json:"unit"`
	OnChain           bool              `json:"onChain"`
	Delay             int               `json:"delay"`
	Extra             map[string]string `json:"extra"`
	Webhook           webhookTarget     `json:"webhook"`
	RedirectAfterPaid string            `json:"redirectAfterPaid,omitempty"`
}

type webhookTarget struct {
	URL string `json:"url"`
}

type chargeResponse struct {
	ID          string `json:"id"`
	CheckoutURL string `json:"checkoutUrl"`
}

// CallbackURL is the webhook address the processor is told to notify for orderID.
func (c *ProviderClient) CallbackURL(orderID int64) string {
	return c.callbackURL + "/" + strconv.FormatInt(orderID, 10)
}

func (c *ProviderClient) CreateCharge(ctx context.Context, req ChargeRequest) (*Charge, error) {
	log := logging.FromContext(ctx)

	if req.APIKey == "" {
		return nil, fmt.Errorf("CreateCharge: %w", domain.ErrMissingAPIKey)
	}

	orderID := strconv.FormatInt(req.OrderID, 10)
	payload := chargePayload{
		Title:             req.Memo,
		Description:       req.Memo,
		Amount:            json.Number(req.Amount.String()),
		Unit:              req.Currency,
		OnChain:           req.OnChain,
		Delay:             chargeDelayMinutes,
		Extra:             map[string]string{"orderId": orderID},
		Webhook:           webhookTarget{URL: c.CallbackURL(req.OrderID)},
		RedirectAfterPaid: req.ReturnURL,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("CreateCharge: marshal: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/checkout", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("CreateCharge: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(apiKeyHeader, req.APIKey)

	start := time.Now()
	log.Info("provider request sent", "provider", "swiss_bitcoin_pay", "order_id", req.OrderID)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		metrics.ProviderLatency.WithLabelValues("error").Observe(time.Since(start).Seconds())
		return nil, fmt.Errorf("CreateCharge: %w", &ProviderError{Err: err})
	}
	defer resp.Body.Close()

	metrics.ProviderLatency.WithLabelValues(strconv.Itoa(resp.StatusCode)).Observe(time.Since(start).Seconds())
	log.Info("provider response received",
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("CreateCharge: %w", &ProviderError{StatusCode: resp.StatusCode, Err: err})
	}

	if resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("CreateCharge: %w", &ProviderError{
			StatusCode: resp.StatusCode,
			Body:       truncate(respBody, maxErrorBodyBytes),
		})
	}

	var out chargeResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("CreateCharge: %w", &ProviderError{
			StatusCode: resp.StatusCode,
			Body:       truncate(respBody, maxErrorBodyBytes),
			Err:        fmt.Errorf("decode: %w", err),
		})
	}
	if out.ID == "" || out.CheckoutURL == "" {
		return nil, fmt.Errorf("CreateCharge: %w", &ProviderError{
			StatusCode: resp.StatusCode,
			Body:       truncate(respBody, maxErrorBodyBytes),
			Err:        errMalformedCharge,
		})
	}

	return &Charge{ID: out.ID, CheckoutURL: out.CheckoutURL}, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n])
	}
	return string(b)
}
