// Command mock-provider is a local stand-in for the Swiss Bitcoin Pay API.
// It issues charges and, on request, sends signed payment webhooks to the
// callback URL each charge was created with.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	env "github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/sbp-gateway/internal/logging"
	"github.com/josh-kwaku/sbp-gateway/internal/service"
)

type config struct {
	Port            int    `env:"PORT" envDefault:"8081"`
	AppEnv          string `env:"APP_ENV" envDefault:"development"`
	PublicURL       string `env:"PUBLIC_URL" envDefault:"http://localhost:8081"`
	APIKey          string `env:"MOCK_API_KEY"`
	SecretKey       string `env:"MOCK_SECRET_KEY" envDefault:"test-secret-key"`
	SignatureHeader string `env:"WEBHOOK_SIGNATURE_HEADER" envDefault:"sbp-sig"`
}

type checkoutRequest struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Unit        string          `json:"unit"`
	OnChain     bool            `json:"onChain"`
	Delay       int             `json:"delay"`
	Extra       struct {
		OrderID string `json:"orderId"`
	} `json:"extra"`
	Webhook struct {
		URL string `json:"url"`
	} `json:"webhook"`
	RedirectAfterPaid string `json:"redirectAfterPaid"`
}

type charge struct {
	ID          string          `json:"id"`
	CheckoutURL string          `json:"checkoutUrl"`
	Title       string          `json:"title"`
	Amount      decimal.Decimal `json:"amount"`
	Unit        string          `json:"unit"`
	OrderID     string          `json:"orderId"`
	WebhookURL  string          `json:"-"`
	CreatedAt   time.Time       `json:"createdAt"`
}

type provider struct {
	cfg    config
	client *http.Client

	mu      sync.Mutex
	charges map[string]*charge
}

func main() {
	cfg, err := env.ParseAs[config]()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logging.Init("mock-provider", "info", cfg.AppEnv)

	p := &provider{
		cfg:     cfg,
		client:  &http.Client{Timeout: 10 * time.Second},
		charges: make(map[string]*charge),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("POST /checkout", p.createCharge)
	mux.HandleFunc("GET /pay/{id}", p.getCharge)
	mux.HandleFunc("POST /simulate/{id}/{event}", p.simulate)

	addr := fmt.Sprintf(":%d", cfg.Port)
	slog.Info("mock provider started", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func (p *provider) createCharge(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get("api-key")
	if key == "" || (p.cfg.APIKey != "" && key != p.cfg.APIKey) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid api key"})
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	if !req.Amount.IsPositive() || req.Unit == "" || req.Webhook.URL == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "amount, unit and webhook.url are required"})
		return
	}

	id := uuid.NewString()
	c := &charge{
		ID:          id,
		CheckoutURL: p.cfg.PublicURL + "/pay/" + id,
		Title:       req.Title,
		Amount:      req.Amount,
		Unit:        req.Unit,
		OrderID:     req.Extra.OrderID,
		WebhookURL:  req.Webhook.URL,
		CreatedAt:   time.Now().UTC(),
	}

	p.mu.Lock()
	p.charges[id] = c
	p.mu.Unlock()

	slog.Info("charge created", "charge_id", id, "order_id", c.OrderID, "amount", c.Amount.String(), "unit", c.Unit)
	writeJSON(w, http.StatusCreated, map[string]string{"id": c.ID, "checkoutUrl": c.CheckoutURL})
}

func (p *provider) getCharge(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	c, ok := p.charges[r.PathValue("id")]
	p.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "charge not found"})
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// simulate delivers a signed paid or expired event for a charge and relays
// the gateway's answer.
func (p *provider) simulate(w http.ResponseWriter, r *http.Request) {
	event := r.PathValue("event")
	if event != "paid" && event != "expired" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "event must be paid or expired"})
		return
	}

	p.mu.Lock()
	c, ok := p.charges[r.PathValue("id")]
	p.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "charge not found"})
		return
	}

	body, err := json.Marshal(map[string]any{
		"id":        c.ID,
		"isPaid":    event == "paid",
		"isExpired": event == "expired",
		"amount":    c.Amount,
		"unit":      c.Unit,
	})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, c.WebhookURL, bytes.NewReader(body))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(p.cfg.SignatureHeader, "hmac="+service.Sign(p.cfg.SecretKey, body))

	resp, err := p.client.Do(req)
	if err != nil {
		slog.Error("webhook delivery failed", "charge_id", c.ID, "url", c.WebhookURL, "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	defer resp.Body.Close()

	answer, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	slog.Info("webhook delivered", "charge_id", c.ID, "event", event, "status", resp.StatusCode)

	writeJSON(w, http.StatusOK, map[string]any{
		"webhook_status": resp.StatusCode,
		"webhook_body":   json.RawMessage(asJSON(answer)),
	})
}

func asJSON(b []byte) []byte {
	if !json.Valid(b) {
		quoted, _ := json.Marshal(string(b))
		return quoted
	}
	return b
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
