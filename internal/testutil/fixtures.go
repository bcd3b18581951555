package testutil

import (
	"database/sql"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/josh-kwaku/sbp-gateway/internal/domain"
)

const (
	TestMerchantPassword = "password123"
	TestSecretKey        = "test-secret-key"
)

// SeedMerchant inserts an enabled merchant with API and secret keys set and
// TestMerchantPassword as its admin password.
func SeedMerchant(t *testing.T, db *sql.DB, id string) *domain.Merchant {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(TestMerchantPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}

	m := domain.NewMerchant(id)
	m.StoreName = "Test Store"
	m.Enabled = true
	m.APIKey = "key-" + id
	m.SecretKey = TestSecretKey
	m.PasswordHash = string(hash)

	_, err = db.Exec(
		`INSERT INTO merchants (id, store_name, enabled, api_key, secret_key, title, description,
		                        on_chain_allowed, password_hash, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		m.ID, m.StoreName, m.Enabled, m.APIKey, m.SecretKey, m.Title, m.Description,
		m.OnChainAllowed, m.PasswordHash, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		t.Fatalf("seed merchant %s: %v", id, err)
	}
	return m
}

func SeedOrder(t *testing.T, db *sql.DB, merchantID string, id int64, total string) *domain.Order {
	t.Helper()

	now := time.Now().UTC()
	o := &domain.Order{
		ID:         id,
		MerchantID: merchantID,
		Total:      decimal.RequireFromString(total),
		Currency:   "CHF",
		Status:     domain.OrderStatusPending,
		ReturnURL:  "https://shop.test/thanks",
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	_, err := db.Exec(
		`INSERT INTO orders (id, merchant_id, total, currency, status, return_url, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		o.ID, o.MerchantID, o.Total, o.Currency, o.Status, o.ReturnURL, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		t.Fatalf("seed order %d: %v", id, err)
	}
	return o
}

func GetOrderStatus(t *testing.T, db *sql.DB, orderID int64) domain.OrderStatus {
	t.Helper()

	var status string
	err := db.QueryRow(`SELECT status FROM orders WHERE id = $1`, orderID).Scan(&status)
	if err != nil {
		t.Fatalf("get order status %d: %v", orderID, err)
	}
	return domain.OrderStatus(status)
}

func CountOrderNotes(t *testing.T, db *sql.DB, orderID int64) int {
	t.Helper()

	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM order_notes WHERE order_id = $1`, orderID).Scan(&count)
	if err != nil {
		t.Fatalf("count order notes for order %d: %v", orderID, err)
	}
	return count
}
