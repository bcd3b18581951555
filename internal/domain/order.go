package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusCancelled OrderStatus = "cancelled"
)

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusPaid || s == OrderStatusCancelled
}

type Order struct {
	ID          int64
	MerchantID  string
	Total       decimal.Decimal
	Currency    string
	Status      OrderStatus
	PaymentID   *string
	CheckoutURL *string
	ReturnURL   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	PaidAt      *time.Time
}

func (o *Order) HasCharge() bool {
	return o.PaymentID != nil && *o.PaymentID != ""
}

// NormalizeCurrency upper-cases an ISO 4217 style code and reports whether
// it is three ASCII letters.
func NormalizeCurrency(code string) (string, bool) {
	c := strings.ToUpper(strings.TrimSpace(code))
	if len(c) != 3 {
		return "", false
	}
	for _, r := range c {
		if r < 'A' || r > 'Z' {
			return "", false
		}
	}
	return c, true
}
