package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	NotePaymentDone    = "Payment done. Purchased goods/services can be securely delivered to the customer."
	NotePaymentExpired = "Payment expired."
)

type OrderNote struct {
	ID        uuid.UUID
	OrderID   int64
	Note      string
	CreatedAt time.Time
}
