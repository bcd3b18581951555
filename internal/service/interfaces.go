package service

import (
	"context"

	"github.com/josh-kwaku/sbp-gateway/internal/domain"
)

type orderStore interface {
	GetByID(ctx context.Context, id int64) (*domain.Order, error)
	AttachCharge(ctx context.Context, id int64, paymentID, checkoutURL string) error
	Transition(ctx context.Context, id int64, status domain.OrderStatus, note string) error
}

type merchantStore interface {
	GetByID(ctx context.Context, id string) (*domain.Merchant, error)
}

type chargeCreator interface {
	CreateCharge(ctx context.Context, req ChargeRequest) (*Charge, error)
}

type deliveryGuard interface {
	Seen(ctx context.Context, key string) (bool, error)
	Forget(ctx context.Context, key string) error
}
