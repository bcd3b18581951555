package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/sbp-gateway/internal/domain"
)

const orderColumns = `id, merchant_id, total, currency, status, payment_id,
	checkout_url, return_url, created_at, updated_at, paid_at`

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) Create(ctx context.Context, order *domain.Order) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO orders (
			id, merchant_id, total, currency, status, payment_id,
			checkout_url, return_url, created_at, updated_at, paid_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		order.ID, order.MerchantID, order.Total, order.Currency, order.Status, order.PaymentID,
		order.CheckoutURL, order.ReturnURL, order.CreatedAt, order.UpdatedAt, order.PaidAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("Create: %w", domain.ErrOrderExists)
		}
		if isForeignKeyViolation(err) {
			return fmt.Errorf("Create: merchant %q: %w", order.MerchantID, domain.ErrNotFound)
		}
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *OrderRepository) GetByID(ctx context.Context, id int64) (*domain.Order, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id,
	)
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return o, nil
}

// AttachCharge stores the processor's charge id and checkout URL. The update
// only applies while payment_id is still NULL.
func (r *OrderRepository) AttachCharge(ctx context.Context, id int64, paymentID, checkoutURL string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE orders SET payment_id = $1, checkout_url = $2, updated_at = now()
		WHERE id = $3 AND payment_id IS NULL`,
		paymentID, checkoutURL, id,
	)
	if err != nil {
		return fmt.Errorf("AttachCharge: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("AttachCharge: rows affected: %w", err)
	}
	if rows == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return fmt.Errorf("AttachCharge: %w", err)
		}
		return fmt.Errorf("AttachCharge: %w", domain.ErrChargeAlreadyAttached)
	}
	return nil
}

// Transition moves a pending order to status and records note in the same
// transaction. Orders that already left pending return ErrOrderFinal and
// are left untouched.
func (r *OrderRepository) Transition(ctx context.Context, id int64, status domain.OrderStatus, note string) error {
	now := time.Now().UTC()
	var paidAt *time.Time
	if status == domain.OrderStatusPaid {
		paidAt = &now
	}

	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE orders SET status = $1, paid_at = COALESCE($2, paid_at), updated_at = $3
			WHERE id = $4 AND status = $5`,
			status, paidAt, now, id, domain.OrderStatusPending,
		)
		if err != nil {
			return err
		}

		rows, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if rows == 0 {
			var exists bool
			if err := tx.QueryRowContext(ctx,
				`SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, id,
			).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return domain.ErrNotFound
			}
			return domain.ErrOrderFinal
		}

		return insertOrderNote(ctx, tx, &domain.OrderNote{
			ID:        uuid.New(),
			OrderID:   id,
			Note:      note,
			CreatedAt: now,
		})
	})
	if err != nil {
		return fmt.Errorf("Transition: %w", err)
	}
	return nil
}

func scanOrder(s scanner) (*domain.Order, error) {
	var o domain.Order
	err := s.Scan(
		&o.ID, &o.MerchantID, &o.Total, &o.Currency, &o.Status, &o.PaymentID,
		&o.CheckoutURL, &o.ReturnURL, &o.CreatedAt, &o.UpdatedAt, &o.PaidAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}
