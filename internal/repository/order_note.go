package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/josh-kwaku/sbp-gateway/internal/domain"
)

const orderNoteColumns = `id, order_id, note, created_at`

type OrderNoteRepository struct {
	db *sql.DB
}

func NewOrderNoteRepository(db *sql.DB) *OrderNoteRepository {
	return &OrderNoteRepository{db: db}
}

func (r *OrderNoteRepository) GetByOrderID(ctx context.Context, orderID int64) ([]domain.OrderNote, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+orderNoteColumns+` FROM order_notes
		WHERE order_id = $1 ORDER BY created_at`, orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("GetByOrderID: %w", err)
	}
	defer rows.Close()

	var notes []domain.OrderNote
	for rows.Next() {
		n, err := scanOrderNote(rows)
		if err != nil {
			return nil, fmt.Errorf("GetByOrderID: scan: %w", err)
		}
		notes = append(notes, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("GetByOrderID: rows: %w", err)
	}
	return notes, nil
}

func insertOrderNote(ctx context.Context, tx *sql.Tx, note *domain.OrderNote) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO order_notes (id, order_id, note, created_at) VALUES ($1, $2, $3, $4)`,
		note.ID, note.OrderID, note.Note, note.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert note: %w", err)
	}
	return nil
}

func scanOrderNote(s scanner) (*domain.OrderNote, error) {
	var n domain.OrderNote
	if err := s.Scan(&n.ID, &n.OrderID, &n.Note, &n.CreatedAt); err != nil {
		return nil, err
	}
	return &n, nil
}
