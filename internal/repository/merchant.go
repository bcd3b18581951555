package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/josh-kwaku/sbp-gateway/internal/domain"
)

const merchantColumns = `id, store_name, enabled, api_key, secret_key, title,
	description, on_chain_allowed, password_hash, created_at, updated_at`

type MerchantRepository struct {
	db *sql.DB
}

func NewMerchantRepository(db *sql.DB) *MerchantRepository {
	return &MerchantRepository{db: db}
}

func (r *MerchantRepository) GetByID(ctx context.Context, id string) (*domain.Merchant, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+merchantColumns+` FROM merchants WHERE id = $1`, id,
	)
	m, err := scanMerchant(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return m, nil
}

// Upsert inserts the merchant or overwrites every setting of an existing one.
func (r *MerchantRepository) Upsert(ctx context.Context, m *domain.Merchant) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO merchants (`+merchantColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			store_name = EXCLUDED.store_name,
			enabled = EXCLUDED.enabled,
			api_key = EXCLUDED.api_key,
			secret_key = EXCLUDED.secret_key,
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			on_chain_allowed = EXCLUDED.on_chain_allowed,
			password_hash = EXCLUDED.password_hash,
			updated_at = EXCLUDED.updated_at`,
		m.ID, m.StoreName, m.Enabled, m.APIKey, m.SecretKey, m.Title,
		m.Description, m.OnChainAllowed, m.PasswordHash, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("Upsert: %w", err)
	}
	return nil
}

func (r *MerchantRepository) UpdateSettings(ctx context.Context, m *domain.Merchant) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE merchants SET store_name = $1, enabled = $2, api_key = $3, secret_key = $4,
			title = $5, description = $6, on_chain_allowed = $7, updated_at = now()
		WHERE id = $8`,
		m.StoreName, m.Enabled, m.APIKey, m.SecretKey,
		m.Title, m.Description, m.OnChainAllowed, m.ID,
	)
	if err != nil {
		return fmt.Errorf("UpdateSettings: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdateSettings: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("UpdateSettings: %w", domain.ErrNotFound)
	}
	return nil
}

func scanMerchant(s scanner) (*domain.Merchant, error) {
	var m domain.Merchant
	err := s.Scan(
		&m.ID, &m.StoreName, &m.Enabled, &m.APIKey, &m.SecretKey, &m.Title,
		&m.Description, &m.OnChainAllowed, &m.PasswordHash, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}
