package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/sbp-gateway/internal/domain"
)

// Memory is an in-process store used when no DATABASE_URL is set and in
// tests. Its repositories share one lock so a transition and its note are
// applied together, matching the Postgres transaction.
type Memory struct {
	Orders    *MemoryOrderRepository
	Merchants *MemoryMerchantRepository
	Notes     *MemoryOrderNoteRepository
}

type memState struct {
	mu        sync.Mutex
	orders    map[int64]domain.Order
	merchants map[string]domain.Merchant
	notes     map[int64][]domain.OrderNote
}

func NewMemory() *Memory {
	st := &memState{
		orders:    map[int64]domain.Order{},
		merchants: map[string]domain.Merchant{},
		notes:     map[int64][]domain.OrderNote{},
	}
	return &Memory{
		Orders:    &MemoryOrderRepository{st: st},
		Merchants: &MemoryMerchantRepository{st: st},
		Notes:     &MemoryOrderNoteRepository{st: st},
	}
}

type MemoryOrderRepository struct {
	st *memState
}

func (r *MemoryOrderRepository) Create(_ context.Context, order *domain.Order) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	if _, ok := r.st.orders[order.ID]; ok {
		return fmt.Errorf("Create: %w", domain.ErrOrderExists)
	}
	if _, ok := r.st.merchants[order.MerchantID]; !ok {
		return fmt.Errorf("Create: merchant %q: %w", order.MerchantID, domain.ErrNotFound)
	}
	r.st.orders[order.ID] = copyOrder(*order)
	return nil
}

func (r *MemoryOrderRepository) GetByID(_ context.Context, id int64) (*domain.Order, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	o, ok := r.st.orders[id]
	if !ok {
		return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
	}
	out := copyOrder(o)
	return &out, nil
}

func (r *MemoryOrderRepository) AttachCharge(_ context.Context, id int64, paymentID, checkoutURL string) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	o, ok := r.st.orders[id]
	if !ok {
		return fmt.Errorf("AttachCharge: %w", domain.ErrNotFound)
	}
	if o.PaymentID != nil {
		return fmt.Errorf("AttachCharge: %w", domain.ErrChargeAlreadyAttached)
	}
	o.PaymentID = &paymentID
	o.CheckoutURL = &checkoutURL
	o.UpdatedAt = time.Now().UTC()
	r.st.orders[id] = o
	return nil
}

func (r *MemoryOrderRepository) Transition(_ context.Context, id int64, status domain.OrderStatus, note string) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	o, ok := r.st.orders[id]
	if !ok {
		return fmt.Errorf("Transition: %w", domain.ErrNotFound)
	}
	if o.Status != domain.OrderStatusPending {
		return fmt.Errorf("Transition: %w", domain.ErrOrderFinal)
	}

	now := time.Now().UTC()
	o.Status = status
	o.UpdatedAt = now
	if status == domain.OrderStatusPaid {
		o.PaidAt = &now
	}
	r.st.orders[id] = o
	r.st.notes[id] = append(r.st.notes[id], domain.OrderNote{
		ID:        uuid.New(),
		OrderID:   id,
		Note:      note,
		CreatedAt: now,
	})
	return nil
}

type MemoryMerchantRepository struct {
	st *memState
}

func (r *MemoryMerchantRepository) GetByID(_ context.Context, id string) (*domain.Merchant, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	m, ok := r.st.merchants[id]
	if !ok {
		return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
	}
	return &m, nil
}

func (r *MemoryMerchantRepository) Upsert(_ context.Context, m *domain.Merchant) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	if existing, ok := r.st.merchants[m.ID]; ok {
		m.CreatedAt = existing.CreatedAt
	}
	r.st.merchants[m.ID] = *m
	return nil
}

func (r *MemoryMerchantRepository) UpdateSettings(_ context.Context, m *domain.Merchant) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	existing, ok := r.st.merchants[m.ID]
	if !ok {
		return fmt.Errorf("UpdateSettings: %w", domain.ErrNotFound)
	}
	updated := *m
	updated.PasswordHash = existing.PasswordHash
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = time.Now().UTC()
	r.st.merchants[m.ID] = updated
	return nil
}

type MemoryOrderNoteRepository struct {
	st *memState
}

func (r *MemoryOrderNoteRepository) GetByOrderID(_ context.Context, orderID int64) ([]domain.OrderNote, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	notes := r.st.notes[orderID]
	out := make([]domain.OrderNote, len(notes))
	copy(out, notes)
	return out, nil
}

func copyOrder(o domain.Order) domain.Order {
	if o.PaymentID != nil {
		id := *o.PaymentID
		o.PaymentID = &id
	}
	if o.CheckoutURL != nil {
		u := *o.CheckoutURL
		o.CheckoutURL = &u
	}
	if o.PaidAt != nil {
		t := *o.PaidAt
		o.PaidAt = &t
	}
	return o
}
