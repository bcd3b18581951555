package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/sbp-gateway/internal/domain"
	"github.com/josh-kwaku/sbp-gateway/internal/testutil"
)

type stores struct {
	orders interface {
		Create(ctx context.Context, order *domain.Order) error
		GetByID(ctx context.Context, id int64) (*domain.Order, error)
		AttachCharge(ctx context.Context, id int64, paymentID, checkoutURL string) error
		Transition(ctx context.Context, id int64, status domain.OrderStatus, note string) error
	}
	merchants interface {
		GetByID(ctx context.Context, id string) (*domain.Merchant, error)
		Upsert(ctx context.Context, m *domain.Merchant) error
		UpdateSettings(ctx context.Context, m *domain.Merchant) error
	}
	notes interface {
		GetByOrderID(ctx context.Context, orderID int64) ([]domain.OrderNote, error)
	}
}

func memoryStores(t *testing.T) stores {
	t.Helper()
	mem := NewMemory()
	return stores{orders: mem.Orders, merchants: mem.Merchants, notes: mem.Notes}
}

func postgresStores(t *testing.T) stores {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	db := testutil.SetupTestDB(t)
	return stores{
		orders:    NewOrderRepository(db),
		merchants: NewMerchantRepository(db),
		notes:     NewOrderNoteRepository(db),
	}
}

var backends = []struct {
	name  string
	setup func(t *testing.T) stores
}{
	{name: "memory", setup: memoryStores},
	{name: "postgres", setup: postgresStores},
}

func seed(t *testing.T, s stores, orderID int64) {
	t.Helper()
	ctx := context.Background()

	m := domain.NewMerchant("acme")
	m.Enabled = true
	m.APIKey = "key-123"
	m.PasswordHash = "hash"
	require.NoError(t, s.merchants.Upsert(ctx, m))

	now := time.Now().UTC().Truncate(time.Microsecond)
	require.NoError(t, s.orders.Create(ctx, &domain.Order{
		ID:         orderID,
		MerchantID: "acme",
		Total:      decimal.RequireFromString("10.00"),
		Currency:   "CHF",
		Status:     domain.OrderStatusPending,
		ReturnURL:  "https://shop.test/thanks",
		CreatedAt:  now,
		UpdatedAt:  now,
	}))
}

func TestOrderStore_CreateAndGet(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			s := b.setup(t)
			ctx := context.Background()
			seed(t, s, 42)

			o, err := s.orders.GetByID(ctx, 42)
			require.NoError(t, err)
			assert.Equal(t, "acme", o.MerchantID)
			assert.True(t, o.Total.Equal(decimal.RequireFromString("10")))
			assert.Equal(t, domain.OrderStatusPending, o.Status)
			assert.False(t, o.HasCharge())

			_, err = s.orders.GetByID(ctx, 404)
			assert.ErrorIs(t, err, domain.ErrNotFound)

			err = s.orders.Create(ctx, o)
			assert.ErrorIs(t, err, domain.ErrOrderExists)

			orphan := *o
			orphan.ID = 43
			orphan.MerchantID = "nobody"
			err = s.orders.Create(ctx, &orphan)
			assert.ErrorIs(t, err, domain.ErrNotFound)
		})
	}
}

func TestOrderStore_AttachChargeIsWriteOnce(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			s := b.setup(t)
			ctx := context.Background()
			seed(t, s, 42)

			require.NoError(t, s.orders.AttachCharge(ctx, 42, "abc", "https://pay/abc"))

			err := s.orders.AttachCharge(ctx, 42, "def", "https://pay/def")
			assert.ErrorIs(t, err, domain.ErrChargeAlreadyAttached)

			o, err := s.orders.GetByID(ctx, 42)
			require.NoError(t, err)
			require.True(t, o.HasCharge())
			assert.Equal(t, "abc", *o.PaymentID)
			assert.Equal(t, "https://pay/abc", *o.CheckoutURL)

			err = s.orders.AttachCharge(ctx, 404, "ghi", "https://pay/ghi")
			assert.ErrorIs(t, err, domain.ErrNotFound)
		})
	}
}

func TestOrderStore_Transition(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			s := b.setup(t)
			ctx := context.Background()
			seed(t, s, 42)

			require.NoError(t, s.orders.Transition(ctx, 42, domain.OrderStatusPaid, domain.NotePaymentDone))

			o, err := s.orders.GetByID(ctx, 42)
			require.NoError(t, err)
			assert.Equal(t, domain.OrderStatusPaid, o.Status)
			assert.NotNil(t, o.PaidAt)

			err = s.orders.Transition(ctx, 42, domain.OrderStatusCancelled, domain.NotePaymentExpired)
			assert.ErrorIs(t, err, domain.ErrOrderFinal)

			err = s.orders.Transition(ctx, 404, domain.OrderStatusPaid, domain.NotePaymentDone)
			assert.ErrorIs(t, err, domain.ErrNotFound)

			notes, err := s.notes.GetByOrderID(ctx, 42)
			require.NoError(t, err)
			require.Len(t, notes, 1)
			assert.Equal(t, domain.NotePaymentDone, notes[0].Note)
		})
	}
}

func TestOrderStore_ConcurrentTransitionsApplyOnce(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			s := b.setup(t)
			ctx := context.Background()
			seed(t, s, 42)

			const workers = 10
			var (
				wg       sync.WaitGroup
				mu       sync.Mutex
				applied  int
				finalErr int
			)
			for i := range workers {
				wg.Add(1)
				go func() {
					defer wg.Done()
					status := domain.OrderStatusPaid
					if i%2 == 1 {
						status = domain.OrderStatusCancelled
					}
					err := s.orders.Transition(ctx, 42, status, "note")
					mu.Lock()
					defer mu.Unlock()
					switch {
					case err == nil:
						applied++
					case assert.ErrorIs(t, err, domain.ErrOrderFinal):
						finalErr++
					}
				}()
			}
			wg.Wait()

			assert.Equal(t, 1, applied)
			assert.Equal(t, workers-1, finalErr)

			notes, err := s.notes.GetByOrderID(ctx, 42)
			require.NoError(t, err)
			assert.Len(t, notes, 1)
		})
	}
}

func TestMerchantStore_UpdateSettingsKeepsPassword(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			s := b.setup(t)
			ctx := context.Background()
			seed(t, s, 42)

			m, err := s.merchants.GetByID(ctx, "acme")
			require.NoError(t, err)
			m.SecretKey = "new-secret"
			m.Title = "Bitcoin"
			m.PasswordHash = ""
			require.NoError(t, s.merchants.UpdateSettings(ctx, m))

			got, err := s.merchants.GetByID(ctx, "acme")
			require.NoError(t, err)
			assert.Equal(t, "new-secret", got.SecretKey)
			assert.Equal(t, "Bitcoin", got.Title)
			assert.Equal(t, "hash", got.PasswordHash)

			err = s.merchants.UpdateSettings(ctx, domain.NewMerchant("nobody"))
			assert.ErrorIs(t, err, domain.ErrNotFound)
		})
	}
}

func TestMemory_ReturnsCopies(t *testing.T) {
	mem := NewMemory()
	s := stores{orders: mem.Orders, merchants: mem.Merchants, notes: mem.Notes}
	seed(t, s, 42)
	require.NoError(t, mem.Orders.AttachCharge(context.Background(), 42, "abc", "https://pay/abc"))

	o, err := mem.Orders.GetByID(context.Background(), 42)
	require.NoError(t, err)
	*o.PaymentID = "tampered"
	o.Status = domain.OrderStatusPaid

	again, err := mem.Orders.GetByID(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, "abc", *again.PaymentID)
	assert.Equal(t, domain.OrderStatusPending, again.Status)
}
