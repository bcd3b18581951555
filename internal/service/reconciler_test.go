package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/sbp-gateway/internal/domain"
	"github.com/josh-kwaku/sbp-gateway/internal/repository"
)

const (
	paidBody    = `{"id":"abc","isPaid":true,"isExpired":false}`
	expiredBody = `{"id":"abc","isPaid":false,"isExpired":true}`
	pendingBody = `{"id":"abc","isPaid":false,"isExpired":false}`
)

// passGuard never reports a delivery as seen, leaving idempotency to the
// order status compare-and-set.
type passGuard struct{}

func (passGuard) Seen(context.Context, string) (bool, error) { return false, nil }
func (passGuard) Forget(context.Context, string) error { return nil }

type failingGuard struct{}

func (failingGuard) Seen(context.Context, string) (bool, error) {
	return false, errors.New("redis: connection refused")
}
func (failingGuard) Forget(context.Context, string) error { return nil }

func newReconcilerFixture(t *testing.T, guard deliveryGuard, mutate func(m *domain.Merchant)) (*Reconciler, *repository.Memory) {
	t.Helper()
	mem := repository.NewMemory()
	seedMerchant(t, mem, mutate)
	seedOrder(t, mem, 42, "10.00")
	require.NoError(t, mem.Orders.AttachCharge(context.Background(), 42, "abc", "https://pay/abc"))
	if guard == nil {
		guard = repository.NewMemoryDeliveryGuard(time.Hour)
	}
	return NewReconciler(mem.Orders, mem.Merchants, guard), mem
}

func signedEvent(body string) WebhookEvent {
	return WebhookEvent{
		OrderID:   42,
		Body:      []byte(body),
		Signature: "hmac=" + Sign(testSecret, []byte(body)),
	}
}

func orderState(t *testing.T, mem *repository.Memory) (domain.OrderStatus, []domain.OrderNote) {
	t.Helper()
	order, err := mem.Orders.GetByID(context.Background(), 42)
	require.NoError(t, err)
	notes, err := mem.Notes.GetByOrderID(context.Background(), 42)
	require.NoError(t, err)
	return order.Status, notes
}

func TestHandleWebhook_Paid(t *testing.T) {
	r, mem := newReconcilerFixture(t, nil, nil)

	res, err := r.HandleWebhook(context.Background(), signedEvent(paidBody))
	require.NoError(t, err)
	assert.Equal(t, OutcomePaid, res.Outcome)
	assert.Equal(t, "https://shop.test/thanks/42", res.Redirect)
	assert.True(t, res.Verified)

	status, notes := orderState(t, mem)
	assert.Equal(t, domain.OrderStatusPaid, status)
	require.Len(t, notes, 1)
	assert.Equal(t, domain.NotePaymentDone, notes[0].Note)

	order, err := mem.Orders.GetByID(context.Background(), 42)
	require.NoError(t, err)
	assert.NotNil(t, order.PaidAt)
}

func TestHandleWebhook_Expired(t *testing.T) {
	r, mem := newReconcilerFixture(t, nil, nil)

	res, err := r.HandleWebhook(context.Background(), signedEvent(expiredBody))
	require.NoError(t, err)
	assert.Equal(t, OutcomeExpired, res.Outcome)
	assert.Equal(t, DetailsOrderExpired, res.Details)
	assert.Empty(t, res.Redirect)

	status, notes := orderState(t, mem)
	assert.Equal(t, domain.OrderStatusCancelled, status)
	require.Len(t, notes, 1)
	assert.Equal(t, domain.NotePaymentExpired, notes[0].Note)
}

func TestHandleWebhook_NotActioned(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "neither flag set", body: pendingBody},
		{name: "flags absent", body: `{"id":"abc"}`},
		{name: "not json", body: `isPaid=true`},
		{name: "empty body", body: ``},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r, mem := newReconcilerFixture(t, nil, nil)

			res, err := r.HandleWebhook(context.Background(), signedEvent(tc.body))
			require.NoError(t, err)
			assert.Equal(t, OutcomeIgnored, res.Outcome)
			assert.Equal(t, DetailsEventReceived, res.Details)

			status, notes := orderState(t, mem)
			assert.Equal(t, domain.OrderStatusPending, status)
			assert.Empty(t, notes)
		})
	}
}

func TestHandleWebhook_SignatureMismatch(t *testing.T) {
	tests := []struct {
		name      string
		signature string
		body      string
	}{
		{name: "wrong digest", signature: "hmac=deadbeef", body: paidBody},
		{name: "missing header", signature: "", body: paidBody},
		{name: "digest without scheme", signature: Sign(testSecret, []byte(paidBody)), body: paidBody},
		{name: "signed with other secret", signature: "hmac=" + Sign("other", []byte(paidBody)), body: paidBody},
		{
			name:      "body re-serialized after signing",
			signature: "hmac=" + Sign(testSecret, []byte(paidBody)),
			body:      `{"id": "abc", "isPaid": true, "isExpired": false}`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r, mem := newReconcilerFixture(t, nil, nil)

			res, err := r.HandleWebhook(context.Background(), WebhookEvent{
				OrderID:   42,
				Body:      []byte(tc.body),
				Signature: tc.signature,
			})
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrInvalidSignature)
			assert.Nil(t, res)

			status, notes := orderState(t, mem)
			assert.Equal(t, domain.OrderStatusPending, status)
			assert.Empty(t, notes)
		})
	}
}

func TestHandleWebhook_UnknownOrder(t *testing.T) {
	r, _ := newReconcilerFixture(t, nil, nil)

	ev := signedEvent(paidBody)
	ev.OrderID = 404

	_, err := r.HandleWebhook(context.Background(), ev)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// Without a merchant secret every signature is accepted. This path is
// insecure and only exists for unconfigured or test deployments.
func TestHandleWebhook_NoSecretKeyTrustsDelivery(t *testing.T) {
	r, mem := newReconcilerFixture(t, nil, func(m *domain.Merchant) { m.SecretKey = "" })

	res, err := r.HandleWebhook(context.Background(), WebhookEvent{
		OrderID:   42,
		Body:      []byte(paidBody),
		Signature: "hmac=not-a-real-signature",
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomePaid, res.Outcome)
	assert.False(t, res.Verified)

	status, _ := orderState(t, mem)
	assert.Equal(t, domain.OrderStatusPaid, status)
}

func TestHandleWebhook_DuplicateDelivery(t *testing.T) {
	tests := []struct {
		name        string
		guard       deliveryGuard
		wantOutcome Outcome
	}{
		{name: "caught by delivery guard", guard: nil, wantOutcome: OutcomeDuplicate},
		{name: "caught by status compare-and-set", guard: passGuard{}, wantOutcome: OutcomeAlreadyFinal},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r, mem := newReconcilerFixture(t, tc.guard, nil)

			first, err := r.HandleWebhook(context.Background(), signedEvent(paidBody))
			require.NoError(t, err)
			assert.Equal(t, OutcomePaid, first.Outcome)

			second, err := r.HandleWebhook(context.Background(), signedEvent(paidBody))
			require.NoError(t, err)
			assert.Equal(t, tc.wantOutcome, second.Outcome)
			assert.Equal(t, first.Redirect, second.Redirect)

			status, notes := orderState(t, mem)
			assert.Equal(t, domain.OrderStatusPaid, status)
			assert.Len(t, notes, 1)
		})
	}
}

func TestHandleWebhook_ConcurrentDuplicatesTransitionOnce(t *testing.T) {
	r, mem := newReconcilerFixture(t, passGuard{}, nil)

	const deliveries = 20
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		paid int
	)
	for range deliveries {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := r.HandleWebhook(context.Background(), signedEvent(paidBody))
			if !assert.NoError(t, err) {
				return
			}
			if res.Outcome == OutcomePaid {
				mu.Lock()
				paid++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, paid)
	status, notes := orderState(t, mem)
	assert.Equal(t, domain.OrderStatusPaid, status)
	assert.Len(t, notes, 1)
}

func TestHandleWebhook_TerminalOrderIgnoresLaterEvents(t *testing.T) {
	r, mem := newReconcilerFixture(t, nil, nil)

	_, err := r.HandleWebhook(context.Background(), signedEvent(expiredBody))
	require.NoError(t, err)

	res, err := r.HandleWebhook(context.Background(), signedEvent(paidBody))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyFinal, res.Outcome)
	assert.Equal(t, DetailsOrderExpired, res.Details)
	assert.Empty(t, res.Redirect)

	status, notes := orderState(t, mem)
	assert.Equal(t, domain.OrderStatusCancelled, status)
	assert.Len(t, notes, 1)
}

func TestHandleWebhook_GuardFailureStillTransitions(t *testing.T) {
	r, mem := newReconcilerFixture(t, failingGuard{}, nil)

	res, err := r.HandleWebhook(context.Background(), signedEvent(paidBody))
	require.NoError(t, err)
	assert.Equal(t, OutcomePaid, res.Outcome)

	status, _ := orderState(t, mem)
	assert.Equal(t, domain.OrderStatusPaid, status)
}

// flakyOrders fails the first failures Transition calls, running onFail
// before returning.
type flakyOrders struct {
	*repository.MemoryOrderRepository
	failures int
	onFail   func()
}

func (f *flakyOrders) Transition(ctx context.Context, id int64, status domain.OrderStatus, note string) error {
	if f.failures > 0 {
		f.failures--
		if f.onFail != nil {
			f.onFail()
		}
		return errors.New("pq: connection reset by peer")
	}
	return f.MemoryOrderRepository.Transition(ctx, id, status, note)
}

// ctxGuard behaves like a network backed guard: Forget fails on a done
// context. brokenForget makes every Forget fail.
type ctxGuard struct {
	*repository.MemoryDeliveryGuard
	brokenForget bool
	released     int
}

func (g *ctxGuard) Forget(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if g.brokenForget {
		return errors.New("redis: i/o timeout")
	}
	g.released++
	return g.MemoryDeliveryGuard.Forget(ctx, key)
}

func TestHandleWebhook_RedeliveryAfterFailedTransition(t *testing.T) {
	tests := []struct {
		name         string
		cancelOnFail bool
		brokenForget bool
		wantReleased int
	}{
		{name: "guard released", wantReleased: 1},
		{name: "caller hung up during transition", cancelOnFail: true, wantReleased: 1},
		{name: "guard release fails", brokenForget: true, wantReleased: 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			mem := repository.NewMemory()
			seedMerchant(t, mem, nil)
			seedOrder(t, mem, 42, "10.00")

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			orders := &flakyOrders{MemoryOrderRepository: mem.Orders, failures: 1}
			if tc.cancelOnFail {
				orders.onFail = cancel
			}
			guard := &ctxGuard{
				MemoryDeliveryGuard: repository.NewMemoryDeliveryGuard(time.Hour),
				brokenForget:        tc.brokenForget,
			}
			r := NewReconciler(orders, mem.Merchants, guard)

			_, err := r.HandleWebhook(ctx, signedEvent(paidBody))
			require.Error(t, err)
			assert.Equal(t, tc.wantReleased, guard.released)

			status, notes := orderState(t, mem)
			require.Equal(t, domain.OrderStatusPending, status)
			require.Empty(t, notes)

			res, err := r.HandleWebhook(context.Background(), signedEvent(paidBody))
			require.NoError(t, err)
			assert.Equal(t, OutcomePaid, res.Outcome)
			assert.Equal(t, "https://shop.test/thanks/42", res.Redirect)

			status, notes = orderState(t, mem)
			assert.Equal(t, domain.OrderStatusPaid, status)
			assert.Len(t, notes, 1)

			again, err := r.HandleWebhook(context.Background(), signedEvent(paidBody))
			require.NoError(t, err)
			assert.Equal(t, OutcomeDuplicate, again.Outcome)
			_, notes = orderState(t, mem)
			assert.Len(t, notes, 1)
		})
	}
}
