package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/sbp-gateway/internal/domain"
	"github.com/josh-kwaku/sbp-gateway/internal/service"
)

type mockCheckout struct {
	gotID int64
	res   *service.CheckoutResult
	err   error
}

func (m *mockCheckout) CreateCharge(_ context.Context, orderID int64) (*service.CheckoutResult, error) {
	m.gotID = orderID
	return m.res, m.err
}

func TestCheckout(t *testing.T) {
	tests := []struct {
		name       string
		orderID    string
		res        *service.CheckoutResult
		err        error
		wantStatus int
		want       GatewayResponse
	}{
		{
			name:       "charge created",
			orderID:    "42",
			res:        &service.CheckoutResult{Redirect: "https://pay/abc"},
			wantStatus: http.StatusOK,
			want:       GatewayResponse{Result: ResultSuccess, Redirect: "https://pay/abc"},
		},
		{
			name:       "bad order id",
			orderID:    "x",
			wantStatus: http.StatusBadRequest,
			want:       GatewayResponse{Result: ResultError, Reason: "Missing order id"},
		},
		{
			name:       "unknown order",
			orderID:    "42",
			err:        fmt.Errorf("CreateCharge: %w", domain.ErrNotFound),
			wantStatus: http.StatusNotFound,
			want:       GatewayResponse{Result: ResultFailure, Messages: []string{chargeFailedMessage}},
		},
		{
			name:       "missing api key",
			orderID:    "42",
			err:        fmt.Errorf("CreateCharge: %w", domain.ErrMissingAPIKey),
			wantStatus: http.StatusUnprocessableEntity,
			want:       GatewayResponse{Result: ResultFailure, Messages: []string{chargeFailedMessage}},
		},
		{
			name:       "gateway disabled",
			orderID:    "42",
			err:        fmt.Errorf("CreateCharge: %w", domain.ErrGatewayDisabled),
			wantStatus: http.StatusUnprocessableEntity,
			want:       GatewayResponse{Result: ResultFailure, Messages: []string{chargeFailedMessage}},
		},
		{
			name:       "order not pending",
			orderID:    "42",
			err:        fmt.Errorf("CreateCharge: %w", domain.ErrOrderNotPending),
			wantStatus: http.StatusUnprocessableEntity,
			want:       GatewayResponse{Result: ResultFailure, Messages: []string{chargeFailedMessage}},
		},
		{
			name:       "provider rejected",
			orderID:    "42",
			err:        fmt.Errorf("CreateCharge: %w", &service.ProviderError{StatusCode: 400, Body: `{"error":"bad key"}`}),
			wantStatus: http.StatusBadGateway,
			want:       GatewayResponse{Result: ResultFailure, Messages: []string{chargeFailedMessage}},
		},
		{
			name:       "unexpected error",
			orderID:    "42",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			want:       GatewayResponse{Result: ResultFailure, Messages: []string{chargeFailedMessage}},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := &mockCheckout{res: tc.res, err: tc.err}
			h := NewCheckoutHandler(svc)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/"+tc.orderID+"/checkout", nil)
			req.SetPathValue("id", tc.orderID)
			rr := httptest.NewRecorder()

			h.Checkout(rr, req)

			assert.Equal(t, tc.wantStatus, rr.Code)
			var resp GatewayResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
			assert.Equal(t, tc.want, resp)
			assert.NotContains(t, rr.Body.String(), "bad key")
		})
	}
}
