package domain

import "errors"

var (
	ErrNotFound              = errors.New("not found")
	ErrOrderExists           = errors.New("order already exists")
	ErrOrderNotPending       = errors.New("order is not pending")
	ErrOrderFinal            = errors.New("order already in terminal state")
	ErrChargeAlreadyAttached = errors.New("order already has a charge attached")
	ErrGatewayDisabled       = errors.New("payment gateway disabled for merchant")
	ErrMissingAPIKey         = errors.New("merchant api key not configured")
	ErrInvalidSignature      = errors.New("webhook signature mismatch")
	ErrInvalidAmount         = errors.New("amount must be greater than zero")
)
