package domain

import "time"

const (
	DefaultTitle       = "Pay with Bitcoin"
	DefaultDescription = "Use any Bitcoin wallet to pay. Powered by Swiss Bitcoin Pay"
)

// Merchant holds one store's gateway settings.
type Merchant struct {
	ID             string
	StoreName      string
	Enabled        bool
	APIKey         string
	SecretKey      string
	Title          string
	Description    string
	OnChainAllowed bool
	PasswordHash   string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewMerchant returns a merchant carrying the default settings of a freshly
// installed gateway: disabled, on-chain allowed, stock title and description.
func NewMerchant(id string) *Merchant {
	now := time.Now().UTC()
	return &Merchant{
		ID:             id,
		Title:          DefaultTitle,
		Description:    DefaultDescription,
		OnChainAllowed: true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// VerifiesSignatures reports whether webhooks for this merchant are HMAC
// checked. Without a secret key every delivery is trusted.
func (m *Merchant) VerifiesSignatures() bool {
	return m.SecretKey != ""
}

func (m *Merchant) Warnings() []string {
	var w []string
	if m.APIKey == "" {
		w = append(w, "api_key missing: checkout cannot create charges")
	}
	if m.SecretKey == "" {
		w = append(w, "secret_key missing: webhook signatures are not verified")
	}
	return w
}
