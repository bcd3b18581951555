package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/josh-kwaku/sbp-gateway/internal/domain"
)

type merchantsFile struct {
	Merchants []merchantEntry `yaml:"merchants"`
}

// Pointer fields fall back to the gateway defaults when omitted.
type merchantEntry struct {
	ID             string  `yaml:"id"`
	StoreName      string  `yaml:"store_name"`
	Enabled        bool    `yaml:"enabled"`
	APIKey         string  `yaml:"api_key"`
	SecretKey      string  `yaml:"secret_key"`
	Title          *string `yaml:"title"`
	Description    *string `yaml:"description"`
	OnChainAllowed *bool   `yaml:"on_chain_allowed"`
	PasswordHash   string  `yaml:"password_hash"`
}

// LoadMerchants reads the merchants seed file at path.
func LoadMerchants(path string) ([]*domain.Merchant, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("LoadMerchants: %w", err)
	}
	return ParseMerchants(data)
}

func ParseMerchants(data []byte) ([]*domain.Merchant, error) {
	var f merchantsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("ParseMerchants: %w", err)
	}

	seen := make(map[string]bool, len(f.Merchants))
	merchants := make([]*domain.Merchant, 0, len(f.Merchants))
	for i, e := range f.Merchants {
		if e.ID == "" {
			return nil, fmt.Errorf("ParseMerchants: merchants[%d]: id required", i)
		}
		if seen[e.ID] {
			return nil, fmt.Errorf("ParseMerchants: duplicate merchant id %q", e.ID)
		}
		seen[e.ID] = true

		m := domain.NewMerchant(e.ID)
		m.StoreName = e.StoreName
		m.Enabled = e.Enabled
		m.APIKey = e.APIKey
		m.SecretKey = e.SecretKey
		m.PasswordHash = e.PasswordHash
		if e.Title != nil {
			m.Title = *e.Title
		}
		if e.Description != nil {
			m.Description = *e.Description
		}
		if e.OnChainAllowed != nil {
			m.OnChainAllowed = *e.OnChainAllowed
		}
		m.UpdatedAt = time.Now().UTC()
		merchants = append(merchants, m)
	}
	return merchants, nil
}
