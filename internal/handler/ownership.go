package handler

import (
	"net/http"

	"github.com/josh-kwaku/sbp-gateway/internal/auth"
)

// merchantFromPath returns the {id} path value when it names the merchant
// the bearer token was issued to. A mismatch is reported as not found so
// other merchants' ids cannot be enumerated.
func merchantFromPath(r *http.Request) (string, *AppError) {
	authMerchantID, ok := auth.MerchantIDFromContext(r.Context())
	if !ok {
		return "", ErrMissingToken
	}

	merchantID := r.PathValue("id")
	if merchantID == "" || merchantID != authMerchantID {
		return "", ErrResourceNotFound
	}

	return merchantID, nil
}
