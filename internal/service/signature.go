package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// ParseSignatureHeader returns the digest of a "<scheme>=<digest>" header
// value: everything after the first '='. A value without '=' has no digest.
func ParseSignatureHeader(value string) string {
	_, digest, found := strings.Cut(value, "=")
	if !found {
		return ""
	}
	return strings.TrimSpace(digest)
}

// Sign returns the lowercase hex HMAC-SHA256 of body keyed by secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature compares digest against the HMAC of the raw body in
// constant time.
func VerifySignature(secret string, body []byte, digest string) bool {
	if digest == "" {
		return false
	}
	expected := Sign(secret, body)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(digest)))
}
