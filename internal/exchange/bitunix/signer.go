package bitunix

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sign computes the double-SHA256 request signature the bitunix REST API
// expects: sha256(nonce+ts+apiKey) hex-encoded, then sha256'd again with the
// secret appended.
func Sign(secret, nonce, apiKey, ts string) string {
	h1 := sha256.Sum256([]byte(nonce + ts + apiKey))
	h2 := sha256.Sum256([]byte(hex.EncodeToString(h1[:]) + secret))
	return hex.EncodeToString(h2[:])
}
