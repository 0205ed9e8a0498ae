// Package bpjs holds thin clients for the BPJS Kesehatan VClaim and Antrean
// REST APIs, including the per-request HMAC signing they require.
package bpjs

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

const timestampLayout = "2006-01-02 15:04:05"

// Timestamp formats the X-timestamp header value: UTC wall clock, no zone.
func Timestamp(at time.Time) string {
	return at.UTC().Format(timestampLayout)
}

// Signature computes the X-signature header: hex HMAC-SHA256 over the
// consumer ID concatenated with the timestamp, keyed by the shared secret.
func Signature(consID, timestamp, secretKey string) string {
	mac := hmac.New(sha256.New, []byte(secretKey))
	mac.Write([]byte(consID + timestamp))
	return hex.EncodeToString(mac.Sum(nil))
}
