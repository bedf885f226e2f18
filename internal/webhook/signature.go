package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

const signaturePrefix = "sha256="

// Sign returns the X-Signature value for body: "sha256=" followed by the base64 HMAC-SHA256
// of body keyed by secret. An empty secret is a valid (empty) key.
func Sign(body, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return signaturePrefix + base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature matches body under secret.
func Verify(body, secret, signature string) bool {
	return hmac.Equal([]byte(Sign(body, secret)), []byte(signature))
}
