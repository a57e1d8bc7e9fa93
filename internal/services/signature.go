package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
)

// SignHMACSHA256 returns the hex-encoded HMAC-SHA256 of body. This is the
// generic webhook signing scheme used by aggregators that front providers
// without their own signatures (header x-<provider>-signature).
func SignHMACSHA256(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyHMACSHA256 checks a hex HMAC-SHA256 signature in constant time.
func VerifyHMACSHA256(body []byte, secret, signature string) bool {
	if signature == "" {
		return false
	}
	expected := SignHMACSHA256(body, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// SignHMACSHA512 returns the hex-encoded HMAC-SHA512 of body, the scheme
// Paystack uses over the raw webhook payload.
func SignHMACSHA512(body []byte, secret string) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyHMACSHA512 checks a hex HMAC-SHA512 signature in constant time.
func VerifyHMACSHA512(body []byte, secret, signature string) bool {
	if signature == "" {
		return false
	}
	expected := SignHMACSHA512(body, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}
