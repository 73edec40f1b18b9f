package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

// SignWebhook computes base64(HMAC-SHA256(timestamp + body)) with the given secret.
func SignWebhook(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// VerifyWebhook reports whether signature matches the body and timestamp.
func VerifyWebhook(secret, signature, timestamp string, body []byte) bool {
	if secret == "" || signature == "" || timestamp == "" {
		return false
	}
	expected := SignWebhook(secret, timestamp, body)
	return hmac.Equal([]byte(signature), []byte(expected))
}
