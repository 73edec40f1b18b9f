package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignWebhook(t *testing.T) {
	body := []byte(`{"type":"PAYMENT_SUCCESS_WEBHOOK"}`)
	mac := hmac.New(sha256.New, []byte("secret"))
	mac.Write([]byte("1710072000" + string(body)))
	want := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	assert.Equal(t, want, SignWebhook("secret", "1710072000", body))
}

func TestVerifyWebhook(t *testing.T) {
	body := []byte(`{"a":1}`)
	sig := SignWebhook("secret", "1", body)

	tests := []struct {
		name      string
		secret    string
		signature string
		timestamp string
		body      []byte
		want      bool
	}{
		{"valid", "secret", sig, "1", body, true},
		{"other secret", "other", sig, "1", body, false},
		{"other timestamp", "secret", sig, "2", body, false},
		{"modified body", "secret", sig, "1", []byte(`{"a":2}`), false},
		{"reformatted body", "secret", sig, "1", []byte(`{ "a": 1 }`), false},
		{"empty signature", "secret", "", "1", body, false},
		{"empty timestamp", "secret", sig, "", body, false},
		{"empty secret", "", SignWebhook("", "1", body), "1", body, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, VerifyWebhook(tt.secret, tt.signature, tt.timestamp, tt.body))
		})
	}
}
