package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "0123456789abcdef0123456789abcdef"

func TestNewEncryptor_KeyLength(t *testing.T) {
	_, err := NewEncryptor("too-short")
	assert.Error(t, err)

	_, err = NewEncryptor(testKey)
	assert.NoError(t, err)
}

func TestEncryptor_SealOpen(t *testing.T) {
	enc, err := NewEncryptor(testKey)
	require.NoError(t, err)

	payload := []byte(`{"type":"PAYMENT_SUCCESS_WEBHOOK"}`)
	sealed, err := enc.Seal(payload, "evt_1")
	require.NoError(t, err)
	assert.NotContains(t, sealed, "PAYMENT_SUCCESS")

	opened, err := enc.Open(sealed, "evt_1")
	require.NoError(t, err)
	assert.Equal(t, payload, opened)
}

func TestEncryptor_NonceIsRandom(t *testing.T) {
	enc, err := NewEncryptor(testKey)
	require.NoError(t, err)

	a, err := enc.Seal([]byte("same"), "evt")
	require.NoError(t, err)
	b, err := enc.Seal([]byte("same"), "evt")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestEncryptor_OpenRejects(t *testing.T) {
	enc, err := NewEncryptor(testKey)
	require.NoError(t, err)
	sealed, err := enc.Seal([]byte("secret"), "evt_1")
	require.NoError(t, err)

	other, err := NewEncryptor("fedcba9876543210fedcba9876543210")
	require.NoError(t, err)

	tests := []struct {
		name    string
		enc     *Encryptor
		encoded string
		label   string
	}{
		{"wrong label", enc, sealed, "evt_2"},
		{"wrong key", other, sealed, "evt_1"},
		{"not base64", enc, "%%%", "evt_1"},
		{"too short", enc, "AAAA", "evt_1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.enc.Open(tt.encoded, tt.label)
			assert.Error(t, err)
		})
	}
}
