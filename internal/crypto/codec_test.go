package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		secret  string
	}{
		{"webdav payload", `{"url":"https://dav.example.com","username":"reader","password":"p"}`, "correct horse"},
		{"empty payload", "", "secret"},
		{"empty secret", "payload", ""},
		{"unicode", "🔐 Тест 日本語", "пароль"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blob, err := Encrypt(tt.payload, tt.secret)
			require.NoError(t, err)
			assert.Len(t, blob, HeaderSize+len(tt.payload)+TagSize)

			decrypted, err := Decrypt(blob, tt.secret)
			require.NoError(t, err)
			assert.Equal(t, tt.payload, decrypted)
		})
	}
}

func TestEncryptIsNotDeterministic(t *testing.T) {
	blob1, err := Encrypt("same payload", "same secret")
	require.NoError(t, err)
	blob2, err := Encrypt("same payload", "same secret")
	require.NoError(t, err)

	assert.NotEqual(t, blob1, blob2)
	assert.NotEqual(t, blob1[:SaltSize], blob2[:SaltSize], "salt must differ")
	assert.NotEqual(t, blob1[SaltSize:HeaderSize], blob2[SaltSize:HeaderSize], "nonce must differ")
}

func TestDecryptWrongSecret(t *testing.T) {
	blob, err := Encrypt("payload", "right")
	require.NoError(t, err)

	_, err = Decrypt(blob, "wrong")
	assert.ErrorIs(t, err, ErrAuthentication)
}

func TestDecryptTamperedCiphertext(t *testing.T) {
	blob, err := Encrypt("tamper", "secret")
	require.NoError(t, err)

	for i := HeaderSize; i < len(blob); i++ {
		tampered := append([]byte(nil), blob...)
		tampered[i] ^= 0x01

		plaintext, err := Decrypt(tampered, "secret")
		assert.ErrorIs(t, err, ErrAuthentication, "byte %d", i)
		assert.Empty(t, plaintext)
	}
}

func TestDecryptTamperedHeader(t *testing.T) {
	blob, err := Encrypt("header", "secret")
	require.NoError(t, err)

	t.Run("salt", func(t *testing.T) {
		tampered := append([]byte(nil), blob...)
		tampered[0] ^= 0x80
		_, err := Decrypt(tampered, "secret")
		assert.ErrorIs(t, err, ErrAuthentication)
	})

	t.Run("nonce", func(t *testing.T) {
		tampered := append([]byte(nil), blob...)
		tampered[SaltSize] ^= 0x80
		_, err := Decrypt(tampered, "secret")
		assert.ErrorIs(t, err, ErrAuthentication)
	})
}

func TestDecryptShortBlob(t *testing.T) {
	_, err := Decrypt(make([]byte, MinBlobSize-1), "secret")
	assert.ErrorIs(t, err, ErrCiphertextTooShort)

	_, err = Decrypt(nil, "secret")
	assert.ErrorIs(t, err, ErrCiphertextTooShort)
}

func TestEncryptDecryptJSON(t *testing.T) {
	type context struct {
		URL      string `json:"url"`
		Username string `json:"username"`
	}

	blob, err := EncryptJSON(context{URL: "https://dav", Username: "u"}, "s")
	require.NoError(t, err)

	var out context
	require.NoError(t, DecryptJSON(blob, "s", &out))
	assert.Equal(t, "https://dav", out.URL)
	assert.Equal(t, "u", out.Username)

	assert.ErrorIs(t, DecryptJSON(blob, "other", &out), ErrAuthentication)
}

func TestDeriveKey(t *testing.T) {
	salt := make([]byte, SaltSize)

	key := DeriveKey("secret", salt)
	assert.Len(t, key, KeySize)
	assert.Equal(t, key, DeriveKey("secret", salt))
	assert.NotEqual(t, key, DeriveKey("other", salt))
}
