package crypto

import (
	"strings"
	"testing"

	"github.com/brennhill/macrorun/internal/codes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModernRoundTrip(t *testing.T) {
	plain := "the quick brown fox jumps over the lazy dog, 12345!"
	blob, err := EncryptString(plain, "correct horse battery staple")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(blob, modernPrefix))

	out, err := DecryptString(blob, "correct horse battery staple")
	require.NoError(t, err)
	assert.Equal(t, plain, out)
}

func TestModernRoundTrip_WrongPasswordFails(t *testing.T) {
	blob, err := EncryptString("secret payload", "right-password")
	require.NoError(t, err)

	_, err = DecryptString(blob, "wrong-password")
	require.Error(t, err)
	var encErr *EncryptionError
	require.ErrorAs(t, err, &encErr)
	assert.Equal(t, codes.DecryptionBadPassword, encErr.Code)
}

func TestLegacyECBRoundTrip(t *testing.T) {
	plain := []byte("legacy stored password")
	ct, err := EncryptLegacyECB(plain, "pw123")
	require.NoError(t, err)

	blob := EncodeBase64(ct)
	out, err := DecryptString(blob, "pw123")
	require.NoError(t, err)
	assert.Equal(t, string(plain), out)
}

func TestLegacyECBWrongPassword(t *testing.T) {
	ct, err := EncryptLegacyECB([]byte("payload"), "pw123")
	require.NoError(t, err)
	blob := EncodeBase64(ct)

	_, err = DecryptString(blob, "not-the-password")
	require.Error(t, err)
	var encErr *EncryptionError
	require.ErrorAs(t, err, &encErr)
	assert.Equal(t, codes.DecryptionBadPassword, encErr.Code)
}

func TestDecryptString_PassthroughWhenNotEncrypted(t *testing.T) {
	out, err := DecryptString("plain text value", "whatever")
	require.NoError(t, err)
	assert.Equal(t, "plain text value", out)
}

func TestCodecs(t *testing.T) {
	assert.Equal(t, "aGVsbG8=", EncodeBase64([]byte("hello")))
	b, err := DecodeBase64("aGVsbG8=")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(b))

	assert.Equal(t, "68656c6c6f", EncodeHex([]byte("hello")))
	h, err := DecodeHex("68656c6c6f")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(h))

	assert.Equal(t, "hello", UTF8String(UTF8Bytes("hello")))
}
