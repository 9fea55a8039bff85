// crypto.go — AES-256 encrypt/decrypt primitives plus base64/hex/utf-8
// codecs, consumed by the ONLOGIN handler's !ENCRYPTION support (§4.6).
//
// Two schemes are supported, matching §1/§6:
//   - legacy: AES-256-ECB over an MD5-stretched key (insecure, kept only for
//     reading passwords encrypted by older macros)
//   - modern: AES-256-CBC with a random IV and salt, key derived via
//     PBKDF2-HMAC-SHA256 (golang.org/x/crypto/pbkdf2), integrity-tagged with
//     HMAC-SHA256 over the ciphertext
//
// Core block/stream operations use the standard library (crypto/aes,
// crypto/cipher, crypto/sha256) deliberately: correctness-critical
// primitives like these should never be hand-rolled or sourced from a
// lesser-audited package, and ECB mode specifically is not exposed by
// golang.org/x/crypto at all (by design, for being insecure) so the legacy
// path is necessarily built on the stdlib block cipher directly. Key
// derivation for the modern scheme uses golang.org/x/crypto/pbkdf2, which
// is the ecosystem library the pack (jeranaias-rigrun) already depends on
// for this exact purpose.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/md5"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"io"

	"golang.org/x/crypto/pbkdf2"

	"github.com/brennhill/macrorun/internal/codes"
)

// Mode mirrors !ENCRYPTION (§3).
type Mode string

const (
	ModeNone       Mode = "NO"
	ModeStoredKey  Mode = "STOREDKEY"
	ModeTmpKey     Mode = "TMPKEY"
)

// EncryptionError carries a stable code (§7: "typed EncryptionError carries
// its own code; non-EncryptionError throws bubble up unchanged").
type EncryptionError struct {
	Code codes.Code
	msg  string
}

func (e *EncryptionError) Error() string { return e.msg }

func newEncErr(code codes.Code, msg string) *EncryptionError {
	return &EncryptionError{Code: code, msg: msg}
}

const (
	keySize   = 32 // AES-256
	saltSize  = 16
	ivSize    = aes.BlockSize
	macSize   = sha256.Size
	pbkdf2Its = 100_000

	modernPrefix = "MRV1:" // version marker distinguishing modern blobs from legacy ones
)

// ---- codecs ----

// EncodeBase64 / DecodeBase64 wrap standard encoding.
func EncodeBase64(b []byte) string { return base64.StdEncoding.EncodeToString(b) }

func DecodeBase64(s string) ([]byte, error) { return base64.StdEncoding.DecodeString(s) }

// EncodeHex / DecodeHex wrap standard encoding.
func EncodeHex(b []byte) string { return hex.EncodeToString(b) }

func DecodeHex(s string) ([]byte, error) { return hex.DecodeString(s) }

// UTF8Bytes / UTF8String are trivial round-trip helpers kept symmetric with
// the other codecs so callers never reach for []byte(s) / string(b) directly
// in handler code.
func UTF8Bytes(s string) []byte { return []byte(s) }

func UTF8String(b []byte) string { return string(b) }

// ---- legacy ECB ----

// legacyKey stretches a password into a 32-byte key via repeated MD5, the
// common legacy construction this scheme is compatible with.
func legacyKey(password string) []byte {
	key := make([]byte, 0, keySize)
	h := md5.Sum([]byte(password))
	for len(key) < keySize {
		key = append(key, h[:]...)
		h = md5.Sum(h[:])
	}
	return key[:keySize]
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padding := make([]byte, padLen)
	for i := range padding {
		padding[i] = byte(padLen)
	}
	return append(data, padding...)
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.New("crypto: empty data")
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > len(data) || padLen > aes.BlockSize {
		return nil, errors.New("crypto: invalid padding")
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, errors.New("crypto: invalid padding")
		}
	}
	return data[:len(data)-padLen], nil
}

// EncryptLegacyECB is retained for compatibility with passwords encrypted by
// older macros (and for tests exercising the legacy decrypt path). Never
// used for new encryptions.
func EncryptLegacyECB(plaintext []byte, password string) ([]byte, error) {
	block, err := aes.NewCipher(legacyKey(password))
	if err != nil {
		return nil, err
	}
	padded := pkcs7Pad(plaintext, aes.BlockSize)
	out := make([]byte, len(padded))
	for i := 0; i < len(padded); i += aes.BlockSize {
		block.Encrypt(out[i:i+aes.BlockSize], padded[i:i+aes.BlockSize])
	}
	return out, nil
}

func decryptLegacyECB(ciphertext []byte, password string) ([]byte, error) {
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, newEncErr(codes.DecryptionBadEncoding, "ciphertext is not a multiple of the block size")
	}
	block, err := aes.NewCipher(legacyKey(password))
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(ciphertext))
	for i := 0; i < len(ciphertext); i += aes.BlockSize {
		block.Decrypt(out[i:i+aes.BlockSize], ciphertext[i:i+aes.BlockSize])
	}
	plain, err := pkcs7Unpad(out)
	if err != nil {
		return nil, newEncErr(codes.DecryptionBadPassword, "wrong password or corrupt data")
	}
	return plain, nil
}

// ---- modern CBC+SHA-256 ----

// EncryptString encrypts plaintext with the modern scheme and returns a
// base64 blob: MRV1:<salt><iv><hmac><ciphertext>, all base64-concatenated
// after the version marker.
func EncryptString(plaintext, password string) (string, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}
	iv := make([]byte, ivSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", err
	}

	key := pbkdf2.Key([]byte(password), salt, pbkdf2Its, keySize, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cbc := cipher.NewCBCEncrypter(block, iv)
	cbc.CryptBlocks(ciphertext, padded)

	mac := hmac.New(sha256.New, key)
	mac.Write(ciphertext)
	tag := mac.Sum(nil)

	blob := make([]byte, 0, saltSize+ivSize+macSize+len(ciphertext))
	blob = append(blob, salt...)
	blob = append(blob, iv...)
	blob = append(blob, tag...)
	blob = append(blob, ciphertext...)

	return modernPrefix + EncodeBase64(blob), nil
}

// DecryptString decrypts a blob produced by EncryptString. Input that does
// not look encrypted is returned unchanged. An encrypted-looking blob without
// the modern prefix is treated as a legacy ECB blob for backward
// compatibility.
func DecryptString(blob, password string) (string, error) {
	if !looksEncrypted(blob) {
		return blob, nil
	}
	if rest, ok := stripPrefix(blob, modernPrefix); ok {
		return decryptModern(rest, password)
	}
	raw, err := DecodeBase64(blob)
	if err != nil {
		return "", newEncErr(codes.DecryptionBadEncoding, "not valid base64")
	}
	plain, err := decryptLegacyECB(raw, password)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

func decryptModern(b64 string, password string) (string, error) {
	raw, err := DecodeBase64(b64)
	if err != nil {
		return "", newEncErr(codes.DecryptionBadEncoding, "not valid base64")
	}
	if len(raw) < saltSize+ivSize+macSize {
		return "", newEncErr(codes.DecryptionBadEncoding, "blob too short")
	}
	salt := raw[:saltSize]
	iv := raw[saltSize : saltSize+ivSize]
	tag := raw[saltSize+ivSize : saltSize+ivSize+macSize]
	ciphertext := raw[saltSize+ivSize+macSize:]
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return "", newEncErr(codes.DecryptionBadEncoding, "ciphertext is not a multiple of the block size")
	}

	key := pbkdf2.Key([]byte(password), salt, pbkdf2Its, keySize, sha256.New)

	mac := hmac.New(sha256.New, key)
	mac.Write(ciphertext)
	expected := mac.Sum(nil)
	if subtle.ConstantTimeCompare(expected, tag) != 1 {
		return "", newEncErr(codes.DecryptionBadPassword, "wrong password or corrupt data")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	cbc := cipher.NewCBCDecrypter(block, iv)
	padded := make([]byte, len(ciphertext))
	cbc.CryptBlocks(padded, ciphertext)
	plain, err := pkcs7Unpad(padded)
	if err != nil {
		return "", newEncErr(codes.DecryptionBadPassword, "wrong password or corrupt data")
	}
	return string(plain), nil
}

// looksEncrypted is the heuristic ONLOGIN uses to decide whether a password
// parameter is an encrypted blob at all (§4.6).
func looksEncrypted(s string) bool {
	if stripped, ok := stripPrefix(s, modernPrefix); ok {
		_, err := DecodeBase64(stripped)
		return err == nil
	}
	if len(s) == 0 || len(s)%4 != 0 {
		return false
	}
	_, err := DecodeBase64(s)
	return err == nil
}

func stripPrefix(s, prefix string) (string, bool) {
	if len(s) < len(prefix) || s[:len(prefix)] != prefix {
		return "", false
	}
	return s[len(prefix):], true
}

// LooksEncrypted exposes the heuristic for handler use.
func LooksEncrypted(s string) bool { return looksEncrypted(s) }
