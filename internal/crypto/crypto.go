// Package crypto seals secret strings for storage at rest.
//
// The session store runs passwords and key passphrases through Encrypt
// before they touch disk and through Decrypt on load. Values are
// AES-256-GCM sealed and hex encoded, nonce first so Decrypt can split the
// blob without framing metadata. The key comes from WORKBENCH_ENCRYPTION_KEY
// as 64 hex characters; when unset a fixed development key is substituted so
// a fresh checkout works without setup.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// EnvKey names the environment variable holding the hex-encoded 256-bit key.
const EnvKey = "WORKBENCH_ENCRYPTION_KEY"

// devKey keeps local development working when EnvKey is unset. Anything
// sealed under it is openable by anyone with this source.
const devKey = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

// ErrCiphertextTooShort reports a blob too small to even hold a nonce.
var ErrCiphertextTooShort = errors.New("crypto: ciphertext too short")

var (
	keyOnce  sync.Once
	keyBytes []byte
	keyErr   error
)

// sealer builds the AEAD for the process key. The key is resolved from the
// environment once and cached; a malformed key keeps failing on every call
// rather than silently falling back.
func sealer() (cipher.AEAD, error) {
	keyOnce.Do(func() {
		hexKey := os.Getenv(EnvKey)
		if hexKey == "" {
			hexKey = devKey
		}
		keyBytes, keyErr = hex.DecodeString(hexKey)
		if keyErr != nil {
			keyErr = fmt.Errorf("crypto: %s is not valid hex: %w", EnvKey, keyErr)
			return
		}
		if len(keyBytes) != 32 {
			keyErr = fmt.Errorf("crypto: %s must decode to 32 bytes, got %d", EnvKey, len(keyBytes))
		}
	})
	if keyErr != nil {
		return nil, keyErr
	}
	block, err := aes.NewCipher(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("crypto: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: %w", err)
	}
	return gcm, nil
}

// Encrypt seals plaintext and returns hex(nonce || ciphertext || tag).
// Each call draws a fresh random nonce, so equal inputs never produce equal
// outputs.
func Encrypt(plaintext string) (string, error) {
	gcm, err := sealer()
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("crypto: %w", err)
	}
	return hex.EncodeToString(gcm.Seal(nonce, nonce, []byte(plaintext), nil)), nil
}

// Decrypt reverses Encrypt. Tampered or truncated input fails authentication
// and returns an error instead of garbage.
func Decrypt(ciphertextHex string) (string, error) {
	gcm, err := sealer()
	if err != nil {
		return "", err
	}
	blob, err := hex.DecodeString(ciphertextHex)
	if err != nil {
		return "", fmt.Errorf("crypto: ciphertext is not valid hex: %w", err)
	}
	if len(blob) < gcm.NonceSize() {
		return "", ErrCiphertextTooShort
	}
	plaintext, err := gcm.Open(nil, blob[:gcm.NonceSize()], blob[gcm.NonceSize():], nil)
	if err != nil {
		return "", fmt.Errorf("crypto: open sealed value: %w", err)
	}
	return string(plaintext), nil
}

// ResetKey drops the cached key so tests can exercise key resolution again.
func ResetKey() {
	keyOnce = sync.Once{}
	keyBytes = nil
	keyErr = nil
}
