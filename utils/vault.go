// utils/vault.go
package utils

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/nacl/secretbox"
)

var vaultKey [32]byte
var vaultReady bool

// InitVault loads the token-encryption key from TOKEN_VAULT_KEY (base64,
// 32 bytes decoded). OAuth tokens are never persisted in plaintext.
func InitVault() error {
	encoded := os.Getenv("TOKEN_VAULT_KEY")
	if encoded == "" {
		return errors.New("TOKEN_VAULT_KEY environment variable not set")
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return fmt.Errorf("TOKEN_VAULT_KEY is not valid base64: %w", err)
	}
	if len(raw) != 32 {
		return fmt.Errorf("TOKEN_VAULT_KEY must decode to 32 bytes, got %d", len(raw))
	}
	copy(vaultKey[:], raw)
	vaultReady = true
	return nil
}

// EncryptToken seals a plaintext token. Output is base64(nonce || box).
func EncryptToken(plaintext string) (string, error) {
	if !vaultReady {
		return "", errors.New("vault not initialized")
	}
	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &vaultKey)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptToken opens a ciphertext produced by EncryptToken.
func DecryptToken(ciphertext string) (string, error) {
	if !vaultReady {
		return "", errors.New("vault not initialized")
	}
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("ciphertext is not valid base64: %w", err)
	}
	if len(raw) < 24 {
		return "", errors.New("ciphertext too short")
	}
	var nonce [24]byte
	copy(nonce[:], raw[:24])
	opened, ok := secretbox.Open(nil, raw[24:], &nonce, &vaultKey)
	if !ok {
		return "", errors.New("token decryption failed")
	}
	return string(opened), nil
}
