// SPDX-License-Identifier: AGPL-3.0-or-later
// accessbroker - subscription entitlement lifecycle engine
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// Package vault provides envelope-style symmetric encryption of stored
// WireGuard client private keys. The configured secret is stretched into an
// AES-256 key with HKDF-SHA256 rather than used directly, so the same secret
// can also back the application's session/password hashing without key
// reuse across concerns.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	keyLen   = 32
	hkdfSalt = "accessbroker-vault-v1"
	hkdfInfo = "wireguard-private-key"
)

var (
	// ErrEmptySecret is returned by New when the configured vault secret is blank.
	ErrEmptySecret = errors.New("vault: secret must not be empty")
	// ErrCiphertextTooShort is returned by Decrypt when the token is shorter than a nonce.
	ErrCiphertextTooShort = errors.New("vault: ciphertext shorter than nonce")
)

// Vault encrypts and decrypts WireGuard client private keys before they are
// persisted in VpnPeer rows.
type Vault struct {
	aead cipher.AEAD
}

// New derives an AES-256-GCM key from secret via HKDF-SHA256.
func New(secret string) (*Vault, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}

	key := make([]byte, keyLen)
	kdf := hkdf.New(sha256.New, []byte(secret), []byte(hkdfSalt), []byte(hkdfInfo))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("vault: failed to derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("vault: failed to build cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("vault: failed to build AEAD: %w", err)
	}

	return &Vault{aead: aead}, nil
}

// Encrypt seals plaintext and returns a base64 token safe for a text column.
func (v *Vault) Encrypt(plaintext []byte) (string, error) {
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("vault: failed to generate nonce: %w", err)
	}
	sealed := v.aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt.
func (v *Vault) Decrypt(token string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("vault: failed to decode token: %w", err)
	}
	nonceSize := v.aead.NonceSize()
	if len(raw) < nonceSize {
		return nil, ErrCiphertextTooShort
	}
	nonce, ciphertext := raw[:nonceSize], raw[nonceSize:]
	plaintext, err := v.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("vault: failed to open ciphertext: %w", err)
	}
	return plaintext, nil
}

// EncryptString is a convenience wrapper around Encrypt for string secrets.
func (v *Vault) EncryptString(plaintext string) (string, error) {
	return v.Encrypt([]byte(plaintext))
}

// DecryptString is a convenience wrapper around Decrypt for string secrets.
func (v *Vault) DecryptString(token string) (string, error) {
	plaintext, err := v.Decrypt(token)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
