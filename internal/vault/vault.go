// Package vault seals connection credentials at rest with envelope encryption.
//
// Each blob gets its own random data key. The blob is sealed with the data
// key under AES-256-GCM and the data key is sealed with the process master
// key. Callers pass associated data (the owning connection id) so a sealed
// blob copied onto another row fails to open.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// KeySize is the required master key length in bytes.
const KeySize = 32

var (
	ErrInvalidMasterKey = errors.New("master key must be exactly 32 bytes")
	ErrEmptySealed      = errors.New("sealed data is incomplete")
)

// Sealed holds the encrypted components of one credential blob.
type Sealed struct {
	Ciphertext []byte
	Nonce      []byte
	WrappedKey []byte // data key sealed with the master key
	KeyNonce   []byte
}

func (s *Sealed) complete() bool {
	return s != nil && len(s.Ciphertext) > 0 && len(s.Nonce) > 0 &&
		len(s.WrappedKey) > 0 && len(s.KeyNonce) > 0
}

// Cipher is the capability the rest of the service depends on.
type Cipher interface {
	Seal(plaintext, aad []byte) (*Sealed, error)
	Open(s *Sealed, aad []byte) ([]byte, error)
}

// Vault implements Cipher with a single master key.
type Vault struct {
	master []byte
}

// New creates a vault. The master key must be exactly KeySize bytes.
func New(masterKey []byte) (*Vault, error) {
	if len(masterKey) != KeySize {
		return nil, ErrInvalidMasterKey
	}
	key := make([]byte, KeySize)
	copy(key, masterKey)
	return &Vault{master: key}, nil
}

// Seal encrypts plaintext under a fresh data key.
func (v *Vault) Seal(plaintext, aad []byte) (*Sealed, error) {
	dataKey := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, dataKey); err != nil {
		return nil, fmt.Errorf("failed to generate data key: %w", err)
	}

	ciphertext, nonce, err := seal(dataKey, plaintext, aad)
	if err != nil {
		return nil, fmt.Errorf("failed to seal data: %w", err)
	}

	wrapped, keyNonce, err := seal(v.master, dataKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to wrap data key: %w", err)
	}

	return &Sealed{
		Ciphertext: ciphertext,
		Nonce:      nonce,
		WrappedKey: wrapped,
		KeyNonce:   keyNonce,
	}, nil
}

// Open reverses Seal. The aad must match the value used when sealing.
func (v *Vault) Open(s *Sealed, aad []byte) ([]byte, error) {
	if !s.complete() {
		return nil, ErrEmptySealed
	}

	dataKey, err := open(v.master, s.WrappedKey, s.KeyNonce, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to unwrap data key: %w", err)
	}

	plaintext, err := open(dataKey, s.Ciphertext, s.Nonce, aad)
	if err != nil {
		return nil, fmt.Errorf("failed to open data: %w", err)
	}
	return plaintext, nil
}

// SealJSON marshals v and seals the result.
func SealJSON(c Cipher, v any, aad []byte) (*Sealed, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return c.Seal(raw, aad)
}

// OpenJSON opens s and unmarshals the plaintext into out.
func OpenJSON(c Cipher, s *Sealed, aad []byte, out any) error {
	raw, err := c.Open(s, aad)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return nil
}

func seal(key, plaintext, aad []byte) (ciphertext, nonce []byte, err error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}

	nonce = make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, err
	}

	return gcm.Seal(nil, nonce, plaintext, aad), nonce, nil
}

func open(key, ciphertext, nonce, aad []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("invalid nonce length %d", len(nonce))
	}
	return gcm.Open(nil, nonce, ciphertext, aad)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
