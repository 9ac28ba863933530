// Package seal encrypts small blobs at rest with a passphrase.
package seal

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
)

const (
	saltSize  = 16
	nonceSize = 12
	keySize   = 32
	argonTime = 1
	argonMem  = 64 * 1024
	argonPar  = 4
)

// ErrTooShort is returned by Open for input shorter than salt plus nonce.
var ErrTooShort = errors.New("sealed data too small")

// Sealer encrypts with AES-256-GCM under a key derived from a passphrase with Argon2id.
// A Sealer with an empty passphrase passes data through unchanged.
type Sealer struct {
	passphrase string
}

func New(passphrase string) *Sealer {
	return &Sealer{passphrase: passphrase}
}

// Enabled reports whether the sealer encrypts.
func (s *Sealer) Enabled() bool {
	return s != nil && s.passphrase != ""
}

// DeriveKey derives a 32-byte AES-256 key from a passphrase and salt using Argon2id.
func DeriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, argonTime, argonMem, argonPar, keySize)
}

// Seal returns [16-byte salt][12-byte nonce][AES-256-GCM ciphertext].
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	if !s.Enabled() {
		return plaintext, nil
	}

	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}

	gcm, err := newGCM(DeriveKey(s.passphrase, salt))
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)

	out := make([]byte, 0, saltSize+nonceSize+len(ciphertext))
	out = append(out, salt...)
	out = append(out, nonce...)
	out = append(out, ciphertext...)
	return out, nil
}

// Open reverses Seal. The salt is read from the first 16 bytes.
func (s *Sealer) Open(data []byte) ([]byte, error) {
	if !s.Enabled() {
		return data, nil
	}

	if len(data) < saltSize+nonceSize {
		return nil, ErrTooShort
	}

	salt := data[:saltSize]
	nonce := data[saltSize : saltSize+nonceSize]
	ciphertext := data[saltSize+nonceSize:]

	gcm, err := newGCM(DeriveKey(s.passphrase, salt))
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}
