package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"

	pkgerrors "github.com/pkg/errors"
)

// ErrDecryption is returned when a ciphertext cannot be decrypted, either
// because it is malformed or because it was produced under a different key.
var ErrDecryption = errors.New("decryption failed")

// Cipher encrypts and decrypts short secrets at rest using AES-GCM.
// It is stateless after construction and safe for concurrent use.
type Cipher struct {
	aead cipher.AEAD
}

// New creates a Cipher from a 16, 24 or 32 byte key.
func New(key []byte) (*Cipher, error) {
	switch len(key) {
	case 16, 24, 32:
	default:
		return nil, pkgerrors.Errorf("[secrets.New] key must be 16, 24 or 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[secrets.New] aes.NewCipher")
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[secrets.New] cipher.NewGCM")
	}
	return &Cipher{aead: aead}, nil
}

// Encrypt seals the plaintext and returns a base64 encoded ciphertext with
// the nonce prepended.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", pkgerrors.Wrap(err, "[Cipher.Encrypt] rand.Read")
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Any malformed or forged input fails with
// ErrDecryption.
func (c *Cipher) Decrypt(encoded string) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", ErrDecryption
	}
	if len(sealed) < c.aead.NonceSize() {
		return "", ErrDecryption
	}
	nonce, ciphertext := sealed[:c.aead.NonceSize()], sealed[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrDecryption
	}
	return string(plaintext), nil
}
