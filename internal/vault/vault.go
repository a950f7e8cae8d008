package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrMalformedPayload = errors.New("malformed vault payload")
	ErrDecryptFailed    = errors.New("vault decryption failed")
)

// Vault encrypts GitHub tokens at rest with AES-256-GCM. The opaque format
// is nonceHex:tagHex:dataHex; the tag makes tampering detectable.
type Vault struct {
	key []byte
}

func New(secret string) *Vault {
	key := sha256.Sum256([]byte(secret))
	return &Vault{key: key[:]}
}

func (v *Vault) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	block, err := aes.NewCipher(v.key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err = rand.Read(nonce); err != nil {
		return "", err
	}

	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)
	data, tag := sealed[:len(sealed)-gcm.Overhead()], sealed[len(sealed)-gcm.Overhead():]

	return hex.EncodeToString(nonce) + ":" + hex.EncodeToString(tag) + ":" + hex.EncodeToString(data), nil
}

func (v *Vault) Decrypt(payload string) (string, error) {
	if payload == "" {
		return "", nil
	}

	parts := strings.Split(payload, ":")
	if len(parts) != 3 {
		return "", ErrMalformedPayload
	}

	nonce, err := hex.DecodeString(parts[0])
	if err != nil {
		return "", ErrMalformedPayload
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", ErrMalformedPayload
	}
	data, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", ErrMalformedPayload
	}

	block, err := aes.NewCipher(v.key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	if len(nonce) != gcm.NonceSize() || len(tag) != gcm.Overhead() {
		return "", ErrMalformedPayload
	}

	plaintext, err := gcm.Open(nil, nonce, append(data, tag...), nil)
	if err != nil {
		return "", errors.Wrap(ErrDecryptFailed, err.Error())
	}
	return string(plaintext), nil
}
