package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aretw0/docflow/pkg/domain"
	"github.com/aretw0/docflow/pkg/ports"
)

const envelopeKey = "__encrypted__"

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey is the key used for encrypting new data.
	// Must be 32 bytes for AES-256.
	ActiveKey []byte

	// FallbackKeys is a list of old keys to try when decryption fails.
	// This enables zero-downtime key rotation.
	FallbackKeys [][]byte
}

type encryptionMiddleware struct {
	passthrough
	config EncryptionConfig
}

// NewEncryptionMiddleware creates a middleware that encrypts variant content
// and handle variables with AES-GCM. The state pointer, requests and version
// stay readable so that stores can still check versions and index schedules.
func NewEncryptionMiddleware(config EncryptionConfig) (Middleware, error) {
	if len(config.ActiveKey) != 32 {
		return nil, errors.New("active key must be 32 bytes (AES-256)")
	}
	return func(next ports.HandleStore) ports.HandleStore {
		return &encryptionMiddleware{
			passthrough: passthrough{next: next},
			config:      config,
		}
	}, nil
}

func (m *encryptionMiddleware) Save(ctx context.Context, h *domain.DocumentHandle) error {
	envelope := h.Clone()
	for _, v := range envelope.Variants {
		sealed, err := m.seal(v.Content)
		if err != nil {
			return fmt.Errorf("failed to encrypt %s content: %w", v.State, err)
		}
		v.Content = sealed
	}
	sealed, err := m.seal(envelope.Variables)
	if err != nil {
		return fmt.Errorf("failed to encrypt variables: %w", err)
	}
	envelope.Variables = sealed

	if err := m.next.Save(ctx, envelope); err != nil {
		return err
	}
	h.Version = envelope.Version
	return nil
}

func (m *encryptionMiddleware) Load(ctx context.Context, id string) (*domain.DocumentHandle, error) {
	h, err := m.next.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, v := range h.Variants {
		if v.Content, err = m.open(v.Content); err != nil {
			return nil, fmt.Errorf("failed to decrypt %s content: %w", v.State, err)
		}
	}
	if h.Variables, err = m.open(h.Variables); err != nil {
		return nil, fmt.Errorf("failed to decrypt variables: %w", err)
	}
	if h.Variables == nil {
		h.Variables = make(map[string]any)
	}
	return h, nil
}

func (m *encryptionMiddleware) seal(values map[string]any) (map[string]any, error) {
	if len(values) == 0 {
		return values, nil
	}
	plainText, err := json.Marshal(values)
	if err != nil {
		return nil, err
	}
	ciphertext, err := encrypt(plainText, m.config.ActiveKey)
	if err != nil {
		return nil, err
	}
	return map[string]any{envelopeKey: base64.StdEncoding.EncodeToString(ciphertext)}, nil
}

// open fails on plain maps: once encryption is configured, stored data is
// expected to be sealed.
func (m *encryptionMiddleware) open(values map[string]any) (map[string]any, error) {
	if len(values) == 0 {
		return values, nil
	}
	encoded, ok := values[envelopeKey].(string)
	if !ok || len(values) != 1 {
		return nil, errors.New("missing encrypted data envelope")
	}
	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ciphertext base64: %w", err)
	}
	plainText, err := decryptWithRotation(ciphertext, m.config.ActiveKey, m.config.FallbackKeys)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(plainText, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal decrypted data: %w", err)
	}
	return out, nil
}

func encrypt(plaintext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decryptWithRotation(ciphertext []byte, activeKey []byte, fallbackKeys [][]byte) ([]byte, error) {
	if plain, err := decrypt(ciphertext, activeKey); err == nil {
		return plain, nil
	}
	for _, key := range fallbackKeys {
		if plain, err := decrypt(ciphertext, key); err == nil {
			return plain, nil
		}
	}
	return nil, errors.New("decryption failed with all available keys")
}

func decrypt(ciphertext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}

	nonce := ciphertext[:gcm.NonceSize()]
	return gcm.Open(nil, nonce, ciphertext[gcm.NonceSize():], nil)
}
