package encryption

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"

	"suvidha-service/internal/config"
	"suvidha-service/internal/util"
)

var (
	ErrEncryptionFailed = errors.New("encryption failed")
	ErrDecryptionFailed = errors.New("decryption failed")
)

// Manager does envelope encryption for sensitive citizen fields. With KMS
// enabled the data key is wrapped by the configured master key; without it
// a locally generated key is stored alongside, which is only acceptable
// outside production.
type Manager struct {
	kmsClient *kms.Client
	config    *config.Config
	keyCache  sync.Map // wrapped DEK -> plaintext DEK
}

type dataKey struct {
	plaintext  []byte
	ciphertext []byte
}

func NewManager(cfg *config.Config, kmsClient *kms.Client) *Manager {
	return &Manager{
		kmsClient: kmsClient,
		config:    cfg,
	}
}

// EncryptField seals plaintext under a fresh data key and packs the result
// into one column-friendly string: v1$<wrapped-dek>$<ciphertext>.
func (m *Manager) EncryptField(ctx context.Context, plaintext string) (string, error) {
	key, err := m.generateDataKey(ctx)
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(key.plaintext)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}
	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)

	wrapped := base64.StdEncoding.EncodeToString(key.ciphertext)
	m.keyCache.Store(wrapped, key.plaintext)

	return strings.Join([]string{
		"v1",
		wrapped,
		base64.StdEncoding.EncodeToString(sealed),
	}, "$"), nil
}

// DecryptField reverses EncryptField.
func (m *Manager) DecryptField(ctx context.Context, encoded string) (string, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 3 || parts[0] != "v1" {
		return "", fmt.Errorf("%w: malformed envelope", ErrDecryptionFailed)
	}
	wrapped, sealedB64 := parts[1], parts[2]

	plainKey, err := m.unwrapDataKey(ctx, wrapped)
	if err != nil {
		return "", err
	}

	sealed, err := base64.StdEncoding.DecodeString(sealedB64)
	if err != nil {
		return "", fmt.Errorf("%w: invalid ciphertext format", ErrDecryptionFailed)
	}

	block, err := aes.NewCipher(plainKey)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	nonceSize := gcm.NonceSize()
	if len(sealed) < nonceSize {
		return "", fmt.Errorf("%w: ciphertext too short", ErrDecryptionFailed)
	}
	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	return string(plaintext), nil
}

func (m *Manager) generateDataKey(ctx context.Context) (*dataKey, error) {
	if !m.config.KMS.Enabled {
		return m.generateLocalKey()
	}

	result, err := m.kmsClient.GenerateDataKey(ctx, &kms.GenerateDataKeyInput{
		KeyId:   aws.String(m.config.KMS.KeyID),
		KeySpec: types.DataKeySpecAes256,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate data key: %w", err)
	}
	return &dataKey{
		plaintext:  result.Plaintext,
		ciphertext: result.CiphertextBlob,
	}, nil
}

func (m *Manager) generateLocalKey() (*dataKey, error) {
	key := make([]byte, 32) // AES-256
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}
	// Without KMS the "wrapped" key is just the key itself; only usable
	// outside production.
	return &dataKey{
		plaintext:  key,
		ciphertext: key,
	}, nil
}

func (m *Manager) unwrapDataKey(ctx context.Context, wrapped string) ([]byte, error) {
	if cached, ok := m.keyCache.Load(wrapped); ok {
		return cached.([]byte), nil
	}

	blob, err := base64.StdEncoding.DecodeString(wrapped)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid DEK format", ErrDecryptionFailed)
	}

	var plainKey []byte
	if m.config.KMS.Enabled {
		result, err := m.kmsClient.Decrypt(ctx, &kms.DecryptInput{CiphertextBlob: blob})
		if err != nil {
			return nil, fmt.Errorf("%w: failed to decrypt DEK: %v", ErrDecryptionFailed, err)
		}
		plainKey = result.Plaintext
	} else {
		plainKey = blob
	}

	m.keyCache.Store(wrapped, plainKey)
	return plainKey, nil
}

// ClearCache drops cached data keys.
func (m *Manager) ClearCache() {
	m.keyCache.Range(func(key, _ interface{}) bool {
		m.keyCache.Delete(key)
		return true
	})
	util.Debug("encryption key cache cleared")
}
