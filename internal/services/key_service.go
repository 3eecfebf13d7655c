package services

import (
	"errors"
	"fmt"

	"license-api/internal/apperrors"
	"license-api/internal/crypto"
	"license-api/internal/database"
	"license-api/internal/models"
	"license-api/pkg/logging"

	"gorm.io/gorm"
)

var cryptoEngine *crypto.Engine

// InitCryptoEngine installs the process-wide crypto engine. Called once
// from main after the master secret has been validated.
func InitCryptoEngine(engine *crypto.Engine) {
	cryptoEngine = engine
}

// CryptoEngine returns the process-wide crypto engine
func CryptoEngine() *crypto.Engine {
	return cryptoEngine
}

// KeyService manages the signing keypair lifecycle. Keys are an
// append-only log: rotation flips the active flag inside one
// transaction and historical keys are retained forever so signatures
// issued under them stay verifiable.
type KeyService struct {
	db     *gorm.DB
	crypto *crypto.Engine
	audit  *AuditService
}

// NewKeyService creates a new key service
func NewKeyService() *KeyService {
	return &KeyService{
		db:     database.GetDB(),
		crypto: CryptoEngine(),
		audit:  NewAuditService(),
	}
}

// GetActiveKey returns the current signing key
func (s *KeyService) GetActiveKey() (*models.EncryptionKey, error) {
	var key models.EncryptionKey
	result := s.db.Where("is_active = ?", true).Order("created_at DESC").First(&key)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: no active signing key", apperrors.ErrConfiguration)
		}
		return nil, result.Error
	}
	return &key, nil
}

// GetKeyByID returns a historical key for verifying older signatures
func (s *KeyService) GetKeyByID(id uint) (*models.EncryptionKey, error) {
	var key models.EncryptionKey
	result := s.db.First(&key, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: key %d", apperrors.ErrNotFound, id)
		}
		return nil, result.Error
	}
	return &key, nil
}

// ListKeys returns all keys, newest first
func (s *KeyService) ListKeys() ([]*models.EncryptionKey, error) {
	var keys []*models.EncryptionKey
	if err := s.db.Order("created_at DESC").Find(&keys).Error; err != nil {
		return nil, err
	}
	return keys, nil
}

// RotateKey generates a new keypair, encrypts the private half and
// persists it as active. Deactivating the previous key and activating
// the new one commit in a single transaction so concurrent signers
// never observe two active keys.
func (s *KeyService) RotateKey() (*models.EncryptionKey, error) {
	publicKey, privateKey, err := s.crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}

	encryptedPrivateKey, err := s.crypto.EncryptPrivateKey(privateKey)
	if err != nil {
		return nil, err
	}

	key := models.EncryptionKey{
		PublicKey:  publicKey,
		PrivateKey: encryptedPrivateKey,
		IsActive:   true,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.EncryptionKey{}).
			Where("is_active = ?", true).
			Update("is_active", false).Error; err != nil {
			return fmt.Errorf("failed to deactivate previous key: %w", err)
		}
		if err := tx.Create(&key).Error; err != nil {
			return fmt.Errorf("failed to persist new key: %w", err)
		}
		return s.audit.Record(tx, "key:rotate", map[string]interface{}{
			"key_id": key.ID,
		})
	})
	if err != nil {
		return nil, err
	}

	logging.Infof("Rotated signing key, new key ID %d", key.ID)
	return &key, nil
}

// EnsureActiveKey bootstraps the first signing key when none exists
func (s *KeyService) EnsureActiveKey() (*models.EncryptionKey, error) {
	key, err := s.GetActiveKey()
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, apperrors.ErrConfiguration) {
		return nil, err
	}

	logging.Infof("No active signing key found, generating initial key")
	return s.RotateKey()
}

// ActivePrivateKey fetches the current signing key and decrypts its
// private half. Decryption failures are never retried.
func (s *KeyService) ActivePrivateKey() (*models.EncryptionKey, string, error) {
	key, err := s.GetActiveKey()
	if err != nil {
		return nil, "", err
	}
	privateKey, err := s.crypto.DecryptPrivateKey(key.PrivateKey)
	if err != nil {
		return nil, "", err
	}
	return key, privateKey, nil
}
