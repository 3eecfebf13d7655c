package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"license-api/internal/apperrors"
	"license-api/internal/crypto"
	"license-api/internal/database"
	"license-api/internal/models"
	"license-api/pkg/logging"

	"gorm.io/gorm"
)

// LicensePayload is the signed activation payload. The struct field
// order is the signing contract: canonical bytes are the JSON encoding
// of this struct, which Go emits in declaration order, so a verifier
// that rebuilds the same struct reproduces byte-identical input
// regardless of platform map ordering.
type LicensePayload struct {
	LicenseID   uint    `json:"licenseId"`
	ProductID   uint    `json:"productId"`
	DeviceID    string  `json:"deviceId"`
	LicenseType string  `json:"licenseType"`
	ExpiresAt   *string `json:"expiresAt"`
	IssuedAt    string  `json:"issuedAt"`
	KeyID       uint    `json:"keyId"`
}

// CanonicalBytes returns the canonical byte encoding of the payload
func (p *LicensePayload) CanonicalBytes() ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	return data, nil
}

// ActivationResult is returned to the activating device
type ActivationResult struct {
	Payload   *LicensePayload `json:"payload"`
	Signature string          `json:"signature"`
	PublicKey string          `json:"publicKey"`
}

// ActivationService turns a (device, product) request into a signed
// license payload
type ActivationService struct {
	db       *gorm.DB
	users    *UserService
	licenses *LicenseService
	keys     *KeyService
	crypto   *crypto.Engine
}

// NewActivationService creates a new activation service
func NewActivationService() *ActivationService {
	return &ActivationService{
		db:       database.GetDB(),
		users:    NewUserService(),
		licenses: NewLicenseService(),
		keys:     NewKeyService(),
		crypto:   CryptoEngine(),
	}
}

// ActivateDevice resolves the user by device ID, selects their most
// recent usable license for the product, activates it when pending,
// and issues a signed payload under the current active key.
func (s *ActivationService) ActivateDevice(productID uint, deviceID string, deviceInfo string) (*ActivationResult, error) {
	if productID == 0 || deviceID == "" {
		return nil, fmt.Errorf("%w: product ID and device ID are required", apperrors.ErrValidation)
	}

	user, err := s.users.FindOrCreateByDeviceID(deviceID)
	if err != nil {
		return nil, err
	}

	license, err := s.selectLicense(user.ID, productID)
	if err != nil {
		return nil, err
	}

	if license.Status == models.LicenseStatusPending {
		license, err = s.licenses.Activate(license.ID, deviceInfo)
		if err != nil {
			return nil, err
		}
	}

	key, privateKey, err := s.keys.ActivePrivateKey()
	if err != nil {
		return nil, err
	}

	var expiresAt *string
	if license.ExpiresAt != nil {
		formatted := license.ExpiresAt.UTC().Format(time.RFC3339)
		expiresAt = &formatted
	}

	payload := &LicensePayload{
		LicenseID:   license.ID,
		ProductID:   productID,
		DeviceID:    deviceID,
		LicenseType: license.LicenseType,
		ExpiresAt:   expiresAt,
		IssuedAt:    time.Now().UTC().Format(time.RFC3339),
		KeyID:       key.ID,
	}

	canonical, err := payload.CanonicalBytes()
	if err != nil {
		return nil, err
	}

	signature, err := s.crypto.SignPayload(canonical, privateKey)
	if err != nil {
		return nil, err
	}

	// Remember which key signed this license so verification can fetch
	// the matching historical public key after rotations
	if err := s.db.Model(license).Update("signing_key_id", key.ID).Error; err != nil {
		return nil, fmt.Errorf("failed to record signing key: %w", err)
	}

	logging.Infof("Issued signed payload for license %d (device %s, key %d)", license.ID, deviceID, key.ID)

	return &ActivationResult{
		Payload:   payload,
		Signature: signature,
		PublicKey: key.PublicKey,
	}, nil
}

// selectLicense picks the newest pending or active license for the
// user and product. Expiry is observed lazily here: an overdue active
// license is marked expired and skipped.
func (s *ActivationService) selectLicense(userID, productID uint) (*models.License, error) {
	var candidates []*models.License
	err := s.db.
		Where("user_id = ? AND product_id = ? AND status IN ?",
			userID, productID,
			[]string{models.LicenseStatusPending, models.LicenseStatusActive}).
		Order("created_at DESC, id DESC").
		Find(&candidates).Error
	if err != nil {
		return nil, err
	}

	now := time.Now()
	for _, license := range candidates {
		if license.Status == models.LicenseStatusActive && license.IsOverdue(now) {
			if err := s.licenses.MarkExpired(license.ID); err != nil {
				logging.Errorf("Failed to mark license %d expired: %v", license.ID, err)
			}
			continue
		}
		return license, nil
	}

	return nil, fmt.Errorf("%w: no valid license for this device", apperrors.ErrNotFound)
}

// GetCloudConfig returns a product's cloud configuration verbatim
func (s *ActivationService) GetCloudConfig(productID uint) (map[string]interface{}, error) {
	var product models.Product
	if err := s.db.First(&product, productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: product %d", apperrors.ErrNotFound, productID)
		}
		return nil, err
	}

	config := product.CloudConfig
	if config == "" {
		config = "{}"
	}
	return map[string]interface{}{
		"productId": product.ID,
		"config":    json.RawMessage(config),
	}, nil
}
