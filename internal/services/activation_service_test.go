package services

import (
	"testing"
	"time"

	"license-api/internal/apperrors"
	"license-api/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActivateDeviceSignsPendingLicense(t *testing.T) {
	db := setupTest(t)
	product := createTestProduct(t, db)
	activation := NewActivationService()

	_, err := NewKeyService().EnsureActiveKey()
	require.NoError(t, err)

	user := createTestUser(t, db, "device-42")
	license := models.License{
		ProductID:   product.ID,
		UserID:      user.ID,
		LicenseType: models.LicenseTypePermanent,
		Status:      models.LicenseStatusPending,
	}
	require.NoError(t, db.Create(&license).Error)

	result, err := activation.ActivateDevice(product.ID, "device-42", `{"os":"macos"}`)
	require.NoError(t, err)

	assert.Equal(t, license.ID, result.Payload.LicenseID)
	assert.Equal(t, product.ID, result.Payload.ProductID)
	assert.Equal(t, "device-42", result.Payload.DeviceID)
	assert.Equal(t, models.LicenseTypePermanent, result.Payload.LicenseType)
	assert.Nil(t, result.Payload.ExpiresAt)
	assert.NotEmpty(t, result.Payload.IssuedAt)
	assert.NotEmpty(t, result.Signature)

	// The consuming device rebuilds the canonical bytes and verifies
	canonical, err := result.Payload.CanonicalBytes()
	require.NoError(t, err)
	assert.True(t, CryptoEngine().VerifySignature(canonical, result.Signature, result.PublicKey))

	// License is now active and remembers its signing key
	var reloaded models.License
	require.NoError(t, db.First(&reloaded, license.ID).Error)
	assert.Equal(t, models.LicenseStatusActive, reloaded.Status)
	require.NotNil(t, reloaded.SigningKeyID)
	assert.Equal(t, result.Payload.KeyID, *reloaded.SigningKeyID)
	assert.NotNil(t, reloaded.ActivatedAt)
}

func TestActivateDeviceWithoutLicense(t *testing.T) {
	db := setupTest(t)
	product := createTestProduct(t, db)
	activation := NewActivationService()

	_, err := NewKeyService().EnsureActiveKey()
	require.NoError(t, err)

	_, err = activation.ActivateDevice(product.ID, "unknown-device", "{}")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	// The user is still created on first contact
	var user models.User
	require.NoError(t, db.Where("device_id = ?", "unknown-device").First(&user).Error)
}

func TestActivateDeviceWithoutKey(t *testing.T) {
	db := setupTest(t)
	product := createTestProduct(t, db)
	activation := NewActivationService()

	user := createTestUser(t, db, "device-42")
	require.NoError(t, db.Create(&models.License{
		ProductID:   product.ID,
		UserID:      user.ID,
		LicenseType: models.LicenseTypePermanent,
		Status:      models.LicenseStatusPending,
	}).Error)

	_, err := activation.ActivateDevice(product.ID, "device-42", "{}")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrConfiguration)
}

func TestActivateDevicePicksNewestLicense(t *testing.T) {
	db := setupTest(t)
	product := createTestProduct(t, db)
	activation := NewActivationService()

	_, err := NewKeyService().EnsureActiveKey()
	require.NoError(t, err)

	user := createTestUser(t, db, "device-42")
	older := models.License{
		ProductID:   product.ID,
		UserID:      user.ID,
		LicenseType: models.LicenseTypeSubscription,
		Status:      models.LicenseStatusActive,
	}
	older.CreatedAt = time.Now().Add(-time.Hour)
	require.NoError(t, db.Create(&older).Error)

	newer := models.License{
		ProductID:   product.ID,
		UserID:      user.ID,
		LicenseType: models.LicenseTypePermanent,
		Status:      models.LicenseStatusPending,
	}
	require.NoError(t, db.Create(&newer).Error)

	result, err := activation.ActivateDevice(product.ID, "device-42", "{}")
	require.NoError(t, err)
	assert.Equal(t, newer.ID, result.Payload.LicenseID)
}

func TestActivateDeviceExpiresOverdueLicense(t *testing.T) {
	db := setupTest(t)
	product := createTestProduct(t, db)
	activation := NewActivationService()

	_, err := NewKeyService().EnsureActiveKey()
	require.NoError(t, err)

	user := createTestUser(t, db, "device-42")
	past := time.Now().Add(-24 * time.Hour)
	overdue := models.License{
		ProductID:   product.ID,
		UserID:      user.ID,
		LicenseType: models.LicenseTypeSubscription,
		Status:      models.LicenseStatusActive,
		ExpiresAt:   &past,
	}
	require.NoError(t, db.Create(&overdue).Error)

	_, err = activation.ActivateDevice(product.ID, "device-42", "{}")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	// Expiry was observed lazily
	var reloaded models.License
	require.NoError(t, db.First(&reloaded, overdue.ID).Error)
	assert.Equal(t, models.LicenseStatusExpired, reloaded.Status)
}

func TestActivateDeviceReissuesForActiveLicense(t *testing.T) {
	db := setupTest(t)
	product := createTestProduct(t, db)
	activation := NewActivationService()

	_, err := NewKeyService().EnsureActiveKey()
	require.NoError(t, err)

	user := createTestUser(t, db, "device-42")
	require.NoError(t, db.Create(&models.License{
		ProductID:   product.ID,
		UserID:      user.ID,
		LicenseType: models.LicenseTypePermanent,
		Status:      models.LicenseStatusPending,
	}).Error)

	first, err := activation.ActivateDevice(product.ID, "device-42", "{}")
	require.NoError(t, err)

	// A repeat request re-issues a signed payload without a state change
	second, err := activation.ActivateDevice(product.ID, "device-42", "{}")
	require.NoError(t, err)
	assert.Equal(t, first.Payload.LicenseID, second.Payload.LicenseID)

	canonical, err := second.Payload.CanonicalBytes()
	require.NoError(t, err)
	assert.True(t, CryptoEngine().VerifySignature(canonical, second.Signature, second.PublicKey))
}

func TestCanonicalBytesFieldOrder(t *testing.T) {
	expires := "2026-01-02T03:04:05Z"
	payload := LicensePayload{
		LicenseID:   7,
		ProductID:   3,
		DeviceID:    "dev",
		LicenseType: models.LicenseTypeSubscription,
		ExpiresAt:   &expires,
		IssuedAt:    "2025-01-02T03:04:05Z",
		KeyID:       9,
	}

	canonical, err := payload.CanonicalBytes()
	require.NoError(t, err)
	assert.Equal(t,
		`{"licenseId":7,"productId":3,"deviceId":"dev","licenseType":"subscription","expiresAt":"2026-01-02T03:04:05Z","issuedAt":"2025-01-02T03:04:05Z","keyId":9}`,
		string(canonical))
}

func TestGetCloudConfig(t *testing.T) {
	db := setupTest(t)
	product := createTestProduct(t, db)
	activation := NewActivationService()

	cfg, err := activation.GetCloudConfig(product.ID)
	require.NoError(t, err)
	assert.EqualValues(t, product.ID, cfg["productId"])

	_, err = activation.GetCloudConfig(999)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
