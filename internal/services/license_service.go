package services

import (
	"errors"
	"fmt"
	"time"

	"license-api/internal/apperrors"
	"license-api/internal/database"
	"license-api/internal/models"

	"gorm.io/gorm"
)

// LicenseService owns the license lifecycle:
// pending -> active -> {expired, revoked}
type LicenseService struct {
	db    *gorm.DB
	keys  *KeyService
	users *UserService
	audit *AuditService
}

// NewLicenseService creates a new license service
func NewLicenseService() *LicenseService {
	return &LicenseService{
		db:    database.GetDB(),
		keys:  NewKeyService(),
		users: NewUserService(),
		audit: NewAuditService(),
	}
}

// CreateLicenseParams holds administrative license creation input
type CreateLicenseParams struct {
	ProductID   uint
	DeviceID    string
	LicenseType string
	ExpiresAt   *time.Time
	DeviceInfo  string
}

// GetByID gets a license by ID
func (s *LicenseService) GetByID(id uint) (*models.License, error) {
	var license models.License
	result := s.db.Preload("Product").Preload("User").First(&license, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: license %d", apperrors.ErrNotFound, id)
		}
		return nil, result.Error
	}
	return &license, nil
}

// Create creates a license administratively. It starts directly at
// active with the device bound, unlike ingestion-driven grants.
func (s *LicenseService) Create(params CreateLicenseParams) (*models.License, error) {
	if !isValidLicenseType(params.LicenseType) {
		return nil, fmt.Errorf("%w: unknown license type %q", apperrors.ErrValidation, params.LicenseType)
	}

	var product models.Product
	if err := s.db.First(&product, params.ProductID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: product %d", apperrors.ErrNotFound, params.ProductID)
		}
		return nil, err
	}

	user, err := s.users.FindOrCreateByDeviceID(params.DeviceID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	deviceInfo := params.DeviceInfo
	if deviceInfo == "" {
		deviceInfo = "{}"
	}
	license := models.License{
		ProductID:   params.ProductID,
		UserID:      user.ID,
		LicenseType: params.LicenseType,
		Status:      models.LicenseStatusActive,
		ExpiresAt:   params.ExpiresAt,
		DeviceInfo:  deviceInfo,
		ActivatedAt: &now,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&license).Error; err != nil {
			return fmt.Errorf("failed to create license: %w", err)
		}
		return s.audit.Record(tx, "license:create", map[string]interface{}{
			"license_id": license.ID,
			"product_id": params.ProductID,
			"device_id":  params.DeviceID,
		})
	})
	if err != nil {
		return nil, err
	}
	return &license, nil
}

// GrantTx creates an ingestion-driven license inside the caller's
// transaction. The license starts active only when the user already
// has a bound device, otherwise it waits in pending for activation.
func (s *LicenseService) GrantTx(tx *gorm.DB, user *models.User, productID uint, licenseType string, expiresAt *time.Time) (*models.License, error) {
	license := models.License{
		ProductID:   productID,
		UserID:      user.ID,
		LicenseType: licenseType,
		Status:      models.LicenseStatusPending,
		ExpiresAt:   expiresAt,
		DeviceInfo:  "{}",
	}
	if user.HasDevice() {
		now := time.Now()
		license.Status = models.LicenseStatusActive
		license.ActivatedAt = &now
	}

	if err := tx.Create(&license).Error; err != nil {
		return nil, fmt.Errorf("failed to grant license: %w", err)
	}
	return &license, nil
}

// Activate transitions a pending license to active, binding the
// reported device info. The status check and the update run as one
// compare-and-swap so exactly one activation succeeds; a license that
// is no longer pending fails with ErrConflict. Activation requires a
// current signing key.
func (s *LicenseService) Activate(licenseID uint, deviceInfo string) (*models.License, error) {
	if _, err := s.keys.GetActiveKey(); err != nil {
		return nil, err
	}

	if deviceInfo == "" {
		deviceInfo = "{}"
	}
	now := time.Now()

	result := s.db.Model(&models.License{}).
		Where("id = ? AND status = ?", licenseID, models.LicenseStatusPending).
		Updates(map[string]interface{}{
			"status":       models.LicenseStatusActive,
			"activated_at": now,
			"device_info":  deviceInfo,
		})
	if result.Error != nil {
		return nil, fmt.Errorf("failed to activate license: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		var license models.License
		if err := s.db.First(&license, licenseID).Error; errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: license %d", apperrors.ErrNotFound, licenseID)
		}
		return nil, fmt.Errorf("%w: license %d is not pending", apperrors.ErrConflict, licenseID)
	}

	return s.GetByID(licenseID)
}

// Revoke transitions a license to revoked from any non-terminal state
func (s *LicenseService) Revoke(id uint) (*models.License, error) {
	license, err := s.GetByID(id)
	if err != nil {
		return nil, err
	}
	if license.IsTerminal() {
		return nil, fmt.Errorf("%w: license %d is already %s", apperrors.ErrConflict, id, license.Status)
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(license).Update("status", models.LicenseStatusRevoked).Error; err != nil {
			return fmt.Errorf("failed to revoke license: %w", err)
		}
		return s.audit.Record(tx, "license:revoke", map[string]interface{}{
			"license_id": id,
		})
	})
	if err != nil {
		return nil, err
	}
	license.Status = models.LicenseStatusRevoked
	return license, nil
}

// RebindDevice reassigns a license to the user owning newDeviceID,
// creating that user if needed
func (s *LicenseService) RebindDevice(id uint, newDeviceID string) (*models.License, error) {
	license, err := s.GetByID(id)
	if err != nil {
		return nil, err
	}

	user, err := s.users.FindOrCreateByDeviceID(newDeviceID)
	if err != nil {
		return nil, err
	}
	if user.ID == license.UserID {
		return license, nil
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(license).Update("user_id", user.ID).Error; err != nil {
			return fmt.Errorf("failed to rebind license: %w", err)
		}
		return s.audit.Record(tx, "license:rebind", map[string]interface{}{
			"license_id":    id,
			"new_device_id": newDeviceID,
			"new_user_id":   user.ID,
		})
	})
	if err != nil {
		return nil, err
	}
	return s.GetByID(id)
}

// Remove permanently deletes a license. The audit event commits in the
// same transaction as the delete, so the deletion is never recorded
// without the event being durable.
func (s *LicenseService) Remove(id uint) error {
	license, err := s.GetByID(id)
	if err != nil {
		return err
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.audit.Record(tx, "license:delete", map[string]interface{}{
			"license_id": id,
			"user_id":    license.UserID,
			"product_id": license.ProductID,
		}); err != nil {
			return err
		}
		if err := tx.Unscoped().Delete(&models.License{}, id).Error; err != nil {
			return fmt.Errorf("failed to delete license: %w", err)
		}
		return nil
	})
}

// ExtendMany extends each license's expiry by the given number of
// calendar days, from the current expiry or from now when unset.
// The batch is all-or-nothing: any missing license aborts the whole
// transaction. Returns the number of licenses extended.
func (s *LicenseService) ExtendMany(licenseIDs []uint, days int) (int, error) {
	if days <= 0 {
		return 0, fmt.Errorf("%w: days must be positive", apperrors.ErrValidation)
	}

	extended := 0
	err := s.db.Transaction(func(tx *gorm.DB) error {
		for _, id := range licenseIDs {
			var license models.License
			if err := tx.First(&license, id).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("%w: license %d", apperrors.ErrNotFound, id)
				}
				return err
			}

			base := time.Now()
			if license.ExpiresAt != nil {
				base = *license.ExpiresAt
			}
			newExpiry := base.AddDate(0, 0, days)

			if err := tx.Model(&license).Update("expires_at", newExpiry).Error; err != nil {
				return fmt.Errorf("failed to extend license %d: %w", id, err)
			}
			extended++
		}
		return s.audit.Record(tx, "license:batch_extend", map[string]interface{}{
			"license_ids": licenseIDs,
			"days":        days,
		})
	})
	if err != nil {
		return 0, err
	}
	return extended, nil
}

// LicenseQuery holds listing filters
type LicenseQuery struct {
	ProductID   uint
	Status      string
	LicenseType string
	Page        int
	Limit       int
}

// FindAll lists licenses with filters and pagination, newest first
func (s *LicenseService) FindAll(query LicenseQuery) ([]*models.License, int64, error) {
	if query.Page < 1 {
		query.Page = 1
	}
	if query.Limit < 1 {
		query.Limit = 20
	}

	db := s.db.Model(&models.License{})
	if query.ProductID != 0 {
		db = db.Where("product_id = ?", query.ProductID)
	}
	if query.Status != "" {
		db = db.Where("status = ?", query.Status)
	}
	if query.LicenseType != "" {
		db = db.Where("license_type = ?", query.LicenseType)
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var licenses []*models.License
	err := db.Preload("Product").Preload("User").
		Order("created_at DESC").
		Offset((query.Page - 1) * query.Limit).
		Limit(query.Limit).
		Find(&licenses).Error
	if err != nil {
		return nil, 0, err
	}
	return licenses, total, nil
}

// UpdateLicenseParams holds administrative update input
type UpdateLicenseParams struct {
	DeviceID    string
	Status      string
	LicenseType string
	ExpiresAt   *time.Time
	ClearExpiry bool
}

// Update applies administrative field changes to a license
func (s *LicenseService) Update(id uint, params UpdateLicenseParams) (*models.License, error) {
	license, err := s.GetByID(id)
	if err != nil {
		return nil, err
	}

	if params.DeviceID != "" {
		if _, err := s.RebindDevice(id, params.DeviceID); err != nil {
			return nil, err
		}
	}

	updates := make(map[string]interface{})
	if params.Status != "" {
		updates["status"] = params.Status
	}
	if params.LicenseType != "" {
		if !isValidLicenseType(params.LicenseType) {
			return nil, fmt.Errorf("%w: unknown license type %q", apperrors.ErrValidation, params.LicenseType)
		}
		updates["license_type"] = params.LicenseType
	}
	if params.ExpiresAt != nil {
		updates["expires_at"] = *params.ExpiresAt
	} else if params.ClearExpiry {
		updates["expires_at"] = nil
	}

	if len(updates) > 0 {
		err = s.db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Model(license).Updates(updates).Error; err != nil {
				return fmt.Errorf("failed to update license: %w", err)
			}
			return s.audit.Record(tx, "license:update", map[string]interface{}{
				"license_id": id,
				"changes":    updates,
			})
		})
		if err != nil {
			return nil, err
		}
	}

	return s.GetByID(id)
}

// MarkExpired lazily transitions an overdue active license to expired
func (s *LicenseService) MarkExpired(id uint) error {
	result := s.db.Model(&models.License{}).
		Where("id = ? AND status = ?", id, models.LicenseStatusActive).
		Update("status", models.LicenseStatusExpired)
	return result.Error
}

func isValidLicenseType(licenseType string) bool {
	switch licenseType {
	case models.LicenseTypePermanent, models.LicenseTypeSubscription, models.LicenseTypeBalance:
		return true
	}
	return false
}
