package services

import (
	"errors"
	"fmt"

	"license-api/internal/apperrors"
	"license-api/internal/database"
	"license-api/internal/models"

	"gorm.io/gorm"
)

// UserService provides user resolution operations. Users are created
// on first activation or on the first payment event referencing a new
// external identity.
type UserService struct {
	db *gorm.DB
}

// NewUserService creates a new user service
func NewUserService() *UserService {
	return &UserService{
		db: database.GetDB(),
	}
}

// GetByID gets a user by ID
func (s *UserService) GetByID(id uint) (*models.User, error) {
	var user models.User
	result := s.db.First(&user, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: user %d", apperrors.ErrNotFound, id)
		}
		return nil, result.Error
	}
	return &user, nil
}

// FindOrCreateByDeviceID resolves a user by device ID, creating one if absent
func (s *UserService) FindOrCreateByDeviceID(deviceID string) (*models.User, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("%w: device ID is required", apperrors.ErrValidation)
	}

	var user models.User
	result := s.db.Where("device_id = ?", deviceID).First(&user)
	if result.Error == nil {
		return &user, nil
	}
	if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, result.Error
	}

	user = models.User{DeviceID: &deviceID}
	if err := s.db.Create(&user).Error; err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return &user, nil
}

// FindOrCreateByAfdianUserID resolves a user by the payment provider's
// external identity. The device hint comes from the order remark and is
// unauthenticated free text: it is only used to pre-bind a brand-new
// user and never overwrites an existing binding.
func (s *UserService) FindOrCreateByAfdianUserID(afdianUserID, deviceHint string) (*models.User, error) {
	if afdianUserID == "" {
		return nil, fmt.Errorf("%w: afdian user ID is required", apperrors.ErrValidation)
	}

	var user models.User
	result := s.db.Where("afdian_user_id = ?", afdianUserID).First(&user)
	if result.Error == nil {
		return &user, nil
	}
	if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, result.Error
	}

	user = models.User{AfdianUserID: &afdianUserID}
	if deviceHint != "" {
		// The hinted device may already belong to another user; in that
		// case leave the new user unbound rather than stealing it
		var existing models.User
		if err := s.db.Where("device_id = ?", deviceHint).First(&existing).Error; errors.Is(err, gorm.ErrRecordNotFound) {
			user.DeviceID = &deviceHint
		}
	}
	if err := s.db.Create(&user).Error; err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return &user, nil
}
