package services

import (
	"errors"
	"fmt"

	"license-api/internal/apperrors"
	"license-api/internal/database"
	"license-api/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// BalanceService maintains the per-user balance ledger. All arithmetic
// uses exact decimals; the balance never goes negative.
type BalanceService struct {
	db    *gorm.DB
	audit *AuditService
}

// NewBalanceService creates a new balance service
func NewBalanceService() *BalanceService {
	return &BalanceService{
		db:    database.GetDB(),
		audit: NewAuditService(),
	}
}

// Adjust applies a signed amount to a user's balance. A result below
// zero fails with ErrInsufficientBalance and leaves the balance
// untouched. Every committed adjustment records an audit entry with
// the old balance, new balance, amount and reason.
func (s *BalanceService) Adjust(userID uint, amount decimal.Decimal, reason string) (*models.User, error) {
	var user *models.User
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		user, err = s.adjustTx(tx, userID, amount, reason)
		return err
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// AdjustTx is Adjust running inside the caller's transaction, used by
// order ingestion so the credit commits together with the order row.
func (s *BalanceService) AdjustTx(tx *gorm.DB, userID uint, amount decimal.Decimal, reason string) (*models.User, error) {
	return s.adjustTx(tx, userID, amount, reason)
}

func (s *BalanceService) adjustTx(tx *gorm.DB, userID uint, amount decimal.Decimal, reason string) (*models.User, error) {
	var user models.User
	if err := tx.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: user %d", apperrors.ErrNotFound, userID)
		}
		return nil, err
	}

	oldBalance := user.Balance
	newBalance := oldBalance.Add(amount)
	if newBalance.IsNegative() {
		return nil, fmt.Errorf("%w: balance %s cannot absorb %s", apperrors.ErrInsufficientBalance, oldBalance, amount)
	}

	// Guard against a concurrent adjustment between the read and the
	// write; the row store enforces this compare-and-swap
	result := tx.Model(&models.User{}).
		Where("id = ? AND balance = ?", userID, oldBalance).
		Update("balance", newBalance)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to update balance: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: concurrent balance update for user %d", apperrors.ErrConflict, userID)
	}

	if err := s.audit.Record(tx, "balance:adjust", map[string]interface{}{
		"user_id":     userID,
		"amount":      amount.String(),
		"reason":      reason,
		"old_balance": oldBalance.String(),
		"new_balance": newBalance.String(),
	}); err != nil {
		return nil, err
	}

	user.Balance = newBalance
	return &user, nil
}
