package services

import (
	"testing"

	"license-api/internal/apperrors"
	"license-api/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdjustCreditsAndDebits(t *testing.T) {
	db := setupTest(t)
	user := createTestUser(t, db, "device-1")
	balances := NewBalanceService()

	updated, err := balances.Adjust(user.ID, decimal.RequireFromString("25.50"), "credit")
	require.NoError(t, err)
	assert.True(t, updated.Balance.Equal(decimal.RequireFromString("25.50")))

	updated, err = balances.Adjust(user.ID, decimal.RequireFromString("-10.50"), "debit")
	require.NoError(t, err)
	assert.True(t, updated.Balance.Equal(decimal.RequireFromString("15")))

	assert.EqualValues(t, 2, countAuditEvents(t, db, "balance:adjust"))
}

func TestAdjustRejectsNegativeResult(t *testing.T) {
	db := setupTest(t)
	user := createTestUser(t, db, "device-1")
	balances := NewBalanceService()

	_, err := balances.Adjust(user.ID, decimal.RequireFromString("10"), "seed")
	require.NoError(t, err)

	_, err = balances.Adjust(user.ID, decimal.RequireFromString("-20"), "overdraw")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInsufficientBalance)

	// Balance untouched
	var reloaded models.User
	require.NoError(t, db.First(&reloaded, user.ID).Error)
	assert.True(t, reloaded.Balance.Equal(decimal.RequireFromString("10")))

	// No audit entry for the rejected adjustment
	assert.EqualValues(t, 1, countAuditEvents(t, db, "balance:adjust"))
}

func TestAdjustUnknownUser(t *testing.T) {
	setupTest(t)
	balances := NewBalanceService()

	_, err := balances.Adjust(31337, decimal.RequireFromString("1"), "ghost")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestAdjustAccumulatesExactly(t *testing.T) {
	db := setupTest(t)
	user := createTestUser(t, db, "device-1")
	balances := NewBalanceService()

	// Repeated small credits must not drift
	for i := 0; i < 3; i++ {
		_, err := balances.Adjust(user.ID, decimal.RequireFromString("0.1"), "drip")
		require.NoError(t, err)
	}

	var reloaded models.User
	require.NoError(t, db.First(&reloaded, user.ID).Error)
	assert.Equal(t, "0.3", reloaded.Balance.String())
}
