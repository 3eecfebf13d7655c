package services

import (
	"context"
	"testing"
	"time"

	"license-api/internal/apperrors"
	"license-api/internal/config"
	"license-api/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOrderService() *OrderService {
	return NewOrderServiceWithLocker(NewMemoryLocker())
}

func paidOrder(outTradeNo, afdianUserID, amount string) *AfdianOrderData {
	return &AfdianOrderData{
		OutTradeNo:  outTradeNo,
		UserID:      afdianUserID,
		PlanID:      "plan-x",
		TotalAmount: amount,
		Status:      2,
	}
}

func TestTierFor(t *testing.T) {
	permanent := decimal.RequireFromString("100")
	subscription := decimal.RequireFromString("30")

	cases := []struct {
		amount string
		want   string
	}{
		{"100", models.LicenseTypePermanent},
		{"150.00", models.LicenseTypePermanent},
		{"99.99", models.LicenseTypeSubscription},
		{"30", models.LicenseTypeSubscription},
		{"29.99", models.LicenseTypeBalance},
		{"0.01", models.LicenseTypeBalance},
	}
	for _, tc := range cases {
		got := TierFor(decimal.RequireFromString(tc.amount), permanent, subscription)
		assert.Equal(t, tc.want, got, "amount %s", tc.amount)
	}
}

func TestProcessOrderGrantsPermanentLicense(t *testing.T) {
	db := setupTest(t)
	createTestProduct(t, db)
	orders := newTestOrderService()

	processed, err := orders.ProcessOrder(context.Background(), paidOrder("trade-1", "afdian-1", "100"))
	require.NoError(t, err)
	assert.True(t, processed)

	var license models.License
	require.NoError(t, db.First(&license).Error)
	assert.Equal(t, models.LicenseTypePermanent, license.LicenseType)
	assert.Nil(t, license.ExpiresAt)
	// No bound device yet, so the grant waits in pending
	assert.Equal(t, models.LicenseStatusPending, license.Status)
}

func TestProcessOrderGrantsSubscription(t *testing.T) {
	db := setupTest(t)
	createTestProduct(t, db)
	orders := newTestOrderService()

	processed, err := orders.ProcessOrder(context.Background(), paidOrder("trade-1", "afdian-1", "30"))
	require.NoError(t, err)
	assert.True(t, processed)

	var license models.License
	require.NoError(t, db.First(&license).Error)
	assert.Equal(t, models.LicenseTypeSubscription, license.LicenseType)
	require.NotNil(t, license.ExpiresAt)
	// One calendar year out
	assert.WithinDuration(t, time.Now().AddDate(1, 0, 0), *license.ExpiresAt, time.Minute)
}

func TestProcessOrderCreditsBalance(t *testing.T) {
	db := setupTest(t)
	createTestProduct(t, db)
	orders := newTestOrderService()

	processed, err := orders.ProcessOrder(context.Background(), paidOrder("trade-1", "afdian-1", "29.99"))
	require.NoError(t, err)
	assert.True(t, processed)

	var licenseCount int64
	require.NoError(t, db.Model(&models.License{}).Count(&licenseCount).Error)
	assert.EqualValues(t, 0, licenseCount)

	var user models.User
	require.NoError(t, db.Where("afdian_user_id = ?", "afdian-1").First(&user).Error)
	assert.True(t, user.Balance.Equal(decimal.RequireFromString("29.99")))
}

func TestProcessOrderIsIdempotent(t *testing.T) {
	db := setupTest(t)
	createTestProduct(t, db)
	orders := newTestOrderService()

	processed, err := orders.ProcessOrder(context.Background(), paidOrder("trade-dup", "afdian-1", "100"))
	require.NoError(t, err)
	assert.True(t, processed)

	// At-least-once delivery: the replay is a silent no-op
	processed, err = orders.ProcessOrder(context.Background(), paidOrder("trade-dup", "afdian-1", "100"))
	require.NoError(t, err)
	assert.False(t, processed)

	var orderCount, licenseCount int64
	require.NoError(t, db.Model(&models.Order{}).Count(&orderCount).Error)
	require.NoError(t, db.Model(&models.License{}).Count(&licenseCount).Error)
	assert.EqualValues(t, 1, orderCount)
	assert.EqualValues(t, 1, licenseCount)
}

func TestProcessOrderActiveWhenDeviceBound(t *testing.T) {
	db := setupTest(t)
	createTestProduct(t, db)
	orders := newTestOrderService()

	// User already exists with a bound device
	deviceID := "bound-device"
	afdianID := "afdian-bound"
	require.NoError(t, db.Create(&models.User{DeviceID: &deviceID, AfdianUserID: &afdianID}).Error)

	_, err := orders.ProcessOrder(context.Background(), paidOrder("trade-1", afdianID, "100"))
	require.NoError(t, err)

	var license models.License
	require.NoError(t, db.First(&license).Error)
	assert.Equal(t, models.LicenseStatusActive, license.Status)
	assert.NotNil(t, license.ActivatedAt)
}

func TestProcessOrderUsesRemarkAsDeviceHint(t *testing.T) {
	db := setupTest(t)
	createTestProduct(t, db)
	orders := newTestOrderService()

	order := paidOrder("trade-1", "afdian-new", "100")
	order.Remark = "hinted-device"

	_, err := orders.ProcessOrder(context.Background(), order)
	require.NoError(t, err)

	var user models.User
	require.NoError(t, db.Where("afdian_user_id = ?", "afdian-new").First(&user).Error)
	require.NotNil(t, user.DeviceID)
	assert.Equal(t, "hinted-device", *user.DeviceID)

	// The hint bound the device, so the license starts active
	var license models.License
	require.NoError(t, db.First(&license).Error)
	assert.Equal(t, models.LicenseStatusActive, license.Status)
}

func TestProcessOrderHintNeverStealsDevice(t *testing.T) {
	db := setupTest(t)
	createTestProduct(t, db)
	orders := newTestOrderService()

	// The hinted device already belongs to someone else
	deviceID := "claimed-device"
	require.NoError(t, db.Create(&models.User{DeviceID: &deviceID}).Error)

	order := paidOrder("trade-1", "afdian-new", "100")
	order.Remark = "claimed-device"

	_, err := orders.ProcessOrder(context.Background(), order)
	require.NoError(t, err)

	var user models.User
	require.NoError(t, db.Where("afdian_user_id = ?", "afdian-new").First(&user).Error)
	assert.Nil(t, user.DeviceID)
}

func TestProcessOrderPlanMapping(t *testing.T) {
	db := setupTest(t)
	defaultProduct := createTestProduct(t, db)
	proProduct := models.Product{Name: "Pro Product"}
	require.NoError(t, db.Create(&proProduct).Error)

	config.AppConfig.DefaultProductID = defaultProduct.ID
	config.AppConfig.PlanProductMapping = map[string]uint{"plan-pro": proProduct.ID}
	orders := newTestOrderService()

	mapped := paidOrder("trade-mapped", "afdian-1", "100")
	mapped.PlanID = "plan-pro"
	_, err := orders.ProcessOrder(context.Background(), mapped)
	require.NoError(t, err)

	unmapped := paidOrder("trade-unmapped", "afdian-1", "100")
	unmapped.PlanID = "plan-unknown"
	_, err = orders.ProcessOrder(context.Background(), unmapped)
	require.NoError(t, err)

	var mappedLicense models.License
	require.NoError(t, db.Where("product_id = ?", proProduct.ID).First(&mappedLicense).Error)
	var fallbackLicense models.License
	require.NoError(t, db.Where("product_id = ?", defaultProduct.ID).First(&fallbackLicense).Error)
}

func TestProcessOrderRejectsBadInput(t *testing.T) {
	db := setupTest(t)
	createTestProduct(t, db)
	orders := newTestOrderService()

	_, err := orders.ProcessOrder(context.Background(), &AfdianOrderData{UserID: "u", TotalAmount: "10"})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = orders.ProcessOrder(context.Background(), paidOrder("trade-1", "afdian-1", "not-a-number"))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	var orderCount int64
	require.NoError(t, db.Model(&models.Order{}).Count(&orderCount).Error)
	assert.EqualValues(t, 0, orderCount)
}

func TestHandleWebhook(t *testing.T) {
	db := setupTest(t)
	createTestProduct(t, db)
	orders := newTestOrderService()

	// Malformed envelope
	_, err := orders.HandleWebhook(context.Background(), &AfdianWebhookPayload{EC: 400})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	// Non-order events are acknowledged and ignored
	ping := &AfdianWebhookPayload{EC: 200}
	ping.Data.Type = "ping"
	result, err := orders.HandleWebhook(context.Background(), ping)
	require.NoError(t, err)
	assert.True(t, result.Ignored)

	// Order events run the pipeline
	event := &AfdianWebhookPayload{EC: 200}
	event.Data.Type = "order"
	event.Data.Order = *paidOrder("trade-wh", "afdian-1", "100")
	result, err = orders.HandleWebhook(context.Background(), event)
	require.NoError(t, err)
	assert.False(t, result.Ignored)
	assert.False(t, result.Duplicate)

	// Provider retries are absorbed silently
	result, err = orders.HandleWebhook(context.Background(), event)
	require.NoError(t, err)
	assert.True(t, result.Duplicate)

	var orderCount int64
	require.NoError(t, db.Model(&models.Order{}).Count(&orderCount).Error)
	assert.EqualValues(t, 1, orderCount)
}

func TestProcessOrderStoresRawPayload(t *testing.T) {
	db := setupTest(t)
	createTestProduct(t, db)
	orders := newTestOrderService()

	order := paidOrder("trade-raw", "afdian-1", "50")
	order.Remark = "keep me verbatim"
	_, err := orders.ProcessOrder(context.Background(), order)
	require.NoError(t, err)

	var row models.Order
	require.NoError(t, db.Where("out_trade_no = ?", "trade-raw").First(&row).Error)
	assert.Contains(t, row.RawData, `"out_trade_no":"trade-raw"`)
	assert.Contains(t, row.RawData, "keep me verbatim")
	assert.True(t, row.TotalAmount.Equal(decimal.RequireFromString("50")))
}
