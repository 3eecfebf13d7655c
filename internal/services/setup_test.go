package services

import (
	"fmt"
	"strings"
	"testing"

	"license-api/internal/config"
	"license-api/internal/crypto"
	"license-api/internal/database"
	"license-api/internal/models"
	"license-api/pkg/logging"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

const testMasterSecret = "services-test-master-secret-0123456789abcdef"

// setupTest wires an isolated in-memory SQLite database, a test config
// and the crypto engine for one test
func setupTest(t *testing.T) *gorm.DB {
	t.Helper()

	logging.InitLogging()

	config.AppConfig = &config.Config{
		MasterEncryptionKey:    testMasterSecret,
		MasterKeyMinLength:     32,
		OrderPaidStatus:        2,
		ProviderTimeoutSeconds: 2,
		ProviderMaxRetries:     2,
		PermanentThreshold:     decimal.RequireFromString("100"),
		SubscriptionThreshold:  decimal.RequireFromString("30"),
		SubscriptionYears:      1,
		PlanProductMapping:     map[string]uint{},
		DefaultProductID:       1,
	}

	engine, err := crypto.NewEngine(testMasterSecret, config.AppConfig.MasterKeyMinLength)
	require.NoError(t, err)
	InitCryptoEngine(engine)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NamingStrategy: schema.NamingStrategy{
			SingularTable: true,
		},
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.Product{},
		&models.User{},
		&models.EncryptionKey{},
		&models.License{},
		&models.Order{},
		&models.AuditLog{},
	))

	database.DB = db
	return db
}

func createTestProduct(t *testing.T, db *gorm.DB) *models.Product {
	t.Helper()
	product := models.Product{
		Name:        "Test Product",
		CloudConfig: `{"feature":true}`,
	}
	require.NoError(t, db.Create(&product).Error)
	return &product
}

func createTestUser(t *testing.T, db *gorm.DB, deviceID string) *models.User {
	t.Helper()
	user := models.User{}
	if deviceID != "" {
		user.DeviceID = &deviceID
	}
	require.NoError(t, db.Create(&user).Error)
	return &user
}

func countAuditEvents(t *testing.T, db *gorm.DB, action string) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(&models.AuditLog{}).Where("action = ?", action).Count(&count).Error)
	return count
}
