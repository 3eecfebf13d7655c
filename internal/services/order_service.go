package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"license-api/internal/apperrors"
	"license-api/internal/config"
	"license-api/internal/database"
	"license-api/internal/models"
	"license-api/pkg/logging"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const orderLockTTL = 30 * time.Second

// OrderService converts provider payment events into license grants or
// balance credits, exactly once per out_trade_no. The push webhook and
// the pull reconciliation both funnel through ProcessOrder, sharing
// the same lock and deduplication record.
type OrderService struct {
	db       *gorm.DB
	users    *UserService
	licenses *LicenseService
	balances *BalanceService
	audit    *AuditService
	locker   OrderLocker
}

// NewOrderService creates a new order service with the Redis locker
func NewOrderService() *OrderService {
	return &OrderService{
		db:       database.GetDB(),
		users:    NewUserService(),
		licenses: NewLicenseService(),
		balances: NewBalanceService(),
		audit:    NewAuditService(),
		locker:   NewRedisLocker(database.GetRedis()),
	}
}

// NewOrderServiceWithLocker creates an order service with a custom locker
func NewOrderServiceWithLocker(locker OrderLocker) *OrderService {
	s := NewOrderService()
	s.locker = locker
	return s
}

// WebhookResult reports how an inbound event was handled
type WebhookResult struct {
	Ignored   bool `json:"ignored"`
	Duplicate bool `json:"duplicate"`
}

// HandleWebhook processes an inbound Afdian webhook event. A non-order
// event is acknowledged and ignored; a malformed envelope fails with
// ErrValidation; duplicate deliveries are absorbed silently because
// the provider retries pushes.
func (s *OrderService) HandleWebhook(ctx context.Context, payload *AfdianWebhookPayload) (*WebhookResult, error) {
	if payload == nil || payload.EC != 200 {
		return nil, fmt.Errorf("%w: invalid webhook payload", apperrors.ErrValidation)
	}

	if payload.Data.Type != "order" {
		logging.Infof("Ignoring webhook event of type %q", payload.Data.Type)
		return &WebhookResult{Ignored: true}, nil
	}

	processed, err := s.ProcessOrder(ctx, &payload.Data.Order)
	if err != nil {
		return nil, err
	}
	return &WebhookResult{Duplicate: !processed}, nil
}

// ProcessOrder runs the per-order pipeline. Returns false when the
// order was already recorded (idempotent no-op).
func (s *OrderService) ProcessOrder(ctx context.Context, order *AfdianOrderData) (bool, error) {
	if order.OutTradeNo == "" {
		return false, fmt.Errorf("%w: missing out_trade_no", apperrors.ErrValidation)
	}

	acquired, err := s.locker.Acquire(ctx, order.OutTradeNo, orderLockTTL)
	if err != nil {
		return false, fmt.Errorf("failed to acquire order lock: %w", err)
	}
	if !acquired {
		// Another path is processing this order right now; its existence
		// check or unique index will settle the outcome
		logging.Infof("Order %s is being processed elsewhere, skipping", order.OutTradeNo)
		return false, nil
	}
	defer func() {
		if err := s.locker.Release(ctx, order.OutTradeNo); err != nil {
			logging.Errorf("Failed to release order lock %s: %v", order.OutTradeNo, err)
		}
	}()

	// The order row is the deduplication record
	var existing models.Order
	err = s.db.Where("out_trade_no = ?", order.OutTradeNo).First(&existing).Error
	if err == nil {
		logging.Infof("Order already processed: %s", order.OutTradeNo)
		return false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, err
	}

	amount, err := decimal.NewFromString(order.TotalAmount)
	if err != nil {
		return false, fmt.Errorf("%w: invalid total_amount %q", apperrors.ErrValidation, order.TotalAmount)
	}

	user, err := s.users.FindOrCreateByAfdianUserID(order.UserID, strings.TrimSpace(order.Remark))
	if err != nil {
		return false, err
	}

	product, err := s.resolveProduct(order.PlanID)
	if err != nil {
		return false, err
	}

	rawData, err := json.Marshal(order)
	if err != nil {
		return false, fmt.Errorf("failed to marshal raw order: %w", err)
	}

	cfg := config.AppConfig
	err = s.db.Transaction(func(tx *gorm.DB) error {
		row := models.Order{
			OutTradeNo:   order.OutTradeNo,
			UserID:       user.ID,
			ProductID:    product.ID,
			AfdianUserID: order.UserID,
			PlanID:       order.PlanID,
			TotalAmount:  amount,
			Status:       order.Status,
			Remark:       order.Remark,
			RawData:      string(rawData),
		}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}

		switch TierFor(amount, cfg.PermanentThreshold, cfg.SubscriptionThreshold) {
		case models.LicenseTypePermanent:
			_, err := s.licenses.GrantTx(tx, user, product.ID, models.LicenseTypePermanent, nil)
			return err
		case models.LicenseTypeSubscription:
			// One calendar year, not a fixed day count
			expiresAt := time.Now().AddDate(cfg.SubscriptionYears, 0, 0)
			_, err := s.licenses.GrantTx(tx, user, product.ID, models.LicenseTypeSubscription, &expiresAt)
			return err
		default:
			_, err := s.balances.AdjustTx(tx, user.ID, amount, "order:"+order.OutTradeNo)
			return err
		}
	})
	if err != nil {
		if isDuplicateKeyError(err) {
			// The unique index caught a concurrent insert; the order is
			// recorded, so this delivery is a duplicate
			logging.Infof("Order %s recorded concurrently", order.OutTradeNo)
			return false, nil
		}
		return false, err
	}

	logging.Infof("Order processed successfully: %s (amount %s)", order.OutTradeNo, amount)
	return true, nil
}

// SyncResult reports a pull reconciliation run
type SyncResult struct {
	Total     int `json:"total"`
	Processed int `json:"processed"`
}

// SyncOrders pages through provider-listed orders and replays the
// per-order pipeline for any paid order not yet recorded. Provider
// failures after exhausted retries surface to the caller.
func (s *OrderService) SyncOrders(ctx context.Context, page int) (*SyncResult, error) {
	client, err := NewAfdianClient()
	if err != nil {
		return nil, err
	}

	if page < 1 {
		page = 1
	}
	orders, err := client.QueryOrders(ctx, page)
	if err != nil {
		return nil, err
	}

	paidStatus := config.AppConfig.OrderPaidStatus
	result := &SyncResult{Total: len(orders)}
	for i := range orders {
		if orders[i].Status != paidStatus {
			continue
		}
		processed, err := s.ProcessOrder(ctx, &orders[i])
		if err != nil {
			return result, err
		}
		if processed {
			result.Processed++
		}
	}

	return result, nil
}

// TierFor maps an order amount to the granted license type, or
// LicenseTypeBalance for a balance credit. Pure function of the amount
// and the configured thresholds; the lower bound of each tier is
// inclusive.
func TierFor(amount, permanentThreshold, subscriptionThreshold decimal.Decimal) string {
	switch {
	case amount.GreaterThanOrEqual(permanentThreshold):
		return models.LicenseTypePermanent
	case amount.GreaterThanOrEqual(subscriptionThreshold):
		return models.LicenseTypeSubscription
	default:
		return models.LicenseTypeBalance
	}
}

// resolveProduct maps a provider plan to a product via the configured
// mapping, falling back to the default product for unmapped plans
func (s *OrderService) resolveProduct(planID string) (*models.Product, error) {
	cfg := config.AppConfig

	productID, ok := cfg.PlanProductMapping[planID]
	if !ok {
		productID = cfg.DefaultProductID
	}

	var product models.Product
	err := s.db.First(&product, productID).Error
	if err == nil {
		return &product, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	// Last resort: the oldest configured product
	err = s.db.Order("id ASC").First(&product).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: no product configured", apperrors.ErrConfiguration)
		}
		return nil, err
	}
	return &product, nil
}

// isDuplicateKeyError detects a unique constraint violation across the
// supported drivers
func isDuplicateKeyError(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || // sqlite
		strings.Contains(msg, "duplicate key value") // postgres
}
