package services

import (
	"encoding/json"
	"fmt"

	"license-api/internal/database"
	"license-api/internal/models"
	"license-api/pkg/logging"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuditService appends structured events to the audit log
type AuditService struct {
	db *gorm.DB
}

// NewAuditService creates a new audit service
func NewAuditService() *AuditService {
	return &AuditService{
		db: database.GetDB(),
	}
}

// Record writes an audit event using the given database handle, so it
// can participate in a caller's transaction. Operations that must not
// proceed before the event is durable (license removal) rely on this.
func (s *AuditService) Record(tx *gorm.DB, action string, details map[string]interface{}) error {
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("failed to marshal audit details: %w", err)
	}

	entry := models.AuditLog{
		EventID: uuid.NewString(),
		Action:  action,
		Details: string(detailsJSON),
	}
	if err := tx.Create(&entry).Error; err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

// Log writes an audit event outside any transaction, best effort
func (s *AuditService) Log(action string, details map[string]interface{}) {
	if err := s.Record(s.db, action, details); err != nil {
		logging.Errorf("Failed to write audit log for %s: %v", action, err)
	}
}
