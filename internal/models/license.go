package models

import (
	"time"
)

// License type constants
const (
	LicenseTypePermanent    = "permanent"
	LicenseTypeSubscription = "subscription"
	LicenseTypeBalance      = "balance"
)

// License status constants. Status only moves forward:
// pending -> active -> {expired, revoked}; expired and revoked are terminal.
const (
	LicenseStatusPending = "pending"
	LicenseStatusActive  = "active"
	LicenseStatusExpired = "expired"
	LicenseStatusRevoked = "revoked"
)

// License 许可证模型
type License struct {
	BaseModel

	ProductID uint `json:"product_id" gorm:"not null;index"`
	UserID    uint `json:"user_id" gorm:"not null;index"`

	// 许可证类型：permanent（永久）、subscription（订阅）、balance（余额）
	LicenseType string `json:"license_type" gorm:"not null;size:20;index"`

	// 许可证状态：pending、active、expired、revoked
	Status string `json:"status" gorm:"not null;size:20;index"`

	// 设备信息，激活时由客户端上报，JSON 字符串，原样存取
	DeviceInfo string `json:"device_info" gorm:"type:text"`

	ActivatedAt *time.Time `json:"activated_at"`
	ExpiresAt   *time.Time `json:"expires_at" gorm:"index"`

	// 签发该许可证时使用的密钥ID，用于后续选择历史公钥验签
	SigningKeyID *uint `json:"signing_key_id" gorm:"index"`

	Product Product `json:"product,omitempty" gorm:"foreignKey:ProductID"`
	User    User    `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

// IsTerminal reports whether the license is in a terminal state
func (l *License) IsTerminal() bool {
	return l.Status == LicenseStatusExpired || l.Status == LicenseStatusRevoked
}

// IsOverdue reports whether the license has an expiry in the past.
// There is no background sweep; expiry is observed lazily wherever
// ExpiresAt is checked.
func (l *License) IsOverdue(now time.Time) bool {
	return l.ExpiresAt != nil && l.ExpiresAt.Before(now)
}
