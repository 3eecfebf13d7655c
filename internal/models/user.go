package models

import (
	"github.com/shopspring/decimal"
)

// User 用户模型
// 在首次激活或首次收到支付事件时创建
type User struct {
	BaseModel

	// 设备ID，激活时绑定；同一设备只对应一个用户
	DeviceID *string `json:"device_id" gorm:"uniqueIndex;size:100"`

	// 爱发电用户ID，支付事件首次引用时写入
	AfdianUserID *string `json:"afdian_user_id" gorm:"uniqueIndex;size:100"`

	// 余额，精确小数，不允许为负
	Balance decimal.Decimal `json:"balance" gorm:"type:decimal(12,2);default:0"`
}

// HasDevice reports whether the user has a bound device
func (u *User) HasDevice() bool {
	return u.DeviceID != nil && *u.DeviceID != ""
}
