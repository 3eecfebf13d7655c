package models

import (
	"github.com/shopspring/decimal"
)

// Order 订单模型
// 一条订单记录即幂等标记：out_trade_no 全局唯一，记录一旦写入不再修改
type Order struct {
	BaseModel

	// 支付平台订单号，全局唯一幂等键
	OutTradeNo string `json:"out_trade_no" gorm:"uniqueIndex;not null;size:100"`

	UserID    uint `json:"user_id" gorm:"not null;index"`
	ProductID uint `json:"product_id" gorm:"not null;index"`

	AfdianUserID string `json:"afdian_user_id" gorm:"size:100;index"`
	PlanID       string `json:"plan_id" gorm:"size:100"`

	TotalAmount decimal.Decimal `json:"total_amount" gorm:"type:decimal(12,2)"`

	// 支付平台侧的订单状态码
	Status int `json:"status"`

	Remark string `json:"remark" gorm:"size:255"`

	// 原始订单数据，JSON 字符串，原样存取
	RawData string `json:"raw_data" gorm:"type:text"`
}
