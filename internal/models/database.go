package models

import (
	"time"

	"gorm.io/gorm"
)

// BaseModel provides common fields for all database models
type BaseModel struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at" gorm:"index"`
}

// Product 产品模型
// 从本服务的角度是只读配置，许可证和订单都引用它
type Product struct {
	BaseModel
	Name        string `json:"name" gorm:"not null;size:100"`
	Description string `json:"description"`
	CloudConfig string `json:"cloud_config" gorm:"type:text"` // 云控配置，JSON 字符串，原样存取
}
