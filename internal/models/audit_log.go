package models

// AuditLog 审计日志模型
// 追加写入的结构化事件流，余额变动、许可证管理操作和密钥轮换都会落一条记录
type AuditLog struct {
	BaseModel

	// 事件ID（UUID）
	EventID string `json:"event_id" gorm:"uniqueIndex;size:36;not null"`

	// 操作类型，如 license:revoke、balance:adjust、key:rotate
	Action string `json:"action" gorm:"not null;size:50;index"`

	// 事件详情，JSON 字符串
	Details string `json:"details" gorm:"type:text"`
}
