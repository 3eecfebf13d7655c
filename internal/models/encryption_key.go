package models

// EncryptionKey 签名密钥模型
// 追加写入、永不删除：历史密钥保留用于验证已签发的许可证。
// 任一已提交时刻最多有一条 is_active = true 的记录，轮换时在同一事务内翻转。
type EncryptionKey struct {
	BaseModel

	// PEM 编码的公钥
	PublicKey string `json:"public_key" gorm:"type:text;not null"`

	// 使用主密钥加密后的私钥，格式 "<nonceHex>:<tagHex>:<ciphertextHex>"
	PrivateKey string `json:"-" gorm:"type:text;not null"`

	IsActive bool `json:"is_active" gorm:"index;not null"`
}
