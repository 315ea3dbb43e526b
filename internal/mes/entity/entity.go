package entity

import (
	"errors"

	"gorm.io/gorm"
)

// 实体层错误
var (
	ErrTerminalStatus    = errors.New("cannot transition from current status")
	ErrInvalidTransition = errors.New("状态不允许该操作")
	ErrHierarchy         = errors.New("批次层级关系错误")
	ErrNegativeNetWeight = errors.New("毛重小于皮重")
	ErrInvalidWeight     = errors.New("重量无效")
	ErrQuantityLocked    = errors.New("批次已完成，数量不可修改")
	ErrInvalidSerial     = errors.New("容器序列号格式错误")
	ErrFillTooLow        = errors.New("装填率低于10%")
)

// AutoMigrate 自动迁移所有MES表
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		// 主数据
		&Item{},

		// 批次 / 容器
		&Batch{},
		&Container{},

		// BOM
		&BOM{},
		&BOMItem{},

		// 质量
		&COA{},
		&COAParameter{},

		// 基础设施
		&SequenceCounter{},
		&AuditLog{},
	)
}
