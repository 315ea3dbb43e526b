package repository

import (
	"context"

	"github.com/bitfantasy/amb-mes/internal/mes/entity"
	"gorm.io/gorm"
)

// AuditRepository 操作日志
type AuditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) Write(ctx context.Context, log *entity.AuditLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

// ListByEntity 查询某条记录的操作历史
func (r *AuditRepository) ListByEntity(ctx context.Context, entityType, entityID string) ([]entity.AuditLog, error) {
	var list []entity.AuditLog
	err := r.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("created_at ASC").Find(&list).Error
	return list, err
}
