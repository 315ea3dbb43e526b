package repository

import (
	"context"

	"github.com/bitfantasy/amb-mes/internal/mes/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ItemRepository 物料目录
type ItemRepository struct {
	db *gorm.DB
}

func NewItemRepository(db *gorm.DB) *ItemRepository {
	return &ItemRepository{db: db}
}

// GetItem 根据物料编码查找，已停用的物料视为不存在
func (r *ItemRepository) GetItem(ctx context.Context, code string) (*entity.Item, error) {
	var it entity.Item
	err := r.db.WithContext(ctx).Where("item_code = ? AND disabled = ?", code, false).First(&it).Error
	if err != nil {
		return nil, translate(err)
	}
	return &it, nil
}

// Upsert 新增或更新物料
func (r *ItemRepository) Upsert(ctx context.Context, it *entity.Item) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "item_code"}},
		DoUpdates: clause.AssignmentColumns([]string{"item_name", "item_group", "stock_uom", "nominal_capacity", "default_rate", "disabled", "updated_at"}),
	}).Create(it).Error
}

// List 按关键字查询物料
func (r *ItemRepository) List(ctx context.Context, keyword string, page, pageSize int) ([]entity.Item, int64, error) {
	query := r.db.WithContext(ctx).Model(&entity.Item{})
	if keyword != "" {
		like := "%" + keyword + "%"
		query = query.Where("item_code ILIKE ? OR item_name ILIKE ?", like, like)
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	offset, limit := paginate(page, pageSize)
	var items []entity.Item
	err := query.Order("item_code ASC").Offset(offset).Limit(limit).Find(&items).Error
	return items, total, err
}
