package repository

import (
	"context"

	"github.com/bitfantasy/amb-mes/internal/mes/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type BOMRepository struct {
	db *gorm.DB
}

func NewBOMRepository(db *gorm.DB) *BOMRepository {
	return &BOMRepository{db: db}
}

// CreateTree 在一个事务中写入新物料和整棵 BOM 树，任一失败全部回滚
func (r *BOMRepository) CreateTree(ctx context.Context, items []entity.Item, boms []*entity.BOM) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(items) > 0 {
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&items).Error; err != nil {
				return err
			}
		}
		for _, b := range boms {
			if err := tx.Create(b).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// FindByID 根据ID查找BOM（含行项）
func (r *BOMRepository) FindByID(ctx context.Context, id string) (*entity.BOM, error) {
	var b entity.BOM
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("sort_order ASC") }).
		First(&b, "id = ?", id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &b, nil
}

// FindByName 根据名称查找BOM（含行项）
func (r *BOMRepository) FindByName(ctx context.Context, name string) (*entity.BOM, error) {
	var b entity.BOM
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("sort_order ASC") }).
		First(&b, "name = ?", name).Error
	if err != nil {
		return nil, translate(err)
	}
	return &b, nil
}

// FindByNames 批量按名称查找（含行项）
func (r *BOMRepository) FindByNames(ctx context.Context, names []string) ([]entity.BOM, error) {
	var list []entity.BOM
	if len(names) == 0 {
		return list, nil
	}
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("sort_order ASC") }).
		Where("name IN ?", names).Find(&list).Error
	return list, err
}

// ListByBatch 获取批次生成的BOM
func (r *BOMRepository) ListByBatch(ctx context.Context, batchID string) ([]entity.BOM, error) {
	var list []entity.BOM
	err := r.db.WithContext(ctx).Where("batch_id = ?", batchID).Order("level ASC, name ASC").Find(&list).Error
	return list, err
}

// NameExists BOM名称是否已被占用
func (r *BOMRepository) NameExists(ctx context.Context, name string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.BOM{}).Where("name = ?", name).Count(&count).Error
	return count > 0, err
}
