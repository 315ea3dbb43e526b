package repository

import (
	"context"

	"github.com/bitfantasy/amb-mes/internal/mes/entity"
	"gorm.io/gorm"
)

type COARepository struct {
	db *gorm.DB
}

func NewCOARepository(db *gorm.DB) *COARepository {
	return &COARepository{db: db}
}

// Create 创建COA及检测项
func (r *COARepository) Create(ctx context.Context, coa *entity.COA) error {
	return r.db.WithContext(ctx).Create(coa).Error
}

// FindByID 根据ID查找COA（含检测项）
func (r *COARepository) FindByID(ctx context.Context, id string) (*entity.COA, error) {
	var coa entity.COA
	err := r.db.WithContext(ctx).
		Preload("Parameters", func(db *gorm.DB) *gorm.DB { return db.Order("sort_order ASC") }).
		First(&coa, "id = ?", id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &coa, nil
}

// ListByBatch 获取批次的COA
func (r *COARepository) ListByBatch(ctx context.Context, batchID string) ([]entity.COA, error) {
	var list []entity.COA
	err := r.db.WithContext(ctx).Where("batch_id = ?", batchID).Order("created_at DESC").Find(&list).Error
	return list, err
}

// Update 保存COA，检测项整体替换
func (r *COARepository) Update(ctx context.Context, coa *entity.COA) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Parameters").Save(coa).Error; err != nil {
			return err
		}
		if err := tx.Delete(&entity.COAParameter{}, "coa_id = ?", coa.ID).Error; err != nil {
			return err
		}
		if len(coa.Parameters) == 0 {
			return nil
		}
		for i := range coa.Parameters {
			coa.Parameters[i].COAID = coa.ID
		}
		return tx.Create(&coa.Parameters).Error
	})
}
