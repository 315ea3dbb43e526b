package repository

import (
	"context"

	"github.com/bitfantasy/amb-mes/internal/mes/entity"
	"gorm.io/gorm"
)

// BatchFilter 批次列表筛选
type BatchFilter struct {
	Level     int
	ParentID  string
	Status    string
	WorkOrder string
	Company   string
	Keyword   string
	Page      int
	PageSize  int
}

type BatchRepository struct {
	db *gorm.DB
}

func NewBatchRepository(db *gorm.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

// Create 创建批次
func (r *BatchRepository) Create(ctx context.Context, b *entity.Batch) error {
	return r.db.WithContext(ctx).Create(b).Error
}

// FindByID 根据ID查找批次
func (r *BatchRepository) FindByID(ctx context.Context, id string) (*entity.Batch, error) {
	var b entity.Batch
	if err := r.db.WithContext(ctx).First(&b, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &b, nil
}

// FindByName 根据批次号查找
func (r *BatchRepository) FindByName(ctx context.Context, name string) (*entity.Batch, error) {
	var b entity.Batch
	if err := r.db.WithContext(ctx).First(&b, "name = ?", name).Error; err != nil {
		return nil, translate(err)
	}
	return &b, nil
}

// List 分页查询
func (r *BatchRepository) List(ctx context.Context, f BatchFilter) ([]entity.Batch, int64, error) {
	query := r.db.WithContext(ctx).Model(&entity.Batch{})
	if f.Level > 0 {
		query = query.Where("level = ?", f.Level)
	}
	if f.ParentID != "" {
		query = query.Where("parent_id = ?", f.ParentID)
	}
	if f.Status != "" {
		query = query.Where("processing_status = ?", f.Status)
	}
	if f.WorkOrder != "" {
		query = query.Where("work_order = ?", f.WorkOrder)
	}
	if f.Company != "" {
		query = query.Where("company = ?", f.Company)
	}
	if f.Keyword != "" {
		like := "%" + f.Keyword + "%"
		query = query.Where("name ILIKE ? OR item_code ILIKE ? OR item_name ILIKE ?", like, like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	offset, limit := paginate(f.Page, f.PageSize)
	var batches []entity.Batch
	err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&batches).Error
	return batches, total, err
}

// Update 保存批次
func (r *BatchRepository) Update(ctx context.Context, b *entity.Batch) error {
	return r.db.WithContext(ctx).Save(b).Error
}

// CountChildren 统计直接子批次数量
func (r *BatchRepository) CountChildren(ctx context.Context, parentID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.Batch{}).Where("parent_id = ?", parentID).Count(&count).Error
	return count, err
}

// NameExists 批次号是否已存在
func (r *BatchRepository) NameExists(ctx context.Context, name string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.Batch{}).Where("name = ?", name).Count(&count).Error
	return count > 0, err
}

// CreateSubLots 在一个事务中创建子批次并把容器改挂到对应子批次
func (r *BatchRepository) CreateSubLots(ctx context.Context, subs []*entity.Batch, assign map[string][]string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, b := range subs {
			if err := tx.Create(b).Error; err != nil {
				return err
			}
		}
		for batchID, containerIDs := range assign {
			if len(containerIDs) == 0 {
				continue
			}
			if err := tx.Model(&entity.Container{}).Where("id IN ?", containerIDs).
				Update("batch_id", batchID).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
