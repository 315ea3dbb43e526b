package repository

import (
	"context"

	"github.com/bitfantasy/amb-mes/internal/mes/entity"
	"gorm.io/gorm"
)

type ContainerRepository struct {
	db *gorm.DB
}

func NewContainerRepository(db *gorm.DB) *ContainerRepository {
	return &ContainerRepository{db: db}
}

// Create 登记容器
func (r *ContainerRepository) Create(ctx context.Context, c *entity.Container) error {
	return r.db.WithContext(ctx).Create(c).Error
}

// FindByID 根据ID查找容器
func (r *ContainerRepository) FindByID(ctx context.Context, id string) (*entity.Container, error) {
	var c entity.Container
	if err := r.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

// FindBySerial 根据序列号查找容器
func (r *ContainerRepository) FindBySerial(ctx context.Context, serial string) (*entity.Container, error) {
	var c entity.Container
	if err := r.db.WithContext(ctx).First(&c, "serial = ?", serial).Error; err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

// ListByBatch 获取批次下的容器，按序列号排序
func (r *ContainerRepository) ListByBatch(ctx context.Context, batchID string) ([]entity.Container, error) {
	var list []entity.Container
	err := r.db.WithContext(ctx).Where("batch_id = ?", batchID).Order("serial ASC").Find(&list).Error
	return list, err
}

// Update 保存容器
func (r *ContainerRepository) Update(ctx context.Context, c *entity.Container) error {
	return r.db.WithContext(ctx).Save(c).Error
}
