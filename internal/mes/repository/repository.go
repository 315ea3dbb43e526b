package repository

import (
	"errors"

	"gorm.io/gorm"
)

// 错误定义
var (
	ErrNotFound = errors.New("record not found")
)

// Repositories 仓库集合
type Repositories struct {
	Batch     *BatchRepository
	Container *ContainerRepository
	BOM       *BOMRepository
	COA       *COARepository
	Item      *ItemRepository
	Audit     *AuditRepository
}

// NewRepositories 创建仓库集合
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Batch:     NewBatchRepository(db),
		Container: NewContainerRepository(db),
		BOM:       NewBOMRepository(db),
		COA:       NewCOARepository(db),
		Item:      NewItemRepository(db),
		Audit:     NewAuditRepository(db),
	}
}

// translate 把 gorm 的未找到错误统一为 ErrNotFound
func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func paginate(page, pageSize int) (offset, limit int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 200 {
		pageSize = 200
	}
	return (page - 1) * pageSize, pageSize
}
