package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bitfantasy/amb-mes/internal/mes/entity"
	"github.com/bitfantasy/amb-mes/internal/mes/repository"
	"github.com/bitfantasy/amb-mes/internal/shared/erpnext"
)

// ERPNextCatalog 以 ERPNext 为物料目录来源
type ERPNextCatalog struct {
	client *erpnext.Client
}

func NewERPNextCatalog(client *erpnext.Client) *ERPNextCatalog {
	return &ERPNextCatalog{client: client}
}

func (c *ERPNextCatalog) GetItem(ctx context.Context, code string) (*entity.Item, error) {
	it, err := c.client.GetItem(ctx, code)
	if err != nil {
		if errors.Is(err, erpnext.ErrNotFound) {
			return nil, fmt.Errorf("%w: item %s", repository.ErrNotFound, code)
		}
		return nil, err
	}
	return &entity.Item{
		ItemCode:        it.ItemCode,
		ItemName:        it.ItemName,
		ItemGroup:       it.ItemGroup,
		StockUOM:        it.StockUOM,
		NominalCapacity: it.WeightPerUnit,
		DefaultRate:     it.ValuationRate,
		Disabled:        it.Disabled != 0,
	}, nil
}

// cacheInvalidator 带缓存的目录实现
type cacheInvalidator interface {
	Invalidate(ctx context.Context, code string)
}

// CatalogService 物料主数据
type CatalogService struct {
	items   ItemStore
	catalog Catalog
}

func NewCatalogService(items ItemStore, catalog Catalog) *CatalogService {
	if catalog == nil {
		catalog = items
	}
	return &CatalogService{items: items, catalog: catalog}
}

// Get 通过配置的目录来源查询物料
func (s *CatalogService) Get(ctx context.Context, code string) (*entity.Item, error) {
	return s.catalog.GetItem(ctx, code)
}

// Upsert 写入本地物料，并清除缓存
func (s *CatalogService) Upsert(ctx context.Context, sess Session, it *entity.Item) (*entity.Item, error) {
	if err := sess.validate(); err != nil {
		return nil, err
	}
	it.ItemCode = strings.TrimSpace(it.ItemCode)
	if it.ItemCode == "" {
		return nil, invalid("item_code 不能为空")
	}
	if it.NominalCapacity < 0 || it.DefaultRate < 0 {
		return nil, invalid("item %s 容量和单价不能为负数", it.ItemCode)
	}
	if it.StockUOM == "" {
		it.StockUOM = "Kg"
	}
	if err := s.items.Upsert(ctx, it); err != nil {
		return nil, fmt.Errorf("保存物料失败: %w", err)
	}
	if c, ok := s.catalog.(cacheInvalidator); ok {
		c.Invalidate(ctx, it.ItemCode)
	}
	return it, nil
}

// List 本地物料列表
func (s *CatalogService) List(ctx context.Context, keyword string, page, pageSize int) ([]entity.Item, int64, error) {
	return s.items.List(ctx, keyword, page, pageSize)
}
