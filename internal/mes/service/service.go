package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bitfantasy/amb-mes/internal/mes/classify"
	"github.com/bitfantasy/amb-mes/internal/mes/entity"
	"github.com/bitfantasy/amb-mes/internal/mes/golden"
	"github.com/bitfantasy/amb-mes/internal/mes/naming"
	"github.com/bitfantasy/amb-mes/internal/mes/repository"
	"github.com/bitfantasy/amb-mes/internal/mes/sequence"
	"go.uber.org/zap"
)

// 服务层错误
var (
	ErrNotFound     = repository.ErrNotFound
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("conflict")
)

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// Session 请求级上下文：当前用户与公司，显式传给每个操作
type Session struct {
	UserID    string
	UserName  string
	Company   string
	RequestID string
}

func (s Session) validate() error {
	if strings.TrimSpace(s.UserID) == "" {
		return invalid("session 缺少 user_id")
	}
	return nil
}

// BatchStore 批次存储
type BatchStore interface {
	Create(ctx context.Context, b *entity.Batch) error
	FindByID(ctx context.Context, id string) (*entity.Batch, error)
	FindByName(ctx context.Context, name string) (*entity.Batch, error)
	List(ctx context.Context, f repository.BatchFilter) ([]entity.Batch, int64, error)
	Update(ctx context.Context, b *entity.Batch) error
	CountChildren(ctx context.Context, parentID string) (int64, error)
	NameExists(ctx context.Context, name string) (bool, error)
	CreateSubLots(ctx context.Context, subs []*entity.Batch, assign map[string][]string) error
}

// ContainerStore 容器存储
type ContainerStore interface {
	Create(ctx context.Context, c *entity.Container) error
	FindByID(ctx context.Context, id string) (*entity.Container, error)
	FindBySerial(ctx context.Context, serial string) (*entity.Container, error)
	ListByBatch(ctx context.Context, batchID string) ([]entity.Container, error)
	Update(ctx context.Context, c *entity.Container) error
}

// BOMStore BOM存储
type BOMStore interface {
	CreateTree(ctx context.Context, items []entity.Item, boms []*entity.BOM) error
	FindByID(ctx context.Context, id string) (*entity.BOM, error)
	FindByName(ctx context.Context, name string) (*entity.BOM, error)
	FindByNames(ctx context.Context, names []string) ([]entity.BOM, error)
	ListByBatch(ctx context.Context, batchID string) ([]entity.BOM, error)
	NameExists(ctx context.Context, name string) (bool, error)
}

// COAStore COA存储
type COAStore interface {
	Create(ctx context.Context, coa *entity.COA) error
	FindByID(ctx context.Context, id string) (*entity.COA, error)
	ListByBatch(ctx context.Context, batchID string) ([]entity.COA, error)
	Update(ctx context.Context, coa *entity.COA) error
}

// Catalog 物料目录查询
type Catalog interface {
	GetItem(ctx context.Context, code string) (*entity.Item, error)
}

// ItemStore 本地物料主数据维护
type ItemStore interface {
	Catalog
	Upsert(ctx context.Context, it *entity.Item) error
	List(ctx context.Context, keyword string, page, pageSize int) ([]entity.Item, int64, error)
}

// Options 业务参数
type Options struct {
	Golden        golden.Defaults
	NameMaxLength int
	Classifier    *classify.Classifier
	NotifyChatID  string
}

// Deps 构造服务所需的协作者
type Deps struct {
	Batches    BatchStore
	Containers ContainerStore
	BOMs       BOMStore
	COAs       COAStore
	Items      ItemStore
	Catalog    Catalog // 为空时使用 Items
	Sequence   sequence.Allocator
	Audit      AuditWriter
	Notifier   Notifier
	Events     Publisher
	Storage    ReportStorage
	Logger     *zap.Logger
	Options    Options
	Now        func() time.Time
}

// Services 服务集合
type Services struct {
	Batch     *BatchService
	Container *ContainerService
	BOM       *BOMService
	COA       *COAService
	Catalog   *CatalogService
}

// NewServices 创建服务集合
func NewServices(d Deps) *Services {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Sequence == nil {
		d.Sequence = sequence.NewMemoryAllocator()
	}
	if d.Catalog == nil {
		d.Catalog = d.Items
	}
	if d.Options.Classifier == nil {
		d.Options.Classifier = classify.Default()
	}
	if d.Options.Golden == (golden.Defaults{}) {
		d.Options.Golden = golden.DefaultDefaults()
	}

	effects := newSideEffects(d.Audit, d.Notifier, d.Events, d.Options.NotifyChatID, d.Logger, d.Now)
	bomNames := naming.NewGenerator(naming.CheckerFunc(d.BOMs.NameExists), d.Options.NameMaxLength)
	coaNames := naming.NewGenerator(nil, d.Options.NameMaxLength)

	return &Services{
		Batch:     NewBatchService(d.Batches, d.Containers, d.Sequence, effects, d.Options.Golden, d.Now),
		Container: NewContainerService(d.Containers, d.Batches, d.Catalog, effects),
		BOM:       NewBOMService(d.BOMs, d.Batches, d.Catalog, bomNames, d.Options.Classifier, effects),
		COA:       NewCOAService(d.COAs, d.Batches, coaNames, d.Storage, effects, d.Now),
		Catalog:   NewCatalogService(d.Items, d.Catalog),
	}
}
