package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/bitfantasy/amb-mes/internal/mes/bomtree"
	"github.com/bitfantasy/amb-mes/internal/mes/classify"
	"github.com/bitfantasy/amb-mes/internal/mes/entity"
	"github.com/bitfantasy/amb-mes/internal/mes/naming"
	"github.com/bitfantasy/amb-mes/internal/mes/repository"
	"github.com/google/uuid"
)

// BOMService BOM服务
type BOMService struct {
	boms       BOMStore
	batches    BatchStore
	catalog    Catalog
	names      *naming.Generator
	classifier *classify.Classifier
	effects    *sideEffects
}

func NewBOMService(boms BOMStore, batches BatchStore, catalog Catalog, names *naming.Generator, classifier *classify.Classifier, effects *sideEffects) *BOMService {
	return &BOMService{boms: boms, batches: batches, catalog: catalog, names: names, classifier: classifier, effects: effects}
}

// catalogLookup 把 Catalog 适配为组装器使用的目录接口
type catalogLookup struct {
	catalog Catalog
}

func (l catalogLookup) Lookup(ctx context.Context, code string) (bomtree.ItemInfo, bool, error) {
	if l.catalog == nil {
		return bomtree.ItemInfo{}, false, nil
	}
	it, err := l.catalog.GetItem(ctx, code)
	if errors.Is(err, repository.ErrNotFound) {
		return bomtree.ItemInfo{}, false, nil
	}
	if err != nil {
		return bomtree.ItemInfo{}, false, err
	}
	return bomtree.ItemInfo{ItemCode: it.ItemCode, ItemName: it.ItemName, UOM: it.StockUOM, Rate: it.DefaultRate}, true, nil
}

// GenerateBOMInput 生成BOM请求
type GenerateBOMInput struct {
	SubLots    int                 `json:"sub_lots"` // 0 时取已有子批次数，至少为 1
	Precursors []string            `json:"precursors"`
	Candidates []bomtree.Candidate `json:"candidates"`
}

// GenerateBOMResult 生成结果，BOMs 按层级排序
type GenerateBOMResult struct {
	Root         *entity.BOM         `json:"root"`
	BOMs         []*entity.BOM       `json:"boms"`
	Unclassified []bomtree.Candidate `json:"unclassified"`
}

// GenerateForBatch 为批次生成三层BOM：分类、组装、环检测、命名，最后整体写入
func (s *BOMService) GenerateForBatch(ctx context.Context, sess Session, batchID string, in GenerateBOMInput) (*GenerateBOMResult, error) {
	if err := sess.validate(); err != nil {
		return nil, err
	}
	batch, err := s.batches.FindByID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if batch.ProcessingStatus == entity.BatchStatusCancelled {
		return nil, fmt.Errorf("%w: batch %s 已取消", entity.ErrTerminalStatus, batch.Name)
	}

	subLots := in.SubLots
	if subLots == 0 {
		n, err := s.batches.CountChildren(ctx, batch.ID)
		if err != nil {
			return nil, err
		}
		subLots = max(int(n), 1)
	}

	tree, err := bomtree.Assemble(ctx, bomtree.AssembleInput{
		BatchName:  batch.Name,
		ItemCode:   batch.ItemCode,
		UOM:        batch.UOM,
		TotalQty:   batch.PlannedQty,
		SubLots:    subLots,
		Precursors: in.Precursors,
		Candidates: in.Candidates,
		Classifier: s.classifier,
	}, catalogLookup{s.catalog})
	if err != nil {
		if errors.Is(err, bomtree.ErrMissingItem) {
			return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
		}
		return nil, invalid("%v", err)
	}
	if err := tree.Graph().DetectCycle(); err != nil {
		return nil, err
	}

	names := make(map[string]string, len(tree.Nodes))
	for _, n := range tree.Nodes {
		name, err := s.names.Generate(ctx, "BOM-"+n.Key)
		if err != nil {
			return nil, err
		}
		names[n.Key] = name
	}

	var items []entity.Item
	boms := make([]*entity.BOM, 0, len(tree.Nodes))
	for _, n := range tree.Nodes {
		b := &entity.BOM{
			ID:        uuid.New().String(),
			Name:      names[n.Key],
			ItemCode:  n.ItemCode,
			BatchID:   &batch.ID,
			Level:     n.Level,
			Category:  string(n.Category),
			Quantity:  n.Quantity,
			UOM:       n.UOM,
			TotalCost: n.Cost,
			IsActive:  true,
			CreatedBy: sess.UserID,
		}
		for i, l := range n.Lines {
			b.Items = append(b.Items, entity.BOMItem{
				ID:        uuid.New().String(),
				BOMID:     b.ID,
				ItemCode:  l.ItemCode,
				ItemName:  l.ItemName,
				Qty:       l.Qty,
				UOM:       l.UOM,
				Rate:      l.Rate,
				Amount:    l.Amount(),
				ChildBOM:  names[l.ChildKey],
				SortOrder: i + 1,
			})
		}
		boms = append(boms, b)
		if n.Level != bomtree.LevelMain {
			items = append(items, entity.Item{
				ItemCode:  n.ItemCode,
				ItemName:  fmt.Sprintf("%s %s", batch.ItemName, n.Key),
				ItemGroup: "Sub Assemblies",
				StockUOM:  n.UOM,
			})
		}
	}

	if err := s.boms.CreateTree(ctx, items, boms); err != nil {
		return nil, fmt.Errorf("保存BOM失败: %w", err)
	}
	s.effects.record(ctx, sess, auditEntry{
		EntityType: "batch", EntityID: batch.ID, Action: "generate_bom",
		Comment: fmt.Sprintf("%d BOMs, root %s", len(boms), boms[0].Name),
	})
	return &GenerateBOMResult{Root: boms[0], BOMs: boms, Unclassified: tree.Unclassified}, nil
}

// Get 获取BOM
func (s *BOMService) Get(ctx context.Context, id string) (*entity.BOM, error) {
	return s.boms.FindByID(ctx, id)
}

// GetByName 按名称获取BOM
func (s *BOMService) GetByName(ctx context.Context, name string) (*entity.BOM, error) {
	return s.boms.FindByName(ctx, name)
}

// ListByBatch 批次的BOM
func (s *BOMService) ListByBatch(ctx context.Context, batchID string) ([]entity.BOM, error) {
	return s.boms.ListByBatch(ctx, batchID)
}

func nodeFromBOM(b *entity.BOM) *bomtree.Node {
	n := &bomtree.Node{
		Key:      b.Name,
		Level:    b.Level,
		ItemCode: b.ItemCode,
		Category: classify.Category(b.Category),
		Quantity: b.Quantity,
		UOM:      b.UOM,
		Cost:     b.TotalCost,
	}
	for _, it := range b.Items {
		n.Lines = append(n.Lines, bomtree.Line{
			ItemCode: it.ItemCode,
			ItemName: it.ItemName,
			Qty:      it.Qty,
			UOM:      it.UOM,
			Rate:     it.Rate,
			ChildKey: it.ChildBOM,
		})
	}
	return n
}

// loadGraph 从 root 出发逐层加载被引用的BOM，已加载的名称不再重复查询
func (s *BOMService) loadGraph(ctx context.Context, root *entity.BOM) (*bomtree.Graph, error) {
	g := bomtree.NewGraph()
	g.Add(nodeFromBOM(root))
	seen := map[string]bool{root.Name: true}

	frontier := []entity.BOM{*root}
	for len(frontier) > 0 {
		var next []string
		for _, b := range frontier {
			for _, it := range b.Items {
				if it.ChildBOM != "" && !seen[it.ChildBOM] {
					seen[it.ChildBOM] = true
					next = append(next, it.ChildBOM)
				}
			}
		}
		if len(next) == 0 {
			break
		}
		loaded, err := s.boms.FindByNames(ctx, next)
		if err != nil {
			return nil, err
		}
		for i := range loaded {
			g.Add(nodeFromBOM(&loaded[i]))
		}
		frontier = loaded
	}
	return g, nil
}

// Explode 展开BOM到叶子物料；qty<=0 时使用BOM自身数量
func (s *BOMService) Explode(ctx context.Context, id string, qty float64) ([]bomtree.Requirement, error) {
	root, err := s.boms.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	g, err := s.loadGraph(ctx, root)
	if err != nil {
		return nil, err
	}
	if err := g.DetectCycle(); err != nil {
		return nil, err
	}
	if qty <= 0 {
		qty = root.Quantity
	}
	return g.Explode(root.Name, qty)
}

// Export 导出BOM工作簿
func (s *BOMService) Export(ctx context.Context, id string) ([]byte, string, error) {
	bom, err := s.boms.FindByID(ctx, id)
	if err != nil {
		return nil, "", err
	}
	reqs, err := s.Explode(ctx, id, 0)
	if err != nil && !errors.Is(err, bomtree.ErrCycle) {
		return nil, "", err
	}
	data, err := buildBOMWorkbook(bom, reqs)
	if err != nil {
		return nil, "", err
	}
	return data, fmt.Sprintf("BOM_%s.xlsx", bom.Name), nil
}
