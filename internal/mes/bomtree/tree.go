// Package bomtree 组装三层 BOM 树
//
//	Level 0  主产品，数量 = 批次总量，每个子批次一行
//	Level 1  子批次，数量 = 分配份额，每个非空类别组一行（数量 1）
//	Level 2  子批次 × 类别，数量固定 1 套，行为匹配到的原始组件
//
// 每个节点的成本只汇总直接行的 qty×rate，父节点不向下累加子节点成本。
package bomtree

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bitfantasy/amb-mes/internal/mes/alloc"
	"github.com/bitfantasy/amb-mes/internal/mes/classify"
	"github.com/bitfantasy/amb-mes/internal/mes/golden"
)

const (
	LevelMain   = 0
	LevelSubLot = 1
	LevelGroup  = 2

	setUOM = "Set"
)

// ErrMissingItem 前置物料或组件在物料目录中不存在
var ErrMissingItem = errors.New("物料不存在")

// ItemInfo 目录中的物料信息
type ItemInfo struct {
	ItemCode string
	ItemName string
	UOM      string
	Rate     float64
}

// Catalog 物料目录查询
type Catalog interface {
	Lookup(ctx context.Context, itemCode string) (ItemInfo, bool, error)
}

// MapCatalog 内存目录
type MapCatalog map[string]ItemInfo

func (m MapCatalog) Lookup(_ context.Context, itemCode string) (ItemInfo, bool, error) {
	it, ok := m[itemCode]
	return it, ok, nil
}

// Candidate 一条原始组件行，Qty 为整批用量
type Candidate struct {
	ItemCode string  `json:"item_code"`
	ItemName string  `json:"item_name"`
	Qty      float64 `json:"qty"`
	UOM      string  `json:"uom"`
	Rate     float64 `json:"rate"` // 0 时取目录默认单价
}

// Line 组件行
type Line struct {
	ItemCode string
	ItemName string
	Qty      float64
	UOM      string
	Rate     float64
	ChildKey string
}

// Amount qty × rate
func (l Line) Amount() float64 {
	return l.Qty * l.Rate
}

// Node 树的一个 BOM 节点
type Node struct {
	Key      string
	Level    int
	ItemCode string
	Category classify.Category
	Quantity float64
	UOM      string
	Lines    []Line
	Cost     float64
}

func (n *Node) computeCost() {
	var sum float64
	for _, l := range n.Lines {
		sum += l.Amount()
	}
	n.Cost = sum
}

// AssembleInput 组装参数
type AssembleInput struct {
	BatchName  string // 主批次金号，作为节点键前缀
	ItemCode   string
	UOM        string
	TotalQty   float64
	SubLots    int
	Precursors []string // 必须已存在的前置物料（基液、基粉等）
	Candidates []Candidate
	Classifier *classify.Classifier
}

// Tree 组装结果，Nodes 按层级排序（主节点在前）
type Tree struct {
	Root         *Node
	Nodes        []*Node
	Unclassified []Candidate

	index map[string]*Node
}

// Node 按键查找节点
func (t *Tree) Node(key string) *Node {
	return t.index[key]
}

// Level 返回某一层的全部节点
func (t *Tree) Level(level int) []*Node {
	var out []*Node
	for _, n := range t.Nodes {
		if n.Level == level {
			out = append(out, n)
		}
	}
	return out
}

// Graph 转为可做环检测和展开的图
func (t *Tree) Graph() *Graph {
	g := NewGraph()
	for _, n := range t.Nodes {
		g.Add(n)
	}
	return g
}

func (t *Tree) add(n *Node) {
	n.computeCost()
	t.Nodes = append(t.Nodes, n)
	t.index[n.Key] = n
}

// SubLotKey 子批次节点键
func SubLotKey(batch string, i int) string {
	return golden.ChildID(batch, int64(i))
}

// GroupKey 子批次类别组节点键
func GroupKey(subLotKey string, c classify.Category) string {
	return subLotKey + "-" + c.Short()
}

// Assemble 组装 BOM 树；任何前置物料或组件缺失时不返回树
func Assemble(ctx context.Context, in AssembleInput, catalog Catalog) (*Tree, error) {
	if strings.TrimSpace(in.BatchName) == "" {
		return nil, fmt.Errorf("batch 不能为空")
	}
	if strings.TrimSpace(in.ItemCode) == "" {
		return nil, fmt.Errorf("item_code 不能为空")
	}
	shares, err := alloc.SplitQuantity(in.TotalQty, in.SubLots)
	if err != nil {
		return nil, err
	}
	if in.TotalQty == 0 {
		return nil, fmt.Errorf("total_quantity 必须大于 0")
	}

	candidates, err := resolveItems(ctx, in, catalog)
	if err != nil {
		return nil, err
	}

	clf := in.Classifier
	if clf == nil {
		clf = classify.Default()
	}
	groups := make(map[classify.Category][]Candidate)
	tree := &Tree{index: make(map[string]*Node)}
	for _, c := range candidates {
		cat := clf.Classify(c.ItemCode)
		if cat == classify.Unclassified && c.ItemName != "" {
			cat = clf.Classify(c.ItemName)
		}
		if cat == classify.Unclassified {
			tree.Unclassified = append(tree.Unclassified, c)
			continue
		}
		groups[cat] = append(groups[cat], c)
	}
	order := categoryOrder(clf)

	uom := in.UOM
	if uom == "" {
		uom = "Kg"
	}
	root := &Node{Key: in.BatchName, Level: LevelMain, ItemCode: in.ItemCode, Quantity: in.TotalQty, UOM: uom}
	var subs, sets []*Node
	for i, share := range shares {
		subKey := SubLotKey(in.BatchName, i+1)
		sub := &Node{Key: subKey, Level: LevelSubLot, ItemCode: subKey, Quantity: share, UOM: uom}
		root.Lines = append(root.Lines, Line{ItemCode: sub.ItemCode, Qty: share, UOM: uom, ChildKey: subKey})

		for _, cat := range order {
			members := groups[cat]
			if len(members) == 0 {
				continue
			}
			groupKey := GroupKey(subKey, cat)
			set := &Node{Key: groupKey, Level: LevelGroup, ItemCode: groupKey, Category: cat, Quantity: 1, UOM: setUOM}
			for _, m := range members {
				set.Lines = append(set.Lines, Line{
					ItemCode: m.ItemCode,
					ItemName: m.ItemName,
					Qty:      m.Qty / float64(in.SubLots),
					UOM:      m.UOM,
					Rate:     m.Rate,
				})
			}
			sub.Lines = append(sub.Lines, Line{ItemCode: groupKey, Qty: 1, UOM: setUOM, ChildKey: groupKey})
			sets = append(sets, set)
		}
		subs = append(subs, sub)
	}

	tree.Root = root
	tree.add(root)
	for _, n := range subs {
		tree.add(n)
	}
	for _, n := range sets {
		tree.add(n)
	}
	return tree, nil
}

// resolveItems 校验前置物料与组件，返回补全单价后的组件副本，与输入逐行对应
func resolveItems(ctx context.Context, in AssembleInput, catalog Catalog) ([]Candidate, error) {
	for _, code := range in.Precursors {
		if _, err := lookup(ctx, catalog, code); err != nil {
			return nil, err
		}
	}
	out := make([]Candidate, 0, len(in.Candidates))
	for _, c := range in.Candidates {
		if strings.TrimSpace(c.ItemCode) == "" {
			return nil, fmt.Errorf("组件 item_code 不能为空")
		}
		if c.Qty < 0 {
			return nil, fmt.Errorf("组件 %s 数量不能为负数: %v", c.ItemCode, c.Qty)
		}
		info, err := lookup(ctx, catalog, c.ItemCode)
		if err != nil {
			return nil, err
		}
		if c.Rate == 0 {
			c.Rate = info.Rate
		}
		out = append(out, c)
	}
	return out, nil
}

func lookup(ctx context.Context, catalog Catalog, code string) (ItemInfo, error) {
	if catalog == nil {
		return ItemInfo{}, fmt.Errorf("%w: %s（未配置物料目录）", ErrMissingItem, code)
	}
	info, ok, err := catalog.Lookup(ctx, code)
	if err != nil {
		return ItemInfo{}, fmt.Errorf("查询物料 %s 失败: %w", code, err)
	}
	if !ok {
		return ItemInfo{}, fmt.Errorf("%w: %s", ErrMissingItem, code)
	}
	return info, nil
}

// categoryOrder 按分类器规则顺序输出类别，去重
func categoryOrder(c *classify.Classifier) []classify.Category {
	seen := make(map[classify.Category]bool)
	var out []classify.Category
	for _, r := range c.Rules() {
		if !seen[r.Category] {
			seen[r.Category] = true
			out = append(out, r.Category)
		}
	}
	return out
}
