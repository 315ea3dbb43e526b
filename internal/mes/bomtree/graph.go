package bomtree

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrCycle BOM 引用成环
var ErrCycle = errors.New("BOM 引用存在环")

// Graph 以名称为键的 BOM 节点集合，行通过 ChildKey 引用下级 BOM
type Graph struct {
	nodes map[string]*Node
}

func NewGraph() *Graph {
	return &Graph{nodes: make(map[string]*Node)}
}

// Add 加入节点，同名覆盖
func (g *Graph) Add(n *Node) {
	g.nodes[n.Key] = n
}

func (g *Graph) Get(key string) (*Node, bool) {
	n, ok := g.nodes[key]
	return n, ok
}

func (g *Graph) Len() int {
	return len(g.nodes)
}

const (
	white = iota
	grey
	black
)

// DetectCycle 深度优先遍历全部节点，发现环时返回 ErrCycle 及环路径
func (g *Graph) DetectCycle() error {
	keys := make([]string, 0, len(g.nodes))
	for k := range g.nodes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	color := make(map[string]int, len(g.nodes))
	for _, k := range keys {
		if color[k] != white {
			continue
		}
		if err := g.visit(k, color, nil); err != nil {
			return err
		}
	}
	return nil
}

func (g *Graph) visit(key string, color map[string]int, path []string) error {
	color[key] = grey
	path = append(path, key)
	n := g.nodes[key]
	for _, l := range n.Lines {
		if l.ChildKey == "" {
			continue
		}
		if _, ok := g.nodes[l.ChildKey]; !ok {
			continue
		}
		switch color[l.ChildKey] {
		case grey:
			return cycleError(path, l.ChildKey)
		case white:
			if err := g.visit(l.ChildKey, color, path); err != nil {
				return err
			}
		}
	}
	color[key] = black
	return nil
}

func cycleError(path []string, back string) error {
	start := 0
	for i, k := range path {
		if k == back {
			start = i
			break
		}
	}
	loop := append(append([]string(nil), path[start:]...), back)
	return fmt.Errorf("%w: %s", ErrCycle, strings.Join(loop, " -> "))
}

// Requirement 展开后的叶子物料需求
type Requirement struct {
	ItemCode string  `json:"item_code"`
	ItemName string  `json:"item_name"`
	Qty      float64 `json:"qty"`
	UOM      string  `json:"uom"`
	Rate     float64 `json:"rate"`
	Amount   float64 `json:"amount"`
}

// Explode 从 root 开始按 qty 展开到叶子物料，同一物料合并
// 引用了图中不存在的下级 BOM 时按叶子处理
func (g *Graph) Explode(root string, qty float64) ([]Requirement, error) {
	n, ok := g.nodes[root]
	if !ok {
		return nil, fmt.Errorf("BOM %s 不存在", root)
	}
	if qty < 0 {
		return nil, fmt.Errorf("展开数量不能为负数: %v", qty)
	}

	acc := make(map[string]*Requirement)
	var order []string
	onPath := make(map[string]bool)

	var walk func(n *Node, qty float64, path []string) error
	walk = func(n *Node, qty float64, path []string) error {
		onPath[n.Key] = true
		defer delete(onPath, n.Key)
		path = append(path, n.Key)

		scale := qty
		if n.Quantity > 0 {
			scale = qty / n.Quantity
		}
		for _, l := range n.Lines {
			need := l.Qty * scale
			if child, ok := g.nodes[l.ChildKey]; ok && l.ChildKey != "" {
				if onPath[child.Key] {
					return cycleError(path, child.Key)
				}
				if err := walk(child, need, path); err != nil {
					return err
				}
				continue
			}
			r, ok := acc[l.ItemCode]
			if !ok {
				r = &Requirement{ItemCode: l.ItemCode, ItemName: l.ItemName, UOM: l.UOM, Rate: l.Rate}
				acc[l.ItemCode] = r
				order = append(order, l.ItemCode)
			}
			r.Qty += need
			r.Amount += need * l.Rate
		}
		return nil
	}
	if err := walk(n, qty, nil); err != nil {
		return nil, err
	}

	out := make([]Requirement, 0, len(order))
	for _, code := range order {
		out = append(out, *acc[code])
	}
	return out, nil
}
