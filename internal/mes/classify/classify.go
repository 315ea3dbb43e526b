// Package classify BOM 原始行按关键字归类
//
// 规则是有序列表而不是集合：依次检查 Utility → Supplies → RawMaterial → Packing，
// 首个命中即返回。同时命中多个关键字组的物料（如同时含 "water" 与 "barrel"）
// 归入排在前面的类别。
package classify

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/cases"
	"gopkg.in/yaml.v3"
)

// Category 组件类别
type Category string

const (
	Utility      Category = "Utility"
	Supplies     Category = "Supplies"
	RawMaterial  Category = "RawMaterial"
	Packing      Category = "Packing"
	Unclassified Category = "Unclassified"
)

// Ordered 已知类别的默认顺序
var Ordered = []Category{Utility, Supplies, RawMaterial, Packing}

// Valid 是否为已知类别
func (c Category) Valid() bool {
	switch c {
	case Utility, Supplies, RawMaterial, Packing, Unclassified:
		return true
	}
	return false
}

// Short 用于生成组件物料编码的短后缀
func (c Category) Short() string {
	switch c {
	case Utility:
		return "UTIL"
	case Supplies:
		return "SUPP"
	case RawMaterial:
		return "RAW"
	case Packing:
		return "PACK"
	}
	return "MISC"
}

// Rule 一条分类规则
type Rule struct {
	Category Category `yaml:"category"`
	Keywords []string `yaml:"keywords"`
}

// Classifier 有序规则表
// Caser 有状态不能跨 goroutine 共享，每次调用新建
type Classifier struct {
	rules []Rule
}

// DefaultRules 内置规则表
func DefaultRules() []Rule {
	return []Rule{
		{Category: Utility, Keywords: []string{"electric", "gas", "water", "transp"}},
		{Category: Supplies, Keywords: []string{"m0", "q0", "filter", "carbon", "celite"}},
		{Category: RawMaterial, Keywords: []string{"m033", "aloe"}},
		{Category: Packing, Keywords: []string{"e001", "barrel", "ibc", "pail"}},
	}
}

// New 按给定顺序创建分类器
func New(rules []Rule) (*Classifier, error) {
	fold := cases.Fold()
	out := make([]Rule, 0, len(rules))
	for i, r := range rules {
		if !r.Category.Valid() || r.Category == Unclassified {
			return nil, fmt.Errorf("规则 #%d 类别无效: %q", i+1, r.Category)
		}
		kws := make([]string, 0, len(r.Keywords))
		for _, kw := range r.Keywords {
			kw = strings.TrimSpace(kw)
			if kw == "" {
				continue
			}
			kws = append(kws, fold.String(kw))
		}
		out = append(out, Rule{Category: r.Category, Keywords: kws})
	}
	return &Classifier{rules: out}, nil
}

// Default 使用内置规则表
func Default() *Classifier {
	c, _ := New(DefaultRules())
	return c
}

// LoadRules 从 YAML 读取规则列表，顺序即优先级
//
//	- category: Utility
//	  keywords: [electric, gas]
func LoadRules(r io.Reader) ([]Rule, error) {
	var rules []Rule
	if err := yaml.NewDecoder(r).Decode(&rules); err != nil {
		return nil, fmt.Errorf("解析分类规则失败: %w", err)
	}
	if len(rules) == 0 {
		return nil, fmt.Errorf("分类规则为空")
	}
	return rules, nil
}

// Classify 返回首个命中的类别
func (c *Classifier) Classify(s string) Category {
	folded := cases.Fold().String(s)
	for _, r := range c.rules {
		for _, kw := range r.Keywords {
			if strings.Contains(folded, kw) {
				return r.Category
			}
		}
	}
	return Unclassified
}

// Rules 返回规则副本
func (c *Classifier) Rules() []Rule {
	out := make([]Rule, len(c.rules))
	for i, r := range c.rules {
		out[i] = Rule{Category: r.Category, Keywords: append([]string(nil), r.Keywords...)}
	}
	return out
}
