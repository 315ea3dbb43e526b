package entity

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// 检测结果
const (
	TestPending = "Pending"
	TestPass    = "Pass"
	TestFail    = "Fail"
)

// COA单据状态
const (
	COAStatusDraft    = "Draft"
	COAStatusApproved = "Approved"
)

// COA 分析证书
type COA struct {
	ID            string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Name          string     `json:"name" gorm:"size:140;not null;uniqueIndex"`
	BatchID       string     `json:"batch_id" gorm:"type:varchar(36);not null;index"`
	ItemCode      string     `json:"item_code" gorm:"size:64"`
	Customer      string     `json:"customer" gorm:"size:140"`
	OverallResult string     `json:"overall_result" gorm:"size:16;not null;default:Pending"`
	DocStatus     string     `json:"doc_status" gorm:"size:16;not null;default:Draft"`
	ApprovedBy    string     `json:"approved_by" gorm:"size:64"`
	ApprovedAt    *time.Time `json:"approved_at"`
	ReportObject  string     `json:"report_object" gorm:"size:255"` // 导出报告在对象存储中的路径
	CreatedBy     string     `json:"created_by" gorm:"size:64"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`

	Parameters []COAParameter `json:"parameters,omitempty" gorm:"foreignKey:COAID"`
}

func (COA) TableName() string {
	return "mes_coas"
}

// COAParameter 检测项
type COAParameter struct {
	ID            string   `json:"id" gorm:"primaryKey;type:varchar(36)"`
	COAID         string   `json:"coa_id" gorm:"type:varchar(36);not null;index"`
	ParameterName string   `json:"parameter_name" gorm:"size:140;not null"`
	Specification string   `json:"specification" gorm:"size:255"`
	Result        *float64 `json:"result"`
	ResultText    string   `json:"result_text" gorm:"size:255"`
	MinValue      *float64 `json:"min_value"`
	MaxValue      *float64 `json:"max_value"`
	Status        string   `json:"status" gorm:"size:16;not null;default:Pending"`
	SortOrder     int      `json:"sort_order" gorm:"default:0"`
}

func (COAParameter) TableName() string {
	return "mes_coa_parameters"
}

// Range 规格区间，nil 表示无界
type Range struct {
	Min, Max         *float64
	MinOpen, MaxOpen bool
}

// Contains 判断数值是否落在区间内
func (r Range) Contains(v float64) bool {
	if r.Min != nil {
		if r.MinOpen && v <= *r.Min || !r.MinOpen && v < *r.Min {
			return false
		}
	}
	if r.Max != nil {
		if r.MaxOpen && v >= *r.Max || !r.MaxOpen && v > *r.Max {
			return false
		}
	}
	return true
}

const num = `(-?\d+(?:\.\d+)?)`

var (
	specBetween = regexp.MustCompile(`^` + num + `\s*(?:-|–|~|to)\s*` + num)
	specPlusMin = regexp.MustCompile(`^` + num + `\s*(?:±|\+/-)\s*` + num)
	specCompare = regexp.MustCompile(`^(<=|>=|≤|≥|<|>|nmt|nlt|max\.?|min\.?)\s*` + num)
)

// ParseSpecification 解析规格文本，如 "4.0 - 5.5"、"<= 100"、"NMT 10"、"1.5 ± 0.2"
func ParseSpecification(spec string) (Range, bool) {
	s := strings.ToLower(strings.TrimSpace(spec))
	if s == "" {
		return Range{}, false
	}
	if m := specPlusMin.FindStringSubmatch(s); m != nil {
		center, _ := strconv.ParseFloat(m[1], 64)
		tol, _ := strconv.ParseFloat(m[2], 64)
		lo, hi := center-math.Abs(tol), center+math.Abs(tol)
		return Range{Min: &lo, Max: &hi}, true
	}
	if m := specBetween.FindStringSubmatch(s); m != nil {
		lo, _ := strconv.ParseFloat(m[1], 64)
		hi, _ := strconv.ParseFloat(m[2], 64)
		if lo > hi {
			lo, hi = hi, lo
		}
		return Range{Min: &lo, Max: &hi}, true
	}
	if m := specCompare.FindStringSubmatch(s); m != nil {
		v, _ := strconv.ParseFloat(m[2], 64)
		switch strings.TrimSuffix(m[1], ".") {
		case "<":
			return Range{Max: &v, MaxOpen: true}, true
		case "<=", "≤", "nmt", "max":
			return Range{Max: &v}, true
		case ">":
			return Range{Min: &v, MinOpen: true}, true
		case ">=", "≥", "nlt", "min":
			return Range{Min: &v}, true
		}
	}
	return Range{}, false
}

// Evaluate 由结果与上下限/规格推导状态；状态从不作为输入
func (p *COAParameter) Evaluate() string {
	p.Status = TestPending
	if p.Result == nil {
		return p.Status
	}
	var rng Range
	switch {
	case p.MinValue != nil || p.MaxValue != nil:
		rng = Range{Min: p.MinValue, Max: p.MaxValue}
	default:
		parsed, ok := ParseSpecification(p.Specification)
		if !ok {
			return p.Status
		}
		rng = parsed
	}
	if rng.Contains(*p.Result) {
		p.Status = TestPass
	} else {
		p.Status = TestFail
	}
	return p.Status
}

// Recompute 重新计算所有检测项与总体结果
func (c *COA) Recompute() string {
	overall := TestPass
	if len(c.Parameters) == 0 {
		overall = TestPending
	}
	for i := range c.Parameters {
		switch c.Parameters[i].Evaluate() {
		case TestFail:
			overall = TestFail
		case TestPending:
			if overall != TestFail {
				overall = TestPending
			}
		}
	}
	c.OverallResult = overall
	return overall
}
