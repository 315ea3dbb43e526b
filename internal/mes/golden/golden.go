// Package golden 金号（golden number）生成
//
// 金号格式 PPPPCCCYYp：产品码(4) + 工单流水(3) + 年份(2) + 工厂(1)。
// 缺失的输入按 Defaults 补齐，从不阻塞保存；补齐了哪些字段记录在 Resolved.Defaulted 中。
package golden

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Length 金号固定长度
const Length = 10

var goldenPattern = regexp.MustCompile(`^\d{10}$`)

// Input 原始输入，任意字段可为空
type Input struct {
	ProductCode string `json:"product_code"` // 通常取物料编码前4位
	WorkOrder   string `json:"work_order"`   // 工单号，用于推导流水号
	Consecutive string `json:"consecutive"`  // 显式流水号，优先于 WorkOrder
	Year        string `json:"year"`         // 2位或4位年份
	Plant       string `json:"plant"`
}

// Defaults 缺省值
type Defaults struct {
	ProductCode string `mapstructure:"product_code"`
	Consecutive string `mapstructure:"consecutive"`
	Plant       string `mapstructure:"plant"`
}

// DefaultDefaults 返回内置缺省值
func DefaultDefaults() Defaults {
	return Defaults{
		ProductCode: "0000",
		Consecutive: "001",
		Plant:       "1",
	}
}

// Resolved 补齐后的输入
type Resolved struct {
	ProductCode string
	Consecutive int
	Year        int
	Plant       int
	Defaulted   []string
}

// Resolve 补齐缺失字段，永不失败
func Resolve(in Input, d Defaults, now time.Time) Resolved {
	d = withBuiltins(d)
	var r Resolved

	product := strings.TrimSpace(in.ProductCode)
	if product == "" {
		product = d.ProductCode
		r.Defaulted = append(r.Defaulted, "product_code")
	}
	r.ProductCode = product

	consecutive := strings.TrimSpace(in.Consecutive)
	if consecutive == "" && strings.TrimSpace(in.WorkOrder) != "" {
		consecutive = ConsecutiveFromWorkOrder(in.WorkOrder)
	}
	n, err := strconv.Atoi(consecutive)
	if consecutive == "" || err != nil || n < 0 {
		n, _ = strconv.Atoi(d.Consecutive)
		r.Defaulted = append(r.Defaulted, "consecutive")
	}
	r.Consecutive = n

	y, err := strconv.Atoi(strings.TrimSpace(in.Year))
	if err != nil || y < 0 {
		y = now.Year()
		r.Defaulted = append(r.Defaulted, "year")
	}
	r.Year = y

	p, err := strconv.Atoi(strings.TrimSpace(in.Plant))
	if err != nil || p < 0 {
		p, _ = strconv.Atoi(d.Plant)
		r.Defaulted = append(r.Defaulted, "plant")
	}
	r.Plant = p

	return r
}

func withBuiltins(d Defaults) Defaults {
	b := DefaultDefaults()
	if d.ProductCode == "" {
		d.ProductCode = b.ProductCode
	}
	if _, err := strconv.Atoi(d.Consecutive); err != nil {
		d.Consecutive = b.Consecutive
	}
	if _, err := strconv.Atoi(d.Plant); err != nil {
		d.Plant = b.Plant
	}
	return d
}

// Format 生成10位金号
func Format(r Resolved) string {
	return fmt.Sprintf("%s%03d%02d%d",
		fitProductCode(r.ProductCode),
		r.Consecutive%1000,
		r.Year%100,
		r.Plant%10,
	)
}

// Generate Resolve + Format
func Generate(in Input, d Defaults, now time.Time) (string, Resolved) {
	r := Resolve(in, d, now)
	return Format(r), r
}

// fitProductCode 按字符截断或左补零到4位
func fitProductCode(code string) string {
	r := []rune(code)
	if len(r) >= 4 {
		return string(r[:4])
	}
	return strings.Repeat("0", 4-len(r)) + string(r)
}

// ConsecutiveFromWorkOrder 取工单号末尾数字串的最后3位，如 MFG-WO-2024-00042 -> "042"
func ConsecutiveFromWorkOrder(workOrder string) string {
	s := strings.TrimSpace(workOrder)
	end := len(s)
	start := end
	for start > 0 && s[start-1] >= '0' && s[start-1] <= '9' {
		start--
	}
	digits := s[start:end]
	if digits == "" {
		return DefaultDefaults().Consecutive
	}
	if len(digits) > 3 {
		digits = digits[len(digits)-3:]
	}
	n, _ := strconv.Atoi(digits)
	return fmt.Sprintf("%03d", n)
}

// ChildID 子批次/组件编号：{parent}-{seq}
func ChildID(parent string, seq int64) string {
	return fmt.Sprintf("%s-%d", parent, seq)
}

// ValidateGoldenNumber 校验用户直接提供的金号
func ValidateGoldenNumber(s string) error {
	if !goldenPattern.MatchString(s) {
		return fmt.Errorf("golden_number %q 格式错误，应为%d位数字", s, Length)
	}
	return nil
}
