package service

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/bitfantasy/amb-mes/internal/mes/bomtree"
	"github.com/bitfantasy/amb-mes/internal/mes/entity"
	"github.com/xuri/excelize/v2"
)

// XLSXContentType Excel 文件类型
const XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var (
	bomExportHeaders       = []string{"序号", "物料编码", "物料名称", "数量", "单位", "单价", "金额", "下级BOM"}
	explosionExportHeaders = []string{"物料编码", "物料名称", "需求数量", "单位", "单价", "金额"}
	coaExportHeaders       = []string{"序号", "检测项目", "规格", "结果", "下限", "上限", "判定"}
	candidateHeaders       = []string{"item_code", "item_name", "qty", "uom", "rate"}
)

// writeSheet 写入表头和数据行，表头加粗
func writeSheet(f *excelize.File, sheet string, headers []string, rows [][]interface{}, widths []float64) error {
	if idx, _ := f.GetSheetIndex(sheet); idx < 0 {
		if _, err := f.NewSheet(sheet); err != nil {
			return err
		}
	}
	boldStyle, _ := f.NewStyle(&excelize.Style{
		Font:   &excelize.Font{Bold: true, Size: 11},
		Fill:   excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
		Border: []excelize.Border{{Type: "bottom", Color: "000000", Style: 1}},
	})
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, h)
		f.SetCellStyle(sheet, cell, cell, boldStyle)
	}
	for r, row := range rows {
		for c, v := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}
	}
	for i, w := range widths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(sheet, col, col, w)
	}
	return nil
}

func fileBytes(f *excelize.File) ([]byte, error) {
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("写入Excel失败: %w", err)
	}
	return buf.Bytes(), nil
}

// buildBOMWorkbook BOM 行项 + 展开后的原料需求
func buildBOMWorkbook(bom *entity.BOM, reqs []bomtree.Requirement) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	sheet := "BOM"
	f.SetSheetName("Sheet1", sheet)

	rows := make([][]interface{}, 0, len(bom.Items)+1)
	for i, it := range bom.Items {
		rows = append(rows, []interface{}{i + 1, it.ItemCode, it.ItemName, it.Qty, it.UOM, it.Rate, it.Amount, it.ChildBOM})
	}
	rows = append(rows, []interface{}{"汇总", bom.ItemCode, fmt.Sprintf("数量 %v %s", bom.Quantity, bom.UOM), nil, nil, nil, bom.TotalCost, nil})
	if err := writeSheet(f, sheet, bomExportHeaders, rows, []float64{6, 24, 24, 10, 8, 10, 12, 36}); err != nil {
		return nil, err
	}

	if len(reqs) > 0 {
		rows = rows[:0]
		for _, r := range reqs {
			rows = append(rows, []interface{}{r.ItemCode, r.ItemName, r.Qty, r.UOM, r.Rate, r.Amount})
		}
		if err := writeSheet(f, "展开", explosionExportHeaders, rows, []float64{24, 24, 12, 8, 10, 12}); err != nil {
			return nil, err
		}
	}
	return fileBytes(f)
}

// buildCOAWorkbook COA 检测项
func buildCOAWorkbook(coa *entity.COA, batchName string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	sheet := "COA"
	f.SetSheetName("Sheet1", sheet)

	rows := make([][]interface{}, 0, len(coa.Parameters)+2)
	for i, p := range coa.Parameters {
		var result, lo, hi interface{}
		if p.Result != nil {
			result = *p.Result
		} else if p.ResultText != "" {
			result = p.ResultText
		}
		if p.MinValue != nil {
			lo = *p.MinValue
		}
		if p.MaxValue != nil {
			hi = *p.MaxValue
		}
		rows = append(rows, []interface{}{i + 1, p.ParameterName, p.Specification, result, lo, hi, p.Status})
	}
	rows = append(rows,
		[]interface{}{"批次", batchName, "客户", coa.Customer, nil, nil, nil},
		[]interface{}{"结论", coa.OverallResult, "状态", coa.DocStatus, "审核人", coa.ApprovedBy, nil},
	)
	if err := writeSheet(f, sheet, coaExportHeaders, rows, []float64{6, 24, 24, 12, 10, 10, 10}); err != nil {
		return nil, err
	}
	return fileBytes(f)
}

// ParseCandidates 从 Excel 第一个工作表读取原始组件行
// 表头需包含 item_code 和 qty，其余列可选
func ParseCandidates(r io.Reader) ([]bomtree.Candidate, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, invalid("无法解析Excel文件: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		return nil, invalid("读取工作表失败: %v", err)
	}
	if len(rows) < 2 {
		return nil, invalid("Excel 中没有数据行")
	}
	col := make(map[string]int)
	for i, h := range rows[0] {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, required := range []string{"item_code", "qty"} {
		if _, ok := col[required]; !ok {
			return nil, invalid("缺少列 %s", required)
		}
	}
	cell := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var out []bomtree.Candidate
	for n, row := range rows[1:] {
		code := cell(row, "item_code")
		if code == "" {
			continue
		}
		qty, err := strconv.ParseFloat(cell(row, "qty"), 64)
		if err != nil {
			return nil, invalid("第 %d 行 qty 无效: %q", n+2, cell(row, "qty"))
		}
		c := bomtree.Candidate{ItemCode: code, ItemName: cell(row, "item_name"), Qty: qty, UOM: cell(row, "uom")}
		if v := cell(row, "rate"); v != "" {
			if c.Rate, err = strconv.ParseFloat(v, 64); err != nil {
				return nil, invalid("第 %d 行 rate 无效: %q", n+2, v)
			}
		}
		out = append(out, c)
	}
	return out, nil
}

// CandidateTemplate 组件导入模板
func CandidateTemplate() ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	sheet := "Components"
	f.SetSheetName("Sheet1", sheet)
	example := [][]interface{}{{"ALOE-200X", "Aloe Vera 200X", 1.5, "Kg", 30}}
	if err := writeSheet(f, sheet, candidateHeaders, example, []float64{20, 28, 10, 8, 10}); err != nil {
		return nil, err
	}
	return fileBytes(f)
}
