package handler

import (
	"strconv"

	"github.com/bitfantasy/amb-mes/internal/mes/service"
	"github.com/gin-gonic/gin"
)

type BOMHandler struct {
	svc *service.BOMService
}

func NewBOMHandler(svc *service.BOMService) *BOMHandler {
	return &BOMHandler{svc: svc}
}

// Generate POST /batches/:id/boms
func (h *BOMHandler) Generate(c *gin.Context) {
	var input service.GenerateBOMInput
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "Invalid request: "+err.Error())
		return
	}
	res, err := h.svc.GenerateForBatch(c.Request.Context(), SessionFrom(c), c.Param("id"), input)
	if err != nil {
		HandleError(c, err)
		return
	}
	Created(c, res)
}

// GenerateFromExcel POST /batches/:id/boms/import
// 表单字段: file (组件表), sub_lots, precursors (可重复)
func (h *BOMHandler) GenerateFromExcel(c *gin.Context) {
	file, _, err := c.Request.FormFile("file")
	if err != nil {
		BadRequest(c, "请上传Excel文件")
		return
	}
	defer file.Close()

	candidates, err := service.ParseCandidates(file)
	if err != nil {
		HandleError(c, err)
		return
	}
	input := service.GenerateBOMInput{Candidates: candidates, Precursors: c.PostFormArray("precursors")}
	if v := c.PostForm("sub_lots"); v != "" {
		if input.SubLots, err = strconv.Atoi(v); err != nil {
			BadRequest(c, "sub_lots 必须为整数")
			return
		}
	}

	res, err := h.svc.GenerateForBatch(c.Request.Context(), SessionFrom(c), c.Param("id"), input)
	if err != nil {
		HandleError(c, err)
		return
	}
	Created(c, res)
}

// ListByBatch GET /batches/:id/boms
func (h *BOMHandler) ListByBatch(c *gin.Context) {
	items, err := h.svc.ListByBatch(c.Request.Context(), c.Param("id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, gin.H{"items": items})
}

// Get GET /boms/:id
func (h *BOMHandler) Get(c *gin.Context) {
	bom, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, bom)
}

// Explode GET /boms/:id/explode?qty=
func (h *BOMHandler) Explode(c *gin.Context) {
	var qty float64
	if v := c.Query("qty"); v != "" {
		var err error
		if qty, err = strconv.ParseFloat(v, 64); err != nil {
			BadRequest(c, "qty 必须为数字")
			return
		}
	}
	reqs, err := h.svc.Explode(c.Request.Context(), c.Param("id"), qty)
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, gin.H{"items": reqs})
}

// Export GET /boms/:id/export
func (h *BOMHandler) Export(c *gin.Context) {
	data, filename, err := h.svc.Export(c.Request.Context(), c.Param("id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	sendFile(c, data, filename)
}

// DownloadTemplate GET /bom-template
func (h *BOMHandler) DownloadTemplate(c *gin.Context) {
	data, err := service.CandidateTemplate()
	if err != nil {
		InternalError(c, err.Error())
		return
	}
	sendFile(c, data, "BOM_Components_Template.xlsx")
}
