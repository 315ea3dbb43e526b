package handler

import (
	"github.com/bitfantasy/amb-mes/internal/mes/service"
	"github.com/gin-gonic/gin"
)

type COAHandler struct {
	svc *service.COAService
}

func NewCOAHandler(svc *service.COAService) *COAHandler {
	return &COAHandler{svc: svc}
}

// Create POST /coas
func (h *COAHandler) Create(c *gin.Context) {
	var input service.SaveCOAInput
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "Invalid request: "+err.Error())
		return
	}
	coa, err := h.svc.Create(c.Request.Context(), SessionFrom(c), input)
	if err != nil {
		HandleError(c, err)
		return
	}
	Created(c, coa)
}

// Update PUT /coas/:id
func (h *COAHandler) Update(c *gin.Context) {
	var input service.SaveCOAInput
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "Invalid request: "+err.Error())
		return
	}
	coa, err := h.svc.Update(c.Request.Context(), SessionFrom(c), c.Param("id"), input)
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, coa)
}

// Get GET /coas/:id
func (h *COAHandler) Get(c *gin.Context) {
	coa, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, coa)
}

// ListByBatch GET /batches/:id/coas
func (h *COAHandler) ListByBatch(c *gin.Context) {
	items, err := h.svc.ListByBatch(c.Request.Context(), c.Param("id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, gin.H{"items": items})
}

// Approve POST /coas/:id/approve
func (h *COAHandler) Approve(c *gin.Context) {
	coa, err := h.svc.Approve(c.Request.Context(), SessionFrom(c), c.Param("id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, coa)
}

// Export GET /coas/:id/export
func (h *COAHandler) Export(c *gin.Context) {
	data, filename, err := h.svc.Export(c.Request.Context(), c.Param("id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	sendFile(c, data, filename)
}

// Upload POST /coas/:id/upload
func (h *COAHandler) Upload(c *gin.Context) {
	coa, err := h.svc.Upload(c.Request.Context(), SessionFrom(c), c.Param("id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, coa)
}
