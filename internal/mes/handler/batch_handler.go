package handler

import (
	"strconv"

	"github.com/bitfantasy/amb-mes/internal/mes/repository"
	"github.com/bitfantasy/amb-mes/internal/mes/service"
	"github.com/gin-gonic/gin"
)

type BatchHandler struct {
	svc *service.BatchService
}

func NewBatchHandler(svc *service.BatchService) *BatchHandler {
	return &BatchHandler{svc: svc}
}

// List GET /batches
func (h *BatchHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)
	f := repository.BatchFilter{
		ParentID:  c.Query("parent_id"),
		Status:    c.Query("status"),
		WorkOrder: c.Query("work_order"),
		Company:   c.Query("company"),
		Keyword:   c.Query("keyword"),
		Page:      page,
		PageSize:  pageSize,
	}
	if lv := c.Query("level"); lv != "" {
		v, err := strconv.Atoi(lv)
		if err != nil {
			BadRequest(c, "level 必须为整数")
			return
		}
		f.Level = v
	}

	items, total, err := h.svc.List(c.Request.Context(), f)
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, ListResponse{Items: items, Pagination: newPagination(page, pageSize, total)})
}

// Get GET /batches/:id
func (h *BatchHandler) Get(c *gin.Context) {
	b, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, b)
}

// GetByName GET /batches/by-name/:name
func (h *BatchHandler) GetByName(c *gin.Context) {
	b, err := h.svc.GetByName(c.Request.Context(), c.Param("name"))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, b)
}

// Create POST /batches
func (h *BatchHandler) Create(c *gin.Context) {
	var input service.CreateBatchInput
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "Invalid request: "+err.Error())
		return
	}
	b, err := h.svc.Create(c.Request.Context(), SessionFrom(c), input)
	if err != nil {
		HandleError(c, err)
		return
	}
	Created(c, b)
}

// CreateSubLots POST /batches/:id/sub-lots
func (h *BatchHandler) CreateSubLots(c *gin.Context) {
	var input struct {
		Count int `json:"count" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "Invalid request: "+err.Error())
		return
	}
	res, err := h.svc.CreateSubLots(c.Request.Context(), SessionFrom(c), c.Param("id"), input.Count)
	if err != nil {
		HandleError(c, err)
		return
	}
	Created(c, res)
}

// Transition POST /batches/:id/transition
func (h *BatchHandler) Transition(c *gin.Context) {
	var input service.TransitionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "Invalid request: "+err.Error())
		return
	}
	b, err := h.svc.Transition(c.Request.Context(), SessionFrom(c), c.Param("id"), input)
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, b)
}

// UpdateQuantities PUT /batches/:id/quantities
func (h *BatchHandler) UpdateQuantities(c *gin.Context) {
	var input service.UpdateQuantitiesInput
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "Invalid request: "+err.Error())
		return
	}
	b, err := h.svc.UpdateQuantities(c.Request.Context(), SessionFrom(c), c.Param("id"), input)
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, b)
}
