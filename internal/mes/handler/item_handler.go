package handler

import (
	"github.com/bitfantasy/amb-mes/internal/mes/entity"
	"github.com/bitfantasy/amb-mes/internal/mes/service"
	"github.com/gin-gonic/gin"
)

type ItemHandler struct {
	svc *service.CatalogService
}

func NewItemHandler(svc *service.CatalogService) *ItemHandler {
	return &ItemHandler{svc: svc}
}

// List GET /items?keyword=
func (h *ItemHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)
	items, total, err := h.svc.List(c.Request.Context(), c.Query("keyword"), page, pageSize)
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, ListResponse{Items: items, Pagination: newPagination(page, pageSize, total)})
}

// Get GET /items/:code
func (h *ItemHandler) Get(c *gin.Context) {
	it, err := h.svc.Get(c.Request.Context(), c.Param("code"))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, it)
}

// Upsert PUT /items
func (h *ItemHandler) Upsert(c *gin.Context) {
	var input entity.Item
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "Invalid request: "+err.Error())
		return
	}
	it, err := h.svc.Upsert(c.Request.Context(), SessionFrom(c), &input)
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, it)
}
