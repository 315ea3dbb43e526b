package handler

import (
	"github.com/bitfantasy/amb-mes/internal/mes/entity"
	"github.com/bitfantasy/amb-mes/internal/mes/service"
	"github.com/gin-gonic/gin"
)

type ContainerHandler struct {
	svc *service.ContainerService
}

func NewContainerHandler(svc *service.ContainerService) *ContainerHandler {
	return &ContainerHandler{svc: svc}
}

// Register POST /containers
func (h *ContainerHandler) Register(c *gin.Context) {
	var input service.RegisterContainerInput
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "Invalid request: "+err.Error())
		return
	}
	ct, err := h.svc.Register(c.Request.Context(), SessionFrom(c), input)
	if err != nil {
		HandleError(c, err)
		return
	}
	Created(c, ct)
}

// Get GET /containers/:id
func (h *ContainerHandler) Get(c *gin.Context) {
	ct, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, ct)
}

// ListByBatch GET /batches/:id/containers
func (h *ContainerHandler) ListByBatch(c *gin.Context) {
	items, err := h.svc.ListByBatch(c.Request.Context(), c.Param("id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, gin.H{"items": items})
}

// RecordWeights PUT /containers/:id/weights
func (h *ContainerHandler) RecordWeights(c *gin.Context) {
	var input struct {
		GrossWeight float64 `json:"gross_weight"`
		TareWeight  float64 `json:"tare_weight"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "Invalid request: "+err.Error())
		return
	}
	ct, err := h.svc.RecordWeights(c.Request.Context(), SessionFrom(c), c.Param("id"), input.GrossWeight, input.TareWeight)
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, ct)
}

// Transition POST /containers/:id/events
func (h *ContainerHandler) Transition(c *gin.Context) {
	var input struct {
		Event entity.ContainerEvent `json:"event" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "Invalid request: "+err.Error())
		return
	}
	ct, err := h.svc.Transition(c.Request.Context(), SessionFrom(c), c.Param("id"), input.Event)
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, ct)
}
