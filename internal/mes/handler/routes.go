package handler

import (
	"net/http"

	"github.com/bitfantasy/amb-mes/internal/middleware"
	"github.com/gin-gonic/gin"
)

// 权限点
const (
	PermBatchWrite     = "mes:batch:write"
	PermContainerWrite = "mes:container:write"
	PermBOMWrite       = "mes:bom:write"
	PermCOAWrite       = "mes:coa:write"
	PermCOAApprove     = "mes:coa:approve"
	PermItemWrite      = "mes:item:write"
)

// RegisterRoutes 注册全部路由
func RegisterRoutes(r *gin.Engine, h *Handlers, jwtSecret string) {
	// 健康检查
	r.GET("/health/live", h.Health.Live)
	r.GET("/health/ready", h.Health.Ready)
	r.GET("/version", h.Health.Version)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"code": 40400, "success": false, "message": "Not found"})
	})

	auth := middleware.JWTAuth(jwtSecret)

	// 平台方法调用
	r.POST("/api/method/:command", auth, h.RPC.Dispatch)

	v1 := r.Group("/api/v1/mes", auth)
	{
		if h.Events != nil {
			v1.GET("/events", h.Events.Stream)
		}

		batches := v1.Group("/batches")
		{
			batches.GET("", h.Batch.List)
			batches.GET("/by-name/:name", h.Batch.GetByName)
			batches.GET("/:id", h.Batch.Get)
			batches.POST("", middleware.RequirePermission(PermBatchWrite), h.Batch.Create)
			batches.POST("/:id/sub-lots", middleware.RequirePermission(PermBatchWrite), h.Batch.CreateSubLots)
			batches.POST("/:id/transition", middleware.RequirePermission(PermBatchWrite), h.Batch.Transition)
			batches.PUT("/:id/quantities", middleware.RequirePermission(PermBatchWrite), h.Batch.UpdateQuantities)

			batches.GET("/:id/containers", h.Container.ListByBatch)
			batches.GET("/:id/boms", h.BOM.ListByBatch)
			batches.POST("/:id/boms", middleware.RequirePermission(PermBOMWrite), h.BOM.Generate)
			batches.POST("/:id/boms/import", middleware.RequirePermission(PermBOMWrite), h.BOM.GenerateFromExcel)
			batches.GET("/:id/coas", h.COA.ListByBatch)
		}

		containers := v1.Group("/containers")
		{
			containers.POST("", middleware.RequirePermission(PermContainerWrite), h.Container.Register)
			containers.GET("/:id", h.Container.Get)
			containers.PUT("/:id/weights", middleware.RequirePermission(PermContainerWrite), h.Container.RecordWeights)
			containers.POST("/:id/events", middleware.RequirePermission(PermContainerWrite), h.Container.Transition)
		}

		boms := v1.Group("/boms")
		{
			boms.GET("/:id", h.BOM.Get)
			boms.GET("/:id/explode", h.BOM.Explode)
			boms.GET("/:id/export", h.BOM.Export)
		}
		v1.GET("/bom-template", h.BOM.DownloadTemplate)

		coas := v1.Group("/coas")
		{
			coas.POST("", middleware.RequirePermission(PermCOAWrite), h.COA.Create)
			coas.GET("/:id", h.COA.Get)
			coas.PUT("/:id", middleware.RequirePermission(PermCOAWrite), h.COA.Update)
			coas.POST("/:id/approve", middleware.RequirePermission(PermCOAApprove), h.COA.Approve)
			coas.GET("/:id/export", h.COA.Export)
			coas.POST("/:id/upload", middleware.RequirePermission(PermCOAWrite), h.COA.Upload)
		}

		items := v1.Group("/items")
		{
			items.GET("", h.Item.List)
			items.GET("/:code", h.Item.Get)
			items.PUT("", middleware.RequirePermission(PermItemWrite), h.Item.Upsert)
		}
	}
}
