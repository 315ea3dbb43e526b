package handler

import (
	"errors"
	"strconv"

	"github.com/bitfantasy/amb-mes/internal/mes/bomtree"
	"github.com/bitfantasy/amb-mes/internal/mes/entity"
	"github.com/bitfantasy/amb-mes/internal/mes/events"
	"github.com/bitfantasy/amb-mes/internal/mes/service"
	"github.com/bitfantasy/amb-mes/internal/middleware"
	"github.com/gin-gonic/gin"
)

// Handlers 处理器集合
type Handlers struct {
	Batch     *BatchHandler
	Container *ContainerHandler
	BOM       *BOMHandler
	COA       *COAHandler
	Item      *ItemHandler
	RPC       *RPCHandler
	Health    *HealthHandler
	Events    *EventsHandler
}

// NewHandlers 创建处理器集合
func NewHandlers(svc *service.Services, health *HealthHandler, hub *events.Hub) *Handlers {
	h := &Handlers{
		Batch:     NewBatchHandler(svc.Batch),
		Container: NewContainerHandler(svc.Container),
		BOM:       NewBOMHandler(svc.BOM),
		COA:       NewCOAHandler(svc.COA),
		Item:      NewItemHandler(svc.Catalog),
		RPC:       NewRPCHandler(svc),
		Health:    health,
	}
	if hub != nil {
		h.Events = NewEventsHandler(hub)
	}
	return h
}

// Response 通用响应结构
type Response struct {
	Code    int         `json:"code"`
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ListResponse 列表响应结构
type ListResponse struct {
	Items      interface{} `json:"items"`
	Pagination *Pagination `json:"pagination"`
}

// Pagination 分页信息
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

func newPagination(page, pageSize int, total int64) *Pagination {
	pages := 0
	if pageSize > 0 {
		pages = int((total + int64(pageSize) - 1) / int64(pageSize))
	}
	return &Pagination{Page: page, PageSize: pageSize, Total: total, TotalPages: pages}
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(200, Response{
		Code:    0,
		Success: true,
		Message: "success",
		Data:    data,
	})
}

// Created 创建成功响应
func Created(c *gin.Context, data interface{}) {
	c.JSON(201, Response{
		Code:    0,
		Success: true,
		Message: "success",
		Data:    data,
	})
}

// Error 错误响应，HTTP 状态码取业务码前三位
func Error(c *gin.Context, code int, message string) {
	statusCode := code / 100
	if statusCode < 100 || statusCode > 599 {
		statusCode = 500
	}
	c.JSON(statusCode, Response{
		Code:    code,
		Message: message,
	})
}

// BadRequest 参数错误响应
func BadRequest(c *gin.Context, message string) {
	Error(c, 40000, message)
}

// NotFound 资源不存在响应
func NotFound(c *gin.Context, message string) {
	Error(c, 40400, message)
}

// InternalError 服务器错误响应
func InternalError(c *gin.Context, message string) {
	Error(c, 50000, message)
}

// 业务错误码
const (
	CodeInvalidInput       = 40001
	CodeHierarchy          = 40002
	CodeInvalidContainer   = 40003
	CodeNotFound           = 40400
	CodeConflict           = 40900
	CodeTerminalStatus     = 40901
	CodeInvalidTransition  = 40902
	CodeQuantityLocked     = 40903
	CodeBOMCycle           = 40904
	CodeInternal           = 50000
	CodeUnknownRPCCommand  = 40401
	CodeInvalidRPCArgument = 40004
	CodePermissionDenied   = 40302
)

// ErrorCode 服务层错误映射为业务码
func ErrorCode(err error) int {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, service.ErrInvalidInput):
		return CodeInvalidInput
	case errors.Is(err, entity.ErrHierarchy):
		return CodeHierarchy
	case errors.Is(err, entity.ErrInvalidSerial),
		errors.Is(err, entity.ErrNegativeNetWeight),
		errors.Is(err, entity.ErrInvalidWeight),
		errors.Is(err, entity.ErrFillTooLow):
		return CodeInvalidContainer
	case errors.Is(err, service.ErrConflict):
		return CodeConflict
	case errors.Is(err, entity.ErrTerminalStatus):
		return CodeTerminalStatus
	case errors.Is(err, entity.ErrInvalidTransition):
		return CodeInvalidTransition
	case errors.Is(err, entity.ErrQuantityLocked):
		return CodeQuantityLocked
	case errors.Is(err, bomtree.ErrCycle):
		return CodeBOMCycle
	default:
		return CodeInternal
	}
}

// HandleError 统一错误响应
func HandleError(c *gin.Context, err error) {
	code := ErrorCode(err)
	if code == CodeInternal {
		c.Error(err)
	}
	Error(c, code, err.Error())
}

// SessionFrom 从认证中间件写入的上下文构造会话
func SessionFrom(c *gin.Context) service.Session {
	return service.Session{
		UserID:    c.GetString(middleware.KeyUserID),
		UserName:  c.GetString(middleware.KeyUserName),
		Company:   c.GetString(middleware.KeyCompany),
		RequestID: c.GetString(middleware.KeyRequestID),
	}
}

// GetPagination 从请求获取分页参数
func GetPagination(c *gin.Context) (page, pageSize int) {
	page = 1
	pageSize = 20

	if p := c.Query("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page = v
		}
	}

	if ps := c.Query("page_size"); ps != "" {
		if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= 200 {
			pageSize = v
		}
	}

	return page, pageSize
}

func sendFile(c *gin.Context, data []byte, filename string) {
	c.Header("Content-Disposition", "attachment; filename=\""+filename+"\"")
	c.Header("Content-Transfer-Encoding", "binary")
	c.Data(200, service.XLSXContentType, data)
}
