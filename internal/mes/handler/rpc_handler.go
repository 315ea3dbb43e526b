package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/bitfantasy/amb-mes/internal/mes/entity"
	"github.com/bitfantasy/amb-mes/internal/mes/golden"
	"github.com/bitfantasy/amb-mes/internal/mes/service"
	"github.com/bitfantasy/amb-mes/internal/middleware"
	"github.com/gin-gonic/gin"
)

// rpcFunc 白名单命令：JSON 参数 -> 结果
type rpcFunc func(c *gin.Context, sess service.Session, args json.RawMessage) (interface{}, error)

// rpcCommand 命令及其所需权限点，perm 为空表示只读命令
type rpcCommand struct {
	perm string
	fn   rpcFunc
}

// RPCHandler 按命令名分发，响应 {success, data} 或 {success:false, error}
type RPCHandler struct {
	commands map[string]rpcCommand
}

func (h *RPCHandler) register(name, perm string, fn rpcFunc) {
	h.commands[name] = rpcCommand{perm: perm, fn: fn}
}

func decode[T any](args json.RawMessage) (T, error) {
	var v T
	if len(bytes.TrimSpace(args)) == 0 {
		return v, nil
	}
	dec := json.NewDecoder(bytes.NewReader(args))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		return v, fmt.Errorf("%w: %v", service.ErrInvalidInput, err)
	}
	return v, nil
}

// call 把带参数的服务方法包装成 rpcFunc
func call[T any](fn func(c *gin.Context, sess service.Session, in T) (interface{}, error)) rpcFunc {
	return func(c *gin.Context, sess service.Session, args json.RawMessage) (interface{}, error) {
		in, err := decode[T](args)
		if err != nil {
			return nil, err
		}
		return fn(c, sess, in)
	}
}

type idArgs struct {
	ID string `json:"id"`
}

func NewRPCHandler(svc *service.Services) *RPCHandler {
	h := &RPCHandler{commands: map[string]rpcCommand{}}

	h.register("mes.golden.preview", "", call(func(c *gin.Context, _ service.Session, in golden.Input) (interface{}, error) {
		return svc.Batch.PreviewGoldenNumber(c.Request.Context(), in)
	}))
	h.register("mes.batch.create", PermBatchWrite, call(func(c *gin.Context, sess service.Session, in service.CreateBatchInput) (interface{}, error) {
		return svc.Batch.Create(c.Request.Context(), sess, in)
	}))
	h.register("mes.batch.get", "", call(func(c *gin.Context, _ service.Session, in struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}) (interface{}, error) {
		if in.Name != "" {
			return svc.Batch.GetByName(c.Request.Context(), in.Name)
		}
		return svc.Batch.Get(c.Request.Context(), in.ID)
	}))
	h.register("mes.batch.create_sub_lots", PermBatchWrite, call(func(c *gin.Context, sess service.Session, in struct {
		BatchID string `json:"batch_id"`
		Count   int    `json:"count"`
	}) (interface{}, error) {
		return svc.Batch.CreateSubLots(c.Request.Context(), sess, in.BatchID, in.Count)
	}))
	h.register("mes.batch.transition", PermBatchWrite, call(func(c *gin.Context, sess service.Session, in struct {
		BatchID      string             `json:"batch_id"`
		Action       entity.BatchAction `json:"action"`
		PlannedStart *time.Time         `json:"planned_start"`
		Comment      string             `json:"comment"`
	}) (interface{}, error) {
		return svc.Batch.Transition(c.Request.Context(), sess, in.BatchID, service.TransitionInput{
			Action: in.Action, PlannedStart: in.PlannedStart, Comment: in.Comment,
		})
	}))
	h.register("mes.container.register", PermContainerWrite, call(func(c *gin.Context, sess service.Session, in service.RegisterContainerInput) (interface{}, error) {
		return svc.Container.Register(c.Request.Context(), sess, in)
	}))
	h.register("mes.container.record_weights", PermContainerWrite, call(func(c *gin.Context, sess service.Session, in struct {
		ContainerID string  `json:"container_id"`
		GrossWeight float64 `json:"gross_weight"`
		TareWeight  float64 `json:"tare_weight"`
	}) (interface{}, error) {
		return svc.Container.RecordWeights(c.Request.Context(), sess, in.ContainerID, in.GrossWeight, in.TareWeight)
	}))
	h.register("mes.container.transition", PermContainerWrite, call(func(c *gin.Context, sess service.Session, in struct {
		ContainerID string                `json:"container_id"`
		Event       entity.ContainerEvent `json:"event"`
	}) (interface{}, error) {
		return svc.Container.Transition(c.Request.Context(), sess, in.ContainerID, in.Event)
	}))
	h.register("mes.bom.generate", PermBOMWrite, call(func(c *gin.Context, sess service.Session, in struct {
		BatchID string `json:"batch_id"`
		service.GenerateBOMInput
	}) (interface{}, error) {
		return svc.BOM.GenerateForBatch(c.Request.Context(), sess, in.BatchID, in.GenerateBOMInput)
	}))
	h.register("mes.bom.explode", "", call(func(c *gin.Context, _ service.Session, in struct {
		BOMID string  `json:"bom_id"`
		Qty   float64 `json:"qty"`
	}) (interface{}, error) {
		return svc.BOM.Explode(c.Request.Context(), in.BOMID, in.Qty)
	}))
	h.register("mes.coa.create", PermCOAWrite, call(func(c *gin.Context, sess service.Session, in service.SaveCOAInput) (interface{}, error) {
		return svc.COA.Create(c.Request.Context(), sess, in)
	}))
	h.register("mes.coa.approve", PermCOAApprove, call(func(c *gin.Context, sess service.Session, in idArgs) (interface{}, error) {
		return svc.COA.Approve(c.Request.Context(), sess, in.ID)
	}))
	h.register("mes.item.get", "", call(func(c *gin.Context, _ service.Session, in struct {
		ItemCode string `json:"item_code"`
	}) (interface{}, error) {
		return svc.Catalog.Get(c.Request.Context(), in.ItemCode)
	}))
	return h
}

// Commands 已注册的命令名
func (h *RPCHandler) Commands() []string {
	names := make([]string, 0, len(h.commands))
	for k := range h.commands {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Dispatch POST /api/method/:command
func (h *RPCHandler) Dispatch(c *gin.Context) {
	name := c.Param("command")
	cmd, ok := h.commands[name]
	if !ok {
		c.JSON(404, gin.H{"success": false, "code": CodeUnknownRPCCommand, "error": "unknown command: " + name})
		return
	}
	if cmd.perm != "" && !middleware.HasPermission(c, cmd.perm) {
		c.JSON(403, gin.H{"success": false, "code": CodePermissionDenied, "error": "permission denied: " + cmd.perm})
		return
	}

	args, err := io.ReadAll(io.LimitReader(c.Request.Body, 4<<20))
	if err != nil {
		c.JSON(400, gin.H{"success": false, "code": CodeInvalidRPCArgument, "error": err.Error()})
		return
	}
	data, err := cmd.fn(c, SessionFrom(c), args)
	if err != nil {
		code := ErrorCode(err)
		if code == CodeInternal {
			c.Error(err)
		}
		c.JSON(code/100, gin.H{"success": false, "code": code, "error": err.Error()})
		return
	}
	c.JSON(200, gin.H{"success": true, "data": data})
}
