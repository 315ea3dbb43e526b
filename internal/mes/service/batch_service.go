package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bitfantasy/amb-mes/internal/mes/alloc"
	"github.com/bitfantasy/amb-mes/internal/mes/entity"
	"github.com/bitfantasy/amb-mes/internal/mes/golden"
	"github.com/bitfantasy/amb-mes/internal/mes/repository"
	"github.com/bitfantasy/amb-mes/internal/mes/sequence"
	"github.com/google/uuid"
)

// BatchService 批次服务
type BatchService struct {
	batches    BatchStore
	containers ContainerStore
	seq        sequence.Allocator
	effects    *sideEffects
	defaults   golden.Defaults
	now        func() time.Time
}

func NewBatchService(batches BatchStore, containers ContainerStore, seq sequence.Allocator, effects *sideEffects, defaults golden.Defaults, now func() time.Time) *BatchService {
	return &BatchService{batches: batches, containers: containers, seq: seq, effects: effects, defaults: defaults, now: now}
}

// CreateBatchInput 创建批次请求
type CreateBatchInput struct {
	Level          int        `json:"level"`
	ParentID       string     `json:"parent_id"`
	GoldenNumber   string     `json:"golden_number"` // 直接指定金号，必须为10位数字
	ProductCode    string     `json:"product_code"`
	WorkOrder      string     `json:"work_order"`
	Consecutive    string     `json:"consecutive"`
	Year           string     `json:"year"`
	Plant          string     `json:"plant"`
	ItemCode       string     `json:"item_code"`
	ItemName       string     `json:"item_name"`
	PlannedQty     float64    `json:"planned_qty"`
	UOM            string     `json:"uom"`
	ContainerCount int        `json:"container_count"`
	PlannedStart   *time.Time `json:"planned_start"`
	Notes          string     `json:"notes"`
}

// childKey 同一父批次下的子批次共用一个流水号
func childKey(parentID string) string {
	return sequence.Key("batch", parentID)
}

// Create 创建批次
// 一级批次使用金号作为批次号，二、三级批次为 {父批次号}-{序号}
func (s *BatchService) Create(ctx context.Context, sess Session, in CreateBatchInput) (*entity.Batch, error) {
	if err := sess.validate(); err != nil {
		return nil, err
	}
	if in.Level == 0 {
		in.Level = entity.LevelRoot
	}
	if in.PlannedQty <= 0 {
		return nil, invalid("planned_qty 必须大于 0，当前为 %v", in.PlannedQty)
	}
	if in.ContainerCount < 0 {
		return nil, invalid("container_count 不能为负数: %d", in.ContainerCount)
	}

	var parent *entity.Batch
	if in.ParentID != "" {
		p, err := s.batches.FindByID(ctx, in.ParentID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, fmt.Errorf("%w: parent batch %s", ErrNotFound, in.ParentID)
			}
			return nil, err
		}
		parent = p
	}

	b := &entity.Batch{
		ID:               uuid.New().String(),
		Level:            in.Level,
		WorkOrder:        strings.TrimSpace(in.WorkOrder),
		ItemCode:         strings.TrimSpace(in.ItemCode),
		ItemName:         in.ItemName,
		Company:          sess.Company,
		PlannedQty:       in.PlannedQty,
		ContainerCount:   in.ContainerCount,
		UOM:              in.UOM,
		ProcessingStatus: entity.BatchStatusDraft,
		QualityStatus:    entity.QualityPending,
		PlannedStart:     in.PlannedStart,
		Notes:            in.Notes,
		CreatedBy:        sess.UserID,
	}
	if parent != nil {
		b.ParentID = &parent.ID
	}
	if err := b.ValidateHierarchy(parent); err != nil {
		return nil, err
	}

	if parent == nil {
		if err := s.assignGoldenNumber(ctx, b, in); err != nil {
			return nil, err
		}
	} else {
		if parent.IsTerminal() {
			return nil, fmt.Errorf("%w: parent batch %s 状态为 %s", entity.ErrTerminalStatus, parent.Name, parent.ProcessingStatus)
		}
		if err := s.assignChildName(ctx, b, parent); err != nil {
			return nil, err
		}
	}
	if b.ItemCode == "" {
		return nil, invalid("item_code 不能为空")
	}
	if b.UOM == "" {
		b.UOM = "Kg"
	}

	if err := s.batches.Create(ctx, b); err != nil {
		return nil, fmt.Errorf("创建批次失败: %w", err)
	}
	s.effects.record(ctx, sess, auditEntry{EntityType: "batch", EntityID: b.ID, Action: "create", To: b.ProcessingStatus, Comment: b.Name})
	return b, nil
}

func (s *BatchService) assignGoldenNumber(ctx context.Context, b *entity.Batch, in CreateBatchInput) error {
	var name string
	if in.GoldenNumber != "" {
		if err := golden.ValidateGoldenNumber(in.GoldenNumber); err != nil {
			return invalid("%v", err)
		}
		name = in.GoldenNumber
	} else {
		var resolved golden.Resolved
		name, resolved = golden.Generate(golden.Input{
			ProductCode: in.ProductCode,
			WorkOrder:   in.WorkOrder,
			Consecutive: in.Consecutive,
			Year:        in.Year,
			Plant:       in.Plant,
		}, s.defaults, s.now())
		b.Defaulted = strings.Join(resolved.Defaulted, ",")
		b.PlantCode = fmt.Sprintf("%d", resolved.Plant)
	}
	if b.PlantCode == "" {
		b.PlantCode = name[len(name)-1:]
	}

	exists, err := s.batches.NameExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: batch %s 已存在", ErrConflict, name)
	}
	b.Name = name
	b.GoldenNumber = name
	return nil
}

func (s *BatchService) assignChildName(ctx context.Context, b *entity.Batch, parent *entity.Batch) error {
	floor, err := s.batches.CountChildren(ctx, parent.ID)
	if err != nil {
		return err
	}
	seq, err := s.seq.Next(ctx, childKey(parent.ID), floor)
	if err != nil {
		return err
	}
	b.Name = golden.ChildID(parent.Name, seq)
	b.GoldenNumber = parent.GoldenNumber
	b.PlantCode = parent.PlantCode
	if b.ItemCode == "" {
		b.ItemCode = parent.ItemCode
		b.ItemName = parent.ItemName
	}
	if b.UOM == "" {
		b.UOM = parent.UOM
	}
	if b.WorkOrder == "" {
		b.WorkOrder = parent.WorkOrder
	}
	return nil
}

// Get 获取批次
func (s *BatchService) Get(ctx context.Context, id string) (*entity.Batch, error) {
	return s.batches.FindByID(ctx, id)
}

// GetByName 按批次号获取
func (s *BatchService) GetByName(ctx context.Context, name string) (*entity.Batch, error) {
	return s.batches.FindByName(ctx, name)
}

// List 批次列表
func (s *BatchService) List(ctx context.Context, f repository.BatchFilter) ([]entity.Batch, int64, error) {
	return s.batches.List(ctx, f)
}

// SubLotResult 拆分结果
type SubLotResult struct {
	Parent  *entity.Batch   `json:"parent"`
	SubLots []*entity.Batch `json:"sub_lots"`
}

// CreateSubLots 将批次拆成 count 个子批次
// 计划量平均分配；容器按顺序切分，前 count%n 个子批次各多一个容器
func (s *BatchService) CreateSubLots(ctx context.Context, sess Session, parentID string, count int) (*SubLotResult, error) {
	if err := sess.validate(); err != nil {
		return nil, err
	}
	parent, err := s.batches.FindByID(ctx, parentID)
	if err != nil {
		return nil, err
	}
	if parent.IsTerminal() {
		return nil, fmt.Errorf("%w: batch %s 状态为 %s", entity.ErrTerminalStatus, parent.Name, parent.ProcessingStatus)
	}
	if parent.Level >= entity.LevelContainer {
		return nil, fmt.Errorf("%w: level %d 的批次不能再拆分", entity.ErrHierarchy, parent.Level)
	}

	shares, err := alloc.SplitQuantity(parent.PlannedQty, count)
	if err != nil {
		return nil, invalid("%v", err)
	}
	containers, err := s.containers.ListByBatch(ctx, parent.ID)
	if err != nil {
		return nil, err
	}
	groups, err := alloc.Partition(containers, count)
	if err != nil {
		return nil, invalid("%v", err)
	}
	counts, err := alloc.SplitContainers(parent.ContainerCount, count)
	if err != nil {
		return nil, invalid("%v", err)
	}

	floor, err := s.batches.CountChildren(ctx, parent.ID)
	if err != nil {
		return nil, err
	}
	subs := make([]*entity.Batch, 0, count)
	assign := make(map[string][]string, count)
	for i := 0; i < count; i++ {
		seq, err := s.seq.Next(ctx, childKey(parent.ID), floor)
		if err != nil {
			return nil, err
		}
		sub := &entity.Batch{
			ID:               uuid.New().String(),
			Name:             golden.ChildID(parent.Name, seq),
			GoldenNumber:     parent.GoldenNumber,
			Level:            parent.Level + 1,
			ParentID:         &parent.ID,
			WorkOrder:        parent.WorkOrder,
			ItemCode:         parent.ItemCode,
			ItemName:         parent.ItemName,
			PlantCode:        parent.PlantCode,
			Company:          parent.Company,
			PlannedQty:       shares[i],
			ContainerCount:   counts[i],
			UOM:              parent.UOM,
			ProcessingStatus: entity.BatchStatusDraft,
			QualityStatus:    entity.QualityPending,
			CreatedBy:        sess.UserID,
		}
		if len(containers) > 0 {
			sub.ContainerCount = len(groups[i])
			for _, c := range groups[i] {
				sub.TotalContainerQty += c.NetWeight
				assign[sub.ID] = append(assign[sub.ID], c.ID)
			}
		}
		if err := sub.ValidateHierarchy(parent); err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}

	if err := s.batches.CreateSubLots(ctx, subs, assign); err != nil {
		return nil, fmt.Errorf("创建子批次失败: %w", err)
	}
	s.effects.record(ctx, sess, auditEntry{
		EntityType: "batch", EntityID: parent.ID, Action: "split",
		Comment: fmt.Sprintf("%d sub-lots, %d containers", count, len(containers)),
	})
	return &SubLotResult{Parent: parent, SubLots: subs}, nil
}

// TransitionInput 状态变更请求
type TransitionInput struct {
	Action       entity.BatchAction `json:"action"`
	PlannedStart *time.Time         `json:"planned_start"`
	Comment      string             `json:"comment"`
}

// Transition 执行状态机动作
func (s *BatchService) Transition(ctx context.Context, sess Session, id string, in TransitionInput) (*entity.Batch, error) {
	if err := sess.validate(); err != nil {
		return nil, err
	}
	b, err := s.batches.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.PlannedStart != nil && in.Action == entity.ActionSchedule {
		b.PlannedStart = in.PlannedStart
	}

	from := b.ProcessingStatus
	if err := b.Apply(in.Action, s.now()); err != nil {
		return nil, fmt.Errorf("batch %s: %w", b.Name, err)
	}
	if err := s.batches.Update(ctx, b); err != nil {
		return nil, fmt.Errorf("更新批次失败: %w", err)
	}

	s.effects.record(ctx, sess, auditEntry{
		EntityType: "batch", EntityID: b.ID, Action: string(in.Action),
		From: from, To: b.ProcessingStatus, Comment: in.Comment,
	})
	switch in.Action {
	case entity.ActionApprove, entity.ActionReject, entity.ActionCancel:
		s.effects.notify(ctx, sess, Notification{
			Title: "批次状态变更",
			OK:    in.Action == entity.ActionApprove,
			Fields: [][2]string{
				{"批次", b.Name},
				{"物料", b.ItemCode},
				{"状态", from + " → " + b.ProcessingStatus},
				{"操作人", sess.UserName},
			},
			Note: in.Comment,
		})
	}
	return b, nil
}

// UpdateQuantitiesInput 数量更新，nil 表示不修改
type UpdateQuantitiesInput struct {
	PlannedQty        *float64 `json:"planned_qty"`
	ProducedQty       *float64 `json:"produced_qty"`
	TotalContainerQty *float64 `json:"total_container_qty"`
}

// UpdateQuantities 更新数量，批次完成后拒绝
func (s *BatchService) UpdateQuantities(ctx context.Context, sess Session, id string, in UpdateQuantitiesInput) (*entity.Batch, error) {
	if err := sess.validate(); err != nil {
		return nil, err
	}
	b, err := s.batches.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := b.SetQuantities(in.PlannedQty, in.ProducedQty, in.TotalContainerQty); err != nil {
		if errors.Is(err, entity.ErrQuantityLocked) || errors.Is(err, entity.ErrTerminalStatus) {
			return nil, err
		}
		return nil, invalid("%v", err)
	}
	if err := s.batches.Update(ctx, b); err != nil {
		return nil, fmt.Errorf("更新批次失败: %w", err)
	}
	s.effects.record(ctx, sess, auditEntry{EntityType: "batch", EntityID: b.ID, Action: "update_quantities"})
	return b, nil
}

// GoldenPreview 金号预览结果
type GoldenPreview struct {
	GoldenNumber string   `json:"golden_number"`
	Defaulted    []string `json:"defaulted"`
	Exists       bool     `json:"exists"`
}

// PreviewGoldenNumber 按当前缺省值计算金号但不创建批次
func (s *BatchService) PreviewGoldenNumber(ctx context.Context, in golden.Input) (*GoldenPreview, error) {
	name, resolved := golden.Generate(in, s.defaults, s.now())
	exists, err := s.batches.NameExists(ctx, name)
	if err != nil {
		return nil, err
	}
	return &GoldenPreview{GoldenNumber: name, Defaulted: resolved.Defaulted, Exists: exists}, nil
}
