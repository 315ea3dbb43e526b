package entity

import (
	"fmt"
	"time"
)

// 批次处理状态
const (
	BatchStatusDraft        = "Draft"
	BatchStatusScheduled    = "Scheduled"
	BatchStatusInProgress   = "InProgress"
	BatchStatusQualityCheck = "QualityCheck"
	BatchStatusOnHold       = "OnHold"
	BatchStatusCompleted    = "Completed"
	BatchStatusCancelled    = "Cancelled"
)

// 质量状态
const (
	QualityPending = "Pending"
	QualityPassed  = "Passed"
	QualityFailed  = "Failed"
)

// 批次层级：1=生产批次, 2=子批次, 3=容器级
const (
	LevelRoot      = 1
	LevelSubLot    = 2
	LevelContainer = 3
)

// BatchAction 状态机动作
type BatchAction string

const (
	ActionSchedule BatchAction = "schedule"
	ActionStart    BatchAction = "start"
	ActionPause    BatchAction = "pause"
	ActionResume   BatchAction = "resume"
	ActionComplete BatchAction = "complete"
	ActionApprove  BatchAction = "approve"
	ActionReject   BatchAction = "reject"
	ActionCancel   BatchAction = "cancel"
)

// batchTransitions 动作 -> 允许的起始状态 -> 目标状态
var batchTransitions = map[BatchAction]map[string]string{
	ActionSchedule: {BatchStatusDraft: BatchStatusScheduled},
	ActionStart: {
		BatchStatusDraft:     BatchStatusInProgress,
		BatchStatusScheduled: BatchStatusInProgress,
	},
	ActionPause:    {BatchStatusInProgress: BatchStatusOnHold},
	ActionResume:   {BatchStatusOnHold: BatchStatusInProgress},
	ActionComplete: {BatchStatusInProgress: BatchStatusQualityCheck},
	ActionApprove:  {BatchStatusQualityCheck: BatchStatusCompleted},
	ActionReject:   {BatchStatusQualityCheck: BatchStatusOnHold},
	ActionCancel: {
		BatchStatusDraft:        BatchStatusCancelled,
		BatchStatusScheduled:    BatchStatusCancelled,
		BatchStatusInProgress:   BatchStatusCancelled,
		BatchStatusQualityCheck: BatchStatusCancelled,
		BatchStatusOnHold:       BatchStatusCancelled,
	},
}

// Batch 生产批次（Batch AMB）
type Batch struct {
	ID                string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Name              string     `json:"name" gorm:"size:64;not null;uniqueIndex"` // 金号或 {parent}-{seq}
	GoldenNumber      string     `json:"golden_number" gorm:"size:16;index"`
	Level             int        `json:"level" gorm:"not null;default:1"`
	ParentID          *string    `json:"parent_id" gorm:"type:varchar(36);index"`
	WorkOrder         string     `json:"work_order" gorm:"size:64;index"`
	ItemCode          string     `json:"item_code" gorm:"size:64;not null"`
	ItemName          string     `json:"item_name" gorm:"size:140"`
	PlantCode         string     `json:"plant_code" gorm:"size:8"`
	Company           string     `json:"company" gorm:"size:140"`
	PlannedQty        float64    `json:"planned_qty" gorm:"type:decimal(14,4);not null"`
	ProducedQty       float64    `json:"produced_qty" gorm:"type:decimal(14,4);default:0"`
	TotalContainerQty float64    `json:"total_container_qty" gorm:"type:decimal(14,4);default:0"`
	ContainerCount    int        `json:"container_count" gorm:"default:0"`
	UOM               string     `json:"uom" gorm:"size:20;default:Kg"`
	ProcessingStatus  string     `json:"processing_status" gorm:"size:20;not null;default:Draft"`
	QualityStatus     string     `json:"quality_status" gorm:"size:20;not null;default:Pending"`
	PlannedStart      *time.Time `json:"planned_start"`
	ActualStart       *time.Time `json:"actual_start"`
	ActualCompletion  *time.Time `json:"actual_completion"`
	Defaulted         string     `json:"defaulted,omitempty" gorm:"size:128"` // 金号生成时使用缺省值的字段
	Notes             string     `json:"notes" gorm:"type:text"`
	CreatedBy         string     `json:"created_by" gorm:"size:64;not null"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`

	Containers []Container `json:"containers,omitempty" gorm:"foreignKey:BatchID"`
}

func (Batch) TableName() string {
	return "mes_batches"
}

// IsTerminal 终态不再接受任何迁移
func (b *Batch) IsTerminal() bool {
	return b.ProcessingStatus == BatchStatusCompleted || b.ProcessingStatus == BatchStatusCancelled
}

// ValidateHierarchy 层级>1必须有父批次，且父批次层级严格更低
func (b *Batch) ValidateHierarchy(parent *Batch) error {
	if b.Level < LevelRoot || b.Level > LevelContainer {
		return fmt.Errorf("%w: level=%d 超出范围 1..3", ErrHierarchy, b.Level)
	}
	if b.Level == LevelRoot {
		if parent != nil || (b.ParentID != nil && *b.ParentID != "") {
			return fmt.Errorf("%w: level 1 批次不能有 parent_reference", ErrHierarchy)
		}
		return nil
	}
	if parent == nil {
		return fmt.Errorf("%w: level %d 批次需要 parent_reference 指向 level < %d 的批次", ErrHierarchy, b.Level, b.Level)
	}
	if parent.Level >= b.Level {
		return fmt.Errorf("%w: level %d 批次的父批次 %s 层级为 %d，需小于 %d",
			ErrHierarchy, b.Level, parent.Name, parent.Level, b.Level)
	}
	return nil
}

// Apply 执行状态机动作
func (b *Batch) Apply(action BatchAction, now time.Time) error {
	if b.IsTerminal() {
		return fmt.Errorf("%w: %s (action=%s)", ErrTerminalStatus, b.ProcessingStatus, action)
	}
	targets, ok := batchTransitions[action]
	if !ok {
		return fmt.Errorf("%w: 未知动作 %q", ErrInvalidTransition, action)
	}
	to, ok := targets[b.ProcessingStatus]
	if !ok {
		return fmt.Errorf("%w: %s 状态不能执行 %s", ErrInvalidTransition, b.ProcessingStatus, action)
	}

	switch action {
	case ActionSchedule:
		if b.PlannedStart == nil {
			return fmt.Errorf("%w: schedule 需要 planned_start", ErrInvalidTransition)
		}
	case ActionStart:
		b.ActualStart = &now
	case ActionComplete:
		b.ActualCompletion = &now
	case ActionApprove:
		b.QualityStatus = QualityPassed
	case ActionReject:
		b.QualityStatus = QualityFailed
	}
	b.ProcessingStatus = to
	return nil
}

// SetQuantities 修改数量；已完成批次拒绝
func (b *Batch) SetQuantities(planned, produced, totalContainer *float64) error {
	if b.ProcessingStatus == BatchStatusCompleted {
		return fmt.Errorf("%w: %s", ErrQuantityLocked, b.Name)
	}
	if planned != nil {
		if *planned <= 0 {
			return fmt.Errorf("planned_qty 必须大于0，当前为 %v", *planned)
		}
		b.PlannedQty = *planned
	}
	if produced != nil {
		if *produced < 0 {
			return fmt.Errorf("produced_qty 不能为负数，当前为 %v", *produced)
		}
		b.ProducedQty = *produced
	}
	if totalContainer != nil {
		if *totalContainer < 0 {
			return fmt.Errorf("total_container_qty 不能为负数，当前为 %v", *totalContainer)
		}
		b.TotalContainerQty = *totalContainer
	}
	return nil
}
