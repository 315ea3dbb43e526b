package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/bitfantasy/amb-mes/internal/mes/entity"
	"github.com/bitfantasy/amb-mes/internal/mes/repository"
	"github.com/google/uuid"
)

// ContainerService 容器服务
type ContainerService struct {
	containers ContainerStore
	batches    BatchStore
	catalog    Catalog
	effects    *sideEffects
}

func NewContainerService(containers ContainerStore, batches BatchStore, catalog Catalog, effects *sideEffects) *ContainerService {
	return &ContainerService{containers: containers, batches: batches, catalog: catalog, effects: effects}
}

// RegisterContainerInput 登记容器请求
type RegisterContainerInput struct {
	Serial          string  `json:"serial"`
	BatchID         string  `json:"batch_id"`
	ItemCode        string  `json:"item_code"`
	Lifecycle       string  `json:"lifecycle"`
	GrossWeight     float64 `json:"gross_weight"`
	TareWeight      float64 `json:"tare_weight"`
	NominalCapacity float64 `json:"nominal_capacity"`
	MaxReuseCount   int     `json:"max_reuse_count"`
}

// Register 登记容器；额定容量未给出时取物料目录中的值
func (s *ContainerService) Register(ctx context.Context, sess Session, in RegisterContainerInput) (*entity.Container, error) {
	if err := sess.validate(); err != nil {
		return nil, err
	}
	serial := entity.NormalizeSerial(in.Serial)
	if err := entity.ValidateSerial(serial); err != nil {
		return nil, err
	}
	if _, err := s.containers.FindBySerial(ctx, serial); err == nil {
		return nil, fmt.Errorf("%w: container %s 已存在", ErrConflict, serial)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	lifecycle := in.Lifecycle
	if lifecycle == "" {
		lifecycle = entity.LifecycleReuse
	}
	if lifecycle != entity.LifecycleReuse && lifecycle != entity.LifecycleSelection {
		return nil, invalid("lifecycle 必须为 %s 或 %s，当前为 %q", entity.LifecycleReuse, entity.LifecycleSelection, in.Lifecycle)
	}
	if in.MaxReuseCount < 0 {
		return nil, invalid("max_reuse_count 不能为负数: %d", in.MaxReuseCount)
	}

	c := &entity.Container{
		ID:              uuid.New().String(),
		Serial:          serial,
		ItemCode:        in.ItemCode,
		Lifecycle:       lifecycle,
		NominalCapacity: in.NominalCapacity,
		Status:          entity.InitialStatus(lifecycle),
		MaxReuseCount:   in.MaxReuseCount,
		CreatedBy:       sess.UserID,
	}
	if c.MaxReuseCount == 0 {
		c.MaxReuseCount = 10
	}
	if in.BatchID != "" {
		b, err := s.batches.FindByID(ctx, in.BatchID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, fmt.Errorf("%w: batch %s", ErrNotFound, in.BatchID)
			}
			return nil, err
		}
		c.BatchID = &b.ID
	}
	if c.NominalCapacity == 0 && c.ItemCode != "" && s.catalog != nil {
		it, err := s.catalog.GetItem(ctx, c.ItemCode)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, fmt.Errorf("%w: item %s", ErrNotFound, c.ItemCode)
			}
			return nil, err
		}
		c.NominalCapacity = it.NominalCapacity
	}
	if in.GrossWeight > 0 || in.TareWeight > 0 {
		if err := c.SetWeights(in.GrossWeight, in.TareWeight); err != nil {
			return nil, err
		}
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	if err := s.containers.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("登记容器失败: %w", err)
	}
	s.effects.record(ctx, sess, auditEntry{EntityType: "container", EntityID: c.ID, Action: "register", To: c.Status, Comment: c.Serial})
	return c, nil
}

// Get 获取容器
func (s *ContainerService) Get(ctx context.Context, id string) (*entity.Container, error) {
	return s.containers.FindByID(ctx, id)
}

// RecordWeights 称重：重新计算净重和装填率，装填率低于10%拒绝保存
func (s *ContainerService) RecordWeights(ctx context.Context, sess Session, id string, gross, tare float64) (*entity.Container, error) {
	if err := sess.validate(); err != nil {
		return nil, err
	}
	c, err := s.containers.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status == entity.ContainerStatusRetired {
		return nil, fmt.Errorf("%w: container %s 已报废", entity.ErrTerminalStatus, c.Serial)
	}
	if err := c.SetWeights(gross, tare); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if err := s.containers.Update(ctx, c); err != nil {
		return nil, fmt.Errorf("更新容器失败: %w", err)
	}
	return c, nil
}

// Transition 执行容器事件
func (s *ContainerService) Transition(ctx context.Context, sess Session, id string, event entity.ContainerEvent) (*entity.Container, error) {
	if err := sess.validate(); err != nil {
		return nil, err
	}
	c, err := s.containers.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	from := c.Status
	if err := c.Apply(event, s.effects.now()); err != nil {
		return nil, err
	}
	if err := s.containers.Update(ctx, c); err != nil {
		return nil, fmt.Errorf("更新容器失败: %w", err)
	}

	comment := ""
	if c.Status == entity.ContainerStatusRetired && event != entity.EventRetire {
		comment = fmt.Sprintf("达到最大周转次数 %d，自动报废", c.MaxReuseCount)
	}
	s.effects.record(ctx, sess, auditEntry{
		EntityType: "container", EntityID: c.ID, Action: string(event),
		From: from, To: c.Status, Comment: comment,
	})
	return c, nil
}

// ListByBatch 批次下的容器
func (s *ContainerService) ListByBatch(ctx context.Context, batchID string) ([]entity.Container, error) {
	return s.containers.ListByBatch(ctx, batchID)
}
