package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bitfantasy/amb-mes/internal/mes/entity"
	"github.com/bitfantasy/amb-mes/internal/mes/naming"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// COAService 分析证书服务
type COAService struct {
	coas    COAStore
	batches BatchStore
	names   *naming.Generator
	storage ReportStorage
	effects *sideEffects
	now     func() time.Time
}

func NewCOAService(coas COAStore, batches BatchStore, names *naming.Generator, storage ReportStorage, effects *sideEffects, now func() time.Time) *COAService {
	return &COAService{coas: coas, batches: batches, names: names, storage: storage, effects: effects, now: now}
}

// COAParameterInput 检测项输入；状态由结果推导，不接受外部传入
type COAParameterInput struct {
	ParameterName string   `json:"parameter_name"`
	Specification string   `json:"specification"`
	Result        *float64 `json:"result"`
	ResultText    string   `json:"result_text"`
	MinValue      *float64 `json:"min_value"`
	MaxValue      *float64 `json:"max_value"`
}

// SaveCOAInput 创建/更新COA请求
type SaveCOAInput struct {
	BatchID    string              `json:"batch_id"`
	Customer   string              `json:"customer"`
	Parameters []COAParameterInput `json:"parameters"`
}

func buildParameters(coaID string, in []COAParameterInput) ([]entity.COAParameter, error) {
	params := make([]entity.COAParameter, 0, len(in))
	for i, p := range in {
		name := strings.TrimSpace(p.ParameterName)
		if name == "" {
			return nil, invalid("第 %d 个检测项缺少 parameter_name", i+1)
		}
		if p.MinValue != nil && p.MaxValue != nil && *p.MinValue > *p.MaxValue {
			return nil, invalid("检测项 %s 下限 %v 大于上限 %v", name, *p.MinValue, *p.MaxValue)
		}
		params = append(params, entity.COAParameter{
			ID:            uuid.New().String(),
			COAID:         coaID,
			ParameterName: name,
			Specification: strings.TrimSpace(p.Specification),
			Result:        p.Result,
			ResultText:    p.ResultText,
			MinValue:      p.MinValue,
			MaxValue:      p.MaxValue,
			SortOrder:     i + 1,
		})
	}
	return params, nil
}

// Create 创建COA并计算每项及总体结果
func (s *COAService) Create(ctx context.Context, sess Session, in SaveCOAInput) (*entity.COA, error) {
	if err := sess.validate(); err != nil {
		return nil, err
	}
	batch, err := s.batches.FindByID(ctx, in.BatchID)
	if err != nil {
		return nil, err
	}
	name, err := s.names.Generate(ctx, "COA-"+batch.Name)
	if err != nil {
		return nil, err
	}
	coa := &entity.COA{
		ID:        uuid.New().String(),
		Name:      name,
		BatchID:   batch.ID,
		ItemCode:  batch.ItemCode,
		Customer:  in.Customer,
		DocStatus: entity.COAStatusDraft,
		CreatedBy: sess.UserID,
	}
	if coa.Parameters, err = buildParameters(coa.ID, in.Parameters); err != nil {
		return nil, err
	}
	coa.Recompute()

	if err := s.coas.Create(ctx, coa); err != nil {
		return nil, fmt.Errorf("创建COA失败: %w", err)
	}
	s.effects.record(ctx, sess, auditEntry{EntityType: "coa", EntityID: coa.ID, Action: "create", To: coa.OverallResult, Comment: coa.Name})
	return coa, nil
}

// Update 替换检测项并重新计算；已审核的COA不可修改
func (s *COAService) Update(ctx context.Context, sess Session, id string, in SaveCOAInput) (*entity.COA, error) {
	if err := sess.validate(); err != nil {
		return nil, err
	}
	coa, err := s.coas.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if coa.DocStatus == entity.COAStatusApproved {
		return nil, fmt.Errorf("%w: COA %s 已审核", ErrConflict, coa.Name)
	}
	if coa.Parameters, err = buildParameters(coa.ID, in.Parameters); err != nil {
		return nil, err
	}
	if in.Customer != "" {
		coa.Customer = in.Customer
	}
	from := coa.OverallResult
	coa.Recompute()

	if err := s.coas.Update(ctx, coa); err != nil {
		return nil, fmt.Errorf("更新COA失败: %w", err)
	}
	s.effects.record(ctx, sess, auditEntry{EntityType: "coa", EntityID: coa.ID, Action: "update", From: from, To: coa.OverallResult})
	return coa, nil
}

// Get 获取COA
func (s *COAService) Get(ctx context.Context, id string) (*entity.COA, error) {
	return s.coas.FindByID(ctx, id)
}

// ListByBatch 批次的COA
func (s *COAService) ListByBatch(ctx context.Context, batchID string) ([]entity.COA, error) {
	return s.coas.ListByBatch(ctx, batchID)
}

// Approve 审核：总体结果必须为 Pass
func (s *COAService) Approve(ctx context.Context, sess Session, id string) (*entity.COA, error) {
	if err := sess.validate(); err != nil {
		return nil, err
	}
	coa, err := s.coas.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if coa.DocStatus == entity.COAStatusApproved {
		return nil, fmt.Errorf("%w: COA %s 已审核", ErrConflict, coa.Name)
	}
	if coa.Recompute() != entity.TestPass {
		return nil, invalid("COA %s 总体结果为 %s，不能审核", coa.Name, coa.OverallResult)
	}
	now := s.now()
	coa.DocStatus = entity.COAStatusApproved
	coa.ApprovedBy = sess.UserID
	coa.ApprovedAt = &now

	if err := s.coas.Update(ctx, coa); err != nil {
		return nil, fmt.Errorf("审核COA失败: %w", err)
	}
	s.effects.record(ctx, sess, auditEntry{EntityType: "coa", EntityID: coa.ID, Action: "approve", From: entity.COAStatusDraft, To: coa.DocStatus})
	s.effects.notify(ctx, sess, Notification{
		Title:  "COA 已审核",
		OK:     true,
		Fields: [][2]string{{"COA", coa.Name}, {"物料", coa.ItemCode}, {"审核人", sess.UserName}},
	})
	return coa, nil
}

// Export 导出COA工作簿
func (s *COAService) Export(ctx context.Context, id string) ([]byte, string, error) {
	coa, err := s.coas.FindByID(ctx, id)
	if err != nil {
		return nil, "", err
	}
	batchName := coa.BatchID
	if b, err := s.batches.FindByID(ctx, coa.BatchID); err == nil {
		batchName = b.Name
	}
	data, err := buildCOAWorkbook(coa, batchName)
	if err != nil {
		return nil, "", err
	}
	return data, fmt.Sprintf("COA_%s.xlsx", coa.Name), nil
}

// Upload 导出并上传到对象存储；上传失败只记日志，返回的 COA 保持原报告路径
func (s *COAService) Upload(ctx context.Context, sess Session, id string) (*entity.COA, error) {
	if err := sess.validate(); err != nil {
		return nil, err
	}
	data, filename, err := s.Export(ctx, id)
	if err != nil {
		return nil, err
	}
	coa, err := s.coas.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.storage == nil {
		s.effects.logger.Warn("未配置对象存储，跳过上传", zap.String("coa", coa.Name))
		return coa, nil
	}
	object := fmt.Sprintf("coa/%s/%s", s.now().Format("2006/01"), filename)
	path, err := s.storage.Put(ctx, object, data, XLSXContentType)
	if err != nil {
		s.effects.logger.Warn("上传COA报告失败",
			zap.String("coa", coa.Name),
			zap.String("request_id", sess.RequestID),
			zap.Error(err))
		return coa, nil
	}
	coa.ReportObject = path
	if err := s.coas.Update(ctx, coa); err != nil {
		return nil, fmt.Errorf("保存报告路径失败: %w", err)
	}
	s.effects.record(ctx, sess, auditEntry{EntityType: "coa", EntityID: coa.ID, Action: "upload", Comment: path})
	return coa, nil
}
