package service

import (
	"context"
	"time"

	"github.com/bitfantasy/amb-mes/internal/mes/entity"
	"github.com/bitfantasy/amb-mes/internal/mes/events"
	"github.com/bitfantasy/amb-mes/internal/shared/feishu"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AuditWriter 操作日志写入
type AuditWriter interface {
	Write(ctx context.Context, log *entity.AuditLog) error
}

// Notification 业务通知
type Notification struct {
	Title  string
	OK     bool
	Fields [][2]string
	Note   string
}

// Notifier 通知发送
type Notifier interface {
	Notify(ctx context.Context, chatID string, n Notification) error
}

// Publisher 实时变更推送
type Publisher interface {
	Publish(company string, c events.Change)
}

// FeishuNotifier 通过飞书群消息卡片发送通知
type FeishuNotifier struct {
	client *feishu.FeishuClient
}

func NewFeishuNotifier(client *feishu.FeishuClient) *FeishuNotifier {
	return &FeishuNotifier{client: client}
}

func (n *FeishuNotifier) Notify(ctx context.Context, chatID string, msg Notification) error {
	_, err := n.client.SendCard(ctx, chatID, feishu.NewNoticeCard(msg.Title, msg.OK, msg.Fields, msg.Note))
	return err
}

const sideEffectTimeout = 5 * time.Second

// sideEffects 审计、通知与变更推送：失败只记日志，从不向调用方返回错误
type sideEffects struct {
	audit    AuditWriter
	notifier Notifier
	events   Publisher
	chatID   string
	logger   *zap.Logger
	now      func() time.Time
}

func newSideEffects(audit AuditWriter, notifier Notifier, publisher Publisher, chatID string, logger *zap.Logger, now func() time.Time) *sideEffects {
	return &sideEffects{audit: audit, notifier: notifier, events: publisher, chatID: chatID, logger: logger, now: now}
}

type auditEntry struct {
	EntityType string
	EntityID   string
	Action     string
	From, To   string
	Comment    string
}

func (e *sideEffects) record(ctx context.Context, sess Session, a auditEntry) {
	e.publish(sess, a)
	if e.audit == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()

	log := &entity.AuditLog{
		ID:         uuid.New().String(),
		EntityType: a.EntityType,
		EntityID:   a.EntityID,
		Action:     a.Action,
		FromStatus: a.From,
		ToStatus:   a.To,
		UserID:     sess.UserID,
		Company:    sess.Company,
		RequestID:  sess.RequestID,
		Comment:    a.Comment,
		CreatedAt:  e.now(),
	}
	if err := e.audit.Write(ctx, log); err != nil {
		e.logger.Warn("写入操作日志失败",
			zap.String("entity_type", a.EntityType),
			zap.String("entity_id", a.EntityID),
			zap.String("action", a.Action),
			zap.String("request_id", sess.RequestID),
			zap.Error(err))
	}
}

func (e *sideEffects) publish(sess Session, a auditEntry) {
	if e.events == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("推送变更异常", zap.Any("panic", r), zap.String("entity_id", a.EntityID))
		}
	}()
	e.events.Publish(sess.Company, events.Change{
		EntityType: a.EntityType,
		EntityID:   a.EntityID,
		Action:     a.Action,
		From:       a.From,
		To:         a.To,
		UserID:     sess.UserID,
		At:         e.now(),
	})
}

func (e *sideEffects) notify(ctx context.Context, sess Session, n Notification) {
	if e.notifier == nil || e.chatID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("发送通知异常", zap.Any("panic", r), zap.String("title", n.Title))
		}
	}()
	if err := e.notifier.Notify(ctx, e.chatID, n); err != nil {
		e.logger.Warn("发送通知失败",
			zap.String("title", n.Title),
			zap.String("request_id", sess.RequestID),
			zap.Error(err))
	}
}
