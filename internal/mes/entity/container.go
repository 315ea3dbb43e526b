package entity

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// 容器生命周期（周转桶）
const (
	ContainerStatusNew           = "New"
	ContainerStatusInUse         = "InUse"
	ContainerStatusCleaning      = "Cleaning"
	ContainerStatusReadyForReuse = "ReadyForReuse"
	ContainerStatusRetired       = "Retired"
)

// 选桶生命周期
const (
	ContainerStatusAvailable = "Available"
	ContainerStatusReserved  = "Reserved"
	ContainerStatusPartial   = "Partial"
	ContainerStatusCompleted = "Completed"
)

// 装填状态
const (
	FillRejected = "Rejected"
	FillPartial  = "Partial"
	FillFull     = "Full"
)

// 生命周期模型
const (
	LifecycleReuse     = "reuse"
	LifecycleSelection = "selection"
)

const (
	minFillPercent     = 10.0
	partialFillPercent = 95.0
	defaultMaxReuse    = 10
)

var serialPattern = regexp.MustCompile(`^[A-Z]{3}-\d{4}-[A-Z]\d{3}-\d{4}$`)

// ContainerEvent 容器事件
type ContainerEvent string

const (
	EventFill    ContainerEvent = "fill"
	EventEmpty   ContainerEvent = "empty"
	EventClean   ContainerEvent = "clean"
	EventRetire  ContainerEvent = "retire"
	EventReserve ContainerEvent = "reserve"
	EventRelease ContainerEvent = "release"
	EventLoad    ContainerEvent = "load" // 按装填率进入 Partial/Completed
)

var reuseTransitions = map[ContainerEvent]map[string]string{
	EventFill: {
		ContainerStatusNew:           ContainerStatusInUse,
		ContainerStatusReadyForReuse: ContainerStatusInUse,
	},
	EventEmpty: {ContainerStatusInUse: ContainerStatusCleaning},
	EventClean: {ContainerStatusCleaning: ContainerStatusReadyForReuse},
}

// Container 容器/桶
type Container struct {
	ID              string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Serial          string     `json:"serial" gorm:"size:32;not null;uniqueIndex"`
	BatchID         *string    `json:"batch_id" gorm:"type:varchar(36);index"`
	ItemCode        string     `json:"item_code" gorm:"size:64"`
	Lifecycle       string     `json:"lifecycle" gorm:"size:16;not null;default:reuse"`
	GrossWeight     float64    `json:"gross_weight" gorm:"type:decimal(12,3);default:0"`
	TareWeight      float64    `json:"tare_weight" gorm:"type:decimal(12,3);default:0"`
	NetWeight       float64    `json:"net_weight" gorm:"type:decimal(12,3);default:0"`
	NominalCapacity float64    `json:"nominal_capacity" gorm:"type:decimal(12,3);default:0"`
	FillPercentage  float64    `json:"fill_percentage" gorm:"type:decimal(6,2);default:0"`
	FillState       string     `json:"fill_state" gorm:"size:16"`
	Status          string     `json:"status" gorm:"size:20;not null"`
	UsageCount      int        `json:"usage_count" gorm:"default:0"`
	MaxReuseCount   int        `json:"max_reuse_count" gorm:"default:10"`
	LastCleanedAt   *time.Time `json:"last_cleaned_at"`
	CreatedBy       string     `json:"created_by" gorm:"size:64"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func (Container) TableName() string {
	return "mes_containers"
}

// NormalizeSerial 去空格并转大写
func NormalizeSerial(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// ValidateSerial 序列号格式 AAA-NNNN-ANNN-NNNN
func ValidateSerial(s string) error {
	if !serialPattern.MatchString(s) {
		return fmt.Errorf("%w: %q，应为 AAA-NNNN-ANNN-NNNN", ErrInvalidSerial, s)
	}
	return nil
}

// NetWeight 净重 = 毛重 - 皮重
func NetWeight(gross, tare float64) (float64, error) {
	if gross < 0 || tare < 0 {
		return 0, fmt.Errorf("%w: gross=%v tare=%v", ErrInvalidWeight, gross, tare)
	}
	if gross < tare {
		return 0, fmt.Errorf("%w: gross=%v < tare=%v", ErrNegativeNetWeight, gross, tare)
	}
	return gross - tare, nil
}

// ClassifyFill 装填率分级
func ClassifyFill(percent float64) string {
	switch {
	case percent < minFillPercent:
		return FillRejected
	case percent <= partialFillPercent:
		return FillPartial
	default:
		return FillFull
	}
}

// SetWeights 更新毛重/皮重并重新计算净重、装填率
func (c *Container) SetWeights(gross, tare float64) error {
	net, err := NetWeight(gross, tare)
	if err != nil {
		return err
	}
	c.GrossWeight = gross
	c.TareWeight = tare
	c.NetWeight = net
	c.recomputeFill()
	return nil
}

func (c *Container) recomputeFill() {
	if c.NominalCapacity <= 0 {
		c.FillPercentage = 0
		c.FillState = ""
		return
	}
	c.FillPercentage = c.NetWeight / c.NominalCapacity * 100
	c.FillState = ClassifyFill(c.FillPercentage)
}

// Validate 保存前校验
func (c *Container) Validate() error {
	if err := ValidateSerial(c.Serial); err != nil {
		return err
	}
	if c.GrossWeight > 0 || c.TareWeight > 0 {
		net, err := NetWeight(c.GrossWeight, c.TareWeight)
		if err != nil {
			return err
		}
		if net <= 0 {
			return fmt.Errorf("%w: net_weight 必须大于0 (serial=%s)", ErrInvalidWeight, c.Serial)
		}
		c.NetWeight = net
		c.recomputeFill()
		if c.NominalCapacity > 0 && c.FillState == FillRejected {
			return fmt.Errorf("%w: serial=%s fill=%.2f%%", ErrFillTooLow, c.Serial, c.FillPercentage)
		}
	}
	return nil
}

// InitialStatus 按生命周期模型返回初始状态
func InitialStatus(lifecycle string) string {
	if lifecycle == LifecycleSelection {
		return ContainerStatusAvailable
	}
	return ContainerStatusNew
}

// Apply 执行容器事件
func (c *Container) Apply(event ContainerEvent, now time.Time) error {
	if c.Status == ContainerStatusRetired {
		return fmt.Errorf("%w: container %s 已报废", ErrTerminalStatus, c.Serial)
	}
	if c.MaxReuseCount <= 0 {
		c.MaxReuseCount = defaultMaxReuse
	}
	if event == EventRetire {
		c.Status = ContainerStatusRetired
		return nil
	}
	if c.Lifecycle == LifecycleSelection {
		return c.applySelection(event)
	}

	targets, ok := reuseTransitions[event]
	if !ok {
		return fmt.Errorf("%w: 周转模型不支持事件 %s", ErrInvalidTransition, event)
	}
	to, ok := targets[c.Status]
	if !ok {
		return fmt.Errorf("%w: container %s 状态 %s 不能执行 %s", ErrInvalidTransition, c.Serial, c.Status, event)
	}
	switch event {
	case EventFill:
		c.UsageCount++
	case EventClean:
		c.LastCleanedAt = &now
		if c.UsageCount >= c.MaxReuseCount {
			to = ContainerStatusRetired
		}
	}
	c.Status = to
	return nil
}

func (c *Container) applySelection(event ContainerEvent) error {
	switch {
	case event == EventReserve && c.Status == ContainerStatusAvailable:
		c.Status = ContainerStatusReserved
	case event == EventRelease && c.Status == ContainerStatusReserved:
		c.Status = ContainerStatusAvailable
		c.BatchID = nil
	case event == EventLoad && (c.Status == ContainerStatusReserved || c.Status == ContainerStatusPartial):
		switch c.FillState {
		case FillFull:
			c.Status = ContainerStatusCompleted
		case FillPartial:
			c.Status = ContainerStatusPartial
		default:
			return fmt.Errorf("%w: serial=%s fill=%.2f%%", ErrFillTooLow, c.Serial, c.FillPercentage)
		}
	default:
		return fmt.Errorf("%w: container %s 状态 %s 不能执行 %s", ErrInvalidTransition, c.Serial, c.Status, event)
	}
	return nil
}
