package entity

import "time"

// Item 物料主数据（目录）
type Item struct {
	ItemCode        string    `json:"item_code" gorm:"primaryKey;size:64"`
	ItemName        string    `json:"item_name" gorm:"size:140"`
	ItemGroup       string    `json:"item_group" gorm:"size:64"`
	StockUOM        string    `json:"stock_uom" gorm:"size:20;default:Kg"`
	NominalCapacity float64   `json:"nominal_capacity" gorm:"type:decimal(12,3);default:0"` // 容器类物料的额定容量
	DefaultRate     float64   `json:"default_rate" gorm:"type:decimal(14,4);default:0"`
	Disabled        bool      `json:"disabled" gorm:"default:false"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (Item) TableName() string {
	return "mes_items"
}

// BOM 物料清单（树的一层）
type BOM struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Name      string    `json:"name" gorm:"size:140;not null;uniqueIndex"`
	ItemCode  string    `json:"item_code" gorm:"size:64;not null;index"`
	BatchID   *string   `json:"batch_id" gorm:"type:varchar(36);index"`
	Level     int       `json:"level" gorm:"default:0"` // 0=主产品 1=子批次 2=组件组
	Category  string    `json:"category" gorm:"size:20"`
	Quantity  float64   `json:"quantity" gorm:"type:decimal(14,4);not null"`
	UOM       string    `json:"uom" gorm:"size:20"`
	TotalCost float64   `json:"total_cost" gorm:"type:decimal(16,4);default:0"`
	IsActive  bool      `json:"is_active" gorm:"default:true"`
	CreatedBy string    `json:"created_by" gorm:"size:64"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Items []BOMItem `json:"items,omitempty" gorm:"foreignKey:BOMID"`
}

func (BOM) TableName() string {
	return "mes_boms"
}

// BOMItem BOM组件行
type BOMItem struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	BOMID     string    `json:"bom_id" gorm:"type:varchar(36);not null;index"`
	ItemCode  string    `json:"item_code" gorm:"size:64;not null"`
	ItemName  string    `json:"item_name" gorm:"size:140"`
	Qty       float64   `json:"qty" gorm:"type:decimal(14,4);not null"`
	UOM       string    `json:"uom" gorm:"size:20"`
	Rate      float64   `json:"rate" gorm:"type:decimal(14,4);default:0"`
	Amount    float64   `json:"amount" gorm:"type:decimal(16,4);default:0"`
	ChildBOM  string    `json:"child_bom,omitempty" gorm:"size:140"` // 引用下级BOM名称
	SortOrder int       `json:"sort_order" gorm:"default:0"`
	CreatedAt time.Time `json:"created_at"`
}

func (BOMItem) TableName() string {
	return "mes_bom_items"
}

// SequenceCounter 流水号计数器（数据库分配器使用）
type SequenceCounter struct {
	Key       string    `json:"key" gorm:"primaryKey;size:190"`
	Value     int64     `json:"value" gorm:"not null;default:0"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (SequenceCounter) TableName() string {
	return "mes_sequence_counters"
}

// AuditLog 操作日志
type AuditLog struct {
	ID         string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	EntityType string    `json:"entity_type" gorm:"size:32;not null;index"`
	EntityID   string    `json:"entity_id" gorm:"type:varchar(36);not null;index"`
	Action     string    `json:"action" gorm:"size:32;not null"`
	FromStatus string    `json:"from_status" gorm:"size:20"`
	ToStatus   string    `json:"to_status" gorm:"size:20"`
	UserID     string    `json:"user_id" gorm:"size:64"`
	Company    string    `json:"company" gorm:"size:140"`
	RequestID  string    `json:"request_id" gorm:"size:64"`
	Comment    string    `json:"comment" gorm:"type:text"`
	CreatedAt  time.Time `json:"created_at"`
}

func (AuditLog) TableName() string {
	return "mes_audit_logs"
}
