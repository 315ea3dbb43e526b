package sequence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bitfantasy/amb-mes/internal/mes/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DBAllocator 基于数据库行锁（SELECT ... FOR UPDATE）的分配器
type DBAllocator struct {
	db *gorm.DB
}

func NewDBAllocator(db *gorm.DB) *DBAllocator {
	return &DBAllocator{db: db}
}

func (a *DBAllocator) Next(ctx context.Context, key string, floor int64) (int64, error) {
	var next int64
	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 首次使用时插入计数器行，冲突则忽略
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&entity.SequenceCounter{Key: key, Value: 0, UpdatedAt: time.Now()}).Error; err != nil {
			return err
		}

		var counter entity.SequenceCounter
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("key = ?", key).First(&counter).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("计数器 %s 不存在", key)
		}
		if err != nil {
			return err
		}

		next = counter.Value
		if next < floor {
			next = floor
		}
		next++
		return tx.Model(&entity.SequenceCounter{}).Where("key = ?", key).
			Updates(map[string]interface{}{"value": next, "updated_at": time.Now()}).Error
	})
	if err != nil {
		return 0, fmt.Errorf("分配流水号 %s 失败: %w", key, err)
	}
	return next, nil
}
