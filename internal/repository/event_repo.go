package repository

import (
	"context"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"crb/backend/internal/model"
	"crb/backend/internal/scheduling"
	pkgerrors "crb/backend/pkg/errors"
)

// EventRepository 事件数据访问接口（Event Store）
//
// 并发预约的最终裁决依赖 version 列上的比较并交换：
// 冲突检测基于读取时的快照，提交时若记录已被改动返回 ErrOptimisticLock，由调用方重新检测。
type EventRepository interface {
	Create(ctx context.Context, event *model.Event) error
	GetByID(ctx context.Context, id string) (*model.Event, error)
	ListByCalendar(ctx context.Context, calendarID string) ([]model.Event, error)
	ListByRoot(ctx context.Context, rootID string) ([]model.Event, error)
	Search(ctx context.Context, calendarID, keyword string) ([]model.Event, error)
	Update(ctx context.Context, event *model.Event) error
	Delete(ctx context.Context, id string, deletedBy string) (bool, error)
	// ApplyMutation 在一个事务内提交系列拆分方案：先更新、再新建、最后删除
	ApplyMutation(ctx context.Context, m *scheduling.Mutation, operatorID string) error
}

type eventRepo struct {
	db *gorm.DB
}

// NewEventRepo 创建 EventRepository 实例
func NewEventRepo(db *gorm.DB) EventRepository {
	return &eventRepo{db: db}
}

// Create 插入事件及其 RepeatOn
func (r *eventRepo) Create(ctx context.Context, event *model.Event) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *eventRepo) GetByID(ctx context.Context, id string) (*model.Event, error) {
	var event model.Event
	err := r.db.WithContext(ctx).
		Preload("RepeatOns", orderByWeekday).
		Where("event_id = ?", id).
		First(&event).Error
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// ListByCalendar 日历下全部未删除事件
func (r *eventRepo) ListByCalendar(ctx context.Context, calendarID string) ([]model.Event, error) {
	var events []model.Event
	err := r.db.WithContext(ctx).
		Preload("RepeatOns", orderByWeekday).
		Where("calendar_id = ?", calendarID).
		Order("start_date ASC").
		Find(&events).Error
	return events, err
}

// ListByRoot 系列根及其全部分支
func (r *eventRepo) ListByRoot(ctx context.Context, rootID string) ([]model.Event, error) {
	var events []model.Event
	err := r.db.WithContext(ctx).
		Preload("RepeatOns", orderByWeekday).
		Where("event_id = ? OR parent_id = ?", rootID, rootID).
		Order("start_date ASC").
		Find(&events).Error
	return events, err
}

// Search 按标题/描述模糊查询
func (r *eventRepo) Search(ctx context.Context, calendarID, keyword string) ([]model.Event, error) {
	var events []model.Event
	query := r.db.WithContext(ctx).
		Preload("RepeatOns", orderByWeekday).
		Where("calendar_id = ?", calendarID)
	if kw := strings.TrimSpace(keyword); kw != "" {
		like := "%" + kw + "%"
		query = query.Where("title ILIKE ? OR description ILIKE ?", like, like)
	}
	err := query.Order("start_date ASC").Find(&events).Error
	return events, err
}

// Update 乐观锁更新，并整体替换 RepeatOn
func (r *eventRepo) Update(ctx context.Context, event *model.Event) error {
	oldVersion := event.Version
	result := r.db.WithContext(ctx).
		Model(event).
		Omit(clause.Associations).
		Where("event_id = ? AND version = ?", event.EventID, oldVersion).
		Updates(map[string]interface{}{
			"title":          event.Title,
			"description":    event.Description,
			"start_date":     event.StartDate,
			"end_date":       event.EndDate,
			"repeat_type":    event.RepeatType,
			"start_repeat":   event.StartRepeat,
			"end_repeat":     event.EndRepeatDate(),
			"exception_time": event.ExceptionTime,
			"exception_type": event.ExceptionType,
			"parent_id":      event.ParentID,
			"updated_by":     event.UpdatedBy,
			"version":        oldVersion + 1,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrOptimisticLock
	}
	event.Version = oldVersion + 1

	// 硬删除：RepeatOn 只是星期集合，无需保留历史
	if err := r.db.WithContext(ctx).
		Where("event_id = ?", event.EventID).
		Delete(&model.RepeatOn{}).Error; err != nil {
		return err
	}
	if len(event.RepeatOns) == 0 {
		return nil
	}
	for i := range event.RepeatOns {
		event.RepeatOns[i].RepeatOnID = ""
		event.RepeatOns[i].EventID = event.EventID
	}
	return r.db.WithContext(ctx).Create(&event.RepeatOns).Error
}

// Delete 软删除；记录不存在或已删除时返回 false
// 被删除的系列根仍保留在表中，分支的 parent_id 依旧有效
func (r *eventRepo) Delete(ctx context.Context, id string, deletedBy string) (bool, error) {
	updates := map[string]interface{}{
		"deleted_at": gorm.Expr("NOW()"),
	}
	if deletedBy != "" {
		updates["deleted_by"] = deletedBy
	}
	result := r.db.WithContext(ctx).
		Model(&model.Event{}).
		Where("event_id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *eventRepo) ApplyMutation(ctx context.Context, m *scheduling.Mutation, operatorID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txRepo := &eventRepo{db: tx}
		for _, ev := range m.Updated {
			ev.Stamp(operatorID)
			if err := txRepo.Update(ctx, ev); err != nil {
				return err
			}
		}
		for _, ev := range m.Created {
			ev.Stamp(operatorID)
			if err := txRepo.Create(ctx, ev); err != nil {
				return err
			}
		}
		for _, id := range m.Deleted {
			ok, err := txRepo.Delete(ctx, id, operatorID)
			if err != nil {
				return err
			}
			if !ok {
				return pkgerrors.ErrOptimisticLock
			}
		}
		return nil
	})
}

func orderByWeekday(db *gorm.DB) *gorm.DB {
	return db.Order("day_of_week ASC")
}
