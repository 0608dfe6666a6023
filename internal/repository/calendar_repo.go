package repository

import (
	"context"

	"gorm.io/gorm"

	"crb/backend/internal/model"
)

// CalendarRepository 日历数据访问接口
type CalendarRepository interface {
	Create(ctx context.Context, calendar *model.Calendar) error
	GetByID(ctx context.Context, id string) (*model.Calendar, error)
	ListByOwner(ctx context.Context, ownerID string) ([]model.Calendar, error)
}

type calendarRepo struct {
	db *gorm.DB
}

// NewCalendarRepo 创建 CalendarRepository 实例
func NewCalendarRepo(db *gorm.DB) CalendarRepository {
	return &calendarRepo{db: db}
}

func (r *calendarRepo) Create(ctx context.Context, calendar *model.Calendar) error {
	return r.db.WithContext(ctx).Create(calendar).Error
}

func (r *calendarRepo) GetByID(ctx context.Context, id string) (*model.Calendar, error) {
	var calendar model.Calendar
	err := r.db.WithContext(ctx).
		Where("calendar_id = ?", id).
		First(&calendar).Error
	if err != nil {
		return nil, err
	}
	return &calendar, nil
}

func (r *calendarRepo) ListByOwner(ctx context.Context, ownerID string) ([]model.Calendar, error) {
	var calendars []model.Calendar
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at ASC").
		Find(&calendars).Error
	return calendars, err
}
