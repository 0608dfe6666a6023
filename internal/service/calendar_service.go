package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"crb/backend/internal/dto"
	"crb/backend/internal/model"
	"crb/backend/internal/repository"
)

// ── 日历模块业务错误 ──

var (
	ErrCalendarNotFound  = errors.New("日历不存在")
	ErrCalendarForbidden = errors.New("无权操作该日历")
)

// CalendarService 日历业务接口
type CalendarService interface {
	Create(ctx context.Context, req *dto.CreateCalendarRequest, callerID string) (*dto.CalendarResponse, error)
	GetByID(ctx context.Context, id string, callerID string) (*dto.CalendarResponse, error)
	ListMine(ctx context.Context, callerID string) ([]dto.CalendarResponse, error)
	// CheckManage 调用方是否可以编辑该日历
	CheckManage(ctx context.Context, calendarID, callerID string) (*model.Calendar, error)
}

type calendarService struct {
	repo   *repository.Repository
	logger *zap.Logger
}

// NewCalendarService 创建 CalendarService 实例
func NewCalendarService(repo *repository.Repository, logger *zap.Logger) CalendarService {
	return &calendarService{repo: repo, logger: logger}
}

// ────────────────────── Create ──────────────────────

func (s *calendarService) Create(ctx context.Context, req *dto.CreateCalendarRequest, callerID string) (*dto.CalendarResponse, error) {
	cal := &model.Calendar{
		OwnerID:     callerID,
		Name:        req.Name,
		Color:       req.Color,
		Description: req.Description,
	}
	if cal.Color == "" {
		cal.Color = "#3a87ad"
	}
	cal.Stamp(callerID)

	if err := s.repo.Calendar.Create(ctx, cal); err != nil {
		s.logger.Error("创建日历失败", zap.Error(err))
		return nil, err
	}
	return toCalendarResponse(cal), nil
}

// ────────────────────── Query ──────────────────────

func (s *calendarService) GetByID(ctx context.Context, id string, callerID string) (*dto.CalendarResponse, error) {
	cal, err := s.CheckManage(ctx, id, callerID)
	if err != nil {
		return nil, err
	}
	return toCalendarResponse(cal), nil
}

func (s *calendarService) ListMine(ctx context.Context, callerID string) ([]dto.CalendarResponse, error) {
	calendars, err := s.repo.Calendar.ListByOwner(ctx, callerID)
	if err != nil {
		s.logger.Error("列出日历失败", zap.Error(err))
		return nil, err
	}
	result := make([]dto.CalendarResponse, 0, len(calendars))
	for i := range calendars {
		result = append(result, *toCalendarResponse(&calendars[i]))
	}
	return result, nil
}

func (s *calendarService) CheckManage(ctx context.Context, calendarID, callerID string) (*model.Calendar, error) {
	return checkManage(ctx, s.repo, s.logger, calendarID, callerID)
}

// checkManage 授权协作方：只有日历所有者可以读写其中的事件
func checkManage(ctx context.Context, repo *repository.Repository, logger *zap.Logger, calendarID, callerID string) (*model.Calendar, error) {
	cal, err := repo.Calendar.GetByID(ctx, calendarID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCalendarNotFound
		}
		logger.Error("查询日历失败", zap.String("calendar_id", calendarID), zap.Error(err))
		return nil, err
	}
	if cal.OwnerID != callerID {
		return nil, ErrCalendarForbidden
	}
	return cal, nil
}

func toCalendarResponse(cal *model.Calendar) *dto.CalendarResponse {
	return &dto.CalendarResponse{
		ID:          cal.CalendarID,
		OwnerID:     cal.OwnerID,
		Name:        cal.Name,
		Color:       cal.Color,
		Description: cal.Description,
		CreatedAt:   cal.CreatedAt.Format(time.RFC3339),
	}
}
