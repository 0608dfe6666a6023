package service

import (
	"go.uber.org/zap"

	"crb/backend/config"
	"crb/backend/internal/repository"
)

// Service 所有 Service 的聚合入口
type Service struct {
	Calendar CalendarService
	Event    EventService
	Export   ExportService
}

// NewService 创建 Service 聚合
func NewService(
	cfg *config.Config,
	repo *repository.Repository,
	logger *zap.Logger,
) *Service {
	events := NewEventService(repo, &cfg.Scheduling, logger)
	return &Service{
		Calendar: NewCalendarService(repo, logger),
		Event:    events,
		Export:   NewExportService(repo, events, &cfg.Scheduling, logger),
	}
}
