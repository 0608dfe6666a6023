package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"crb/backend/config"
	"crb/backend/internal/dto"
	"crb/backend/internal/model"
	"crb/backend/internal/repository"
	"crb/backend/internal/scheduling"
	pkgerrors "crb/backend/pkg/errors"
)

// ── 事件模块业务错误 ──

var (
	ErrEventNotFound = errors.New("事件不存在")
)

// maxOccurrenceRangeDays 发生列表单次查询的最大跨度
const maxOccurrenceRangeDays = 366

// EventService 事件业务接口
//
// 每个写操作在一次请求内同步完成 检测 → 归类 → 变更：
//   - Create：TRUNCATE 自动截断后落库，REJECT_FULL 返回 OverlapConflict
//   - Update：任何冲突都中止，不落库
//
// 冲突检测基于读取时的快照，并发预约由 Event Store 的版本号兜底。
type EventService interface {
	Create(ctx context.Context, req *dto.CreateEventRequest, callerID string) (*dto.EventResultResponse, error)
	GetByID(ctx context.Context, id string, callerID string) (*dto.EventResponse, error)
	Update(ctx context.Context, id string, req *dto.UpdateEventRequest, callerID string) (*dto.EventResultResponse, error)
	// Delete 删除单条记录；记录不存在时 Deleted=false
	Delete(ctx context.Context, id string, callerID string) (*dto.DeleteEventResponse, error)
	DeleteOccurrence(ctx context.Context, id string, req *dto.DeleteOccurrenceRequest, callerID string) (*dto.MutationResponse, error)
	ListOccurrences(ctx context.Context, calendarID string, req *dto.OccurrenceListRequest, callerID string) ([]dto.OccurrenceResponse, error)
	Search(ctx context.Context, calendarID, keyword string, callerID string) ([]dto.EventResponse, error)
}

type eventService struct {
	repo     *repository.Repository
	detector *scheduling.Detector
	loc      *time.Location
	logger   *zap.Logger
}

// NewEventService 创建 EventService 实例
func NewEventService(repo *repository.Repository, cfg *config.SchedulingConfig, logger *zap.Logger) EventService {
	return &eventService{
		repo:     repo,
		detector: scheduling.NewDetector(cfg.OverlapHorizonDays),
		loc:      cfg.Location(),
		logger:   logger,
	}
}

// ────────────────────── Create ──────────────────────

func (s *eventService) Create(ctx context.Context, req *dto.CreateEventRequest, callerID string) (*dto.EventResultResponse, error) {
	if _, err := checkManage(ctx, s.repo, s.logger, req.CalendarID, callerID); err != nil {
		return nil, err
	}

	ev := &model.Event{
		CalendarID:  req.CalendarID,
		UserID:      callerID,
		Title:       req.Title,
		Description: req.Description,
		StartDate:   req.StartDate.In(s.loc),
		EndDate:     req.EndDate.In(s.loc),
		RepeatType:  req.RepeatType,
	}
	if req.StartRepeat != nil {
		sr := req.StartRepeat.In(s.loc)
		ev.StartRepeat = &sr
	}
	if req.EndRepeat != nil {
		er, err := s.parseDate("end_repeat", *req.EndRepeat)
		if err != nil {
			return nil, err
		}
		ev.EndRepeat = &er
	}
	ev.SetWeekdays(req.RepeatOn)
	if err := scheduling.Prepare(ev); err != nil {
		return nil, err
	}

	existing, err := s.calendarEvents(ctx, ev.CalendarID)
	if err != nil {
		return nil, err
	}
	res, err := s.resolve(ev, existing)
	if err != nil {
		return nil, err
	}
	if !res.Accepted() {
		s.logger.Info("预约被整体拒绝",
			zap.String("calendar_id", ev.CalendarID),
			zap.Time("conflict_date", *res.ConflictDate),
		)
		return nil, res.Err()
	}
	scheduling.ApplyTruncation(ev, res)

	ev.Stamp(callerID)
	if err := s.repo.Event.Create(ctx, ev); err != nil {
		s.logger.Error("创建事件失败", zap.Error(err))
		return nil, &scheduling.StoreError{Op: "create", Err: err}
	}
	localize(ev, s.loc)

	s.logger.Info("事件已创建",
		zap.String("event_id", ev.EventID),
		zap.String("policy", string(res.Policy)),
	)
	return toEventResult(ev, res, nil), nil
}

// ────────────────────── GetByID ──────────────────────

func (s *eventService) GetByID(ctx context.Context, id string, callerID string) (*dto.EventResponse, error) {
	ev, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := checkManage(ctx, s.repo, s.logger, ev.CalendarID, callerID); err != nil {
		return nil, err
	}
	resp := toEventResponse(ev)
	return &resp, nil
}

// ────────────────────── Update ──────────────────────

func (s *eventService) Update(ctx context.Context, id string, req *dto.UpdateEventRequest, callerID string) (*dto.EventResultResponse, error) {
	original, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := checkManage(ctx, s.repo, s.logger, original.CalendarID, callerID); err != nil {
		return nil, err
	}
	if req.Version != nil && *req.Version != original.Version {
		return nil, pkgerrors.ErrOptimisticLock
	}

	scope, err := scheduling.ParseScope(req.Scope)
	if err != nil {
		return nil, err
	}
	day, err := s.occurrenceDay(original, req.OccurrenceDate)
	if err != nil {
		return nil, err
	}
	proposed, err := s.buildProposed(original, day, req)
	if err != nil {
		return nil, err
	}
	if err := scheduling.Prepare(proposed); err != nil {
		return nil, err
	}

	plan, err := scheduling.PlanEdit(original, proposed, day, scope)
	if err != nil {
		return nil, err
	}

	// 自身血缘不参与冲突检测
	existing, err := s.calendarEvents(ctx, original.CalendarID)
	if err != nil {
		return nil, err
	}
	res, err := s.resolve(plan.Primary, scheduling.ExcludeLineage(existing, original.RootID()))
	if err != nil {
		return nil, err
	}
	if res.Policy != scheduling.PolicyAccept {
		return nil, res.Err()
	}

	if err := s.apply(ctx, plan, callerID, "update"); err != nil {
		return nil, err
	}

	var affected []dto.EventResponse
	for _, ev := range append(append([]*model.Event{}, plan.Updated...), plan.Created...) {
		if ev == plan.Primary {
			continue
		}
		affected = append(affected, toEventResponse(ev))
	}
	s.logger.Info("事件已更新",
		zap.String("event_id", id),
		zap.String("scope", string(scope)),
		zap.Int("created", len(plan.Created)),
	)
	return toEventResult(plan.Primary, res, affected), nil
}

// ────────────────────── Delete ──────────────────────

func (s *eventService) Delete(ctx context.Context, id string, callerID string) (*dto.DeleteEventResponse, error) {
	ev, err := s.load(ctx, id)
	if err != nil {
		if errors.Is(err, ErrEventNotFound) {
			return &dto.DeleteEventResponse{}, nil
		}
		return nil, err
	}
	if _, err := checkManage(ctx, s.repo, s.logger, ev.CalendarID, callerID); err != nil {
		return nil, err
	}

	ok, err := s.repo.Event.Delete(ctx, id, callerID)
	if err != nil {
		s.logger.Error("删除事件失败", zap.String("event_id", id), zap.Error(err))
		return nil, &scheduling.StoreError{Op: "delete", Err: err}
	}
	if !ok {
		return &dto.DeleteEventResponse{}, nil
	}
	return &dto.DeleteEventResponse{Deleted: true, CalendarID: ev.CalendarID}, nil
}

func (s *eventService) DeleteOccurrence(ctx context.Context, id string, req *dto.DeleteOccurrenceRequest, callerID string) (*dto.MutationResponse, error) {
	original, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := checkManage(ctx, s.repo, s.logger, original.CalendarID, callerID); err != nil {
		return nil, err
	}

	scope, err := scheduling.ParseScope(req.Scope)
	if err != nil {
		return nil, err
	}
	day, err := s.parseDate("occurrence_date", req.OccurrenceDate)
	if err != nil {
		return nil, err
	}
	plan, err := scheduling.PlanDelete(original, day, scope)
	if err != nil {
		return nil, err
	}
	if err := s.apply(ctx, plan, callerID, "delete_occurrence"); err != nil {
		return nil, err
	}

	resp := &dto.MutationResponse{
		Updated: make([]dto.EventResponse, 0, len(plan.Updated)),
		Created: make([]dto.EventResponse, 0, len(plan.Created)),
		Deleted: append([]string{}, plan.Deleted...),
	}
	for _, ev := range plan.Updated {
		resp.Updated = append(resp.Updated, toEventResponse(ev))
	}
	for _, ev := range plan.Created {
		resp.Created = append(resp.Created, toEventResponse(ev))
	}
	return resp, nil
}

// ────────────────────── Query ──────────────────────

func (s *eventService) ListOccurrences(ctx context.Context, calendarID string, req *dto.OccurrenceListRequest, callerID string) ([]dto.OccurrenceResponse, error) {
	if _, err := checkManage(ctx, s.repo, s.logger, calendarID, callerID); err != nil {
		return nil, err
	}
	from, err := s.parseDate("from", req.From)
	if err != nil {
		return nil, err
	}
	to, err := s.parseDate("to", req.To)
	if err != nil {
		return nil, err
	}
	if to.Before(from) {
		return nil, &scheduling.ValidationError{Field: "to", Reason: "不能早于 from"}
	}
	if to.Sub(from) > maxOccurrenceRangeDays*24*time.Hour {
		return nil, &scheduling.ValidationError{Field: "to", Reason: fmt.Sprintf("查询跨度不能超过 %d 天", maxOccurrenceRangeDays)}
	}

	events, err := s.calendarEvents(ctx, calendarID)
	if err != nil {
		return nil, err
	}
	return expandOccurrences(events, from, to, s.logger), nil
}

func (s *eventService) Search(ctx context.Context, calendarID, keyword string, callerID string) ([]dto.EventResponse, error) {
	if _, err := checkManage(ctx, s.repo, s.logger, calendarID, callerID); err != nil {
		return nil, err
	}
	events, err := s.repo.Event.Search(ctx, calendarID, keyword)
	if err != nil {
		s.logger.Error("搜索事件失败", zap.String("calendar_id", calendarID), zap.Error(err))
		return nil, &scheduling.StoreError{Op: "search", Err: err}
	}
	result := make([]dto.EventResponse, 0, len(events))
	for i := range events {
		localize(&events[i], s.loc)
		result = append(result, toEventResponse(&events[i]))
	}
	return result, nil
}

// ────────────────────── 内部辅助 ──────────────────────

func (s *eventService) load(ctx context.Context, id string) (*model.Event, error) {
	ev, err := s.repo.Event.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEventNotFound
		}
		s.logger.Error("查询事件失败", zap.String("event_id", id), zap.Error(err))
		return nil, &scheduling.StoreError{Op: "get", Err: err}
	}
	localize(ev, s.loc)
	return ev, nil
}

// calendarEvents Event Store 的 events_for_calendar
func (s *eventService) calendarEvents(ctx context.Context, calendarID string) ([]model.Event, error) {
	events, err := s.repo.Event.ListByCalendar(ctx, calendarID)
	if err != nil {
		s.logger.Error("查询日历事件失败", zap.String("calendar_id", calendarID), zap.Error(err))
		return nil, &scheduling.StoreError{Op: "list", Err: err}
	}
	for i := range events {
		localize(&events[i], s.loc)
	}
	return events, nil
}

func (s *eventService) resolve(candidate *model.Event, existing []model.Event) (scheduling.Resolution, error) {
	d, found, err := s.detector.FindOverlap(candidate, existing)
	if err != nil {
		return scheduling.Resolution{}, err
	}
	if !found && candidate.IsRecurring() && beyondHorizon(candidate, s.detector.HorizonDays()) {
		s.logger.Debug("系列超出扫描窗口的部分不做冲突检测",
			zap.String("event_id", candidate.EventID),
			zap.Int("horizon_days", s.detector.HorizonDays()),
		)
	}
	return scheduling.Resolve(candidate, d, found), nil
}

// beyondHorizon 系列无结束日期，或 end_repeat 晚于扫描窗口
func beyondHorizon(ev *model.Event, horizonDays int) bool {
	if ev.EndRepeat == nil {
		return true
	}
	start := ev.StartDate
	if ev.StartRepeat != nil {
		start = *ev.StartRepeat
	}
	return ev.EndRepeat.After(start.AddDate(0, 0, horizonDays))
}

func (s *eventService) apply(ctx context.Context, plan *scheduling.Mutation, callerID, op string) error {
	if plan.Empty() {
		return nil
	}
	if err := s.repo.Event.ApplyMutation(ctx, plan, callerID); err != nil {
		if errors.Is(err, pkgerrors.ErrOptimisticLock) {
			return err
		}
		s.logger.Error("提交事件变更失败", zap.String("op", op), zap.Error(err))
		return &scheduling.StoreError{Op: op, Err: err}
	}
	for _, ev := range plan.Updated {
		localize(ev, s.loc)
	}
	for _, ev := range plan.Created {
		localize(ev, s.loc)
	}
	return nil
}

// occurrenceDay 被编辑的发生日期；未指定时取首次发生
func (s *eventService) occurrenceDay(original *model.Event, raw *string) (time.Time, error) {
	if raw != nil && *raw != "" {
		return s.parseDate("occurrence_date", *raw)
	}
	if !original.IsRecurring() {
		return scheduling.DateOf(original.StartDate, s.loc), nil
	}
	series, err := scheduling.NewSeries(original)
	if err != nil {
		return time.Time{}, err
	}
	first, ok := series.First()
	if !ok {
		return time.Time{}, &scheduling.ValidationError{Field: "occurrence_date", Reason: "该系列没有任何发生"}
	}
	return first, nil
}

// buildProposed 在原记录（重复事件取被编辑那次的时段）上叠加请求中的改动
func (s *eventService) buildProposed(original *model.Event, day time.Time, req *dto.UpdateEventRequest) (*model.Event, error) {
	p := original.Clone()
	if original.IsRecurring() {
		slot, err := scheduling.OccurrenceSlot(original, day)
		if err != nil {
			return nil, err
		}
		p.StartDate, p.EndDate = slot.Start, slot.End
	}

	if req.Title != nil {
		p.Title = *req.Title
	}
	if req.Description != nil {
		p.Description = *req.Description
	}
	if req.StartDate != nil {
		p.StartDate = req.StartDate.In(s.loc)
		if req.EndDate == nil {
			p.EndDate = p.StartDate.Add(original.Duration())
		}
	}
	if req.EndDate != nil {
		p.EndDate = req.EndDate.In(s.loc)
	}
	if req.RepeatType != nil {
		kind := *req.RepeatType
		p.RepeatType = &kind
	}
	if req.RepeatOn != nil {
		p.SetWeekdays(req.RepeatOn)
	}
	switch {
	case req.ClearEndRepeat:
		p.EndRepeat = nil
	case req.EndRepeat != nil:
		er, err := s.parseDate("end_repeat", *req.EndRepeat)
		if err != nil {
			return nil, err
		}
		p.EndRepeat = &er
	}
	if p.RepeatKind() != model.RepeatNone {
		sr := p.StartDate
		p.StartRepeat = &sr
	}
	return p, nil
}

func (s *eventService) parseDate(field, raw string) (time.Time, error) {
	d, err := time.ParseInLocation(scheduling.DateLayout, raw, s.loc)
	if err != nil {
		return time.Time{}, &scheduling.ValidationError{Field: field, Reason: "日期格式应为 YYYY-MM-DD"}
	}
	return d, nil
}

// localize 将读出的时间统一到业务时区；end_repeat 按字面日期解释
func localize(ev *model.Event, loc *time.Location) {
	ev.StartDate = ev.StartDate.In(loc)
	ev.EndDate = ev.EndDate.In(loc)
	if ev.StartRepeat != nil {
		sr := ev.StartRepeat.In(loc)
		ev.StartRepeat = &sr
	}
	if ev.EndRepeat != nil {
		er := scheduling.CivilDate(*ev.EndRepeat, loc)
		ev.EndRepeat = &er
	}
	if ev.ExceptionTime != nil {
		et := ev.ExceptionTime.In(loc)
		ev.ExceptionTime = &et
	}
}

// expandOccurrences 展开闭区间内全部发生，按开始时间排序
func expandOccurrences(events []model.Event, from, to time.Time, logger *zap.Logger) []dto.OccurrenceResponse {
	result := make([]dto.OccurrenceResponse, 0)
	for i := range events {
		ev := &events[i]
		series, err := scheduling.NewSeries(ev)
		if err != nil {
			logger.Warn("事件重复规则无效，跳过展开", zap.String("event_id", ev.EventID), zap.Error(err))
			continue
		}
		for _, slot := range series.Slots(from, to) {
			result = append(result, dto.OccurrenceResponse{
				EventID:   ev.EventID,
				ParentID:  ev.ParentID,
				Title:     ev.Title,
				Date:      slot.Start.Format(scheduling.DateLayout),
				Start:     slot.Start.Format(time.RFC3339),
				End:       slot.End.Format(time.RFC3339),
				Recurring: series.Recurring(),
			})
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Start < result[j].Start
	})
	return result
}

func toEventResponse(ev *model.Event) dto.EventResponse {
	resp := dto.EventResponse{
		ID:            ev.EventID,
		CalendarID:    ev.CalendarID,
		UserID:        ev.UserID,
		Title:         ev.Title,
		Description:   ev.Description,
		StartDate:     ev.StartDate.Format(time.RFC3339),
		EndDate:       ev.EndDate.Format(time.RFC3339),
		RepeatType:    ev.RepeatKind(),
		RepeatOn:      ev.Weekdays(),
		ExceptionType: ev.ExceptionType,
		ParentID:      ev.ParentID,
		Version:       ev.Version,
		CreatedAt:     ev.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     ev.UpdatedAt.Format(time.RFC3339),
	}
	if ev.StartRepeat != nil {
		v := ev.StartRepeat.Format(scheduling.DateLayout)
		resp.StartRepeat = &v
	}
	if ev.EndRepeat != nil {
		v := ev.EndRepeat.Format(scheduling.DateLayout)
		resp.EndRepeat = &v
	}
	if ev.ExceptionTime != nil {
		v := ev.ExceptionTime.Format(time.RFC3339)
		resp.ExceptionTime = &v
	}
	if len(resp.RepeatOn) == 0 {
		resp.RepeatOn = nil
	}
	return resp
}

func toEventResult(ev *model.Event, res scheduling.Resolution, affected []dto.EventResponse) *dto.EventResultResponse {
	out := &dto.EventResultResponse{
		Event:    toEventResponse(ev),
		Policy:   string(res.Policy),
		Affected: affected,
	}
	if res.ConflictDate != nil {
		v := res.ConflictDate.Format(scheduling.DateLayout)
		out.ConflictDate = &v
	}
	return out
}
