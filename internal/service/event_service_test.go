package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"crb/backend/config"
	"crb/backend/internal/dto"
	"crb/backend/internal/model"
	"crb/backend/internal/scheduling"
	pkgerrors "crb/backend/pkg/errors"
)

// ── 测试辅助 ──
// 2024-01-01 是周一

const testOwner = "user-001"

func testSchedulingConfig() *config.SchedulingConfig {
	return &config.SchedulingConfig{OverlapHorizonDays: 365, DefaultLocation: "UTC"}
}

func setupTestEventService(t *testing.T) (EventService, *mockEventRepo, string) {
	t.Helper()
	repo, calRepo, evRepo := newMockRepository()
	cal := &model.Calendar{OwnerID: testOwner, Name: "工作"}
	if err := calRepo.Create(context.Background(), cal); err != nil {
		t.Fatalf("创建日历失败: %v", err)
	}
	svc := NewEventService(repo, testSchedulingConfig(), zap.NewNop())
	return svc, evRepo, cal.CalendarID
}

func ts(m time.Month, d, h, min int) time.Time {
	return time.Date(2024, m, d, h, min, 0, 0, time.UTC)
}

func strPtr(s string) *string { return &s }

func weeklyReq(calID, title string, start, end time.Time, days ...int) *dto.CreateEventRequest {
	return &dto.CreateEventRequest{
		CalendarID: calID,
		Title:      title,
		StartDate:  start,
		EndDate:    end,
		RepeatType: strPtr(model.RepeatWeekly),
		RepeatOn:   days,
	}
}

func mustCreate(t *testing.T, svc EventService, req *dto.CreateEventRequest) *dto.EventResultResponse {
	t.Helper()
	res, err := svc.Create(context.Background(), req, testOwner)
	if err != nil {
		t.Fatalf("创建事件 %s 失败: %v", req.Title, err)
	}
	return res
}

// ── Create 测试 ──

func TestEventService_Create_RejectFullOnFirstOccurrence(t *testing.T) {
	svc, evRepo, calID := setupTestEventService(t)
	mustCreate(t, svc, weeklyReq(calID, "A", ts(1, 1, 9, 0), ts(1, 1, 10, 0), 1, 3))

	_, err := svc.Create(context.Background(), weeklyReq(calID, "B", ts(1, 1, 9, 30), ts(1, 1, 10, 0), 1, 3), testOwner)

	var conflict *scheduling.OverlapConflict
	if !errors.As(err, &conflict) {
		t.Fatalf("期望 OverlapConflict，实际: %v", err)
	}
	if conflict.Policy != scheduling.PolicyRejectFull {
		t.Errorf("期望 reject_full，实际=%s", conflict.Policy)
	}
	if got := conflict.ConflictDate.Format(scheduling.DateLayout); got != "2024-01-01" {
		t.Errorf("期望冲突日期=2024-01-01，实际=%s", got)
	}
	if evRepo.live() != 1 {
		t.Errorf("被拒绝的事件不应落库，实际记录数=%d", evRepo.live())
	}
}

func TestEventService_Create_TruncatesMidSeries(t *testing.T) {
	svc, evRepo, calID := setupTestEventService(t)

	a := weeklyReq(calID, "A", ts(1, 29, 9, 0), ts(1, 29, 10, 0), 1)
	a.EndRepeat = strPtr("2024-03-04")
	mustCreate(t, svc, a)

	res := mustCreate(t, svc, weeklyReq(calID, "B", ts(1, 1, 9, 30), ts(1, 1, 10, 0), 1))

	if res.Policy != string(scheduling.PolicyTruncate) {
		t.Fatalf("期望 truncate，实际=%s", res.Policy)
	}
	if res.ConflictDate == nil || *res.ConflictDate != "2024-01-29" {
		t.Errorf("期望 conflict_date=2024-01-29，实际=%v", res.ConflictDate)
	}
	if res.Event.EndRepeat == nil || *res.Event.EndRepeat != "2024-01-28" {
		t.Errorf("期望 end_repeat=2024-01-28，实际=%v", res.Event.EndRepeat)
	}

	stored, _ := evRepo.GetByID(context.Background(), res.Event.ID)
	if stored.EndRepeat == nil || stored.EndRepeat.Format(scheduling.DateLayout) != "2024-01-28" {
		t.Errorf("落库的 end_repeat 应为截断后的值，实际=%v", stored.EndRepeat)
	}
}

func TestEventService_Create_TouchingEndpointsAccepted(t *testing.T) {
	svc, evRepo, calID := setupTestEventService(t)

	mustCreate(t, svc, &dto.CreateEventRequest{CalendarID: calID, Title: "A", StartDate: ts(1, 10, 9, 0), EndDate: ts(1, 10, 10, 0)})
	res := mustCreate(t, svc, &dto.CreateEventRequest{CalendarID: calID, Title: "B", StartDate: ts(1, 10, 10, 0), EndDate: ts(1, 10, 11, 0)})

	if res.Policy != string(scheduling.PolicyAccept) {
		t.Errorf("期望 accept，实际=%s", res.Policy)
	}
	if res.ConflictDate != nil {
		t.Errorf("accept 不应携带 conflict_date，实际=%s", *res.ConflictDate)
	}
	if evRepo.live() != 2 {
		t.Errorf("期望 2 条记录，实际=%d", evRepo.live())
	}
}

func TestEventService_Create_ValidationError(t *testing.T) {
	svc, _, calID := setupTestEventService(t)

	tests := []struct {
		name  string
		req   *dto.CreateEventRequest
		field string
	}{
		{
			name:  "结束早于开始",
			req:   &dto.CreateEventRequest{CalendarID: calID, Title: "x", StartDate: ts(1, 1, 10, 0), EndDate: ts(1, 1, 9, 0)},
			field: "end_date",
		},
		{
			name: "end_repeat 早于开始",
			req: func() *dto.CreateEventRequest {
				r := weeklyReq(calID, "x", ts(2, 1, 9, 0), ts(2, 1, 10, 0), 4)
				r.EndRepeat = strPtr("2024-01-01")
				return r
			}(),
			field: "end_repeat",
		},
		{
			name: "end_repeat 格式错误",
			req: func() *dto.CreateEventRequest {
				r := weeklyReq(calID, "x", ts(2, 1, 9, 0), ts(2, 1, 10, 0), 4)
				r.EndRepeat = strPtr("2024/03/01")
				return r
			}(),
			field: "end_repeat",
		},
		{
			name:  "星期越界",
			req:   weeklyReq(calID, "x", ts(1, 1, 9, 0), ts(1, 1, 10, 0), 8),
			field: "repeat_on",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tt.req, testOwner)
			var verr *scheduling.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("期望 ValidationError，实际: %v", err)
			}
			if verr.Field != tt.field {
				t.Errorf("期望字段=%s，实际=%s", tt.field, verr.Field)
			}
		})
	}
}

func TestEventService_Create_Forbidden(t *testing.T) {
	svc, _, calID := setupTestEventService(t)

	_, err := svc.Create(context.Background(), weeklyReq(calID, "A", ts(1, 1, 9, 0), ts(1, 1, 10, 0), 1), "user-999")
	if !errors.Is(err, ErrCalendarForbidden) {
		t.Errorf("期望 ErrCalendarForbidden，实际: %v", err)
	}

	_, err = svc.Create(context.Background(), weeklyReq("cal-404", "A", ts(1, 1, 9, 0), ts(1, 1, 10, 0), 1), testOwner)
	if !errors.Is(err, ErrCalendarNotFound) {
		t.Errorf("期望 ErrCalendarNotFound，实际: %v", err)
	}
}

func TestEventService_Create_StoreErrorWrapped(t *testing.T) {
	svc, evRepo, calID := setupTestEventService(t)
	evRepo.listErr = errMockStore

	_, err := svc.Create(context.Background(), weeklyReq(calID, "A", ts(1, 1, 9, 0), ts(1, 1, 10, 0), 1), testOwner)
	var serr *scheduling.StoreError
	if !errors.As(err, &serr) {
		t.Fatalf("期望 StoreError，实际: %v", err)
	}
	if !errors.Is(err, errMockStore) {
		t.Error("StoreError 应保留底层错误")
	}
}

// ── Update 测试 ──

// createTenMondays 2024-01-01 起 10 个周一 09:00-10:00
func createTenMondays(t *testing.T, svc EventService, calID string) *dto.EventResultResponse {
	t.Helper()
	req := weeklyReq(calID, "周会", ts(1, 1, 9, 0), ts(1, 1, 10, 0), 1)
	req.EndRepeat = strPtr("2024-03-04")
	return mustCreate(t, svc, req)
}

func TestEventService_Update_FollowingSplitsSeries(t *testing.T) {
	svc, evRepo, calID := setupTestEventService(t)
	root := createTenMondays(t, svc, calID)

	start, end := ts(2, 5, 10, 0), ts(2, 5, 11, 0)
	res, err := svc.Update(context.Background(), root.Event.ID, &dto.UpdateEventRequest{
		StartDate:      &start,
		EndDate:        &end,
		OccurrenceDate: strPtr("2024-02-05"),
	}, testOwner)
	if err != nil {
		t.Fatalf("Update 应成功: %v", err)
	}

	branch := res.Event
	if branch.ParentID == nil || *branch.ParentID != root.Event.ID {
		t.Errorf("分支应指向系列根，实际ParentID=%v", branch.ParentID)
	}
	if branch.ExceptionTime == nil || *branch.ExceptionTime != ts(2, 5, 9, 0).Format(time.RFC3339) {
		t.Errorf("exception_time 应为原第 6 次开始时间，实际=%v", branch.ExceptionTime)
	}
	if branch.ExceptionType == nil || *branch.ExceptionType != model.ExceptionEditAllFollow {
		t.Errorf("分支应为 edit_all_follow，实际=%v", branch.ExceptionType)
	}
	if len(res.Affected) != 1 || res.Affected[0].EndRepeat == nil || *res.Affected[0].EndRepeat != "2024-02-04" {
		t.Fatalf("原系列应截断到 2024-02-04，实际=%+v", res.Affected)
	}
	if evRepo.live() != 2 {
		t.Errorf("期望 2 条记录，实际=%d", evRepo.live())
	}

	occ, err := svc.ListOccurrences(context.Background(), calID, &dto.OccurrenceListRequest{From: "2024-01-01", To: "2024-03-31"}, testOwner)
	if err != nil {
		t.Fatalf("ListOccurrences 失败: %v", err)
	}
	if len(occ) != 10 {
		t.Fatalf("拆分前后总发生次数应为 10，实际=%d", len(occ))
	}
	if occ[4].Date != "2024-01-29" || occ[4].EventID != root.Event.ID {
		t.Errorf("第 5 次应由原系列承载，实际=%+v", occ[4])
	}
	if occ[5].Date != "2024-02-05" || occ[5].EventID != branch.ID || occ[5].Start != start.Format(time.RFC3339) {
		t.Errorf("第 6 次应由分支承载且改到 10:00，实际=%+v", occ[5])
	}
}

func TestEventService_Update_OnlyCreatesException(t *testing.T) {
	svc, evRepo, calID := setupTestEventService(t)
	root := createTenMondays(t, svc, calID)

	res, err := svc.Update(context.Background(), root.Event.ID, &dto.UpdateEventRequest{
		Title:          strPtr("改到下午"),
		StartDate:      func() *time.Time { v := ts(2, 5, 14, 0); return &v }(),
		OccurrenceDate: strPtr("2024-02-05"),
		Scope:          "only",
	}, testOwner)
	if err != nil {
		t.Fatalf("Update 应成功: %v", err)
	}

	if res.Event.ExceptionType == nil || *res.Event.ExceptionType != model.ExceptionEditOnly {
		t.Errorf("单次编辑应为 edit_only，实际=%v", res.Event.ExceptionType)
	}
	if res.Event.RepeatType != model.RepeatNone {
		t.Errorf("单次例外不应重复，实际=%s", res.Event.RepeatType)
	}
	if res.Event.EndDate != ts(2, 5, 15, 0).Format(time.RFC3339) {
		t.Errorf("只改开始时间时应保留原时长，实际 end=%s", res.Event.EndDate)
	}
	// 截断的原系列 + 例外 + 续接
	if evRepo.live() != 3 {
		t.Errorf("期望 3 条记录，实际=%d", evRepo.live())
	}

	occ, _ := svc.ListOccurrences(context.Background(), calID, &dto.OccurrenceListRequest{From: "2024-01-01", To: "2024-03-31"}, testOwner)
	if len(occ) != 10 {
		t.Fatalf("总发生次数应为 10，实际=%d", len(occ))
	}
	if occ[5].Title != "改到下午" || occ[6].Title != "周会" {
		t.Errorf("只有第 6 次被修改，实际=%s / %s", occ[5].Title, occ[6].Title)
	}
}

func TestEventService_Update_ConflictAborts(t *testing.T) {
	svc, evRepo, calID := setupTestEventService(t)
	root := createTenMondays(t, svc, calID)
	mustCreate(t, svc, &dto.CreateEventRequest{CalendarID: calID, Title: "评审", StartDate: ts(2, 19, 10, 0), EndDate: ts(2, 19, 11, 0)})

	start, end := ts(2, 5, 10, 0), ts(2, 5, 11, 0)
	_, err := svc.Update(context.Background(), root.Event.ID, &dto.UpdateEventRequest{
		StartDate:      &start,
		EndDate:        &end,
		OccurrenceDate: strPtr("2024-02-05"),
	}, testOwner)

	var conflict *scheduling.OverlapConflict
	if !errors.As(err, &conflict) {
		t.Fatalf("期望 OverlapConflict，实际: %v", err)
	}
	if conflict.Policy != scheduling.PolicyTruncate || conflict.ConflictDate.Format(scheduling.DateLayout) != "2024-02-19" {
		t.Errorf("期望 truncate@2024-02-19，实际=%s@%s", conflict.Policy, conflict.ConflictDate.Format(scheduling.DateLayout))
	}
	if evRepo.mutations != 0 || evRepo.live() != 2 {
		t.Error("冲突时不应提交任何变更")
	}
}

func TestEventService_Update_IgnoresOwnLineage(t *testing.T) {
	svc, _, calID := setupTestEventService(t)
	root := createTenMondays(t, svc, calID)

	res, err := svc.Update(context.Background(), root.Event.ID, &dto.UpdateEventRequest{Title: strPtr("周会（新）")}, testOwner)
	if err != nil {
		t.Fatalf("编辑首次发生不应与自身冲突: %v", err)
	}
	if res.Event.ID != root.Event.ID || res.Event.Title != "周会（新）" {
		t.Errorf("首次发生应原地更新，实际=%+v", res.Event)
	}
	if res.Event.Version != root.Event.Version+1 {
		t.Errorf("期望版本号+1，实际=%d", res.Event.Version)
	}
}

func TestEventService_Update_StaleVersion(t *testing.T) {
	svc, _, calID := setupTestEventService(t)
	root := createTenMondays(t, svc, calID)

	stale := root.Event.Version + 5
	_, err := svc.Update(context.Background(), root.Event.ID, &dto.UpdateEventRequest{Title: strPtr("x"), Version: &stale}, testOwner)
	if !errors.Is(err, pkgerrors.ErrOptimisticLock) {
		t.Errorf("期望 ErrOptimisticLock，实际: %v", err)
	}
}

func TestEventService_Update_NotAnOccurrence(t *testing.T) {
	svc, _, calID := setupTestEventService(t)
	root := createTenMondays(t, svc, calID)

	_, err := svc.Update(context.Background(), root.Event.ID, &dto.UpdateEventRequest{
		Title:          strPtr("x"),
		OccurrenceDate: strPtr("2024-02-06"),
	}, testOwner)
	var verr *scheduling.ValidationError
	if !errors.As(err, &verr) || verr.Field != "occurrence_date" {
		t.Errorf("期望 occurrence_date 校验错误，实际: %v", err)
	}
}

func TestEventService_Update_NotFound(t *testing.T) {
	svc, _, _ := setupTestEventService(t)

	_, err := svc.Update(context.Background(), "evt-404", &dto.UpdateEventRequest{Title: strPtr("x")}, testOwner)
	if !errors.Is(err, ErrEventNotFound) {
		t.Errorf("期望 ErrEventNotFound，实际: %v", err)
	}
}

func TestEventService_Update_MovedOffRepeatDaysRejected(t *testing.T) {
	svc, evRepo, calID := setupTestEventService(t)
	req := weeklyReq(calID, "周会", ts(1, 1, 9, 0), ts(1, 1, 10, 0), 1, 3)
	req.EndRepeat = strPtr("2024-03-31")
	root := mustCreate(t, svc, req)

	start := ts(1, 18, 9, 0)
	_, err := svc.Update(context.Background(), root.Event.ID, &dto.UpdateEventRequest{
		StartDate:      &start,
		OccurrenceDate: strPtr("2024-01-17"),
	}, testOwner)

	var ve *scheduling.ValidationError
	if !errors.As(err, &ve) || ve.Field != "start_date" {
		t.Fatalf("期望 start_date 校验错误，实际=%v", err)
	}
	if evRepo.mutations != 0 || evRepo.live() != 1 {
		t.Errorf("校验失败不应落库，mutations=%d live=%d", evRepo.mutations, evRepo.live())
	}
}

// ── Delete 测试 ──

func TestEventService_Delete_Idempotent(t *testing.T) {
	svc, _, calID := setupTestEventService(t)
	res := mustCreate(t, svc, &dto.CreateEventRequest{CalendarID: calID, Title: "A", StartDate: ts(1, 10, 9, 0), EndDate: ts(1, 10, 10, 0)})

	out, err := svc.Delete(context.Background(), res.Event.ID, testOwner)
	if err != nil || !out.Deleted {
		t.Fatalf("第一次删除应返回 true，实际 out=%+v err=%v", out, err)
	}
	if out.CalendarID != calID {
		t.Errorf("删除结果应带上日历 ID %s，实际=%q", calID, out.CalendarID)
	}
	out, err = svc.Delete(context.Background(), res.Event.ID, testOwner)
	if err != nil || out.Deleted {
		t.Errorf("重复删除应返回 false，实际 out=%+v err=%v", out, err)
	}
	out, err = svc.Delete(context.Background(), "evt-404", testOwner)
	if err != nil || out.Deleted {
		t.Errorf("删除不存在的事件应返回 false，实际 out=%+v err=%v", out, err)
	}
}

func TestEventService_Delete_RootKeepsBranch(t *testing.T) {
	svc, evRepo, calID := setupTestEventService(t)
	root := createTenMondays(t, svc, calID)
	start, end := ts(2, 5, 10, 0), ts(2, 5, 11, 0)
	upd, err := svc.Update(context.Background(), root.Event.ID, &dto.UpdateEventRequest{
		StartDate: &start, EndDate: &end, OccurrenceDate: strPtr("2024-02-05"),
	}, testOwner)
	if err != nil {
		t.Fatalf("Update 失败: %v", err)
	}

	if out, _ := svc.Delete(context.Background(), root.Event.ID, testOwner); out == nil || !out.Deleted {
		t.Fatal("删除系列根应成功")
	}
	branch, err := evRepo.GetByID(context.Background(), upd.Event.ID)
	if err != nil {
		t.Fatalf("分支不应被删除: %v", err)
	}
	if branch.RootID() != root.Event.ID {
		t.Errorf("分支血缘应保持不变，实际RootID=%s", branch.RootID())
	}
}

func TestEventService_DeleteOccurrence(t *testing.T) {
	tests := []struct {
		name        string
		date        string
		scope       string
		wantLive    int
		wantCount   int
		wantMissing string
	}{
		{"仅删除中间一次", "2024-02-05", "only", 2, 9, "2024-02-05"},
		{"删除该次及之后", "2024-02-05", "following", 1, 5, "2024-02-12"},
		{"从首次起全部删除", "2024-01-01", "following", 0, 0, "2024-01-01"},
		{"仅删除首次", "2024-01-01", "only", 1, 9, "2024-01-01"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, evRepo, calID := setupTestEventService(t)
			root := createTenMondays(t, svc, calID)

			_, err := svc.DeleteOccurrence(context.Background(), root.Event.ID, &dto.DeleteOccurrenceRequest{
				OccurrenceDate: tt.date,
				Scope:          tt.scope,
			}, testOwner)
			if err != nil {
				t.Fatalf("DeleteOccurrence 失败: %v", err)
			}
			if evRepo.live() != tt.wantLive {
				t.Errorf("期望记录数=%d，实际=%d", tt.wantLive, evRepo.live())
			}

			occ, _ := svc.ListOccurrences(context.Background(), calID, &dto.OccurrenceListRequest{From: "2024-01-01", To: "2024-03-31"}, testOwner)
			if len(occ) != tt.wantCount {
				t.Errorf("期望发生次数=%d，实际=%d", tt.wantCount, len(occ))
			}
			for _, o := range occ {
				if o.Date == tt.wantMissing {
					t.Errorf("%s 不应再出现", tt.wantMissing)
				}
			}
		})
	}
}

// ── Query 测试 ──

func TestEventService_ListOccurrences_RangeChecks(t *testing.T) {
	svc, _, calID := setupTestEventService(t)

	tests := []struct {
		name     string
		from, to string
	}{
		{"to 早于 from", "2024-02-01", "2024-01-01"},
		{"跨度过大", "2024-01-01", "2025-06-01"},
		{"格式错误", "2024-1-1", "2024-02-01"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ListOccurrences(context.Background(), calID, &dto.OccurrenceListRequest{From: tt.from, To: tt.to}, testOwner)
			var verr *scheduling.ValidationError
			if !errors.As(err, &verr) {
				t.Errorf("期望 ValidationError，实际: %v", err)
			}
		})
	}
}

func TestEventService_Search(t *testing.T) {
	svc, _, calID := setupTestEventService(t)
	mustCreate(t, svc, &dto.CreateEventRequest{CalendarID: calID, Title: "产品评审", StartDate: ts(1, 10, 9, 0), EndDate: ts(1, 10, 10, 0)})
	mustCreate(t, svc, &dto.CreateEventRequest{CalendarID: calID, Title: "周会", StartDate: ts(1, 11, 9, 0), EndDate: ts(1, 11, 10, 0)})

	got, err := svc.Search(context.Background(), calID, "评审", testOwner)
	if err != nil {
		t.Fatalf("Search 失败: %v", err)
	}
	if len(got) != 1 || got[0].Title != "产品评审" {
		t.Errorf("期望只命中 产品评审，实际=%+v", got)
	}

	all, _ := svc.Search(context.Background(), calID, "", testOwner)
	if len(all) != 2 {
		t.Errorf("空关键字应返回全部，实际=%d", len(all))
	}
}

func TestEventService_GetByID_Forbidden(t *testing.T) {
	svc, _, calID := setupTestEventService(t)
	res := mustCreate(t, svc, &dto.CreateEventRequest{CalendarID: calID, Title: "A", StartDate: ts(1, 10, 9, 0), EndDate: ts(1, 10, 10, 0)})

	if _, err := svc.GetByID(context.Background(), res.Event.ID, "user-999"); !errors.Is(err, ErrCalendarForbidden) {
		t.Errorf("期望 ErrCalendarForbidden，实际: %v", err)
	}
	got, err := svc.GetByID(context.Background(), res.Event.ID, testOwner)
	if err != nil || got.Title != "A" {
		t.Errorf("所有者应能读取事件，实际=%v err=%v", got, err)
	}
}
