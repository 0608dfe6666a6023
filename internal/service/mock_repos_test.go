package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"

	"crb/backend/internal/model"
	"crb/backend/internal/repository"
	"crb/backend/internal/scheduling"
	pkgerrors "crb/backend/pkg/errors"
)

// ── Mock CalendarRepository ──

type mockCalendarRepo struct {
	calendars map[string]*model.Calendar
	seq       int
}

func newMockCalendarRepo() *mockCalendarRepo {
	return &mockCalendarRepo{calendars: make(map[string]*model.Calendar)}
}

func (m *mockCalendarRepo) Create(_ context.Context, cal *model.Calendar) error {
	if cal.CalendarID == "" {
		m.seq++
		cal.CalendarID = fmt.Sprintf("cal-%03d", m.seq)
	}
	cal.CreatedAt = time.Date(2024, 1, 1, 0, 0, m.seq, 0, time.UTC)
	cal.Version = 1
	c := *cal
	m.calendars[cal.CalendarID] = &c
	return nil
}

func (m *mockCalendarRepo) GetByID(_ context.Context, id string) (*model.Calendar, error) {
	if c, ok := m.calendars[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockCalendarRepo) ListByOwner(_ context.Context, ownerID string) ([]model.Calendar, error) {
	var result []model.Calendar
	for _, c := range m.calendars {
		if c.OwnerID == ownerID {
			result = append(result, *c)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

// ── Mock EventRepository ──

type mockEventRepo struct {
	events  map[string]*model.Event
	deleted map[string]bool
	seq     int
	// listErr 非空时 ListByCalendar 返回该错误
	listErr error
	// mutations ApplyMutation 调用次数
	mutations int
}

func newMockEventRepo() *mockEventRepo {
	return &mockEventRepo{
		events:  make(map[string]*model.Event),
		deleted: make(map[string]bool),
	}
}

func (m *mockEventRepo) Create(_ context.Context, ev *model.Event) error {
	if ev.EventID == "" {
		m.seq++
		ev.EventID = fmt.Sprintf("evt-%03d", m.seq)
	}
	for i := range ev.RepeatOns {
		ev.RepeatOns[i].EventID = ev.EventID
	}
	ev.Version = 1
	m.events[ev.EventID] = ev.Clone()
	return nil
}

func (m *mockEventRepo) GetByID(_ context.Context, id string) (*model.Event, error) {
	if ev, ok := m.events[id]; ok && !m.deleted[id] {
		return ev.Clone(), nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockEventRepo) list(match func(*model.Event) bool) []model.Event {
	var result []model.Event
	for id, ev := range m.events {
		if m.deleted[id] || !match(ev) {
			continue
		}
		result = append(result, *ev.Clone())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].StartDate.Before(result[j].StartDate) })
	return result
}

func (m *mockEventRepo) ListByCalendar(_ context.Context, calendarID string) ([]model.Event, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.list(func(ev *model.Event) bool { return ev.CalendarID == calendarID }), nil
}

func (m *mockEventRepo) ListByRoot(_ context.Context, rootID string) ([]model.Event, error) {
	return m.list(func(ev *model.Event) bool { return ev.RootID() == rootID }), nil
}

func (m *mockEventRepo) Search(_ context.Context, calendarID, keyword string) ([]model.Event, error) {
	kw := strings.ToLower(strings.TrimSpace(keyword))
	return m.list(func(ev *model.Event) bool {
		if ev.CalendarID != calendarID {
			return false
		}
		return kw == "" ||
			strings.Contains(strings.ToLower(ev.Title), kw) ||
			strings.Contains(strings.ToLower(ev.Description), kw)
	}), nil
}

func (m *mockEventRepo) Update(_ context.Context, ev *model.Event) error {
	cur, ok := m.events[ev.EventID]
	if !ok || m.deleted[ev.EventID] || cur.Version != ev.Version {
		return pkgerrors.ErrOptimisticLock
	}
	ev.Version++
	m.events[ev.EventID] = ev.Clone()
	return nil
}

func (m *mockEventRepo) Delete(_ context.Context, id string, _ string) (bool, error) {
	if _, ok := m.events[id]; !ok || m.deleted[id] {
		return false, nil
	}
	m.deleted[id] = true
	return true, nil
}

// ApplyMutation 出错时恢复到调用前的快照
func (m *mockEventRepo) ApplyMutation(ctx context.Context, mut *scheduling.Mutation, operatorID string) error {
	m.mutations++
	events := make(map[string]*model.Event, len(m.events))
	for k, v := range m.events {
		events[k] = v.Clone()
	}
	deleted := make(map[string]bool, len(m.deleted))
	for k, v := range m.deleted {
		deleted[k] = v
	}
	seq := m.seq

	err := func() error {
		for _, ev := range mut.Updated {
			ev.Stamp(operatorID)
			if err := m.Update(ctx, ev); err != nil {
				return err
			}
		}
		for _, ev := range mut.Created {
			ev.Stamp(operatorID)
			if err := m.Create(ctx, ev); err != nil {
				return err
			}
		}
		for _, id := range mut.Deleted {
			ok, err := m.Delete(ctx, id, operatorID)
			if err != nil {
				return err
			}
			if !ok {
				return pkgerrors.ErrOptimisticLock
			}
		}
		return nil
	}()
	if err != nil {
		m.events, m.deleted, m.seq = events, deleted, seq
	}
	return err
}

// live 未删除记录数
func (m *mockEventRepo) live() int {
	n := 0
	for id := range m.events {
		if !m.deleted[id] {
			n++
		}
	}
	return n
}

var errMockStore = errors.New("mock store unavailable")

// newMockRepository 组装只含 mock 的 Repository 聚合（未注入 db，Transaction 直接执行）
func newMockRepository() (*repository.Repository, *mockCalendarRepo, *mockEventRepo) {
	calRepo := newMockCalendarRepo()
	evRepo := newMockEventRepo()
	return &repository.Repository{
		Calendar: calRepo,
		Event:    evRepo,
	}, calRepo, evRepo
}
