//go:build integration

package repository_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	pkgerrors "crb/backend/pkg/errors"

	"crb/backend/internal/model"
	"crb/backend/internal/repository"
)

// ═══════════════════════════════════════════════════════════
// Test Setup
// ═══════════════════════════════════════════════════════════

var testDB *gorm.DB

func TestMain(m *testing.M) {
	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		dsn = "host=localhost port=5433 user=crb password=crb_password dbname=crb_test sslmode=disable TimeZone=UTC"
	}

	var err error
	testDB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "无法连接测试数据库: %v\n", err)
		os.Exit(1)
	}

	err = testDB.AutoMigrate(
		&model.Calendar{},
		&model.Event{},
		&model.RepeatOn{},
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "AutoMigrate 失败: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()
	os.Exit(code)
}

// setupCalendar 创建测试日历并返回清理函数
func setupCalendar(t *testing.T) (*model.Calendar, func()) {
	t.Helper()
	cal := &model.Calendar{
		OwnerID: uuid.NewString(),
		Name:    fmt.Sprintf("测试日历-%d", time.Now().UnixNano()),
	}
	if err := testDB.Create(cal).Error; err != nil {
		t.Fatalf("创建日历失败: %v", err)
	}
	cleanup := func() {
		testDB.Exec("DELETE FROM repeat_ons WHERE event_id IN (SELECT event_id FROM events WHERE calendar_id = ?)", cal.CalendarID)
		testDB.Unscoped().Where("calendar_id = ? AND parent_id IS NOT NULL", cal.CalendarID).Delete(&model.Event{})
		testDB.Unscoped().Where("calendar_id = ?", cal.CalendarID).Delete(&model.Event{})
		testDB.Unscoped().Where("calendar_id = ?", cal.CalendarID).Delete(&model.Calendar{})
	}
	return cal, cleanup
}

func weeklyEvent(cal *model.Calendar) *model.Event {
	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	kind := model.RepeatWeekly
	ev := &model.Event{
		CalendarID:  cal.CalendarID,
		UserID:      cal.OwnerID,
		Title:       "周会",
		StartDate:   start,
		EndDate:     start.Add(time.Hour),
		RepeatType:  &kind,
		StartRepeat: &start,
	}
	ev.SetWeekdays([]int{1, 3})
	return ev
}

// ═══════════════════════════════════════════════════════════
// Test: Transaction
// ═══════════════════════════════════════════════════════════

func TestTransaction_Rollback(t *testing.T) {
	cal, cleanup := setupCalendar(t)
	defer cleanup()

	repo := repository.NewRepository(testDB)
	ctx := context.Background()

	ev := weeklyEvent(cal)
	err := repo.Transaction(ctx, func(txRepo *repository.Repository) error {
		if err := txRepo.Event.Create(ctx, ev); err != nil {
			return err
		}
		return fmt.Errorf("模拟失败")
	})
	if err == nil {
		t.Fatal("期望事务返回错误")
	}

	if _, err := repo.Event.GetByID(ctx, ev.EventID); err == nil {
		t.Fatal("期望回滚后查不到事件，但实际查到了")
	}
}

func TestTransaction_Commit(t *testing.T) {
	cal, cleanup := setupCalendar(t)
	defer cleanup()

	repo := repository.NewRepository(testDB)
	ctx := context.Background()

	ev := weeklyEvent(cal)
	err := repo.Transaction(ctx, func(txRepo *repository.Repository) error {
		return txRepo.Event.Create(ctx, ev)
	})
	if err != nil {
		t.Fatalf("事务提交失败: %v", err)
	}

	found, err := repo.Event.GetByID(ctx, ev.EventID)
	if err != nil {
		t.Fatalf("提交后查询事件失败: %v", err)
	}
	if days := found.Weekdays(); len(days) != 2 || days[0] != 1 || days[1] != 3 {
		t.Errorf("RepeatOn 未正确保存: %v", days)
	}
}

// ═══════════════════════════════════════════════════════════
// Test: Optimistic Lock
// ═══════════════════════════════════════════════════════════

func TestOptimisticLock_Event_ConflictDetected(t *testing.T) {
	cal, cleanup := setupCalendar(t)
	defer cleanup()

	repo := repository.NewRepository(testDB)
	ctx := context.Background()

	ev := weeklyEvent(cal)
	if err := repo.Event.Create(ctx, ev); err != nil {
		t.Fatalf("创建事件失败: %v", err)
	}

	a, _ := repo.Event.GetByID(ctx, ev.EventID)
	b, _ := repo.Event.GetByID(ctx, ev.EventID)

	a.Title = "第一次修改"
	if err := repo.Event.Update(ctx, a); err != nil {
		t.Fatalf("第一次更新应成功: %v", err)
	}

	b.Title = "并发修改"
	if err := repo.Event.Update(ctx, b); err != pkgerrors.ErrOptimisticLock {
		t.Errorf("期望 ErrOptimisticLock，得到: %v", err)
	}
}

// ═══════════════════════════════════════════════════════════
// Test: Lineage
// ═══════════════════════════════════════════════════════════

func TestSoftDeletedRootKeepsLineage(t *testing.T) {
	cal, cleanup := setupCalendar(t)
	defer cleanup()

	repo := repository.NewRepository(testDB)
	ctx := context.Background()

	root := weeklyEvent(cal)
	if err := repo.Event.Create(ctx, root); err != nil {
		t.Fatalf("创建系列根失败: %v", err)
	}
	branch := weeklyEvent(cal)
	branch.ParentID = &root.EventID
	if err := repo.Event.Create(ctx, branch); err != nil {
		t.Fatalf("创建分支失败: %v", err)
	}

	ok, err := repo.Event.Delete(ctx, root.EventID, cal.OwnerID)
	if err != nil || !ok {
		t.Fatalf("删除系列根失败: ok=%v err=%v", ok, err)
	}
	if ok, _ := repo.Event.Delete(ctx, root.EventID, cal.OwnerID); ok {
		t.Error("重复删除应返回 false")
	}

	lineage, err := repo.Event.ListByRoot(ctx, root.EventID)
	if err != nil {
		t.Fatalf("ListByRoot 失败: %v", err)
	}
	if len(lineage) != 1 || lineage[0].EventID != branch.EventID {
		t.Errorf("期望只剩分支，实际=%d 条", len(lineage))
	}
}
