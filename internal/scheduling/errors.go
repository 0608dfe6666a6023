package scheduling

import (
	"fmt"
	"time"
)

// Policy 冲突处理策略
type Policy string

const (
	PolicyAccept     Policy = "accept"      // 无冲突
	PolicyRejectFull Policy = "reject_full" // 首次发生即冲突，整体拒绝
	PolicyTruncate   Policy = "truncate"    // 系列中途冲突，截断到冲突前一天
)

// ValidationError 事件属性不合法，在冲突检测之前拒绝
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("参数不合法 %s: %s", e.Field, e.Reason)
}

func invalid(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// OverlapConflict 与已有事件时段重叠
type OverlapConflict struct {
	Policy       Policy
	ConflictDate time.Time
}

func (e *OverlapConflict) Error() string {
	return fmt.Sprintf("事件时间冲突（%s）: %s", e.Policy, e.ConflictDate.Format(DateLayout))
}

// StoreError Event Store 持久化失败，原样包装不重试
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("事件存储失败 %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }
