package errors

import "errors"

var (
	// ErrOptimisticLock 乐观锁冲突：事件已被其他请求修改（例如同一重复系列被并发拆分）
	ErrOptimisticLock = errors.New("数据已被其他操作修改，请刷新后重试")
	// ErrNoRowsAffected 写操作未命中任何记录（记录不存在或已删除）
	ErrNoRowsAffected = errors.New("记录不存在或已删除")
)
