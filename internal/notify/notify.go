// Package notify 事件变更通知
//
// 调度核心本身不发通知：Handler 在变更成功提交后调用 Dispatcher，
// 由外部的邮件 / 桌面 / 聊天推送进程订阅 Redis 频道完成投递。
// 投递失败只记日志，不影响请求结果。
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Action 变更类型
type Action string

const (
	ActionCreated           Action = "event.created"
	ActionUpdated           Action = "event.updated"
	ActionDeleted           Action = "event.deleted"
	ActionOccurrenceDeleted Action = "event.occurrence_deleted"
)

// Message 通知消息体
type Message struct {
	ID           string    `json:"id"`
	Action       Action    `json:"action"`
	EventID      string    `json:"event_id"`
	CalendarID   string    `json:"calendar_id,omitempty"`
	ActorID      string    `json:"actor_id"`
	Policy       string    `json:"policy,omitempty"`
	ConflictDate *string   `json:"conflict_date,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// Dispatcher 通知分发接口
type Dispatcher interface {
	Dispatch(ctx context.Context, msg Message)
}

// Publisher 发布到频道（pkg/redis.Client 实现）
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) (int64, error)
}

func (m *Message) fill() {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.OccurredAt.IsZero() {
		m.OccurredAt = time.Now().UTC()
	}
}

// ── Redis ──

// RedisDispatcher 以 JSON 发布到 Redis 频道
type RedisDispatcher struct {
	pub     Publisher
	channel string
	logger  *zap.Logger
}

// NewRedisDispatcher 创建 RedisDispatcher
func NewRedisDispatcher(pub Publisher, channel string, logger *zap.Logger) *RedisDispatcher {
	return &RedisDispatcher{pub: pub, channel: channel, logger: logger.Named("notify")}
}

func (d *RedisDispatcher) Dispatch(ctx context.Context, msg Message) {
	msg.fill()
	payload, err := json.Marshal(msg)
	if err != nil {
		d.logger.Warn("通知序列化失败", zap.String("event_id", msg.EventID), zap.Error(err))
		return
	}
	receivers, err := d.pub.Publish(ctx, d.channel, payload)
	if err != nil {
		d.logger.Warn("通知发布失败",
			zap.String("channel", d.channel),
			zap.String("action", string(msg.Action)),
			zap.String("event_id", msg.EventID),
			zap.Error(err),
		)
		return
	}
	if receivers == 0 {
		d.logger.Debug("通知频道暂无订阅者", zap.String("channel", d.channel), zap.String("id", msg.ID))
	}
}

// ── 日志 ──

// LogDispatcher 仅写日志，用于未启用通知或 Redis 不可用时
type LogDispatcher struct {
	logger *zap.Logger
}

// NewLogDispatcher 创建 LogDispatcher
func NewLogDispatcher(logger *zap.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger.Named("notify")}
}

func (d *LogDispatcher) Dispatch(_ context.Context, msg Message) {
	msg.fill()
	d.logger.Info("事件变更",
		zap.String("id", msg.ID),
		zap.String("action", string(msg.Action)),
		zap.String("event_id", msg.EventID),
		zap.String("calendar_id", msg.CalendarID),
		zap.String("actor_id", msg.ActorID),
	)
}
