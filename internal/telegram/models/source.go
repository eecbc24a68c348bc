package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// 监控源类型常量
const (
	SourceKindGroup      = "group"
	SourceKindSupergroup = "supergroup"
	SourceKindChannel    = "channel"
)

// Source 监控源模型
// 每个监控源由唯一一个用户拥有，退订时仅停用不删除
type Source struct {
	ID       primitive.ObjectID `bson:"_id,omitempty"`
	OwnerID  int64              `bson:"owner_id"`            // 拥有者 Telegram 用户 ID
	ChatID   int64              `bson:"chat_id"`             // 被监控的聊天 ID
	ThreadID int                `bson:"thread_id,omitempty"` // 话题 ID（超级群话题，可选）
	Title    string             `bson:"title,omitempty"`     // 聊天标题
	Kind     string             `bson:"kind"`                // 聊天类型：group/supergroup/channel
	Active   bool               `bson:"active"`              // 是否处于监控中

	CreatedAt time.Time `bson:"created_at"` // 创建时间
	UpdatedAt time.Time `bson:"updated_at"` // 更新时间
}

// Matches 消息的 (chat_id, thread_id) 是否命中此监控源
// 未配置 thread_id 的监控源匹配该聊天的全部消息
func (s *Source) Matches(chatID int64, threadID int) bool {
	if !s.Active {
		return false
	}
	if s.ChatID != chatID {
		return false
	}
	if s.ThreadID != 0 && s.ThreadID != threadID {
		return false
	}
	return true
}
